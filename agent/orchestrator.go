// Package agent answers financial questions over ingested 10-K filings. A
// question is classified, optionally decomposed into self-contained
// sub-questions, each sub-question is answered from retrieved passages,
// derived figures go through the calculator, and the findings are combined
// into a citation-carrying report.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/fabfab/filing-agent/calc"
	"github.com/fabfab/filing-agent/llm"
	"github.com/fabfab/filing-agent/retrieval"
)

const (
	DefaultMaxSteps        = 15
	defaultSimilarityLimit = 5
)

var (
	ErrEmptyQuestion = errors.New("question cannot be empty")

	errStepLimit = errors.New("step limit reached")
)

type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) (retrieval.Result, error)
}

type Options struct {
	// MaxSteps caps tool invocations per question.
	MaxSteps        int
	SimilarityLimit int
	// Parallel resolves sub-questions concurrently.
	Parallel bool
}

type Orchestrator struct {
	llm       llm.Client
	retriever Retriever
	opts      Options
	logger    *log.Logger
}

func NewOrchestrator(client llm.Client, retriever Retriever, opts Options, logger *log.Logger) *Orchestrator {
	if logger == nil {
		logger = log.Default()
	}
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = DefaultMaxSteps
	}
	if opts.SimilarityLimit <= 0 {
		opts.SimilarityLimit = defaultSimilarityLimit
	}
	return &Orchestrator{
		llm:       client,
		retriever: retriever,
		opts:      opts,
		logger:    logger,
	}
}

// Ask answers one question. Running out of steps is not an error: the best
// partial report is returned with Incomplete set. Cancellation of ctx
// between steps returns ctx.Err().
func (o *Orchestrator) Ask(ctx context.Context, question string) (Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Answer{}, ErrEmptyQuestion
	}
	if o.llm == nil {
		return Answer{}, fmt.Errorf("llm client is not configured")
	}
	if o.retriever == nil {
		return Answer{}, fmt.Errorf("retriever is not configured")
	}

	r := &run{o: o, plan: &Plan{Query: question}}
	answer, err := r.execute(ctx)
	if errors.Is(err, errStepLimit) {
		o.logger.Printf("step limit of %d reached, returning partial answer", o.opts.MaxSteps)
		return r.partial(), nil
	}
	if err != nil {
		return Answer{}, err
	}
	return answer, nil
}

// run carries the plan of a single Ask call.
type run struct {
	o    *Orchestrator
	plan *Plan
}

// step charges one tool invocation against the budget.
func (r *run) step(ctx context.Context, tool ToolKind, input, reason string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(r.plan.Steps) >= r.o.opts.MaxSteps {
		return errStepLimit
	}
	r.plan.Steps = append(r.plan.Steps, Step{Tool: tool, Input: input, Reason: reason})
	r.o.logger.Printf("tool=%s step=%d reason=%s", tool, len(r.plan.Steps), reason)
	return nil
}

func (r *run) note(format string, args ...any) {
	r.plan.Notes = append(r.plan.Notes, fmt.Sprintf(format, args...))
}

// toolCall is one invocation routed through dispatch. Sub is set for the
// per-sub-question retrieve and synthesize tools.
type toolCall struct {
	Kind   ToolKind
	Input  string
	Reason string
	Sub    *SubQuery
}

// toolResult carries what a tool produced. OK is false when the model reply
// could not be parsed and the caller may retry.
type toolResult struct {
	Class        Classification
	Reply        string
	SubQueries   []string
	Calculations []Calculation
	Final        finalAnswer
	OK           bool
}

// dispatch charges one step and runs the tool.
func (r *run) dispatch(ctx context.Context, call toolCall) (toolResult, error) {
	if err := r.step(ctx, call.Kind, call.Input, call.Reason); err != nil {
		return toolResult{}, err
	}
	return r.invoke(ctx, call)
}

// invoke runs a tool whose step has already been charged.
func (r *run) invoke(ctx context.Context, call toolCall) (toolResult, error) {
	switch call.Kind {
	case ToolClassify:
		raw, err := llm.Complete(ctx, r.o.llm, classifyPrompt(call.Input))
		if err != nil {
			return toolResult{}, fmt.Errorf("classify question: %w", err)
		}
		class, reply, ok := parseClassification(raw)
		if !ok {
			r.o.logger.Printf("unparseable classification: %q", truncate(raw, 200))
		}
		return toolResult{Class: class, Reply: reply, OK: ok}, nil

	case ToolGeneric:
		reply, err := llm.Complete(ctx, r.o.llm, genericPrompt(call.Input))
		if err != nil {
			return toolResult{}, fmt.Errorf("answer generic question: %w", err)
		}
		return toolResult{Reply: reply, OK: true}, nil

	case ToolDecompose:
		raw, err := llm.Complete(ctx, r.o.llm, decomposePrompt(call.Input))
		if err != nil {
			return toolResult{}, fmt.Errorf("decompose question: %w", err)
		}
		subs, err := ParseSubQueries(raw, call.Input)
		if err != nil {
			r.o.logger.Printf("invalid decomposition: %v", err)
			return toolResult{}, nil
		}
		return toolResult{SubQueries: subs, OK: true}, nil

	case ToolRetrieve:
		if err := r.retrieve(ctx, call.Sub); err != nil {
			return toolResult{}, err
		}
		return toolResult{OK: true}, nil

	case ToolSynthesize:
		if call.Sub != nil {
			if err := r.answer(ctx, call.Sub); err != nil {
				return toolResult{}, err
			}
			return toolResult{Reply: call.Sub.Answer, OK: true}, nil
		}
		raw, err := llm.Complete(ctx, r.o.llm, finalPrompt(call.Input, r.plan.SubQueries, r.plan.Calculations))
		if err != nil {
			return toolResult{}, fmt.Errorf("synthesize final answer: %w", err)
		}
		final, ok := parseFinal(raw)
		if !ok {
			r.o.logger.Printf("unparseable final answer: %q", truncate(raw, 200))
		}
		return toolResult{Final: final, OK: ok}, nil

	case ToolCalculate:
		raw, err := llm.Complete(ctx, r.o.llm, calculationPrompt(call.Input, r.plan.SubQueries))
		if err != nil {
			return toolResult{}, fmt.Errorf("request calculation: %w", err)
		}
		requests, ok := parseCalculations(raw)
		if !ok {
			r.o.logger.Printf("unparseable calculation request: %q", truncate(raw, 200))
			return toolResult{}, nil
		}
		calcs := make([]Calculation, 0, len(requests))
		for _, req := range requests {
			result := calc.Calculator(req.Expression)
			r.o.logger.Printf("calculator %q -> %s", req.Expression, result)
			calcs = append(calcs, Calculation{
				Label:      req.Label,
				Expression: req.Expression,
				Result:     result,
				Failed:     strings.HasPrefix(result, "Error: "),
			})
		}
		return toolResult{Calculations: calcs, OK: true}, nil

	default:
		return toolResult{}, fmt.Errorf("unknown tool %s", call.Kind)
	}
}

func (r *run) execute(ctx context.Context) (Answer, error) {
	question := r.plan.Query

	class, reply, err := r.classify(ctx)
	if err != nil {
		return Answer{}, err
	}
	r.plan.Classification = class

	switch class {
	case ClassGeneric:
		return r.generic(ctx, reply)
	case ClassIndirect:
		subs, err := r.decompose(ctx)
		if err != nil {
			return Answer{}, err
		}
		for _, q := range subs {
			r.plan.SubQueries = append(r.plan.SubQueries, SubQuery{Question: q})
		}
	default:
		r.plan.SubQueries = []SubQuery{{Question: question}}
	}

	if err := r.resolveSubQueries(ctx); err != nil {
		return Answer{}, err
	}
	if class == ClassIndirect {
		if err := r.calculate(ctx); err != nil {
			return Answer{}, err
		}
	}
	return r.synthesize(ctx)
}

func (r *run) classify(ctx context.Context) (Classification, string, error) {
	call := toolCall{
		Kind:   ToolClassify,
		Input:  r.plan.Query,
		Reason: "classify the question to choose between generic, direct and indirect handling",
	}
	for attempt := 0; attempt < 2; attempt++ {
		res, err := r.dispatch(ctx, call)
		if err != nil {
			return "", "", err
		}
		if res.OK {
			return res.Class, res.Reply, nil
		}
		call.Reason = "retry: previous classification was not valid JSON"
	}
	r.note("The question could not be classified reliably, so it was answered with a single retrieval.")
	return ClassDirect, "", nil
}

// generic answers out-of-scope questions. A reply already written by the
// classifier is used as is and costs no further step.
func (r *run) generic(ctx context.Context, reply string) (Answer, error) {
	if reply == "" {
		res, err := r.dispatch(ctx, toolCall{
			Kind:   ToolGeneric,
			Input:  r.plan.Query,
			Reason: "question is a greeting or outside the 10-K filings",
		})
		if err != nil {
			return Answer{}, err
		}
		reply = res.Reply
	}
	return Answer{Kind: AnswerPlain, Message: reply, Steps: r.steps()}, nil
}

func (r *run) decompose(ctx context.Context) ([]string, error) {
	call := toolCall{
		Kind:   ToolDecompose,
		Input:  r.plan.Query,
		Reason: "comparative or derived question must be split into self-contained sub-questions before retrieval",
	}
	for attempt := 0; attempt < 2; attempt++ {
		res, err := r.dispatch(ctx, call)
		if err != nil {
			return nil, err
		}
		if res.OK {
			return res.SubQueries, nil
		}
		call.Reason = "retry: previous decomposition was not a JSON array of strings"
	}
	r.note("The question could not be decomposed, so it was answered as a single sub-question.")
	return []string{r.plan.Query}, nil
}

func (r *run) resolveSubQueries(ctx context.Context) error {
	if r.o.opts.Parallel && len(r.plan.SubQueries) > 1 {
		return r.resolveParallel(ctx)
	}
	for i := range r.plan.SubQueries {
		sq := &r.plan.SubQueries[i]
		if _, err := r.dispatch(ctx, retrieveCall(sq)); err != nil {
			return err
		}
		if _, err := r.dispatch(ctx, toolCall{Kind: ToolSynthesize, Input: sq.Question, Reason: synthesizeReason(sq), Sub: sq}); err != nil {
			return err
		}
	}
	return nil
}

// resolveParallel reserves the retrieve and synthesize steps of as many
// sub-questions as the budget allows, then invokes them concurrently. Each
// goroutine writes only its own SubQuery, so emission order is kept.
func (r *run) resolveParallel(ctx context.Context) error {
	subs := r.plan.SubQueries
	n := min(len(subs), (r.o.opts.MaxSteps-len(r.plan.Steps))/2)
	calls := make([][2]toolCall, n)
	for i := 0; i < n; i++ {
		sq := &subs[i]
		calls[i] = [2]toolCall{
			retrieveCall(sq),
			{Kind: ToolSynthesize, Input: sq.Question, Reason: "answer the sub-question from its passages", Sub: sq},
		}
		for _, call := range calls[i] {
			if err := r.step(ctx, call.Kind, call.Input, call.Reason); err != nil {
				return err
			}
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		pair := calls[i]
		g.Go(func() error {
			for _, call := range pair {
				if err := gctx.Err(); err != nil {
					return err
				}
				if _, err := r.invoke(gctx, call); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if n < len(subs) {
		return errStepLimit
	}
	return nil
}

func retrieveCall(sq *SubQuery) toolCall {
	return toolCall{Kind: ToolRetrieve, Input: sq.Question, Reason: "find filing passages for the sub-question", Sub: sq}
}

func synthesizeReason(sq *SubQuery) string {
	if len(sq.Evidence) == 0 {
		return "no passages retrieved; disclose insufficient evidence"
	}
	return fmt.Sprintf("answer the sub-question from %d retrieved passages", len(sq.Evidence))
}

func (r *run) retrieve(ctx context.Context, sq *SubQuery) error {
	result, err := r.o.retriever.Retrieve(ctx, sq.Question, r.o.opts.SimilarityLimit)
	if err != nil {
		return fmt.Errorf("retrieve passages: %w", err)
	}
	sq.Evidence = result.Passages
	sq.Insights = result.Insights
	return nil
}

func (r *run) answer(ctx context.Context, sq *SubQuery) error {
	if len(sq.Evidence) == 0 {
		sq.Answer = insufficientEvidence(sq.Question)
		sq.Insufficient = true
		sq.Resolved = true
		return nil
	}
	reply, err := llm.Complete(ctx, r.o.llm, answerPrompt(sq.Question, renderContext(*sq)))
	if err != nil {
		return fmt.Errorf("answer sub-question: %w", err)
	}
	sq.Answer = reply
	sq.Resolved = true
	return nil
}

func (r *run) calculate(ctx context.Context) error {
	answered := 0
	for _, sq := range r.plan.SubQueries {
		if sq.Resolved && !sq.Insufficient {
			answered++
		}
	}
	if answered == 0 {
		return nil
	}

	call := toolCall{
		Kind:   ToolCalculate,
		Input:  r.plan.Query,
		Reason: "compute any derived metric from the retrieved figures",
	}
	for attempt := 0; attempt < 2; attempt++ {
		res, err := r.dispatch(ctx, call)
		if err != nil {
			return err
		}
		if res.OK {
			r.plan.Calculations = append(r.plan.Calculations, res.Calculations...)
			return nil
		}
		call.Reason = "retry: previous calculation request was not valid JSON"
	}
	r.note("The calculation request could not be understood, so no derived figure was computed.")
	return nil
}

func (r *run) synthesize(ctx context.Context) (Answer, error) {
	subs := r.plan.SubQueries

	if r.plan.Classification != ClassIndirect && len(subs) == 1 {
		base := fmt.Sprintf("Answered directly from %d retrieved passages.", len(subs[0].Evidence))
		if subs[0].Insufficient {
			base = "No passages were retrieved for the question."
		}
		return r.structured(subs[0].Answer, base), nil
	}

	res, err := r.dispatch(ctx, toolCall{
		Kind:   ToolSynthesize,
		Input:  r.plan.Query,
		Reason: "combine sub-question answers into the final answer",
	})
	if err != nil {
		return Answer{}, err
	}
	if !res.OK {
		r.note("The final synthesis could not be parsed, so the answer was assembled from the sub-question answers.")
		return r.structured(r.assembled(), "Combined the sub-question answers."), nil
	}
	return r.structured(res.Final.Answer, res.Final.Reasoning), nil
}

// assembled joins resolved sub-answers and derived figures into one answer.
func (r *run) assembled() string {
	parts := make([]string, 0, len(r.plan.SubQueries)+len(r.plan.Calculations))
	for _, sq := range r.plan.SubQueries {
		if sq.Resolved {
			parts = append(parts, sq.Answer)
		}
	}
	for _, c := range r.plan.Calculations {
		parts = append(parts, c.describe())
	}
	return strings.Join(parts, "\n")
}

func (r *run) structured(answer, reasoning string) Answer {
	return Answer{Kind: AnswerStructured, Report: r.report(answer, reasoning), Steps: r.steps()}
}

func (r *run) report(answer, reasoning string) *Report {
	parts := []string{strings.TrimSpace(reasoning)}
	for _, c := range r.plan.Calculations {
		parts = append(parts, c.describe())
	}
	parts = append(parts, r.plan.Notes...)

	subQueries := make([]string, 0, len(r.plan.SubQueries))
	for _, sq := range r.plan.SubQueries {
		subQueries = append(subQueries, sq.Question)
	}
	if len(subQueries) == 0 {
		subQueries = append(subQueries, r.plan.Query)
	}

	return &Report{
		Query:      r.plan.Query,
		Answer:     answer,
		Reasoning:  strings.TrimSpace(strings.Join(parts, " ")),
		SubQueries: subQueries,
		Sources:    buildSources(r.plan.SubQueries),
		Incomplete: r.plan.Incomplete,
	}
}

// partial builds the best report available after the step budget ran out.
func (r *run) partial() Answer {
	r.plan.Incomplete = true

	resolved := 0
	for _, sq := range r.plan.SubQueries {
		if sq.Resolved {
			resolved++
		}
	}

	answer := r.assembled()
	if answer == "" {
		answer = "The step limit was reached before any part of the question could be answered."
	}
	reasoning := fmt.Sprintf("Incomplete: stopped after %d tool invocations (limit %d); %d of %d sub-questions were answered.",
		len(r.plan.Steps), r.o.opts.MaxSteps, resolved, len(r.plan.SubQueries))
	return r.structured(answer, reasoning)
}

func (r *run) steps() []Step {
	return append([]Step(nil), r.plan.Steps...)
}
