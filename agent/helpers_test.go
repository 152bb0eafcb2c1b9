package agent

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/fabfab/filing-agent/embeddings"
	"github.com/fabfab/filing-agent/llm"
	"github.com/fabfab/filing-agent/retrieval"
	"github.com/fabfab/filing-agent/vectorstore"
)

// scriptedLLM answers each prompt with respond(prompt) and records prompts.
type scriptedLLM struct {
	mu      sync.Mutex
	prompts []string
	respond func(prompt string) (string, error)
}

func (s *scriptedLLM) Generate(ctx context.Context, messages []llm.Message) (string, error) {
	prompt := messages[len(messages)-1].Content
	s.mu.Lock()
	s.prompts = append(s.prompts, prompt)
	s.mu.Unlock()
	return s.respond(prompt)
}

func (s *scriptedLLM) count(kind string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.prompts {
		if promptKind(p) == kind {
			n++
		}
	}
	return n
}

var _ llm.Client = (*scriptedLLM)(nil)

func promptKind(prompt string) string {
	switch {
	case strings.Contains(prompt, "Classify the question as exactly one of"):
		return "classify"
	case strings.Contains(prompt, "generates sub-questions"):
		return "decompose"
	case strings.Contains(prompt, "preparing a calculation"):
		return "calculate"
	case strings.Contains(prompt, "Combine the findings"):
		return "final"
	case strings.Contains(prompt, "respond politely"):
		return "generic"
	case strings.Contains(prompt, "financial analyst assistant"):
		return "answer"
	default:
		return "unknown"
	}
}

// router builds a respond func from per-kind replies. answer replies are
// chosen by the first key contained in the prompt.
type router struct {
	classify  []string
	decompose []string
	calculate []string
	final     []string
	generic   string
	answers   map[string]string

	mu    sync.Mutex
	calls map[string]int
}

func (r *router) respond(prompt string) (string, error) {
	kind := promptKind(prompt)
	r.mu.Lock()
	if r.calls == nil {
		r.calls = map[string]int{}
	}
	n := r.calls[kind]
	r.calls[kind]++
	r.mu.Unlock()

	pick := func(replies []string) string {
		if len(replies) == 0 {
			return ""
		}
		if n >= len(replies) {
			return replies[len(replies)-1]
		}
		return replies[n]
	}

	switch kind {
	case "classify":
		return pick(r.classify), nil
	case "decompose":
		return pick(r.decompose), nil
	case "calculate":
		return pick(r.calculate), nil
	case "final":
		return pick(r.final), nil
	case "generic":
		return r.generic, nil
	case "answer":
		for key, reply := range r.answers {
			if strings.Contains(prompt, "Question: "+key) {
				return reply, nil
			}
		}
		return "answer", nil
	default:
		return "", fmt.Errorf("unexpected prompt: %.80q", prompt)
	}
}

// keywordEmbedder maps text onto [revenue, operating income, bias].
type keywordEmbedder struct{}

func (keywordEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		lower := strings.ToLower(text)
		vec := []float32{0, 0, 0.01}
		if strings.Contains(lower, "revenue") {
			vec[0] = 1
		}
		if strings.Contains(lower, "operating income") {
			vec[1] = 1
		}
		vectors[i] = vec
	}
	return vectors, nil
}

var _ embeddings.Embedder = keywordEmbedder{}

// stubRetriever returns canned passages per question.
type stubRetriever struct {
	mu       sync.Mutex
	passages map[string][]retrieval.Passage
	delays   map[string]time.Duration
	fallback []retrieval.Passage
	queries  []string
}

func (s *stubRetriever) Retrieve(ctx context.Context, query string, k int) (retrieval.Result, error) {
	s.mu.Lock()
	s.queries = append(s.queries, query)
	delay := s.delays[query]
	passages, ok := s.passages[query]
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return retrieval.Result{}, ctx.Err()
		}
	}
	if !ok {
		passages = s.fallback
	}
	return retrieval.Result{Passages: passages}, nil
}

func (s *stubRetriever) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queries)
}

var _ Retriever = (*stubRetriever)(nil)

func passage(source, company, year string, page int, content string) retrieval.Passage {
	return retrieval.Passage{Chunk: vectorstore.Chunk{
		Source:  source,
		Company: company,
		Year:    year,
		Page:    page,
		Content: content,
	}, Score: 1}
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func toolSequence(steps []Step) []ToolKind {
	tools := make([]ToolKind, len(steps))
	for i, s := range steps {
		tools[i] = s.Tool
	}
	return tools
}
