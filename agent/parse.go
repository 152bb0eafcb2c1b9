package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	jsonrepair "github.com/RealAlexandreAI/json-repair"
	hjson "github.com/hjson/hjson-go/v4"
)

var errUnparseable = errors.New("model output is not valid JSON")

// parseJSON decodes model output into v. Strict JSON is accepted even when
// prose surrounds it; the lenient repair and Hjson stages only run when the
// whole reply is a single bracketed value.
func parseJSON(raw string, v any) error {
	text := unfence(raw)
	candidate := outermostValue(text)
	if candidate == "" {
		return errUnparseable
	}
	if err := json.Unmarshal([]byte(candidate), v); err == nil {
		return nil
	}
	if !wholeValue(text) {
		return errUnparseable
	}
	if repaired, err := jsonrepair.RepairJSON(text); err == nil {
		if err := json.Unmarshal([]byte(repaired), v); err == nil {
			return nil
		}
	}
	var generic any
	if err := hjson.Unmarshal([]byte(text), &generic); err == nil {
		if data, err := json.Marshal(generic); err == nil {
			if err := json.Unmarshal(data, v); err == nil {
				return nil
			}
		}
	}
	return errUnparseable
}

// stripFences removes a surrounding markdown code fence and any prose around
// the outermost JSON object or array.
func stripFences(raw string) string {
	return outermostValue(unfence(raw))
}

func unfence(raw string) string {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if nl := strings.IndexByte(text, '\n'); nl >= 0 {
			text = text[nl+1:]
		}
		if end := strings.LastIndex(text, "```"); end >= 0 {
			text = text[:end]
		}
		text = strings.TrimSpace(text)
	}
	return text
}

func outermostValue(text string) string {
	start := strings.IndexAny(text, "[{")
	if start < 0 {
		return text
	}
	closer := byte('}')
	if text[start] == '[' {
		closer = ']'
	}
	if end := strings.LastIndexByte(text, closer); end > start {
		return text[start : end+1]
	}
	return text[start:]
}

// wholeValue reports whether text opens with [ or { and the bracket closing
// that opener is the final byte. Quoted strings are skipped.
func wholeValue(text string) bool {
	if len(text) < 2 || (text[0] != '[' && text[0] != '{') {
		return false
	}
	var (
		depth   int
		quote   byte
		escaped bool
	)
	for i := 0; i < len(text); i++ {
		c := text[i]
		if quote != 0 {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case '[', '{':
			depth++
		case ']', '}':
			depth--
			if depth == 0 {
				return i == len(text)-1
			}
		}
	}
	return false
}

// ParseSubQueries validates decomposer output: a flat JSON array of
// non-empty strings. An empty array means the question is atomic and yields
// the singleton [question]; so does an array holding only the question.
func ParseSubQueries(raw, question string) ([]string, error) {
	var items []string
	if err := parseJSON(raw, &items); err != nil {
		return nil, fmt.Errorf("parse sub-queries: %w", err)
	}

	subs := make([]string, 0, len(items))
	for i, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			return nil, fmt.Errorf("parse sub-queries: element %d is empty", i)
		}
		if !balancedItem(item) {
			return nil, fmt.Errorf("parse sub-queries: element %d is malformed: %q", i, item)
		}
		subs = append(subs, item)
	}
	if len(subs) == 0 || (len(subs) == 1 && sameQuestion(subs[0], question)) {
		return []string{question}, nil
	}
	return subs, nil
}

// balancedItem rejects elements carrying stray brackets or quotes, which
// only appear when lenient parsing swallowed broken list syntax.
func balancedItem(item string) bool {
	return strings.Count(item, "[") == strings.Count(item, "]") && strings.Count(item, `"`)%2 == 0
}

func sameQuestion(a, b string) bool {
	return strings.EqualFold(strings.Join(strings.Fields(a), " "), strings.Join(strings.Fields(b), " "))
}

type classification struct {
	Classification string `json:"classification"`
	Reply          string `json:"reply"`
}

func parseClassification(raw string) (Classification, string, bool) {
	var out classification
	if err := parseJSON(raw, &out); err != nil {
		return "", "", false
	}
	switch Classification(strings.ToLower(strings.TrimSpace(out.Classification))) {
	case ClassGeneric:
		return ClassGeneric, strings.TrimSpace(out.Reply), true
	case ClassDirect:
		return ClassDirect, "", true
	case ClassIndirect:
		return ClassIndirect, "", true
	default:
		return "", "", false
	}
}

type calculationRequest struct {
	Expression string `json:"expression"`
	Label      string `json:"label"`
}

// parseCalculations accepts a single request object or an array of them.
// Requests with an empty expression are dropped.
func parseCalculations(raw string) ([]calculationRequest, bool) {
	var many []calculationRequest
	if err := parseJSON(raw, &many); err != nil {
		var one calculationRequest
		if err := parseJSON(raw, &one); err != nil {
			return nil, false
		}
		many = []calculationRequest{one}
	}

	requests := make([]calculationRequest, 0, len(many))
	for _, req := range many {
		req.Expression = strings.TrimSpace(req.Expression)
		req.Label = strings.TrimSpace(req.Label)
		if req.Expression != "" {
			requests = append(requests, req)
		}
	}
	return requests, true
}

type finalAnswer struct {
	Answer    string `json:"answer"`
	Reasoning string `json:"reasoning"`
}

func parseFinal(raw string) (finalAnswer, bool) {
	var out finalAnswer
	if err := parseJSON(raw, &out); err != nil {
		return finalAnswer{}, false
	}
	out.Answer = strings.TrimSpace(out.Answer)
	out.Reasoning = strings.TrimSpace(out.Reasoning)
	return out, out.Answer != ""
}
