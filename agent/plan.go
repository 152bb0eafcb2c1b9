package agent

import (
	"fmt"

	"github.com/fabfab/filing-agent/retrieval"
)

type Classification string

const (
	ClassGeneric  Classification = "generic"
	ClassDirect   Classification = "direct"
	ClassIndirect Classification = "indirect"
)

// Plan is the working state of one Ask call. It is discarded when the call
// returns.
type Plan struct {
	Query          string
	Classification Classification
	SubQueries     []SubQuery
	Calculations   []Calculation
	Steps          []Step
	// Notes collects degradations that must reach the reasoning.
	Notes      []string
	Incomplete bool
}

type SubQuery struct {
	Question string
	Evidence []retrieval.Passage
	Insights map[string]retrieval.FilingInsight
	Answer   string
	// Insufficient is set when retrieval found nothing, so Answer is a
	// disclosure rather than a finding.
	Insufficient bool
	Resolved     bool
}

// Calculation is a derived figure computed by the calculator.
type Calculation struct {
	Label      string
	Expression string
	Result     string
	Failed     bool
}

func (c Calculation) describe() string {
	label := c.Label
	if label == "" {
		label = "derived figure"
	}
	if c.Failed {
		return fmt.Sprintf("The calculation for %s (%s) failed: %s.", label, c.Expression, c.Result)
	}
	return fmt.Sprintf("Derived %s = %s = %s (calculated, not quoted from the filings).", label, c.Expression, c.Result)
}
