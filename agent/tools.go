package agent

import "fmt"

// ToolKind is the closed set of tools the orchestrator can invoke.
type ToolKind int

const (
	ToolClassify ToolKind = iota + 1
	ToolGeneric
	ToolDecompose
	ToolRetrieve
	ToolSynthesize
	ToolCalculate
)

var toolNames = map[ToolKind]string{
	ToolClassify:   "classify",
	ToolGeneric:    "generic",
	ToolDecompose:  "decompose",
	ToolRetrieve:   "retrieve",
	ToolSynthesize: "synthesize",
	ToolCalculate:  "calculate",
}

func (k ToolKind) String() string {
	if name, ok := toolNames[k]; ok {
		return name
	}
	return fmt.Sprintf("tool(%d)", int(k))
}

func (k ToolKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Step records one tool invocation.
type Step struct {
	Tool   ToolKind `json:"tool"`
	Input  string   `json:"input"`
	Reason string   `json:"reason"`
}
