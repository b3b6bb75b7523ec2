package llm

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

// Function identifies a generation function.
type Function string

// Generation functions in pipeline order.
const (
	FunctionArchitect  Function = "architect"
	FunctionSynthesize Function = "synthesize"
	FunctionReview     Function = "review"
)

// ArchitectInput is the input for the architect call.
type ArchitectInput struct {
	ClientBrief string
	Source      string
}

// SynthesisInput is the input for the synthesis call.
type SynthesisInput struct {
	ArchitectSpecJSON string
	ClientBrief       string
}

// ReviewInput is the input for the review call.
type ReviewInput struct {
	WorkflowJSON  string
	RuleSummaries []string
	BestPractices []string
}

// PromptBuilder builds prompts for generation functions.
type PromptBuilder struct {
	templates map[Function]*template.Template
}

// NewPromptBuilder creates a new prompt builder.
func NewPromptBuilder() (*PromptBuilder, error) {
	pb := &PromptBuilder{
		templates: make(map[Function]*template.Template),
	}

	templates := map[Function]string{
		FunctionArchitect:  architectTemplate,
		FunctionSynthesize: synthesizeTemplate,
		FunctionReview:     reviewTemplate,
	}

	for fn, tmpl := range templates {
		t, err := template.New(string(fn)).Funcs(templateFuncs).Parse(tmpl)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", fn, err)
		}
		pb.templates[fn] = t
	}

	return pb, nil
}

// Build builds a prompt for the given function and data.
func (pb *PromptBuilder) Build(fn Function, data any) (string, error) {
	t, ok := pb.templates[fn]
	if !ok {
		return "", fmt.Errorf("unknown function: %s", fn)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute template: %w", err)
	}

	return buf.String(), nil
}

// systemInstruction returns the system instruction for a function.
func systemInstruction(fn Function) string {
	switch fn {
	case FunctionArchitect:
		return "You are an expert automation architect. Respond with a single JSON object and nothing else."
	case FunctionSynthesize:
		return "You are an expert workflow engineer. Respond with a single JSON object describing the workflow and nothing else."
	case FunctionReview:
		return "You are a meticulous workflow reviewer. Respond with a single JSON object and nothing else."
	default:
		return ""
	}
}

// templateFuncs provides template helper functions.
//
//nolint:gochecknoglobals // Template functions are inherently global
var templateFuncs = template.FuncMap{
	"join": strings.Join,
}

const architectTemplate = `A client submitted the following automation brief via {{.Source}}:

{{.ClientBrief}}

Design the automation as a workflow specification. Describe the trigger, the
data transformations, and the destination systems. Return a JSON object with
the fields "intent", "trigger", "steps" (array), "systems" (array) and
"assumptions" (array).`

const synthesizeTemplate = `Using this workflow specification:

{{.ArchitectSpecJSON}}

and the original client brief:

{{.ClientBrief}}

produce the complete workflow description. Return a JSON object with a "name"
string, a non-empty "nodes" array (each node has "id", "name", "type",
"typeVersion", "position" and "parameters") and a "connections" object keyed
by source node, where each entry names its target via a "node" field.`

const reviewTemplate = `Review this generated workflow:

{{.WorkflowJSON}}

Structural rules:
{{range .RuleSummaries}}- {{.}}
{{end}}
Best practices:
{{range .BestPractices}}- {{.}}
{{end}}
Return a JSON object with "valid" (boolean), "confidence" (0 to 1), "issues"
(array of strings), "summary" (string) and, only when a correction is needed,
"correctedWorkflow" (the full corrected workflow object).`
