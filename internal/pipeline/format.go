package pipeline

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/antinvestor/flowforge/internal/llm"
)

// FormatArtifact parses the synthesis call's output into the final workflow
// artifact and renders a safely escaped summary.
func FormatArtifact(resp *llm.GenerateResult, spec *StageSpec) (*ArtifactResult, *ErrorEnvelope) {
	if spec == nil {
		return nil, &ErrorEnvelope{
			Stage:     StageFormatWorkflow,
			Message:   "prepared context is unavailable",
			Timestamp: time.Now(),
		}
	}

	if resp != nil && resp.Error != nil {
		env := specEnvelope(StageSynthesis,
			fmt.Sprintf("synthesis call failed: %s", resp.Error.Message), spec)
		env.Extra = map[string]any{"upstream_error": resp.Error}
		return nil, env
	}

	text, ok := resp.FirstText()
	if !ok {
		return nil, specEnvelope(StageSynthesisParse,
			"synthesis call returned no response text", spec)
	}

	parsed, err := ExtractJSON(text)
	if err != nil {
		env := specEnvelope(StageSynthesisParse,
			fmt.Sprintf("synthesis response is not valid JSON: %v", err), spec)
		env.Extra = map[string]any{"raw_preview": TextPreview(text, architectPreviewLimit)}
		return nil, env
	}

	workflow, structuralErr := buildWorkflow(parsed)
	if structuralErr != "" {
		return nil, specEnvelope(StageSynthesisParse, structuralErr, spec)
	}

	serialized, _ := json.Marshal(workflow)

	return &ArtifactResult{
		Success:             true,
		ClientEmail:         spec.ClientEmail,
		ClientBrief:         spec.ClientBrief,
		Source:              spec.Source,
		Workflow:            workflow,
		WorkflowSummary:     workflowSummaryHTML(workflow, spec.Source),
		QAValidationPending: true,
		Metadata: ArtifactMetadata{
			NodeCount:       len(workflow.Nodes),
			ConnectionCount: len(workflow.Connections),
			SizeBytes:       len(serialized),
		},
		Timestamp: time.Now(),
	}, nil
}

// buildWorkflow applies the structural guards to a parsed workflow object.
// It returns an empty message on success.
func buildWorkflow(parsed map[string]any) (*Workflow, string) {
	nodesVal, ok := parsed["nodes"].([]any)
	if !ok {
		return nil, "missing nodes array"
	}
	if len(nodesVal) == 0 {
		return nil, "workflow has no nodes"
	}

	connections, ok := parsed["connections"].(map[string]any)
	if !ok {
		return nil, "missing connections object"
	}

	nodes := make([]map[string]any, 0, len(nodesVal))
	for _, nv := range nodesVal {
		if node, isMap := nv.(map[string]any); isMap {
			nodes = append(nodes, node)
		} else {
			nodes = append(nodes, map[string]any{})
		}
	}

	name, _ := parsed["name"].(string)
	if name == "" {
		name = "Generated Workflow"
	}

	return &Workflow{
		Name:        name,
		Nodes:       nodes,
		Connections: connections,
		Raw:         parsed,
	}, ""
}

// workflowSummaryHTML renders the client-facing summary. The workflow name
// embeds the original untrusted brief by way of the LLM, so every dynamic
// value is escaped.
func workflowSummaryHTML(w *Workflow, source Source) string {
	return fmt.Sprintf(
		"<h2>Your workflow is ready</h2>"+
			"<p><strong>%s</strong> was generated from your %s request.</p>"+
			"<p>It contains %d nodes and %d connection groups.</p>",
		EscapeHTML(w.Name),
		EscapeHTML(string(source)),
		len(w.Nodes),
		len(w.Connections),
	)
}

func specEnvelope(stage, message string, spec *StageSpec) *ErrorEnvelope {
	return &ErrorEnvelope{
		Stage:       stage,
		Message:     message,
		ClientEmail: spec.ClientEmail,
		Source:      spec.Source,
		Timestamp:   time.Now(),
	}
}
