package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antinvestor/flowforge/internal/llm"
)

func qaInputFixture() *QAInput {
	return AttachKnowledge(&ArtifactResult{
		Success:     true,
		ClientEmail: "client@example.com",
		ClientBrief: "Sync Shopify orders to Airtable daily",
		Source:      SourceForm,
		Workflow:    workflowFixture(),
	}, LoadKnowledgeBase())
}

func TestReportValidation_NilInput(t *testing.T) {
	report := ReportValidation(textResult(`{"valid":true}`), nil)

	require.NotNil(t, report)
	assert.True(t, report.Failed)
	assert.NotEmpty(t, report.HTML)
}

func TestReportValidation_UpstreamError(t *testing.T) {
	resp := &llm.GenerateResult{Error: &llm.APIError{Message: `<b>"broken"</b>`}}
	report := ReportValidation(resp, qaInputFixture())

	assert.True(t, report.Failed)
	assert.NotContains(t, report.HTML, "<b>")
	assert.Contains(t, report.HTML, "&lt;b&gt;")
	assert.Equal(t, workflowFixture().Name, report.FinalWorkflow.Name)
}

func TestReportValidation_MissingText(t *testing.T) {
	report := ReportValidation(&llm.GenerateResult{}, qaInputFixture())

	assert.True(t, report.Failed)
	assert.Contains(t, report.HTML, "no response text")
}

func TestReportValidation_ParseFailure(t *testing.T) {
	report := ReportValidation(textResult("here is my review: {valid: yes <script>}"), qaInputFixture())

	assert.True(t, report.Failed)
	assert.NotEmpty(t, report.ParseError)
	assert.NotContains(t, report.HTML, "<script>")
	assert.Contains(t, report.HTML, "&lt;script&gt;")
}

func TestReportValidation_CoercionDefaults(t *testing.T) {
	// Everything about the parsed object is wrong-typed except being an object.
	report := ReportValidation(textResult(`{"valid":"yes","confidence":"high","issues":"none","summary":7}`), qaInputFixture())

	assert.False(t, report.Failed)
	assert.True(t, report.Complete)
	assert.False(t, report.Valid, "valid must be strictly boolean true")
	assert.InDelta(t, 0.95, report.Confidence, 1e-9)
	assert.Empty(t, report.Issues)
	assert.Equal(t, defaultSummary, report.Summary)
}

func TestReportValidation_ObjectIssuesStringified(t *testing.T) {
	text := `{"valid":false,"confidence":0.4,"issues":["plain issue",{"rule":"<script>","detail":"x"}],"summary":"needs work"}`
	report := ReportValidation(textResult(text), qaInputFixture())

	require.Len(t, report.Issues, 2)
	assert.Equal(t, "plain issue", report.Issues[0])
	assert.Contains(t, report.Issues[1], "rule")
	// The stringified issue keeps raw characters; escaping is the
	// renderer's job alone.
	assert.Contains(t, report.Issues[1], "<script>")
	assert.NotContains(t, report.Issues[1], `<`)

	assert.Contains(t, report.HTML, "&lt;script&gt;")
	assert.NotContains(t, report.HTML, "<script>")
	assert.Contains(t, report.HTML, "40.0%")
}

func TestReportValidation_SelectsCorrectedWorkflow(t *testing.T) {
	text := `{
		"valid": false,
		"confidence": 0.8,
		"issues": ["duplicate node ids"],
		"summary": "fixed the duplicate id",
		"correctedWorkflow": {
			"name": "Order Sync v2",
			"nodes": [{"id":"1","name":"Trigger","type":"webhook","typeVersion":1,"position":[0,0]}],
			"connections": {}
		}
	}`
	report := ReportValidation(textResult(text), qaInputFixture())

	assert.True(t, report.Complete)
	assert.True(t, report.Corrected)
	assert.Equal(t, "Order Sync v2", report.FinalWorkflow.Name)
}

func TestReportValidation_IgnoresMalformedCorrection(t *testing.T) {
	text := `{"valid":true,"confidence":0.9,"summary":"ok","correctedWorkflow":{"nodes":[]}}`
	report := ReportValidation(textResult(text), qaInputFixture())

	assert.False(t, report.Corrected)
	assert.Equal(t, workflowFixture().Name, report.FinalWorkflow.Name)
}

func TestReportValidation_RunsStructuralRules(t *testing.T) {
	in := qaInputFixture()
	in.Workflow.Connections = map[string]any{
		"Trigger": map[string]any{"main": []any{[]any{map[string]any{"node": "Ghost"}}}},
	}

	report := ReportValidation(textResult(`{"valid":true,"confidence":1,"summary":"ok"}`), in)

	require.NotEmpty(t, report.RuleFindings)
	var connectionFinding *RuleFinding
	for i := range report.RuleFindings {
		if report.RuleFindings[i].RuleID == RuleValidConnections {
			connectionFinding = &report.RuleFindings[i]
		}
	}
	require.NotNil(t, connectionFinding)
	assert.False(t, connectionFinding.Passed)
	assert.Contains(t, report.HTML, string(RuleValidConnections))
}

func TestReportValidation_ReportHTMLTable(t *testing.T) {
	report := ReportValidation(textResult(`{"valid":true,"confidence":0.875,"summary":"looks good"}`), qaInputFixture())

	assert.Contains(t, report.HTML, "PASSED")
	assert.Contains(t, report.HTML, "87.5%")
	assert.Contains(t, report.HTML, "looks good")
}
