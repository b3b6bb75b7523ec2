package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/antinvestor/flowforge/internal/llm"
)

const (
	// qaPreviewLimit caps the raw-response preview embedded in a failed
	// QA report.
	qaPreviewLimit = 500

	// defaultConfidence is assumed when the reviewer omits or mangles the
	// confidence field.
	defaultConfidence = 0.95

	defaultSummary = "No summary provided by the reviewer."
)

// RuleFinding is the outcome of one structural rule check.
type RuleFinding struct {
	RuleID      RuleID   `json:"rule_id"`
	Description string   `json:"description"`
	Severity    Severity `json:"severity"`
	Passed      bool     `json:"passed"`
}

// QAReport is the Validation Reporter's output. It is always renderable:
// every failure mode still yields a populated HTML report.
type QAReport struct {
	ClientEmail   string         `json:"client_email"`
	ClientBrief   string         `json:"client_brief"`
	Source        Source         `json:"source"`
	FinalWorkflow *Workflow      `json:"final_workflow_json"`
	HTML          string         `json:"qa_html"`
	Failed        bool           `json:"qa_validation_failed"`
	Complete      bool           `json:"qa_validation_complete"`
	ParseError    string         `json:"qa_parse_error,omitempty"`
	Valid         bool           `json:"valid"`
	Confidence    float64        `json:"confidence"`
	Issues        []string       `json:"issues"`
	Summary       string         `json:"summary"`
	RuleFindings  []RuleFinding  `json:"rule_findings,omitempty"`
	Corrected     bool           `json:"corrected"`
	Timestamp     time.Time      `json:"timestamp"`
}

// ReportValidation parses the review call's output, runs the structural
// rules, renders the report and selects the final workflow. It never fails
// outright: any degradation is reflected in the report itself.
func ReportValidation(resp *llm.GenerateResult, in *QAInput) *QAReport {
	if in == nil || in.KB == nil {
		return failedReport(in, "", "the validation knowledge base was unavailable")
	}

	report := &QAReport{
		ClientEmail:   in.ClientEmail,
		ClientBrief:   in.ClientBrief,
		Source:        in.Source,
		FinalWorkflow: in.Workflow,
		Confidence:    defaultConfidence,
		Issues:        []string{},
		Summary:       defaultSummary,
		RuleFindings:  runRules(in.Workflow, in.KB),
		Timestamp:     time.Now(),
	}

	if resp == nil || resp.Error != nil {
		message := "the reviewer did not respond"
		if resp != nil && resp.Error != nil {
			message = fmt.Sprintf("reviewer call failed: %s", resp.Error.Message)
		}
		report.Failed = true
		report.HTML = qaFailureHTML(message, "", report)
		return report
	}

	text, ok := resp.FirstText()
	if !ok {
		report.Failed = true
		report.HTML = qaFailureHTML("the reviewer returned no response text", "", report)
		return report
	}

	parsed, err := ExtractJSON(text)
	if err != nil {
		report.Failed = true
		report.ParseError = err.Error()
		report.HTML = qaFailureHTML("the reviewer response could not be parsed",
			TextPreview(text, qaPreviewLimit), report)
		return report
	}

	// Defensive coercion: nothing about the parsed object is trusted.
	report.Valid = parsed["valid"] == true
	if confidence, isNumber := parsed["confidence"].(float64); isNumber {
		report.Confidence = confidence
	}
	if issues, isArray := parsed["issues"].([]any); isArray {
		report.Issues = stringifyIssues(issues)
	}
	if summary, isString := parsed["summary"].(string); isString && strings.TrimSpace(summary) != "" {
		report.Summary = summary
	}

	if corrected := correctedWorkflow(parsed); corrected != nil {
		report.FinalWorkflow = corrected
		report.Corrected = true
		report.RuleFindings = runRules(corrected, in.KB)
	}

	report.Complete = true
	report.HTML = qaReportHTML(report)
	return report
}

// runRules evaluates every knowledge-base rule against the workflow.
func runRules(w *Workflow, kb *KnowledgeBase) []RuleFinding {
	if w == nil || kb == nil {
		return nil
	}
	findings := make([]RuleFinding, 0, len(kb.Rules))
	for _, rule := range kb.Rules {
		findings = append(findings, RuleFinding{
			RuleID:      rule.ID,
			Description: rule.Description,
			Severity:    rule.Severity,
			Passed:      rule.Check(w),
		})
	}
	return findings
}

// correctedWorkflow extracts the reviewer's corrected workflow when present
// and structurally sound; a malformed correction is ignored in favor of the
// original artifact.
func correctedWorkflow(parsed map[string]any) *Workflow {
	for _, key := range []string{"correctedWorkflow", "correctedArtifact"} {
		obj, ok := parsed[key].(map[string]any)
		if !ok {
			continue
		}
		if w, structuralErr := buildWorkflow(obj); structuralErr == "" {
			return w
		}
	}
	return nil
}

// stringifyIssues converts issue entries to strings. Entries may themselves
// be objects; those are serialized before use. Serialization keeps raw
// angle brackets so the HTML renderer is the single place escaping happens.
func stringifyIssues(issues []any) []string {
	out := make([]string, 0, len(issues))
	for _, issue := range issues {
		if s, isString := issue.(string); isString {
			out = append(out, s)
			continue
		}
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(issue); err != nil {
			out = append(out, fmt.Sprintf("%v", issue))
			continue
		}
		out = append(out, strings.TrimSuffix(buf.String(), "\n"))
	}
	return out
}

func failedReport(in *QAInput, preview, message string) *QAReport {
	report := &QAReport{
		Failed:     true,
		Confidence: defaultConfidence,
		Issues:     []string{},
		Summary:    defaultSummary,
		Timestamp:  time.Now(),
	}
	if in != nil {
		report.ClientEmail = in.ClientEmail
		report.ClientBrief = in.ClientBrief
		report.Source = in.Source
		report.FinalWorkflow = in.Workflow
	}
	report.HTML = qaFailureHTML(message, preview, report)
	return report
}

// qaReportHTML renders the validation report table, the issue list and the
// summary. Every dynamic string passes through EscapeHTML.
func qaReportHTML(r *QAReport) string {
	var b strings.Builder

	status := "NEEDS ATTENTION"
	if r.Valid {
		status = "PASSED"
	}

	b.WriteString("<h2>Validation report</h2>")
	b.WriteString("<table>")
	fmt.Fprintf(&b, "<tr><td>Status</td><td>%s</td></tr>", EscapeHTML(status))
	fmt.Fprintf(&b, "<tr><td>Confidence</td><td>%.1f%%</td></tr>", r.Confidence*100)
	fmt.Fprintf(&b, "<tr><td>Issues</td><td>%d</td></tr>", len(r.Issues))
	fmt.Fprintf(&b, "<tr><td>Source</td><td>%s</td></tr>", EscapeHTML(string(r.Source)))
	b.WriteString("</table>")

	if len(r.Issues) > 0 {
		b.WriteString("<ul>")
		for _, issue := range r.Issues {
			fmt.Fprintf(&b, "<li>%s</li>", EscapeHTML(issue))
		}
		b.WriteString("</ul>")
	}

	if failed := failedFindings(r.RuleFindings); len(failed) > 0 {
		b.WriteString("<h3>Structural checks</h3><ul>")
		for _, finding := range failed {
			fmt.Fprintf(&b, "<li>%s: %s</li>",
				EscapeHTML(string(finding.RuleID)), EscapeHTML(finding.Description))
		}
		b.WriteString("</ul>")
	}

	fmt.Fprintf(&b, "<p>%s</p>", EscapeHTML(r.Summary))
	return b.String()
}

func qaFailureHTML(message, preview string, r *QAReport) string {
	var b strings.Builder
	b.WriteString("<h2>Validation report</h2>")
	fmt.Fprintf(&b, "<p>Automated validation could not be completed: %s.</p>", EscapeHTML(message))
	if preview != "" {
		fmt.Fprintf(&b, "<pre>%s</pre>", EscapeHTML(preview))
	}
	if failed := failedFindings(r.RuleFindings); len(failed) > 0 {
		b.WriteString("<h3>Structural checks</h3><ul>")
		for _, finding := range failed {
			fmt.Fprintf(&b, "<li>%s: %s</li>",
				EscapeHTML(string(finding.RuleID)), EscapeHTML(finding.Description))
		}
		b.WriteString("</ul>")
	}
	b.WriteString("<p>The generated workflow is attached unreviewed.</p>")
	return b.String()
}

func failedFindings(findings []RuleFinding) []RuleFinding {
	var failed []RuleFinding
	for _, f := range findings {
		if !f.Passed {
			failed = append(failed, f)
		}
	}
	return failed
}
