package pipeline

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportError_NilEverything(t *testing.T) {
	report := ReportError(nil, nil)

	require.NotNil(t, report)
	assert.True(t, report.Failed)
	assert.Equal(t, supportEmail, report.ClientEmail)
	assert.NotEmpty(t, report.Subject)
	assert.NotEmpty(t, report.EmailHTML)

	// The report must serialize cleanly for the notification sender.
	_, err := json.Marshal(report)
	require.NoError(t, err)
}

func TestReportError_EnvelopeFields(t *testing.T) {
	env := &ErrorEnvelope{
		Stage:       StageArchitectParse,
		Message:     "architect response is not valid JSON",
		ClientEmail: "client@example.com",
		Source:      SourceEmail,
	}

	report := ReportError(env, nil)

	assert.Equal(t, "client@example.com", report.ClientEmail)
	assert.Equal(t, SourceEmail, report.Source)
	assert.Contains(t, report.EmailHTML, StageArchitectParse)
	assert.Contains(t, report.EmailHTML, "not valid JSON")
	assert.Equal(t, env, report.Original)
}

func TestReportError_FallsBackToNormalized(t *testing.T) {
	normalized := &NormalizedRequest{
		ClientEmail: "fallback@example.com",
		Source:      SourceForm,
		Errors: []ErrorDetail{
			{Code: CodeMissingClientBrief, Message: "brief too short", Severity: SeverityCritical},
		},
	}

	report := ReportError(&ErrorEnvelope{Stage: StageSynthesis, Message: "synthesis failed"}, normalized)

	assert.Equal(t, "fallback@example.com", report.ClientEmail)
	assert.Equal(t, SourceForm, report.Source)
	require.Len(t, report.ErrorDetails, 1)
	assert.Contains(t, report.EmailHTML, "MISSING_CLIENT_BRIEF")
	assert.Contains(t, report.EmailHTML, "brief too short")
}

func TestReportError_NormalizedMessageUsedWithoutEnvelope(t *testing.T) {
	normalized := &NormalizedRequest{
		ClientEmail:  "client@example.com",
		Source:       SourceForm,
		Failed:       true,
		ErrorMessage: "submitted email address is not valid; client brief is missing or shorter than 10 characters",
		Errors: []ErrorDetail{
			{Code: CodeInvalidEmailFormat, Message: "submitted email address is not valid", Severity: SeverityCritical},
		},
	}

	report := ReportError(nil, normalized)

	assert.Contains(t, report.EmailHTML, "submitted email address is not valid")
	assert.NotContains(t, report.EmailHTML, defaultErrorMessage)

	// The envelope's message still wins when one is present.
	env := &ErrorEnvelope{Stage: StageSynthesis, Message: "synthesis failed"}
	report = ReportError(env, normalized)
	assert.Contains(t, report.EmailHTML, "synthesis failed")
}

func TestReportError_InvalidEmailSubstituted(t *testing.T) {
	env := &ErrorEnvelope{
		Stage:       StageInputValidation,
		Message:     "invalid input",
		ClientEmail: "<script>not-an-email</script>",
	}

	report := ReportError(env, nil)
	assert.Equal(t, supportEmail, report.ClientEmail)
}

func TestReportError_EscapesDynamicValues(t *testing.T) {
	env := &ErrorEnvelope{
		Stage:   `<img src=x>`,
		Message: `"quoted" & <b>bold</b>`,
		Errors: []ErrorDetail{
			{Code: "X<Y", Message: "bad <input>", Severity: "severe'"},
		},
	}

	report := ReportError(env, nil)

	assert.NotContains(t, report.EmailHTML, "<img")
	assert.NotContains(t, report.EmailHTML, "<b>")
	assert.NotContains(t, report.EmailHTML, "<input>")
	assert.Contains(t, report.EmailHTML, "&lt;img src=x&gt;")
	assert.Contains(t, report.EmailHTML, "&quot;quoted&quot; &amp; &lt;b&gt;bold&lt;/b&gt;")
	assert.Contains(t, report.EmailHTML, "&#39;")
}

func TestReportError_NextStepsAlwaysPresent(t *testing.T) {
	report := ReportError(&ErrorEnvelope{Stage: StageSynthesis, Message: "boom"}, nil)
	assert.Contains(t, report.EmailHTML, "Next steps")
	assert.Contains(t, report.EmailHTML, supportEmail)
}

func TestFallbackReport_SafeByConstruction(t *testing.T) {
	report := fallbackReport()

	assert.True(t, report.Failed)
	assert.True(t, report.Critical)
	assert.Equal(t, supportEmail, report.ClientEmail)
	assert.NotContains(t, report.EmailHTML, "%s")
}
