package pipeline

import (
	"fmt"
	"strings"
	"time"
)

// supportEmail receives error notifications whenever a client address
// cannot be validated.
const supportEmail = "support@flowforge.io"

const defaultErrorMessage = "An unexpected problem prevented us from generating your workflow."

// FailureReport is the terminal error notification payload.
type FailureReport struct {
	Failed       bool           `json:"error"`
	ClientEmail  string         `json:"client_email"`
	Subject      string         `json:"subject"`
	EmailHTML    string         `json:"email_html"`
	Source       Source         `json:"source"`
	Timestamp    time.Time      `json:"timestamp"`
	ErrorDetails []ErrorDetail  `json:"error_details,omitempty"`
	Critical     bool           `json:"critical_error,omitempty"`
	Original     *ErrorEnvelope `json:"original_error,omitempty"`
}

// ReportError renders the user-facing error report for any stage failure.
// This is the terminal stage and must never exit abnormally: an internal
// failure degrades to a fixed, already-safe fragment addressed to support.
func ReportError(env *ErrorEnvelope, normalized *NormalizedRequest) (report *FailureReport) {
	defer func() {
		if r := recover(); r != nil {
			report = fallbackReport()
		}
	}()

	stage := "unknown"
	message := defaultErrorMessage
	source := SourceUnknown
	email := supportEmail
	var details []ErrorDetail

	if env != nil {
		if env.Stage != "" {
			stage = env.Stage
		}
		if env.Message != "" {
			message = env.Message
		}
		if env.Source != "" {
			source = env.Source
		}
		if env.ClientEmail != "" {
			email = env.ClientEmail
		}
		details = env.Errors
	}

	if normalized != nil {
		if message == defaultErrorMessage && normalized.ErrorMessage != "" {
			message = normalized.ErrorMessage
		}
		if env == nil || env.Source == "" {
			if normalized.Source != "" {
				source = normalized.Source
			}
		}
		if (env == nil || env.ClientEmail == "") && normalized.ClientEmail != "" {
			email = normalized.ClientEmail
		}
		if len(details) == 0 {
			details = normalized.Errors
		}
	}

	// Never forward an unvalidated address into an outbound notification.
	if !ValidEmail(email) {
		email = supportEmail
	}

	return &FailureReport{
		Failed:       true,
		ClientEmail:  SanitizeEmail(email),
		Subject:      "We could not process your workflow request",
		EmailHTML:    errorReportHTML(stage, message, source, details),
		Source:       source,
		Timestamp:    time.Now(),
		ErrorDetails: details,
		Original:     env,
	}
}

// errorReportHTML renders the error notification body. Every dynamic value
// is escaped before interpolation.
func errorReportHTML(stage, message string, source Source, details []ErrorDetail) string {
	var b strings.Builder

	b.WriteString("<h2>We could not process your request</h2>")
	b.WriteString("<table>")
	fmt.Fprintf(&b, "<tr><td>Stage</td><td>%s</td></tr>", EscapeHTML(stage))
	fmt.Fprintf(&b, "<tr><td>Source</td><td>%s</td></tr>", EscapeHTML(string(source)))
	b.WriteString("</table>")

	fmt.Fprintf(&b, "<p>%s</p>", EscapeHTML(message))

	if len(details) > 0 {
		b.WriteString("<ul>")
		for _, d := range details {
			fmt.Fprintf(&b, "<li>[%s] %s (%s)</li>",
				EscapeHTML(string(d.Code)),
				EscapeHTML(d.Message),
				EscapeHTML(string(d.Severity)),
			)
		}
		b.WriteString("</ul>")
	}

	b.WriteString(nextStepsHTML)
	return b.String()
}

// nextStepsHTML is static guidance appended to every error report.
const nextStepsHTML = "<h3>Next steps</h3>" +
	"<p>Reply to this message with a brief of at least ten characters describing " +
	"what you want automated, and we will try again. If the problem persists, " +
	"contact " + supportEmail + ".</p>"

// fallbackReport is the minimal, hard-coded report used when rendering the
// normal report fails. Its content contains no dynamic values and is
// therefore safe by construction.
func fallbackReport() *FailureReport {
	return &FailureReport{
		Failed:      true,
		Critical:    true,
		ClientEmail: supportEmail,
		Subject:     "Workflow request failed",
		EmailHTML: "<h2>We could not process your request</h2>" +
			"<p>An internal error occurred while preparing this report. " +
			"The team has been notified.</p>",
		Source:    SourceError,
		Timestamp: time.Now(),
	}
}
