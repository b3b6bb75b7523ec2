package pipeline

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"
)

// minBriefLength is the minimum number of trimmed characters a usable
// automation brief must carry.
const minBriefLength = 10

// unknownSenderEmail is the sentinel address recorded when a degraded
// extraction finds no usable sender.
const unknownSenderEmail = "unknown@example.com"

var (
	briefBlock = regexp.MustCompile(`(?s)\[BRIEF\](.*?)\[END\]`)
	briefLine  = regexp.MustCompile(`(?im)^\s*brief:\s*(.+)$`)
)

// signaturePrefixes mark the start of a trailing email signature.
var signaturePrefixes = []string{
	"best regards",
	"kind regards",
	"regards,",
	"sent from",
	"thanks,",
	"cheers,",
}

// Normalize classifies and validates a raw inbound request. It never
// panics outward: any internal failure is converted into a critical
// UNEXPECTED_ERROR result so the caller always receives a well-formed
// NormalizedRequest.
func Normalize(raw any) (out NormalizedRequest) {
	defer func() {
		if r := recover(); r != nil {
			out = NormalizedRequest{
				Source: SourceError,
				Failed: true,
				Errors: []ErrorDetail{{
					Code:     CodeUnexpectedError,
					Message:  fmt.Sprintf("unexpected error during normalization: %v", r),
					Severity: SeverityCritical,
				}},
				ErrorMessage: fmt.Sprintf("unexpected error during normalization: %v", r),
				Timestamp:    time.Now(),
			}
		}
	}()

	out = NormalizedRequest{
		Source:    SourceUnknown,
		Errors:    []ErrorDetail{},
		Timestamp: time.Now(),
		Metadata:  map[string]any{},
	}

	obj, ok := raw.(map[string]any)
	if raw == nil || !ok {
		out.Source = SourceError
		out.appendError(ErrorDetail{
			Code:     CodeInvalidInput,
			Message:  "input payload is missing or not an object",
			Severity: SeverityCritical,
		})
		out.aggregate()
		return out
	}

	switch {
	case isEmailPayload(obj):
		out.normalizeEmail(obj)
	case isFormPayload(obj):
		out.normalizeForm(obj)
	default:
		out.normalizeUnknown(obj)
	}

	out.aggregate()
	return out
}

// isEmailPayload reports whether the payload carries the mailbox trigger
// shape: message id, thread id and label set all present.
func isEmailPayload(obj map[string]any) bool {
	_, hasID := obj["id"]
	_, hasThread := obj["threadId"]
	_, hasLabels := obj["labelIds"]
	return hasID && hasThread && hasLabels
}

// isFormPayload reports whether the payload carries either form field.
func isFormPayload(obj map[string]any) bool {
	_, hasBrief := obj["Client Brief"]
	_, hasEmail := obj["Your Email"]
	return hasBrief || hasEmail
}

func (n *NormalizedRequest) normalizeEmail(obj map[string]any) {
	n.Source = SourceEmail

	sender := nestedString(obj, "headers", "from")
	if sender == "" {
		sender = stringField(obj, "From")
	}

	body := stringField(obj, "body")
	if body == "" {
		body = stringField(obj, "snippet")
	}

	subject := stringField(obj, "subject")
	if subject == "" {
		subject = stringField(obj, "Subject")
	}

	if !ValidEmail(sender) {
		n.appendError(ErrorDetail{
			Code:     CodeInvalidEmailAddress,
			Message:  "sender address is missing or not a valid email address",
			Severity: SeverityCritical,
			Field:    "from",
		})
	}

	brief := extractBrief(body, subject)
	if trimmedLen(brief) < minBriefLength {
		n.appendError(ErrorDetail{
			Code:     CodeInvalidBriefLength,
			Message:  fmt.Sprintf("brief must be at least %d characters", minBriefLength),
			Severity: SeverityCritical,
			Field:    "body",
			Context:  map[string]any{"length": trimmedLen(brief)},
		})
	}

	n.ClientBrief = SanitizeText(brief)
	n.ClientEmail = SanitizeEmail(sender)
	n.Metadata["message_id"] = stringField(obj, "id")
	n.Metadata["thread_id"] = stringField(obj, "threadId")
	if subject != "" {
		n.Metadata["subject"] = SanitizeText(subject)
	}
	if labels, ok := obj["labelIds"].([]any); ok {
		n.Metadata["label_count"] = len(labels)
	}
}

func (n *NormalizedRequest) normalizeForm(obj map[string]any) {
	n.Source = SourceForm

	email := stringField(obj, "Your Email")
	brief := stringField(obj, "Client Brief")

	if !ValidEmail(email) {
		n.appendError(ErrorDetail{
			Code:     CodeInvalidEmailFormat,
			Message:  "submitted email address is not valid",
			Severity: SeverityCritical,
			Field:    "Your Email",
		})
	}

	if trimmedLen(brief) < minBriefLength {
		n.appendError(ErrorDetail{
			Code:     CodeMissingClientBrief,
			Message:  fmt.Sprintf("client brief is missing or shorter than %d characters", minBriefLength),
			Severity: SeverityCritical,
			Field:    "Client Brief",
			Context:  map[string]any{"length": trimmedLen(brief)},
		})
	}

	n.ClientBrief = SanitizeText(brief)
	n.ClientEmail = SanitizeEmail(email)
}

// normalizeUnknown records the unrecognized shape as a critical error but
// still attempts a best-effort extraction so the error report can show the
// client what was received. The degraded values never pass validation.
func (n *NormalizedRequest) normalizeUnknown(obj map[string]any) {
	n.Source = SourceUnknown

	fields := make([]string, 0, len(obj))
	for k := range obj {
		fields = append(fields, k)
	}
	sort.Strings(fields)

	n.appendError(ErrorDetail{
		Code:     CodeUnknownInputSource,
		Message:  "input payload matches neither the email nor the form shape",
		Severity: SeverityCritical,
		Context:  map[string]any{"available_fields": fields},
	})

	brief := firstStringField(obj, "Client Brief", "brief", "text", "body", "message")
	if brief == "" {
		if serialized, err := json.Marshal(obj); err == nil {
			brief = string(serialized)
		}
	}

	email := firstStringField(obj, "Your Email", "email", "from")
	if email == "" {
		email = unknownSenderEmail
	}

	n.ClientBrief = SanitizeText(brief)
	n.ClientEmail = SanitizeEmail(email)
}

// aggregate enforces the error invariant after a branch has run.
func (n *NormalizedRequest) aggregate() {
	if len(n.Errors) == 0 {
		return
	}
	n.Failed = true

	var critical []string
	for _, e := range n.Errors {
		if e.Severity == SeverityCritical {
			critical = append(critical, e.Message)
		}
	}
	n.ErrorMessage = strings.Join(critical, "; ")
}

func (n *NormalizedRequest) appendError(detail ErrorDetail) {
	n.Errors = append(n.Errors, detail)
}

// extractBrief pulls the automation brief out of an email body, preferring
// an explicit [BRIEF]...[END] block, then a Brief: line, then the body with
// any trailing signature stripped, then the subject line.
func extractBrief(body, subject string) string {
	if m := briefBlock.FindStringSubmatch(body); m != nil {
		return strings.TrimSpace(m[1])
	}

	if m := briefLine.FindStringSubmatch(body); m != nil {
		return strings.TrimSpace(m[1])
	}

	brief := stripSignature(body)
	if strings.TrimSpace(brief) == "" {
		return strings.TrimSpace(subject)
	}
	return brief
}

// stripSignature drops everything from the first signature marker onward.
func stripSignature(body string) string {
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "--" {
			return strings.TrimSpace(strings.Join(lines[:i], "\n"))
		}
		lower := strings.ToLower(trimmed)
		for _, prefix := range signaturePrefixes {
			if strings.HasPrefix(lower, prefix) {
				return strings.TrimSpace(strings.Join(lines[:i], "\n"))
			}
		}
	}
	return strings.TrimSpace(body)
}

func trimmedLen(s string) int {
	return utf8.RuneCountInString(strings.TrimSpace(s))
}

func stringField(obj map[string]any, key string) string {
	if v, ok := obj[key].(string); ok {
		return v
	}
	return ""
}

func firstStringField(obj map[string]any, keys ...string) string {
	for _, key := range keys {
		if v := stringField(obj, key); strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func nestedString(obj map[string]any, path ...string) string {
	current := any(obj)
	for i, key := range path {
		m, ok := current.(map[string]any)
		if !ok {
			return ""
		}
		current = m[key]
		if i == len(path)-1 {
			if s, ok := current.(string); ok {
				return s
			}
			return ""
		}
	}
	return ""
}
