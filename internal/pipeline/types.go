// Package pipeline implements the staged validation and generation pipeline
// that turns an untrusted inbound request into a validated workflow
// description. Every stage is a pure function: it consumes the structured
// output of the previous stage and returns either a success payload or a
// structured error envelope, never a panic.
package pipeline

import (
	"encoding/json"
	"time"
)

// Severity classifies how serious a validation error is.
type Severity string

// Severity levels.
const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
)

// ErrorCode identifies a validation error condition.
type ErrorCode string

// Validation error codes.
const (
	CodeInvalidInput        ErrorCode = "INVALID_INPUT"
	CodeUnknownInputSource  ErrorCode = "UNKNOWN_INPUT_SOURCE"
	CodeInvalidEmailAddress ErrorCode = "INVALID_EMAIL_ADDRESS"
	CodeInvalidEmailFormat  ErrorCode = "INVALID_EMAIL_FORMAT"
	CodeInvalidBriefLength  ErrorCode = "INVALID_BRIEF_LENGTH"
	CodeMissingClientBrief  ErrorCode = "MISSING_CLIENT_BRIEF"
	CodeUnexpectedError     ErrorCode = "UNEXPECTED_ERROR"
)

// Source identifies where an inbound request came from.
type Source string

// Request sources.
const (
	SourceEmail   Source = "email"
	SourceForm    Source = "form"
	SourceUnknown Source = "unknown"
	SourceError   Source = "error"
)

// Stage names used in error envelopes.
const (
	StagePrepareContext    = "prepare-context"
	StageArchitect         = "architect"
	StageArchitectResponse = "architect-response"
	StageArchitectParse    = "architect-parse"
	StageSynthesis         = "synthesis"
	StageSynthesisParse    = "synthesis-parse"
	StageFormatWorkflow    = "format-workflow"
	StageInputValidation   = "input-validation"
)

// ErrorDetail describes a single validation failure. Details are created
// when an invariant is violated, accumulated into slices, and never mutated
// afterwards.
type ErrorDetail struct {
	Code     ErrorCode      `json:"code"`
	Message  string         `json:"message"`
	Severity Severity       `json:"severity"`
	Field    string         `json:"field,omitempty"`
	Context  map[string]any `json:"context,omitempty"`
}

// NormalizedRequest is the canonical internal representation of an inbound
// request, produced by Normalize.
//
// Invariant: Failed is true exactly when Errors is non-empty, and a failed
// request always carries at least one critical error and a non-empty
// ErrorMessage. A request that passed validation always has a non-empty
// ClientBrief and ClientEmail.
type NormalizedRequest struct {
	ClientBrief  string         `json:"client_brief,omitempty"`
	ClientEmail  string         `json:"client_email,omitempty"`
	Source       Source         `json:"source"`
	Failed       bool           `json:"error"`
	Errors       []ErrorDetail  `json:"errors"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// ErrorEnvelope is the universal failure record passed between stages in
// place of a thrown exception. Every failing stage produces exactly one.
type ErrorEnvelope struct {
	Stage       string         `json:"stage"`
	Message     string         `json:"message"`
	ClientEmail string         `json:"client_email,omitempty"`
	Source      Source         `json:"source,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
	Errors      []ErrorDetail  `json:"errors,omitempty"`
	Extra       map[string]any `json:"extra,omitempty"`
}

// StageSpec is the Context Preparer's success output: the architect's
// specification plus the request fields carried forward for provenance.
type StageSpec struct {
	ArchitectSpec map[string]any `json:"architect_spec"`
	Lessons       *Lessons       `json:"lessons_learned"`
	ClientBrief   string         `json:"client_brief"`
	ClientEmail   string         `json:"client_email"`
	Source        Source         `json:"source"`
	Timestamp     time.Time      `json:"timestamp"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// Lessons is the static lessons-learned reference attached to every
// prepared context.
type Lessons struct {
	Version string              `json:"version"`
	Notes   map[string][]string `json:"notes"`
}

// Workflow is the generated artifact: a named node graph. Nodes and
// connections keep their dynamic shape because they originate from an LLM;
// Raw preserves the full parsed object so no field is lost on re-serialization.
type Workflow struct {
	Name        string           `json:"name"`
	Nodes       []map[string]any `json:"nodes"`
	Connections map[string]any   `json:"connections"`

	Raw map[string]any `json:"-"`
}

// MarshalJSON serializes the full original object when available.
func (w *Workflow) MarshalJSON() ([]byte, error) {
	if w.Raw != nil {
		return json.Marshal(w.Raw)
	}
	return json.Marshal(map[string]any{
		"name":        w.Name,
		"nodes":       w.Nodes,
		"connections": w.Connections,
	})
}

// ArtifactMetadata summarizes a formatted workflow.
type ArtifactMetadata struct {
	NodeCount       int `json:"node_count"`
	ConnectionCount int `json:"connection_count"`
	SizeBytes       int `json:"size_bytes"`
}

// ArtifactResult is the Artifact Formatter's success output.
type ArtifactResult struct {
	Success             bool             `json:"success"`
	ClientEmail         string           `json:"client_email"`
	ClientBrief         string           `json:"client_brief"`
	Source              Source           `json:"source"`
	Workflow            *Workflow        `json:"workflow_json"`
	WorkflowSummary     string           `json:"workflow_summary"`
	QAValidationPending bool             `json:"qa_validation_pending"`
	Metadata            ArtifactMetadata `json:"metadata"`
	Timestamp           time.Time        `json:"timestamp"`
}
