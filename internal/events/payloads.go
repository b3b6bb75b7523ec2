package events

import (
	"encoding/json"
	"time"
)

// WorkflowRequestedPayload is published by the intake service for every
// accepted inbound request. Raw carries the payload exactly as received;
// classification and validation happen in the worker's pipeline.
type WorkflowRequestedPayload struct {
	RunID      RunID          `json:"run_id"`
	Raw        map[string]any `json:"raw"`
	ReceivedAt time.Time      `json:"received_at"`
	Channel    string         `json:"channel"`
}

// WorkflowGeneratedPayload is published when a pipeline run succeeds. The
// HTML fields are pre-escaped; the notification sender may embed them
// directly into a message body.
type WorkflowGeneratedPayload struct {
	RunID           RunID           `json:"run_id"`
	ClientEmail     string          `json:"client_email"`
	Subject         string          `json:"subject"`
	WorkflowSummary string          `json:"workflow_summary"`
	QAHTML          string          `json:"qa_html"`
	Workflow        json.RawMessage `json:"final_workflow_json"`
	NodeCount       int             `json:"node_count"`
	Confidence      float64         `json:"confidence"`
	CompletedAt     time.Time       `json:"completed_at"`
}

// WorkflowFailedPayload is published when a pipeline run fails at any
// stage. EmailHTML is pre-escaped.
type WorkflowFailedPayload struct {
	RunID       RunID     `json:"run_id"`
	ClientEmail string    `json:"client_email"`
	Subject     string    `json:"subject"`
	EmailHTML   string    `json:"email_html"`
	Stage       string    `json:"stage,omitempty"`
	Critical    bool      `json:"critical,omitempty"`
	FailedAt    time.Time `json:"failed_at"`
}
