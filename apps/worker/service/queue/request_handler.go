package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pitabwire/util"

	"github.com/antinvestor/flowforge/internal/events"
)

// RequestProcessor runs the pipeline for one workflow request.
type RequestProcessor interface {
	Process(ctx context.Context, req *events.WorkflowRequestedPayload) error
}

// WorkflowRequestHandler handles incoming workflow request messages.
type WorkflowRequestHandler struct {
	processor RequestProcessor
}

// NewWorkflowRequestHandler creates a new workflow request handler.
func NewWorkflowRequestHandler(processor RequestProcessor) *WorkflowRequestHandler {
	return &WorkflowRequestHandler{
		processor: processor,
	}
}

// Handle processes incoming workflow request messages.
func (h *WorkflowRequestHandler) Handle(
	ctx context.Context,
	_ map[string]string,
	payload []byte,
) error {
	log := util.Log(ctx)

	var request events.WorkflowRequestedPayload
	if err := json.Unmarshal(payload, &request); err != nil {
		// A payload that cannot even be decoded has no requester to notify;
		// drop it instead of retrying forever.
		log.WithError(err).Error("discarding undecodable workflow request")
		return nil
	}

	if request.RunID.IsZero() {
		log.Error("discarding workflow request without run ID")
		return nil
	}

	if err := h.processor.Process(ctx, &request); err != nil {
		return fmt.Errorf("process workflow request %s: %w", request.RunID.String(), err)
	}

	return nil
}
