package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pitabwire/util"

	appconfig "github.com/antinvestor/flowforge/apps/intake/config"
	"github.com/antinvestor/flowforge/internal/events"
)

const signatureHeader = "X-Signature-256"

// QueuePublisher defines the interface for publishing messages to a queue.
type QueuePublisher interface {
	Publish(ctx context.Context, queueName string, payload any, headers ...map[string]string) error
}

// IntakeHandler handles inbound workflow requests from the email webhook
// and the form submission API.
type IntakeHandler struct {
	cfg       *appconfig.IntakeConfig
	publisher QueuePublisher
}

// NewIntakeHandler creates a new intake handler.
func NewIntakeHandler(cfg *appconfig.IntakeConfig, publisher QueuePublisher) *IntakeHandler {
	return &IntakeHandler{
		cfg:       cfg,
		publisher: publisher,
	}
}

// IntakeResponse is the response returned to intake clients.
type IntakeResponse struct {
	// Status is the response status.
	Status string `json:"status"`

	// RunID is the unique identifier for tracking this request.
	RunID string `json:"run_id,omitempty"`

	// Message provides additional information.
	Message string `json:"message"`
}

// HandleEmailWebhook processes inbound email notifications from the mail
// provider. The payload is forwarded untouched; the worker pipeline decides
// whether it is usable.
func (h *IntakeHandler) HandleEmailWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := util.Log(ctx)

	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	body, ok := h.readBody(w, r)
	if !ok {
		return
	}

	// Verify signature if secret is configured
	if h.cfg.EmailWebhookSecret != "" {
		signature := r.Header.Get(signatureHeader)
		if !h.verifySignature(body, signature) {
			log.Warn("invalid webhook signature")
			h.writeError(w, http.StatusUnauthorized, "Invalid signature")
			return
		}
	}

	raw, err := decodeObject(body)
	if err != nil {
		log.WithError(err).Debug("invalid JSON in email webhook")
		h.writeError(w, http.StatusBadRequest, "Invalid JSON in request body")
		return
	}

	h.publishRequest(w, r, raw, "email")
}

// HandleFormSubmission handles POST /api/v1/requests submissions from the
// public request form.
func (h *IntakeHandler) HandleFormSubmission(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := util.Log(ctx)

	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	body, ok := h.readBody(w, r)
	if !ok {
		return
	}

	raw, err := decodeObject(body)
	if err != nil {
		log.WithError(err).Debug("invalid JSON in form submission")
		h.writeError(w, http.StatusBadRequest, "Invalid JSON in request body")
		return
	}

	h.publishRequest(w, r, raw, "form")
}

// readBody reads the request body with the configured size limit. On
// failure the response has already been written and ok is false.
func (h *IntakeHandler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	ctx := r.Context()
	log := util.Log(ctx)

	maxSize := int64(h.cfg.MaxRequestSize)
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		if strings.Contains(err.Error(), "http: request body too large") {
			h.writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("Request body exceeds maximum size of %d bytes", maxSize))
			return nil, false
		}
		log.WithError(err).Error("failed to read request body")
		h.writeError(w, http.StatusBadRequest, "Failed to read request body")
		return nil, false
	}
	defer util.CloseAndLogOnError(ctx, r.Body, "failed to close request body")

	return body, true
}

func (h *IntakeHandler) verifySignature(body []byte, signature string) bool {
	if signature == "" {
		return false
	}

	if !strings.HasPrefix(signature, "sha256=") {
		return false
	}
	signature = strings.TrimPrefix(signature, "sha256=")

	mac := hmac.New(sha256.New, []byte(h.cfg.EmailWebhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}

// publishRequest wraps the raw payload and publishes it to the workflow
// request queue.
func (h *IntakeHandler) publishRequest(w http.ResponseWriter, r *http.Request, raw map[string]any, channel string) {
	ctx := r.Context()
	log := util.Log(ctx)

	runID := events.NewRunID()

	msg := &events.WorkflowRequestedPayload{
		RunID:      runID,
		Raw:        raw,
		ReceivedAt: time.Now().UTC(),
		Channel:    channel,
	}

	if err := h.publisher.Publish(ctx, h.cfg.QueueWorkflowRequestName, msg); err != nil {
		log.WithError(err).Error("failed to publish workflow request")
		h.writeError(w, http.StatusInternalServerError, "Failed to queue request")
		return
	}

	log.Info("workflow request queued",
		"run_id", runID.String(),
		"channel", channel,
	)

	h.writeSuccess(w, runID.String())
}

// decodeObject parses the body as a JSON object. Anything else, including
// valid JSON that is not an object, is rejected at the door.
func decodeObject(body []byte) (map[string]any, error) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, fmt.Errorf("payload is not a JSON object")
	}
	return raw, nil
}

// writeError writes an error response.
func (h *IntakeHandler) writeError(w http.ResponseWriter, statusCode int, message string) {
	resp := IntakeResponse{
		Status:  "error",
		Message: message,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(resp)
}

// writeSuccess writes a success response.
func (h *IntakeHandler) writeSuccess(w http.ResponseWriter, runID string) {
	resp := IntakeResponse{
		Status:  "accepted",
		RunID:   runID,
		Message: "Workflow request queued for processing",
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(resp)
}
