package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pitabwire/util"

	appconfig "github.com/antinvestor/flowforge/apps/worker/config"
	"github.com/antinvestor/flowforge/apps/worker/service/repository"
	"github.com/antinvestor/flowforge/internal/events"
	"github.com/antinvestor/flowforge/internal/llm"
	"github.com/antinvestor/flowforge/internal/pipeline"
)

// QueueManager manages queue publishing.
type QueueManager interface {
	Publish(ctx context.Context, queueName string, payload any, headers ...map[string]string) error
}

// Orchestrator drives a workflow request through the generation pipeline
// and publishes the outcome to the notification queue.
type Orchestrator struct {
	cfg    *appconfig.WorkerConfig
	client llm.Client
	queue  QueueManager
	runs   repository.RunRepository
	dedup  events.DeduplicationStore
}

// New creates a new orchestrator.
func New(
	cfg *appconfig.WorkerConfig,
	client llm.Client,
	queue QueueManager,
	runs repository.RunRepository,
	dedup events.DeduplicationStore,
) *Orchestrator {
	return &Orchestrator{
		cfg:    cfg,
		client: client,
		queue:  queue,
		runs:   runs,
		dedup:  dedup,
	}
}

// Process runs the full pipeline for one inbound request. The pipeline
// stages themselves never fail abnormally; any stage failure is turned into
// a failure notification for the requester.
func (o *Orchestrator) Process(ctx context.Context, req *events.WorkflowRequestedPayload) error {
	log := util.Log(ctx).With("run_id", req.RunID.String(), "channel", req.Channel)

	dedupKey := messageKey(req)
	if dedupKey != "" {
		seen, err := o.dedup.IsProcessed(ctx, dedupKey)
		if err != nil {
			log.WithError(err).Warn("deduplication check failed, continuing")
		} else if seen {
			log.Info("duplicate message, skipping", "message_key", dedupKey)
			return nil
		}
	}

	run := &repository.Run{
		ID:         req.RunID.String(),
		Channel:    req.Channel,
		Status:     repository.RunStatusPending,
		ReceivedAt: req.ReceivedAt,
	}
	if err := o.runs.Create(ctx, run); err != nil {
		log.WithError(err).Error("failed to create run record")
	}
	if err := o.runs.MarkRunning(ctx, run.ID); err != nil {
		log.WithError(err).Error("failed to mark run running")
	}

	normalized := pipeline.Normalize(req.Raw)
	if normalized.Failed {
		log.Info("request rejected by normalizer", "message", normalized.ErrorMessage)
		return o.finishFailed(ctx, req, rejectionEnvelope(&normalized), &normalized, dedupKey)
	}

	log.Info("request normalized",
		"source", string(normalized.Source),
		"client_email", normalized.ClientEmail,
	)

	// Architecture call
	architectResp := asResult(o.client.Architect(ctx, llm.ArchitectInput{
		ClientBrief: normalized.ClientBrief,
		Source:      string(normalized.Source),
	}))

	spec, env := pipeline.PrepareContext(architectResp, &normalized)
	if env != nil {
		return o.finishFailed(ctx, req, env, &normalized, dedupKey)
	}

	// Synthesis call
	specJSON, err := json.Marshal(spec.ArchitectSpec)
	if err != nil {
		return o.finishFailed(ctx, req, specEncodeEnvelope(err, &normalized), &normalized, dedupKey)
	}

	synthResp := asResult(o.client.Synthesize(ctx, llm.SynthesisInput{
		ArchitectSpecJSON: string(specJSON),
		ClientBrief:       spec.ClientBrief,
	}))

	artifact, env := pipeline.FormatArtifact(synthResp, spec)
	if env != nil {
		return o.finishFailed(ctx, req, env, &normalized, dedupKey)
	}

	// Review call
	kb := pipeline.LoadKnowledgeBase()
	qaInput := pipeline.AttachKnowledge(artifact, kb)

	workflowJSON, err := json.Marshal(artifact.Workflow)
	if err != nil {
		workflowJSON = []byte("{}")
	}

	reviewResp := asResult(o.client.Review(ctx, llm.ReviewInput{
		WorkflowJSON:  string(workflowJSON),
		RuleSummaries: kb.RuleSummaries(),
		BestPractices: kb.PracticeLines(),
	}))

	report := pipeline.ReportValidation(reviewResp, qaInput)

	return o.finishGenerated(ctx, req, artifact, report, dedupKey)
}

// finishGenerated publishes the success notification and closes the run.
func (o *Orchestrator) finishGenerated(
	ctx context.Context,
	req *events.WorkflowRequestedPayload,
	artifact *pipeline.ArtifactResult,
	report *pipeline.QAReport,
	dedupKey string,
) error {
	log := util.Log(ctx).With("run_id", req.RunID.String())

	finalJSON := json.RawMessage("{}")
	nodeCount := 0
	workflowName := ""
	if report.FinalWorkflow != nil {
		if data, err := json.Marshal(report.FinalWorkflow); err == nil {
			finalJSON = data
		}
		nodeCount = len(report.FinalWorkflow.Nodes)
		workflowName = report.FinalWorkflow.Name
	}

	msg := &events.WorkflowGeneratedPayload{
		RunID:           req.RunID,
		ClientEmail:     report.ClientEmail,
		Subject:         successSubject(workflowName),
		WorkflowSummary: artifact.WorkflowSummary,
		QAHTML:          report.HTML,
		Workflow:        finalJSON,
		NodeCount:       nodeCount,
		Confidence:      report.Confidence,
		CompletedAt:     time.Now().UTC(),
	}

	if err := o.queue.Publish(ctx, o.cfg.QueueNotificationName, msg); err != nil {
		log.WithError(err).Error("failed to publish generated notification")
		return err
	}

	outcome := repository.RunOutcome{
		ClientEmail: report.ClientEmail,
		Source:      string(report.Source),
		NodeCount:   nodeCount,
		Confidence:  report.Confidence,
	}
	if err := o.runs.MarkFinished(ctx, req.RunID.String(), repository.RunStatusCompleted, outcome); err != nil {
		log.WithError(err).Error("failed to mark run completed")
	}

	o.markProcessed(ctx, dedupKey, req.RunID)

	log.Info("workflow generated",
		"client_email", report.ClientEmail,
		"node_count", nodeCount,
		"confidence", report.Confidence,
		"corrected", report.Corrected,
	)

	return nil
}

// finishFailed renders the failure report, publishes it and closes the run.
func (o *Orchestrator) finishFailed(
	ctx context.Context,
	req *events.WorkflowRequestedPayload,
	env *pipeline.ErrorEnvelope,
	normalized *pipeline.NormalizedRequest,
	dedupKey string,
) error {
	log := util.Log(ctx).With("run_id", req.RunID.String())

	report := pipeline.ReportError(env, normalized)

	stage := ""
	errorMessage := ""
	if env != nil {
		stage = env.Stage
		errorMessage = env.Message
	} else if normalized != nil {
		stage = pipeline.StageInputValidation
		errorMessage = normalized.ErrorMessage
	}

	msg := &events.WorkflowFailedPayload{
		RunID:       req.RunID,
		ClientEmail: report.ClientEmail,
		Subject:     report.Subject,
		EmailHTML:   report.EmailHTML,
		Stage:       stage,
		Critical:    report.Critical,
		FailedAt:    time.Now().UTC(),
	}

	if err := o.queue.Publish(ctx, o.cfg.QueueNotificationName, msg); err != nil {
		log.WithError(err).Error("failed to publish failure notification")
		return err
	}

	outcome := repository.RunOutcome{
		ClientEmail:  report.ClientEmail,
		Source:       string(report.Source),
		FailedStage:  stage,
		ErrorMessage: errorMessage,
	}
	if err := o.runs.MarkFinished(ctx, req.RunID.String(), repository.RunStatusFailed, outcome); err != nil {
		log.WithError(err).Error("failed to mark run failed")
	}

	o.markProcessed(ctx, dedupKey, req.RunID)

	log.Info("workflow request failed",
		"stage", stage,
		"client_email", report.ClientEmail,
		"critical", report.Critical,
	)

	return nil
}

func (o *Orchestrator) markProcessed(ctx context.Context, dedupKey string, runID events.RunID) {
	if dedupKey == "" {
		return
	}
	if err := o.dedup.MarkProcessed(ctx, dedupKey, runID); err != nil {
		util.Log(ctx).WithError(err).Warn("failed to record processed message")
	}
}

// messageKey derives a deduplication key from the provider message ID.
// Form submissions have no stable ID and are never deduplicated.
func messageKey(req *events.WorkflowRequestedPayload) string {
	if req.Raw == nil {
		return ""
	}
	id, ok := req.Raw["id"].(string)
	if !ok || id == "" {
		return ""
	}
	return req.Channel + ":" + id
}

// asResult folds a transport error into the response shape so the
// downstream stage reports it the same way as a provider error object.
func asResult(resp *llm.GenerateResult, err error) *llm.GenerateResult {
	if err != nil {
		return &llm.GenerateResult{
			Error: &llm.APIError{
				Message: err.Error(),
				Status:  "UNAVAILABLE",
			},
		}
	}
	return resp
}

func successSubject(workflowName string) string {
	if workflowName == "" {
		return "Your workflow is ready"
	}
	return fmt.Sprintf("Your workflow is ready: %s", workflowName)
}

// rejectionEnvelope wraps a normalizer rejection so the published stage and
// the rendered report name the same stage.
func rejectionEnvelope(normalized *pipeline.NormalizedRequest) *pipeline.ErrorEnvelope {
	return &pipeline.ErrorEnvelope{
		Stage:       pipeline.StageInputValidation,
		Message:     normalized.ErrorMessage,
		ClientEmail: normalized.ClientEmail,
		Source:      normalized.Source,
		Timestamp:   normalized.Timestamp,
		Errors:      normalized.Errors,
	}
}

func specEncodeEnvelope(err error, normalized *pipeline.NormalizedRequest) *pipeline.ErrorEnvelope {
	return &pipeline.ErrorEnvelope{
		Stage:       pipeline.StageSynthesis,
		Message:     fmt.Sprintf("Failed to encode architect specification: %v", err),
		ClientEmail: normalized.ClientEmail,
		Source:      normalized.Source,
		Timestamp:   time.Now().UTC(),
	}
}
