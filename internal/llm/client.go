package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pitabwire/util"
)

// Common errors.
var (
	ErrNoAPIKey        = errors.New("no API key configured")
	ErrRateLimited     = errors.New("rate limited")
	ErrQuotaExceeded   = errors.New("quota exceeded")
	ErrInvalidResponse = errors.New("invalid response from LLM")
)

// Client is the interface for the three generation calls the pipeline makes.
// Each call returns the raw GenerateResult; interpreting the content,
// including malformed JSON and embedded error objects, is the pipeline's job.
type Client interface {
	// Architect turns a client brief into a workflow specification.
	Architect(ctx context.Context, input ArchitectInput) (*GenerateResult, error)

	// Synthesize turns an architect specification into a workflow description.
	Synthesize(ctx context.Context, input SynthesisInput) (*GenerateResult, error)

	// Review validates a generated workflow against the knowledge base.
	Review(ctx context.Context, input ReviewInput) (*GenerateResult, error)

	// GetUsage returns cumulative usage statistics.
	GetUsage() Usage
}

// GenerationClient implements Client over a single provider with retry.
type GenerationClient struct {
	provider      *GoogleClient
	promptBuilder *PromptBuilder
	config        ClientConfig
	totalUsage    Usage
}

// NewGenerationClient creates a new generation client.
func NewGenerationClient(cfg ClientConfig) (*GenerationClient, error) {
	if cfg.GoogleAPIKey == "" {
		return nil, ErrNoAPIKey
	}

	pb, err := NewPromptBuilder()
	if err != nil {
		return nil, fmt.Errorf("create prompt builder: %w", err)
	}

	return &GenerationClient{
		provider:      NewGoogleClient(cfg.GoogleAPIKey, cfg),
		promptBuilder: pb,
		config:        cfg,
	}, nil
}

// Architect implements Client.
func (c *GenerationClient) Architect(ctx context.Context, input ArchitectInput) (*GenerateResult, error) {
	return c.generate(ctx, FunctionArchitect, input)
}

// Synthesize implements Client.
func (c *GenerationClient) Synthesize(ctx context.Context, input SynthesisInput) (*GenerateResult, error) {
	return c.generate(ctx, FunctionSynthesize, input)
}

// Review implements Client.
func (c *GenerationClient) Review(ctx context.Context, input ReviewInput) (*GenerateResult, error) {
	return c.generate(ctx, FunctionReview, input)
}

// GetUsage implements Client.
func (c *GenerationClient) GetUsage() Usage {
	return c.totalUsage
}

func (c *GenerationClient) generate(ctx context.Context, fn Function, data any) (*GenerateResult, error) {
	log := util.Log(ctx)

	prompt, err := c.promptBuilder.Build(fn, data)
	if err != nil {
		return nil, fmt.Errorf("build prompt: %w", err)
	}

	result, usage, err := c.generateWithRetry(ctx, fn, prompt)
	if err != nil {
		log.WithError(err).Error("generation failed", "function", fn)
		return nil, err
	}

	c.totalUsage.InputTokens += usage.InputTokens
	c.totalUsage.OutputTokens += usage.OutputTokens
	c.totalUsage.TotalTokens += usage.TotalTokens

	return result, nil
}

// generateWithRetry retries transient failures with exponential backoff.
// A GenerateResult carrying an API error object is returned as-is, not
// retried: the pipeline owns the decision about what to tell the client.
func (c *GenerationClient) generateWithRetry(
	ctx context.Context,
	fn Function,
	prompt string,
) (*GenerateResult, Usage, error) {
	log := util.Log(ctx)
	var lastErr error

	retries := c.config.MaxRetries
	if retries < 1 {
		retries = 1
	}

	for attempt := range retries {
		result, usage, err := c.provider.Generate(ctx, fn, prompt)
		if err == nil {
			return result, usage, nil
		}

		lastErr = err

		if errors.Is(err, ErrQuotaExceeded) {
			return nil, Usage{}, err
		}

		backoff := time.Duration(1<<attempt) * time.Second
		log.Debug("retrying after error",
			"function", fn,
			"attempt", attempt+1,
			"backoff", backoff,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, Usage{}, ctx.Err()
		case <-time.After(backoff):
		}
	}

	return nil, Usage{}, lastErr
}
