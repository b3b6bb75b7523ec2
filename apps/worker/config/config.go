package config

import (
	"time"

	"github.com/pitabwire/frame/config"

	"github.com/antinvestor/flowforge/internal/events"
	"github.com/antinvestor/flowforge/internal/llm"
)

// WorkerConfig defines configuration for the worker service.
// The worker consumes workflow requests and runs the generation
// pipeline: normalization, architecture, synthesis, formatting and QA.
type WorkerConfig struct {
	config.ConfigurationDefault

	// ==========================================================================
	// LLM Provider Configuration
	// ==========================================================================

	// GoogleAPIKey is the API key for Google AI.
	GoogleAPIKey string `env:"GOOGLE_API_KEY"`

	// LLMModel is the generation model to use.
	LLMModel string `envDefault:"gemini-2.0-flash" env:"LLM_MODEL"`

	// LLMMaxOutputTokens caps generated output size.
	LLMMaxOutputTokens int `envDefault:"8192" env:"LLM_MAX_OUTPUT_TOKENS"`

	// LLMTemperature is the sampling temperature.
	LLMTemperature float64 `envDefault:"0.2" env:"LLM_TEMPERATURE"`

	// LLMTimeoutSeconds is the timeout for LLM requests.
	LLMTimeoutSeconds int `envDefault:"120" env:"LLM_TIMEOUT_SECONDS"`

	// LLMMaxRetries is the maximum retries for LLM requests.
	LLMMaxRetries int `envDefault:"3" env:"LLM_MAX_RETRIES"`

	// ==========================================================================
	// Queue Configuration
	// ==========================================================================

	// Workflow request queue (incoming)
	QueueWorkflowRequestName string `envDefault:"workflow.requests" env:"QUEUE_WORKFLOW_REQUEST_NAME"`
	QueueWorkflowRequestURI  string `envDefault:"mem://workflow.requests" env:"QUEUE_WORKFLOW_REQUEST_URI"`

	// Notification queue (outgoing, consumed by the mail sender)
	QueueNotificationName string `envDefault:"workflow.notifications" env:"QUEUE_NOTIFICATION_NAME"`
	QueueNotificationURI  string `envDefault:"mem://workflow.notifications" env:"QUEUE_NOTIFICATION_URI"`

	// ==========================================================================
	// Deduplication
	// ==========================================================================

	// DedupBackend selects the deduplication backend (memory or redis).
	DedupBackend string `envDefault:"memory" env:"DEDUP_BACKEND"`

	// DedupRedisURL is the Redis connection URL for the redis backend.
	DedupRedisURL string `env:"DEDUP_REDIS_URL"`

	// DedupTTLHours is how long processed message IDs are remembered.
	DedupTTLHours int `envDefault:"24" env:"DEDUP_TTL_HOURS"`
}

// LLMConfig builds the generation client configuration.
func (c *WorkerConfig) LLMConfig() llm.ClientConfig {
	return llm.ClientConfig{
		GoogleAPIKey:    c.GoogleAPIKey,
		Model:           c.LLMModel,
		MaxOutputTokens: c.LLMMaxOutputTokens,
		Temperature:     c.LLMTemperature,
		TimeoutSeconds:  c.LLMTimeoutSeconds,
		MaxRetries:      c.LLMMaxRetries,
	}
}

// DedupBackendType returns the configured deduplication backend.
func (c *WorkerConfig) DedupBackendType() events.BackendType {
	return events.BackendType(c.DedupBackend)
}

// DedupTTL returns the deduplication TTL as a duration.
func (c *WorkerConfig) DedupTTL() time.Duration {
	return time.Duration(c.DedupTTLHours) * time.Hour
}
