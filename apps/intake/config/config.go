package config

import (
	"github.com/pitabwire/frame/config"
)

// IntakeConfig defines configuration for the intake service.
// The intake service receives workflow requests over an email webhook
// and a form submission API and publishes them to the message queue
// for processing by workers.
type IntakeConfig struct {
	config.ConfigurationDefault

	// ==========================================================================
	// Email Webhook
	// ==========================================================================

	// EmailWebhookSecret is the shared secret used to verify email webhook payloads.
	EmailWebhookSecret string `env:"EMAIL_WEBHOOK_SECRET"`

	// ==========================================================================
	// Workflow Request Queue (outgoing to workers)
	// ==========================================================================

	// QueueWorkflowRequestName is the name of the workflow request queue.
	QueueWorkflowRequestName string `envDefault:"workflow.requests" env:"QUEUE_WORKFLOW_REQUEST_NAME"`

	// QueueWorkflowRequestURI is the URI of the workflow request queue.
	QueueWorkflowRequestURI string `envDefault:"mem://workflow.requests" env:"QUEUE_WORKFLOW_REQUEST_URI"`

	// ==========================================================================
	// Rate Limiting
	// ==========================================================================

	// RateLimitRequestsPerMinute limits requests per minute per client.
	RateLimitRequestsPerMinute int `envDefault:"60" env:"RATE_LIMIT_REQUESTS_PER_MINUTE"`

	// RateLimitBurstSize is the burst size for rate limiting.
	RateLimitBurstSize int `envDefault:"10" env:"RATE_LIMIT_BURST_SIZE"`

	// ==========================================================================
	// Request Validation
	// ==========================================================================

	// MaxRequestSize is the maximum size of an intake payload in bytes.
	MaxRequestSize int `envDefault:"262144" env:"MAX_REQUEST_SIZE"` // 256KB
}
