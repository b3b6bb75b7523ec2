package pipeline

import (
	"fmt"
	"time"

	"github.com/antinvestor/flowforge/internal/llm"
)

// architectPreviewLimit caps raw-text previews included in parse error
// envelopes.
const architectPreviewLimit = 200

// PrepareContext parses the architect call's output into a StageSpec,
// carrying the normalized request's fields forward unchanged.
func PrepareContext(resp *llm.GenerateResult, normalized *NormalizedRequest) (*StageSpec, *ErrorEnvelope) {
	if normalized == nil {
		return nil, &ErrorEnvelope{
			Stage:     StagePrepareContext,
			Message:   "normalized request is unavailable",
			Timestamp: time.Now(),
		}
	}

	if resp != nil && resp.Error != nil {
		env := newEnvelope(StageArchitect,
			fmt.Sprintf("architect call failed: %s", resp.Error.Message), normalized)
		env.Extra = map[string]any{"upstream_error": resp.Error}
		return nil, env
	}

	text, ok := resp.FirstText()
	if !ok {
		return nil, newEnvelope(StageArchitectResponse,
			"architect call returned no response text", normalized)
	}

	parsed, err := ExtractJSON(text)
	if err != nil {
		env := newEnvelope(StageArchitectParse,
			fmt.Sprintf("architect response is not valid JSON: %v", err), normalized)
		env.Extra = map[string]any{"raw_preview": TextPreview(text, architectPreviewLimit)}
		return nil, env
	}

	return &StageSpec{
		ArchitectSpec: parsed,
		Lessons:       lessonsRef(),
		ClientBrief:   normalized.ClientBrief,
		ClientEmail:   normalized.ClientEmail,
		Source:        normalized.Source,
		Timestamp:     time.Now(),
		Metadata:      normalized.Metadata,
	}, nil
}

// newEnvelope builds an error envelope carrying the request's provenance.
func newEnvelope(stage, message string, normalized *NormalizedRequest) *ErrorEnvelope {
	env := &ErrorEnvelope{
		Stage:     stage,
		Message:   message,
		Timestamp: time.Now(),
	}
	if normalized != nil {
		env.ClientEmail = normalized.ClientEmail
		env.Source = normalized.Source
		env.Errors = normalized.Errors
	}
	return env
}

// lessonsRef returns the static lessons-learned reference attached to every
// prepared context.
func lessonsRef() *Lessons {
	return &Lessons{
		Version: "1.2",
		Notes: map[string][]string{
			"triggers": {
				"Prefer a single explicit trigger node; polling intervals belong in its parameters.",
				"Webhook triggers must declare the HTTP method they accept.",
			},
			"credentials": {
				"Reference credentials by name; never inline keys or passwords in parameters.",
			},
			"structure": {
				"Every non-trigger node should be reachable from the trigger.",
				"Name nodes after what they do, not after their type.",
			},
		},
	}
}
