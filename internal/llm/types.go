// Package llm provides the client and wire types for the generation calls
// the workflow pipeline depends on.
package llm

// GenerateResult is the raw response shape shared by every generation call.
// Downstream pipeline stages consume this shape directly and must tolerate
// any of its fields being absent; it is an external contract and must not
// be reshaped.
type GenerateResult struct {
	Candidates []Candidate `json:"candidates,omitempty"`
	Error      *APIError   `json:"error,omitempty"`
}

// Candidate is a single generated candidate.
type Candidate struct {
	Content      Content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
}

// Content is generated content split into parts.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// Part is one part of generated content.
type Part struct {
	Text string `json:"text"`
}

// APIError is the error object the generation API returns in place of
// candidates.
type APIError struct {
	Code    int    `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Status  string `json:"status,omitempty"`
}

// FirstText returns the text of the first candidate part, guarding every
// access along the candidates[0].content.parts[0].text path.
func (r *GenerateResult) FirstText() (string, bool) {
	if r == nil || len(r.Candidates) == 0 {
		return "", false
	}
	parts := r.Candidates[0].Content.Parts
	if len(parts) == 0 || parts[0].Text == "" {
		return "", false
	}
	return parts[0].Text, true
}

// Failed reports whether the call returned an error object instead of
// candidates.
func (r *GenerateResult) Failed() bool {
	return r == nil || r.Error != nil
}

// Usage tracks token usage across calls.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// ClientConfig configures the generation client.
type ClientConfig struct {
	GoogleAPIKey    string
	Model           string
	MaxOutputTokens int
	Temperature     float64
	TimeoutSeconds  int
	MaxRetries      int
}
