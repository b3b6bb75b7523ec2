package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const googleAPIURLTemplate = "https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent"

const defaultModel = "gemini-2.0-flash"

// GoogleClient calls the Google AI generateContent API.
type GoogleClient struct {
	apiKey     string
	httpClient *http.Client
	config     ClientConfig
	baseURL    string
}

// NewGoogleClient creates a new Google AI client.
func NewGoogleClient(apiKey string, cfg ClientConfig) *GoogleClient {
	return &GoogleClient{
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
		config:  cfg,
		baseURL: googleAPIURLTemplate,
	}
}

// IsAvailable returns true if the client is configured.
func (c *GoogleClient) IsAvailable() bool {
	return c.apiKey != ""
}

// googleRequest is the request body for the Google AI API.
type googleRequest struct {
	Contents          []Content              `json:"contents"`
	GenerationConfig  googleGenerationConfig `json:"generationConfig,omitzero"`
	SystemInstruction *Content               `json:"systemInstruction,omitempty"`
}

// googleGenerationConfig is the generation configuration.
type googleGenerationConfig struct {
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	Temperature     float64 `json:"temperature,omitempty"`
}

// googleResponse is the response body from the Google AI API. The candidate
// portion is decoded straight into the shared GenerateResult wire shape.
type googleResponse struct {
	GenerateResult
	UsageMetadata googleUsageMetadata `json:"usageMetadata"`
}

// googleUsageMetadata is usage information from Google AI.
type googleUsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

// Generate sends a generation request and returns the raw result.
//
// HTTP-level error responses that carry the API's error object are returned
// inside the GenerateResult rather than as a Go error, so the pipeline's
// error reporting path sees the same shape a direct caller would.
func (c *GoogleClient) Generate(
	ctx context.Context,
	fn Function,
	prompt string,
) (*GenerateResult, Usage, error) {
	model := c.config.Model
	if model == "" {
		model = defaultModel
	}

	maxTokens := c.config.MaxOutputTokens
	if maxTokens == 0 {
		maxTokens = 8192
	}

	googleReq := googleRequest{
		Contents: []Content{
			{
				Role:  "user",
				Parts: []Part{{Text: prompt}},
			},
		},
		GenerationConfig: googleGenerationConfig{
			MaxOutputTokens: maxTokens,
			Temperature:     c.config.Temperature,
		},
	}

	if system := systemInstruction(fn); system != "" {
		googleReq.SystemInstruction = &Content{
			Parts: []Part{{Text: system}},
		}
	}

	body, err := json.Marshal(googleReq)
	if err != nil {
		return nil, Usage{}, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf(c.baseURL, model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, Usage{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, Usage{}, fmt.Errorf("send request: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, Usage{}, fmt.Errorf("read response: %w", err)
	}

	switch httpResp.StatusCode {
	case http.StatusTooManyRequests:
		return nil, Usage{}, fmt.Errorf("%w: %s", ErrRateLimited, string(respBody))
	case http.StatusForbidden:
		return nil, Usage{}, fmt.Errorf("%w: %s", ErrQuotaExceeded, string(respBody))
	}

	var resp googleResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, Usage{}, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}

	if httpResp.StatusCode != http.StatusOK && resp.Error == nil {
		return nil, Usage{}, fmt.Errorf("%w: status %d", ErrInvalidResponse, httpResp.StatusCode)
	}

	usage := Usage{
		InputTokens:  resp.UsageMetadata.PromptTokenCount,
		OutputTokens: resp.UsageMetadata.CandidatesTokenCount,
		TotalTokens:  resp.UsageMetadata.TotalTokenCount,
	}

	return &resp.GenerateResult, usage, nil
}
