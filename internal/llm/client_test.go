//nolint:testpackage // Testing internal functions requires same package
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewGenerationClient_NoAPIKey(t *testing.T) {
	_, err := NewGenerationClient(ClientConfig{})
	if err == nil {
		t.Error("expected error when no API key provided")
	}
	if !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("expected ErrNoAPIKey, got %v", err)
	}
}

func TestNewGenerationClient_WithKey(t *testing.T) {
	client, err := NewGenerationClient(ClientConfig{
		GoogleAPIKey:    "test-key",
		MaxOutputTokens: 4096,
		TimeoutSeconds:  60,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client == nil {
		t.Fatal("expected client to be non-nil")
	}
	if !client.provider.IsAvailable() {
		t.Error("expected provider to be available")
	}
}

func TestGoogleClient_IsAvailable(t *testing.T) {
	client := NewGoogleClient("test-key", ClientConfig{TimeoutSeconds: 60})
	if !client.IsAvailable() {
		t.Error("expected client to be available")
	}

	client = NewGoogleClient("", ClientConfig{TimeoutSeconds: 60})
	if client.IsAvailable() {
		t.Error("expected client to be unavailable with empty key")
	}
}

func TestFirstText(t *testing.T) {
	var nilResult *GenerateResult
	if _, ok := nilResult.FirstText(); ok {
		t.Error("expected no text from nil result")
	}

	empty := &GenerateResult{}
	if _, ok := empty.FirstText(); ok {
		t.Error("expected no text from empty candidates")
	}

	noParts := &GenerateResult{Candidates: []Candidate{{}}}
	if _, ok := noParts.FirstText(); ok {
		t.Error("expected no text from candidate without parts")
	}

	full := &GenerateResult{
		Candidates: []Candidate{
			{Content: Content{Parts: []Part{{Text: "hello"}}}},
		},
	}
	text, ok := full.FirstText()
	if !ok || text != "hello" {
		t.Errorf("expected (hello, true), got (%q, %v)", text, ok)
	}
}

func TestGenerateResult_Failed(t *testing.T) {
	var nilResult *GenerateResult
	if !nilResult.Failed() {
		t.Error("nil result should report failed")
	}

	withErr := &GenerateResult{Error: &APIError{Code: 500, Message: "boom"}}
	if !withErr.Failed() {
		t.Error("result with error object should report failed")
	}

	ok := &GenerateResult{Candidates: []Candidate{{}}}
	if ok.Failed() {
		t.Error("result with candidates should not report failed")
	}
}

func TestGoogleClient_Generate_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-goog-api-key") != "test-key" {
			t.Errorf("missing api key header")
		}
		var req googleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(req.Contents) != 1 {
			t.Errorf("expected 1 content, got %d", len(req.Contents))
		}
		resp := googleResponse{
			GenerateResult: GenerateResult{
				Candidates: []Candidate{
					{Content: Content{Parts: []Part{{Text: `{"intent":"sync"}`}}}},
				},
			},
			UsageMetadata: googleUsageMetadata{
				PromptTokenCount:     10,
				CandidatesTokenCount: 5,
				TotalTokenCount:      15,
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewGoogleClient("test-key", ClientConfig{TimeoutSeconds: 5})
	client.baseURL = server.URL + "/%s"

	result, usage, err := client.Generate(context.Background(), FunctionArchitect, "build me a workflow")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	text, ok := result.FirstText()
	if !ok || text != `{"intent":"sync"}` {
		t.Errorf("unexpected text %q", text)
	}
	if usage.TotalTokens != 15 {
		t.Errorf("expected 15 total tokens, got %d", usage.TotalTokens)
	}
}

func TestGoogleClient_Generate_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"code":500,"message":"internal","status":"INTERNAL"}}`))
	}))
	defer server.Close()

	client := NewGoogleClient("test-key", ClientConfig{TimeoutSeconds: 5})
	client.baseURL = server.URL + "/%s"

	result, _, err := client.Generate(context.Background(), FunctionSynthesize, "prompt")
	if err != nil {
		t.Fatalf("API error object should not surface as a Go error, got %v", err)
	}
	if !result.Failed() {
		t.Fatal("expected result to carry the error object")
	}
	if result.Error.Code != 500 || result.Error.Status != "INTERNAL" {
		t.Errorf("unexpected error object %+v", result.Error)
	}
}

func TestGoogleClient_Generate_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewGoogleClient("test-key", ClientConfig{TimeoutSeconds: 5})
	client.baseURL = server.URL + "/%s"

	_, _, err := client.Generate(context.Background(), FunctionReview, "prompt")
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("expected ErrRateLimited, got %v", err)
	}
}

func TestPromptBuilder_Build(t *testing.T) {
	pb, err := NewPromptBuilder()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	prompt, err := pb.Build(FunctionArchitect, ArchitectInput{
		ClientBrief: "Sync Shopify orders to Airtable",
		Source:      "form",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if prompt == "" {
		t.Error("expected non-empty prompt")
	}

	_, err = pb.Build(Function("bogus"), nil)
	if err == nil {
		t.Error("expected error for unknown function")
	}
}
