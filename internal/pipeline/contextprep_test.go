package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antinvestor/flowforge/internal/llm"
)

func textResult(text string) *llm.GenerateResult {
	return &llm.GenerateResult{
		Candidates: []llm.Candidate{
			{Content: llm.Content{Parts: []llm.Part{{Text: text}}}},
		},
	}
}

func normalizedFixture() *NormalizedRequest {
	return &NormalizedRequest{
		ClientBrief: "Sync Shopify orders to Airtable daily",
		ClientEmail: "client@example.com",
		Source:      SourceForm,
		Metadata:    map[string]any{"subject": "Automation request"},
	}
}

func TestPrepareContext_MissingNormalized(t *testing.T) {
	spec, env := PrepareContext(textResult(`{"intent":"sync"}`), nil)

	assert.Nil(t, spec)
	require.NotNil(t, env)
	assert.Equal(t, StagePrepareContext, env.Stage)
}

func TestPrepareContext_UpstreamError(t *testing.T) {
	resp := &llm.GenerateResult{Error: &llm.APIError{Code: 500, Message: "model overloaded"}}
	spec, env := PrepareContext(resp, normalizedFixture())

	assert.Nil(t, spec)
	require.NotNil(t, env)
	assert.Equal(t, StageArchitect, env.Stage)
	assert.Contains(t, env.Message, "model overloaded")
	assert.Equal(t, "client@example.com", env.ClientEmail)
	assert.Equal(t, resp.Error, env.Extra["upstream_error"])
}

func TestPrepareContext_MissingText(t *testing.T) {
	for _, resp := range []*llm.GenerateResult{nil, {}, {Candidates: []llm.Candidate{{}}}} {
		spec, env := PrepareContext(resp, normalizedFixture())
		assert.Nil(t, spec)
		require.NotNil(t, env)
		assert.Equal(t, StageArchitectResponse, env.Stage)
	}
}

func TestPrepareContext_ParseFailureTruncatesPreview(t *testing.T) {
	raw := "not json, " + strings.Repeat("x", 400)
	spec, env := PrepareContext(textResult(raw), normalizedFixture())

	assert.Nil(t, spec)
	require.NotNil(t, env)
	assert.Equal(t, StageArchitectParse, env.Stage)

	preview, ok := env.Extra["raw_preview"].(string)
	require.True(t, ok)
	assert.LessOrEqual(t, len(preview), architectPreviewLimit+3)
	assert.NotContains(t, preview, raw[250:])
}

func TestPrepareContext_NonObjectJSON(t *testing.T) {
	_, env := PrepareContext(textResult(`[1,2,3]`), normalizedFixture())
	require.NotNil(t, env)
	assert.Equal(t, StageArchitectParse, env.Stage)
}

func TestPrepareContext_Success(t *testing.T) {
	normalized := normalizedFixture()
	spec, env := PrepareContext(textResult("```json\n{\"intent\":\"sync\",\"steps\":[]}\n```"), normalized)

	require.Nil(t, env)
	require.NotNil(t, spec)
	assert.Equal(t, "sync", spec.ArchitectSpec["intent"])
	assert.Equal(t, normalized.ClientBrief, spec.ClientBrief)
	assert.Equal(t, normalized.ClientEmail, spec.ClientEmail)
	assert.Equal(t, normalized.Source, spec.Source)
	require.NotNil(t, spec.Lessons)
	assert.NotEmpty(t, spec.Lessons.Notes)
}
