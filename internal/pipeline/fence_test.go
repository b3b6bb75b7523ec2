package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON_TaggedFence(t *testing.T) {
	obj, err := ExtractJSON("```json\n{\"name\":\"wf\"}\n```")
	require.NoError(t, err)
	assert.Equal(t, "wf", obj["name"])
}

func TestExtractJSON_BareFence(t *testing.T) {
	obj, err := ExtractJSON("```\n{\"a\":1}\n```")
	require.NoError(t, err)
	assert.Equal(t, float64(1), obj["a"])
}

func TestExtractJSON_Unfenced(t *testing.T) {
	obj, err := ExtractJSON(`  {"a":true}  `)
	require.NoError(t, err)
	assert.Equal(t, true, obj["a"])
}

func TestExtractJSON_FirstFenceOnly(t *testing.T) {
	text := "```json\n{\"first\":1}\n```\nnoise\n```json\n{\"second\":2}\n```"
	obj, err := ExtractJSON(text)
	require.NoError(t, err)
	assert.Contains(t, obj, "first")
	assert.NotContains(t, obj, "second")
}

func TestExtractJSON_Malformed(t *testing.T) {
	_, err := ExtractJSON("```json\n{not json}\n```")
	assert.Error(t, err)

	_, err = ExtractJSON("I could not generate the workflow, sorry.")
	assert.Error(t, err)
}

func TestExtractJSON_NotAnObject(t *testing.T) {
	_, err := ExtractJSON(`[1,2,3]`)
	assert.ErrorIs(t, err, ErrNotJSONObject)

	_, err = ExtractJSON(`"just a string"`)
	assert.ErrorIs(t, err, ErrNotJSONObject)
}

func TestTextPreview(t *testing.T) {
	assert.Equal(t, "short", TextPreview("short", 200))
	long := make([]byte, 300)
	for i := range long {
		long[i] = 'x'
	}
	got := TextPreview(string(long), 200)
	assert.Len(t, got, 203)
	assert.Equal(t, "...", got[200:])
}
