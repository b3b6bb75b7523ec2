package pipeline

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// ErrNotJSONObject is returned when LLM output parses to something other
// than a JSON object.
var ErrNotJSONObject = errors.New("response is not a JSON object")

// fencedBlock matches the first Markdown code fence, tagged ```json or bare.
var fencedBlock = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// ExtractJSON parses LLM output that may be wrapped in a Markdown code
// fence. Only the first fenced block is considered; unfenced text is parsed
// as-is. The result must be a JSON object.
func ExtractJSON(text string) (map[string]any, error) {
	candidate := strings.TrimSpace(text)
	if m := fencedBlock.FindStringSubmatch(candidate); m != nil {
		candidate = strings.TrimSpace(m[1])
	}

	var parsed any
	if err := json.Unmarshal([]byte(candidate), &parsed); err != nil {
		return nil, err
	}

	obj, ok := parsed.(map[string]any)
	if !ok {
		return nil, ErrNotJSONObject
	}
	return obj, nil
}

// TextPreview truncates raw text for diagnostics so that arbitrarily large
// payloads never leak into logs or rendered reports.
func TextPreview(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
