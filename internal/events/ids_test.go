package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunIDRoundTrip(t *testing.T) {
	id := NewRunID()
	require.False(t, id.IsZero())

	parsed, err := ParseRunID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)

	_, err = ParseRunID("not-an-id")
	assert.Error(t, err)
}

func TestRunIDJSON(t *testing.T) {
	id := NewRunID()

	data, err := json.Marshal(id)
	require.NoError(t, err)
	assert.JSONEq(t, `"`+id.String()+`"`, string(data))

	var out RunID
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, id, out)
}

func TestRunIDShort(t *testing.T) {
	id := NewRunID()
	assert.Len(t, id.Short(), 8)
	assert.Contains(t, id.String(), id.Short())
}
