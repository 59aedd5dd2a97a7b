package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanJSONResponse_MarkdownFence(t *testing.T) {
	t.Parallel()
	rc := NewResponseCleaner()
	got, err := rc.CleanJSONResponse("```json\n{\"score\": 120}\n```")
	require.NoError(t, err)
	assert.JSONEq(t, `{"score": 120}`, got)
}

func TestCleanJSONResponse_ProseAroundObject(t *testing.T) {
	t.Parallel()
	rc := NewResponseCleaner()
	in := "Here is the evaluation you asked for:\n{\"total\": 800, \"comment\": \"good {structure}\"}\nLet me know if you need anything else."
	got, err := rc.CleanJSONResponse(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"total": 800, "comment": "good {structure}"}`, got)
}

func TestCleanJSONResponse_TrailingComma(t *testing.T) {
	t.Parallel()
	rc := NewResponseCleaner()
	got, err := rc.CleanJSONResponse(`{"a": 1, "b": [1, 2,],}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a": 1, "b": [1, 2]}`, got)
}

func TestCleanJSONResponse_NestedObjects(t *testing.T) {
	t.Parallel()
	rc := NewResponseCleaner()
	in := `noise {"outer": {"inner": {"deep": true}}} trailing noise`
	got, err := rc.CleanJSONResponse(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"outer": {"inner": {"deep": true}}}`, got)
}

func TestCleanJSONResponse_NoObject(t *testing.T) {
	t.Parallel()
	rc := NewResponseCleaner()
	_, err := rc.CleanJSONResponse("I cannot evaluate this essay.")
	assert.Error(t, err)
}

func TestCleanJSONResponse_EscapedQuotes(t *testing.T) {
	t.Parallel()
	rc := NewResponseCleaner()
	in := `{"comment": "she said \"hello}\" loudly"}`
	got, err := rc.CleanJSONResponse(in)
	require.NoError(t, err)
	assert.JSONEq(t, in, got)
}
