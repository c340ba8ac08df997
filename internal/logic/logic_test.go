package logic

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name     string
		rawJSON  string
		path     string
		expected string
		want     string
	}{
		{
			name:     "substring match passes",
			rawJSON:  `{"a": {"b": "result X"}}`,
			path:     "a.b",
			expected: "result",
			want:     "PASS",
		},
		{
			name:     "exact match passes",
			rawJSON:  `{"status": "COMPLETED"}`,
			path:     "status",
			expected: "COMPLETED",
			want:     "PASS",
		},
		{
			name:     "case sensitive mismatch fails",
			rawJSON:  `{"status": "completed"}`,
			path:     "status",
			expected: "COMPLETED",
			want:     `FAIL: "COMPLETED" not found in field status`,
		},
		{
			name:     "missing field fails",
			rawJSON:  `{"a": 1}`,
			path:     "a.b",
			expected: "anything",
			want:     "FAIL: field not found: a.b",
		},
		{
			name:     "invalid json fails",
			rawJSON:  `not json`,
			path:     "a.b",
			expected: "anything",
			want:     "FAIL: response is not valid JSON",
		},
		{
			name:     "indexed path",
			rawJSON:  `{"actions": [{"type": "search_candidates"}]}`,
			path:     "actions[0].type",
			expected: "search",
			want:     "PASS",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(tt.rawJSON, tt.path, tt.expected)
			assert.Equal(t, tt.want, got.Result)
			if got.Passed() {
				assert.Contains(t, got.ActualPreview, tt.expected)
			}
		})
	}
}

func TestEvaluateNoCheckConfigured(t *testing.T) {
	raw := `{"a": "b"}`

	assert.Equal(t, Outcome{}, Evaluate(raw, "", "value"))
	assert.Equal(t, Outcome{}, Evaluate(raw, "a", ""))
	assert.Equal(t, Outcome{}, Evaluate(raw, "", ""))
}

func TestEvaluatePreviewTruncation(t *testing.T) {
	long := strings.Repeat("x", 500)
	raw := `{"a": "` + long + `"}`

	got := Evaluate(raw, "a", "never-present")
	assert.True(t, got.Failed())
	assert.Len(t, got.ActualPreview, previewLimit)
}

func TestOutcomeHelpers(t *testing.T) {
	assert.True(t, Outcome{Result: "PASS"}.Passed())
	assert.False(t, Outcome{Result: "PASS"}.Failed())
	assert.True(t, Outcome{Result: "FAIL: field not found: x"}.Failed())
	assert.False(t, Outcome{}.Passed())
	assert.False(t, Outcome{}.Failed())
}
