package judge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    Verdict
	}{
		{
			name:    "plain json",
			content: `{"score": 8.5, "passed": true, "reason": "relevant and polite"}`,
			want:    Verdict{Score: 8.5, Passed: true, Reason: "relevant and polite"},
		},
		{
			name:    "markdown fenced",
			content: "```json\n{\"score\": 3, \"passed\": false, \"reason\": \"missed the point\"}\n```",
			want:    Verdict{Score: 3, Passed: false, Reason: "missed the point"},
		},
		{
			name:    "surrounded by prose",
			content: `Here is my verdict: {"score": 10, "passed": true, "reason": "perfect"} Hope that helps!`,
			want:    Verdict{Score: 10, Passed: true, Reason: "perfect"},
		},
		{
			name:    "missing optional fields",
			content: `{"score": 5}`,
			want:    Verdict{Score: 5},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseVerdict(tt.content)
			require.NoError(t, err)
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestParseVerdictInvalid(t *testing.T) {
	for _, content := range []string{
		"",
		"no json here",
		"}{",
		`{"score": "not a number"}`,
	} {
		_, err := ParseVerdict(content)
		assert.Error(t, err, "content=%q", content)
	}
}

func TestBuildPromptTruncatesResponse(t *testing.T) {
	req := Request{
		Query:         "find java developers",
		Response:      string(make([]byte, maxResponseChars+100)),
		CriterionName: "relevance",
		Criterion:     "Is the answer relevant?",
	}

	prompt := buildPrompt(req)
	assert.Contains(t, prompt, "...[truncated]")
	assert.Less(t, len(prompt), maxResponseChars+500)
}

func TestBuildPromptIncludesExpectedResult(t *testing.T) {
	with := buildPrompt(Request{Query: "q", ExpectedResult: "a list", Response: "r", CriterionName: "c", Criterion: "p"})
	without := buildPrompt(Request{Query: "q", Response: "r", CriterionName: "c", Criterion: "p"})

	assert.Contains(t, with, "Expected result:")
	assert.NotContains(t, without, "Expected result:")
}
