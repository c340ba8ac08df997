package importer

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hirewise/qa-backoffice/api/internal/db"
)

func TestParse(t *testing.T) {
	input := strings.Join([]string{
		`query,expected_result,category,logic_field,logic_value,criteria`,
		`find java developers,list of candidates,search,status,COMPLETED,relevance: Is the answer relevant?; tone: Is the tone professional?`,
		`,ignored,ignored,,,`,
		`schedule an interview,,scheduling,,,`,
	}, "\n")

	queries, err := Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, queries, 2)

	q := queries[0]
	assert.Equal(t, "Q-1", q.RowID)
	assert.Equal(t, "find java developers", q.Text)
	assert.Equal(t, "list of candidates", q.ExpectedResult)
	assert.Equal(t, "search", q.Category)
	assert.Equal(t, "status", q.LogicField)
	assert.Equal(t, "COMPLETED", q.LogicValue)
	assert.Equal(t, []db.Criterion{
		{Name: "relevance", Prompt: "Is the answer relevant?"},
		{Name: "tone", Prompt: "Is the tone professional?"},
	}, q.Criteria)

	assert.Equal(t, "Q-2", queries[1].RowID)
	assert.Equal(t, "schedule an interview", queries[1].Text)
	assert.Empty(t, queries[1].Criteria)
}

func TestParseWithoutHeader(t *testing.T) {
	queries, err := Parse(strings.NewReader("show open positions,,,,,\n"))
	require.NoError(t, err)
	require.Len(t, queries, 1)
	assert.Equal(t, "show open positions", queries[0].Text)
}

func TestParseShortRows(t *testing.T) {
	queries, err := Parse(strings.NewReader("just a query\n"))
	require.NoError(t, err)
	require.Len(t, queries, 1)
	assert.Equal(t, "just a query", queries[0].Text)
	assert.Empty(t, queries[0].LogicField)
}

func TestParseUnnamedCriterion(t *testing.T) {
	queries, err := Parse(strings.NewReader(`q,,,,,Is the answer polite?` + "\n"))
	require.NoError(t, err)
	require.Len(t, queries, 1)
	assert.Equal(t, []db.Criterion{
		{Name: "criterion_1", Prompt: "Is the answer polite?"},
	}, queries[0].Criteria)
}

func TestExportRoundTrip(t *testing.T) {
	original := []db.Query{
		{
			Text:           "find java developers",
			ExpectedResult: "list of candidates",
			Category:       "search",
			LogicField:     "status",
			LogicValue:     "COMPLETED",
			Criteria:       []db.Criterion{{Name: "relevance", Prompt: "Is the answer relevant?"}},
		},
		{Text: "schedule an interview", Category: "scheduling"},
	}

	var buf bytes.Buffer
	require.NoError(t, Export(&buf, original))

	queries, err := Parse(&buf)
	require.NoError(t, err)
	require.Len(t, queries, 2)

	assert.Equal(t, original[0].Text, queries[0].Text)
	assert.Equal(t, original[0].ExpectedResult, queries[0].ExpectedResult)
	assert.Equal(t, original[0].LogicField, queries[0].LogicField)
	assert.Equal(t, original[0].LogicValue, queries[0].LogicValue)
	assert.Equal(t, original[0].Criteria, queries[0].Criteria)
	assert.Equal(t, original[1].Text, queries[1].Text)
}
