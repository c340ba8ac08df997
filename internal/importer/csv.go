// Package importer parses bulk query uploads in CSV form.
package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/hirewise/qa-backoffice/api/internal/db"
)

// Column layout: query text, expected result, category, logic field,
// logic value, criteria. Criteria cells hold "name: prompt" pairs joined
// by ";". A header row starting with "query" is skipped.
const (
	colQuery = iota
	colExpected
	colCategory
	colLogicField
	colLogicValue
	colCriteria
	columnCount
)

// ParsedQuery is one imported row before persistence
type ParsedQuery struct {
	RowID          string
	Text           string
	ExpectedResult string
	Category       string
	LogicField     string
	LogicValue     string
	Criteria       []db.Criterion
}

// Parse reads queries from CSV. Rows with a blank query text are dropped
// silently; each kept row gets a synthetic Q-<ordinal> row ID for error
// reporting and UI anchoring.
func Parse(r io.Reader) ([]ParsedQuery, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var queries []ParsedQuery
	first := true
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}

		if first {
			first = false
			if len(record) > 0 && strings.EqualFold(strings.TrimSpace(record[colQuery]), "query") {
				continue
			}
		}

		text := strings.TrimSpace(cell(record, colQuery))
		if text == "" {
			continue
		}

		queries = append(queries, ParsedQuery{
			RowID:          fmt.Sprintf("Q-%d", len(queries)+1),
			Text:           text,
			ExpectedResult: strings.TrimSpace(cell(record, colExpected)),
			Category:       strings.TrimSpace(cell(record, colCategory)),
			LogicField:     strings.TrimSpace(cell(record, colLogicField)),
			LogicValue:     strings.TrimSpace(cell(record, colLogicValue)),
			Criteria:       parseCriteria(cell(record, colCriteria)),
		})
	}

	return queries, nil
}

// Export writes queries back out in the import column layout
func Export(w io.Writer, queries []db.Query) error {
	writer := csv.NewWriter(w)

	if err := writer.Write([]string{"query", "expected_result", "category", "logic_field", "logic_value", "criteria"}); err != nil {
		return err
	}

	for _, q := range queries {
		record := []string{q.Text, q.ExpectedResult, q.Category, q.LogicField, q.LogicValue, formatCriteria(q.Criteria)}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func cell(record []string, idx int) string {
	if idx >= len(record) {
		return ""
	}
	return record[idx]
}

func parseCriteria(raw string) []db.Criterion {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	var criteria []db.Criterion
	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		name, prompt, found := strings.Cut(part, ":")
		if !found || strings.TrimSpace(prompt) == "" {
			criteria = append(criteria, db.Criterion{
				Name:   fmt.Sprintf("criterion_%d", len(criteria)+1),
				Prompt: part,
			})
			continue
		}
		criteria = append(criteria, db.Criterion{
			Name:   strings.TrimSpace(name),
			Prompt: strings.TrimSpace(prompt),
		})
	}

	return criteria
}

func formatCriteria(criteria []db.Criterion) string {
	parts := make([]string, 0, len(criteria))
	for _, c := range criteria {
		parts = append(parts, fmt.Sprintf("%s: %s", c.Name, c.Prompt))
	}
	return strings.Join(parts, "; ")
}
