// Package logic implements the deterministic field check applied to raw
// agent responses. Pure functions, no I/O.
package logic

import (
	"fmt"
	"strings"

	"github.com/hirewise/qa-backoffice/api/internal/fieldpath"
)

// previewLimit bounds the actual-value excerpt kept for audit display
const previewLimit = 200

// Outcome is the result of one logic check
type Outcome struct {
	// Result is "" when no check is configured, "PASS", or a FAIL text
	// naming the failure cause.
	Result string
	// ActualPreview is the resolved value truncated for audit display.
	ActualPreview string
}

// Passed reports whether the check ran and passed
func (o Outcome) Passed() bool {
	return o.Result == "PASS"
}

// Failed reports whether the check ran and failed
func (o Outcome) Failed() bool {
	return strings.HasPrefix(o.Result, "FAIL")
}

// Evaluate checks that the value at path inside rawJSON contains expected as
// a substring (exact, case-sensitive). A missing field, invalid JSON or
// out-of-range index is a FAIL outcome, never an error. An unset path or
// expected value means no check is configured and yields a neutral outcome.
func Evaluate(rawJSON, path, expected string) Outcome {
	if path == "" || expected == "" {
		return Outcome{}
	}

	if !fieldpath.ValidJSON(rawJSON) {
		return Outcome{Result: "FAIL: response is not valid JSON"}
	}

	actual, found := fieldpath.ResolveString(rawJSON, path)
	if !found {
		return Outcome{Result: fmt.Sprintf("FAIL: field not found: %s", path)}
	}

	preview := actual
	if len(preview) > previewLimit {
		preview = preview[:previewLimit]
	}

	if strings.Contains(actual, expected) {
		return Outcome{Result: "PASS", ActualPreview: preview}
	}
	return Outcome{
		Result:        fmt.Sprintf("FAIL: %q not found in field %s", expected, path),
		ActualPreview: preview,
	}
}
