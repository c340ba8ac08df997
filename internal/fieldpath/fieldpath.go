// Package fieldpath resolves dotted, bracket-indexed paths like "a.b[0].c"
// inside raw JSON documents. Absence is the uniform not-found signal; no
// input ever causes a panic or an error.
package fieldpath

import (
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// ValidJSON reports whether raw is a well-formed JSON document
func ValidJSON(raw string) bool {
	return gjson.Valid(raw)
}

// Resolve extracts the value at path from rawJSON. The second return value
// is false when the document is not valid JSON, any segment is missing, an
// index is out of range, or a non-container is traversed.
func Resolve(rawJSON, path string) (gjson.Result, bool) {
	if path == "" || !gjson.ValidBytes([]byte(rawJSON)) {
		return gjson.Result{}, false
	}

	gpath, ok := translate(path)
	if !ok {
		return gjson.Result{}, false
	}

	result := gjson.Get(rawJSON, gpath)
	if !result.Exists() {
		return gjson.Result{}, false
	}
	return result, true
}

// ResolveString resolves a path and stringifies the value. Objects and
// arrays come back as their compact JSON text.
func ResolveString(rawJSON, path string) (string, bool) {
	result, ok := Resolve(rawJSON, path)
	if !ok {
		return "", false
	}
	return result.String(), true
}

// translate rewrites "a.b[0].c" into gjson's "a.b.0.c" form, escaping
// characters gjson treats as wildcards or modifiers inside key names.
func translate(path string) (string, bool) {
	var out strings.Builder

	for i, segment := range strings.Split(path, ".") {
		if i > 0 {
			out.WriteByte('.')
		}

		name := segment
		var indices []string
		for {
			open := strings.LastIndexByte(name, '[')
			if open < 0 {
				break
			}
			if !strings.HasSuffix(name, "]") {
				return "", false
			}
			idx := name[open+1 : len(name)-1]
			if _, err := strconv.ParseUint(idx, 10, 32); err != nil {
				return "", false
			}
			indices = append([]string{idx}, indices...)
			name = name[:open]
		}

		if name == "" {
			return "", false
		}
		out.WriteString(escapeKey(name))
		for _, idx := range indices {
			out.WriteByte('.')
			out.WriteString(idx)
		}
	}

	return out.String(), true
}

func escapeKey(name string) string {
	var out strings.Builder
	for _, r := range name {
		switch r {
		case '*', '?', '#', '@', '\\', '.', '|':
			out.WriteByte('\\')
		}
		out.WriteRune(r)
	}
	return out.String()
}
