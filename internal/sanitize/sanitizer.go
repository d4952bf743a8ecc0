// Package sanitize bounds and cleans the fields of a ToolRequest before
// they are embedded in an LLM prompt, and supplements that with an
// injection-pattern scanner. Grounded on the teacher's
// internal/sanitize.Scanner for the scanning half; the field-bounding half
// is spec-native (SPEC_FULL.md §4.5), sized to preclude prompt-length DoS.
package sanitize

import (
	"fmt"
	"html"
	"regexp"
	"sort"
	"strings"
)

const (
	maxPathLen     = 500
	maxFreeTextLen = 2000
	maxKeyLen      = 100
	maxValueLen    = 1000
)

var (
	pathTraversal = regexp.MustCompile(`\.\./`)
	controlChars  = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]`)
	keyAllowed    = regexp.MustCompile(`[^A-Za-z0-9_-]`)
)

// Sanitized is the cleaned, size-bounded view of a request ready to embed
// in an LLM prompt.
type Sanitized struct {
	ToolName   string
	Cwd        string
	Parameters map[string]string
	SessionID  string
	AgentID    string
}

// Path strips "../" sequences and control characters from a path-like
// string, then truncates it to maxPathLen.
func Path(s string) string {
	s = pathTraversal.ReplaceAllString(s, "")
	s = controlChars.ReplaceAllString(s, "")
	return truncate(s, maxPathLen)
}

// FreeText HTML-escapes a free-text field, strips control characters, and
// truncates it to maxFreeTextLen. HTML-escaping and control-char stripping
// happen before truncation so the bound holds after escaping has expanded
// the string; an escape sequence the truncation cuts short is dropped
// whole, so the result never ends mid-escape-sequence.
func FreeText(s string) string {
	s = controlChars.ReplaceAllString(s, "")
	s = html.EscapeString(s)
	s = truncate(s, maxFreeTextLen)
	if i := strings.LastIndexByte(s, '&'); i >= 0 && !strings.Contains(s[i:], ";") {
		s = s[:i]
	}
	return s
}

// Key restricts a parameter key to [A-Za-z0-9_-] and truncates it to
// maxKeyLen.
func Key(s string) string {
	s = keyAllowed.ReplaceAllString(s, "")
	return truncate(s, maxKeyLen)
}

// Value stringifies an arbitrary parameter value (nested maps/slices
// included) and truncates the result to maxValueLen.
func Value(v any) string {
	return truncate(fmt.Sprint(v), maxValueLen)
}

// Parameters sanitizes every key/value pair of a request's parameters tree
// for prompt embedding, in a deterministic key order so prompts (and any
// downstream fixtures built on them) are reproducible.
func Parameters(params map[string]any) map[string]string {
	out := make(map[string]string, len(params))
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out[Key(k)] = Value(params[k])
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
