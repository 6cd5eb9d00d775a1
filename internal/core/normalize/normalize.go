// Package normalize cleans free-text cell values from log messages before
// they are compared, deduplicated or rendered.
// Pipeline order
// 1 UTF-8 repair drop invalid bytes
// 2 Unicode NFC composition
// 3 Remove format chars (ZWSP ZWJ BOM) and controls other than newline and tab
// 4 Normalize line endings, strip trailing spaces per line, trim the value
package normalize

import (
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// pool of fresh transformer chains
var chainPool = sync.Pool{
	New: func() any {
		return transform.Chain(
			norm.NFC,
			runes.Remove(runes.In(unicode.Cf)),
			runes.Remove(runes.Predicate(isStrayControl)),
		)
	},
}

func isStrayControl(r rune) bool {
	return unicode.IsControl(r) && r != '\n' && r != '\t' && r != '\r'
}

// Text returns the normalized form of s following the pipeline described above.
// It is idempotent and safe for concurrent use
func Text(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ToValidUTF8(s, "")

	tr := chainPool.Get().(transform.Transformer)
	ns, _, err := transform.String(tr, s)
	tr.Reset()
	chainPool.Put(tr)
	if err != nil {
		ns = s
	}
	return tidyLines(ns)
}

// tidyLines converts CRLF and CR to LF, drops trailing blanks of every line
// and trims leading and trailing blank space of the whole value
func tidyLines(s string) string {
	if !strings.ContainsAny(s, "\r\n") {
		return strings.TrimSpace(s)
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRightFunc(l, unicode.IsSpace)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// Value applies Text to strings and returns every other value unchanged
func Value(v any) any {
	if s, ok := v.(string); ok {
		return Text(s)
	}
	return v
}
