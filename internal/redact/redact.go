package redact

import "strings"

// Placeholder replaces every secret value.
const Placeholder = "[REDACTED]"

// String returns text with every secret value replaced by Placeholder.
func String(text string) string {
	matches := Scan(text)
	if len(matches) == 0 {
		return text
	}

	var b strings.Builder
	b.Grow(len(text))
	prev := 0
	for _, m := range matches {
		b.WriteString(text[prev:m.Start])
		b.WriteString(Placeholder)
		prev = m.End
	}
	b.WriteString(text[prev:])
	return b.String()
}
