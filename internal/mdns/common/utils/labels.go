package utils

import "strings"

// SplitLabels splits a presentation-format name into its raw labels.
// A backslash escapes the following byte, so `HP\.Office.local` yields
// ["HP.Office", "local"]. Empty labels produced by a leading or doubled dot are dropped.
func SplitLabels(name string) []string {
	name = TrimDot(name)
	if name == "" {
		return nil
	}
	var (
		labels  []string
		current strings.Builder
		escaped bool
	)
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case escaped:
			current.WriteByte(c)
			escaped = false
		case c == '\\':
			escaped = true
		case c == '.':
			if current.Len() > 0 {
				labels = append(labels, current.String())
			}
			current.Reset()
		default:
			current.WriteByte(c)
		}
	}
	if escaped {
		// dangling backslash is kept literally
		current.WriteByte('\\')
	}
	if current.Len() > 0 {
		labels = append(labels, current.String())
	}
	return labels
}

// EscapeLabel escapes dots and backslashes so a raw label survives SplitLabels.
func EscapeLabel(label string) string {
	if !strings.ContainsAny(label, `.\`) {
		return label
	}
	var b strings.Builder
	for i := 0; i < len(label); i++ {
		if label[i] == '.' || label[i] == '\\' {
			b.WriteByte('\\')
		}
		b.WriteByte(label[i])
	}
	return b.String()
}

// JoinLabels is the inverse of SplitLabels.
func JoinLabels(labels []string) string {
	escaped := make([]string, len(labels))
	for i, l := range labels {
		escaped[i] = EscapeLabel(l)
	}
	return strings.Join(escaped, ".")
}
