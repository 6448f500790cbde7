package utils

import "strings"

// CanonicalDNSName returns a DNS name in canonical form:
// - Lowercased
// - Trimmed of surrounding whitespace
// - No trailing dot because it doesn't add any runtime benefit, only legacy baggage.
//
// mDNS names compare case-insensitively, so the canonical form is what cache
// keys and waiter maps are built from. Display strings keep their original case.
func CanonicalDNSName(name string) string {
	return strings.ToLower(TrimDot(strings.TrimSpace(name)))
}

// TrimDot removes all trailing dots from name without touching its case.
// An escaped trailing dot ("foo\.") is part of the last label and is kept.
func TrimDot(name string) string {
	for strings.HasSuffix(name, ".") && !strings.HasSuffix(name, `\.`) {
		name = strings.TrimSuffix(name, ".")
	}
	return name
}
