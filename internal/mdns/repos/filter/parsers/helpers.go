package parsers

import (
	"strings"

	"github.com/haukened/rr-mdns/internal/mdns/common/utils"
	"github.com/haukened/rr-mdns/internal/mdns/domain"
)

// ruleKindFromRaw decides the IgnoreRuleKind based on the raw input.
// Returns IgnoreSuffix if the name begins with "*." or ".", otherwise IgnoreExact.
func ruleKindFromRaw(raw string) domain.IgnoreRuleKind {
	if strings.HasPrefix(raw, "*.") || strings.HasPrefix(raw, ".") {
		return domain.IgnoreSuffix
	}
	return domain.IgnoreExact
}

// normalizeName trims whitespace, strips a leading "*." or "." marker and
// returns the canonical form.
func normalizeName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.TrimPrefix(name, "*.")
	name = strings.TrimPrefix(name, ".")
	return utils.CanonicalDNSName(name)
}

// isValidName checks the DNS length limits and requires at least two labels.
// Instance labels are free-form UTF-8 (RFC 6763 §4.1.1), so no character
// rules are applied beyond rejecting '*' left inside the name.
func isValidName(name string) bool {
	if strings.Contains(name, "*") {
		return false
	}
	if len(utils.SplitLabels(name)) < 2 {
		return false
	}
	return domain.ValidateName(name) == nil
}
