package domain

import (
	"fmt"
	"strings"
	"time"
)

// IgnoreRuleKind defines how an ignore rule matches service instance names.
//
// exact  - matches the full instance name only
// suffix - matches the name and anything below it, e.g. a whole service type
type IgnoreRuleKind uint8

const (
	// IgnoreExact matches only the exact name.
	IgnoreExact IgnoreRuleKind = iota
	// IgnoreSuffix matches the name and all names below it (apex-inclusive).
	IgnoreSuffix
)

// String returns a stable string representation of the rule kind.
func (k IgnoreRuleKind) String() string {
	switch k {
	case IgnoreExact:
		return "exact"
	case IgnoreSuffix:
		return "suffix"
	default:
		return fmt.Sprintf("IgnoreRuleKind(%d)", k)
	}
}

// ParseIgnoreRuleKind converts a string into an IgnoreRuleKind.
// Accepts: "exact", "suffix" (case-insensitive).
func ParseIgnoreRuleKind(s string) (IgnoreRuleKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "exact":
		return IgnoreExact, nil
	case "suffix":
		return IgnoreSuffix, nil
	default:
		return 0, fmt.Errorf("unsupported IgnoreRuleKind: %q", s)
	}
}

// IgnoreRule hides matching instances from discovery callbacks.
//
// Notes:
// - Name is canonical (lower-case, no trailing dot).
// - Source identifies where the rule came from (file path or "config").
type IgnoreRule struct {
	Name    string
	Kind    IgnoreRuleKind
	Source  string
	AddedAt time.Time
}

// NewIgnoreRule constructs an IgnoreRule and validates its fields.
func NewIgnoreRule(name string, kind IgnoreRuleKind, source string, addedAt time.Time) (IgnoreRule, error) {
	r := IgnoreRule{
		Name:    strings.TrimSpace(name),
		Kind:    kind,
		Source:  strings.TrimSpace(source),
		AddedAt: addedAt,
	}
	if err := r.Validate(); err != nil {
		return IgnoreRule{}, err
	}
	return r, nil
}

// Validate checks the IgnoreRule for required fields and supported values.
func (r IgnoreRule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("rule name must not be empty")
	}
	if r.Source == "" {
		return fmt.Errorf("rule source must not be empty")
	}
	if r.AddedAt.IsZero() {
		return fmt.Errorf("rule addedAt must be set")
	}
	switch r.Kind {
	case IgnoreExact, IgnoreSuffix:
	default:
		return fmt.Errorf("unsupported IgnoreRuleKind: %d", r.Kind)
	}
	return nil
}

// IgnoreDecision is the outcome of checking an instance name against the ignore list.
type IgnoreDecision struct {
	Ignored     bool
	MatchedRule string
	Source      string
	Kind        IgnoreRuleKind
}

// AllowDecision returns a not-ignored decision.
func AllowDecision() IgnoreDecision { return IgnoreDecision{} }
