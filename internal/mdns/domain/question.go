package domain

import (
	"fmt"

	"github.com/haukened/rr-mdns/internal/mdns/common/utils"
)

// Question represents one entry of a DNS question section.
// UnicastResponse carries the mDNS QU bit (RFC 6762 §5.4).
type Question struct {
	Name            string
	Type            RRType
	Class           RRClass
	UnicastResponse bool
}

// NewQuestion constructs a Question and validates its fields.
func NewQuestion(name string, rrtype RRType, class RRClass) (Question, error) {
	q := Question{
		Name:  utils.TrimDot(name),
		Type:  rrtype,
		Class: class,
	}
	if err := q.Validate(); err != nil {
		return Question{}, err
	}
	return q, nil
}

// Validate checks whether the Question fields are structurally and semantically valid.
func (q Question) Validate() error {
	if q.Name == "" {
		return fmt.Errorf("query name must not be empty")
	}
	if err := ValidateName(q.Name); err != nil {
		return err
	}
	if !q.Type.IsValid() {
		return fmt.Errorf("unsupported RRType: %d", q.Type)
	}
	if !q.Class.IsValid() {
		return fmt.Errorf("unsupported RRClass: %d", q.Class)
	}
	return nil
}

// MaxLabelLength and MaxNameLength are the RFC 1035 §2.3.4 size limits.
const (
	MaxLabelLength = 63
	MaxNameLength  = 255
)

// ValidateName checks the label and total wire-length limits of a presentation name.
func ValidateName(name string) error {
	wire := 1 // root label
	for _, label := range utils.SplitLabels(name) {
		if len(label) > MaxLabelLength {
			return Encodingf("label too long (%d bytes): %q", len(label), label)
		}
		wire += len(label) + 1
	}
	if wire > MaxNameLength {
		return Encodingf("name too long (%d bytes): %q", wire, name)
	}
	return nil
}
