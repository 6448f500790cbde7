package querier

import "time"

// Backoff yields the intervals between browse queries: initial, doubling
// each step, capped at max.
type Backoff struct {
	initial time.Duration
	max     time.Duration
	current time.Duration
}

// NewBackoff returns a Backoff starting at initial. A max below initial is raised to initial.
func NewBackoff(initial, max time.Duration) *Backoff {
	if max < initial {
		max = initial
	}
	return &Backoff{initial: initial, max: max, current: initial}
}

// Next returns the interval to wait now and advances the schedule.
func (b *Backoff) Next() time.Duration {
	d := b.current
	b.current *= 2
	if b.current > b.max || b.current <= 0 {
		b.current = b.max
	}
	return d
}

// Peek returns the interval Next would return, without advancing.
func (b *Backoff) Peek() time.Duration { return b.current }

// Reset restarts the schedule at the initial interval.
func (b *Backoff) Reset() { b.current = b.initial }
