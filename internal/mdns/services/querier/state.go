package querier

import "time"

// State is the browse state of an Engine.
type State uint8

const (
	StateIdle State = iota
	StateQuerying
	StateWaitingResponses
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateQuerying:
		return "querying"
	case StateWaitingResponses:
		return "waiting"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Stats is a snapshot of engine counters.
type Stats struct {
	State           State
	PacketsReceived uint64
	Malformed       uint64
	ProtocolErrors  uint64
	RecordsAccepted uint64
	QueriesSent     uint64
	ResolveQueries  uint64
	ResolveTimeouts uint64
	Instances       int
	PendingResolves int
	Backoff         time.Duration // interval before the next scheduled browse query
}
