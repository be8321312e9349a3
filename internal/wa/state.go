package wa

import "errors"

// State is the connection lifecycle state. Exactly one Manager (and thus
// one state) is live per process.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateAwaitingPairing
	StateOpen
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAwaitingPairing:
		return "awaiting-pairing"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// ErrNotReady is returned for operations that require an open connection.
var ErrNotReady = errors.New("wa: client is not ready")

// willRetry decides whether a closed connection schedules a reconnect.
// An explicit logout invalidates the credentials, so retrying is pointless
// until the user re-pairs; an explicit stop means the caller wants us down.
// Every other close reason retries.
func willRetry(loggedOut, explicitStop bool) bool {
	return !loggedOut && !explicitStop
}
