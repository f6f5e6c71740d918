package chatwire

// ConnState represents the lifecycle state of a client connection.
type ConnState int32

const (
	// StateIdle is the initial state, before Connect or after a clean Close.
	StateIdle ConnState = iota

	// StateConnecting means the transport dial is in progress.
	StateConnecting

	// StateAuthenticating means the socket is open and the authenticate
	// handshake is in flight. The connection is not usable yet.
	StateAuthenticating

	// StateConnected means the handshake succeeded and frames are flowing.
	StateConnected

	// StateReconnecting means the connection was lost unexpectedly and
	// backoff retries are scheduled.
	StateReconnecting

	// StateFailed is terminal until a fresh Connect call resets the
	// attempt counters. Entered when the retry budget is exhausted or the
	// credential is permanently rejected.
	StateFailed
)

// String returns the string representation of the state.
func (s ConnState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// validTransition reports whether moving from one state to another is legal.
// Failed is only left through a fresh Connect, which goes back to Connecting.
func validTransition(from, to ConnState) bool {
	allowed := map[ConnState][]ConnState{
		StateIdle:           {StateConnecting},
		StateConnecting:     {StateAuthenticating, StateReconnecting, StateFailed, StateIdle},
		StateAuthenticating: {StateConnected, StateReconnecting, StateFailed, StateIdle},
		StateConnected:      {StateReconnecting, StateIdle},
		StateReconnecting:   {StateConnecting, StateFailed, StateIdle},
		StateFailed:         {StateConnecting, StateIdle},
	}

	for _, valid := range allowed[from] {
		if to == valid {
			return true
		}
	}
	return false
}
