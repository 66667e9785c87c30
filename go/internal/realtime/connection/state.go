package connection

// ConnectionState represents the current state of the game server connection.
type ConnectionState int

const (
	// StateDisconnected means the client is not connected.
	StateDisconnected ConnectionState = iota

	// StateConnecting means the initial handshake is in progress.
	StateConnecting

	// StateConnected means the transport is open and authenticated.
	StateConnected

	// StateReconnecting means the transport dropped and a retry is scheduled or running.
	StateReconnecting

	// StateError means the last attempt failed and no automatic retry is pending.
	StateError
)

// String returns the string representation of a ConnectionState.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalText lets the state appear by name in JSON and logs.
func (s ConnectionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
