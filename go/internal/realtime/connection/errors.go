package connection

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthentication is returned when the server rejects the credentials during the handshake
	ErrAuthentication = errors.New("authentication rejected")
	// ErrTransport wraps network-level dial failures
	ErrTransport = errors.New("transport failure")
	// ErrConnectInProgress is returned by Connect while another handshake is running
	ErrConnectInProgress = errors.New("connect already in progress")
	// ErrConnectAborted is returned when Disconnect runs during the handshake
	ErrConnectAborted = errors.New("connect aborted by disconnect")
)

// ErrorKind classifies a ConnectError
type ErrorKind string

const (
	KindTransport      ErrorKind = "transport"
	KindAuthentication ErrorKind = "authentication"
)

// ConnectError is returned by a failed dial
type ConnectError struct {
	Kind     ErrorKind
	Endpoint string
	Err      error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s (%s): %v", e.Endpoint, e.Kind, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// Fatal reports whether retrying with the same credentials is pointless
func (e *ConnectError) Fatal() bool {
	return e.Kind == KindAuthentication
}
