package store

import (
	"context"
	"sync"

	"github.com/mcdev12/cardduel/go/internal/realtime/connection"
	"github.com/rs/zerolog/log"
)

// AuthState is the slice of authentication the realtime layer cares about
type AuthState struct {
	Authenticated bool
	Token         string
	Username      string
}

// Session keeps the connection in step with authentication: it connects once
// the user is authenticated and disconnects when authentication is lost.
type Session struct {
	store *Store

	mu   sync.Mutex
	auth AuthState
}

func NewSession(store *Store) *Session {
	return &Session{store: store}
}

// Auth returns the last AuthState passed to SetAuth
func (s *Session) Auth() AuthState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.auth
}

// SetAuth records the new auth state and connects or disconnects as needed
func (s *Session) SetAuth(ctx context.Context, auth AuthState) error {
	s.mu.Lock()
	s.auth = auth
	s.mu.Unlock()

	status := s.store.Snapshot().ConnectionStatus

	if auth.Authenticated {
		if status != connection.StateDisconnected && status != connection.StateError {
			return nil
		}
		log.Info().Str("username", auth.Username).Msg("authenticated, connecting")
		return s.store.Connect(ctx, connection.Credentials{Token: auth.Token, Username: auth.Username})
	}

	switch status {
	case connection.StateConnected, connection.StateConnecting, connection.StateReconnecting:
		log.Info().Msg("authentication lost, disconnecting")
		s.store.Disconnect()
	}
	return nil
}
