package store

import (
	"context"
	"testing"

	"github.com/mcdev12/cardduel/go/internal/realtime/connection"
	"github.com/mcdev12/cardduel/go/internal/realtime/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_ConnectsOnAuthentication(t *testing.T) {
	ft := newFakeTransport()
	s := New(ft, "ws://x")
	s.Attach()
	defer s.Detach()
	session := NewSession(s)
	ctx := context.Background()

	require.NoError(t, session.SetAuth(ctx, AuthState{Authenticated: true, Token: "t", Username: "ana"}))
	require.NoError(t, session.SetAuth(ctx, AuthState{Authenticated: true, Token: "t", Username: "ana"}))

	assert.True(t, s.Snapshot().IsConnected())
	assert.Equal(t, 1, ft.connects)
	assert.Equal(t, "ana", session.Auth().Username)
}

func TestSession_DisconnectsWhenAuthLost(t *testing.T) {
	ft := newFakeTransport()
	s := New(ft, "ws://x")
	s.Attach()
	defer s.Detach()
	session := NewSession(s)
	ctx := context.Background()

	require.NoError(t, session.SetAuth(ctx, AuthState{Authenticated: true, Token: "t"}))
	ft.push(events.EventGameStateUpdate, selectionSnapshot(1))

	require.NoError(t, session.SetAuth(ctx, AuthState{}))

	state := s.Snapshot()
	assert.Equal(t, connection.StateDisconnected, state.ConnectionStatus)
	assert.Nil(t, state.GameState)
}

func TestSession_UnauthenticatedWhileDisconnectedDoesNothing(t *testing.T) {
	ft := newFakeTransport()
	s := New(ft, "ws://x")
	session := NewSession(s)

	require.NoError(t, session.SetAuth(context.Background(), AuthState{}))

	assert.Equal(t, 0, ft.connects)
	assert.Equal(t, connection.StateDisconnected, s.Snapshot().ConnectionStatus)
}

func TestSession_RetriesAfterError(t *testing.T) {
	ft := newFakeTransport()
	ft.connectErr = connection.ErrTransport
	s := New(ft, "ws://x")
	s.Attach()
	defer s.Detach()
	session := NewSession(s)
	ctx := context.Background()

	require.Error(t, session.SetAuth(ctx, AuthState{Authenticated: true, Token: "t"}))
	assert.Equal(t, connection.StateError, s.Snapshot().ConnectionStatus)

	ft.mu.Lock()
	ft.connectErr = nil
	ft.mu.Unlock()
	require.NoError(t, session.SetAuth(ctx, AuthState{Authenticated: true, Token: "t"}))

	assert.True(t, s.Snapshot().IsConnected())
	assert.Equal(t, 2, ft.connects)
}
