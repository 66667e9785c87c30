package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/cardduel/go/internal/realtime/connection"
	"github.com/mcdev12/cardduel/go/internal/realtime/events"
	"github.com/rs/zerolog/log"
)

// Transport is what the store needs from the connection manager
type Transport interface {
	Connect(ctx context.Context, endpoint string, creds connection.Credentials) error
	Disconnect()
	On(event events.EventType, handler connection.Handler) *connection.Subscription
	Emit(event events.EventType, payload interface{}) bool
}

// Listener observes every transition. It runs after the state has been replaced.
type Listener func(prev, next State, action Action)

// Store turns transport events into a single State and forwards commands
type Store struct {
	transport Transport
	endpoint  string
	clock     clockwork.Clock

	mu        sync.RWMutex
	state     State
	listeners []*listenerEntry
	nextID    uint64
	subs      []*connection.Subscription
}

type listenerEntry struct {
	id uint64
	fn Listener
}

// Option configures a Store
type Option func(*Store)

// WithClock overrides the clock used for LastConnectedAt
func WithClock(clock clockwork.Clock) Option {
	return func(s *Store) {
		s.clock = clock
	}
}

// New creates a store bound to transport and endpoint
func New(transport Transport, endpoint string, opts ...Option) *Store {
	s := &Store{
		transport: transport,
		endpoint:  endpoint,
		clock:     clockwork.NewRealClock(),
		state:     InitialState(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns the current state
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Subscribe registers a listener and returns a function that removes it
func (s *Store) Subscribe(l Listener) func() {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners = append(s.listeners, &listenerEntry{id: id, fn: l})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, e := range s.listeners {
			if e.id == id {
				next := make([]*listenerEntry, 0, len(s.listeners)-1)
				next = append(next, s.listeners[:i]...)
				s.listeners = append(next, s.listeners[i+1:]...)
				return
			}
		}
	}
}

// Dispatch reduces action into the state and notifies listeners
func (s *Store) Dispatch(action Action) State {
	s.mu.Lock()
	prev := s.state
	next := Reduce(prev, action)
	s.state = next
	listeners := s.listeners
	s.mu.Unlock()

	log.Debug().
		Str("action", string(action.Type())).
		Str("status", next.ConnectionStatus.String()).
		Msg("store transition")

	for _, e := range listeners {
		e.fn(prev, next, action)
	}
	return next
}

// Attach wires transport events to reducer actions
func (s *Store) Attach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.subs) > 0 {
		return
	}

	handlers := map[events.EventType]connection.Handler{
		events.EventConnect:               s.handleConnect,
		events.EventDisconnect:            s.handleDisconnect,
		events.EventReconnectAttempt:      s.handleReconnectAttempt,
		events.EventReconnect:             s.handleReconnect,
		events.EventReconnectFailed:       s.handleReconnectFailed,
		events.EventConnectError:          s.handleConnectError,
		events.EventGameStateUpdate:       s.handleGameStateUpdate,
		events.EventGameTimerUpdate:       s.handleTimerUpdate,
		events.EventGameTurnTimeout:       s.handleWrappedGameState(events.EventGameTurnTimeout),
		events.EventGameTurnResolved:      s.handleWrappedGameState(events.EventGameTurnResolved),
		events.EventGamePlayerReady:       s.handleWrappedGameState(events.EventGamePlayerReady),
		events.EventGameJoined:            s.handleWrappedGameState(events.EventGameJoined),
		events.EventGameLeft:              s.handleGameLeft,
		events.EventTournamentStateUpdate: s.handleTournamentStateUpdate,
		events.EventError:                 s.handleServerError,
	}

	// fixed order keeps registration deterministic
	order := []events.EventType{
		events.EventConnect, events.EventDisconnect, events.EventReconnectAttempt,
		events.EventReconnect, events.EventReconnectFailed, events.EventConnectError,
		events.EventGameStateUpdate, events.EventGameTimerUpdate, events.EventGameTurnTimeout,
		events.EventGameTurnResolved, events.EventGamePlayerReady, events.EventGameJoined,
		events.EventGameLeft, events.EventTournamentStateUpdate, events.EventError,
	}
	for _, name := range order {
		s.subs = append(s.subs, s.transport.On(name, handlers[name]))
	}
}

// Detach removes every handler installed by Attach
func (s *Store) Detach() {
	s.mu.Lock()
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
}

// Connect moves to connecting and performs the handshake. The caller awaits it.
func (s *Store) Connect(ctx context.Context, creds connection.Credentials) error {
	if s.Snapshot().IsConnected() {
		return nil
	}

	s.Dispatch(SetConnectionStatus{Status: connection.StateConnecting})

	if err := s.transport.Connect(ctx, s.endpoint, creds); err != nil {
		if errors.Is(err, connection.ErrConnectInProgress) {
			return nil
		}
		// a transport that raised connect_error has already settled the state
		if s.Snapshot().ConnectionStatus == connection.StateConnecting {
			s.Dispatch(SetError{Message: err.Error(), Source: ErrorSourceTransport})
			s.Dispatch(SetConnectionStatus{Status: connection.StateError})
		}
		return fmt.Errorf("connect to game server: %w", err)
	}

	// the transport skips the connect event when it was already connected
	if !s.Snapshot().IsConnected() {
		s.Dispatch(SetConnectionStatus{Status: connection.StateConnected, At: s.clock.Now()})
	}
	return nil
}

// Disconnect closes the transport and drops game and tournament state
func (s *Store) Disconnect() {
	s.transport.Disconnect()

	state := s.Snapshot()
	if state.ConnectionStatus != connection.StateDisconnected {
		s.Dispatch(SetConnectionStatus{Status: connection.StateDisconnected})
	}
	if state.GameState != nil || state.TournamentState != nil {
		s.Dispatch(ClearStates{})
	}
	if state.ReconnectAttempts != 0 {
		s.Dispatch(SetReconnectAttempts{Attempts: 0})
	}
}

func (s *Store) handleConnect(json.RawMessage) {
	s.Dispatch(SetReconnectAttempts{Attempts: 0})
	s.Dispatch(SetConnectionStatus{Status: connection.StateConnected, At: s.clock.Now()})
}

func (s *Store) handleDisconnect(data json.RawMessage) {
	p, ok := parse[events.DisconnectPayload](events.EventDisconnect, data)
	if !ok {
		return
	}

	if p.WillReconnect {
		// keep the in-progress game; the next push after reconnect corrects it
		s.Dispatch(SetConnectionStatus{Status: connection.StateReconnecting})
		return
	}

	s.Dispatch(SetConnectionStatus{Status: connection.StateDisconnected})
	s.Dispatch(ClearStates{})
	s.Dispatch(SetReconnectAttempts{Attempts: 0})
}

func (s *Store) handleReconnectAttempt(data json.RawMessage) {
	p, ok := parse[events.AttemptPayload](events.EventReconnectAttempt, data)
	if !ok {
		return
	}
	s.Dispatch(SetConnectionStatus{Status: connection.StateReconnecting})
	s.Dispatch(SetReconnectAttempts{Attempts: p.Attempt})
}

func (s *Store) handleReconnect(json.RawMessage) {
	s.Dispatch(SetReconnectAttempts{Attempts: 0})
	s.Dispatch(SetConnectionStatus{Status: connection.StateConnected, At: s.clock.Now()})
}

func (s *Store) handleReconnectFailed(data json.RawMessage) {
	p, ok := parse[events.AttemptPayload](events.EventReconnectFailed, data)
	if !ok {
		return
	}
	s.Dispatch(SetError{
		Message: fmt.Sprintf("reconnection failed after %d attempts", p.Attempt),
		Source:  ErrorSourceTransport,
	})
	s.Dispatch(SetConnectionStatus{Status: connection.StateError})
	s.Dispatch(ClearStates{})
}

func (s *Store) handleConnectError(data json.RawMessage) {
	p, ok := parse[events.ConnectErrorPayload](events.EventConnectError, data)
	if !ok {
		return
	}
	s.Dispatch(SetError{Message: p.Message, Source: ErrorSourceTransport})

	switch s.Snapshot().ConnectionStatus {
	case connection.StateConnecting:
		s.Dispatch(SetConnectionStatus{Status: connection.StateError})
	case connection.StateReconnecting:
		// a fatal failure inside the reconnect loop ends it
		if p.Fatal {
			s.Dispatch(SetConnectionStatus{Status: connection.StateError})
			s.Dispatch(ClearStates{})
		}
	}
}

func (s *Store) handleGameStateUpdate(data json.RawMessage) {
	snap, ok := parse[events.GameSnapshot](events.EventGameStateUpdate, data)
	if !ok {
		return
	}
	s.Dispatch(UpdateGameState{GameState: &snap})
}

func (s *Store) handleTimerUpdate(data json.RawMessage) {
	u, ok := parse[events.TimerUpdate](events.EventGameTimerUpdate, data)
	if !ok {
		return
	}

	prior := s.Snapshot().GameState
	if prior == nil {
		log.Debug().Int("turn", u.CurrentTurn).Msg("timer update without a game, ignoring")
		return
	}
	s.Dispatch(UpdateGameState{GameState: prior.MergeTimer(u)})
}

func (s *Store) handleWrappedGameState(event events.EventType) connection.Handler {
	return func(data json.RawMessage) {
		p, ok := parse[events.GameStatePayload](event, data)
		if !ok {
			return
		}
		if p.GameState == nil {
			log.Warn().Str("event", string(event)).Msg("event without game state, ignoring")
			return
		}
		s.Dispatch(UpdateGameState{GameState: p.GameState})
	}
}

func (s *Store) handleGameLeft(json.RawMessage) {
	s.Dispatch(UpdateGameState{GameState: nil})
}

func (s *Store) handleTournamentStateUpdate(data json.RawMessage) {
	t, ok := parse[events.TournamentSnapshot](events.EventTournamentStateUpdate, data)
	if !ok {
		return
	}
	s.Dispatch(UpdateTournamentState{TournamentState: &t})
}

func (s *Store) handleServerError(data json.RawMessage) {
	p, ok := parse[events.ErrorPayload](events.EventError, data)
	if !ok {
		return
	}
	log.Warn().Str("code", p.Code).Str("message", p.Message).Msg("server reported an error")
	s.Dispatch(SetError{Message: p.Message, Source: ErrorSourceServer})
}

// parse decodes data through events.ParsePayload. Malformed payloads are logged and dropped.
func parse[T any](event events.EventType, data json.RawMessage) (T, bool) {
	var zero T
	if events.IsNull(data) {
		data = json.RawMessage("null")
	}
	payload, err := events.ParsePayload(event, data)
	if err != nil {
		log.Error().Err(err).Str("event", string(event)).Msg("failed to decode event payload")
		return zero, false
	}
	p, ok := payload.(T)
	if !ok {
		log.Error().Str("event", string(event)).Msgf("unexpected payload type %T", payload)
		return zero, false
	}
	return p, true
}
