package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/cardduel/go/internal/realtime/events"
	"github.com/rs/zerolog/log"
)

// CloseServerDisconnect is the close code the game server uses to tell a client to go away
const CloseServerDisconnect = 4000

// Config holds configuration for the game server connection
type Config struct {
	BaseDelay            time.Duration
	MaxReconnectAttempts int
	WriteTimeout         time.Duration
	ReadTimeout          time.Duration // 0 disables the read deadline
	HandshakeTimeout     time.Duration
	MaxMessageSize       int64
	SendBuffer           int

	// Close codes that mean "do not reconnect"
	NoReconnectCloseCodes []int
}

// DefaultConfig returns default connection configuration
func DefaultConfig() Config {
	return Config{
		BaseDelay:            time.Second,
		MaxReconnectAttempts: 5,
		WriteTimeout:         10 * time.Second,
		ReadTimeout:          60 * time.Second,
		HandshakeTimeout:     10 * time.Second,
		MaxMessageSize:       1 << 20, // 1MB
		SendBuffer:           256,
		NoReconnectCloseCodes: []int{
			websocket.CloseNormalClosure,
			websocket.ClosePolicyViolation,
			CloseServerDisconnect,
		},
	}
}

// Credentials authenticate the handshake
type Credentials struct {
	Token    string
	Username string
}

// Manager owns the single connection to the game server
type Manager struct {
	config   Config
	clock    clockwork.Clock
	dialer   *websocket.Dialer
	registry *Registry

	mu              sync.Mutex
	state           ConnectionState
	session         *session
	endpoint        string
	creds           Credentials
	attempts        int
	lastConnectedAt time.Time
	lastErr         error
	reconnectCancel context.CancelFunc
}

// session is one open websocket plus its pumps
type session struct {
	id   string
	ws   *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (s *session) terminate() {
	s.once.Do(func() {
		close(s.done)
		s.ws.Close()
	})
}

func (s *session) enqueue(msg []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}

	select {
	case s.send <- msg:
		return true
	default:
		return false
	}
}

// NewManager creates a connection manager. A nil clock uses the real clock.
func NewManager(config Config, clock clockwork.Clock) *Manager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if config.SendBuffer <= 0 {
		config.SendBuffer = 1
	}

	return &Manager{
		config: config,
		clock:  clock,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: config.HandshakeTimeout,
		},
		registry: NewRegistry(),
		state:    StateDisconnected,
	}
}

// On registers a handler for event. Handlers run in registration order.
func (m *Manager) On(event events.EventType, handler Handler) *Subscription {
	return m.registry.On(event, handler)
}

// Off removes a subscription returned by On
func (m *Manager) Off(sub *Subscription) {
	m.registry.Off(sub)
}

// HandlerCount returns the number of registered handlers
func (m *Manager) HandlerCount() int {
	return m.registry.Len()
}

// Connect dials endpoint. It returns nil immediately when already connected
// and never retries a failed initial attempt.
func (m *Manager) Connect(ctx context.Context, endpoint string, creds Credentials) error {
	m.mu.Lock()
	switch m.state {
	case StateConnected:
		m.mu.Unlock()
		log.Debug().Str("endpoint", endpoint).Msg("already connected, skipping dial")
		return nil
	case StateConnecting:
		m.mu.Unlock()
		return ErrConnectInProgress
	}
	m.cancelReconnectLocked()
	m.endpoint = endpoint
	m.creds = creds
	m.state = StateConnecting
	m.mu.Unlock()

	ws, err := m.dial(ctx, endpoint, creds)
	if err != nil {
		m.mu.Lock()
		if m.state == StateConnecting {
			m.state = StateError
		}
		m.lastErr = err
		m.mu.Unlock()

		log.Error().Err(err).Str("endpoint", endpoint).Msg("failed to connect to game server")
		m.raise(events.EventConnectError, events.ConnectErrorPayload{
			Message: err.Error(),
			Fatal:   errors.Is(err, ErrAuthentication),
		})
		return err
	}

	m.mu.Lock()
	if m.state != StateConnecting {
		// Disconnect ran while the handshake was in flight
		m.mu.Unlock()
		ws.Close()
		return ErrConnectAborted
	}
	s := m.installLocked(ws)
	m.mu.Unlock()

	log.Info().
		Str("session_id", s.id).
		Str("endpoint", endpoint).
		Str("username", creds.Username).
		Msg("connected to game server")

	m.raise(events.EventConnect, nil)
	m.start(s)
	return nil
}

// Disconnect closes the transport and cancels any pending reconnection.
// It is safe to call when never connected.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.cancelReconnectLocked()
	s := m.session
	m.session = nil
	wasActive := s != nil || m.state == StateReconnecting || m.state == StateConnecting
	m.state = StateDisconnected
	m.attempts = 0
	m.mu.Unlock()

	if s != nil {
		deadline := time.Now().Add(m.config.WriteTimeout)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client disconnect")
		if err := s.ws.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
			log.Debug().Err(err).Str("session_id", s.id).Msg("failed to send close frame")
		}
		s.terminate()
		log.Info().Str("session_id", s.id).Msg("disconnected from game server")
	}

	if wasActive {
		m.raise(events.EventDisconnect, events.DisconnectPayload{
			Reason:        "client disconnect",
			Code:          websocket.CloseNormalClosure,
			WillReconnect: false,
		})
	}
}

// Cleanup removes every registered handler and disconnects
func (m *Manager) Cleanup() {
	m.registry.Clear()
	m.Disconnect()
}

// Emit sends a command. It returns false without error when not connected or
// when the send buffer is full; the next server snapshot is the source of truth.
func (m *Manager) Emit(event events.EventType, payload interface{}) bool {
	m.mu.Lock()
	s := m.session
	connected := m.state == StateConnected
	m.mu.Unlock()

	if !connected || s == nil {
		log.Debug().Str("event", string(event)).Msg("not connected, dropping command")
		return false
	}

	env, err := events.NewEnvelope(event, payload)
	if err != nil {
		log.Error().Err(err).Str("event", string(event)).Msg("failed to build envelope")
		return false
	}
	msg, err := json.Marshal(env)
	if err != nil {
		log.Error().Err(err).Str("event", string(event)).Msg("failed to marshal envelope")
		return false
	}

	if !s.enqueue(msg) {
		log.Warn().
			Str("session_id", s.id).
			Str("event", string(event)).
			Msg("send buffer full or session closing, dropping command")
		return false
	}
	return true
}

// State returns the current connection state
func (m *Manager) State() ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsConnected is true iff the state is StateConnected
func (m *Manager) IsConnected() bool {
	return m.State() == StateConnected
}

// ReconnectAttempts returns the current reconnection attempt counter
func (m *Manager) ReconnectAttempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// LastConnectedAt returns when the last successful handshake finished
func (m *Manager) LastConnectedAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastConnectedAt
}

// LastError returns the most recent transport or dial error
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

func (m *Manager) dial(ctx context.Context, endpoint string, creds Credentials) (*websocket.Conn, error) {
	header := http.Header{}
	if creds.Token != "" {
		header.Set("Authorization", "Bearer "+creds.Token)
	}

	ws, resp, err := m.dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, &ConnectError{
				Kind:     KindAuthentication,
				Endpoint: endpoint,
				Err:      fmt.Errorf("%w: handshake status %d", ErrAuthentication, resp.StatusCode),
			}
		}
		return nil, &ConnectError{
			Kind:     KindTransport,
			Endpoint: endpoint,
			Err:      fmt.Errorf("%w: %w", ErrTransport, err),
		}
	}
	return ws, nil
}

// installLocked records a freshly dialed socket as the live session. m.mu must be held.
func (m *Manager) installLocked(ws *websocket.Conn) *session {
	s := &session{
		id:   uuid.New().String(),
		ws:   ws,
		send: make(chan []byte, m.config.SendBuffer),
		done: make(chan struct{}),
	}
	m.session = s
	m.state = StateConnected
	m.attempts = 0
	m.lastConnectedAt = m.clock.Now()
	m.lastErr = nil
	return s
}

func (m *Manager) start(s *session) {
	go m.writePump(s)
	go m.readPump(s)
}

func (m *Manager) cancelReconnectLocked() {
	if m.reconnectCancel != nil {
		m.reconnectCancel()
		m.reconnectCancel = nil
	}
}

// raise dispatches a transport-level event to registered handlers
func (m *Manager) raise(event events.EventType, payload interface{}) {
	var data json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			log.Error().Err(err).Str("event", string(event)).Msg("failed to marshal transport event")
			return
		}
		data = b
	}
	m.registry.Dispatch(event, data)
}

// writePump handles sending messages to the game server
func (m *Manager) writePump(s *session) {
	for {
		select {
		case <-s.done:
			return
		case message := <-s.send:
			s.ws.SetWriteDeadline(time.Now().Add(m.config.WriteTimeout))
			if err := s.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("session_id", s.id).
					Msg("failed to write message to game server")
				// closing the socket makes readPump observe the drop
				s.ws.Close()
				return
			}
		}
	}
}

// readPump reads frames in arrival order and dispatches them
func (m *Manager) readPump(s *session) {
	s.ws.SetReadLimit(m.config.MaxMessageSize)
	m.extendReadDeadline(s)
	s.ws.SetPingHandler(func(appData string) error {
		m.extendReadDeadline(s)
		err := s.ws.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(m.config.WriteTimeout))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	for {
		_, message, err := s.ws.ReadMessage()
		if err != nil {
			m.handleDrop(s, err)
			return
		}
		m.extendReadDeadline(s)

		var env events.Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			log.Warn().Err(err).Str("session_id", s.id).Msg("discarding malformed frame")
			continue
		}

		n := m.registry.Dispatch(env.Event, env.Data)
		log.Debug().
			Str("session_id", s.id).
			Str("event", string(env.Event)).
			Int("handlers", n).
			Msg("dispatched server event")
	}
}

func (m *Manager) extendReadDeadline(s *session) {
	if m.config.ReadTimeout > 0 {
		s.ws.SetReadDeadline(time.Now().Add(m.config.ReadTimeout))
	}
}

// handleDrop classifies a read failure and schedules reconnection when it was not
// a deliberate close by either side
func (m *Manager) handleDrop(s *session, err error) {
	m.mu.Lock()
	if m.session != s {
		// Disconnect already took this session down
		m.mu.Unlock()
		s.terminate()
		return
	}
	m.session = nil

	code := closeCode(err)
	serverInitiated := m.isNoReconnectCode(code)

	var ctx context.Context
	var cancel context.CancelFunc
	if serverInitiated {
		m.state = StateDisconnected
	} else {
		m.state = StateReconnecting
		m.lastErr = err
		ctx, cancel = context.WithCancel(context.Background())
		m.reconnectCancel = cancel
	}
	endpoint, creds := m.endpoint, m.creds
	m.mu.Unlock()

	s.terminate()

	reason := "transport close"
	if serverInitiated {
		reason = "server disconnect"
		log.Info().Int("code", code).Str("session_id", s.id).Msg("server closed the connection, not reconnecting")
	} else {
		log.Warn().Err(err).Int("code", code).Str("session_id", s.id).Msg("connection dropped, scheduling reconnect")
	}

	m.raise(events.EventDisconnect, events.DisconnectPayload{
		Reason:        reason,
		Code:          code,
		WillReconnect: !serverInitiated,
	})

	if !serverInitiated {
		go m.reconnectLoop(ctx, cancel, endpoint, creds)
	}
}

func (m *Manager) isNoReconnectCode(code int) bool {
	for _, c := range m.config.NoReconnectCloseCodes {
		if c == code {
			return true
		}
	}
	return false
}

func closeCode(err error) int {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return websocket.CloseAbnormalClosure
}

// reconnectLoop waits BaseDelay*2^k before attempt k+1, up to MaxReconnectAttempts
func (m *Manager) reconnectLoop(ctx context.Context, cancel context.CancelFunc, endpoint string, creds Credentials) {
	defer cancel()

	for k := 0; k < m.config.MaxReconnectAttempts; k++ {
		delay := BackoffDelay(m.config.BaseDelay, k)
		timer := m.clock.NewTimer(delay)

		log.Debug().Int("attempt", k+1).Dur("delay", delay).Msg("reconnect scheduled")

		select {
		case <-ctx.Done():
			timer.Stop()
			log.Debug().Msg("reconnect cancelled")
			return
		case <-timer.Chan():
		}

		attempt := k + 1
		m.mu.Lock()
		if ctx.Err() != nil {
			m.mu.Unlock()
			return
		}
		m.attempts = attempt
		m.state = StateReconnecting
		m.mu.Unlock()

		m.raise(events.EventReconnectAttempt, events.AttemptPayload{Attempt: attempt})

		ws, err := m.dial(ctx, endpoint, creds)
		if err != nil {
			fatal := errors.Is(err, ErrAuthentication)

			m.mu.Lock()
			if ctx.Err() != nil {
				m.mu.Unlock()
				return
			}
			m.lastErr = err
			if fatal {
				m.state = StateError
				m.reconnectCancel = nil
			}
			m.mu.Unlock()

			log.Warn().Err(err).Int("attempt", attempt).Msg("reconnect attempt failed")
			m.raise(events.EventConnectError, events.ConnectErrorPayload{Message: err.Error(), Fatal: fatal})
			if fatal {
				return
			}
			continue
		}

		m.mu.Lock()
		if ctx.Err() != nil {
			// Disconnect raced the dial
			m.mu.Unlock()
			ws.Close()
			return
		}
		m.reconnectCancel = nil
		s := m.installLocked(ws)
		m.mu.Unlock()

		log.Info().Int("attempt", attempt).Str("session_id", s.id).Msg("reconnected to game server")
		m.raise(events.EventConnect, nil)
		m.raise(events.EventReconnect, events.AttemptPayload{Attempt: attempt})
		m.start(s)
		return
	}

	m.mu.Lock()
	if ctx.Err() != nil {
		m.mu.Unlock()
		return
	}
	m.state = StateError
	m.reconnectCancel = nil
	m.mu.Unlock()

	log.Error().Int("max_attempts", m.config.MaxReconnectAttempts).Msg("giving up on reconnection")
	m.raise(events.EventReconnectFailed, events.AttemptPayload{Attempt: m.config.MaxReconnectAttempts})
}
