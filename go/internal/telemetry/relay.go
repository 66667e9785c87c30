package telemetry

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/cardduel/go/internal/realtime/store"
	"github.com/mcdev12/cardduel/go/internal/realtime/turn"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

const (
	KindConnectionStatus = "connection_status"
	KindProtocolError    = "protocol_error"
)

// Publisher is satisfied by *nats.Conn
type Publisher interface {
	PublishMsg(msg *nats.Msg) error
}

type Config struct {
	URL           string
	Subject       string
	MaxReconnects int
	ReconnectWait time.Duration
}

func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		Subject:       "cardduel.client",
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
	}
}

// Connect dials NATS for the relay
func Connect(cfg Config) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name("cardduel-client"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return nc, nil
}

// Envelope is the JSON body of every relayed message
type Envelope struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	SessionID string          `json:"sessionId"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// ConnectionStatus is the payload of a connection_status message
type ConnectionStatus struct {
	Status            string `json:"status"`
	Previous          string `json:"previous"`
	ReconnectAttempts int    `json:"reconnectAttempts"`
	LastError         string `json:"lastError,omitempty"`
}

// Relay forwards client-side transitions to NATS. Publish failures are logged
// and never reach the caller.
type Relay struct {
	pub       Publisher
	subject   string
	sessionID string
	clock     clockwork.Clock
}

func NewRelay(pub Publisher, subject, sessionID string) *Relay {
	return &Relay{
		pub:       pub,
		subject:   subject,
		sessionID: sessionID,
		clock:     clockwork.NewRealClock(),
	}
}

// Publish sends payload on <subject>.<kind>
func (r *Relay) Publish(kind string, payload interface{}) {
	subject := fmt.Sprintf("%s.%s", r.subject, kind)

	body, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("kind", kind).Msg("failed to marshal telemetry payload")
		return
	}

	env := Envelope{
		ID:        uuid.New().String(),
		Kind:      kind,
		SessionID: r.sessionID,
		Timestamp: r.clock.Now().UTC(),
		Payload:   body,
	}
	data, err := json.Marshal(env)
	if err != nil {
		log.Error().Err(err).Str("kind", kind).Msg("failed to marshal telemetry envelope")
		return
	}

	err = r.pub.PublishMsg(&nats.Msg{
		Subject: subject,
		Data:    data,
		Header: nats.Header{
			"Event-Type": []string{kind},
			"Session-ID": []string{r.sessionID},
			"Event-ID":   []string{env.ID},
		},
	})
	if err != nil {
		log.Error().Err(err).Str("subject", subject).Msg("failed to publish telemetry")
		return
	}

	log.Debug().Str("subject", subject).Str("event_id", env.ID).Msg("published telemetry")
}

// StoreListener relays connection status changes and server errors
func (r *Relay) StoreListener() store.Listener {
	return func(prev, next store.State, action store.Action) {
		switch a := action.(type) {
		case store.SetConnectionStatus:
			if prev.ConnectionStatus == next.ConnectionStatus {
				return
			}
			r.Publish(KindConnectionStatus, ConnectionStatus{
				Status:            next.ConnectionStatus.String(),
				Previous:          prev.ConnectionStatus.String(),
				ReconnectAttempts: next.ReconnectAttempts,
				LastError:         next.LastError,
			})
		case store.SetError:
			if a.Source == store.ErrorSourceServer {
				r.Publish(KindProtocolError, map[string]string{"message": a.Message})
			}
		}
	}
}

// Notify relays a turn notification under its own kind
func (r *Relay) Notify(n turn.Notification) {
	r.Publish(string(n.Kind), n)
}
