package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Envelope is the single frame type exchanged with the game server in both directions
type Envelope struct {
	ID        string          `json:"id"`        // Frame UUID
	Event     EventType       `json:"event"`     // Event name
	Timestamp time.Time       `json:"timestamp"` // Creation time on the sending side
	Data      json.RawMessage `json:"data"`      // Event-specific payload
}

// EventType is the name of a wire or transport event
type EventType string

// Transport-level events raised by the connection manager itself
const (
	EventConnect          EventType = "connect"
	EventDisconnect       EventType = "disconnect"
	EventReconnectAttempt EventType = "reconnect_attempt"
	EventReconnect        EventType = "reconnect"
	EventReconnectFailed  EventType = "reconnect_failed"
	EventConnectError     EventType = "connect_error"
)

// Inbound server events
const (
	EventGameStateUpdate       EventType = "game:state-update"
	EventGameTimerUpdate       EventType = "game:timer-update"
	EventGameTurnTimeout       EventType = "game:turn-timeout"
	EventGameTurnResolved      EventType = "game:turn-resolved"
	EventGamePlayerReady       EventType = "game:player-ready"
	EventGameJoined            EventType = "game:joined"
	EventGameLeft              EventType = "game:left"
	EventTournamentStateUpdate EventType = "tournament:state-update"
	EventError                 EventType = "error"
)

// Outbound commands
const (
	CommandJoinGame         EventType = "game:join"
	CommandLeaveGame        EventType = "game:leave"
	CommandSelectCards      EventType = "game:select-cards"
	CommandCreateGame       EventType = "game:create"
	CommandPlayerReady      EventType = "game:player-ready"
	CommandStartGame        EventType = "game:start"
	CommandJoinTournament   EventType = "tournament:join"
	CommandLeaveTournament  EventType = "tournament:leave"
	CommandCreateTournament EventType = "tournament:create"
)

// NewEnvelope marshals payload into a fresh envelope
func NewEnvelope(event EventType, payload interface{}) (*Envelope, error) {
	var data json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", event, err)
		}
		data = b
	}

	return &Envelope{
		ID:        uuid.New().String(),
		Event:     event,
		Timestamp: time.Now(),
		Data:      data,
	}, nil
}

// IsNull reports whether the payload is absent or JSON null
func IsNull(data json.RawMessage) bool {
	return len(data) == 0 || string(data) == "null"
}

// ParsePayload parses event data into the appropriate payload struct
func ParsePayload(event EventType, data json.RawMessage) (interface{}, error) {
	switch event {
	case EventGameStateUpdate:
		var payload GameSnapshot
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventGameTimerUpdate:
		var payload TimerUpdate
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventGameTurnTimeout, EventGameTurnResolved, EventGamePlayerReady, EventGameJoined, EventGameLeft:
		// game:left may arrive with a null payload
		var payload GameStatePayload
		if IsNull(data) {
			return payload, nil
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTournamentStateUpdate:
		var payload TournamentSnapshot
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventError:
		var payload ErrorPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventDisconnect:
		var payload DisconnectPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventReconnectAttempt, EventReconnect, EventReconnectFailed:
		var payload AttemptPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventConnectError:
		var payload ConnectErrorPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	default:
		return nil, nil // Unknown event type
	}
}
