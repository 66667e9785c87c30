package store

import (
	"time"

	"github.com/mcdev12/cardduel/go/internal/realtime/connection"
	"github.com/mcdev12/cardduel/go/internal/realtime/events"
)

// ActionType is the tag of a reducer action
type ActionType string

const (
	ActionSetConnectionStatus   ActionType = "SET_CONNECTION_STATUS"
	ActionSetError              ActionType = "SET_ERROR"
	ActionSetReconnectAttempts  ActionType = "SET_RECONNECT_ATTEMPTS"
	ActionUpdateGameState       ActionType = "UPDATE_GAME_STATE"
	ActionUpdateTournamentState ActionType = "UPDATE_TOURNAMENT_STATE"
	ActionClearStates           ActionType = "CLEAR_STATES"
)

// Action is the closed set of transitions Reduce understands
type Action interface {
	Type() ActionType
	isAction()
}

// ErrorSource tells where a SetError came from
type ErrorSource string

const (
	ErrorSourceTransport ErrorSource = "transport"
	ErrorSourceServer    ErrorSource = "server"
)

type SetConnectionStatus struct {
	Status connection.ConnectionState
	At     time.Time // recorded as LastConnectedAt when Status is connected
}

type SetError struct {
	Message string
	Source  ErrorSource
}

type SetReconnectAttempts struct {
	Attempts int
}

// UpdateGameState replaces the game snapshot wholesale. A nil snapshot clears it.
type UpdateGameState struct {
	GameState *events.GameSnapshot
}

type UpdateTournamentState struct {
	TournamentState *events.TournamentSnapshot
}

type ClearStates struct{}

func (SetConnectionStatus) Type() ActionType   { return ActionSetConnectionStatus }
func (SetError) Type() ActionType              { return ActionSetError }
func (SetReconnectAttempts) Type() ActionType  { return ActionSetReconnectAttempts }
func (UpdateGameState) Type() ActionType       { return ActionUpdateGameState }
func (UpdateTournamentState) Type() ActionType { return ActionUpdateTournamentState }
func (ClearStates) Type() ActionType           { return ActionClearStates }

func (SetConnectionStatus) isAction()   {}
func (SetError) isAction()              {}
func (SetReconnectAttempts) isAction()  {}
func (UpdateGameState) isAction()       {}
func (UpdateTournamentState) isAction() {}
func (ClearStates) isAction()           {}

// State is the consistent snapshot exposed to presentation.
// Snapshots referenced from State are shared and must be treated as read-only.
type State struct {
	ConnectionStatus  connection.ConnectionState `json:"connectionStatus"`
	ReconnectAttempts int                        `json:"reconnectAttempts"`
	LastConnectedAt   *time.Time                 `json:"lastConnectedAt"`
	LastError         string                     `json:"lastError,omitempty"`
	LastErrorSource   ErrorSource                `json:"lastErrorSource,omitempty"`
	GameState         *events.GameSnapshot       `json:"gameState"`
	TournamentState   *events.TournamentSnapshot `json:"tournamentState"`
}

// IsConnected is true iff ConnectionStatus is connected
func (s State) IsConnected() bool {
	return s.ConnectionStatus == connection.StateConnected
}

// InitialState is the state at process start
func InitialState() State {
	return State{ConnectionStatus: connection.StateDisconnected}
}

// Reduce applies action to state and returns the next state. It has no side effects.
func Reduce(state State, action Action) State {
	switch a := action.(type) {
	case SetConnectionStatus:
		state.ConnectionStatus = a.Status
		if a.Status == connection.StateConnected {
			state.LastError = ""
			state.LastErrorSource = ""
			if !a.At.IsZero() {
				at := a.At
				state.LastConnectedAt = &at
			}
		}

	case SetError:
		state.LastError = a.Message
		state.LastErrorSource = a.Source

	case SetReconnectAttempts:
		if a.Attempts < 0 {
			a.Attempts = 0
		}
		state.ReconnectAttempts = a.Attempts

	case UpdateGameState:
		state.GameState = a.GameState

	case UpdateTournamentState:
		state.TournamentState = a.TournamentState

	case ClearStates:
		state.GameState = nil
		state.TournamentState = nil
	}

	return state
}
