package turn

import (
	"errors"
	"time"

	"github.com/mcdev12/cardduel/go/internal/realtime/events"
)

var (
	ErrNoGame              = errors.New("no active game")
	ErrNotSelectionPhase   = errors.New("cards can only be chosen during the selection phase")
	ErrSelectionFull       = errors.New("selection already holds the maximum number of cards")
	ErrIncompleteSelection = errors.New("selection must hold exactly three cards")
	ErrAlreadySubmitted    = errors.New("selection already submitted for this turn")
	ErrUnknownCard         = errors.New("card is not in the selection")
)

// FallbackStatus is the per-turn auto-fallback guard
type FallbackStatus string

const (
	FallbackArmed     FallbackStatus = "armed"
	FallbackTriggered FallbackStatus = "triggered"
)

// TurnState is the controller's view of the current turn. It only changes in
// response to snapshots, and Fallback is re-armed only when a selection phase
// is entered.
type TurnState struct {
	GameID    string         `json:"gameId,omitempty"`
	Phase     events.Phase   `json:"phase,omitempty"`
	Turn      int            `json:"turn"`
	Fallback  FallbackStatus `json:"fallback"`
	Submitted bool           `json:"submitted"`
}

// NotificationKind names a controller notification
type NotificationKind string

const (
	NotifyPhaseChanged       NotificationKind = "phase_changed"
	NotifyTurnStarted        NotificationKind = "turn_started"
	NotifySelectionSubmitted NotificationKind = "selection_submitted"
	NotifyAutoFallback       NotificationKind = "auto_fallback"
	NotifyTimerExpired       NotificationKind = "timer_expired"
	NotifyConsistencyWarning NotificationKind = "consistency_warning"
	NotifyGameCleared        NotificationKind = "game_cleared"
)

// Notification is handed to the Notifier outside of any lock
type Notification struct {
	Kind     NotificationKind `json:"kind"`
	GameID   string           `json:"gameId,omitempty"`
	Turn     int              `json:"turn,omitempty"`
	Phase    events.Phase     `json:"phase,omitempty"`
	Previous events.Phase     `json:"previous,omitempty"`
	PlayerID string           `json:"playerId,omitempty"`
	Cards    []events.Card    `json:"cards,omitempty"`
	Message  string           `json:"message,omitempty"`
	At       time.Time        `json:"at"`
}

// Notifier receives controller notifications
type Notifier func(Notification)
