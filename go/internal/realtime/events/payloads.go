package events

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Phase is the server-declared phase of the current turn
type Phase string

const (
	PhaseSelection  Phase = "selection"
	PhaseResolution Phase = "resolution"
	PhaseEnded      Phase = "ended"
	PhaseWaiting    Phase = "waiting"
)

// IsValid reports whether p is one of the known phases
func (p Phase) IsValid() bool {
	switch p {
	case PhaseSelection, PhaseResolution, PhaseEnded, PhaseWaiting:
		return true
	}
	return false
}

// Timestamp is a server timestamp. It decodes from epoch milliseconds or an
// RFC 3339 string and always encodes as epoch milliseconds.
type Timestamp struct {
	time.Time
}

// At wraps t as a *Timestamp
func At(t time.Time) *Timestamp {
	return &Timestamp{Time: t}
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatInt(t.UnixMilli(), 10)), nil
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		parsed, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("parse timestamp %q: %w", s, err)
		}
		t.Time = parsed
		return nil
	}
	ms, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("parse timestamp %s: %w", b, err)
	}
	t.Time = time.UnixMilli(int64(ms))
	return nil
}

// StatusEffect is a timed effect applied to a player
type StatusEffect struct {
	Type     string `json:"type"`
	Duration int    `json:"duration"`
}

// Player is the server view of one participant
type Player struct {
	ID            string         `json:"id"`
	Username      string         `json:"username"`
	Health        int            `json:"health"`
	Charges       int            `json:"charges"`
	StatusEffects []StatusEffect `json:"statusEffects"`
	Ready         bool           `json:"ready"`
}

// GameConfig is sent with game:create / game:start and echoed back by the server
type GameConfig struct {
	Name            string `json:"name,omitempty"`
	TurnDurationSec int    `json:"turnDurationSec,omitempty"`
	MaxTurns        int    `json:"maxTurns,omitempty"`
	StartingHealth  int    `json:"startingHealth,omitempty"`
	StartingCharges int    `json:"startingCharges,omitempty"`
	Private         bool   `json:"private,omitempty"`
	OpponentID      string `json:"opponentId,omitempty"`
}

// GameSnapshot is the server-authoritative view of a match
type GameSnapshot struct {
	ID            string      `json:"id"`
	Players       []Player    `json:"players"`
	CurrentTurn   int         `json:"currentTurn"`
	Phase         Phase       `json:"phase"`
	TurnDeadline  *Timestamp  `json:"turnDeadline,omitempty"`
	TimeRemaining *int        `json:"timeRemaining,omitempty"`
	ServerTime    *Timestamp  `json:"serverTime,omitempty"`
	Winner        string      `json:"winner,omitempty"`
	Config        *GameConfig `json:"config,omitempty"`
}

// Clone returns a deep copy so readers never share mutable slices with the store
func (g *GameSnapshot) Clone() *GameSnapshot {
	if g == nil {
		return nil
	}
	c := *g
	if g.Players != nil {
		c.Players = make([]Player, len(g.Players))
		for i, p := range g.Players {
			c.Players[i] = p
			if p.StatusEffects != nil {
				c.Players[i].StatusEffects = append([]StatusEffect(nil), p.StatusEffects...)
			}
		}
	}
	if g.TurnDeadline != nil {
		d := *g.TurnDeadline
		c.TurnDeadline = &d
	}
	if g.TimeRemaining != nil {
		r := *g.TimeRemaining
		c.TimeRemaining = &r
	}
	if g.ServerTime != nil {
		st := *g.ServerTime
		c.ServerTime = &st
	}
	if g.Config != nil {
		cfg := *g.Config
		c.Config = &cfg
	}
	return &c
}

// MergeTimer returns a copy of g with only the four timer fields replaced.
// When the update moves to another turn the old turn's deadline no longer
// applies and is dropped, leaving TimeRemaining as the timer source.
func (g *GameSnapshot) MergeTimer(u TimerUpdate) *GameSnapshot {
	c := g.Clone()
	if u.CurrentTurn != g.CurrentTurn {
		c.TurnDeadline = nil
	}
	remaining := u.TimeRemaining
	c.TimeRemaining = &remaining
	c.ServerTime = u.ServerTime
	c.Phase = u.Phase
	c.CurrentTurn = u.CurrentTurn
	return c
}

// TimerUpdate is the payload of game:timer-update
type TimerUpdate struct {
	TimeRemaining int        `json:"timeRemaining"`
	ServerTime    *Timestamp `json:"serverTime,omitempty"`
	Phase         Phase      `json:"phase"`
	CurrentTurn   int        `json:"currentTurn"`
}

// GameStatePayload wraps a snapshot for turn-timeout, turn-resolved, player-ready, joined and left
type GameStatePayload struct {
	GameState *GameSnapshot `json:"gameState"`
}

// TournamentParticipant is one entrant of a tournament
type TournamentParticipant struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	Eliminated bool   `json:"eliminated"`
}

// TournamentSnapshot is the server view of a tournament
type TournamentSnapshot struct {
	ID              string                  `json:"id"`
	Name            string                  `json:"name"`
	Status          string                  `json:"status"`
	CurrentRound    int                     `json:"currentRound"`
	MaxParticipants int                     `json:"maxParticipants"`
	Participants    []TournamentParticipant `json:"participants"`
	GameIDs         []string                `json:"gameIds,omitempty"`
}

// Clone returns a deep copy of t
func (t *TournamentSnapshot) Clone() *TournamentSnapshot {
	if t == nil {
		return nil
	}
	c := *t
	c.Participants = append([]TournamentParticipant(nil), t.Participants...)
	c.GameIDs = append([]string(nil), t.GameIDs...)
	return &c
}

// TournamentConfig is sent with tournament:create
type TournamentConfig struct {
	Name            string `json:"name"`
	MaxParticipants int    `json:"maxParticipants"`
	TurnDurationSec int    `json:"turnDurationSec,omitempty"`
}

// ErrorPayload is the payload of the server error event
type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// DisconnectPayload describes why the transport went away
type DisconnectPayload struct {
	Reason        string `json:"reason"`
	Code          int    `json:"code,omitempty"`
	WillReconnect bool   `json:"willReconnect"`
}

// AttemptPayload carries the reconnection attempt counter
type AttemptPayload struct {
	Attempt int `json:"attempt"`
}

// ConnectErrorPayload describes a failed dial
type ConnectErrorPayload struct {
	Message string `json:"message"`
	Fatal   bool   `json:"fatal"`
}

// Outbound command payloads

type GameRef struct {
	GameID string `json:"gameId"`
}

type SelectCardsRequest struct {
	GameID string `json:"gameId"`
	Cards  []Card `json:"cards"`
}

type PlayerReadyRequest struct {
	GameID string `json:"gameId"`
	Ready  bool   `json:"ready"`
}

type StartGameRequest struct {
	GameID string      `json:"gameId"`
	Config *GameConfig `json:"config,omitempty"`
}

type TournamentRef struct {
	TournamentID string `json:"tournamentId"`
}
