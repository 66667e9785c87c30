package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/mcdev12/cardduel/go/internal/realtime/connection"
	"github.com/mcdev12/cardduel/go/internal/realtime/events"
	"github.com/mcdev12/cardduel/go/internal/realtime/store"
	"github.com/mcdev12/cardduel/go/internal/realtime/turn"
)

// Display renders store transitions and turn notifications on the terminal
type Display struct {
	out io.Writer
	mu  sync.Mutex

	connectColor *color.Color
	errorColor   *color.Color
	warningColor *color.Color
	gameColor    *color.Color
	turnColor    *color.Color
	systemColor  *color.Color
	timerColor   *color.Color
	infoColor    *color.Color
}

func newDisplay(out io.Writer) *Display {
	return &Display{
		out:          out,
		connectColor: color.New(color.FgGreen, color.Bold),
		errorColor:   color.New(color.FgRed, color.Bold),
		warningColor: color.New(color.FgYellow),
		gameColor:    color.New(color.FgCyan, color.Bold),
		turnColor:    color.New(color.FgMagenta, color.Bold),
		systemColor:  color.New(color.FgBlue),
		timerColor:   color.New(color.FgYellow, color.Bold),
		infoColor:    color.New(color.FgWhite),
	}
}

// Transition is a store.Listener
func (d *Display) Transition(prev, next store.State, action store.Action) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch a := action.(type) {
	case store.SetConnectionStatus:
		if prev.ConnectionStatus == next.ConnectionStatus {
			return
		}
		c := d.infoColor
		switch next.ConnectionStatus {
		case connection.StateConnected:
			c = d.connectColor
		case connection.StateReconnecting:
			c = d.warningColor
		case connection.StateError:
			c = d.errorColor
		}
		c.Fprintf(d.out, "● %s\n", next.ConnectionStatus)

	case store.SetReconnectAttempts:
		if a.Attempts > 0 {
			d.warningColor.Fprintf(d.out, "  reconnect attempt %d\n", a.Attempts)
		}

	case store.SetError:
		d.errorColor.Fprintf(d.out, "✖ %s error: %s\n", a.Source, a.Message)

	case store.UpdateGameState:
		if a.GameState == nil {
			if prev.GameState != nil {
				d.gameColor.Fprintf(d.out, "left game %s\n", prev.GameState.ID)
			}
			return
		}
		if prev.GameState != nil && prev.GameState.ID == a.GameState.ID &&
			prev.GameState.CurrentTurn == a.GameState.CurrentTurn &&
			prev.GameState.Phase == a.GameState.Phase {
			return
		}
		d.printGame(a.GameState)

	case store.UpdateTournamentState:
		if t := a.TournamentState; t != nil {
			d.gameColor.Fprintf(d.out, "tournament %s %q: %s, round %d, %d/%d players\n",
				t.ID, t.Name, t.Status, t.CurrentRound, len(t.Participants), t.MaxParticipants)
		}
	}
}

func (d *Display) printGame(g *events.GameSnapshot) {
	d.gameColor.Fprintf(d.out, "game %s turn %d (%s)\n", g.ID, g.CurrentTurn, g.Phase)
	for _, p := range g.Players {
		line := fmt.Sprintf("  %-12s hp %3d  charges %d", p.Username, p.Health, p.Charges)
		if len(p.StatusEffects) > 0 {
			effects := make([]string, 0, len(p.StatusEffects))
			for _, e := range p.StatusEffects {
				effects = append(effects, fmt.Sprintf("%s(%d)", e.Type, e.Duration))
			}
			line += "  " + strings.Join(effects, " ")
		}
		d.infoColor.Fprintln(d.out, line)
	}
	if g.Winner != "" {
		d.connectColor.Fprintf(d.out, "  winner: %s\n", g.Winner)
	}
}

// Notification is a turn.Notifier
func (d *Display) Notification(n turn.Notification) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch n.Kind {
	case turn.NotifyTurnStarted:
		d.turnColor.Fprintf(d.out, "» turn %d: choose %d cards\n", n.Turn, events.MaxSelection)
	case turn.NotifySelectionSubmitted:
		d.connectColor.Fprintf(d.out, "✔ submitted %s\n", cardList(n.Cards))
	case turn.NotifyAutoFallback:
		d.systemColor.Fprintf(d.out, "⌛ time is up, submitted %s\n", cardList(n.Cards))
	case turn.NotifyConsistencyWarning:
		d.warningColor.Fprintf(d.out, "! player %s has out-of-range values: %s\n", n.PlayerID, n.Message)
	case turn.NotifyGameCleared:
		d.infoColor.Fprintf(d.out, "no active game\n")
	}
}

// Countdown prints the last seconds and every tenth second
func (d *Display) Countdown(remaining int) {
	if remaining > 5 && remaining%10 != 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.timerColor.Fprintf(d.out, "  %ds\n", remaining)
}

// Selection prints the local selection
func (d *Display) Selection(cards []events.Card) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.infoColor.Fprintf(d.out, "selected %d/%d: %s\n", len(cards), events.MaxSelection, cardList(cards))
}

// Error prints a command error
func (d *Display) Error(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.errorColor.Fprintf(d.out, "✖ %v\n", err)
}

func (d *Display) Info(format string, args ...interface{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.infoColor.Fprintf(d.out, format+"\n", args...)
}

func cardList(cards []events.Card) string {
	if len(cards) == 0 {
		return "[]"
	}
	names := make([]string, 0, len(cards))
	for _, c := range cards {
		name := c.Name
		if name == "" {
			name = c.ID
		}
		if c.SystemSelected {
			name += "*"
		}
		names = append(names, name)
	}
	return "[" + strings.Join(names, ", ") + "]"
}
