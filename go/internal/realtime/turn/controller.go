package turn

import (
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/cardduel/go/internal/realtime/countdown"
	"github.com/mcdev12/cardduel/go/internal/realtime/events"
	"github.com/mcdev12/cardduel/go/internal/realtime/store"
	"github.com/rs/zerolog/log"
)

// Commands is the outbound surface the controller submits through
type Commands interface {
	SelectCards(gameID string, cards []events.Card) bool
}

// Countdown is the timer the controller drives from snapshots
type Countdown interface {
	Reconcile(in countdown.Input)
	Stop()
}

// StateSource is the store surface the controller observes
type StateSource interface {
	Snapshot() store.State
	Subscribe(l store.Listener) func()
}

// Option configures a Controller
type Option func(*Controller)

func WithNotifier(n Notifier) Option {
	return func(c *Controller) {
		c.notify = n
	}
}

// WithDefaultCard sets the card used to pad a selection at expiry
func WithDefaultCard(card events.Card) Option {
	return func(c *Controller) {
		c.defaultCard = card
	}
}

func WithClock(clock clockwork.Clock) Option {
	return func(c *Controller) {
		c.clock = clock
	}
}

// Controller follows the server's phase for the current turn, owns the local
// selection and runs the auto-fallback when the countdown expires.
type Controller struct {
	commands    Commands
	timer       Countdown
	notify      Notifier
	defaultCard events.Card
	clock       clockwork.Clock

	mu          sync.Mutex
	game        *events.GameSnapshot
	state       TurnState
	selection   []events.Card
	unsubscribe func()
}

// New creates a controller. timer may be nil when no countdown is wanted.
func New(commands Commands, timer Countdown, opts ...Option) *Controller {
	c := &Controller{
		commands:    commands,
		timer:       timer,
		notify:      func(Notification) {},
		defaultCard: events.DefaultCard(),
		clock:       clockwork.NewRealClock(),
		state:       TurnState{Fallback: FallbackArmed},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Attach follows game snapshot changes published by src
func (c *Controller) Attach(src StateSource) {
	unsubscribe := src.Subscribe(func(prev, next store.State, _ store.Action) {
		if prev.GameState != next.GameState {
			c.OnSnapshot(next.GameState)
		}
	})

	c.mu.Lock()
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
	c.unsubscribe = unsubscribe
	c.mu.Unlock()

	c.OnSnapshot(src.Snapshot().GameState)
}

// Detach stops following the store and stops the countdown
func (c *Controller) Detach() {
	c.mu.Lock()
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	c.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if c.timer != nil {
		c.timer.Stop()
	}
}

// OnSnapshot applies a new server snapshot. A nil snapshot means there is no game.
func (c *Controller) OnSnapshot(g *events.GameSnapshot) {
	c.mu.Lock()

	if g == nil {
		hadGame := c.game != nil
		gameID := c.state.GameID
		c.game = nil
		c.selection = nil
		c.state = TurnState{Fallback: FallbackArmed}
		c.mu.Unlock()

		if c.timer != nil {
			c.timer.Stop()
		}
		if hadGame {
			c.emit(Notification{Kind: NotifyGameCleared, GameID: gameID})
		}
		return
	}

	prev := c.state
	c.game = g

	notes := c.checkConsistency(g)

	if !g.Phase.IsValid() {
		log.Warn().Str("game_id", g.ID).Str("phase", string(g.Phase)).Msg("snapshot carries an unknown phase")
	}

	newGame := g.ID != prev.GameID
	newTurn := newGame || g.CurrentTurn != prev.Turn

	if g.Phase == events.PhaseSelection && (prev.Phase != events.PhaseSelection || newTurn) {
		c.enterSelection(g)
		notes = append(notes, Notification{Kind: NotifyTurnStarted, GameID: g.ID, Turn: g.CurrentTurn, Phase: g.Phase})
	} else {
		c.state.GameID = g.ID
		c.state.Turn = g.CurrentTurn
		c.state.Phase = g.Phase
	}

	if newGame || g.Phase != prev.Phase {
		// phase change goes first so listeners see it before turn_started
		notes = append([]Notification{{
			Kind:     NotifyPhaseChanged,
			GameID:   g.ID,
			Turn:     g.CurrentTurn,
			Phase:    g.Phase,
			Previous: prev.Phase,
		}}, notes...)
	}
	c.mu.Unlock()

	for _, n := range notes {
		c.emit(n)
	}

	// Reconcile may fire OnTimerExpired synchronously, so it runs unlocked
	if c.timer != nil {
		c.timer.Reconcile(countdown.InputFromSnapshot(g))
	}
}

// enterSelection is the only transition that re-arms the fallback guard
func (c *Controller) enterSelection(g *events.GameSnapshot) {
	c.state = TurnState{
		GameID:   g.ID,
		Phase:    g.Phase,
		Turn:     g.CurrentTurn,
		Fallback: FallbackArmed,
	}
	c.selection = nil

	log.Debug().Str("game_id", g.ID).Int("turn", g.CurrentTurn).Msg("entered selection phase")
}

// SelectCard appends card to the local selection
func (c *Controller) SelectCard(card events.Card) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkSelectableLocked(); err != nil {
		return err
	}
	if len(c.selection) >= events.MaxSelection {
		return ErrSelectionFull
	}

	card.SystemSelected = false
	c.selection = append(c.selection, card)
	return nil
}

// DeselectCard removes the first selected card with the given id
func (c *Controller) DeselectCard(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkSelectableLocked(); err != nil {
		return err
	}
	for i, card := range c.selection {
		if card.ID == id {
			next := make([]events.Card, 0, len(c.selection)-1)
			next = append(next, c.selection[:i]...)
			c.selection = append(next, c.selection[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownCard, id)
}

// Selection returns a copy of the local selection
func (c *Controller) Selection() []events.Card {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]events.Card(nil), c.selection...)
}

// State returns the current turn state
func (c *Controller) State() TurnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Submit sends the selection. It returns false when the command was dropped
// because the transport is not connected; the selection is kept in that case.
func (c *Controller) Submit() (bool, error) {
	c.mu.Lock()
	if err := c.checkSelectableLocked(); err != nil {
		c.mu.Unlock()
		return false, err
	}
	if len(c.selection) != events.MaxSelection {
		c.mu.Unlock()
		return false, ErrIncompleteSelection
	}

	cards := append([]events.Card(nil), c.selection...)
	gameID, turnNumber := c.state.GameID, c.state.Turn
	c.state.Submitted = true
	c.mu.Unlock()

	ok := c.send(gameID, turnNumber, cards)
	if ok {
		c.emit(Notification{Kind: NotifySelectionSubmitted, GameID: gameID, Turn: turnNumber, Cards: cards})
	}
	return ok, nil
}

// OnTimerExpired runs the auto-fallback when fewer than three cards are
// selected. It is safe to call any number of times; at most one fallback
// submission happens per turn.
func (c *Controller) OnTimerExpired() {
	c.mu.Lock()
	expired := Notification{Kind: NotifyTimerExpired, GameID: c.state.GameID, Turn: c.state.Turn, Phase: c.state.Phase}

	if c.game == nil ||
		c.state.Phase != events.PhaseSelection ||
		c.state.Fallback == FallbackTriggered ||
		c.state.Submitted ||
		len(c.selection) >= events.MaxSelection {
		c.mu.Unlock()
		c.emit(expired)
		return
	}

	c.state.Fallback = FallbackTriggered
	c.state.Submitted = true

	cards := append([]events.Card(nil), c.selection...)
	padded := events.MaxSelection - len(cards)
	for len(cards) < events.MaxSelection {
		card := c.defaultCard
		card.SystemSelected = true
		cards = append(cards, card)
	}
	c.selection = cards
	gameID, turnNumber := c.state.GameID, c.state.Turn
	c.mu.Unlock()

	c.emit(expired)

	log.Info().
		Str("game_id", gameID).
		Int("turn", turnNumber).
		Int("padded", padded).
		Msg("turn timer expired, submitting fallback selection")

	if c.send(gameID, turnNumber, append([]events.Card(nil), cards...)) {
		c.emit(Notification{Kind: NotifyAutoFallback, GameID: gameID, Turn: turnNumber, Cards: cards})
	}
}

// send submits cards and clears the selection on success. On a dropped send
// the selection is kept and Submitted is cleared so the player can retry.
func (c *Controller) send(gameID string, turnNumber int, cards []events.Card) bool {
	ok := c.commands.SelectCards(gameID, cards)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.GameID != gameID || c.state.Turn != turnNumber {
		return ok
	}
	if ok {
		c.selection = nil
	} else {
		c.state.Submitted = false
		log.Warn().Str("game_id", gameID).Int("turn", turnNumber).Msg("selection dropped, not connected")
	}
	return ok
}

func (c *Controller) checkSelectableLocked() error {
	if c.game == nil {
		return ErrNoGame
	}
	if c.state.Phase != events.PhaseSelection {
		return ErrNotSelectionPhase
	}
	if c.state.Submitted {
		return ErrAlreadySubmitted
	}
	return nil
}

// checkConsistency logs values outside their documented domain. Nothing is corrected.
func (c *Controller) checkConsistency(g *events.GameSnapshot) []Notification {
	var notes []Notification
	for _, p := range g.Players {
		if p.Health >= 0 && p.Charges >= 0 {
			continue
		}
		log.Warn().
			Str("game_id", g.ID).
			Str("player_id", p.ID).
			Int("health", p.Health).
			Int("charges", p.Charges).
			Msg("player values outside expected domain")
		notes = append(notes, Notification{
			Kind:     NotifyConsistencyWarning,
			GameID:   g.ID,
			Turn:     g.CurrentTurn,
			PlayerID: p.ID,
			Message:  fmt.Sprintf("health=%d charges=%d", p.Health, p.Charges),
		})
	}
	return notes
}

func (c *Controller) emit(n Notification) {
	if n.At.IsZero() {
		n.At = c.clock.Now()
	}
	c.notify(n)
}
