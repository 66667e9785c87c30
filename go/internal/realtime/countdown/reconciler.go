package countdown

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/cardduel/go/internal/realtime/events"
	"github.com/rs/zerolog/log"
)

// Input is the timer-relevant slice of a game snapshot
type Input struct {
	GameID     string
	Turn       int
	Phase      events.Phase
	Deadline   *time.Time
	Remaining  *int
	ServerTime *time.Time
}

// InputFromSnapshot extracts the timer fields of g. A nil snapshot yields an
// input that stops the countdown.
func InputFromSnapshot(g *events.GameSnapshot) Input {
	if g == nil {
		return Input{}
	}
	in := Input{
		GameID:    g.ID,
		Turn:      g.CurrentTurn,
		Phase:     g.Phase,
		Remaining: g.TimeRemaining,
	}
	if g.TurnDeadline != nil {
		d := g.TurnDeadline.Time
		in.Deadline = &d
	}
	if g.ServerTime != nil {
		st := g.ServerTime.Time
		in.ServerTime = &st
	}
	return in
}

// Option configures a Reconciler
type Option func(*Reconciler)

// OnTick is called with the visible remaining seconds after every reconcile and every local tick
func OnTick(fn func(remaining int)) Option {
	return func(r *Reconciler) {
		r.onTick = fn
	}
}

// OnExpire is called at most once per turn when the countdown reaches zero
func OnExpire(fn func()) Option {
	return func(r *Reconciler) {
		r.onExpire = fn
	}
}

// Reconciler turns server deadlines into a local one-second countdown.
// Callbacks run outside the internal lock, possibly on the ticker goroutine.
type Reconciler struct {
	clock    clockwork.Clock
	onTick   func(int)
	onExpire func()

	mu         sync.Mutex
	gameID     string
	turn       int
	known      bool
	deadline   *time.Time
	remaining  int
	offset     time.Duration
	expired    bool
	running    bool
	generation uint64
	done       chan struct{}
}

// New creates a stopped reconciler
func New(clock clockwork.Clock, opts ...Option) *Reconciler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	r := &Reconciler{
		clock:    clock,
		onTick:   func(int) {},
		onExpire: func() {},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile re-derives the countdown from in and restarts the local ticker.
// Re-reconciling the same turn and deadline never raises the visible value.
func (r *Reconciler) Reconcile(in Input) {
	r.mu.Lock()
	now := r.clock.Now()

	if in.ServerTime != nil {
		r.offset = in.ServerTime.Sub(now)
	}

	if in.GameID != r.gameID || in.Turn != r.turn {
		r.gameID = in.GameID
		r.turn = in.Turn
		r.expired = false
		r.known = false
		r.deadline = nil
	}

	if in.Phase != events.PhaseSelection {
		r.stopLocked()
		r.mu.Unlock()
		return
	}

	var remaining int
	switch {
	case in.Deadline != nil:
		left := in.Deadline.Sub(now.Add(r.offset))
		remaining = int(left / time.Second)
		if remaining < 0 {
			remaining = 0
		}
	case in.Remaining != nil:
		remaining = *in.Remaining
		if remaining < 0 {
			remaining = 0
		}
	default:
		// nothing to derive from; keep whatever is running
		r.mu.Unlock()
		return
	}

	if r.known && sameDeadline(r.deadline, in.Deadline) && remaining > r.remaining {
		remaining = r.remaining
	}
	r.known = true
	r.deadline = in.Deadline
	r.remaining = remaining

	r.stopLocked()
	expire := false
	if remaining == 0 {
		expire = r.markExpiredLocked()
	} else {
		r.startLocked()
	}

	onTick, onExpire := r.onTick, r.onExpire
	r.mu.Unlock()

	onTick(remaining)
	if expire {
		onExpire()
	}
}

// Stop cancels the local ticker. The expiry guard is kept.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopLocked()
}

// Remaining returns the visible remaining seconds
func (r *Reconciler) Remaining() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.remaining
}

// Running reports whether the local ticker is active
func (r *Reconciler) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// ClockOffset is the last estimate of server time minus local time
func (r *Reconciler) ClockOffset() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.offset
}

func (r *Reconciler) startLocked() {
	r.generation++
	r.running = true
	r.done = make(chan struct{})

	ticker := r.clock.NewTicker(time.Second)
	go r.run(r.generation, ticker, r.done)
}

func (r *Reconciler) stopLocked() {
	r.generation++
	if r.running {
		close(r.done)
		r.running = false
		r.done = nil
	}
}

func (r *Reconciler) markExpiredLocked() bool {
	if r.expired {
		return false
	}
	r.expired = true
	log.Debug().Str("game_id", r.gameID).Int("turn", r.turn).Msg("turn countdown expired")
	return true
}

func (r *Reconciler) run(generation uint64, ticker clockwork.Ticker, done <-chan struct{}) {
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.Chan():
			if !r.tick(generation) {
				return
			}
		}
	}
}

// tick decrements the countdown and reports whether the ticker should keep going
func (r *Reconciler) tick(generation uint64) bool {
	r.mu.Lock()
	if generation != r.generation || !r.running {
		r.mu.Unlock()
		return false
	}

	if r.remaining > 0 {
		r.remaining--
	}
	remaining := r.remaining

	expire := false
	if remaining == 0 {
		r.running = false
		r.done = nil
		expire = r.markExpiredLocked()
	}
	onTick, onExpire := r.onTick, r.onExpire
	r.mu.Unlock()

	onTick(remaining)
	if expire {
		onExpire()
	}
	return remaining > 0
}

func sameDeadline(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
