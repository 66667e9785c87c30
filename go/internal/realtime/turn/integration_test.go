package turn

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/cardduel/go/internal/realtime/connection"
	"github.com/mcdev12/cardduel/go/internal/realtime/countdown"
	"github.com/mcdev12/cardduel/go/internal/realtime/events"
	"github.com/mcdev12/cardduel/go/internal/realtime/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// loopbackTransport records outbound commands and lets the test push inbound events
type loopbackTransport struct {
	*connection.Registry

	mu   sync.Mutex
	sent []events.SelectCardsRequest
}

func (l *loopbackTransport) Connect(context.Context, string, connection.Credentials) error {
	l.Dispatch(events.EventConnect, nil)
	return nil
}

func (l *loopbackTransport) Disconnect() {}

func (l *loopbackTransport) Emit(event events.EventType, payload interface{}) bool {
	if req, ok := payload.(events.SelectCardsRequest); ok && event == events.CommandSelectCards {
		l.mu.Lock()
		l.sent = append(l.sent, req)
		l.mu.Unlock()
	}
	return true
}

func (l *loopbackTransport) submissions() []events.SelectCardsRequest {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]events.SelectCardsRequest(nil), l.sent...)
}

func (l *loopbackTransport) push(t *testing.T, event events.EventType, payload interface{}) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	l.Dispatch(event, data)
}

type rig struct {
	clock     *clockwork.FakeClock
	transport *loopbackTransport
	store     *store.Store
	timer     *countdown.Reconciler
	ctrl      *Controller
	ticks     chan int
}

func newRig(t *testing.T) *rig {
	t.Helper()
	r := &rig{
		clock:     clockwork.NewFakeClockAt(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)),
		transport: &loopbackTransport{Registry: connection.NewRegistry()},
		ticks:     make(chan int, 64),
	}
	r.store = store.New(r.transport, "ws://game.test/ws", store.WithClock(r.clock))
	r.store.Attach()

	var ctrl *Controller
	r.timer = countdown.New(r.clock,
		countdown.OnTick(func(v int) { r.ticks <- v }),
		countdown.OnExpire(func() { ctrl.OnTimerExpired() }),
	)
	ctrl = New(r.store, r.timer, WithClock(r.clock))
	r.ctrl = ctrl
	ctrl.Attach(r.store)

	t.Cleanup(func() {
		ctrl.Detach()
		r.store.Detach()
	})

	require.NoError(t, r.store.Connect(context.Background(), connection.Credentials{Token: "t"}))
	return r
}

func (r *rig) waitTick(t *testing.T) int {
	t.Helper()
	select {
	case v := <-r.ticks:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for countdown tick")
		return -1
	}
}

func (r *rig) selectionSnapshot(turn int, seconds int) *events.GameSnapshot {
	g := snapshot(turn, events.PhaseSelection)
	g.TurnDeadline = events.At(r.clock.Now().Add(time.Duration(seconds) * time.Second))
	return g
}

func TestIntegration_ExpiryPadsAndSubmitsThroughStore(t *testing.T) {
	r := newRig(t)
	r.transport.push(t, events.EventGameStateUpdate, r.selectionSnapshot(1, 2))
	require.Equal(t, 2, r.waitTick(t))
	require.NoError(t, r.ctrl.SelectCard(card("strike")))

	r.clock.Advance(time.Second)
	require.Equal(t, 1, r.waitTick(t))
	r.clock.Advance(time.Second)
	require.Equal(t, 0, r.waitTick(t))

	require.Eventually(t, func() bool { return len(r.transport.submissions()) == 1 }, 2*time.Second, 5*time.Millisecond)
	sub := r.transport.submissions()[0]
	assert.Equal(t, "g1", sub.GameID)
	assert.Equal(t, []string{"strike", events.DefaultCardID, events.DefaultCardID}, ids(sub.Cards))
	assert.True(t, sub.Cards[1].SystemSelected)
	assert.True(t, sub.Cards[2].SystemSelected)

	// late snapshots for the same turn must not cause a second submission
	r.transport.push(t, events.EventGameTimerUpdate, events.TimerUpdate{TimeRemaining: 0, Phase: events.PhaseSelection, CurrentTurn: 1})
	r.waitTick(t)
	r.clock.Advance(3 * time.Second)
	assert.Len(t, r.transport.submissions(), 1)
}

func TestIntegration_GameLeftCancelsTicker(t *testing.T) {
	r := newRig(t)
	r.transport.push(t, events.EventGameStateUpdate, r.selectionSnapshot(1, 10))
	require.Equal(t, 10, r.waitTick(t))
	require.True(t, r.timer.Running())

	r.transport.Dispatch(events.EventGameLeft, json.RawMessage("null"))

	assert.Nil(t, r.store.Snapshot().GameState)
	assert.False(t, r.timer.Running())
	assert.Equal(t, TurnState{Fallback: FallbackArmed}, r.ctrl.State())

	r.clock.Advance(15 * time.Second)
	select {
	case v := <-r.ticks:
		t.Fatalf("unexpected tick %d after leaving the game", v)
	case <-time.After(50 * time.Millisecond):
	}
	assert.Empty(t, r.transport.submissions())
}

func TestIntegration_TimerUpdateStartingNewTurnUsesServerRemaining(t *testing.T) {
	r := newRig(t)
	r.transport.push(t, events.EventGameStateUpdate, r.selectionSnapshot(1, 2))
	require.Equal(t, 2, r.waitTick(t))
	r.clock.Advance(time.Second)
	require.Equal(t, 1, r.waitTick(t))
	r.clock.Advance(time.Second)
	require.Equal(t, 0, r.waitTick(t))
	require.Eventually(t, func() bool { return len(r.transport.submissions()) == 1 }, 2*time.Second, 5*time.Millisecond)

	r.transport.push(t, events.EventGameTimerUpdate, events.TimerUpdate{TimeRemaining: 0, Phase: events.PhaseResolution, CurrentTurn: 1})
	r.transport.push(t, events.EventGameTimerUpdate, events.TimerUpdate{TimeRemaining: 30, Phase: events.PhaseSelection, CurrentTurn: 2})

	assert.Equal(t, 30, r.waitTick(t))
	assert.True(t, r.timer.Running())
	assert.Equal(t, 30, r.timer.Remaining())
	assert.Nil(t, r.store.Snapshot().GameState.TurnDeadline)

	r.clock.Advance(time.Second)
	assert.Equal(t, 29, r.waitTick(t))
	assert.Len(t, r.transport.submissions(), 1)
	assert.Equal(t, FallbackArmed, r.ctrl.State().Fallback)
}
