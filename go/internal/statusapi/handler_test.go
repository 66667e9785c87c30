package statusapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mcdev12/cardduel/go/internal/realtime/connection"
	"github.com/mcdev12/cardduel/go/internal/realtime/events"
	"github.com/mcdev12/cardduel/go/internal/realtime/store"
	"github.com/mcdev12/cardduel/go/internal/realtime/turn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubState struct{ state store.State }

func (s stubState) Snapshot() store.State { return s.state }

type stubTurns struct {
	state     turn.TurnState
	selection []events.Card
}

func (s stubTurns) State() turn.TurnState     { return s.state }
func (s stubTurns) Selection() []events.Card { return s.selection }

type stubCountdown struct {
	remaining int
	running   bool
	offset    time.Duration
}

func (s stubCountdown) Remaining() int             { return s.remaining }
func (s stubCountdown) Running() bool              { return s.running }
func (s stubCountdown) ClockOffset() time.Duration { return s.offset }

func newTestServer(t *testing.T, turns stubTurns) *httptest.Server {
	t.Helper()
	state := stubState{state: store.State{
		ConnectionStatus:  connection.StateReconnecting,
		ReconnectAttempts: 2,
		GameState: &events.GameSnapshot{
			ID:          "g1",
			CurrentTurn: 4,
			Phase:       events.PhaseSelection,
		},
	}}
	h := NewHandler(state, turns, stubCountdown{remaining: 17, running: true, offset: 1500 * time.Millisecond})

	srv := httptest.NewServer(h.Routes([]string{"http://localhost:5173"}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, stubTurns{})

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGetState(t *testing.T) {
	srv := newTestServer(t, stubTurns{state: turn.TurnState{GameID: "g1", Phase: events.PhaseSelection, Turn: 4, Fallback: turn.FallbackArmed}})

	resp, err := http.Get(srv.URL + "/api/state")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var body StateResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "reconnecting", body.Connection.Status)
	assert.False(t, body.Connection.Connected)
	assert.Equal(t, 2, body.Connection.ReconnectAttempts)
	require.NotNil(t, body.Game)
	assert.Equal(t, 4, body.Game.CurrentTurn)
	assert.Nil(t, body.Tournament)
	assert.Equal(t, turn.FallbackArmed, body.Turn.Fallback)
	assert.Equal(t, CountdownInfo{RemainingSec: 17, Running: true, ClockOffsetMS: 1500}, body.Countdown)
}

func TestGetState_CamelCaseKeysAndTournament(t *testing.T) {
	tournament := &events.TournamentSnapshot{
		ID:           "t1",
		Name:         "weekly",
		Participants: []events.TournamentParticipant{{ID: "p1", Username: "ana"}},
	}
	state := stubState{state: store.State{
		ConnectionStatus:  connection.StateConnected,
		ReconnectAttempts: 0,
		LastError:         "boom",
		TournamentState:   tournament,
	}}
	h := NewHandler(state, stubTurns{}, stubCountdown{remaining: 5})
	srv := httptest.NewServer(h.Routes(nil))
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/api/state")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

	assert.Contains(t, body["connection"], "reconnectAttempts")
	assert.Contains(t, body["connection"], "lastError")
	assert.Contains(t, body["countdown"], "remainingSec")
	assert.Contains(t, body["countdown"], "clockOffsetMs")
	assert.NotContains(t, body["countdown"], "remaining_sec")
	assert.Equal(t, "weekly", body["tournament"]["name"])
}

func TestGetSelection(t *testing.T) {
	tests := []struct {
		name      string
		selection []events.Card
		wantCount int
	}{
		{"empty", nil, 0},
		{"two cards", []events.Card{{ID: "a"}, {ID: "b"}}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, stubTurns{selection: tt.selection})

			resp, err := http.Get(srv.URL + "/api/selection")
			require.NoError(t, err)
			defer resp.Body.Close()

			var body SelectionResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tt.wantCount, body.Count)
			assert.Len(t, body.Cards, tt.wantCount)
			assert.Equal(t, events.MaxSelection, body.Max)
		})
	}
}

func TestCORS(t *testing.T) {
	srv := newTestServer(t, stubTurns{})

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/state", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:5173")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "http://localhost:5173", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestUnknownRoute(t *testing.T) {
	srv := newTestServer(t, stubTurns{})

	resp, err := http.Post(srv.URL+"/api/state", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
