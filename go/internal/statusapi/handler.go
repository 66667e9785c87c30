package statusapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mcdev12/cardduel/go/internal/realtime/events"
	"github.com/mcdev12/cardduel/go/internal/realtime/store"
	"github.com/mcdev12/cardduel/go/internal/realtime/turn"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
)

// StateProvider exposes the connection store snapshot
type StateProvider interface {
	Snapshot() store.State
}

// TurnProvider exposes the turn controller
type TurnProvider interface {
	State() turn.TurnState
	Selection() []events.Card
}

// CountdownProvider exposes the local turn countdown
type CountdownProvider interface {
	Remaining() int
	Running() bool
	ClockOffset() time.Duration
}

// StateResponse is the body of GET /api/state
type StateResponse struct {
	Connection ConnectionInfo             `json:"connection"`
	Game       *events.GameSnapshot       `json:"game"`
	Tournament *events.TournamentSnapshot `json:"tournament"`
	Turn       turn.TurnState             `json:"turn"`
	Countdown  CountdownInfo              `json:"countdown"`
}

type ConnectionInfo struct {
	Status            string     `json:"status"`
	Connected         bool       `json:"connected"`
	ReconnectAttempts int        `json:"reconnectAttempts"`
	LastConnectedAt   *time.Time `json:"lastConnectedAt,omitempty"`
	LastError         string     `json:"lastError,omitempty"`
}

type CountdownInfo struct {
	RemainingSec  int   `json:"remainingSec"`
	Running       bool  `json:"running"`
	ClockOffsetMS int64 `json:"clockOffsetMs"`
}

// SelectionResponse is the body of GET /api/selection
type SelectionResponse struct {
	Cards []events.Card `json:"cards"`
	Count int           `json:"count"`
	Max   int           `json:"max"`
}

// Handler serves the read-only status surface of the client
type Handler struct {
	state     StateProvider
	turns     TurnProvider
	countdown CountdownProvider
}

func NewHandler(state StateProvider, turns TurnProvider, countdown CountdownProvider) *Handler {
	return &Handler{
		state:     state,
		turns:     turns,
		countdown: countdown,
	}
}

// Routes builds the router wrapped in CORS
func (h *Handler) Routes(allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", h.HandleHealth)
	r.Get("/api/state", h.HandleGetState)
	r.Get("/api/selection", h.HandleGetSelection)

	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
		},
		AllowedOrigins: allowedOrigins,
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(r)
}

// NewServer returns an http.Server for addr serving h
func NewServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// HandleHealth handles GET /health
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		log.Error().Err(err).Msg("failed to write health check response")
	}
}

// HandleGetState handles GET /api/state
func (h *Handler) HandleGetState(w http.ResponseWriter, r *http.Request) {
	s := h.state.Snapshot()

	resp := StateResponse{
		Connection: ConnectionInfo{
			Status:            s.ConnectionStatus.String(),
			Connected:         s.IsConnected(),
			ReconnectAttempts: s.ReconnectAttempts,
			LastConnectedAt:   s.LastConnectedAt,
			LastError:         s.LastError,
		},
		Game:       s.GameState.Clone(),
		Tournament: s.TournamentState.Clone(),
		Turn:       h.turns.State(),
		Countdown: CountdownInfo{
			RemainingSec:  h.countdown.Remaining(),
			Running:       h.countdown.Running(),
			ClockOffsetMS: h.countdown.ClockOffset().Milliseconds(),
		},
	}

	writeJSON(w, resp)
}

// HandleGetSelection handles GET /api/selection
func (h *Handler) HandleGetSelection(w http.ResponseWriter, r *http.Request) {
	cards := h.turns.Selection()
	if cards == nil {
		cards = []events.Card{}
	}

	writeJSON(w, SelectionResponse{
		Cards: cards,
		Count: len(cards),
		Max:   events.MaxSelection,
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode status response")
		http.Error(w, fmt.Sprintf("failed to encode response: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("failed to write status response")
	}
}
