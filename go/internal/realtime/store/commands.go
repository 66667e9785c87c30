package store

import (
	"github.com/mcdev12/cardduel/go/internal/realtime/events"
	"github.com/rs/zerolog/log"
)

// Outbound commands are fire-and-forget. A false return means the command was
// dropped because the transport is not connected; the outcome of a sent
// command is only known from the next inbound snapshot.

func (s *Store) JoinGame(gameID string) bool {
	return s.send(events.CommandJoinGame, events.GameRef{GameID: gameID})
}

func (s *Store) LeaveGame(gameID string) bool {
	return s.send(events.CommandLeaveGame, events.GameRef{GameID: gameID})
}

// SelectCards submits the selection for the current turn
func (s *Store) SelectCards(gameID string, cards []events.Card) bool {
	return s.send(events.CommandSelectCards, events.SelectCardsRequest{GameID: gameID, Cards: cards})
}

func (s *Store) CreateGame(config events.GameConfig) bool {
	return s.send(events.CommandCreateGame, config)
}

func (s *Store) SetPlayerReady(gameID string, ready bool) bool {
	return s.send(events.CommandPlayerReady, events.PlayerReadyRequest{GameID: gameID, Ready: ready})
}

func (s *Store) StartGame(gameID string, config *events.GameConfig) bool {
	return s.send(events.CommandStartGame, events.StartGameRequest{GameID: gameID, Config: config})
}

func (s *Store) JoinTournament(tournamentID string) bool {
	return s.send(events.CommandJoinTournament, events.TournamentRef{TournamentID: tournamentID})
}

func (s *Store) LeaveTournament(tournamentID string) bool {
	return s.send(events.CommandLeaveTournament, events.TournamentRef{TournamentID: tournamentID})
}

func (s *Store) CreateTournament(config events.TournamentConfig) bool {
	return s.send(events.CommandCreateTournament, config)
}

func (s *Store) send(event events.EventType, payload interface{}) bool {
	ok := s.transport.Emit(event, payload)
	if !ok {
		log.Warn().Str("event", string(event)).Msg("command dropped, not connected")
	}
	return ok
}
