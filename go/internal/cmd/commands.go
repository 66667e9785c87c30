package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/mcdev12/cardduel/go/internal/clientconfig"
	"github.com/mcdev12/cardduel/go/internal/realtime/events"
	"github.com/mcdev12/cardduel/go/internal/realtime/store"
	"github.com/rs/zerolog/log"
)

var errQuit = errors.New("quit")

const helpText = `commands:
  state                     show connection and game state
  create [name]             create a game
  join <game-id>            join a game
  leave                     leave the current game
  ready | unready           toggle ready in the current game
  start                     start the current game
  select <card-id> [name]   add a card to the selection
  deselect <card-id>        remove a card from the selection
  submit                    submit the selection
  tournament join|leave <id>
  retry                     reconnect with the configured token
  quit`

// runCommands reads one command per line from in until EOF, quit or ctx is done
func runCommands(ctx context.Context, in io.Reader, cfg clientconfig.Config, s *Services, d *Display) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			log.Error().Err(err).Msg("failed to read commands")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			err := execute(ctx, strings.Fields(line), cfg, s, d)
			if errors.Is(err, errQuit) {
				return nil
			}
			if err != nil {
				d.Error(err)
			}
		}
	}
}

func execute(ctx context.Context, args []string, cfg clientconfig.Config, s *Services, d *Display) error {
	if len(args) == 0 {
		return nil
	}

	currentGame := func() (string, error) {
		g := s.Store.Snapshot().GameState
		if g == nil {
			return "", errors.New("not in a game")
		}
		return g.ID, nil
	}
	sent := func(ok bool) error {
		if !ok {
			return errors.New("not connected, command dropped")
		}
		return nil
	}

	switch args[0] {
	case "help":
		d.Info(helpText)

	case "state":
		state := s.Store.Snapshot()
		t := s.Controller.State()
		d.Info("connection: %s (attempts %d)", state.ConnectionStatus, state.ReconnectAttempts)
		if state.GameState != nil {
			d.Info("game %s turn %d phase %s fallback %s, %ds left",
				state.GameState.ID, t.Turn, t.Phase, t.Fallback, s.Countdown.Remaining())
		}
		d.Selection(s.Controller.Selection())

	case "create":
		name := ""
		if len(args) > 1 {
			name = strings.Join(args[1:], " ")
		}
		return sent(s.Store.CreateGame(events.GameConfig{Name: name}))

	case "join":
		if len(args) < 2 {
			return errors.New("usage: join <game-id>")
		}
		return sent(s.Store.JoinGame(args[1]))

	case "leave":
		id, err := currentGame()
		if err != nil {
			return err
		}
		return sent(s.Store.LeaveGame(id))

	case "ready", "unready":
		id, err := currentGame()
		if err != nil {
			return err
		}
		return sent(s.Store.SetPlayerReady(id, args[0] == "ready"))

	case "start":
		id, err := currentGame()
		if err != nil {
			return err
		}
		return sent(s.Store.StartGame(id, nil))

	case "select":
		if len(args) < 2 {
			return errors.New("usage: select <card-id> [name]")
		}
		card := events.Card{ID: args[1], Name: strings.Join(args[2:], " ")}
		if err := s.Controller.SelectCard(card); err != nil {
			return err
		}
		d.Selection(s.Controller.Selection())

	case "deselect":
		if len(args) < 2 {
			return errors.New("usage: deselect <card-id>")
		}
		if err := s.Controller.DeselectCard(args[1]); err != nil {
			return err
		}
		d.Selection(s.Controller.Selection())

	case "submit":
		ok, err := s.Controller.Submit()
		if err != nil {
			return err
		}
		return sent(ok)

	case "tournament":
		if len(args) < 3 {
			return errors.New("usage: tournament join|leave <id>")
		}
		switch args[1] {
		case "join":
			return sent(s.Store.JoinTournament(args[2]))
		case "leave":
			return sent(s.Store.LeaveTournament(args[2]))
		default:
			return fmt.Errorf("unknown tournament command %q", args[1])
		}

	case "retry":
		return s.Session.SetAuth(ctx, authFromConfig(cfg))

	case "quit", "exit":
		return errQuit

	default:
		return fmt.Errorf("unknown command %q, try help", args[0])
	}
	return nil
}

func authFromConfig(cfg clientconfig.Config) store.AuthState {
	return store.AuthState{
		Authenticated: cfg.Token != "",
		Token:         cfg.Token,
		Username:      cfg.Username,
	}
}
