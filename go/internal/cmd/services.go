package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/mcdev12/cardduel/go/internal/clientconfig"
	"github.com/mcdev12/cardduel/go/internal/realtime/connection"
	"github.com/mcdev12/cardduel/go/internal/realtime/countdown"
	"github.com/mcdev12/cardduel/go/internal/realtime/store"
	"github.com/mcdev12/cardduel/go/internal/realtime/turn"
	"github.com/mcdev12/cardduel/go/internal/telemetry"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

type Services struct {
	SessionID  string
	Manager    *connection.Manager
	Store      *store.Store
	Countdown  *countdown.Reconciler
	Controller *turn.Controller
	Session    *store.Session
	Relay      *telemetry.Relay

	nc       *nats.Conn
	cleanups []func()
}

func setupServices(cfg clientconfig.Config, display *Display) (*Services, error) {
	// Wire up the realtime chain
	// Manager → Store → Countdown → Controller → Session
	s := &Services{SessionID: uuid.New().String()}

	s.Manager = connection.NewManager(cfg.ConnectionConfig(), nil)
	s.Store = store.New(s.Manager, cfg.Endpoint)
	s.Store.Attach()
	s.cleanups = append(s.cleanups, s.Store.Detach)

	// Telemetry is optional
	if cfg.Telemetry.URL != "" {
		tcfg := telemetry.DefaultConfig()
		tcfg.URL = cfg.Telemetry.URL
		tcfg.Subject = cfg.Telemetry.Subject

		nc, err := telemetry.Connect(tcfg)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to set up telemetry: %w", err)
		}
		s.nc = nc
		s.Relay = telemetry.NewRelay(nc, tcfg.Subject, s.SessionID)
		s.cleanups = append(s.cleanups, s.Store.Subscribe(s.Relay.StoreListener()))
		log.Info().Str("subject", tcfg.Subject).Msg("telemetry relay enabled")
	}

	notify := func(n turn.Notification) {
		display.Notification(n)
		if s.Relay != nil {
			s.Relay.Notify(n)
		}
	}

	var controller *turn.Controller
	s.Countdown = countdown.New(nil,
		countdown.OnTick(display.Countdown),
		countdown.OnExpire(func() { controller.OnTimerExpired() }),
	)
	controller = turn.New(s.Store, s.Countdown,
		turn.WithNotifier(notify),
		turn.WithDefaultCard(cfg.DefaultCard()),
	)
	s.Controller = controller
	s.Controller.Attach(s.Store)
	s.cleanups = append(s.cleanups, s.Controller.Detach)

	s.cleanups = append(s.cleanups, s.Store.Subscribe(display.Transition))

	s.Session = store.NewSession(s.Store)
	return s, nil
}

// Close tears everything down in reverse order and releases the transport
func (s *Services) Close() {
	for i := len(s.cleanups) - 1; i >= 0; i-- {
		s.cleanups[i]()
	}
	s.cleanups = nil

	if s.Manager != nil {
		s.Manager.Cleanup()
	}
	if s.nc != nil {
		if err := s.nc.Drain(); err != nil {
			log.Warn().Err(err).Msg("failed to drain NATS connection")
		}
		s.nc = nil
	}
}
