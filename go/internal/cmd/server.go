package main

import (
	"net/http"

	"github.com/mcdev12/cardduel/go/internal/clientconfig"
	"github.com/mcdev12/cardduel/go/internal/statusapi"
)

// setupStatusServer returns nil when no status address is configured
func setupStatusServer(cfg clientconfig.Config, services *Services) *http.Server {
	if cfg.Status.Addr == "" {
		return nil
	}

	h := statusapi.NewHandler(services.Store, services.Controller, services.Countdown)
	return statusapi.NewServer(cfg.Status.Addr, h.Routes(cfg.Status.AllowedOrigins))
}
