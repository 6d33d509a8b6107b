// Command relayd runs the relay's session & dispatch engine: it loads
// configuration, opens the event store, and serves websocket and NIP-11
// HTTP traffic until interrupted. Grounded on the teacher's root main.go
// (config load -> storage open -> server wiring -> interrupt.AddHandler ->
// server.Start), generalized from its database/app/realy stack to this
// module's store/registry/dispatcher/ratelimit/session/httpapi/observability
// packages.
package main

import (
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/pkg/profile"

	"orly.dev/config"
	"orly.dev/dispatcher"
	"orly.dev/observability"
	"orly.dev/ratelimit"
	"orly.dev/registry"
	"orly.dev/session"
	"orly.dev/store"
	"orly.dev/transport/httpapi"
	"orly.dev/utils/chk"
	"orly.dev/utils/context"
	"orly.dev/utils/interrupt"
	"orly.dev/utils/log"
	"orly.dev/version"
)

func main() {
	var err error
	var cfg *config.C
	if cfg, err = config.New(); chk.T(err) {
		if err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: %s\n\n", err)
		}
		config.PrintHelp(cfg, os.Stderr)
		os.Exit(0)
	}
	log.SetLevel(log.ParseLevel(cfg.LogLevel))
	log.I.F("starting %s %s", cfg.AppName, version.V)
	if config.GetEnv() {
		config.PrintEnv(cfg, os.Stdout)
		os.Exit(0)
	}
	if config.HelpRequested() {
		config.PrintHelp(cfg, os.Stderr)
		os.Exit(0)
	}
	switch cfg.Pprof {
	case "cpu":
		defer profile.Start(profile.CPUProfile).Stop()
	case "memory":
		defer profile.Start(profile.MemProfile).Stop()
	case "allocation":
		defer profile.Start(profile.MemProfileAllocs).Stop()
	}
	if cfg.Pprof != "" {
		go func() {
			chk.E(http.ListenAndServe("127.0.0.1:6060", nil))
		}()
	}

	sto, err := store.Open(cfg.DataDir)
	if chk.E(err) {
		os.Exit(1)
	}

	reg := registry.New()
	counters := observability.NewCounters()
	deps := session.Deps{
		Store:        sto,
		Registry:     reg,
		Dispatcher:   dispatcher.New(reg),
		Limiter: ratelimit.New(
			ratelimit.Thresholds{
				EventsPerWindow:  cfg.EventsPerWindow,
				QueriesPerWindow: cfg.QueriesPerWindow,
				MaxConnections:   cfg.MaxConnections,
			},
		),
		RelayURL:     cfg.RelayURL,
		AuthRequired: cfg.AuthRequired,
		Hooks:        counters,
	}

	srv := httpapi.NewServer(
		httpapi.Info{
			Name:        cfg.RelayName,
			Description: cfg.RelayDescription,
			Pubkey:      cfg.RelayPubkey,
			Contact:     cfg.RelayContact,
			Software:    "orly.dev",
			Version:     version.V,
			Icon:        cfg.RelayIcon,
		}, deps,
	)

	interrupt.AddHandler(
		func() {
			srv.Shutdown()
			chk.E(sto.Close())
		},
	)
	if err = srv.Start(context.Bg(), cfg.Listen, cfg.Port); chk.E(err) {
		log.F.F("server terminated: %v", err)
	}
}
