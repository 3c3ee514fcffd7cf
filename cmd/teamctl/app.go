package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/splax/teamroster/internal/client/identity"
	"github.com/splax/teamroster/internal/client/state"
	"github.com/splax/teamroster/internal/client/teams"
	"github.com/splax/teamroster/pkg/logger"
	apiclient "github.com/splax/teamroster/pkg/api/client"
)

const requestTimeout = 15 * time.Second

// app wires one command invocation: settings, the Store seeded from session.json,
// the identity provider and the team actions.
type app struct {
	settings *settings
	logger   *slog.Logger
	store    *state.Store
	identity *identity.Provider
	teams    *teams.Actions
	out      *printer
}

func newApp() (*app, error) {
	sessionPath, err := state.DefaultSessionPath()
	if err != nil {
		return nil, err
	}
	cfg, err := loadSettings(filepath.Dir(sessionPath))
	if err != nil {
		return nil, err
	}
	level := slog.LevelWarn
	if v := os.Getenv("TEAMCTL_LOG_LEVEL"); v != "" {
		level = logger.ParseLevel(v)
	}
	log := logger.NewWithWriter(os.Stderr, "teamctl", level)

	client, err := apiclient.New(cfg.APIBaseURL())
	if err != nil {
		return nil, err
	}
	store := state.New(state.NewFileSessionStore(sessionPath), log)
	store.SetDarkMode(cfg.DarkMode())

	provider := identity.New(client, store, log)
	remote := apiclient.NewRemote(client, provider.AccessToken)

	return &app{
		settings: cfg,
		logger:   log,
		store:    store,
		identity: provider,
		teams:    teams.New(remote, store, provider, log),
		out:      newPrinter(os.Stdout, store),
	}, nil
}

func withTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), requestTimeout)
}

// loadTeams opens the teams subscription, waits for the first snapshot and disposes it.
func (a *app) loadTeams(ctx context.Context) (state.Teams, error) {
	settled := make(chan state.Teams, 1)
	stop := a.store.Subscribe(func(snap state.Snapshot) {
		if snap.Teams.Loading {
			return
		}
		select {
		case settled <- snap.Teams:
		default:
		}
	})
	defer stop()

	dispose, err := a.teams.Watch(ctx)
	if err != nil {
		return state.Teams{}, err
	}
	defer dispose()

	select {
	case got := <-settled:
		return got, got.Err
	case <-ctx.Done():
		return state.Teams{}, ctx.Err()
	}
}
