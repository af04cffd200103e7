// Package app wires the stores, engines and commands shared by the chat
// process and the admin CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/keshon/himera/internal/ai"
	"github.com/keshon/himera/internal/auth"
	"github.com/keshon/himera/internal/cache"
	"github.com/keshon/himera/internal/commands"
	"github.com/keshon/himera/internal/config"
	"github.com/keshon/himera/internal/emotion"
	"github.com/keshon/himera/internal/initiation"
	"github.com/keshon/himera/internal/injection"
	"github.com/keshon/himera/internal/mind"
	"github.com/keshon/himera/internal/storage"
	"github.com/keshon/himera/pkg/cmd"
	"github.com/keshon/himera/pkg/jobmgr"
)

const cacheCleanup = 10 * time.Minute

var ErrNoLLM = errors.New("LLM_API_KEY is not set")

type Options struct {
	// Sender delivers proactive messages. Nil disables dispatching.
	Sender initiation.Sender
	// RequireLLM fails construction when no API key is configured. Without
	// one, chat and dispatch are unavailable but admin commands still work.
	RequireLLM bool
	// Provider overrides the configured language-model client.
	Provider ai.Provider
	Clock    func() time.Time
}

// App owns every long-lived component.
type App struct {
	Config     *config.Config
	Store      *storage.SQLiteStore
	Auth       *auth.Allowlist
	LLM        *ai.Client
	Responder  *ai.Responder
	Injection  *injection.Engine
	Initiation *initiation.Engine
	Pipeline   *mind.Pipeline
	Commands   *cmd.Registry

	sender initiation.Sender
	jobs   *jobmgr.Group
	log    zerolog.Logger
}

func New(cfg *config.Config, log zerolog.Logger, opts Options) (*App, error) {
	a := &App{Config: cfg, sender: opts.Sender, log: log}

	store, err := storage.New(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	a.Store = store
	a.Auth = auth.NewAllowlist(cfg.AuthorizedUsers, cfg.AdminUsers)

	provider := opts.Provider
	if provider == nil && cfg.LLM.APIKey != "" {
		if a.LLM, err = ai.NewClient(cfg.LLM, nil, log); err != nil {
			store.Close()
			return nil, err
		}
		provider = a.LLM
	}
	if provider == nil && opts.RequireLLM {
		store.Close()
		return nil, ErrNoLLM
	}

	lex, err := emotion.NewLexicon(emotion.DefaultLexicon)
	if err != nil {
		store.Close()
		return nil, err
	}
	pol, err := emotion.NewPolarity()
	if err != nil {
		store.Close()
		return nil, err
	}

	caps := injection.Capabilities{PersonalAnchors: cfg.Injection.PersonalAnchors}
	a.Injection = injection.New(cache.NewMemory(cacheCleanup), cfg.Injection, caps, log)
	a.Initiation = initiation.New(initiation.Deps{
		Store:     store,
		Provider:  provider,
		Sender:    opts.Sender,
		Auth:      a.Auth,
		Injection: a.Injection,
		Polarity:  pol,
		Config:    *cfg,
		Clock:     opts.Clock,
		Seed:      uint64(time.Now().UnixNano()),
		Log:       log,
	})

	if provider != nil {
		a.Responder = ai.NewResponder(provider, cfg.LLM.UseJSON, cfg.LLM.JSONFallback, log)
		a.Pipeline, err = mind.New(mind.Deps{
			Store:      store,
			Responder:  a.Responder,
			Emotions:   emotion.NewSafe(lex, log),
			Injection:  a.Injection,
			Correlator: a.Initiation.Correlator,
			Auth:       a.Auth,
			Memory:     cfg.Memory,
			Clock:      opts.Clock,
			Log:        log,
		})
		if err != nil {
			store.Close()
			return nil, err
		}
	}

	a.Commands = cmd.NewRegistry()
	deps := commands.Deps{
		Store:                 store,
		Initiation:            a.Initiation,
		Pipeline:              a.Pipeline,
		Injection:             a.Injection,
		Responder:             a.Responder,
		Auth:                  a.Auth,
		Jobs:                  a,
		RecalibrationFraction: cfg.Injection.RecalibrationFraction,
		Clock:                 opts.Clock,
		Log:                   log,
	}
	if a.LLM != nil {
		deps.LLM = a.LLM
	}
	commands.Register(a.Commands, deps)
	return a, nil
}

// Start launches the periodic initiation and maintenance jobs on a new
// group bound to ctx. Dispatching needs both a provider and a sender.
func (a *App) Start(ctx context.Context) (*jobmgr.Group, error) {
	if a.Responder == nil || a.sender == nil {
		return nil, fmt.Errorf("start jobs: %w", ErrNoLLM)
	}
	g := jobmgr.New(ctx, a.log)
	if err := a.Initiation.Start(g); err != nil {
		return nil, err
	}
	a.jobs = g
	return g, nil
}

// List reports the running jobs, none before Start.
func (a *App) List() []jobmgr.Status {
	if a.jobs == nil {
		return nil
	}
	return a.jobs.List()
}

func (a *App) Close() error {
	return a.Store.Close()
}
