package initiation

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/keshon/himera/internal/ai"
	"github.com/keshon/himera/internal/auth"
	"github.com/keshon/himera/internal/config"
	"github.com/keshon/himera/internal/emotion"
	"github.com/keshon/himera/internal/injection"
	"github.com/keshon/himera/internal/storage"
	st "github.com/keshon/himera/internal/storagetypes"
	"github.com/keshon/himera/pkg/jobmgr"
)

const (
	stalePendingAge = 48 * time.Hour
	logRetention    = 30 * 24 * time.Hour
	metricsWindow   = 24 * time.Hour
	zoneCacheSize   = 256
)

type Deps struct {
	Store     storage.Store
	Provider  ai.Provider
	Sender    Sender
	Auth      auth.Authorizer
	Injection *injection.Engine
	Polarity  *emotion.Polarity
	Config    config.Config
	Clock     Clock
	Seed      uint64
	Log       zerolog.Logger
}

// Engine wires the proactive-message pipeline together: mining, scheduling,
// dispatch, response correlation and the user switches.
type Engine struct {
	Miner      *Miner
	Scheduler  *Scheduler
	Dispatcher *Dispatcher
	Correlator *Correlator
	Settings   *Settings

	store     storage.Store
	injection *injection.Engine
	cfg       config.Config
	now       Clock
	log       zerolog.Logger
}

func New(d Deps) *Engine {
	now := d.Clock
	if now == nil {
		now = utcNow
	}
	log := d.Log.With().Str("module", "initiation").Logger()
	pcfg := d.Config.Proactivity
	rng := NewRand(d.Seed)
	zones := NewZones(pcfg.DefaultTimezone, zoneCacheSize, log)
	caps := injection.Capabilities{PersonalAnchors: d.Config.Injection.PersonalAnchors}

	miner := NewMiner(d.Store, pcfg, rng, now, log)
	return &Engine{
		Miner:      miner,
		Scheduler:  NewScheduler(d.Store, miner, d.Auth, zones, pcfg, rng, now, log),
		Dispatcher: NewDispatcher(d.Store, d.Provider, d.Sender, caps, pcfg.DispatchBatch, d.Config.LLM.Timeout, now, log),
		Correlator: NewCorrelator(d.Store, d.Polarity, now, log),
		Settings:   NewSettings(d.Store, d.Auth, zones, pcfg, now, log),
		store:      d.Store,
		injection:  d.Injection,
		cfg:        d.Config,
		now:        now,
		log:        log,
	}
}

// Start registers the periodic jobs on g.
func (e *Engine) Start(g *jobmgr.Group) error {
	p := e.cfg.Proactivity
	jobs := []struct {
		name         string
		delay, every time.Duration
		fn           func(ctx context.Context) error
	}{
		{"initiation-schedule", p.ScheduleDelay, p.ScheduleEvery, func(ctx context.Context) error {
			_, err := e.Scheduler.ScheduleSweep(ctx)
			return err
		}},
		{"initiation-dispatch", p.DispatchDelay, p.DispatchEvery, func(ctx context.Context) error {
			_, err := e.Dispatcher.DispatchSweep(ctx)
			return err
		}},
		{"maintenance", p.MaintenanceEvery, p.MaintenanceEvery, func(ctx context.Context) error {
			_, err := e.Maintain(ctx)
			return err
		}},
	}
	for _, j := range jobs {
		if err := g.Every(j.name, j.delay, j.every, j.fn); err != nil {
			return fmt.Errorf("register %s: %w", j.name, err)
		}
	}
	return nil
}

// Maintain runs one cleanup pass and logs the last day's initiation metrics.
func (e *Engine) Maintain(ctx context.Context) (st.CleanupReport, error) {
	var rep st.CleanupReport
	now := e.now()

	var err error
	if rep.StaleCancelled, err = e.store.CancelStalePending(ctx, now.Add(-stalePendingAge)); err != nil {
		return rep, fmt.Errorf("cancel stale: %w", err)
	}
	if rep.LogsDeleted, err = e.store.DeleteLogsBefore(ctx, now.Add(-logRetention)); err != nil {
		return rep, fmt.Errorf("delete logs: %w", err)
	}
	if days := e.cfg.Memory.LTMCleanupDays; days > 0 {
		if rep.MemoryDeleted, err = e.store.DeleteMemoriesBefore(ctx, now.AddDate(0, 0, -days)); err != nil {
			return rep, fmt.Errorf("delete memories: %w", err)
		}
	}
	if rep.HistoryDeleted, err = e.store.TrimHistory(ctx, e.cfg.Memory.HistoryStorageLimit); err != nil {
		return rep, fmt.Errorf("trim history: %w", err)
	}

	if e.injection != nil {
		if dropped, err := e.injection.Recalibrate(ctx, e.cfg.Injection.RecalibrationFraction); err != nil {
			e.log.Warn().Err(err).Msg("injection recalibration failed")
		} else if dropped > 0 {
			e.log.Info().Int("dropped", dropped).Msg("injection cache recalibrated")
		}
	}

	m, err := e.store.Metrics(ctx, now.Add(-metricsWindow))
	if err != nil {
		e.log.Warn().Err(err).Msg("initiation metrics")
	} else {
		e.log.Info().Int("active_users", m.ActiveUsers).Int("initiations", m.Total).
			Float64("response_rate", m.ResponseRate).Float64("avg_sentiment", m.AvgSentiment).
			Msg("initiation metrics")
	}

	e.log.Info().Int64("stale", rep.StaleCancelled).Int64("logs", rep.LogsDeleted).
		Int64("ltm", rep.MemoryDeleted).Int64("history", rep.HistoryDeleted).Msg("maintenance done")
	return rep, nil
}
