// Package jobmgr supervises long-running periodic jobs under one context.
//
// Typical usage:
//
//	g := jobmgr.New(ctx, logger)
//	g.Every("dispatch", 2*time.Minute, 10*time.Minute, func(ctx context.Context) error {
//	    return dispatcher.Sweep(ctx)
//	})
//	...
//	err := g.Wait() // after ctx is cancelled
//
// A tick that returns an error or panics is logged and the job waits for its
// next tick. Jobs stop when the group's context is cancelled.
package jobmgr

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Status is a snapshot of one job's bookkeeping.
type Status struct {
	Name     string
	Runs     int
	Failures int
	LastRun  time.Time
	LastErr  string
}

// Group runs named jobs and tracks their outcome.
// It is safe for concurrent use.
type Group struct {
	eg  *errgroup.Group
	ctx context.Context
	log zerolog.Logger

	mu   sync.Mutex
	jobs map[string]*Status
}

func New(ctx context.Context, log zerolog.Logger) *Group {
	eg, gctx := errgroup.WithContext(ctx)
	return &Group{
		eg:   eg,
		ctx:  gctx,
		log:  log.With().Str("component", "jobmgr").Logger(),
		jobs: make(map[string]*Status),
	}
}

// Every runs fn after delay and then every interval until the group stops.
// Registering a name twice returns an error.
func (g *Group) Every(name string, delay, interval time.Duration, fn func(ctx context.Context) error) error {
	if interval <= 0 {
		return fmt.Errorf("job %q: interval must be positive", name)
	}
	if err := g.register(name); err != nil {
		return err
	}

	g.eg.Go(func() error {
		g.log.Info().Str("job", name).Dur("delay", delay).Dur("every", interval).Msg("job started")
		defer g.log.Info().Str("job", name).Msg("job stopped")

		if !sleep(g.ctx, delay) {
			return nil
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			g.tick(name, fn)
			select {
			case <-g.ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	})
	return nil
}

// Go runs fn once in the group. Its error is logged, not propagated.
func (g *Group) Go(name string, fn func(ctx context.Context) error) error {
	if err := g.register(name); err != nil {
		return err
	}
	g.eg.Go(func() error {
		g.tick(name, fn)
		return nil
	})
	return nil
}

// Wait blocks until every job has returned.
func (g *Group) Wait() error {
	return g.eg.Wait()
}

// List returns job snapshots sorted by name.
func (g *Group) List() []Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Status, 0, len(g.jobs))
	for _, s := range g.jobs {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (g *Group) register(name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.jobs[name]; exists {
		return fmt.Errorf("job %q is already registered", name)
	}
	g.jobs[name] = &Status{Name: name}
	return nil
}

// tick runs one iteration, converting a panic into a recorded failure.
func (g *Group) tick(name string, fn func(ctx context.Context) error) {
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
				g.log.Error().Str("job", name).Interface("panic", r).Bytes("stack", debug.Stack()).Msg("job panicked")
			}
		}()
		err = fn(g.ctx)
	}()

	g.mu.Lock()
	s := g.jobs[name]
	s.Runs++
	s.LastRun = time.Now()
	if err != nil {
		s.Failures++
		s.LastErr = err.Error()
	} else {
		s.LastErr = ""
	}
	g.mu.Unlock()

	if err != nil && g.ctx.Err() == nil {
		g.log.Warn().Err(err).Str("job", name).Msg("job tick failed")
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
