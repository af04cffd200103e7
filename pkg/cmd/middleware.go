package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// Middleware wraps a command (logging, permission check).
type Middleware func(Command) Command

// Apply applies middlewares in order; the first in the list is the outermost.
func Apply(c Command, mws ...Middleware) Command {
	for i := len(mws) - 1; i >= 0; i-- {
		c = mws[i](c)
	}
	return c
}

// Wrap layers run over c. Name and Description still come from c, and Root
// reaches c again for the optional interfaces (AdminOnly, categories).
func Wrap(c Command, run func(ctx context.Context, inv *Invocation) error) Command {
	return &layer{Command: c, run: run}
}

type layer struct {
	Command
	run func(ctx context.Context, inv *Invocation) error
}

func (l *layer) Run(ctx context.Context, inv *Invocation) error { return l.run(ctx, inv) }

// Root strips every middleware layer from c.
func Root(c Command) Command {
	for {
		l, ok := c.(*layer)
		if !ok {
			return c
		}
		c = l.Command
	}
}

// ErrForbidden is returned by RequireAdmin for non-admin callers.
var ErrForbidden = errors.New("command is restricted to administrators")

// AdminOnly marks commands that only administrators may run.
type AdminOnly interface {
	AdminOnly() bool
}

// RequireAdmin rejects invocations of AdminOnly commands by users isAdmin
// does not accept.
func RequireAdmin(isAdmin func(ctx context.Context, userID int64) bool) Middleware {
	return func(c Command) Command {
		a, ok := Root(c).(AdminOnly)
		if !ok || !a.AdminOnly() {
			return c
		}
		return Wrap(c, func(ctx context.Context, inv *Invocation) error {
			if !isAdmin(ctx, inv.UserID) {
				return ErrForbidden
			}
			return c.Run(ctx, inv)
		})
	}
}

// Logged logs every run with its duration and outcome.
func Logged(log zerolog.Logger) Middleware {
	return func(c Command) Command {
		return Wrap(c, func(ctx context.Context, inv *Invocation) error {
			start := time.Now()
			err := c.Run(ctx, inv)
			ev := log.Info()
			if err != nil {
				ev = log.Warn().Err(err)
			}
			ev.Str("command", c.Name()).Int64("user", inv.UserID).Dur("took", time.Since(start)).Msg("command run")
			return err
		})
	}
}
