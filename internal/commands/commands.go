// Package commands holds the user and admin commands shared by the console
// front-end and the admin CLI.
package commands

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/keshon/himera/internal/ai"
	"github.com/keshon/himera/internal/auth"
	"github.com/keshon/himera/internal/initiation"
	"github.com/keshon/himera/internal/injection"
	"github.com/keshon/himera/internal/mind"
	"github.com/keshon/himera/internal/storage"
	"github.com/keshon/himera/pkg/cmd"
	"github.com/keshon/himera/pkg/jobmgr"
)

const (
	categoryProactive = "Proactive messages"
	categoryMemory    = "Memory"
	categoryInfo      = "Information"
	categoryAdmin     = "Administration"
)

// CallCounter is implemented by the language-model client.
type CallCounter interface {
	Stats() (calls, failures int64)
}

// JobLister reports the supervised background jobs.
type JobLister interface {
	List() []jobmgr.Status
}

// Deps are the collaborators commands reach. Pipeline, Injection, Responder,
// LLM and Jobs may be nil; the commands that need them then report that the
// feature is unavailable.
type Deps struct {
	Store      storage.Store
	Initiation *initiation.Engine
	Pipeline   *mind.Pipeline
	Injection  *injection.Engine
	Responder  *ai.Responder
	LLM        CallCounter
	Jobs       JobLister
	Auth       *auth.Allowlist
	// RecalibrationFraction is the default share of cached injections
	// dropped by the recalibrate command.
	RecalibrationFraction float64
	Clock                 func() time.Time
	Log                   zerolog.Logger
}

func (d Deps) now() time.Time {
	if d.Clock != nil {
		return d.Clock()
	}
	return time.Now().UTC()
}

// meta carries the identity every command shares.
type meta struct {
	name     string
	desc     string
	category string
	sort     int
	admin    bool
}

func (m meta) Name() string        { return m.name }
func (m meta) Description() string { return m.desc }
func (m meta) AdminOnly() bool     { return m.admin }
func (m meta) Category() string    { return m.category }
func (m meta) Sort() int           { return m.sort }

// Categorized is implemented by every command in this package; help uses it
// to group the listing.
type Categorized interface {
	Category() string
	Sort() int
}

// Register adds every command to r, logged and admin-gated.
func Register(r *cmd.Registry, d Deps) {
	mws := []cmd.Middleware{cmd.Logged(d.Log.With().Str("component", "commands").Logger())}
	if d.Auth != nil {
		mws = append(mws, cmd.RequireAdmin(d.Auth.IsAdmin))
	} else {
		mws = append(mws, cmd.RequireAdmin(func(context.Context, int64) bool { return false }))
	}

	for _, c := range []cmd.Command{
		&helpCmd{meta: meta{"help", "Show the available commands.", categoryInfo, 100, false}, registry: r, auth: d.Auth},
		&writemeCmd{meta: meta{"writeme", "Turn proactive messages on.", categoryProactive, 200, false}, d: d},
		&dontwriteCmd{meta: meta{"dontwrite", "Turn proactive messages off.", categoryProactive, 210, false}, d: d},
		&pauseCmd{meta: meta{"writeme_pause", "Pause proactive messages, e.g. 3h or 2d.", categoryProactive, 220, false}, d: d},
		&statusCmd{meta: meta{"writeme_status", "Show the proactive message settings.", categoryProactive, 230, false}, d: d},
		&rememberCmd{meta: meta{"remember", "Save the last exchange to memory, importance 1-10.", categoryMemory, 300, false}, d: d},
		&memoryStatsCmd{meta: meta{"memory_stats", "Show what I remember about you.", categoryMemory, 310, false}, d: d},
		&statsCmd{meta: meta{"stats", "Engine, model and job statistics.", categoryAdmin, 900, true}, d: d},
		&recalibrateCmd{meta: meta{"recalibrate", "Drop a share of cached injections.", categoryAdmin, 910, true}, d: d},
		&resetCounterCmd{meta: meta{"reset_counter", "Reset a user's injection counter.", categoryAdmin, 920, true}, d: d},
		&cleanupCmd{meta: meta{"cleanup", "Run the maintenance sweep now.", categoryAdmin, 930, true}, d: d},
		&grantCmd{meta: meta{"grant", "Authorize a user.", categoryAdmin, 940, true}, d: d},
		&revokeCmd{meta: meta{"revoke", "Revoke a user's authorization.", categoryAdmin, 950, true}, d: d},
	} {
		r.Register(c, mws...)
	}
}
