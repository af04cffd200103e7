package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/keshon/himera/pkg/cmd"
	"github.com/keshon/himera/pkg/util"
)

const metricsWindow = 24 * time.Hour

type statsCmd struct {
	meta
	d Deps
}

func (c *statsCmd) Run(ctx context.Context, inv *cmd.Invocation) error {
	var b strings.Builder

	m, err := c.d.Store.Metrics(ctx, c.d.now().Add(-metricsWindow))
	if err != nil {
		return err
	}
	fmt.Fprintf(&b, "Initiations (24h): %d sent to %d users, %d answered (%.0f%%)\n",
		m.Total, m.ActiveUsers, m.Responded, m.ResponseRate*100)
	fmt.Fprintf(&b, "Replies: %.0f chars, sentiment %.2f, after %.0f min on average\n",
		m.AvgResponseLen, m.AvgSentiment, m.AvgResponseMins)

	if c.d.Injection != nil {
		s, err := c.d.Injection.Stats(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(&b, "Injections: %d total, %d users, %d cached\n", s.TotalInjections, s.ActiveUsers, s.CachedInjections)
	}
	if c.d.Responder != nil {
		s := c.d.Responder.Stats()
		fmt.Fprintf(&b, "Structured replies: %d ok, %d rejected, %d plain fallbacks\n", s.Success, s.Failures, s.Fallbacks)
	}
	if c.d.LLM != nil {
		calls, failures := c.d.LLM.Stats()
		fmt.Fprintf(&b, "Model calls: %d, failed %d\n", calls, failures)
	}
	if c.d.Jobs != nil {
		for _, j := range c.d.Jobs.List() {
			last := "never"
			if !j.LastRun.IsZero() {
				last = util.FormatDuration(c.d.now().Sub(j.LastRun)) + " ago"
			}
			fmt.Fprintf(&b, "Job %s: %d runs, %d failed, last %s", j.Name, j.Runs, j.Failures, last)
			if j.LastErr != "" {
				fmt.Fprintf(&b, " (%s)", j.LastErr)
			}
			b.WriteString("\n")
		}
	}
	inv.Replyf("%s", strings.TrimRight(b.String(), "\n"))
	return nil
}

type recalibrateCmd struct {
	meta
	d Deps
}

func (c *recalibrateCmd) Run(ctx context.Context, inv *cmd.Invocation) error {
	if c.d.Injection == nil {
		inv.Replyf("Injection engine is not running.")
		return nil
	}
	fraction := c.d.RecalibrationFraction
	if a := inv.Arg(0); a != "" {
		f, err := strconv.ParseFloat(a, 64)
		if err != nil || f <= 0 || f > 1 {
			inv.Replyf("Fraction must be a number in (0, 1].")
			return nil
		}
		fraction = f
	}
	n, err := c.d.Injection.Recalibrate(ctx, fraction)
	if err != nil {
		return err
	}
	inv.Replyf("Dropped %d cached injections.", n)
	return nil
}

func userArg(name string, inv *cmd.Invocation) (int64, bool) {
	id, err := strconv.ParseInt(inv.Arg(0), 10, 64)
	if err != nil {
		inv.Replyf("Usage: /%s <user id>", name)
		return 0, false
	}
	return id, true
}

type resetCounterCmd struct {
	meta
	d Deps
}

func (c *resetCounterCmd) Run(ctx context.Context, inv *cmd.Invocation) error {
	if c.d.Injection == nil {
		inv.Replyf("Injection engine is not running.")
		return nil
	}
	id, ok := userArg(c.name, inv)
	if !ok {
		return nil
	}
	if err := c.d.Injection.ResetUserCounter(ctx, id); err != nil {
		return err
	}
	inv.Replyf("Injection counter reset for %d.", id)
	return nil
}

type cleanupCmd struct {
	meta
	d Deps
}

func (c *cleanupCmd) Run(ctx context.Context, inv *cmd.Invocation) error {
	if c.d.Initiation == nil {
		inv.Replyf(replyNoProactivity)
		return nil
	}
	r, err := c.d.Initiation.Maintain(ctx)
	if err != nil {
		return err
	}
	inv.Replyf("Cleanup: %d stale initiations cancelled, %d logs, %d memories and %d history entries deleted.",
		r.StaleCancelled, r.LogsDeleted, r.MemoryDeleted, r.HistoryDeleted)
	return nil
}

type grantCmd struct {
	meta
	d Deps
}

func (c *grantCmd) Run(_ context.Context, inv *cmd.Invocation) error {
	if c.d.Auth == nil {
		inv.Replyf("Authorization is not configured.")
		return nil
	}
	id, ok := userArg(c.name, inv)
	if !ok {
		return nil
	}
	c.d.Auth.Grant(id)
	inv.Replyf("User %d is authorized until restart.", id)
	return nil
}

type revokeCmd struct {
	meta
	d Deps
}

func (c *revokeCmd) Run(_ context.Context, inv *cmd.Invocation) error {
	if c.d.Auth == nil {
		inv.Replyf("Authorization is not configured.")
		return nil
	}
	id, ok := userArg(c.name, inv)
	if !ok {
		return nil
	}
	c.d.Auth.Revoke(id)
	inv.Replyf("User %d is no longer authorized.", id)
	return nil
}
