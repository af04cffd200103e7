package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/keshon/himera/internal/auth"
	"github.com/keshon/himera/internal/logging"
	"github.com/keshon/himera/internal/mind"
	"github.com/keshon/himera/internal/storage"
	st "github.com/keshon/himera/internal/storagetypes"
	"github.com/keshon/himera/pkg/cmd"
)

const recentShown = 3

type rememberCmd struct {
	meta
	d Deps
}

func (c *rememberCmd) Run(ctx context.Context, inv *cmd.Invocation) error {
	if c.d.Pipeline == nil {
		inv.Replyf("Memory is not available right now.")
		return nil
	}
	importance := mind.DefaultImportance
	if a := inv.Arg(0); a != "" {
		n, err := strconv.Atoi(a)
		if err != nil {
			inv.Replyf("Importance must be a number from 1 to 10.")
			return nil
		}
		importance = n
	}

	m, err := c.d.Pipeline.Remember(ctx, inv.UserID, importance)
	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		inv.Replyf(replyUnauthorized)
		return nil
	case errors.Is(err, storage.ErrInvalidImportance):
		inv.Replyf("Importance must be a number from 1 to 10.")
		return nil
	case errors.Is(err, mind.ErrNothingToRemember):
		inv.Replyf("Nothing to remember yet. Ask me something first.")
		return nil
	case err != nil:
		return err
	}
	inv.Replyf("Saved to memory (importance %d): %s", m.Importance, logging.Preview(m.UserMessage, 80))
	return nil
}

type memoryStatsCmd struct {
	meta
	d Deps
}

func (c *memoryStatsCmd) Run(ctx context.Context, inv *cmd.Invocation) error {
	stats, err := c.d.Store.MemoryStats(ctx, inv.UserID)
	if err != nil {
		return err
	}
	if stats.Total == 0 {
		inv.Replyf("I don't remember anything about you yet. Save an exchange with /remember")
		return nil
	}
	recent, err := c.d.Store.LatestMemories(ctx, inv.UserID, recentShown)
	if err != nil {
		return err
	}

	var quota string
	if c.d.Pipeline != nil {
		used, limit, err := c.d.Pipeline.AutoSaveQuota(ctx, inv.UserID)
		if err != nil {
			return err
		}
		quota = fmt.Sprintf("\nAuto-saved today: %d of %d", used, limit)
	}
	inv.Replyf("%s%s", FormatMemoryStats(stats, recent), quota)
	return nil
}

// FormatMemoryStats renders a user's memory summary and latest memories.
func FormatMemoryStats(stats st.MemoryStats, recent []st.Memory) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Memories: %d (saved by you %d, auto-saved %d)\nAverage importance: %.1f",
		stats.Total, stats.UserSaved, stats.AutoSaved, stats.AvgImportance)
	if stats.LastMemoryDate != nil {
		fmt.Fprintf(&b, "\nLast saved: %s", stats.LastMemoryDate.Format("02.01.2006"))
	}
	if len(recent) > 0 {
		b.WriteString("\nLatest:")
		for _, m := range recent {
			fmt.Fprintf(&b, "\n  [%d] %s", m.Importance, logging.Preview(m.UserMessage, 60))
		}
	}
	return b.String()
}
