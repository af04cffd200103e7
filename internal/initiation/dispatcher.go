package initiation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/keshon/himera/internal/ai"
	"github.com/keshon/himera/internal/anchor"
	"github.com/keshon/himera/internal/injection"
	"github.com/keshon/himera/internal/storage"
	st "github.com/keshon/himera/internal/storagetypes"
)

const styleHistory = 15

// Sender delivers a message to a user over the messaging front-end.
type Sender interface {
	Send(ctx context.Context, userID int64, text string) error
}

var ErrEmptyMessage = errors.New("generated initiation is empty")

type Dispatcher struct {
	store    storage.Store
	provider ai.Provider
	sender   Sender
	caps     injection.Capabilities
	batch    int
	timeout  time.Duration
	now      Clock
	log      zerolog.Logger
}

func NewDispatcher(store storage.Store, provider ai.Provider, sender Sender, caps injection.Capabilities, batch int, timeout time.Duration, now Clock, log zerolog.Logger) *Dispatcher {
	if batch <= 0 {
		batch = 50
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Dispatcher{
		store:    store,
		provider: provider,
		sender:   sender,
		caps:     caps,
		batch:    batch,
		timeout:  timeout,
		now:      now,
		log:      log.With().Str("component", "dispatcher").Logger(),
	}
}

type DispatchReport struct {
	Due    int
	Sent   int
	Failed int
}

// DispatchSweep sends every due pending initiation, oldest first. A failed
// row is marked failed and never retried; the sweep moves on. On
// cancellation the remaining rows stay pending.
func (d *Dispatcher) DispatchSweep(ctx context.Context) (DispatchReport, error) {
	var rep DispatchReport
	due, err := d.store.DuePending(ctx, d.now(), d.batch)
	if err != nil {
		return rep, fmt.Errorf("due pending: %w", err)
	}
	rep.Due = len(due)

	for _, e := range due {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		if err := d.dispatch(ctx, e); err != nil {
			if ctx.Err() != nil {
				return rep, ctx.Err()
			}
			rep.Failed++
			d.log.Error().Err(err).Int64("id", e.ID).Int64("user", e.UserID).Msg("initiation failed")
			if mErr := d.store.MarkFailed(ctx, e.ID, err.Error()); mErr != nil {
				d.log.Warn().Err(mErr).Int64("id", e.ID).Msg("mark failed")
			}
			continue
		}
		rep.Sent++
	}
	if rep.Due > 0 {
		d.log.Info().Int("due", rep.Due).Int("sent", rep.Sent).Int("failed", rep.Failed).Msg("dispatch sweep done")
	}
	return rep, nil
}

func (d *Dispatcher) dispatch(ctx context.Context, e st.ScheduleEntry) error {
	text, err := d.Generate(ctx, e)
	if err != nil {
		return err
	}
	if err := d.sender.Send(ctx, e.UserID, text); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	if _, err := d.store.MarkSent(ctx, e.ID, text, d.now()); err != nil {
		// delivered, so the row must not be marked failed
		d.log.Error().Err(err).Int64("id", e.ID).Msg("sent but not recorded")
		return nil
	}
	d.log.Info().Str("action", "dispatch").Int64("id", e.ID).Int64("user", e.UserID).Str("type", string(e.Type)).Msg("initiation sent")
	return nil
}

// Generate writes the initiation text for e under the dispatch timeout.
func (d *Dispatcher) Generate(ctx context.Context, e st.ScheduleEntry) (string, error) {
	var sources []st.Memory
	if len(e.SourceMemoryIDs) > 0 {
		mems, err := d.store.MemoriesByIDs(ctx, e.SourceMemoryIDs)
		if err != nil {
			d.log.Warn().Err(err).Int64("id", e.ID).Msg("source memories unavailable")
		}
		sources = mems
	}

	var style string
	if d.caps.PersonalAnchors {
		history, err := d.store.RecentHistory(ctx, e.UserID, styleHistory)
		if err != nil {
			d.log.Warn().Err(err).Int64("user", e.UserID).Msg("history unavailable for style")
		} else {
			style = anchor.MicroPrompt(anchor.EncodeStyle(history))
		}
	}

	cctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	text, err := d.provider.Complete(cctx, BuildPrompt(e, sources, style), st.ModeTalk, false)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyMessage
	}
	return text, nil
}
