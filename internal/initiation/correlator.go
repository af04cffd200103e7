package initiation

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/keshon/himera/internal/emotion"
	"github.com/keshon/himera/internal/storage"
	st "github.com/keshon/himera/internal/storagetypes"
)

const (
	correlationWindow = 24 * time.Hour
	maxStoredResponse = 1000
)

// Correlator ties a user's reply to the initiation it answers.
type Correlator struct {
	store    storage.Store
	polarity *emotion.Polarity
	now      Clock
	log      zerolog.Logger
}

func NewCorrelator(store storage.Store, polarity *emotion.Polarity, now Clock, log zerolog.Logger) *Correlator {
	return &Correlator{store: store, polarity: polarity, now: now, log: log.With().Str("component", "correlator").Logger()}
}

// OnUserMessage records text as the reply to the latest unanswered initiation
// sent in the last 24 hours. It returns false when there is none.
func (c *Correlator) OnUserMessage(ctx context.Context, userID int64, text, label string) (bool, error) {
	now := c.now()
	entry, ok, err := c.store.LatestUnresponded(ctx, userID, now.Add(-correlationWindow))
	if err != nil {
		return false, fmt.Errorf("latest unresponded: %w", err)
	}
	if !ok {
		return false, nil
	}

	upd := st.ResponseUpdate{
		Text:      clipRunes(text, maxStoredResponse),
		Emotion:   label,
		Sentiment: c.polarity.Sentiment(label, text),
		Length:    utf8.RuneCountInString(text),
		Minutes:   int(now.Sub(entry.CreatedAt).Minutes()),
	}
	if err := c.store.RecordResponse(ctx, entry, upd); err != nil {
		if errors.Is(err, storage.ErrNotPending) {
			// another message got there first
			return false, nil
		}
		return false, fmt.Errorf("record response: %w", err)
	}
	c.log.Info().Str("action", "correlate").Int64("user", userID).Int64("log", entry.ID).
		Int("minutes", upd.Minutes).Float64("sentiment", upd.Sentiment).Msg("reply to initiation")
	return true, nil
}
