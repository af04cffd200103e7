package util

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParallelRunsEveryItemDespiteFailures(t *testing.T) {
	var done atomic.Int32
	boom := errors.New("boom")

	err := Parallel(context.Background(), []int{1, 2, 3, 4, 5}, 2, func(_ context.Context, n int) error {
		done.Add(1)
		if n == 2 {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
	assert.EqualValues(t, 5, done.Load())
}

func TestParallelRespectsLimit(t *testing.T) {
	var inFlight, peak atomic.Int32
	err := Parallel(context.Background(), make([]struct{}, 20), 3, func(context.Context, struct{}) error {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		inFlight.Add(-1)
		return nil
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestParallelCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Parallel(ctx, []int{1, 2}, 1, func(context.Context, int) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "45 min", FormatDuration(45*time.Minute))
	assert.Equal(t, "5 h", FormatDuration(5*time.Hour+10*time.Minute))
	assert.Equal(t, "2 d", FormatDuration(50*time.Hour))
}

func TestFormatInZone(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*3600)
	ts := time.Date(2026, 3, 10, 21, 5, 0, 0, time.UTC)
	assert.Equal(t, "2026-03-10 23:05", FormatInZone(ts, loc, "YYYY-MM-DD hh:mm"))
	assert.Equal(t, "11.03 00:05", FormatInZone(ts.Add(time.Hour), loc, "DD.MM hh:mm"))
}
