package storagetypes

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	m, err := ParseMode(" Writer ")
	require.NoError(t, err)
	assert.Equal(t, ModeWriter, m)

	_, err = ParseMode("poet")
	assert.ErrorIs(t, err, ErrUnknownMode)
}

func TestParseInitiationType(t *testing.T) {
	for _, it := range InitiationTypes {
		got, err := ParseInitiationType(string(it))
		require.NoError(t, err)
		assert.Equal(t, it, got)
	}
	_, err := ParseInitiationType("reminder")
	assert.ErrorIs(t, err, ErrUnknownInitiationType)
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.True(t, StatusSent.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.False(t, Status("lost").Terminal())

	_, err := ParseStatus("lost")
	assert.ErrorIs(t, err, ErrUnknownStatus)
}

func TestParseRoleAndMemoryType(t *testing.T) {
	r, err := ParseRole("ASSISTANT")
	require.NoError(t, err)
	assert.Equal(t, RoleAssistant, r)
	_, err = ParseRole("bot")
	assert.ErrorIs(t, err, ErrUnknownRole)

	mt, err := ParseMemoryType("auto_saved")
	require.NoError(t, err)
	assert.Equal(t, MemoryAutoSaved, mt)
	_, err = ParseMemoryType("pinned")
	assert.ErrorIs(t, err, ErrUnknownMemoryType)
}

func TestSettingsPaused(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := ProactivitySettings{Enabled: true}
	assert.False(t, s.Paused(now))

	until := now.Add(time.Hour)
	s.PausedUntil = &until
	assert.True(t, s.Paused(now))
	assert.False(t, s.Paused(now.Add(2*time.Hour)))
}
