package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "himera.db", cfg.StoragePath)
	assert.Equal(t, 4, cfg.Proactivity.MaxPerDay)
	assert.Equal(t, 3.0, cfg.Proactivity.MinIntervalHours)
	assert.Equal(t, 9, cfg.Proactivity.ActiveHoursStart)
	assert.Equal(t, 23, cfg.Proactivity.ActiveHoursEnd)
	assert.Equal(t, 0.6, cfg.Proactivity.MinQuality)
	assert.Equal(t, 30*time.Minute, cfg.Proactivity.ScheduleEvery)
	assert.Equal(t, 10*time.Minute, cfg.Proactivity.DispatchEvery)
	assert.Equal(t, 65, cfg.Injection.MaxTokens)
	assert.Equal(t, time.Hour, cfg.Injection.CacheTTL)
	assert.Equal(t, 120*time.Millisecond, cfg.Injection.LatencyBudget)
	assert.Equal(t, 21, cfg.Memory.HistoryStorageLimit)
	require.NoError(t, cfg.Validate())
}

func TestParseFromEnvironment(t *testing.T) {
	t.Setenv("PROACTIVITY_MAX_PER_DAY", "6")
	t.Setenv("INJECTION_MAX_TOKENS", "80")
	t.Setenv("AUTHORIZED_USERS", "10,42")
	t.Setenv("LLM_TIMEOUT", "15s")

	cfg, err := Parse()
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.Proactivity.MaxPerDay)
	assert.Equal(t, 80, cfg.Injection.MaxTokens)
	assert.Equal(t, []int64{10, 42}, cfg.AuthorizedUsers)
	assert.Equal(t, 15*time.Second, cfg.LLM.Timeout)
}

func TestValidateRejectsBadRanges(t *testing.T) {
	cases := map[string]func(c *Config){
		"inverted hours":   func(c *Config) { c.Proactivity.ActiveHoursStart = 23; c.Proactivity.ActiveHoursEnd = 9 },
		"weight above one": func(c *Config) { c.Proactivity.WeightInsight = 1.5 },
		"importance":       func(c *Config) { c.Memory.AutoSaveImportance = 11 },
		"per day":          func(c *Config) { c.Proactivity.MinPerDay = 5 },
		"tokens":           func(c *Config) { c.Injection.MaxTokens = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}
