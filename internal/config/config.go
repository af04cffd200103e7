// /internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	StoragePath     string  `env:"STORAGE_PATH" envDefault:"himera.db"`
	LogLevel        string  `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat       string  `env:"LOG_FORMAT" envDefault:"console"`
	AuthorizedUsers []int64 `env:"AUTHORIZED_USERS" envSeparator:","`
	AdminUsers      []int64 `env:"ADMIN_USERS" envSeparator:","`
	// ConsoleUserID is the user the stdin adapter speaks for.
	ConsoleUserID int64 `env:"CONSOLE_USER_ID" envDefault:"1000"`

	LLM         LLM         `envPrefix:"LLM_"`
	Memory      Memory      `envPrefix:"MEMORY_"`
	Proactivity Proactivity `envPrefix:"PROACTIVITY_"`
	Injection   Injection   `envPrefix:"INJECTION_"`
}

type LLM struct {
	APIKey       string        `env:"API_KEY"`
	BaseURL      string        `env:"BASE_URL" envDefault:"https://api.deepseek.com"`
	Model        string        `env:"MODEL" envDefault:"deepseek-chat"`
	Timeout      time.Duration `env:"TIMEOUT" envDefault:"60s"`
	MaxRetries   int           `env:"MAX_RETRIES" envDefault:"3"`
	UseJSON      bool          `env:"USE_JSON_OUTPUT" envDefault:"true"`
	JSONFallback bool          `env:"JSON_FALLBACK" envDefault:"true"`
	RatePerSec   float64       `env:"RATE_PER_SEC" envDefault:"2"`
}

type Memory struct {
	HistoryLimit        int `env:"HISTORY_LIMIT" envDefault:"20"`
	HistoryStorageLimit int `env:"HISTORY_STORAGE_LIMIT" envDefault:"21"`
	LTMCleanupDays      int `env:"LTM_CLEANUP_DAYS" envDefault:"180"`
	MaxAutoSavesPerDay  int `env:"MAX_AUTO_SAVES_PER_DAY" envDefault:"4"`
	AutoSaveImportance  int `env:"AUTO_SAVE_IMPORTANCE" envDefault:"5"`
}

type Proactivity struct {
	DefaultOn                bool    `env:"DEFAULT_ON" envDefault:"true"`
	MinPerDay                int     `env:"MIN_PER_DAY" envDefault:"2"`
	MaxPerDay                int     `env:"MAX_PER_DAY" envDefault:"4"`
	MinIntervalHours         float64 `env:"MIN_INTERVAL_HOURS" envDefault:"3"`
	MaxIntervalHours         float64 `env:"MAX_INTERVAL_HOURS" envDefault:"12"`
	ActiveHoursStart         int     `env:"ACTIVE_HOURS_START" envDefault:"9"`
	ActiveHoursEnd           int     `env:"ACTIVE_HOURS_END" envDefault:"23"`
	MinQuality               float64 `env:"MIN_QUALITY" envDefault:"0.6"`
	SimilarityThreshold      float64 `env:"SIMILARITY_THRESHOLD" envDefault:"0.7"`
	ABTestEnabled            bool    `env:"AB_TEST_ENABLED" envDefault:"true"`
	ABTestPercentage         int     `env:"AB_TEST_PERCENTAGE" envDefault:"50"`
	SilenceAfterIgnored      int     `env:"SILENCE_AFTER_IGNORED" envDefault:"2"`
	SilenceMinResponseLength int     `env:"SILENCE_MIN_RESPONSE_LENGTH" envDefault:"10"`
	SilenceInactivityDays    int     `env:"SILENCE_INACTIVITY_DAYS" envDefault:"7"`
	WeightContinuation       float64 `env:"WEIGHT_CONTINUATION" envDefault:"0.5"`
	WeightInsight            float64 `env:"WEIGHT_INSIGHT" envDefault:"0.3"`
	WeightSupportive         float64 `env:"WEIGHT_SUPPORTIVE" envDefault:"0.2"`
	DefaultTimezone          string  `env:"DEFAULT_TIMEZONE" envDefault:"Europe/Amsterdam"`
	SweepWorkers             int     `env:"SWEEP_WORKERS" envDefault:"1"`
	DispatchBatch            int     `env:"DISPATCH_BATCH" envDefault:"50"`

	ScheduleEvery    time.Duration `env:"SCHEDULE_EVERY" envDefault:"30m"`
	ScheduleDelay    time.Duration `env:"SCHEDULE_DELAY" envDefault:"60s"`
	DispatchEvery    time.Duration `env:"DISPATCH_EVERY" envDefault:"10m"`
	DispatchDelay    time.Duration `env:"DISPATCH_DELAY" envDefault:"120s"`
	MaintenanceEvery time.Duration `env:"MAINTENANCE_EVERY" envDefault:"24h"`
}

type Injection struct {
	Enabled               bool          `env:"ENABLED" envDefault:"true"`
	MaxTokens             int           `env:"MAX_TOKENS" envDefault:"65"`
	CacheTTL              time.Duration `env:"CACHE_TTL" envDefault:"1h"`
	MaxPerDialogue        int           `env:"MAX_PER_DIALOGUE" envDefault:"2"`
	EntropyThreshold      float64       `env:"ENTROPY_THRESHOLD" envDefault:"0.7"`
	LatencyBudget         time.Duration `env:"LATENCY_BUDGET" envDefault:"120ms"`
	PersonalAnchors       bool          `env:"PERSONAL_ANCHORS" envDefault:"true"`
	RecalibrationFraction float64       `env:"RECALIBRATION_FRACTION" envDefault:"0.05"`
}

var ErrInvalid = errors.New("invalid config")

// Load reads an optional .env file and parses the environment into Config.
func Load() (*Config, error) {
	// a missing .env is fine, system environment is used as is
	_ = godotenv.Load()
	return Parse()
}

// Parse builds Config from the current environment without touching .env.
func Parse() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in defaults, as if the environment were empty.
func Default() *Config {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: map[string]string{}}); err != nil {
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	return &cfg
}

func (c *Config) Validate() error {
	p := c.Proactivity
	switch {
	case p.ActiveHoursStart < 0 || p.ActiveHoursEnd > 24 || p.ActiveHoursStart >= p.ActiveHoursEnd:
		return fmt.Errorf("%w: active hours %d..%d", ErrInvalid, p.ActiveHoursStart, p.ActiveHoursEnd)
	case p.MinPerDay > p.MaxPerDay:
		return fmt.Errorf("%w: min per day %d > max %d", ErrInvalid, p.MinPerDay, p.MaxPerDay)
	case p.MinIntervalHours > p.MaxIntervalHours:
		return fmt.Errorf("%w: min interval %.1fh > max %.1fh", ErrInvalid, p.MinIntervalHours, p.MaxIntervalHours)
	case !unit(p.WeightContinuation) || !unit(p.WeightInsight) || !unit(p.WeightSupportive):
		return fmt.Errorf("%w: strategy weights must be within [0,1]", ErrInvalid)
	case !unit(p.MinQuality) || !unit(p.SimilarityThreshold):
		return fmt.Errorf("%w: quality and similarity thresholds must be within [0,1]", ErrInvalid)
	case p.ScheduleEvery <= 0 || p.DispatchEvery <= 0 || p.MaintenanceEvery <= 0:
		return fmt.Errorf("%w: loop intervals must be positive", ErrInvalid)
	}

	m := c.Memory
	if m.AutoSaveImportance < 1 || m.AutoSaveImportance > 10 {
		return fmt.Errorf("%w: auto-save importance %d outside 1..10", ErrInvalid, m.AutoSaveImportance)
	}
	if m.HistoryStorageLimit < m.HistoryLimit {
		return fmt.Errorf("%w: history storage limit %d below read limit %d", ErrInvalid, m.HistoryStorageLimit, m.HistoryLimit)
	}

	in := c.Injection
	if in.MaxTokens <= 0 || in.MaxPerDialogue < 0 || !unit(in.EntropyThreshold) || !unit(in.RecalibrationFraction) {
		return fmt.Errorf("%w: injection settings", ErrInvalid)
	}
	return nil
}

func unit(v float64) bool { return v >= 0 && v <= 1 }
