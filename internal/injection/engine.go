// Package injection decides when the next model call gets a short steering
// reminder and composes it from prioritised, token-budgeted pieces.
package injection

import (
	"context"
	"math"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"

	"github.com/keshon/himera/internal/anchor"
	"github.com/keshon/himera/internal/cache"
	"github.com/keshon/himera/internal/config"
	"github.com/keshon/himera/internal/emotion"
	st "github.com/keshon/himera/internal/storagetypes"
)

const (
	cachePrefix    = "himera:injections:"
	counterPrefix  = "himera:injection_count:"
	emotionPrefix  = "himera:last_emotion:"
	activityPrefix = "himera:user_activity:"

	counterTTL  = 24 * time.Hour
	emotionTTL  = 24 * time.Hour
	activityTTL = 7 * 24 * time.Hour

	header = "## REMINDER ## "
)

// Token costs of each component.
const (
	CoreCost     = 15
	ModeCost     = 20
	EmotionCost  = 15
	PersonalCost = 20
)

var coreTemplates = map[Violation]string{
	NoViolation:     "You are Chimera.",
	FormatViolation: "Chimera writes in continuous prose.",
	CharacterDrift:  "Return to your essence.",
}

var modeBoosters = map[st.Mode]string{
	st.ModeTalk:   "Your weapon is living speech.",
	st.ModeExpert: "Analysis with brilliance of erudition and poetry.",
	st.ModeWriter: "Speak from inside the text.",
}

var emotionMods = map[string]string{
	emotion.Joy:      "Playfulness is appropriate.",
	emotion.Sadness:  "Sensitivity without sugariness.",
	emotion.Surprise: "Surprise feeds wit.",
	emotion.Neutral:  "Balance of depth and lightness.",
}

// Capabilities are switches the engine is built with rather than reads at
// run time.
type Capabilities struct {
	PersonalAnchors bool
}

type Engine struct {
	cache cache.Cache
	cfg   config.Injection
	caps  Capabilities
	log   zerolog.Logger
}

func New(c cache.Cache, cfg config.Injection, caps Capabilities, log zerolog.Logger) *Engine {
	return &Engine{
		cache: c,
		cfg:   cfg,
		caps:  caps,
		log:   log.With().Str("component", "injection").Logger(),
	}
}

func (e *Engine) Enabled() bool { return e.cfg.Enabled }

type Request struct {
	UserID     int64
	Mode       st.Mode
	Emotion    string
	History    []st.HistoryEntry
	Violation  Violation
	Authorized bool
	// Memories are the user's most relevant long-term memories, best first.
	Memories []st.Memory
}

type Result struct {
	Text    string
	Latency time.Duration
	Cached  bool
	Tokens  int
}

// ShouldInject reports whether a non-critical injection may fire. A user
// who has used up the per-dialogue quota gets false whatever the entropy.
func (e *Engine) ShouldInject(ctx context.Context, userID int64, entropy float64) bool {
	if !e.cfg.Enabled {
		return false
	}
	if e.count(ctx, userID) >= int64(e.cfg.MaxPerDialogue) {
		return false
	}
	return entropy >= e.cfg.EntropyThreshold
}

// Generate composes the reminder for one model call.
//
// A cache hit returns before the dialogue counter is touched: only freshly
// composed injections count against the quota.
func (e *Engine) Generate(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	vol := anchor.Volatility(req.History)
	key := cacheKey(req.UserID, req.Mode, req.Emotion, req.Violation)

	if !req.Authorized && !e.invalidated(ctx, req, vol) {
		if text, err := e.cache.Get(ctx, key); err == nil && text != "" {
			return Result{Text: text, Latency: time.Since(start), Cached: true}, nil
		}
	}

	text, tokens := e.compose(req)

	if !req.Authorized {
		ttl := time.Duration(float64(e.cfg.CacheTTL) * (0.3 + 0.7*(1-vol)))
		e.store(ctx, req.UserID, key, text, ttl)
		if err := e.cache.Set(ctx, emotionPrefix+userKey(req.UserID), req.Emotion, emotionTTL); err != nil {
			e.log.Warn().Err(err).Int64("user", req.UserID).Msg("last emotion not stored")
		}
	}

	if _, err := e.cache.Incr(ctx, counterPrefix+userKey(req.UserID), counterTTL); err != nil {
		e.log.Warn().Err(err).Int64("user", req.UserID).Msg("injection counter not incremented")
	}

	latency := time.Since(start)
	if latency > e.cfg.LatencyBudget {
		e.log.Warn().Int64("user", req.UserID).Dur("latency", latency).Dur("budget", e.cfg.LatencyBudget).Msg("injection over latency budget")
	}
	return Result{Text: text, Latency: latency, Tokens: tokens}, nil
}

// invalidated reports whether any trigger forces a fresh composition.
func (e *Engine) invalidated(ctx context.Context, req Request, vol float64) bool {
	if last, err := e.cache.Get(ctx, emotionPrefix+userKey(req.UserID)); err == nil && last != "" && last != req.Emotion {
		e.log.Debug().Int64("user", req.UserID).Str("from", last).Str("to", req.Emotion).Msg("emotion changed")
		return true
	}
	if vol > 0.4 {
		e.log.Debug().Int64("user", req.UserID).Float64("volatility", vol).Msg("volatile style")
		return true
	}
	if req.Violation != NoViolation {
		return true
	}
	return len(req.History) > 3 && Entropy(req.History) > 0.8
}

// compose admits components in priority order while they fit the budget.
func (e *Engine) compose(req Request) (string, int) {
	var parts []string
	used := 0
	admit := func(text string, cost int) {
		if text == "" || used+cost > e.cfg.MaxTokens {
			return
		}
		parts = append(parts, text)
		used += cost
	}

	core, ok := coreTemplates[req.Violation]
	if !ok {
		core = coreTemplates[NoViolation]
	}
	admit(core, CoreCost)
	admit(modeBoosters[req.Mode], ModeCost)

	mod, ok := emotionMods[req.Emotion]
	if !ok {
		mod = emotionMods[emotion.Neutral]
	}
	admit(mod, EmotionCost)

	if req.Authorized && e.caps.PersonalAnchors {
		personal, ok := anchor.LTMAnchor(req.Memories)
		if !ok {
			personal = anchor.MicroPrompt(anchor.EncodeStyle(req.History))
		}
		admit(personal, PersonalCost)
	}

	return header + strings.Join(parts, " "), used
}

// store writes text with ttl stretched by the user's recent activity.
func (e *Engine) store(ctx context.Context, userID int64, key, text string, ttl time.Duration) {
	activity, err := e.cache.Counter(ctx, activityPrefix+userKey(userID))
	if err != nil || activity < 1 {
		activity = 1
	}
	ttl = time.Duration(float64(ttl) * (1 + math.Log(float64(activity))))
	if err := e.cache.Set(ctx, key, text, ttl); err != nil {
		e.log.Warn().Err(err).Int64("user", userID).Msg("injection not cached")
		return
	}
	e.log.Debug().Int64("user", userID).Dur("ttl", ttl).Msg("injection cached")
}

// TouchActivity counts one user message towards the weekly activity level.
func (e *Engine) TouchActivity(ctx context.Context, userID int64) {
	if _, err := e.cache.Incr(ctx, activityPrefix+userKey(userID), activityTTL); err != nil {
		e.log.Warn().Err(err).Int64("user", userID).Msg("activity not counted")
	}
}

// ResetUserCounter starts a new dialogue for userID.
func (e *Engine) ResetUserCounter(ctx context.Context, userID int64) error {
	return e.cache.Delete(ctx, counterPrefix+userKey(userID))
}

func (e *Engine) count(ctx context.Context, userID int64) int64 {
	n, err := e.cache.Counter(ctx, counterPrefix+userKey(userID))
	if err != nil {
		return 0
	}
	return n
}

type Stats struct {
	ActiveUsers      int   `json:"active_users"`
	TotalInjections  int64 `json:"total_injections"`
	CachedInjections int   `json:"cached_injections"`
}

func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	counters, err := e.cache.Keys(ctx, counterPrefix)
	if err != nil {
		return s, err
	}
	s.ActiveUsers = len(counters)
	for _, k := range counters {
		if n, err := e.cache.Counter(ctx, k); err == nil {
			s.TotalInjections += n
		}
	}
	cached, err := e.cache.Keys(ctx, cachePrefix)
	if err != nil {
		return s, err
	}
	s.CachedInjections = len(cached)
	return s, nil
}

// Recalibrate drops a random fraction of cached injections, at least one
// when any exist. It returns how many keys were dropped.
func (e *Engine) Recalibrate(ctx context.Context, fraction float64) (int, error) {
	keys, err := e.cache.Keys(ctx, cachePrefix)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	n := max(1, int(float64(len(keys))*fraction))
	n = min(n, len(keys))
	rand.Shuffle(len(keys), func(i, j int) { keys[i], keys[j] = keys[j], keys[i] })
	if err := e.cache.Delete(ctx, keys[:n]...); err != nil {
		return 0, err
	}
	e.log.Info().Int("dropped", n).Int("cached", len(keys)).Msg("injection cache recalibrated")
	return n, nil
}

// cacheKey groups users into a hundred buckets so similar requests share entries.
func cacheKey(userID int64, mode st.Mode, emo string, v Violation) string {
	parts := []string{strconv.FormatInt(userID%100, 10), string(mode), emo}
	if v != NoViolation {
		parts = append(parts, string(v))
	}
	return cachePrefix + strconv.FormatUint(xxhash.Sum64String(strings.Join(parts, ":")), 16)
}

func userKey(userID int64) string {
	return strconv.FormatInt(userID, 10)
}
