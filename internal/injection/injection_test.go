package injection

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/himera/internal/cache"
	"github.com/keshon/himera/internal/config"
	"github.com/keshon/himera/internal/emotion"
	st "github.com/keshon/himera/internal/storagetypes"
)

func testConfig() config.Injection {
	return config.Default().Injection
}

func newEngine(t *testing.T, caps Capabilities) (*Engine, *cache.Memory) {
	t.Helper()
	c := cache.NewMemory(time.Minute)
	return New(c, testConfig(), caps, zerolog.Nop()), c
}

// calm is a history that fires no invalidation trigger.
func calm() []st.HistoryEntry {
	var h []st.HistoryEntry
	for i := 0; i < 6; i++ {
		h = append(h, st.HistoryEntry{Role: st.RoleUser, Mode: st.ModeTalk, Content: "same length"})
	}
	return h
}

func TestShouldInjectQuota(t *testing.T) {
	ctx := context.Background()
	e, c := newEngine(t, Capabilities{})

	assert.True(t, e.ShouldInject(ctx, 7, 0.95))
	assert.False(t, e.ShouldInject(ctx, 7, 0.5), "below entropy threshold")

	for i := 0; i < 2; i++ {
		_, err := c.Incr(ctx, counterPrefix+"7", time.Hour)
		require.NoError(t, err)
	}
	assert.False(t, e.ShouldInject(ctx, 7, 0.95), "quota used up")

	require.NoError(t, e.ResetUserCounter(ctx, 7))
	assert.True(t, e.ShouldInject(ctx, 7, 0.95))
}

func TestComposeNeverExceedsBudget(t *testing.T) {
	e, _ := newEngine(t, Capabilities{PersonalAnchors: true})
	modes := []st.Mode{st.ModeAuto, st.ModeTalk, st.ModeExpert, st.ModeWriter, st.ModeProactive}
	emotions := []string{emotion.Joy, emotion.Sadness, emotion.Anger, "", "unheard-of"}
	violations := []Violation{NoViolation, FormatViolation, CharacterDrift}

	for _, m := range modes {
		for _, emo := range emotions {
			for _, v := range violations {
				for _, auth := range []bool{false, true} {
					text, tokens := e.compose(Request{Mode: m, Emotion: emo, Violation: v, Authorized: auth})
					assert.LessOrEqual(t, tokens, e.cfg.MaxTokens, "%s/%s/%s/%v", m, emo, v, auth)
					assert.True(t, strings.HasPrefix(text, header))
				}
			}
		}
	}
}

func TestComposePriorityOrder(t *testing.T) {
	e, _ := newEngine(t, Capabilities{PersonalAnchors: true})

	text, tokens := e.compose(Request{Mode: st.ModeTalk, Emotion: emotion.Joy, Authorized: true})
	assert.Equal(t, header+"You are Chimera. Your weapon is living speech. Playfulness is appropriate.", text)
	assert.Equal(t, 50, tokens)

	// without a mode booster the personal anchor fits
	text, tokens = e.compose(Request{Mode: st.ModeAuto, Emotion: "anger", Authorized: true})
	assert.Equal(t, header+"You are Chimera. Balance of depth and lightness. Balance of all qualities.", text)
	assert.Equal(t, 50, tokens)

	text, _ = e.compose(Request{Mode: st.ModeAuto, Emotion: emotion.Neutral, Authorized: true, Violation: FormatViolation,
		Memories: []st.Memory{{StyleMarkers: &st.StyleMarkers{MagicalRealism: true}}}})
	assert.Equal(t, header+"Chimera writes in continuous prose. Balance of depth and lightness. Remember: mysticism.", text)
}

func TestPersonalAnchorNeedsCapability(t *testing.T) {
	e, _ := newEngine(t, Capabilities{})
	text, tokens := e.compose(Request{Mode: st.ModeAuto, Emotion: emotion.Neutral, Authorized: true})
	assert.Equal(t, 30, tokens)
	assert.NotContains(t, text, "Balance of all qualities")
}

func TestCacheHitDoesNotCountAgainstQuota(t *testing.T) {
	ctx := context.Background()
	e, c := newEngine(t, Capabilities{})
	req := Request{UserID: 3, Mode: st.ModeTalk, Emotion: emotion.Joy, History: calm()}

	first, err := e.Generate(ctx, req)
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := e.Generate(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Text, second.Text)

	n, err := c.Counter(ctx, counterPrefix+"3")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestViolationBypassesCache(t *testing.T) {
	ctx := context.Background()
	e, c := newEngine(t, Capabilities{})
	req := Request{UserID: 4, Mode: st.ModeTalk, Emotion: emotion.Joy, History: calm(), Violation: CharacterDrift}

	key := cacheKey(req.UserID, req.Mode, req.Emotion, req.Violation)
	require.NoError(t, c.Set(ctx, key, "stale", time.Hour))

	res, err := e.Generate(ctx, req)
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.NotEqual(t, "stale", res.Text)
	assert.Contains(t, res.Text, "Return to your essence.")
}

func TestEmotionChangeBypassesCache(t *testing.T) {
	ctx := context.Background()
	e, c := newEngine(t, Capabilities{})
	req := Request{UserID: 5, Mode: st.ModeTalk, Emotion: emotion.Joy, History: calm()}

	require.NoError(t, c.Set(ctx, cacheKey(5, st.ModeTalk, emotion.Joy, NoViolation), "stale", time.Hour))
	require.NoError(t, c.Set(ctx, emotionPrefix+"5", emotion.Sadness, time.Hour))

	res, err := e.Generate(ctx, req)
	require.NoError(t, err)
	assert.False(t, res.Cached)

	last, err := c.Get(ctx, emotionPrefix+"5")
	require.NoError(t, err)
	assert.Equal(t, emotion.Joy, last)
}

func TestAuthorizedIsNeverCached(t *testing.T) {
	ctx := context.Background()
	e, c := newEngine(t, Capabilities{PersonalAnchors: true})
	req := Request{UserID: 6, Mode: st.ModeAuto, Emotion: emotion.Neutral, History: calm(), Authorized: true}

	_, err := e.Generate(ctx, req)
	require.NoError(t, err)
	keys, err := c.Keys(ctx, cachePrefix)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

type brokenCache struct{ cache.Cache }

func (brokenCache) Get(context.Context, string) (string, error) { return "", errors.New("down") }
func (brokenCache) Counter(context.Context, string) (int64, error) {
	return 0, errors.New("down")
}
func (brokenCache) Set(context.Context, string, string, time.Duration) error {
	return errors.New("down")
}
func (brokenCache) Incr(context.Context, string, time.Duration) (int64, error) {
	return 0, errors.New("down")
}

func TestCacheFailureIsAMiss(t *testing.T) {
	ctx := context.Background()
	e := New(brokenCache{}, testConfig(), Capabilities{}, zerolog.Nop())

	assert.True(t, e.ShouldInject(ctx, 1, 0.9))
	res, err := e.Generate(ctx, Request{UserID: 1, Mode: st.ModeTalk, Emotion: emotion.Joy})
	require.NoError(t, err)
	assert.Contains(t, res.Text, "You are Chimera.")
}

func TestRecalibrateAndStats(t *testing.T) {
	ctx := context.Background()
	e, c := newEngine(t, Capabilities{})

	n, err := e.Recalibrate(ctx, 0.05)
	require.NoError(t, err)
	assert.Zero(t, n)

	for i := 0; i < 40; i++ {
		require.NoError(t, c.Set(ctx, fmt.Sprintf("%s%d", cachePrefix, i), "x", time.Hour))
	}
	e.TouchActivity(ctx, 9)
	_, err = c.Incr(ctx, counterPrefix+"9", time.Hour)
	require.NoError(t, err)

	n, err = e.Recalibrate(ctx, 0.05)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	stats, err := e.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{ActiveUsers: 1, TotalInjections: 1, CachedInjections: 38}, stats)
}

func TestEntropy(t *testing.T) {
	assert.Zero(t, Entropy(nil))
	assert.Zero(t, Entropy(calm()[:2]))
	assert.Zero(t, Entropy(calm()))

	h := []st.HistoryEntry{
		{Role: st.RoleUser, Mode: st.ModeTalk, Content: "hi"},
		{Role: st.RoleAssistant, Mode: st.ModeExpert},
		{Role: st.RoleUser, Mode: st.ModeTalk, Content: strings.Repeat("long ", 2000)},
		{Role: st.RoleAssistant},
	}
	// three switches over four records plus a saturated length term
	assert.InDelta(t, 0.75*0.5+0.5, Entropy(h), 1e-9)
}

func TestDetectViolation(t *testing.T) {
	assert.Equal(t, NoViolation, DetectViolation(""))
	assert.Equal(t, NoViolation, DetectViolation("A story told plainly."))
	assert.Equal(t, FormatViolation, DetectViolation("Options:\n- one\n- two"))
	assert.Equal(t, CharacterDrift, DetectViolation("1. first\n2. second"))
	assert.Equal(t, CharacterDrift, DetectViolation("I recommend this, I suggest that, you should rest."))
}

func TestParseViolation(t *testing.T) {
	v, err := ParseViolation("FORMAT_VIOLATION")
	require.NoError(t, err)
	assert.Equal(t, FormatViolation, v)

	v, err = ParseViolation("none")
	require.NoError(t, err)
	assert.Equal(t, NoViolation, v)

	_, err = ParseViolation("rudeness")
	assert.ErrorIs(t, err, ErrUnknownViolation)
}
