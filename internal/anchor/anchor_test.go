package anchor

import (
	"testing"

	"github.com/stretchr/testify/assert"

	st "github.com/keshon/himera/internal/storagetypes"
)

func turns(role st.Role, modes ...st.Mode) []st.HistoryEntry {
	out := make([]st.HistoryEntry, len(modes))
	for i, m := range modes {
		out[i] = st.HistoryEntry{Role: role, Mode: m, Content: "x"}
	}
	return out
}

func TestEncodeStyleEmptyIsNeutral(t *testing.T) {
	assert.Equal(t, Neutral, EncodeStyle(nil))
	assert.Equal(t, Neutral, EncodeStyle([]st.HistoryEntry{}))
}

func TestEncodeStyleAccumulatesLastTen(t *testing.T) {
	h := turns(st.RoleAssistant, st.ModeExpert, st.ModeExpert)
	for i := 0; i < 10; i++ {
		h = append(h, st.HistoryEntry{Role: st.RoleAssistant, Mode: st.ModeTalk})
	}
	v := EncodeStyle(h)
	assert.InDelta(t, 0.8, v[Playful], 1e-9)
	assert.InDelta(t, 0.9, v[Magical], 1e-9)

	v = EncodeStyle(turns(st.RoleUser, st.ModeAuto, st.ModeProactive))
	assert.Equal(t, Vector{}, v)
}

func TestVolatilityShortHistory(t *testing.T) {
	for n := 0; n < 5; n++ {
		h := turns(st.RoleUser, make([]st.Mode, n)...)
		assert.Equal(t, 0.5, Volatility(h), "len %d", n)
	}
}

func TestVolatilityNeedsTwoUserTurns(t *testing.T) {
	h := turns(st.RoleAssistant, st.ModeTalk, st.ModeTalk, st.ModeTalk, st.ModeTalk)
	h = append(h, turns(st.RoleUser, st.ModeTalk)...)
	assert.Equal(t, 0.5, Volatility(h))
}

func TestVolatilityStableAndChurning(t *testing.T) {
	stable := turns(st.RoleUser, st.ModeTalk, st.ModeTalk, st.ModeTalk, st.ModeTalk, st.ModeTalk, st.ModeTalk)
	assert.InDelta(t, 0, Volatility(stable), 1e-6)

	churn := turns(st.RoleUser, st.ModeTalk, st.ModeTalk, st.ModeExpert, st.ModeExpert, st.ModeTalk, st.ModeTalk)
	v := Volatility(churn)
	assert.Greater(t, v, 0.0)
	assert.LessOrEqual(t, v, 1.0)
}

func TestMicroPrompt(t *testing.T) {
	assert.Equal(t, "Balance of all qualities.", MicroPrompt(Neutral))
	assert.Equal(t, "Accent: playfulness, irony.", MicroPrompt(Vector{0.9, 0, 0.9, 0.9}))
	assert.Equal(t, "Accent: magical realism.", MicroPrompt(Vector{0, 0, 0, 0.85}))
}

func TestLTMAnchor(t *testing.T) {
	_, ok := LTMAnchor(nil)
	assert.False(t, ok)

	mems := []st.Memory{
		{},
		{StyleMarkers: &st.StyleMarkers{MagicalRealism: true, Balkanisms: []string{"kafana", "rakija"}}},
		{StyleMarkers: &st.StyleMarkers{Balkanisms: []string{"sevdah"}}},
		{StyleMarkers: &st.StyleMarkers{MagicalRealism: true}},
	}
	got, ok := LTMAnchor(mems)
	assert.True(t, ok)
	assert.Equal(t, "Remember: mysticism, kafana.", got)
}
