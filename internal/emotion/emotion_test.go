package emotion

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failing struct{}

func (failing) Classify(context.Context, string) (Result, error) {
	return Result{}, errors.New("model offline")
}

func TestSafeClassifier(t *testing.T) {
	s := NewSafe(failing{}, zerolog.Nop())
	assert.Equal(t, Result{Label: Neutral, Confidence: 1}, s.Classify(context.Background(), "   "))
	assert.Equal(t, Result{Label: Error, Confidence: 0}, s.Classify(context.Background(), "hello"))
}

func TestLexiconPicksDominantLabel(t *testing.T) {
	l, err := NewLexicon(DefaultLexicon)
	require.NoError(t, err)

	res, err := l.Classify(context.Background(), "I'm so scared and worried about tomorrow")
	require.NoError(t, err)
	assert.Equal(t, Fear, res.Label)
	assert.Equal(t, 1.0, res.Confidence)

	res, err = l.Classify(context.Background(), "Сегодня я очень рад, всё отлично")
	require.NoError(t, err)
	assert.Equal(t, Joy, res.Label)

	res, err = l.Classify(context.Background(), "the train leaves at nine")
	require.NoError(t, err)
	assert.Equal(t, Neutral, res.Label)
}

func TestSentiment(t *testing.T) {
	p, err := NewPolarity()
	require.NoError(t, err)

	// joy with one positive cue: 0.8*0.7 + 0.2*0.3
	assert.InDelta(t, 0.62, p.Sentiment(Joy, "thanks!"), 1e-9)
	assert.InDelta(t, -0.63, p.Sentiment(Disgust, ""), 1e-9)
	assert.InDelta(t, 0.0, p.Sentiment("unknown", ""), 1e-9)

	pos, neg := p.Counts("спасибо, спасибо")
	assert.Equal(t, 1, pos)
	assert.Equal(t, 0, neg)
}

func TestTrajectoryClasses(t *testing.T) {
	assert.True(t, IsNegative(Disgust))
	assert.False(t, IsStress(Disgust))
	assert.True(t, IsPositive(Love))
	assert.False(t, IsPositive(Neutral))
}

func TestCountsMatchSubstringContainment(t *testing.T) {
	p, err := NewPolarity()
	require.NoError(t, err)

	cases := map[string][2]int{
		"нет, не надо, потом": {0, 3},
		"неинтересно":         {1, 1}, // "интересно" sits inside the negative cue
		"thank you, thanks":   {2, 0},
		"busy, maybe later":   {0, 2},
	}
	for text, want := range cases {
		pos, neg := p.Counts(text)
		assert.Equal(t, want, [2]int{pos, neg}, text)
	}
}
