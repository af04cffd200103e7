package emotion

import (
	"sort"
	"strings"

	"github.com/coregx/ahocorasick"
)

var baseSentiment = map[string]float64{
	Joy:      0.8,
	Love:     0.9,
	Surprise: 0.6,
	Neutral:  0.0,
	Sadness:  -0.6,
	Anger:    -0.8,
	Fear:     -0.7,
	Disgust:  -0.9,
}

var (
	positiveCues = []string{"thanks", "thank you", "interesting", "great", "cool", "sure", "yes", "спасибо", "интересно", "здорово", "отлично", "да", "конечно", "хорошо"}
	negativeCues = []string{"nope", "not now", "leave me", "tired", "busy", "later", "not interested", "нет", "не надо", "отстань", "устал", "занят", "потом", "неинтересно"}
)

// Polarity scores reply text against fixed cue lists. Each cue counts once.
type Polarity struct {
	ac       *ahocorasick.Automaton
	positive int // cues [0, positive) are positive, the rest negative
}

func NewPolarity() (*Polarity, error) {
	patterns := append(append([]string{}, positiveCues...), negativeCues...)
	ac, err := ahocorasick.NewBuilder().
		AddStrings(patterns).
		SetMatchKind(ahocorasick.LeftmostLongest).
		SetPrefilter(true).
		Build()
	if err != nil {
		return nil, err
	}
	return &Polarity{ac: ac, positive: len(positiveCues)}, nil
}

// Counts returns how many distinct positive and negative cues occur in text.
func (p *Polarity) Counts(text string) (pos, neg int) {
	seen := map[int]bool{}
	for _, m := range p.ac.FindAllOverlapping([]byte(strings.ToLower(text))) {
		if seen[m.PatternID] {
			continue
		}
		seen[m.PatternID] = true
		if m.PatternID < p.positive {
			pos++
		} else {
			neg++
		}
	}
	return pos, neg
}

// Sentiment combines the label's base score (weight 0.7) with the text cue
// score (weight 0.3), clipped to [-1, 1]. Unknown labels have base 0.
func (p *Polarity) Sentiment(label, text string) float64 {
	pos, neg := p.Counts(text)
	textScore := float64(pos-neg) * 0.2
	s := baseSentiment[label]*0.7 + textScore*0.3
	return min(1, max(-1, s))
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
