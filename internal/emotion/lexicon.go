package emotion

import (
	"context"
	"fmt"
	"strings"

	"github.com/coregx/ahocorasick"
)

// DefaultLexicon maps labels to lowercase cue phrases, English and Russian.
var DefaultLexicon = map[string][]string{
	Joy:      {"happy", "glad", "great", "awesome", "wonderful", "haha", "love it", "рад", "счастлив", "отлично", "здорово", "класс", "ура"},
	Sadness:  {"sad", "lonely", "tired of", "miss ", "depressed", "cry", "грустно", "тоскливо", "одиноко", "плачу", "печаль"},
	Anger:    {"angry", "furious", "annoyed", "hate", "damn", "злюсь", "бесит", "ненавижу", "раздражает"},
	Fear:     {"afraid", "scared", "worried", "anxious", "nervous", "боюсь", "страшно", "тревожно", "волнуюсь"},
	Surprise: {"wow", "really?", "unexpected", "no way", "surprised", "ого", "неужели", "вот это да", "удивительно"},
	Love:     {"i love", "adore", "darling", "люблю", "обожаю", "нежность"},
	Disgust:  {"disgusting", "gross", "yuck", "отвратительно", "мерзко", "фу"},
}

// Lexicon is a keyword classifier: the label with the most cue hits wins.
// Text without cues is neutral.
type Lexicon struct {
	ac       *ahocorasick.Automaton
	patterns []string
	labelOf  []string
}

var _ Classifier = (*Lexicon)(nil)

func NewLexicon(lexicon map[string][]string) (*Lexicon, error) {
	l := &Lexicon{}
	for _, label := range sortedKeys(lexicon) {
		for _, cue := range lexicon[label] {
			cue = strings.ToLower(cue)
			if cue == "" {
				continue
			}
			l.patterns = append(l.patterns, cue)
			l.labelOf = append(l.labelOf, label)
		}
	}
	if len(l.patterns) == 0 {
		return nil, fmt.Errorf("lexicon: no cues")
	}
	ac, err := ahocorasick.NewBuilder().
		AddStrings(l.patterns).
		SetMatchKind(ahocorasick.LeftmostLongest).
		SetPrefilter(true).
		Build()
	if err != nil {
		return nil, fmt.Errorf("lexicon: %w", err)
	}
	l.ac = ac
	return l, nil
}

func (l *Lexicon) Classify(_ context.Context, text string) (Result, error) {
	hits := map[string]int{}
	total := 0
	for _, m := range l.ac.FindAllOverlapping([]byte(strings.ToLower(text))) {
		hits[l.labelOf[m.PatternID]]++
		total++
	}
	if total == 0 {
		return Result{Label: Neutral, Confidence: 0.6}, nil
	}

	best, bestN := Neutral, 0
	for _, label := range sortedKeys(hits) {
		if hits[label] > bestN {
			best, bestN = label, hits[label]
		}
	}
	return Result{Label: best, Confidence: float64(bestN) / float64(total)}, nil
}
