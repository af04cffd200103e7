// Package emotion defines the emotion classifier contract and the pieces of
// the engine that only consume its label and confidence.
package emotion

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
)

// Labels produced by classifiers. Unknown labels pass through untouched.
const (
	Neutral  = "neutral"
	Joy      = "joy"
	Sadness  = "sadness"
	Anger    = "anger"
	Fear     = "fear"
	Surprise = "surprise"
	Love     = "love"
	Disgust  = "disgust"
	// Error marks a failed classification.
	Error = "error"
)

type Result struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Classifier labels a piece of user text.
type Classifier interface {
	Classify(ctx context.Context, text string) (Result, error)
}

// Safe wraps a Classifier so callers never see an error: blank text is
// neutral with confidence 1, a failure is "error" with confidence 0.
type Safe struct {
	inner Classifier
	log   zerolog.Logger
}

func NewSafe(inner Classifier, log zerolog.Logger) *Safe {
	return &Safe{inner: inner, log: log.With().Str("component", "emotion").Logger()}
}

func (s *Safe) Classify(ctx context.Context, text string) Result {
	if strings.TrimSpace(text) == "" {
		return Result{Label: Neutral, Confidence: 1}
	}
	res, err := s.inner.Classify(ctx, text)
	if err != nil {
		s.log.Warn().Err(err).Msg("classification failed")
		return Result{Label: Error, Confidence: 0}
	}
	if res.Label == "" {
		res.Label = Neutral
	}
	return res
}

// IsNegative reports labels counted as negative in trajectory analysis.
func IsNegative(label string) bool {
	switch label {
	case Sadness, Anger, Fear, Disgust:
		return true
	default:
		return false
	}
}

// IsPositive reports labels counted as positive in trajectory analysis.
func IsPositive(label string) bool {
	switch label {
	case Joy, Surprise, Love:
		return true
	default:
		return false
	}
}

// IsStress reports labels that count toward silence mode.
func IsStress(label string) bool {
	switch label {
	case Sadness, Anger, Fear:
		return true
	default:
		return false
	}
}
