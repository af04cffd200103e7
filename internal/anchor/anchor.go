// Package anchor condenses a user's recent history into a style vector and
// measures how much that style churns from turn to turn.
package anchor

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	st "github.com/keshon/himera/internal/storagetypes"
)

// Vector axes: playful, serious, ironic, magical.
type Vector [4]float64

const (
	Playful = iota
	Serious
	Ironic
	Magical
)

var (
	Neutral = Vector{0.5, 0.5, 0.5, 0.5}

	playful    = Vector{0.8, 0.2, 0.6, 0.9}
	analytical = Vector{0.3, 0.9, 0.4, 0.2}
	mystical   = Vector{0.5, 0.4, 0.3, 0.95}
)

const (
	window            = 10
	minVolatilityRows = 5
	defaultVolatility = 0.5
	modeWeight        = 0.1
)

func styleOf(m st.Mode) (Vector, bool) {
	switch m {
	case st.ModeTalk:
		return playful, true
	case st.ModeExpert:
		return analytical, true
	case st.ModeWriter:
		return mystical, true
	default:
		return Vector{}, false
	}
}

func tail[T any](s []T, n int) []T {
	if len(s) > n {
		return s[len(s)-n:]
	}
	return s
}

// EncodeStyle sums a tenth of each mode's style over the last ten records.
// Records in auto or proactive mode carry no style.
func EncodeStyle(history []st.HistoryEntry) Vector {
	if len(history) == 0 {
		return Neutral
	}
	var v Vector
	for _, h := range tail(history, window) {
		s, ok := styleOf(h.Mode)
		if !ok {
			continue
		}
		floats.AddScaled(v[:], modeWeight, s[:])
	}
	for i := range v {
		v[i] = clip(v[i], 0, 1)
	}
	return v
}

// Volatility is in [0,1]: twice the spread of cosine distances between the
// styles of consecutive user turns in the last ten records.
func Volatility(history []st.HistoryEntry) float64 {
	if len(history) < minVolatilityRows {
		return defaultVolatility
	}
	var vectors []Vector
	for _, h := range tail(history, window) {
		if h.Role == st.RoleUser {
			vectors = append(vectors, EncodeStyle([]st.HistoryEntry{h}))
		}
	}
	if len(vectors) < 2 {
		return defaultVolatility
	}
	distances := make([]float64, 0, len(vectors)-1)
	for i := 0; i+1 < len(vectors); i++ {
		distances = append(distances, CosineDistance(vectors[i], vectors[i+1]))
	}
	return clip(stat.PopStdDev(distances, nil)*2, 0, 1)
}

func CosineDistance(a, b Vector) float64 {
	sim := floats.Dot(a[:], b[:]) / (floats.Norm(a[:], 2)*floats.Norm(b[:], 2) + 1e-8)
	return 1 - sim
}

// MicroPrompt names at most two dominant traits of v.
func MicroPrompt(v Vector) string {
	var traits []string
	if v[Playful] > 0.7 {
		traits = append(traits, "playfulness")
	}
	if v[Ironic] > 0.7 {
		traits = append(traits, "irony")
	}
	if v[Magical] > 0.8 {
		traits = append(traits, "magical realism")
	}
	if len(traits) == 0 {
		return "Balance of all qualities."
	}
	return fmt.Sprintf("Accent: %s.", strings.Join(head(traits, 2), ", "))
}

// LTMAnchor builds a reminder from the style markers of the top three
// memories. ok is false when none of them carry usable markers.
func LTMAnchor(memories []st.Memory) (string, bool) {
	var hints []string
	for _, m := range memories[:min(3, len(memories))] {
		if m.StyleMarkers == nil {
			continue
		}
		if m.StyleMarkers.MagicalRealism {
			hints = append(hints, "mysticism")
		}
		if len(m.StyleMarkers.Balkanisms) > 0 {
			hints = append(hints, m.StyleMarkers.Balkanisms[0])
		}
	}
	if len(hints) == 0 {
		return "", false
	}
	return fmt.Sprintf("Remember: %s.", strings.Join(head(hints, 2), ", ")), true
}

// head keeps the first n elements.
func head(s []string, n int) []string {
	return s[:min(n, len(s))]
}

func clip(v, lo, hi float64) float64 {
	return min(max(v, lo), hi)
}
