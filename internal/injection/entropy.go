package injection

import (
	"unicode/utf8"

	"gonum.org/v1/gonum/stat"

	st "github.com/keshon/himera/internal/storagetypes"
)

// Entropy scores how chaotic a dialogue is, in [0,1]. Half of it comes from
// mode switches between consecutive records, half from the spread of user
// message lengths. Fewer than three records score 0.
func Entropy(history []st.HistoryEntry) float64 {
	if len(history) < 3 {
		return 0
	}

	changes := 0
	prev := modeOrAuto(history[0].Mode)
	for _, h := range history[1:] {
		cur := modeOrAuto(h.Mode)
		if cur != prev {
			changes++
		}
		prev = cur
	}

	var lengths []float64
	for _, h := range history {
		if h.Role == st.RoleUser {
			lengths = append(lengths, float64(utf8.RuneCountInString(h.Content)))
		}
	}
	spread := 0.0
	if len(lengths) > 0 {
		mean := stat.Mean(lengths, nil)
		spread = stat.PopVariance(lengths, nil) / (mean + 1)
	}

	e := float64(changes)/float64(len(history))*0.5 + min(1, spread/1000)*0.5
	return min(max(e, 0), 1)
}

func modeOrAuto(m st.Mode) st.Mode {
	if m == "" {
		return st.ModeAuto
	}
	return m
}
