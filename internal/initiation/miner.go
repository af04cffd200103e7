package initiation

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/keshon/himera/internal/config"
	"github.com/keshon/himera/internal/emotion"
	"github.com/keshon/himera/internal/storage"
	st "github.com/keshon/himera/internal/storagetypes"
)

const (
	memoryWindow      = 7 * 24 * time.Hour
	historyWindow     = 50
	continuationScan  = 10
	insightCap        = 3
	supportiveSources = 2
	trajectoryWindow  = 10
	insightMinDayGap  = 2
	freshMemoryDays   = 3
)

// Candidate is one possible initiation for a user. It lives only for the
// duration of a scheduling pass.
type Candidate struct {
	UserID         int64
	Type           st.InitiationType
	Priority       float64
	Quality        float64
	Sources        []st.Memory
	Context        st.InitiationContext
	EmotionContext string
}

type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendDeclining Trend = "declining"
)

type Trajectory struct {
	Current      string
	Trend        Trend
	NeedsSupport bool
}

var (
	openEndedPhrases = []string{
		"what do you think", "what if", "maybe", "i wonder", "curious",
		"как думаешь", "что если", "может быть", "интересно",
	}
	forwardPhrases = []string{
		"let's continue", "we'll come back to this", "let's think about it",
		"продолжим", "вернемся к этому", "подумаем об этом",
	}
	supportTags = []string{
		"support", "comfort", "inspiration",
		"поддержка", "утешение", "вдохновение",
	}
)

// Miner turns a user's recent memories and emotions into candidates.
type Miner struct {
	store storage.Store
	cfg   config.Proactivity
	rng   *Rand
	now   Clock
	log   zerolog.Logger
}

func NewMiner(store storage.Store, cfg config.Proactivity, rng *Rand, now Clock, log zerolog.Logger) *Miner {
	return &Miner{store: store, cfg: cfg, rng: rng, now: now, log: log.With().Str("component", "miner").Logger()}
}

// Analyze returns the quality-passing candidates for userID. Each strategy
// runs only with the probability of its weight, so equal data can yield
// different candidate sets from pass to pass.
func (m *Miner) Analyze(ctx context.Context, userID int64) ([]Candidate, error) {
	now := m.now()
	memories, err := m.store.RecentMemories(ctx, userID, now.Add(-memoryWindow))
	if err != nil {
		return nil, fmt.Errorf("recent memories: %w", err)
	}
	history, err := m.store.RecentHistory(ctx, userID, historyWindow)
	if err != nil {
		return nil, fmt.Errorf("recent history: %w", err)
	}
	traj := AnalyzeTrajectory(history)

	var out []Candidate
	if m.rng.Float64() < m.cfg.WeightContinuation {
		out = append(out, m.continuation(userID, memories, now)...)
	}
	if m.rng.Float64() < m.cfg.WeightInsight {
		out = append(out, m.insight(userID, memories)...)
	}
	if m.rng.Float64() < m.cfg.WeightSupportive {
		out = append(out, supportive(userID, memories, traj)...)
	}

	kept := out[:0]
	for _, c := range out {
		if c.Quality >= m.cfg.MinQuality {
			c.EmotionContext = traj.Current
			kept = append(kept, c)
		}
	}
	m.log.Debug().Int64("user", userID).Int("memories", len(memories)).Int("candidates", len(kept)).Msg("opportunities analysed")
	return kept, nil
}

func (m *Miner) continuation(userID int64, memories []st.Memory, now time.Time) []Candidate {
	var out []Candidate
	for _, mem := range memories[:min(continuationScan, len(memories))] {
		user := strings.ToLower(mem.UserMessage)
		bot := strings.ToLower(mem.BotResponse)
		if !strings.Contains(user, "?") && !containsAny(user, openEndedPhrases) && !containsAny(bot, forwardPhrases) {
			continue
		}

		days := daysBetween(mem.CreatedAt, now)
		q := ContinuationQuality(mem, days)
		if q < m.cfg.MinQuality {
			continue
		}
		out = append(out, Candidate{
			UserID:   userID,
			Type:     st.InitiationContinuation,
			Priority: q,
			Quality:  q,
			Sources:  []st.Memory{mem},
			Context: st.InitiationContext{
				MainTopic:    MainTopic(mem.UserMessage),
				LastQuestion: mem.UserMessage,
				DaysAgo:      days,
			},
		})
	}
	return out
}

// ContinuationQuality scores a memory as a conversation to pick up again:
// importance over ten, damped when older than three days, boosted when the
// memory was saved automatically.
func ContinuationQuality(mem st.Memory, daysAgo int) float64 {
	q := float64(mem.Importance) / 10
	if daysAgo > freshMemoryDays {
		q *= 0.7
	}
	if mem.Type == st.MemoryAutoSaved {
		q *= 1.2
	}
	return min(1, q)
}

func (m *Miner) insight(userID int64, memories []st.Memory) []Candidate {
	byDay := make(map[time.Time][]st.Memory)
	for _, mem := range memories {
		d := day(mem.CreatedAt)
		byDay[d] = append(byDay[d], mem)
	}
	days := make([]time.Time, 0, len(byDay))
	for d := range byDay {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	var out []Candidate
	for i := range days {
		for j := i + 1; j < len(days); j++ {
			gap := daysBetween(days[i], days[j])
			if gap < insightMinDayGap {
				continue
			}
			for _, a := range byDay[days[i]] {
				for _, b := range byDay[days[j]] {
					ta := a.UserMessage + " " + a.BotResponse
					tb := b.UserMessage + " " + b.BotResponse
					sim := Similarity(ta, tb)
					if sim <= m.cfg.SimilarityThreshold {
						continue
					}
					out = append(out, Candidate{
						UserID:   userID,
						Type:     st.InitiationInsight,
						Priority: sim,
						Quality:  sim * 0.9,
						Sources:  []st.Memory{a, b},
						Context: st.InitiationContext{
							ConnectionType: "temporal",
							DaysBetween:    gap,
							SharedConcepts: SharedConcepts(ta, tb),
						},
					})
					if len(out) == insightCap {
						return out
					}
				}
			}
		}
	}
	return out
}

func supportive(userID int64, memories []st.Memory, traj Trajectory) []Candidate {
	if !traj.NeedsSupport {
		return nil
	}
	var relevant []st.Memory
	for _, mem := range memories {
		for _, tag := range mem.Tags {
			if tag == traj.Current || containsExact(supportTags, tag) {
				relevant = append(relevant, mem)
				break
			}
		}
	}
	if len(relevant) == 0 && traj.Trend != TrendDeclining {
		return nil
	}

	q := 0.8
	if traj.Trend == TrendDeclining {
		q = 0.9
	}
	support := "encouraging"
	if traj.Current == emotion.Sadness || traj.Current == emotion.Fear {
		support = "empathetic"
	}
	return []Candidate{{
		UserID:   userID,
		Type:     st.InitiationSupportive,
		Priority: q,
		Quality:  q,
		Sources:  relevant[:min(supportiveSources, len(relevant))],
		Context: st.InitiationContext{
			Emotion:      traj.Current,
			EmotionTrend: string(traj.Trend),
			SupportType:  support,
		},
	}}
}

// AnalyzeTrajectory reads the emotion labels of user turns in chronological
// history. The current emotion is the most recent label; the trend looks at
// the last ten labelled turns.
func AnalyzeTrajectory(history []st.HistoryEntry) Trajectory {
	var labels []string
	for _, h := range history {
		if h.Role == st.RoleUser && h.Emotion != "" {
			labels = append(labels, h.Emotion)
		}
	}
	if len(labels) == 0 {
		return Trajectory{Current: emotion.Neutral, Trend: TrendStable}
	}

	recent := labels[max(0, len(labels)-trajectoryWindow):]
	neg, pos := 0, 0
	for _, l := range recent {
		switch {
		case emotion.IsNegative(l):
			neg++
		case emotion.IsPositive(l):
			pos++
		}
	}

	t := Trajectory{Current: labels[len(labels)-1]}
	switch {
	case neg > pos*2:
		t.Trend, t.NeedsSupport = TrendDeclining, true
	case pos > neg*2:
		t.Trend = TrendImproving
	default:
		t.Trend, t.NeedsSupport = TrendStable, neg >= 3
	}
	return t
}

func containsExact(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// day truncates t to its UTC calendar day.
func day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// daysBetween counts whole days from a to b.
func daysBetween(a, b time.Time) int {
	return int(b.Sub(a) / (24 * time.Hour))
}
