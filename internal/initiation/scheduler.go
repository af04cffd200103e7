package initiation

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/keshon/himera/internal/auth"
	"github.com/keshon/himera/internal/config"
	"github.com/keshon/himera/internal/emotion"
	"github.com/keshon/himera/internal/storage"
	st "github.com/keshon/himera/internal/storagetypes"
	"github.com/keshon/himera/pkg/util"
)

// Reason explains why a user is not eligible this pass.
type Reason string

const (
	ReasonNone     Reason = ""
	ReasonDailyCap Reason = "daily limit reached"
	ReasonInactive Reason = "inactive"
	ReasonSilence  Reason = "silence mode"
	ReasonCoolDown Reason = "too soon after last initiation"
)

const (
	silenceWindow   = 7 * 24 * time.Hour
	stressWindow    = 24 * time.Hour
	stressSample    = 5
	stressThreshold = 3
	diversityBoost  = 1.2
	freshnessBoost  = 1.1
)

type Scheduler struct {
	store storage.Store
	miner *Miner
	auth  auth.Authorizer
	zones *Zones
	cfg   config.Proactivity
	rng   *Rand
	now   Clock
	log   zerolog.Logger
}

func NewScheduler(store storage.Store, miner *Miner, authz auth.Authorizer, zones *Zones, cfg config.Proactivity, rng *Rand, now Clock, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		store: store,
		miner: miner,
		auth:  authz,
		zones: zones,
		cfg:   cfg,
		rng:   rng,
		now:   now,
		log:   log.With().Str("component", "scheduler").Logger(),
	}
}

// Eligible checks, in order, the daily cap, recent activity, silence mode and
// the cool-down since the last initiation. The checks read and decide without
// a transaction; two overlapping passes may schedule one extra initiation.
func (s *Scheduler) Eligible(ctx context.Context, userID int64) (bool, Reason, error) {
	now := s.now()
	today := day(now)

	count, err := s.store.CountScheduled(ctx, userID, today, today.Add(24*time.Hour))
	if err != nil {
		return false, "", fmt.Errorf("count today: %w", err)
	}
	if count >= s.cfg.MaxPerDay {
		return false, ReasonDailyCap, nil
	}

	last, ok, err := s.store.LastUserActivity(ctx, userID)
	if err != nil {
		return false, "", fmt.Errorf("last activity: %w", err)
	}
	if !ok || daysBetween(last, now) > s.cfg.SilenceInactivityDays {
		return false, ReasonInactive, nil
	}

	silent, err := s.InSilence(ctx, userID)
	if err != nil {
		return false, "", err
	}
	if silent {
		return false, ReasonSilence, nil
	}

	lastInit, ok, err := s.store.LastInitiationTime(ctx, userID)
	if err != nil {
		return false, "", fmt.Errorf("last initiation: %w", err)
	}
	if ok && now.Sub(lastInit).Hours() < s.cfg.MinIntervalHours {
		return false, ReasonCoolDown, nil
	}
	return true, ReasonNone, nil
}

// InSilence reports whether the user has been ignoring initiations, answering
// them tersely, or sounds stressed in the last day.
func (s *Scheduler) InSilence(ctx context.Context, userID int64) (bool, error) {
	now := s.now()
	since := now.Add(-silenceWindow)

	ignored, err := s.store.CountIgnored(ctx, userID, since)
	if err != nil {
		return false, fmt.Errorf("count ignored: %w", err)
	}
	if ignored >= s.cfg.SilenceAfterIgnored {
		return true, nil
	}

	avg, ok, err := s.store.AvgResponseLength(ctx, userID, since)
	if err != nil {
		return false, fmt.Errorf("avg response length: %w", err)
	}
	if ok && avg > 0 && avg < float64(s.cfg.SilenceMinResponseLength) {
		return true, nil
	}

	labels, err := s.store.RecentUserEmotions(ctx, userID, now.Add(-stressWindow), stressSample)
	if err != nil {
		return false, fmt.Errorf("recent emotions: %w", err)
	}
	stress := 0
	for _, l := range labels {
		if emotion.IsStress(l) {
			stress++
		}
	}
	return stress >= stressThreshold, nil
}

// Select scores candidates by quality times priority, boosting a change of
// type from the last sent initiation and fresh source memories.
func (s *Scheduler) Select(ctx context.Context, userID int64, cands []Candidate) (Candidate, bool) {
	if len(cands) == 0 {
		return Candidate{}, false
	}
	lastType, hasLast, err := s.store.LastSentType(ctx, userID)
	if err != nil {
		s.log.Warn().Err(err).Int64("user", userID).Msg("last sent type unavailable")
		hasLast = false
	}
	now := s.now()

	best, bestScore := 0, -1.0
	for i, c := range cands {
		score := c.Quality * c.Priority
		if hasLast && lastType != c.Type {
			score *= diversityBoost
		}
		if len(c.Sources) > 0 {
			total := 0
			for _, m := range c.Sources {
				total += daysBetween(m.CreatedAt, now)
			}
			if float64(total)/float64(len(c.Sources)) <= freshMemoryDays {
				score *= freshnessBoost
			}
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	return cands[best], true
}

// ScheduleUser runs one pass for a single user. ok is false when the user is
// not eligible or nothing worth sending was found.
func (s *Scheduler) ScheduleUser(ctx context.Context, set st.ProactivitySettings) (st.ScheduleEntry, bool, error) {
	userID := set.UserID
	ok, reason, err := s.Eligible(ctx, userID)
	if err != nil {
		return st.ScheduleEntry{}, false, err
	}
	if !ok {
		s.log.Debug().Int64("user", userID).Str("reason", string(reason)).Msg("not eligible")
		return st.ScheduleEntry{}, false, nil
	}

	cands, err := s.miner.Analyze(ctx, userID)
	if err != nil {
		return st.ScheduleEntry{}, false, err
	}
	best, ok := s.Select(ctx, userID, cands)
	if !ok {
		return st.ScheduleEntry{}, false, nil
	}

	ids := make([]int64, 0, len(best.Sources))
	for _, m := range best.Sources {
		ids = append(ids, m.ID)
	}
	entry := st.ScheduleEntry{
		UserID:          userID,
		ScheduledAt:     s.OptimalTime(ctx, userID, set.Timezone),
		Type:            best.Type,
		SourceMemoryIDs: ids,
		Context:         best.Context,
		EmotionContext:  best.EmotionContext,
		Status:          st.StatusPending,
		CreatedAt:       s.now(),
	}
	id, err := s.store.InsertSchedule(ctx, entry)
	if err != nil {
		return st.ScheduleEntry{}, false, fmt.Errorf("insert schedule: %w", err)
	}
	entry.ID = id
	s.log.Info().Str("action", "schedule").Int64("user", userID).Int64("id", id).
		Str("type", string(entry.Type)).Time("at", entry.ScheduledAt).Msg("initiation scheduled")
	return entry, true, nil
}

type SweepReport struct {
	RunID     string
	Users     int
	Scheduled int
	Failed    int
}

// ScheduleSweep schedules for every enabled, unpaused, authorized user in
// test group A. One user's failure does not stop the others.
func (s *Scheduler) ScheduleSweep(ctx context.Context) (SweepReport, error) {
	rep := SweepReport{RunID: uuid.NewString()}
	log := s.log.With().Str("run", rep.RunID).Logger()

	settings, err := s.store.ActiveSettings(ctx, s.now())
	if err != nil {
		return rep, fmt.Errorf("active settings: %w", err)
	}
	var users []st.ProactivitySettings
	for _, set := range settings {
		if s.cfg.ABTestEnabled && set.ABGroup != GroupA {
			continue
		}
		if !s.auth.IsAuthorized(ctx, set.UserID) {
			continue
		}
		users = append(users, set)
	}
	rep.Users = len(users)

	var scheduled, failed atomic.Int64
	err = util.Parallel(ctx, users, s.cfg.SweepWorkers, func(ctx context.Context, set st.ProactivitySettings) error {
		_, ok, err := s.ScheduleUser(ctx, set)
		if err != nil {
			failed.Add(1)
			log.Error().Err(err).Int64("user", set.UserID).Msg("scheduling failed")
			return nil
		}
		if ok {
			scheduled.Add(1)
		}
		return nil
	})
	rep.Scheduled, rep.Failed = int(scheduled.Load()), int(failed.Load())
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return rep, err
	}
	log.Info().Int("users", rep.Users).Int("scheduled", rep.Scheduled).Int("failed", rep.Failed).Msg("schedule sweep done")
	return rep, err
}
