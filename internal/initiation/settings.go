package initiation

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/keshon/himera/internal/auth"
	"github.com/keshon/himera/internal/config"
	"github.com/keshon/himera/internal/storage"
	"github.com/keshon/himera/pkg/util"
)

const (
	GroupA = "A"
	GroupB = "B"

	maxPauseHours = 24
	maxPauseDays  = 7
	pauseReason   = "user_pause"
)

var (
	ErrInvalidPause = errors.New("pause must look like 3h or 2d, at most 24h or 7d")
	ErrNotInGroup   = errors.New("proactive messages are not available for this user yet")
	ErrNotEnabled   = errors.New("proactive messages are not enabled")
)

var pauseRe = regexp.MustCompile(`^(\d+)(h|d)$`)

// ParsePause reads durations such as "3h" or "7d".
func ParsePause(s string) (time.Duration, error) {
	m := pauseRe.FindStringSubmatch(strings.ToLower(strings.TrimSpace(s)))
	if m == nil {
		return 0, ErrInvalidPause
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return 0, ErrInvalidPause
	}
	switch m[2] {
	case "h":
		if n > maxPauseHours {
			return 0, ErrInvalidPause
		}
		return time.Duration(n) * time.Hour, nil
	default:
		if n > maxPauseDays {
			return 0, ErrInvalidPause
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
}

// ABGroup splits users by id parity: even ids are in group A.
func ABGroup(userID int64) string {
	if userID%2 == 0 {
		return GroupA
	}
	return GroupB
}

// Settings are the user-facing switches for proactive messages. Every
// mutator is idempotent.
type Settings struct {
	store storage.Store
	auth  auth.Authorizer
	zones *Zones
	cfg   config.Proactivity
	now   Clock
	log   zerolog.Logger
}

func NewSettings(store storage.Store, authz auth.Authorizer, zones *Zones, cfg config.Proactivity, now Clock, log zerolog.Logger) *Settings {
	return &Settings{store: store, auth: authz, zones: zones, cfg: cfg, now: now, log: log.With().Str("component", "settings").Logger()}
}

// Enable opts the user in. Unauthorized users get auth.ErrUnauthorized and,
// while the A/B test runs, group B users get ErrNotInGroup.
func (s *Settings) Enable(ctx context.Context, userID int64) error {
	if !s.auth.IsAuthorized(ctx, userID) {
		return auth.ErrUnauthorized
	}
	group := GroupA
	if s.cfg.ABTestEnabled {
		group = ABGroup(userID)
		if group != GroupA {
			return ErrNotInGroup
		}
	}
	if err := s.store.EnableProactivity(ctx, userID, group, s.cfg.DefaultTimezone, s.now()); err != nil {
		return err
	}
	s.log.Info().Int64("user", userID).Msg("proactivity enabled")
	return nil
}

// Disable opts the user out and cancels pending initiations. It reports
// whether anything was enabled before.
func (s *Settings) Disable(ctx context.Context, userID int64) (bool, error) {
	set, err := s.store.GetSettings(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	cancelled, err := s.store.DisableProactivity(ctx, userID, s.now())
	if err != nil {
		return false, err
	}
	s.log.Info().Int64("user", userID).Int64("cancelled", cancelled).Msg("proactivity disabled")
	return set.Enabled, nil
}

// Pause silences the user until now+duration and cancels initiations due
// before then.
func (s *Settings) Pause(ctx context.Context, userID int64, duration string) (time.Time, error) {
	d, err := ParsePause(duration)
	if err != nil {
		return time.Time{}, err
	}
	set, err := s.store.GetSettings(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && !set.Enabled) {
		return time.Time{}, ErrNotEnabled
	}
	if err != nil {
		return time.Time{}, err
	}
	now := s.now()
	until := now.Add(d)
	cancelled, err := s.store.PauseProactivity(ctx, userID, until, pauseReason, now)
	if err != nil {
		return time.Time{}, err
	}
	s.log.Info().Int64("user", userID).Time("until", until).Int64("cancelled", cancelled).Msg("proactivity paused")
	return until, nil
}

type State string

const (
	StateOff    State = "off"
	StatePaused State = "paused"
	StateOn     State = "on"
)

type Status struct {
	State       State
	UsedToday   int
	MaxPerDay   int
	Next        *time.Time
	PausedUntil *time.Time
	Location    *time.Location
}

// Status reports the user's current proactivity state. Next is set only
// when the next initiation falls within 24 hours.
func (s *Settings) Status(ctx context.Context, userID int64) (Status, error) {
	st := Status{State: StateOff, MaxPerDay: s.cfg.MaxPerDay, Location: s.zones.Default()}
	set, err := s.store.GetSettings(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return st, nil
	}
	if err != nil {
		return st, err
	}
	st.Location = s.zones.Location(set.Timezone)
	if !set.Enabled {
		return st, nil
	}

	now := s.now()
	if set.Paused(now) {
		st.State = StatePaused
		st.PausedUntil = set.PausedUntil
		return st, nil
	}

	st.State = StateOn
	today := day(now)
	if st.UsedToday, err = s.store.CountScheduled(ctx, userID, today, today.Add(24*time.Hour)); err != nil {
		return st, err
	}
	next, ok, err := s.store.NextPending(ctx, userID, now)
	if err != nil {
		return st, err
	}
	if ok && next.Sub(now) <= 24*time.Hour {
		st.Next = &next
	}
	return st, nil
}

const stampLayout = "02.01 15:04"

func (s Status) String() string {
	var b strings.Builder
	switch s.State {
	case StateOff:
		b.WriteString("Proactive messages: off\nTurn on: /writeme")
	case StatePaused:
		fmt.Fprintf(&b, "Proactive messages: paused until %s\nResume early: /writeme\nTurn off: /dontwrite",
			s.PausedUntil.In(s.Location).Format(stampLayout))
	default:
		fmt.Fprintf(&b, "Proactive messages: on\nUsed today: %d of %d", s.UsedToday, s.MaxPerDay)
		if s.Next != nil {
			fmt.Fprintf(&b, "\nNext: %s (in %s)", s.Next.In(s.Location).Format(stampLayout), util.FormatDuration(time.Until(*s.Next)))
		}
		b.WriteString("\nPause: /writeme_pause 3h\nTurn off: /dontwrite")
	}
	return b.String()
}
