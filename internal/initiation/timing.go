package initiation

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
)

const (
	activityWindow = 30 * 24 * time.Hour
	jitterMinutes  = 90
)

// Zones resolves IANA names to locations, remembering recent lookups.
type Zones struct {
	cache    *lru.Cache[string, *time.Location]
	fallback *time.Location
	log      zerolog.Logger
}

// NewZones falls back to def (or UTC if def cannot be loaded) for unknown names.
func NewZones(def string, size int, log zerolog.Logger) *Zones {
	c, err := lru.New[string, *time.Location](max(1, size))
	if err != nil {
		panic(err)
	}
	fallback, err := time.LoadLocation(def)
	if err != nil {
		log.Warn().Err(err).Str("tz", def).Msg("default timezone unavailable, using UTC")
		fallback = time.UTC
	}
	return &Zones{cache: c, fallback: fallback, log: log}
}

func (z *Zones) Location(name string) *time.Location {
	if name == "" {
		return z.fallback
	}
	if loc, ok := z.cache.Get(name); ok {
		return loc
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		z.log.Warn().Err(err).Str("tz", name).Msg("unknown timezone")
		loc = z.fallback
	}
	z.cache.Add(name, loc)
	return loc
}

func (z *Zones) Default() *time.Location { return z.fallback }

// OptimalTime picks the next send instant for userID. The hour is drawn from
// the user's message activity over the last 30 days inside the active-hours
// window, or uniformly from a narrowed window when there is none; a random
// minute and up to 90 minutes of jitter follow. An instant not after now
// moves to the next day. The result is UTC.
func (s *Scheduler) OptimalTime(ctx context.Context, userID int64, tz string) time.Time {
	loc := s.zones.Location(tz)
	now := s.now().In(loc)

	hour, ok := s.activeHour(ctx, userID, loc)
	if !ok {
		hour = s.rng.IntRange(s.cfg.ActiveHoursStart+2, s.cfg.ActiveHoursEnd-2)
	}
	minute := s.rng.IntRange(0, 59)
	jitter := s.rng.IntRange(-jitterMinutes, jitterMinutes)

	target := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, loc)
	target = target.Add(time.Duration(jitter) * time.Minute)
	if !target.After(now) {
		target = target.AddDate(0, 0, 1)
	}
	return target.UTC()
}

// activeHour draws an hour weighted by message counts. Hours outside the
// active window weigh nothing.
func (s *Scheduler) activeHour(ctx context.Context, userID int64, loc *time.Location) (int, bool) {
	times, err := s.store.UserMessageTimes(ctx, userID, s.now().Add(-activityWindow))
	if err != nil {
		s.log.Warn().Err(err).Int64("user", userID).Msg("activity hours unavailable")
		return 0, false
	}
	if len(times) == 0 {
		return 0, false
	}
	weights := HourWeights(times, loc, s.cfg.ActiveHoursStart, s.cfg.ActiveHoursEnd)
	return s.rng.Weighted(weights[:])
}

// HourWeights is the share of messages per local hour, zeroed outside [start, end).
func HourWeights(times []time.Time, loc *time.Location, start, end int) [24]float64 {
	var w [24]float64
	if len(times) == 0 {
		return w
	}
	for _, t := range times {
		w[t.In(loc).Hour()]++
	}
	for h := range w {
		if h < start || h >= end {
			w[h] = 0
			continue
		}
		w[h] /= float64(len(times))
	}
	return w
}
