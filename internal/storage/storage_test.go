package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	st "github.com/keshon/himera/internal/storagetypes"
)

var t0 = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "himera.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestHistoryChronologicalAndTrim(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for i := 0; i < 5; i++ {
		_, err := s.AppendHistory(ctx, st.HistoryEntry{
			UserID:    7,
			Role:      st.RoleUser,
			Content:   string(rune('a' + i)),
			Emotion:   "joy",
			Mode:      st.ModeTalk,
			CreatedAt: t0.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	recent, err := s.RecentHistory(ctx, 7, 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "c", recent[0].Content)
	assert.Equal(t, "e", recent[2].Content)
	assert.Equal(t, st.ModeTalk, recent[2].Mode)

	last, ok, err := s.LastUserActivity(ctx, 7)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, t0.Add(4*time.Minute), last)

	_, ok, err = s.LastUserActivity(ctx, 8)
	require.NoError(t, err)
	assert.False(t, ok)

	deleted, err := s.TrimHistory(ctx, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 3, deleted)

	recent, err = s.RecentHistory(ctx, 7, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "d", recent[0].Content)
}

func TestAppendHistoryRejectsUnknownRole(t *testing.T) {
	s := newTestStore(t)
	_, err := s.AppendHistory(context.Background(), st.HistoryEntry{UserID: 1, Role: "robot", Content: "x"})
	assert.ErrorIs(t, err, st.ErrUnknownRole)
}

func TestSaveMemoryImportanceBounds(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for _, bad := range []int{0, 11, -3} {
		_, err := s.SaveMemory(ctx, st.Memory{UserID: 1, UserMessage: "q", BotResponse: "a", Importance: bad, Type: st.MemoryUserSaved})
		assert.ErrorIs(t, err, ErrInvalidImportance, "importance %d", bad)
	}

	id, err := s.SaveMemory(ctx, st.Memory{
		UserID:       1,
		UserMessage:  "tell me about the old bridge",
		BotResponse:  "the bridge remembers",
		Importance:   10,
		Type:         st.MemoryUserSaved,
		StyleMarkers: &st.StyleMarkers{MagicalRealism: true, Balkanisms: []string{"rakija"}},
		Tags:         []string{"emotion_joy"},
		CreatedAt:    t0,
	})
	require.NoError(t, err)

	got, err := s.MemoriesByIDs(ctx, []int64{id})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 10, got[0].Importance)
	require.NotNil(t, got[0].StyleMarkers)
	assert.True(t, got[0].StyleMarkers.MagicalRealism)
	assert.Equal(t, []string{"emotion_joy"}, got[0].Tags)
}

func TestRecentMemoriesOrdering(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	save := func(imp int, at time.Time, typ st.MemoryType) {
		_, err := s.SaveMemory(ctx, st.Memory{UserID: 1, UserMessage: "m", BotResponse: "r", Importance: imp, Type: typ, CreatedAt: at})
		require.NoError(t, err)
	}
	save(5, t0.Add(-time.Hour), st.MemoryAutoSaved)
	save(9, t0.Add(-2*time.Hour), st.MemoryUserSaved)
	save(5, t0.Add(-30*time.Minute), st.MemoryAutoSaved)
	save(8, t0.Add(-10*24*time.Hour), st.MemoryUserSaved)

	mems, err := s.RecentMemories(ctx, 1, t0.Add(-7*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, mems, 3)
	assert.Equal(t, 9, mems[0].Importance)
	assert.Equal(t, t0.Add(-30*time.Minute), mems[1].CreatedAt)

	n, err := s.CountMemoriesSince(ctx, 1, st.MemoryAutoSaved, t0.Add(-2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	stats, err := s.MemoryStats(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 2, stats.UserSaved)
	assert.Equal(t, 2, stats.AutoSaved)
	assert.InDelta(t, 6.75, stats.AvgImportance, 1e-9)

	require.NoError(t, s.TouchMemories(ctx, []int64{mems[0].ID}, t0))
	touched, err := s.MemoriesByIDs(ctx, []int64{mems[0].ID})
	require.NoError(t, err)
	assert.Equal(t, 1, touched[0].AccessCount)

	removed, err := s.DeleteMemoriesBefore(ctx, t0.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)
}

func TestProactivitySettingsLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.GetSettings(ctx, 4)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.EnableProactivity(ctx, 4, "A", "Europe/Amsterdam", t0))
	set, err := s.GetSettings(ctx, 4)
	require.NoError(t, err)
	assert.True(t, set.Enabled)
	assert.Equal(t, "Europe/Amsterdam", set.Timezone)

	early, err := s.InsertSchedule(ctx, st.ScheduleEntry{UserID: 4, ScheduledAt: t0.Add(2 * time.Hour), Type: st.InitiationInsight, CreatedAt: t0})
	require.NoError(t, err)
	late, err := s.InsertSchedule(ctx, st.ScheduleEntry{UserID: 4, ScheduledAt: t0.Add(30 * time.Hour), Type: st.InitiationInsight, CreatedAt: t0})
	require.NoError(t, err)

	cancelled, err := s.PauseProactivity(ctx, 4, t0.Add(24*time.Hour), "user request", t0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, cancelled)

	e, err := s.GetSchedule(ctx, early)
	require.NoError(t, err)
	assert.Equal(t, st.StatusCancelled, e.Status)
	e, err = s.GetSchedule(ctx, late)
	require.NoError(t, err)
	assert.Equal(t, st.StatusPending, e.Status)

	active, err := s.ActiveSettings(ctx, t0)
	require.NoError(t, err)
	assert.Empty(t, active)
	active, err = s.ActiveSettings(ctx, t0.Add(25*time.Hour))
	require.NoError(t, err)
	assert.Len(t, active, 1)

	// re-enabling clears the pause
	require.NoError(t, s.EnableProactivity(ctx, 4, "A", "UTC", t0))
	set, err = s.GetSettings(ctx, 4)
	require.NoError(t, err)
	assert.Nil(t, set.PausedUntil)
	assert.Equal(t, "Europe/Amsterdam", set.Timezone)

	cancelled, err = s.DisableProactivity(ctx, 4, t0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, cancelled)
	set, err = s.GetSettings(ctx, 4)
	require.NoError(t, err)
	assert.False(t, set.Enabled)

	_, err = s.PauseProactivity(ctx, 99, t0.Add(time.Hour), "", t0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMarkSentRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.InsertSchedule(ctx, st.ScheduleEntry{
		UserID:          3,
		ScheduledAt:     t0,
		Type:            st.InitiationContinuation,
		SourceMemoryIDs: []int64{11, 12},
		Context:         st.InitiationContext{MainTopic: "bridges", DaysAgo: 2},
		EmotionContext:  "joy",
		CreatedAt:       t0.Add(-time.Hour),
	})
	require.NoError(t, err)

	due, err := s.DuePending(ctx, t0, 50)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, []int64{11, 12}, due[0].SourceMemoryIDs)
	assert.Equal(t, "bridges", due[0].Context.MainTopic)

	entry, err := s.MarkSent(ctx, id, "hello again", t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, id, entry.InitiationID)

	_, err = s.MarkSent(ctx, id, "twice", t0.Add(2*time.Minute))
	assert.ErrorIs(t, err, ErrNotPending)
	assert.ErrorIs(t, s.MarkFailed(ctx, id, "late"), ErrNotPending)

	row, err := s.GetSchedule(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, st.StatusSent, row.Status)
	require.NotNil(t, row.SentAt)

	logs, err := s.LogsForUser(ctx, 3)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "hello again", logs[0].Content)

	hist, err := s.RecentHistory(ctx, 3, 10)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, st.ModeProactive, hist[0].Mode)
	assert.Equal(t, st.RoleAssistant, hist[0].Role)

	typ, ok, err := s.LastSentType(ctx, 3)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, st.InitiationContinuation, typ)
}

func TestRecordResponseOnce(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.InsertSchedule(ctx, st.ScheduleEntry{UserID: 5, ScheduledAt: t0, Type: st.InitiationSupportive, CreatedAt: t0})
	require.NoError(t, err)
	entry, err := s.MarkSent(ctx, id, "how are you holding up?", t0)
	require.NoError(t, err)

	got, ok, err := s.LatestUnresponded(ctx, 5, t0.Add(-24*time.Hour))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, entry.ID, got.ID)

	ignored, err := s.CountIgnored(ctx, 5, t0.Add(-7*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, ignored)

	upd := st.ResponseUpdate{Text: "better now", Emotion: "joy", Sentiment: 0.62, Length: 10, Minutes: 12}
	require.NoError(t, s.RecordResponse(ctx, got, upd))
	assert.ErrorIs(t, s.RecordResponse(ctx, got, upd), ErrNotPending)

	_, ok, err = s.LatestUnresponded(ctx, 5, t0.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.False(t, ok)

	row, err := s.GetSchedule(ctx, id)
	require.NoError(t, err)
	assert.True(t, row.ResponseReceived)

	avg, ok, err := s.AvgResponseLength(ctx, 5, t0.Add(-7*24*time.Hour))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 10.0, avg)

	m, err := s.Metrics(ctx, t0.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, m.Total)
	assert.Equal(t, 1, m.Responded)
	assert.Equal(t, 1.0, m.ResponseRate)
	assert.InDelta(t, 0.62, m.AvgSentiment, 1e-9)
	assert.Equal(t, 12.0, m.AvgResponseMins)
}

func TestCountScheduledAndMaintenance(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	for _, h := range []int{1, 5, 30} {
		_, err := s.InsertSchedule(ctx, st.ScheduleEntry{UserID: 2, ScheduledAt: day.Add(time.Duration(h) * time.Hour), Type: st.InitiationInsight, CreatedAt: day})
		require.NoError(t, err)
	}

	n, err := s.CountScheduled(ctx, 2, day, day.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	next, ok, err := s.NextPending(ctx, 2, day.Add(2*time.Hour))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, day.Add(5*time.Hour), next)

	last, ok, err := s.LastInitiationTime(ctx, 2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, day.Add(30*time.Hour), last)

	stale, err := s.CancelStalePending(ctx, day.Add(4*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, stale)

	n, err = s.CountScheduled(ctx, 2, day, day.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
