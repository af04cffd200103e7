// /internal/storage/storage.go
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	st "github.com/keshon/himera/internal/storagetypes"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidImportance = errors.New("importance score must be within 1..10")
	ErrNotPending        = errors.New("initiation is no longer pending")
)

// Store is the memory store the engine consumes: conversational history,
// long-term memories, proactivity settings, initiation schedule and logs.
type Store interface {
	// History
	AppendHistory(ctx context.Context, e st.HistoryEntry) (int64, error)
	RecentHistory(ctx context.Context, userID int64, limit int) ([]st.HistoryEntry, error)
	LastUserActivity(ctx context.Context, userID int64) (time.Time, bool, error)
	RecentUserEmotions(ctx context.Context, userID int64, since time.Time, limit int) ([]string, error)
	UserMessageTimes(ctx context.Context, userID int64, since time.Time) ([]time.Time, error)

	// Long-term memory
	SaveMemory(ctx context.Context, m st.Memory) (int64, error)
	RecentMemories(ctx context.Context, userID int64, since time.Time) ([]st.Memory, error)
	LatestMemories(ctx context.Context, userID int64, limit int) ([]st.Memory, error)
	MemoriesByIDs(ctx context.Context, ids []int64) ([]st.Memory, error)
	TouchMemories(ctx context.Context, ids []int64, at time.Time) error
	CountMemoriesSince(ctx context.Context, userID int64, typ st.MemoryType, since time.Time) (int, error)
	MemoryStats(ctx context.Context, userID int64) (st.MemoryStats, error)

	// Proactivity settings
	GetSettings(ctx context.Context, userID int64) (st.ProactivitySettings, error)
	EnableProactivity(ctx context.Context, userID int64, abGroup, timezone string, now time.Time) error
	DisableProactivity(ctx context.Context, userID int64, now time.Time) (int64, error)
	PauseProactivity(ctx context.Context, userID int64, until time.Time, reason string, now time.Time) (int64, error)
	ActiveSettings(ctx context.Context, now time.Time) ([]st.ProactivitySettings, error)

	// Initiation schedule
	InsertSchedule(ctx context.Context, e st.ScheduleEntry) (int64, error)
	GetSchedule(ctx context.Context, id int64) (st.ScheduleEntry, error)
	CountScheduled(ctx context.Context, userID int64, from, to time.Time) (int, error)
	LastInitiationTime(ctx context.Context, userID int64) (time.Time, bool, error)
	LastSentType(ctx context.Context, userID int64) (st.InitiationType, bool, error)
	DuePending(ctx context.Context, now time.Time, limit int) ([]st.ScheduleEntry, error)
	NextPending(ctx context.Context, userID int64, after time.Time) (time.Time, bool, error)
	MarkSent(ctx context.Context, id int64, message string, now time.Time) (st.LogEntry, error)
	MarkFailed(ctx context.Context, id int64, reason string) error

	// Initiation logs
	LatestUnresponded(ctx context.Context, userID int64, since time.Time) (st.LogEntry, bool, error)
	RecordResponse(ctx context.Context, entry st.LogEntry, upd st.ResponseUpdate) error
	CountIgnored(ctx context.Context, userID int64, since time.Time) (int, error)
	AvgResponseLength(ctx context.Context, userID int64, since time.Time) (float64, bool, error)
	LogsForUser(ctx context.Context, userID int64) ([]st.LogEntry, error)
	Metrics(ctx context.Context, since time.Time) (st.InitiationMetrics, error)

	// Maintenance
	CancelStalePending(ctx context.Context, before time.Time) (int64, error)
	DeleteLogsBefore(ctx context.Context, before time.Time) (int64, error)
	DeleteMemoriesBefore(ctx context.Context, before time.Time) (int64, error)
	TrimHistory(ctx context.Context, keep int) (int64, error)

	Close() error
}

// SQLiteStore implements Store on an embedded SQLite database.
type SQLiteStore struct {
	// serialises writers, sqlite allows one at a time
	mu sync.Mutex
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS history (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id            INTEGER NOT NULL,
	role               TEXT    NOT NULL,
	content            TEXT    NOT NULL,
	emotion_primary    TEXT,
	emotion_confidence REAL,
	bot_mode           TEXT    NOT NULL DEFAULT 'auto',
	created_at         INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_history_user_time ON history(user_id, created_at);

CREATE TABLE IF NOT EXISTS long_term_memory (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id          INTEGER NOT NULL,
	user_message     TEXT    NOT NULL,
	bot_response     TEXT    NOT NULL,
	importance_score INTEGER NOT NULL CHECK (importance_score BETWEEN 1 AND 10),
	memory_type      TEXT    NOT NULL,
	style_markers    TEXT,
	contextual_tags  TEXT    NOT NULL DEFAULT '[]',
	created_at       INTEGER NOT NULL,
	access_count     INTEGER NOT NULL DEFAULT 0,
	last_accessed    INTEGER
);
CREATE INDEX IF NOT EXISTS idx_ltm_user_time ON long_term_memory(user_id, created_at);

CREATE TABLE IF NOT EXISTS user_proactivity_settings (
	user_id       INTEGER PRIMARY KEY,
	is_enabled    INTEGER NOT NULL DEFAULT 0,
	enabled_at    INTEGER,
	paused_until  INTEGER,
	pause_reason  TEXT,
	ab_test_group TEXT    NOT NULL DEFAULT 'A',
	timezone      TEXT    NOT NULL,
	updated_at    INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS initiation_schedule (
	id                     INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id                INTEGER NOT NULL,
	scheduled_at           INTEGER NOT NULL,
	initiation_type        TEXT    NOT NULL,
	source_memory_ids      TEXT    NOT NULL DEFAULT '[]',
	context_data           TEXT    NOT NULL DEFAULT '{}',
	emotion_context        TEXT,
	status                 TEXT    NOT NULL DEFAULT 'pending',
	sent_at                INTEGER,
	error_message          TEXT,
	user_response_received INTEGER NOT NULL DEFAULT 0,
	created_at             INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_schedule_status_time ON initiation_schedule(status, scheduled_at);
CREATE INDEX IF NOT EXISTS idx_schedule_user_time ON initiation_schedule(user_id, scheduled_at);

CREATE TABLE IF NOT EXISTS initiation_logs (
	id                      INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id                 INTEGER NOT NULL,
	initiation_id           INTEGER REFERENCES initiation_schedule(id) ON DELETE SET NULL,
	message_content         TEXT    NOT NULL,
	initiation_type         TEXT    NOT NULL,
	created_at              INTEGER NOT NULL,
	user_responded          INTEGER NOT NULL DEFAULT 0,
	user_response           TEXT,
	user_response_emotion   TEXT,
	user_response_sentiment REAL,
	user_response_length    INTEGER NOT NULL DEFAULT 0,
	response_time_minutes   INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_logs_user_time ON initiation_logs(user_id, created_at);
`

// New opens (or creates) the database file at path.
func New(path string) (*SQLiteStore, error) {
	dsn := path
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + path
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	dsn += sep + "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	return NewWithDSN(dsn)
}

// NewWithDSN opens a store with a raw driver DSN.
func NewWithDSN(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// withTx runs fn in a write transaction.
func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *SQLiteStore) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.ExecContext(ctx, query, args...)
}

// =============================================================================
// Helpers
// =============================================================================

func unix(t time.Time) int64 { return t.UTC().Unix() }

func fromUnix(v int64) time.Time { return time.Unix(v, 0).UTC() }

func timePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromUnix(v.Int64)
	return &t
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func marshalJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}
	return string(b), nil
}

// placeholders returns "?,?,?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
