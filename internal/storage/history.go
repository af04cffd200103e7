package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	st "github.com/keshon/himera/internal/storagetypes"
)

const historyColumns = `id, user_id, role, content, emotion_primary, emotion_confidence, bot_mode, created_at`

func (s *SQLiteStore) AppendHistory(ctx context.Context, e st.HistoryEntry) (int64, error) {
	if !e.Role.Valid() {
		return 0, fmt.Errorf("append history: %w", st.ErrUnknownRole)
	}
	if e.Mode == "" {
		e.Mode = st.ModeAuto
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	res, err := s.exec(ctx, `
		INSERT INTO history (user_id, role, content, emotion_primary, emotion_confidence, bot_mode, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.UserID, string(e.Role), e.Content, nullString(e.Emotion), nullFloat(e.Confidence), string(e.Mode), unix(e.CreatedAt))
	if err != nil {
		return 0, fmt.Errorf("append history: %w", err)
	}
	return res.LastInsertId()
}

// RecentHistory returns the newest limit entries in chronological order.
func (s *SQLiteStore) RecentHistory(ctx context.Context, userID int64, limit int) ([]st.HistoryEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+historyColumns+` FROM (
			SELECT `+historyColumns+` FROM history
			WHERE user_id = ?
			ORDER BY created_at DESC, id DESC
			LIMIT ?
		) ORDER BY created_at ASC, id ASC`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent history: %w", err)
	}
	defer rows.Close()

	var out []st.HistoryEntry
	for rows.Next() {
		e, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) LastUserActivity(ctx context.Context, userID int64) (time.Time, bool, error) {
	var last sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(created_at) FROM history WHERE user_id = ? AND role = 'user'`, userID).Scan(&last)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("last user activity: %w", err)
	}
	if !last.Valid {
		return time.Time{}, false, nil
	}
	return fromUnix(last.Int64), true, nil
}

// RecentUserEmotions returns emotion labels of the user's own turns since the
// given instant, newest first.
func (s *SQLiteStore) RecentUserEmotions(ctx context.Context, userID int64, since time.Time, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT emotion_primary FROM history
		WHERE user_id = ? AND role = 'user' AND created_at > ? AND emotion_primary IS NOT NULL
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, userID, unix(since), limit)
	if err != nil {
		return nil, fmt.Errorf("recent emotions: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var e string
		if err := rows.Scan(&e); err != nil {
			return nil, fmt.Errorf("scan emotion: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UserMessageTimes(ctx context.Context, userID int64, since time.Time) ([]time.Time, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT created_at FROM history
		WHERE user_id = ? AND role = 'user' AND created_at > ?`, userID, unix(since))
	if err != nil {
		return nil, fmt.Errorf("user message times: %w", err)
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var ts int64
		if err := rows.Scan(&ts); err != nil {
			return nil, fmt.Errorf("scan time: %w", err)
		}
		out = append(out, fromUnix(ts))
	}
	return out, rows.Err()
}

// TrimHistory keeps only the newest keep rows per user.
func (s *SQLiteStore) TrimHistory(ctx context.Context, keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}
	res, err := s.exec(ctx, `
		DELETE FROM history WHERE id IN (
			SELECT id FROM (
				SELECT id, ROW_NUMBER() OVER (PARTITION BY user_id ORDER BY created_at DESC, id DESC) AS rn
				FROM history
			) WHERE rn > ?
		)`, keep)
	if err != nil {
		return 0, fmt.Errorf("trim history: %w", err)
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanHistory(r scanner) (st.HistoryEntry, error) {
	var (
		e          st.HistoryEntry
		role, mode string
		emotion    sql.NullString
		confidence sql.NullFloat64
		created    int64
	)
	if err := r.Scan(&e.ID, &e.UserID, &role, &e.Content, &emotion, &confidence, &mode, &created); err != nil {
		return e, fmt.Errorf("scan history: %w", err)
	}
	e.Role = st.Role(role)
	e.Mode = st.Mode(mode)
	e.Emotion = emotion.String
	e.Confidence = floatPtr(confidence)
	e.CreatedAt = fromUnix(created)
	return e, nil
}
