package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	st "github.com/keshon/himera/internal/storagetypes"
)

const scheduleColumns = `id, user_id, scheduled_at, initiation_type, source_memory_ids, context_data,
	emotion_context, status, sent_at, error_message, user_response_received, created_at`

const logColumns = `id, user_id, initiation_id, message_content, initiation_type, created_at, user_responded,
	user_response, user_response_emotion, user_response_sentiment, user_response_length, response_time_minutes`

// =============================================================================
// Schedule
// =============================================================================

func (s *SQLiteStore) InsertSchedule(ctx context.Context, e st.ScheduleEntry) (int64, error) {
	if !e.Type.Valid() {
		return 0, fmt.Errorf("insert schedule: %w", st.ErrUnknownInitiationType)
	}
	if e.Status == "" {
		e.Status = st.StatusPending
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	if e.SourceMemoryIDs == nil {
		e.SourceMemoryIDs = []int64{}
	}
	ids, err := marshalJSON(e.SourceMemoryIDs)
	if err != nil {
		return 0, fmt.Errorf("insert schedule: %w", err)
	}
	ctxData, err := marshalJSON(e.Context)
	if err != nil {
		return 0, fmt.Errorf("insert schedule: %w", err)
	}

	res, err := s.exec(ctx, `
		INSERT INTO initiation_schedule (user_id, scheduled_at, initiation_type, source_memory_ids, context_data,
			emotion_context, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.UserID, unix(e.ScheduledAt), string(e.Type), ids, ctxData, nullString(e.EmotionContext), string(e.Status), unix(e.CreatedAt))
	if err != nil {
		return 0, fmt.Errorf("insert schedule: %w", err)
	}
	return res.LastInsertId()
}

func (s *SQLiteStore) GetSchedule(ctx context.Context, id int64) (st.ScheduleEntry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+scheduleColumns+` FROM initiation_schedule WHERE id = ?`, id)
	e, err := scanSchedule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return e, ErrNotFound
	}
	if err != nil {
		return e, fmt.Errorf("get schedule: %w", err)
	}
	return e, nil
}

// CountScheduled counts pending and sent rows scheduled within [from, to).
func (s *SQLiteStore) CountScheduled(ctx context.Context, userID int64, from, to time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM initiation_schedule
		WHERE user_id = ? AND status IN ('pending', 'sent') AND scheduled_at >= ? AND scheduled_at < ?`,
		userID, unix(from), unix(to)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count scheduled: %w", err)
	}
	return n, nil
}

// LastInitiationTime is the latest scheduled_at among pending and sent rows.
func (s *SQLiteStore) LastInitiationTime(ctx context.Context, userID int64) (time.Time, bool, error) {
	var last sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(scheduled_at) FROM initiation_schedule
		WHERE user_id = ? AND status IN ('pending', 'sent')`, userID).Scan(&last)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("last initiation: %w", err)
	}
	if !last.Valid {
		return time.Time{}, false, nil
	}
	return fromUnix(last.Int64), true, nil
}

func (s *SQLiteStore) LastSentType(ctx context.Context, userID int64) (st.InitiationType, bool, error) {
	var typ string
	err := s.db.QueryRowContext(ctx, `
		SELECT initiation_type FROM initiation_schedule
		WHERE user_id = ? AND status = 'sent'
		ORDER BY sent_at DESC, id DESC LIMIT 1`, userID).Scan(&typ)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("last sent type: %w", err)
	}
	return st.InitiationType(typ), true, nil
}

// DuePending returns pending rows with scheduled_at <= now, oldest first.
func (s *SQLiteStore) DuePending(ctx context.Context, now time.Time, limit int) ([]st.ScheduleEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+scheduleColumns+` FROM initiation_schedule
		WHERE status = 'pending' AND scheduled_at <= ?
		ORDER BY scheduled_at ASC, id ASC
		LIMIT ?`, unix(now), limit)
	if err != nil {
		return nil, fmt.Errorf("due pending: %w", err)
	}
	defer rows.Close()

	var out []st.ScheduleEntry
	for rows.Next() {
		e, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) NextPending(ctx context.Context, userID int64, after time.Time) (time.Time, bool, error) {
	var next sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT MIN(scheduled_at) FROM initiation_schedule
		WHERE user_id = ? AND status = 'pending' AND scheduled_at > ?`, userID, unix(after)).Scan(&next)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("next pending: %w", err)
	}
	if !next.Valid {
		return time.Time{}, false, nil
	}
	return fromUnix(next.Int64), true, nil
}

// MarkSent moves a pending row to sent, writes the initiation log and appends
// the message to history as a proactive assistant turn, all in one transaction.
func (s *SQLiteStore) MarkSent(ctx context.Context, id int64, message string, now time.Time) (st.LogEntry, error) {
	var entry st.LogEntry
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var (
			userID int64
			typ    string
		)
		err := tx.QueryRowContext(ctx,
			`SELECT user_id, initiation_type FROM initiation_schedule WHERE id = ?`, id).Scan(&userID, &typ)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("load schedule %d: %w", id, err)
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE initiation_schedule SET status = 'sent', sent_at = ?
			WHERE id = ? AND status = 'pending'`, unix(now), id)
		if err != nil {
			return fmt.Errorf("mark sent: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("mark sent %d: %w", id, ErrNotPending)
		}

		res, err = tx.ExecContext(ctx, `
			INSERT INTO initiation_logs (user_id, initiation_id, message_content, initiation_type, created_at)
			VALUES (?, ?, ?, ?, ?)`, userID, id, message, typ, unix(now))
		if err != nil {
			return fmt.Errorf("insert log: %w", err)
		}
		logID, err := res.LastInsertId()
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO history (user_id, role, content, bot_mode, created_at)
			VALUES (?, ?, ?, ?, ?)`, userID, string(st.RoleAssistant), message, string(st.ModeProactive), unix(now)); err != nil {
			return fmt.Errorf("append history: %w", err)
		}

		entry = st.LogEntry{
			ID:           logID,
			UserID:       userID,
			InitiationID: id,
			Content:      message,
			Type:         st.InitiationType(typ),
			CreatedAt:    fromUnix(unix(now)),
		}
		return nil
	})
	return entry, err
}

// MarkFailed records a dispatch failure. Rows that already left pending are
// left untouched.
func (s *SQLiteStore) MarkFailed(ctx context.Context, id int64, reason string) error {
	res, err := s.exec(ctx, `
		UPDATE initiation_schedule SET status = 'failed', error_message = ?
		WHERE id = ? AND status = 'pending'`, reason, id)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("mark failed %d: %w", id, ErrNotPending)
	}
	return nil
}

func (s *SQLiteStore) CancelStalePending(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.exec(ctx, `
		UPDATE initiation_schedule SET status = 'cancelled', error_message = 'stale'
		WHERE status = 'pending' AND scheduled_at < ?`, unix(before))
	if err != nil {
		return 0, fmt.Errorf("cancel stale: %w", err)
	}
	return res.RowsAffected()
}

// =============================================================================
// Logs
// =============================================================================

func (s *SQLiteStore) LatestUnresponded(ctx context.Context, userID int64, since time.Time) (st.LogEntry, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+logColumns+` FROM initiation_logs
		WHERE user_id = ? AND user_responded = 0 AND created_at > ?
		ORDER BY created_at DESC, id DESC LIMIT 1`, userID, unix(since))
	e, err := scanLog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return st.LogEntry{}, false, nil
	}
	if err != nil {
		return st.LogEntry{}, false, fmt.Errorf("latest unresponded: %w", err)
	}
	return e, true, nil
}

// RecordResponse stores the user's reply on a log entry and flags the schedule
// row. A log that already has a response yields ErrNotPending.
func (s *SQLiteStore) RecordResponse(ctx context.Context, entry st.LogEntry, upd st.ResponseUpdate) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE initiation_logs SET
				user_responded = 1,
				user_response = ?,
				user_response_emotion = ?,
				user_response_sentiment = ?,
				user_response_length = ?,
				response_time_minutes = ?
			WHERE id = ? AND user_responded = 0`,
			upd.Text, nullString(upd.Emotion), upd.Sentiment, upd.Length, upd.Minutes, entry.ID)
		if err != nil {
			return fmt.Errorf("record response: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("record response %d: %w", entry.ID, ErrNotPending)
		}
		if entry.InitiationID == 0 {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE initiation_schedule SET user_response_received = 1 WHERE id = ?`, entry.InitiationID); err != nil {
			return fmt.Errorf("flag schedule: %w", err)
		}
		return nil
	})
}

func (s *SQLiteStore) CountIgnored(ctx context.Context, userID int64, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM initiation_logs
		WHERE user_id = ? AND user_responded = 0 AND created_at > ?`, userID, unix(since)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count ignored: %w", err)
	}
	return n, nil
}

// AvgResponseLength averages reply lengths of responded logs since the given
// instant. The bool is false when there were no replies.
func (s *SQLiteStore) AvgResponseLength(ctx context.Context, userID int64, since time.Time) (float64, bool, error) {
	var avg sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT AVG(user_response_length) FROM initiation_logs
		WHERE user_id = ? AND user_responded = 1 AND created_at > ?`, userID, unix(since)).Scan(&avg)
	if err != nil {
		return 0, false, fmt.Errorf("avg response length: %w", err)
	}
	return avg.Float64, avg.Valid, nil
}

func (s *SQLiteStore) LogsForUser(ctx context.Context, userID int64) ([]st.LogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+logColumns+` FROM initiation_logs
		WHERE user_id = ? ORDER BY created_at ASC, id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("logs for user: %w", err)
	}
	defer rows.Close()

	var out []st.LogEntry
	for rows.Next() {
		e, err := scanLog(rows)
		if err != nil {
			return nil, fmt.Errorf("scan log: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Metrics aggregates initiation logs created after since.
func (s *SQLiteStore) Metrics(ctx context.Context, since time.Time) (st.InitiationMetrics, error) {
	var (
		m                       st.InitiationMetrics
		avgLen, avgSent, avgMin sql.NullFloat64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT user_id),
			COUNT(*),
			COALESCE(SUM(user_responded), 0),
			AVG(CASE WHEN user_responded = 1 THEN user_response_length END),
			AVG(CASE WHEN user_responded = 1 THEN user_response_sentiment END),
			AVG(CASE WHEN user_responded = 1 THEN response_time_minutes END)
		FROM initiation_logs WHERE created_at > ?`, unix(since)).
		Scan(&m.ActiveUsers, &m.Total, &m.Responded, &avgLen, &avgSent, &avgMin)
	if err != nil {
		return m, fmt.Errorf("metrics: %w", err)
	}
	if m.Total > 0 {
		m.ResponseRate = float64(m.Responded) / float64(m.Total)
	}
	m.AvgResponseLen = avgLen.Float64
	m.AvgSentiment = avgSent.Float64
	m.AvgResponseMins = avgMin.Float64
	return m, nil
}

func (s *SQLiteStore) DeleteLogsBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.exec(ctx, `DELETE FROM initiation_logs WHERE created_at < ?`, unix(before))
	if err != nil {
		return 0, fmt.Errorf("delete logs: %w", err)
	}
	return res.RowsAffected()
}

// =============================================================================
// Scanning
// =============================================================================

func scanSchedule(r scanner) (st.ScheduleEntry, error) {
	var (
		e                  st.ScheduleEntry
		typ, status        string
		ids, ctxData       string
		emotion, errMsg    sql.NullString
		scheduled, created int64
		sent               sql.NullInt64
		responded          int
	)
	if err := r.Scan(&e.ID, &e.UserID, &scheduled, &typ, &ids, &ctxData, &emotion, &status,
		&sent, &errMsg, &responded, &created); err != nil {
		return e, err
	}
	e.ScheduledAt = fromUnix(scheduled)
	e.Type = st.InitiationType(typ)
	e.Status = st.Status(status)
	e.EmotionContext = emotion.String
	e.SentAt = timePtr(sent)
	e.ErrorMessage = errMsg.String
	e.ResponseReceived = responded == 1
	e.CreatedAt = fromUnix(created)
	if err := json.Unmarshal([]byte(ids), &e.SourceMemoryIDs); err != nil {
		return e, fmt.Errorf("schedule %d source ids: %w", e.ID, err)
	}
	if err := json.Unmarshal([]byte(ctxData), &e.Context); err != nil {
		return e, fmt.Errorf("schedule %d context: %w", e.ID, err)
	}
	return e, nil
}

func scanLog(r scanner) (st.LogEntry, error) {
	var (
		e         st.LogEntry
		initID    sql.NullInt64
		typ       string
		created   int64
		responded int
		response  sql.NullString
		emotion   sql.NullString
		sentiment sql.NullFloat64
	)
	if err := r.Scan(&e.ID, &e.UserID, &initID, &e.Content, &typ, &created, &responded,
		&response, &emotion, &sentiment, &e.ResponseLength, &e.ResponseMinutes); err != nil {
		return e, err
	}
	e.InitiationID = initID.Int64
	e.Type = st.InitiationType(typ)
	e.CreatedAt = fromUnix(created)
	e.Responded = responded == 1
	e.Response = response.String
	e.ResponseEmotion = emotion.String
	e.ResponseSentiment = floatPtr(sentiment)
	return e, nil
}
