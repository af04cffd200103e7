package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	st "github.com/keshon/himera/internal/storagetypes"
)

const memoryColumns = `id, user_id, user_message, bot_response, importance_score, memory_type,
	style_markers, contextual_tags, created_at, access_count, last_accessed`

func (s *SQLiteStore) SaveMemory(ctx context.Context, m st.Memory) (int64, error) {
	if m.Importance < 1 || m.Importance > 10 {
		return 0, fmt.Errorf("save memory: %w (got %d)", ErrInvalidImportance, m.Importance)
	}
	if !m.Type.Valid() {
		return 0, fmt.Errorf("save memory: %w", st.ErrUnknownMemoryType)
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	if m.Tags == nil {
		m.Tags = []string{}
	}

	tags, err := marshalJSON(m.Tags)
	if err != nil {
		return 0, fmt.Errorf("save memory: %w", err)
	}
	var markers sql.NullString
	if m.StyleMarkers != nil && !m.StyleMarkers.Empty() {
		raw, err := marshalJSON(m.StyleMarkers)
		if err != nil {
			return 0, fmt.Errorf("save memory: %w", err)
		}
		markers = sql.NullString{String: raw, Valid: true}
	}

	res, err := s.exec(ctx, `
		INSERT INTO long_term_memory (user_id, user_message, bot_response, importance_score, memory_type,
			style_markers, contextual_tags, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.UserID, m.UserMessage, m.BotResponse, m.Importance, string(m.Type), markers, tags, unix(m.CreatedAt))
	if err != nil {
		return 0, fmt.Errorf("save memory: %w", err)
	}
	return res.LastInsertId()
}

// RecentMemories returns memories created after since, most important first,
// newest first within equal importance.
func (s *SQLiteStore) RecentMemories(ctx context.Context, userID int64, since time.Time) ([]st.Memory, error) {
	return s.queryMemories(ctx, `
		SELECT `+memoryColumns+` FROM long_term_memory
		WHERE user_id = ? AND created_at > ?
		ORDER BY importance_score DESC, created_at DESC, id DESC`, userID, unix(since))
}

func (s *SQLiteStore) LatestMemories(ctx context.Context, userID int64, limit int) ([]st.Memory, error) {
	return s.queryMemories(ctx, `
		SELECT `+memoryColumns+` FROM long_term_memory
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, userID, limit)
}

func (s *SQLiteStore) MemoriesByIDs(ctx context.Context, ids []int64) ([]st.Memory, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return s.queryMemories(ctx, `
		SELECT `+memoryColumns+` FROM long_term_memory
		WHERE id IN (`+placeholders(len(ids))+`)
		ORDER BY id`, int64Args(ids)...)
}

// TouchMemories bumps access counters of memories used to build a reply.
func (s *SQLiteStore) TouchMemories(ctx context.Context, ids []int64, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	args := append([]any{unix(at)}, int64Args(ids)...)
	_, err := s.exec(ctx, `
		UPDATE long_term_memory
		SET access_count = access_count + 1, last_accessed = ?
		WHERE id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return fmt.Errorf("touch memories: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CountMemoriesSince(ctx context.Context, userID int64, typ st.MemoryType, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM long_term_memory
		WHERE user_id = ? AND memory_type = ? AND created_at >= ?`,
		userID, string(typ), unix(since)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count memories: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) MemoryStats(ctx context.Context, userID int64) (st.MemoryStats, error) {
	stats := st.MemoryStats{UserID: userID}
	var (
		avg  sql.NullFloat64
		last sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			AVG(importance_score),
			COALESCE(SUM(CASE WHEN memory_type = 'user_saved' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN memory_type = 'auto_saved' THEN 1 ELSE 0 END), 0),
			MAX(created_at)
		FROM long_term_memory WHERE user_id = ?`, userID).
		Scan(&stats.Total, &avg, &stats.UserSaved, &stats.AutoSaved, &last)
	if err != nil {
		return stats, fmt.Errorf("memory stats: %w", err)
	}
	stats.AvgImportance = avg.Float64
	stats.LastMemoryDate = timePtr(last)
	return stats, nil
}

func (s *SQLiteStore) DeleteMemoriesBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.exec(ctx, `DELETE FROM long_term_memory WHERE created_at < ?`, unix(before))
	if err != nil {
		return 0, fmt.Errorf("delete memories: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) queryMemories(ctx context.Context, query string, args ...any) ([]st.Memory, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query memories: %w", err)
	}
	defer rows.Close()

	var out []st.Memory
	for rows.Next() {
		var (
			m        st.Memory
			typ      string
			markers  sql.NullString
			tags     string
			created  int64
			accessed sql.NullInt64
		)
		if err := rows.Scan(&m.ID, &m.UserID, &m.UserMessage, &m.BotResponse, &m.Importance, &typ,
			&markers, &tags, &created, &m.AccessCount, &accessed); err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		m.Type = st.MemoryType(typ)
		m.CreatedAt = fromUnix(created)
		m.LastAccessed = timePtr(accessed)
		if err := json.Unmarshal([]byte(tags), &m.Tags); err != nil {
			return nil, fmt.Errorf("memory %d tags: %w", m.ID, err)
		}
		if markers.Valid && markers.String != "" {
			var sm st.StyleMarkers
			if err := json.Unmarshal([]byte(markers.String), &sm); err != nil {
				return nil, fmt.Errorf("memory %d style markers: %w", m.ID, err)
			}
			m.StyleMarkers = &sm
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
