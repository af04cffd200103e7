package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	st "github.com/keshon/himera/internal/storagetypes"
)

const settingsColumns = `user_id, is_enabled, enabled_at, paused_until, pause_reason, ab_test_group, timezone, updated_at`

func (s *SQLiteStore) GetSettings(ctx context.Context, userID int64) (st.ProactivitySettings, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+settingsColumns+` FROM user_proactivity_settings WHERE user_id = ?`, userID)
	set, err := scanSettings(row)
	if errors.Is(err, sql.ErrNoRows) {
		return st.ProactivitySettings{}, ErrNotFound
	}
	if err != nil {
		return st.ProactivitySettings{}, fmt.Errorf("get settings: %w", err)
	}
	return set, nil
}

// EnableProactivity creates or re-enables the settings row and clears any pause.
// An existing timezone is kept.
func (s *SQLiteStore) EnableProactivity(ctx context.Context, userID int64, abGroup, timezone string, now time.Time) error {
	_, err := s.exec(ctx, `
		INSERT INTO user_proactivity_settings (user_id, is_enabled, enabled_at, paused_until, pause_reason, ab_test_group, timezone, updated_at)
		VALUES (?, 1, ?, NULL, NULL, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			is_enabled   = 1,
			enabled_at   = excluded.enabled_at,
			paused_until = NULL,
			pause_reason = NULL,
			updated_at   = excluded.updated_at`,
		userID, unix(now), abGroup, timezone, unix(now))
	if err != nil {
		return fmt.Errorf("enable proactivity: %w", err)
	}
	return nil
}

// DisableProactivity turns initiations off and cancels every pending row.
// It returns the number of cancelled rows.
func (s *SQLiteStore) DisableProactivity(ctx context.Context, userID int64, now time.Time) (int64, error) {
	var cancelled int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			UPDATE user_proactivity_settings SET is_enabled = 0, updated_at = ? WHERE user_id = ?`,
			unix(now), userID); err != nil {
			return fmt.Errorf("disable: %w", err)
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE initiation_schedule SET status = 'cancelled', error_message = 'disabled by user'
			WHERE user_id = ? AND status = 'pending'`, userID)
		if err != nil {
			return fmt.Errorf("cancel pending: %w", err)
		}
		cancelled, err = res.RowsAffected()
		return err
	})
	return cancelled, err
}

// PauseProactivity records a pause and cancels pending rows that would fire
// before it ends. A user without a settings row gets ErrNotFound.
func (s *SQLiteStore) PauseProactivity(ctx context.Context, userID int64, until time.Time, reason string, now time.Time) (int64, error) {
	var cancelled int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE user_proactivity_settings SET paused_until = ?, pause_reason = ?, updated_at = ?
			WHERE user_id = ?`, unix(until), nullString(reason), unix(now), userID)
		if err != nil {
			return fmt.Errorf("pause: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		res, err = tx.ExecContext(ctx, `
			UPDATE initiation_schedule SET status = 'cancelled', error_message = 'paused by user'
			WHERE user_id = ? AND status = 'pending' AND scheduled_at <= ?`, userID, unix(until))
		if err != nil {
			return fmt.Errorf("cancel paused: %w", err)
		}
		cancelled, err = res.RowsAffected()
		return err
	})
	return cancelled, err
}

// ActiveSettings lists enabled users whose pause, if any, has expired.
func (s *SQLiteStore) ActiveSettings(ctx context.Context, now time.Time) ([]st.ProactivitySettings, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+settingsColumns+` FROM user_proactivity_settings
		WHERE is_enabled = 1 AND (paused_until IS NULL OR paused_until <= ?)
		ORDER BY user_id`, unix(now))
	if err != nil {
		return nil, fmt.Errorf("active settings: %w", err)
	}
	defer rows.Close()

	var out []st.ProactivitySettings
	for rows.Next() {
		set, err := scanSettings(rows)
		if err != nil {
			return nil, fmt.Errorf("scan settings: %w", err)
		}
		out = append(out, set)
	}
	return out, rows.Err()
}

func scanSettings(r scanner) (st.ProactivitySettings, error) {
	var (
		set       st.ProactivitySettings
		enabled   int
		enabledAt sql.NullInt64
		paused    sql.NullInt64
		reason    sql.NullString
		updated   int64
	)
	if err := r.Scan(&set.UserID, &enabled, &enabledAt, &paused, &reason, &set.ABGroup, &set.Timezone, &updated); err != nil {
		return set, err
	}
	set.Enabled = enabled == 1
	if enabledAt.Valid {
		set.EnabledAt = fromUnix(enabledAt.Int64)
	}
	set.PausedUntil = timePtr(paused)
	set.PauseReason = reason.String
	set.UpdatedAt = fromUnix(updated)
	return set, nil
}
