package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// CreateSession implements SessionStore.
func (s *SQLiteStore) CreateSession(ctx context.Context, rec *SessionRecord) error {
	if rec.ID == "" {
		rec.ID = newID()
	}
	rec.CreatedAt = s.stamp(rec.CreatedAt)
	rec.UpdatedAt = rec.CreatedAt

	history, err := json.Marshal(rec.History)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO sessions
		(id, tenant_id, user_id, equipment_id, step, history, context, language, message_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.TenantID, rec.UserID, rec.EquipmentID, rec.Step, string(history),
		contextText(rec.Context), rec.Language, rec.MessageCount, toUnix(rec.CreatedAt), toUnix(rec.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetSession implements SessionStore.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*SessionRecord, error) {
	var rec SessionRecord
	var history, sessionCtx string
	var created, updated int64
	err := s.db.QueryRowContext(ctx, `SELECT id, tenant_id, user_id, equipment_id, step, history, context,
		language, message_count, created_at, updated_at FROM sessions WHERE id = ?`, id).Scan(
		&rec.ID, &rec.TenantID, &rec.UserID, &rec.EquipmentID, &rec.Step, &history, &sessionCtx,
		&rec.Language, &rec.MessageCount, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}
	if err := json.Unmarshal([]byte(history), &rec.History); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	rec.Context = []byte(sessionCtx)
	rec.CreatedAt = fromUnix(created)
	rec.UpdatedAt = fromUnix(updated)
	return &rec, nil
}

// SaveTurn implements SessionStore.
func (s *SQLiteStore) SaveTurn(ctx context.Context, rec *SessionRecord, msgs []MessageRecord) error {
	history, err := json.Marshal(rec.History)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	previousCount := rec.MessageCount - len(msgs)
	now := s.now().UTC()

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE sessions
			SET equipment_id = ?, step = ?, history = ?, context = ?, language = ?, message_count = ?, updated_at = ?
			WHERE id = ? AND message_count = ?`,
			rec.EquipmentID, rec.Step, string(history), contextText(rec.Context), rec.Language,
			rec.MessageCount, toUnix(now), rec.ID, previousCount)
		if err != nil {
			return fmt.Errorf("update session: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("session %s: %w", rec.ID, ErrConflict)
		}

		for i := range msgs {
			m := &msgs[i]
			if m.ID == "" {
				m.ID = newID()
			}
			m.SessionID = rec.ID
			m.CreatedAt = s.stamp(m.CreatedAt)
			var payload interface{}
			if len(m.Payload) > 0 {
				payload = string(m.Payload)
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO messages
				(id, session_id, seq, sender, text, payload, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
				m.ID, m.SessionID, m.Seq, m.Sender, m.Text, payload, toUnix(m.CreatedAt)); err != nil {
				return fmt.Errorf("insert message %d: %w", m.Seq, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	rec.UpdatedAt = now
	return nil
}

// ListMessages implements SessionStore.
func (s *SQLiteStore) ListMessages(ctx context.Context, sessionID string) ([]MessageRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, session_id, seq, sender, text, payload, created_at
		FROM messages WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []MessageRecord
	for rows.Next() {
		var m MessageRecord
		var payload sql.NullString
		var created int64
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Seq, &m.Sender, &m.Text, &payload, &created); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		if payload.Valid {
			m.Payload = []byte(payload.String)
		}
		m.CreatedAt = fromUnix(created)
		out = append(out, m)
	}
	return out, rows.Err()
}

func contextText(b []byte) string {
	if len(b) == 0 {
		return "{}"
	}
	return string(b)
}
