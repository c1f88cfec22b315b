package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// LogEvent is one persisted operational event. The context carries counts,
// ids and durations only, never transaction descriptions or amounts, so the
// log table stays safe to share in a bug report.
type LogEvent struct {
	ID        uuid.UUID
	Level     string
	Event     string
	Message   string
	Context   map[string]any
	CreatedAt time.Time
}

// AppendLog persists one operational event to sys_logs.
func (s *Store) AppendLog(ctx context.Context, level, event, message string, fields map[string]any) error {
	var contextJSON any
	if len(fields) > 0 {
		b, err := json.Marshal(fields)
		if err != nil {
			return fmt.Errorf("AppendLog: marshal context: %w", err)
		}
		contextJSON = string(b)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sys_logs (id, level, event, message, context, created_at)
		VALUES (?, ?, ?, ?, ?, current_timestamp)`,
		uuid.New().String(), level, event, nullable(message), contextJSON)
	if err != nil {
		return fmt.Errorf("AppendLog: %w", err)
	}
	return nil
}

// ListLogs returns the newest events first, up to limit.
func (s *Store) ListLogs(ctx context.Context, limit int) ([]LogEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id::VARCHAR, level, event, message, context, created_at::VARCHAR
		FROM sys_logs ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("ListLogs: %w", err)
	}
	defer rows.Close()

	var events []LogEvent
	for rows.Next() {
		var (
			e                 LogEvent
			idStr, createdAt  string
			message, contextJSON sql.NullString
		)
		if err := rows.Scan(&idStr, &e.Level, &e.Event, &message, &contextJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("ListLogs: scan: %w", err)
		}
		if e.ID, err = parseUUID(idStr); err != nil {
			return nil, fmt.Errorf("ListLogs: %w", err)
		}
		e.Message = stringOrEmpty(message)
		if contextJSON.Valid {
			if err := json.Unmarshal([]byte(contextJSON.String), &e.Context); err != nil {
				return nil, fmt.Errorf("ListLogs: unmarshal context: %w", err)
			}
		}
		if e.CreatedAt, err = parseTimestamp(createdAt); err != nil {
			return nil, fmt.Errorf("ListLogs: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListLogs: %w", err)
	}
	return events, nil
}
