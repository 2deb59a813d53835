package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dashwise/router-runtime/internal/dispatch"
	"github.com/dashwise/router-runtime/internal/telemetry"
)

// RoutingEvent is one journal row, metadata decoded.
type RoutingEvent struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id"`
	Action    string         `json:"action"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Record implements the telemetry recorder. Metadata is stored as JSON.
func (s *Store) Record(ctx context.Context, event telemetry.Event) error {
	metadata := event.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshal event metadata: %w", err)
	}
	at := event.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO routing_events (id, session_id, action, metadata_json, created_at_unix)
		 VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(),
		event.SessionID,
		event.Action,
		string(raw),
		at.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert routing event: %w", err)
	}
	return nil
}

// ListRecentEvents returns the newest events first, optionally filtered by
// session.
func (s *Store) ListRecentEvents(ctx context.Context, sessionID string, limit int) ([]RoutingEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, session_id, action, metadata_json, created_at_unix
		FROM routing_events`
	args := []any{}
	if sessionID = strings.TrimSpace(sessionID); sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY created_at_unix DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query routing events: %w", err)
	}
	defer rows.Close()

	var events []RoutingEvent
	for rows.Next() {
		var event RoutingEvent
		var rawMetadata string
		var createdAtUnix int64
		if err := rows.Scan(&event.ID, &event.SessionID, &event.Action, &rawMetadata, &createdAtUnix); err != nil {
			return nil, fmt.Errorf("scan routing event: %w", err)
		}
		if rawMetadata != "" {
			if err := json.Unmarshal([]byte(rawMetadata), &event.Metadata); err != nil {
				return nil, fmt.Errorf("decode event metadata: %w", err)
			}
		}
		event.CreatedAt = time.Unix(createdAtUnix, 0).UTC()
		events = append(events, event)
	}
	return events, rows.Err()
}

// ArbitrationAudit is one persisted arbitration call.
type ArbitrationAudit struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	MessageID  string    `json:"message_id"`
	Decision   string    `json:"decision,omitempty"`
	ChoiceID   string    `json:"choice_id,omitempty"`
	Confidence float64   `json:"confidence"`
	Reason     string    `json:"reason,omitempty"`
	ErrKind    string    `json:"err_kind,omitempty"`
	LatencyMs  int64     `json:"latency_ms"`
	Retried    bool      `json:"retried"`
	CreatedAt  time.Time `json:"created_at"`
}

// RecordArbitration implements the dispatcher's audit recorder.
func (s *Store) RecordArbitration(ctx context.Context, record dispatch.ArbitrationRecord) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO arbitration_audit (
			id, session_id, message_id, decision, choice_id, confidence,
			reason, err_kind, latency_ms, retried, created_at_unix
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(),
		record.SessionID,
		record.MessageID,
		nullIfEmpty(record.Decision),
		nullIfEmpty(record.ChoiceID),
		record.Confidence,
		nullIfEmpty(record.Reason),
		nullIfEmpty(record.ErrKind),
		record.LatencyMs,
		boolToInt(record.Retried),
		time.Now().UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert arbitration audit: %w", err)
	}
	return nil
}

// ListRecentArbitrations returns the newest audit rows first.
func (s *Store) ListRecentArbitrations(ctx context.Context, limit int) ([]ArbitrationAudit, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, session_id, message_id, decision, choice_id, confidence,
			reason, err_kind, latency_ms, retried, created_at_unix
		 FROM arbitration_audit
		 ORDER BY created_at_unix DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query arbitration audit: %w", err)
	}
	defer rows.Close()

	var audits []ArbitrationAudit
	for rows.Next() {
		var audit ArbitrationAudit
		var decision, choiceID, reason, errKind sql.NullString
		var retried int
		var createdAtUnix int64
		if err := rows.Scan(
			&audit.ID, &audit.SessionID, &audit.MessageID,
			&decision, &choiceID, &audit.Confidence,
			&reason, &errKind, &audit.LatencyMs, &retried, &createdAtUnix,
		); err != nil {
			return nil, fmt.Errorf("scan arbitration audit: %w", err)
		}
		audit.Decision = decision.String
		audit.ChoiceID = choiceID.String
		audit.Reason = reason.String
		audit.ErrKind = errKind.String
		audit.Retried = retried != 0
		audit.CreatedAt = time.Unix(createdAtUnix, 0).UTC()
		audits = append(audits, audit)
	}
	return audits, rows.Err()
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
