package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// NounRoute maps a recognized noun ("settings", "billing") onto a direct UI
// action. Nouns are stored normalized lower-case.
type NounRoute struct {
	Noun        string    `json:"noun"`
	Action      string    `json:"action"`
	TargetID    string    `json:"target_id,omitempty"`
	TargetLabel string    `json:"target_label,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

var ErrNounRouteRequired = errors.New("noun and action are required")

// UpsertNounRoute inserts or replaces the route for a noun.
func (s *Store) UpsertNounRoute(ctx context.Context, route NounRoute) error {
	noun := strings.ToLower(strings.TrimSpace(route.Noun))
	action := strings.TrimSpace(route.Action)
	if noun == "" || action == "" {
		return ErrNounRouteRequired
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO noun_routes (noun, action, target_id, target_label, updated_at_unix)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(noun) DO UPDATE SET
			action = excluded.action,
			target_id = excluded.target_id,
			target_label = excluded.target_label,
			updated_at_unix = excluded.updated_at_unix`,
		noun,
		action,
		nullIfEmpty(strings.TrimSpace(route.TargetID)),
		nullIfEmpty(strings.TrimSpace(route.TargetLabel)),
		time.Now().UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert noun route: %w", err)
	}
	return nil
}

// SeedNounRoutes inserts the default routes when the table is empty.
// Operator edits are never overwritten.
func (s *Store) SeedNounRoutes(ctx context.Context) error {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM noun_routes`).Scan(&count); err != nil {
		return fmt.Errorf("count noun routes: %w", err)
	}
	if count > 0 {
		return nil
	}
	defaults := []NounRoute{
		{Noun: "settings", Action: "open_panel", TargetID: "settings", TargetLabel: "Settings"},
		{Noun: "dashboard", Action: "open_panel", TargetID: "dashboard", TargetLabel: "Dashboard"},
		{Noun: "home", Action: "open_panel", TargetID: "home", TargetLabel: "Home"},
	}
	for _, route := range defaults {
		if err := s.UpsertNounRoute(ctx, route); err != nil {
			return err
		}
	}
	return nil
}

// LookupNounRoute returns the route for a noun, reporting presence
// explicitly so an unknown noun is not an error.
func (s *Store) LookupNounRoute(ctx context.Context, noun string) (NounRoute, bool, error) {
	noun = strings.ToLower(strings.TrimSpace(noun))
	if noun == "" {
		return NounRoute{}, false, nil
	}
	row := s.db.QueryRowContext(
		ctx,
		`SELECT noun, action, target_id, target_label, updated_at_unix
		 FROM noun_routes WHERE noun = ?`,
		noun,
	)
	var route NounRoute
	var targetID, targetLabel sql.NullString
	var updatedAtUnix int64
	if err := row.Scan(&route.Noun, &route.Action, &targetID, &targetLabel, &updatedAtUnix); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return NounRoute{}, false, nil
		}
		return NounRoute{}, false, fmt.Errorf("lookup noun route: %w", err)
	}
	route.TargetID = targetID.String
	route.TargetLabel = targetLabel.String
	route.UpdatedAt = time.Unix(updatedAtUnix, 0).UTC()
	return route, true, nil
}

// ListNounRoutes returns every route ordered by noun.
func (s *Store) ListNounRoutes(ctx context.Context) ([]NounRoute, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT noun, action, target_id, target_label, updated_at_unix
		 FROM noun_routes ORDER BY noun`,
	)
	if err != nil {
		return nil, fmt.Errorf("query noun routes: %w", err)
	}
	defer rows.Close()

	var routes []NounRoute
	for rows.Next() {
		var route NounRoute
		var targetID, targetLabel sql.NullString
		var updatedAtUnix int64
		if err := rows.Scan(&route.Noun, &route.Action, &targetID, &targetLabel, &updatedAtUnix); err != nil {
			return nil, fmt.Errorf("scan noun route: %w", err)
		}
		route.TargetID = targetID.String
		route.TargetLabel = targetLabel.String
		route.UpdatedAt = time.Unix(updatedAtUnix, 0).UTC()
		routes = append(routes, route)
	}
	return routes, rows.Err()
}
