package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/odvcencio/northstar/pkg/conflict"
)

// SaveConflict implements conflict.Store.
func (s *Store) SaveConflict(ctx context.Context, c *conflict.Conflict) error {
	if s.db == nil {
		return ErrStoreClosed
	}

	expJSON, _ := json.Marshal(c.ExperimentIDs)
	agentJSON, _ := json.Marshal(c.AgentIDs)
	pathsJSON, _ := json.Marshal(c.Paths)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conflicts (id, conflict_type, severity, experiment_ids, agent_ids, paths, resolved, resolved_by, resolved_at, detected_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.Type, string(c.Severity), string(expJSON), string(agentJSON),
		string(pathsJSON), c.Resolved, nullableString(c.ResolvedBy),
		c.ResolvedAt, c.DetectedAt)
	if err != nil {
		return fmt.Errorf("insert conflict: %w", err)
	}
	return nil
}

// UpdateConflict implements conflict.Store.
func (s *Store) UpdateConflict(ctx context.Context, c *conflict.Conflict) error {
	if s.db == nil {
		return ErrStoreClosed
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE conflicts
		SET resolved = ?, resolved_by = ?, resolved_at = ?
		WHERE id = ?
	`, c.Resolved, nullableString(c.ResolvedBy), c.ResolvedAt, c.ID)
	if err != nil {
		return fmt.Errorf("update conflict: %w", err)
	}
	return nil
}

// GetConflict implements conflict.Store; returns nil when absent.
func (s *Store) GetConflict(ctx context.Context, id string) (*conflict.Conflict, error) {
	if s.db == nil {
		return nil, ErrStoreClosed
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, conflict_type, severity, experiment_ids, agent_ids, paths, resolved, resolved_by, resolved_at, detected_at
		FROM conflicts
		WHERE id = ?
	`, id)

	c, err := scanConflict(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get conflict: %w", err)
	}
	return c, nil
}

// ListConflicts returns conflicts, newest first. unresolvedOnly restricts to
// open ones.
func (s *Store) ListConflicts(ctx context.Context, unresolvedOnly bool) ([]*conflict.Conflict, error) {
	if s.db == nil {
		return nil, ErrStoreClosed
	}

	query := `
		SELECT id, conflict_type, severity, experiment_ids, agent_ids, paths, resolved, resolved_by, resolved_at, detected_at
		FROM conflicts`
	if unresolvedOnly {
		query += ` WHERE resolved = 0`
	}
	query += ` ORDER BY detected_at DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list conflicts: %w", err)
	}
	defer rows.Close()

	var conflicts []*conflict.Conflict
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conflict: %w", err)
		}
		conflicts = append(conflicts, c)
	}
	return conflicts, rows.Err()
}

func scanConflict(row rowScanner) (*conflict.Conflict, error) {
	var c conflict.Conflict
	var severity, expJSON, agentJSON, pathsJSON string
	var resolvedBy sql.NullString
	var resolvedAt sql.NullTime

	err := row.Scan(&c.ID, &c.Type, &severity, &expJSON, &agentJSON, &pathsJSON,
		&c.Resolved, &resolvedBy, &resolvedAt, &c.DetectedAt)
	if err != nil {
		return nil, err
	}

	c.Severity = conflict.Severity(severity)
	c.ResolvedBy = resolvedBy.String
	if resolvedAt.Valid {
		t := resolvedAt.Time
		c.ResolvedAt = &t
	}
	if err := json.Unmarshal([]byte(expJSON), &c.ExperimentIDs); err != nil {
		return nil, fmt.Errorf("unmarshal experiment ids: %w", err)
	}
	if err := json.Unmarshal([]byte(agentJSON), &c.AgentIDs); err != nil {
		return nil, fmt.Errorf("unmarshal agent ids: %w", err)
	}
	if err := json.Unmarshal([]byte(pathsJSON), &c.Paths); err != nil {
		return nil, fmt.Errorf("unmarshal paths: %w", err)
	}
	return &c, nil
}
