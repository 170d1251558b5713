package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/odvcencio/northstar/pkg/outcome"
)

// SaveOutcome inserts a new outcome record.
func (s *Store) SaveOutcome(ctx context.Context, o *outcome.Outcome) error {
	if s.db == nil {
		return ErrStoreClosed
	}

	signalJSON, err := json.Marshal(o.Signal)
	if err != nil {
		return fmt.Errorf("marshal signal: %w", err)
	}
	targetJSON, err := json.Marshal(o.Target)
	if err != nil {
		return fmt.Errorf("marshal target: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO outcomes (id, name, owner, signal_json, target_json, max_concurrent, status, created_at, activated_at, achieved_at, concluded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, o.ID, o.Name, o.Owner, string(signalJSON), string(targetJSON),
		o.MaxConcurrentExperiments, string(o.Status), o.CreatedAt,
		o.ActivatedAt, o.AchievedAt, o.ConcludedAt)
	if err != nil {
		return fmt.Errorf("insert outcome: %w", err)
	}
	return nil
}

// UpdateOutcome rewrites a stored outcome.
func (s *Store) UpdateOutcome(ctx context.Context, o *outcome.Outcome) error {
	if s.db == nil {
		return ErrStoreClosed
	}

	signalJSON, err := json.Marshal(o.Signal)
	if err != nil {
		return fmt.Errorf("marshal signal: %w", err)
	}
	targetJSON, err := json.Marshal(o.Target)
	if err != nil {
		return fmt.Errorf("marshal target: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE outcomes
		SET name = ?, owner = ?, signal_json = ?, target_json = ?, max_concurrent = ?,
		    status = ?, activated_at = ?, achieved_at = ?, concluded_at = ?
		WHERE id = ?
	`, o.Name, o.Owner, string(signalJSON), string(targetJSON),
		o.MaxConcurrentExperiments, string(o.Status),
		o.ActivatedAt, o.AchievedAt, o.ConcludedAt, o.ID)
	if err != nil {
		return fmt.Errorf("update outcome: %w", err)
	}
	return nil
}

// GetOutcome returns an outcome by id, or nil when absent.
func (s *Store) GetOutcome(ctx context.Context, id string) (*outcome.Outcome, error) {
	if s.db == nil {
		return nil, ErrStoreClosed
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, owner, signal_json, target_json, max_concurrent, status, created_at, activated_at, achieved_at, concluded_at
		FROM outcomes
		WHERE id = ?
	`, id)

	o, err := scanOutcome(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get outcome: %w", err)
	}
	return o, nil
}

// ListOutcomes returns all outcomes, newest first. status filters when
// non-empty.
func (s *Store) ListOutcomes(ctx context.Context, status outcome.Status) ([]*outcome.Outcome, error) {
	if s.db == nil {
		return nil, ErrStoreClosed
	}

	query := `
		SELECT id, name, owner, signal_json, target_json, max_concurrent, status, created_at, activated_at, achieved_at, concluded_at
		FROM outcomes`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []*outcome.Outcome
	for rows.Next() {
		o, err := scanOutcome(rows)
		if err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOutcome(row rowScanner) (*outcome.Outcome, error) {
	var o outcome.Outcome
	var signalJSON, targetJSON, status string
	var activatedAt, achievedAt, concludedAt sql.NullTime

	err := row.Scan(&o.ID, &o.Name, &o.Owner, &signalJSON, &targetJSON,
		&o.MaxConcurrentExperiments, &status, &o.CreatedAt,
		&activatedAt, &achievedAt, &concludedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(signalJSON), &o.Signal); err != nil {
		return nil, fmt.Errorf("unmarshal signal: %w", err)
	}
	if err := json.Unmarshal([]byte(targetJSON), &o.Target); err != nil {
		return nil, fmt.Errorf("unmarshal target: %w", err)
	}
	o.Status = outcome.Status(status)
	if activatedAt.Valid {
		t := activatedAt.Time
		o.ActivatedAt = &t
	}
	if achievedAt.Valid {
		t := achievedAt.Time
		o.AchievedAt = &t
	}
	if concludedAt.Valid {
		t := concludedAt.Time
		o.ConcludedAt = &t
	}
	return &o, nil
}
