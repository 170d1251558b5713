package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/odvcencio/northstar/pkg/experiment"
)

// SaveExperiment inserts a new experiment record.
func (s *Store) SaveExperiment(ctx context.Context, e *experiment.Experiment) error {
	if s.db == nil {
		return ErrStoreClosed
	}

	candidateJSON, err := json.Marshal(e.Candidate)
	if err != nil {
		return fmt.Errorf("marshal candidate: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO experiments (id, outcome_id, candidate_json, state, kill_reason, fail_reason, created_at, launched_at, concluded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.OutcomeID, string(candidateJSON), string(e.State),
		nullableString(e.KillReason), nullableString(e.FailReason),
		e.CreatedAt, e.LaunchedAt, e.ConcludedAt)
	if err != nil {
		return fmt.Errorf("insert experiment: %w", err)
	}
	return nil
}

// UpdateExperiment rewrites a stored experiment.
func (s *Store) UpdateExperiment(ctx context.Context, e *experiment.Experiment) error {
	if s.db == nil {
		return ErrStoreClosed
	}

	candidateJSON, err := json.Marshal(e.Candidate)
	if err != nil {
		return fmt.Errorf("marshal candidate: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE experiments
		SET candidate_json = ?, state = ?, kill_reason = ?, fail_reason = ?, launched_at = ?, concluded_at = ?
		WHERE id = ?
	`, string(candidateJSON), string(e.State),
		nullableString(e.KillReason), nullableString(e.FailReason),
		e.LaunchedAt, e.ConcludedAt, e.ID)
	if err != nil {
		return fmt.Errorf("update experiment: %w", err)
	}
	return nil
}

// GetExperiment returns an experiment by id, or nil when absent.
func (s *Store) GetExperiment(ctx context.Context, id string) (*experiment.Experiment, error) {
	if s.db == nil {
		return nil, ErrStoreClosed
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, outcome_id, candidate_json, state, kill_reason, fail_reason, created_at, launched_at, concluded_at
		FROM experiments
		WHERE id = ?
	`, id)

	e, err := scanExperiment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get experiment: %w", err)
	}
	return e, nil
}

// ListExperimentsByOutcome returns all experiments under an outcome, oldest
// first.
func (s *Store) ListExperimentsByOutcome(ctx context.Context, outcomeID string) ([]*experiment.Experiment, error) {
	return s.listExperiments(ctx, `
		SELECT id, outcome_id, candidate_json, state, kill_reason, fail_reason, created_at, launched_at, concluded_at
		FROM experiments
		WHERE outcome_id = ?
		ORDER BY created_at ASC
	`, outcomeID)
}

// ListExperimentsByState returns all experiments in the given state.
func (s *Store) ListExperimentsByState(ctx context.Context, state experiment.State) ([]*experiment.Experiment, error) {
	return s.listExperiments(ctx, `
		SELECT id, outcome_id, candidate_json, state, kill_reason, fail_reason, created_at, launched_at, concluded_at
		FROM experiments
		WHERE state = ?
		ORDER BY created_at ASC
	`, string(state))
}

func (s *Store) listExperiments(ctx context.Context, query string, args ...any) ([]*experiment.Experiment, error) {
	if s.db == nil {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list experiments: %w", err)
	}
	defer rows.Close()

	var experiments []*experiment.Experiment
	for rows.Next() {
		e, err := scanExperiment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan experiment: %w", err)
		}
		experiments = append(experiments, e)
	}
	return experiments, rows.Err()
}

func scanExperiment(row rowScanner) (*experiment.Experiment, error) {
	var e experiment.Experiment
	var candidateJSON, state string
	var killReason, failReason sql.NullString
	var launchedAt, concludedAt sql.NullTime

	err := row.Scan(&e.ID, &e.OutcomeID, &candidateJSON, &state,
		&killReason, &failReason, &e.CreatedAt, &launchedAt, &concludedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(candidateJSON), &e.Candidate); err != nil {
		return nil, fmt.Errorf("unmarshal candidate: %w", err)
	}
	e.State = experiment.State(state)
	e.KillReason = killReason.String
	e.FailReason = failReason.String
	if launchedAt.Valid {
		t := launchedAt.Time
		e.LaunchedAt = &t
	}
	if concludedAt.Valid {
		t := concludedAt.Time
		e.ConcludedAt = &t
	}
	return &e, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
