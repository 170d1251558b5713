package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/odvcencio/northstar/pkg/gate"
)

// SaveGate implements gate.Store.
func (s *Store) SaveGate(ctx context.Context, g *gate.Gate) error {
	if s.db == nil {
		return ErrStoreClosed
	}

	chainJSON, err := json.Marshal(g.EscalationChain)
	if err != nil {
		return fmt.Errorf("marshal escalation chain: %w", err)
	}
	contextJSON, err := marshalContext(g)
	if err != nil {
		return err
	}
	responseJSON, err := marshalResponse(g)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO gates (id, experiment_id, outcome_id, gate_type, question, context_json, assignee, escalation_chain, sla_hours, status, created_at, reminder_sent_at, responded_at, response_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, g.ID, g.ExperimentID, g.OutcomeID, string(g.Type), g.Question,
		contextJSON, g.Assignee, string(chainJSON), g.SLAHours, string(g.Status),
		g.CreatedAt, g.ReminderSentAt, g.RespondedAt, responseJSON)
	if err != nil {
		return fmt.Errorf("insert gate: %w", err)
	}
	return nil
}

// UpdateGate implements gate.Store.
func (s *Store) UpdateGate(ctx context.Context, g *gate.Gate) error {
	if s.db == nil {
		return ErrStoreClosed
	}

	chainJSON, err := json.Marshal(g.EscalationChain)
	if err != nil {
		return fmt.Errorf("marshal escalation chain: %w", err)
	}
	contextJSON, err := marshalContext(g)
	if err != nil {
		return err
	}
	responseJSON, err := marshalResponse(g)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE gates
		SET context_json = ?, assignee = ?, escalation_chain = ?, sla_hours = ?,
		    status = ?, reminder_sent_at = ?, responded_at = ?, response_json = ?
		WHERE id = ?
	`, contextJSON, g.Assignee, string(chainJSON), g.SLAHours, string(g.Status),
		g.ReminderSentAt, g.RespondedAt, responseJSON, g.ID)
	if err != nil {
		return fmt.Errorf("update gate: %w", err)
	}
	return nil
}

// GetGate implements gate.Store; returns nil when the gate does not exist.
func (s *Store) GetGate(ctx context.Context, id string) (*gate.Gate, error) {
	if s.db == nil {
		return nil, ErrStoreClosed
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, experiment_id, outcome_id, gate_type, question, context_json, assignee, escalation_chain, sla_hours, status, created_at, reminder_sent_at, responded_at, response_json
		FROM gates
		WHERE id = ?
	`, id)

	g, err := scanGate(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get gate: %w", err)
	}
	return g, nil
}

// ListOpenGates implements gate.Store: every gate still awaiting a decision.
func (s *Store) ListOpenGates(ctx context.Context) ([]*gate.Gate, error) {
	return s.listGates(ctx, `
		SELECT id, experiment_id, outcome_id, gate_type, question, context_json, assignee, escalation_chain, sla_hours, status, created_at, reminder_sent_at, responded_at, response_json
		FROM gates
		WHERE status IN (?, ?)
		ORDER BY created_at ASC
	`, string(gate.StatusPending), string(gate.StatusDelegated))
}

// FindPendingByAssignee returns open gates currently assigned to a user.
func (s *Store) FindPendingByAssignee(ctx context.Context, assignee string) ([]*gate.Gate, error) {
	return s.listGates(ctx, `
		SELECT id, experiment_id, outcome_id, gate_type, question, context_json, assignee, escalation_chain, sla_hours, status, created_at, reminder_sent_at, responded_at, response_json
		FROM gates
		WHERE assignee = ? AND status IN (?, ?)
		ORDER BY created_at ASC
	`, assignee, string(gate.StatusPending), string(gate.StatusDelegated))
}

// ListGatesByExperiment returns every gate opened for an experiment.
func (s *Store) ListGatesByExperiment(ctx context.Context, experimentID string) ([]*gate.Gate, error) {
	return s.listGates(ctx, `
		SELECT id, experiment_id, outcome_id, gate_type, question, context_json, assignee, escalation_chain, sla_hours, status, created_at, reminder_sent_at, responded_at, response_json
		FROM gates
		WHERE experiment_id = ?
		ORDER BY created_at ASC
	`, experimentID)
}

func (s *Store) listGates(ctx context.Context, query string, args ...any) ([]*gate.Gate, error) {
	if s.db == nil {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list gates: %w", err)
	}
	defer rows.Close()

	var gates []*gate.Gate
	for rows.Next() {
		g, err := scanGate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan gate: %w", err)
		}
		gates = append(gates, g)
	}
	return gates, rows.Err()
}

func scanGate(row rowScanner) (*gate.Gate, error) {
	var g gate.Gate
	var gateType, status, chainJSON string
	var question, outcomeID, contextJSON, responseJSON sql.NullString
	var reminderSentAt, respondedAt sql.NullTime

	err := row.Scan(&g.ID, &g.ExperimentID, &outcomeID, &gateType, &question,
		&contextJSON, &g.Assignee, &chainJSON, &g.SLAHours, &status, &g.CreatedAt,
		&reminderSentAt, &respondedAt, &responseJSON)
	if err != nil {
		return nil, err
	}

	g.OutcomeID = outcomeID.String
	g.Type = gate.Type(gateType)
	g.Question = question.String
	g.Status = gate.Status(status)
	if err := json.Unmarshal([]byte(chainJSON), &g.EscalationChain); err != nil {
		return nil, fmt.Errorf("unmarshal escalation chain: %w", err)
	}
	if reminderSentAt.Valid {
		t := reminderSentAt.Time
		g.ReminderSentAt = &t
	}
	if respondedAt.Valid {
		t := respondedAt.Time
		g.RespondedAt = &t
	}
	if contextJSON.Valid && contextJSON.String != "" {
		if err := json.Unmarshal([]byte(contextJSON.String), &g.Context); err != nil {
			return nil, fmt.Errorf("unmarshal context: %w", err)
		}
	}
	if responseJSON.Valid && responseJSON.String != "" {
		var resp gate.Response
		if err := json.Unmarshal([]byte(responseJSON.String), &resp); err != nil {
			return nil, fmt.Errorf("unmarshal response: %w", err)
		}
		g.Response = &resp
	}
	return &g, nil
}

func marshalContext(g *gate.Gate) (any, error) {
	if len(g.Context) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(g.Context)
	if err != nil {
		return nil, fmt.Errorf("marshal context: %w", err)
	}
	return string(data), nil
}

func marshalResponse(g *gate.Gate) (any, error) {
	if g.Response == nil {
		return nil, nil
	}
	data, err := json.Marshal(g.Response)
	if err != nil {
		return nil, fmt.Errorf("marshal response: %w", err)
	}
	return string(data), nil
}
