package storage

import (
	"context"
	"fmt"

	"github.com/odvcencio/northstar/pkg/stats"
)

// AppendMeasurement records one sample for an experiment. Streams are
// append-only.
func (s *Store) AppendMeasurement(ctx context.Context, experimentID string, m stats.Measurement) error {
	if s.db == nil {
		return ErrStoreClosed
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO measurements (experiment_id, variant, value, recorded_at)
		VALUES (?, ?, ?, ?)
	`, experimentID, string(m.Variant), m.Value, m.Timestamp)
	if err != nil {
		return fmt.Errorf("insert measurement: %w", err)
	}
	return nil
}

// Measurements returns an experiment's full measurement stream in recording
// order. Implements the monitor's feed contract.
func (s *Store) Measurements(ctx context.Context, experimentID string) ([]stats.Measurement, error) {
	if s.db == nil {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT variant, value, recorded_at
		FROM measurements
		WHERE experiment_id = ?
		ORDER BY id ASC
	`, experimentID)
	if err != nil {
		return nil, fmt.Errorf("list measurements: %w", err)
	}
	defer rows.Close()

	var measurements []stats.Measurement
	for rows.Next() {
		var m stats.Measurement
		var variant string
		if err := rows.Scan(&variant, &m.Value, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan measurement: %w", err)
		}
		m.Variant = stats.Variant(variant)
		measurements = append(measurements, m)
	}
	return measurements, rows.Err()
}
