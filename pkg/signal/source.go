// Package signal defines the contract for fetching production metrics from
// external analytics systems.
package signal

import (
	"context"
	"sync"
	"time"

	"github.com/odvcencio/northstar/pkg/errors"
)

// Sample is one observation of a metric.
type Sample struct {
	Value      float64   `json:"value"`
	SampleSize int       `json:"sample_size,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// TimeRange bounds a metric query.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Source fetches metric values from an analytics backend. Implementations
// live outside the coordination core; fetch failures are transient and the
// callers treat them as "no data".
type Source interface {
	FetchMetric(ctx context.Context, metric string, tr TimeRange, segment string) (*Sample, error)
}

// StaticSource serves fixed values, keyed by metric name. Used in tests and
// local development.
type StaticSource struct {
	mu      sync.RWMutex
	samples map[string]Sample
	err     error
}

// NewStaticSource creates an empty static source.
func NewStaticSource() *StaticSource {
	return &StaticSource{samples: make(map[string]Sample)}
}

// Set stores the sample returned for a metric.
func (s *StaticSource) Set(metric string, value float64, sampleSize int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples[metric] = Sample{
		Value:      value,
		SampleSize: sampleSize,
		Timestamp:  time.Now(),
	}
}

// Fail makes every subsequent fetch return err. Pass nil to heal.
func (s *StaticSource) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// FetchMetric implements Source.
func (s *StaticSource) FetchMetric(ctx context.Context, metric string, _ TimeRange, _ string) (*Sample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.err != nil {
		return nil, s.err
	}

	sample, ok := s.samples[metric]
	if !ok {
		return nil, errors.New(errors.ErrCodeSignalFetch, "metric not found").
			WithContext("metric", metric).
			WithRetryable(true)
	}
	return &sample, nil
}
