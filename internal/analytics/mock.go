package analytics

import (
	"context"
	"sync"

	"github.com/patrickwarner/creativeloop/internal/models"
)

// StaticSource is an in-memory metrics source for tests and dry runs.
type StaticSource struct {
	mu    sync.Mutex
	Rows  map[models.Window][]models.MetricRow
	Err   error
	calls map[models.Window]int
}

// NewStaticSource creates a source returning the given rows per window.
func NewStaticSource(rows map[models.Window][]models.MetricRow) *StaticSource {
	return &StaticSource{Rows: rows}
}

// Query returns the configured rows for window.
func (s *StaticSource) Query(_ context.Context, window models.Window) ([]models.MetricRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = make(map[models.Window]int)
	}
	s.calls[window]++
	if s.Err != nil {
		return nil, s.Err
	}
	return append([]models.MetricRow(nil), s.Rows[window]...), nil
}

// Calls returns how often window was queried.
func (s *StaticSource) Calls(window models.Window) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[window]
}
