package db

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/patrickwarner/creativeloop/internal/models"
)

// MemoryStore is an in-memory ad performance and hook clip store. It mirrors the
// Postgres semantics (insertion order, merge-upsert, counters) and backs tests
// and local dry runs.
type MemoryStore struct {
	mu       sync.RWMutex
	ads      map[string]*models.AdPerformance
	order    []string
	clips    map[string]models.HookClip
	counters map[string]int64
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		ads:      make(map[string]*models.AdPerformance),
		clips:    make(map[string]models.HookClip),
		counters: make(map[string]int64),
	}
}

// GetAllActive returns copies of the active records in insertion order.
func (m *MemoryStore) GetAllActive(ctx context.Context) ([]*models.AdPerformance, error) {
	return m.List(ctx, true)
}

// List returns copies of all records, or only active ones, in insertion order.
func (m *MemoryStore) List(_ context.Context, activeOnly bool) ([]*models.AdPerformance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.AdPerformance, 0, len(m.order))
	for _, id := range m.order {
		ad := m.ads[id]
		if activeOnly && !ad.Lifecycle.Active() {
			continue
		}
		out = append(out, ad.Clone())
	}
	return out, nil
}

// Get returns a copy of the record for adID.
func (m *MemoryStore) Get(_ context.Context, adID string) (*models.AdPerformance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ad, ok := m.ads[adID]
	if !ok {
		return nil, models.ErrNotFound
	}
	return ad.Clone(), nil
}

// Save stores a copy of the record, keeping the original creation time.
func (m *MemoryStore) Save(_ context.Context, ad *models.AdPerformance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := ad.Clone()
	if existing, ok := m.ads[ad.FBAdID]; ok {
		if !existing.CreatedAt.IsZero() {
			c.CreatedAt = existing.CreatedAt
		}
	} else {
		m.order = append(m.order, ad.FBAdID)
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	m.ads[ad.FBAdID] = c
	return nil
}

// Delete removes a record.
func (m *MemoryStore) Delete(_ context.Context, adID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.ads[adID]; !ok {
		return models.ErrNotFound
	}
	delete(m.ads, adID)
	for i, id := range m.order {
		if id == adID {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

// NextCounter increments and returns the named counter.
func (m *MemoryStore) NextCounter(_ context.Context, name string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[name]++
	return m.counters[name], nil
}

// ListHookClips returns the active hook clips ordered by name.
func (m *MemoryStore) ListHookClips(_ context.Context) ([]models.HookClip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.HookClip
	for _, c := range m.clips {
		if c.Active {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// UpsertHookClip inserts or updates a hook clip.
func (m *MemoryStore) UpsertHookClip(_ context.Context, c models.HookClip) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clips[c.Name] = c
	return nil
}

// Len returns the number of stored records.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.ads)
}
