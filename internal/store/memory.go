package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/loykin/dispatchr/internal/registry"
)

// Memory is an in-process Store for tests and embedding. The mutex covers
// the whole read-validate-write sequence of UpdateState, which gives the
// same per-id serializability the SQL stores get from compare-and-swap.
type Memory struct {
	mu     sync.RWMutex
	recs   map[string]registry.ProcessRecord
	lastTS time.Time

	newID func() string
	now   func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		recs:  make(map[string]registry.ProcessRecord),
		newID: uuid.NewString,
		now:   time.Now,
	}
}

func (m *Memory) EnsureSchema(_ context.Context) error { return nil }

func (m *Memory) Close() error { return nil }

func (m *Memory) Create(_ context.Context, sourceID uint32, kind registry.Kind) (registry.ProcessRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for attempt := 0; attempt < MaxIDAttempts; attempt++ {
		id := m.newID()
		if _, exists := m.recs[id]; exists {
			continue
		}
		rec := registry.ProcessRecord{
			ID:        id,
			SourceID:  sourceID,
			State:     registry.StatePending,
			Kind:      kind,
			CreatedAt: m.nextTimestamp(),
		}
		m.recs[id] = rec
		return rec, nil
	}
	return registry.ProcessRecord{}, ErrIDGenerationExhausted
}

// nextTimestamp keeps created_at strictly monotonic so list ordering stays
// stable even when two creates land in the same millisecond.
func (m *Memory) nextTimestamp() time.Time {
	ts := m.now().UTC().Truncate(time.Millisecond)
	if !ts.After(m.lastTS) {
		ts = m.lastTS.Add(time.Millisecond)
	}
	m.lastTS = ts
	return ts
}

func (m *Memory) Get(_ context.Context, id string) (registry.ProcessRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.recs[id]
	if !ok {
		return registry.ProcessRecord{}, ErrNotFound
	}
	return rec, nil
}

func (m *Memory) UpdateState(_ context.Context, id string, target registry.State) (registry.ProcessRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[id]
	if !ok {
		return registry.ProcessRecord{}, ErrNotFound
	}
	next, err := registry.Transition(rec.State, target)
	if err != nil {
		return registry.ProcessRecord{}, err
	}
	rec.State = next
	m.recs[id] = rec
	return rec, nil
}

func (m *Memory) ListBySource(_ context.Context, sourceID uint32) ([]registry.ProcessRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]registry.ProcessRecord, 0)
	for _, rec := range m.recs {
		if rec.SourceID == sourceID {
			out = append(out, rec)
		}
	}
	sortByCreation(out)
	return out, nil
}

func (m *Memory) ListByState(_ context.Context, state registry.State, limit int) ([]registry.ProcessRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]registry.ProcessRecord, 0)
	for _, rec := range m.recs {
		if rec.State == state {
			out = append(out, rec)
		}
	}
	sortByCreation(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) LatestBySource(_ context.Context, sourceID uint32) (registry.ProcessRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest registry.ProcessRecord
	found := false
	for _, rec := range m.recs {
		if rec.SourceID != sourceID {
			continue
		}
		if !found || rec.CreatedAt.After(latest.CreatedAt) {
			latest = rec
			found = true
		}
	}
	if !found {
		return registry.ProcessRecord{}, ErrNotFound
	}
	return latest, nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.recs[id]; !ok {
		return ErrNotFound
	}
	delete(m.recs, id)
	return nil
}

func sortByCreation(recs []registry.ProcessRecord) {
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].ID < recs[j].ID
		}
		return recs[i].CreatedAt.Before(recs[j].CreatedAt)
	})
}
