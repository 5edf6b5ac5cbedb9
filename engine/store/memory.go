// Package store provides RecordSource implementations.
package store

import (
	"context"
	"sync"

	"github.com/skjhavit/mpladsanalyticsdashboard/engine"
)

// =============================================================================
// MEMORY SOURCE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory holds a dataset in process memory and answers the equality
// predicates of the storage boundary. ReplaceDataset swaps the whole
// dataset under the write lock, so concurrent readers never observe a
// half-replaced record set.
type Memory struct {
	mu   sync.RWMutex
	data engine.Dataset
}

func NewMemory() *Memory {
	return &Memory{}
}

// ReplaceDataset atomically installs a full replacement record set.
func (m *Memory) ReplaceDataset(_ context.Context, ds engine.Dataset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = ds
	return nil
}

func (m *Memory) Allocations(_ context.Context, f engine.Filter) ([]engine.AllocationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []engine.AllocationRecord
	for _, r := range m.data.Allocations {
		if match(f.MP, r.MPName) && match(f.State, r.State) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *Memory) Expenditures(_ context.Context, f engine.Filter) ([]engine.ExpenditureRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []engine.ExpenditureRecord
	for _, r := range m.data.Expenditures {
		if match(f.MP, r.MPName) && match(f.State, r.State) &&
			match(f.Vendor, r.Vendor) && match(f.Activity, r.Activity) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *Memory) Recommendations(_ context.Context, f engine.Filter) ([]engine.RecommendationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []engine.RecommendationRecord
	for _, r := range m.data.Recommendations {
		if match(f.MP, r.MPName) && match(f.State, r.State) && match(f.Activity, r.Activity) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *Memory) Completions(_ context.Context, f engine.Filter) ([]engine.CompletionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []engine.CompletionRecord
	for _, r := range m.data.Completions {
		if match(f.MP, r.MPName) && match(f.State, r.State) && match(f.Activity, r.Activity) {
			out = append(out, r)
		}
	}
	return out, nil
}

// match implements the boundary's equality predicate: an empty filter
// value means no constraint.
func match(want, got string) bool {
	return want == "" || want == got
}
