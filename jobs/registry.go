/*
Package jobs tracks background refresh jobs.

The system has exactly one long-running job kind - the dataset refresh -
but the registry is an explicit, injected abstraction with a defined
lifecycle (create, poll, complete) rather than a hidden global map.
State lives in process memory and is lost on restart; durability is a
known open requirement.
*/
package jobs

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is a job's lifecycle position: running -> succeeded | failed.
type State string

const (
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// ErrJobNotFound is returned when polling an unknown job id.
var ErrJobNotFound = errors.New("job not found")

// Job is one tracked background run.
type Job struct {
	ID         string     `json:"id"`
	Kind       string     `json:"kind"`
	State      State      `json:"state"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// Registry is the lifecycle contract handed to job runners and pollers.
type Registry interface {
	Create(ctx context.Context, kind string) (*Job, error)
	Complete(ctx context.Context, id string, runErr error) error
	Get(ctx context.Context, id string) (*Job, error)
	List(ctx context.Context) ([]*Job, error)
}

// =============================================================================
// MEMORY REGISTRY
// =============================================================================

// Memory is the in-process Registry implementation.
type Memory struct {
	mu   sync.RWMutex
	jobs map[string]*Job
	now  func() time.Time
}

func NewMemory() *Memory {
	return &Memory{jobs: make(map[string]*Job), now: time.Now}
}

// WithClock replaces the wall clock for deterministic tests.
func (m *Memory) WithClock(clock func() time.Time) *Memory {
	m.now = clock
	return m
}

func (m *Memory) Create(_ context.Context, kind string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job := &Job{
		ID:        uuid.NewString(),
		Kind:      kind,
		State:     StateRunning,
		StartedAt: m.now(),
	}
	m.jobs[job.ID] = job
	out := *job
	return &out, nil
}

func (m *Memory) Complete(_ context.Context, id string, runErr error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	done := m.now()
	job.FinishedAt = &done
	if runErr != nil {
		job.State = StateFailed
		job.Error = runErr.Error()
	} else {
		job.State = StateSucceeded
	}
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	out := *job
	return &out, nil
}

func (m *Memory) List(_ context.Context) ([]*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		j := *job
		out = append(out, &j)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out, nil
}
