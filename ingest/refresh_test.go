package ingest_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skjhavit/mpladsanalyticsdashboard/engine"
	"github.com/skjhavit/mpladsanalyticsdashboard/engine/store"
	"github.com/skjhavit/mpladsanalyticsdashboard/ingest"
	"github.com/skjhavit/mpladsanalyticsdashboard/jobs"
)

// fakeFetcher serves canned tile payloads, or fails a named tile.
type fakeFetcher struct {
	payloads map[string][]byte
	failOn   string
}

func (f *fakeFetcher) FetchTile(_ context.Context, t ingest.Tile) ([]byte, error) {
	if t.Name == f.failOn {
		return nil, errors.New("upstream returned 503")
	}
	return f.payloads[t.Name], nil
}

func cannedTiles(t *testing.T) map[string][]byte {
	t.Helper()
	payloads := make(map[string][]byte, len(ingest.Tiles))
	rows := map[string][]map[string]any{
		"allocated_limit": {
			{"MP_NAME": "Asha Rao", "STATE_NAME": "Kerala", "ALLOCATED_AMT": 1000},
		},
		"total_expenditure": {
			{"MP_NAME": "Asha Rao", "STATE_NAME": "Kerala", "VENDOR_NAME": "Acme",
				"FUND_DISBURSED_AMT": 400, "EXPENDITURE_DATE": "06-Oct-2025"},
		},
		"total_works_recommended": nil,
		"total_works_completed":   nil,
	}
	for _, tile := range ingest.Tiles {
		inner, err := json.Marshal(rows[tile.Name])
		require.NoError(t, err)
		outer, err := json.Marshal(map[string]string{tile.Key: string(inner)})
		require.NoError(t, err)
		payloads[tile.Name] = outer
	}
	return payloads
}

func TestRefresher_Run_SwapsDataset(t *testing.T) {
	// GIVEN: A fetcher with canned tiles and an empty store
	// WHEN: Running a refresh
	// THEN: The store holds the new dataset

	mem := store.NewMemory()
	r := ingest.NewRefresher(&fakeFetcher{payloads: cannedTiles(t)}, mem, jobs.NewMemory())

	require.NoError(t, r.Run(context.Background()))

	allocs, err := mem.Allocations(context.Background(), engine.Filter{})
	require.NoError(t, err)
	require.Len(t, allocs, 1)
	assert.Equal(t, "Asha Rao", allocs[0].MPName)
}

func TestRefresher_Run_FetchFailureLeavesStoreUntouched(t *testing.T) {
	mem := store.NewMemory()
	r := ingest.NewRefresher(
		&fakeFetcher{payloads: cannedTiles(t), failOn: "total_expenditure"},
		mem, jobs.NewMemory(),
	)

	err := r.Run(context.Background())
	require.Error(t, err)

	allocs, aerr := mem.Allocations(context.Background(), engine.Filter{})
	require.NoError(t, aerr)
	assert.Empty(t, allocs, "failed refresh must not partially apply")
}

func TestRefresher_Start_TracksJobToCompletion(t *testing.T) {
	// GIVEN: A background refresh started through the registry
	// WHEN: Polling the job
	// THEN: It ends in the succeeded state

	reg := jobs.NewMemory()
	r := ingest.NewRefresher(&fakeFetcher{payloads: cannedTiles(t)}, store.NewMemory(), reg)

	job, err := r.Start(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, job.ID)

	require.Eventually(t, func() bool {
		got, gerr := reg.Get(context.Background(), job.ID)
		return gerr == nil && got.State == jobs.StateSucceeded
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRefresher_Start_RecordsFailure(t *testing.T) {
	reg := jobs.NewMemory()
	r := ingest.NewRefresher(
		&fakeFetcher{payloads: cannedTiles(t), failOn: "allocated_limit"},
		store.NewMemory(), reg,
	)

	job, err := r.Start(context.Background())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, gerr := reg.Get(context.Background(), job.ID)
		return gerr == nil && got.State == jobs.StateFailed
	}, 2*time.Second, 10*time.Millisecond)

	got, err := reg.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Contains(t, got.Error, "503")
}
