/*
refresh.go - The one background job: full dataset refresh

A refresh fetches all four tiles, builds a replacement dataset, and
hands it to the store for an atomic swap. Runs are tracked in the job
registry so callers can trigger a refresh and poll its state.
*/
package ingest

import (
	"context"
	"log"

	"github.com/skjhavit/mpladsanalyticsdashboard/engine"
	"github.com/skjhavit/mpladsanalyticsdashboard/jobs"
)

// JobKindRefresh is the registry kind for dataset refresh runs.
const JobKindRefresh = "dataset_refresh"

// Fetcher downloads one tile. Satisfied by *Client; tests substitute
// canned payloads.
type Fetcher interface {
	FetchTile(ctx context.Context, t Tile) ([]byte, error)
}

// DatasetStore is the slice of the storage boundary a refresh needs.
type DatasetStore interface {
	ReplaceDataset(ctx context.Context, ds engine.Dataset) error
}

// Refresher orchestrates fetch -> decode -> atomic swap.
type Refresher struct {
	Fetcher  Fetcher
	Store    DatasetStore
	Registry jobs.Registry
}

func NewRefresher(f Fetcher, store DatasetStore, reg jobs.Registry) *Refresher {
	return &Refresher{Fetcher: f, Store: store, Registry: reg}
}

// Run performs one synchronous refresh.
func (r *Refresher) Run(ctx context.Context) error {
	tiles := make(map[string][]byte, len(Tiles))
	for _, t := range Tiles {
		raw, err := r.Fetcher.FetchTile(ctx, t)
		if err != nil {
			return err
		}
		tiles[t.Name] = raw
	}

	ds, err := BuildDataset(tiles)
	if err != nil {
		return err
	}
	return r.Store.ReplaceDataset(ctx, ds)
}

// Start registers a refresh job and runs it in the background. The run
// deliberately detaches from the caller's context: an admin request
// that triggers a refresh should not abort it by disconnecting.
func (r *Refresher) Start(ctx context.Context) (*jobs.Job, error) {
	job, err := r.Registry.Create(ctx, JobKindRefresh)
	if err != nil {
		return nil, err
	}

	go func() {
		bg := context.Background()
		runErr := r.Run(bg)
		if runErr != nil {
			log.Printf("refresh job %s failed: %v", job.ID, runErr)
		}
		if err := r.Registry.Complete(bg, job.ID, runErr); err != nil {
			log.Printf("refresh job %s: record completion: %v", job.ID, err)
		}
	}()

	return job, nil
}
