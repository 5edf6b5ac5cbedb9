package jobs_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skjhavit/mpladsanalyticsdashboard/jobs"
)

func TestRegistry_Lifecycle_Success(t *testing.T) {
	// GIVEN: A created job
	// WHEN: Completing it without an error
	// THEN: It transitions running -> succeeded with a finish time

	reg := jobs.NewMemory()
	ctx := context.Background()

	job, err := reg.Create(ctx, "dataset_refresh")
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, jobs.StateRunning, job.State)
	assert.Nil(t, job.FinishedAt)

	require.NoError(t, reg.Complete(ctx, job.ID, nil))

	got, err := reg.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StateSucceeded, got.State)
	assert.NotNil(t, got.FinishedAt)
	assert.Empty(t, got.Error)
}

func TestRegistry_Lifecycle_Failure(t *testing.T) {
	reg := jobs.NewMemory()
	ctx := context.Background()

	job, err := reg.Create(ctx, "dataset_refresh")
	require.NoError(t, err)

	require.NoError(t, reg.Complete(ctx, job.ID, errors.New("upstream returned 503")))

	got, err := reg.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StateFailed, got.State)
	assert.Equal(t, "upstream returned 503", got.Error)
}

func TestRegistry_UnknownJob(t *testing.T) {
	reg := jobs.NewMemory()
	ctx := context.Background()

	_, err := reg.Get(ctx, "no-such-id")
	assert.ErrorIs(t, err, jobs.ErrJobNotFound)

	err = reg.Complete(ctx, "no-such-id", nil)
	assert.ErrorIs(t, err, jobs.ErrJobNotFound)
}

func TestRegistry_ListNewestFirst(t *testing.T) {
	// GIVEN: Jobs created at advancing times
	// WHEN: Listing
	// THEN: Newest first

	clock := time.Date(2025, time.October, 1, 12, 0, 0, 0, time.UTC)
	reg := jobs.NewMemory().WithClock(func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	})
	ctx := context.Background()

	first, err := reg.Create(ctx, "dataset_refresh")
	require.NoError(t, err)
	second, err := reg.Create(ctx, "dataset_refresh")
	require.NoError(t, err)

	list, err := reg.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)
}

func TestRegistry_ReturnsCopies(t *testing.T) {
	// Mutating a returned job must not leak into the registry.
	reg := jobs.NewMemory()
	ctx := context.Background()

	job, err := reg.Create(ctx, "dataset_refresh")
	require.NoError(t, err)
	job.State = jobs.StateFailed

	got, err := reg.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StateRunning, got.State)
}
