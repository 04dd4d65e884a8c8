// ABOUTME: Tests for watermark, run history and job queue persistence
// ABOUTME: Verifies round trips, status updates and single pending job per target
package db

import (
	"context"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/crmsync/models"
)

func TestWatermarkRoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, ok, err := store.GetWatermark(ctx, "companies")
	require.NoError(t, err)
	assert.False(t, ok)

	mark := time.Date(2025, 3, 4, 5, 6, 7, 123456789, time.UTC)
	require.NoError(t, store.SetWatermark(ctx, "companies", mark))

	got, ok, err := store.GetWatermark(ctx, "companies")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, mark.Equal(got))
}

func TestSyncStatusKeepsWatermark(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	mark := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.SetWatermark(ctx, "staff", mark))
	require.NoError(t, store.SetSyncStatus(ctx, "staff", StatusError, "legacy feed down"))
	require.NoError(t, store.SetSyncStatus(ctx, "contacts", StatusSyncing, ""))

	marks, err := store.ListWatermarks(ctx)
	require.NoError(t, err)
	require.Len(t, marks, 2)

	assert.Equal(t, "contacts", marks[0].Category)
	assert.Nil(t, marks[0].LastSyncTime)
	assert.Equal(t, StatusSyncing, marks[0].Status)

	assert.Equal(t, "staff", marks[1].Category)
	require.NotNil(t, marks[1].LastSyncTime)
	assert.True(t, mark.Equal(*marks[1].LastSyncTime))
	assert.Equal(t, StatusError, marks[1].Status)
	assert.Equal(t, "legacy feed down", marks[1].ErrorMessage)
}

func TestRunHistory(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	last, err := store.LastRun(ctx)
	require.NoError(t, err)
	assert.Nil(t, last)

	first, err := store.StartRun(ctx, "daemon", time.Now().Add(-time.Minute))
	require.NoError(t, err)
	_, err = ulid.Parse(first.ID)
	require.NoError(t, err)

	second, err := store.StartRun(ctx, "manual", time.Now())
	require.NoError(t, err)
	second.Succeeded = 3
	second.Failed = 1
	second.Error = "store unavailable"
	require.NoError(t, store.FinishRun(ctx, second))

	last, err = store.LastRun(ctx)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, second.ID, last.ID)
	assert.Equal(t, "manual", last.Trigger)
	assert.Equal(t, 3, last.Succeeded)
	assert.Equal(t, 1, last.Failed)
	assert.Equal(t, "store unavailable", last.Error)
	assert.NotNil(t, last.FinishedAt)

	runs, err := store.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Nil(t, runs[1].FinishedAt)
}

func TestEnqueueJobDoesNotDoubleQueue(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	job, created, err := store.EnqueueJob(ctx, "User", "u1")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, models.JobPending, job.Status)

	again, created, err := store.EnqueueJob(ctx, "User", "u1")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, job.ID, again.ID)

	pending, err := store.PendingJobs(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	require.NoError(t, store.FinishJob(ctx, job.ID, models.JobDone, ""))
	pending, err = store.PendingJobs(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	next, created, err := store.EnqueueJob(ctx, "User", "u1")
	require.NoError(t, err)
	assert.True(t, created, "a finished job does not block a new one")
	assert.NotEqual(t, job.ID, next.ID)

	all, err := store.ListJobs(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestFinishUnknownJob(t *testing.T) {
	store := setupTestStore(t)
	err := store.FinishJob(context.Background(), "nope", models.JobDone, "")
	assert.ErrorIs(t, err, ErrJobNotFound)
}
