package sync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/crmsync/models"
)

func TestQueueManualSyncDoesNotDoubleQueue(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	saveEntity(t, env.store, models.KindUser, models.FieldFirstName, "Sam", models.FieldLastName, "Smith", models.FieldLegacyStaffID, "s1")
	actor := models.Actor{ID: "sam", LegacyStaffID: "s1"}

	first, err := env.engine.QueueManualSync(ctx, actor)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, "Sam Smith", first[0].Account)
	assert.Equal(t, ManualQueued, first[0].Status)
	require.NotEmpty(t, first[0].JobID)

	second, err := env.engine.QueueManualSync(ctx, actor)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, ManualPending, second[0].Status)
	assert.Equal(t, first[0].JobID, second[0].JobID)

	jobs, err := env.store.PendingJobs(ctx)
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestQueueManualSyncNeedsStaffID(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.engine.QueueManualSync(context.Background(), models.Actor{ID: "admin", Admin: true})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = env.engine.RunManualSync(context.Background(), models.Actor{ID: "admin"})
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestProcessJobsRunsOwnOpportunities(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	saveEntity(t, env.store, models.KindUser, models.FieldFirstName, "Sam", models.FieldLastName, "Smith", models.FieldLegacyStaffID, "s1")
	env.source.items[CategoryOpportunities] = items(
		item("legacyId", "o1", "staffId", "s1"),
		item("legacyId", "o2", "staffId", "s2"),
	)

	_, err := env.engine.QueueManualSync(ctx, models.Actor{ID: "sam", LegacyStaffID: "s1"})
	require.NoError(t, err)

	n, err := env.engine.ProcessJobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.Len(t, env.source.calls, 1)
	assert.Nil(t, env.source.calls[0].since, "manual sync ignores watermarks")

	findOne(t, env.store, models.KindOpportunity, models.FieldLegacyLeadID, "o1")
	others, err := env.store.Find(ctx, models.KindOpportunity, models.Criterion{Field: models.FieldLegacyLeadID, Value: "o2"})
	require.NoError(t, err)
	assert.Empty(t, others)

	pending, err := env.store.PendingJobs(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
	jobs, err := env.store.ListJobs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, models.JobDone, jobs[0].Status)

	_, ok, err := env.store.GetWatermark(ctx, CategoryOpportunities)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRunManualSync(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sam := saveEntity(t, env.store, models.KindUser, models.FieldFirstName, "Sam", models.FieldLastName, "Smith", models.FieldLegacyStaffID, "s1")
	env.source.items[CategoryOpportunities] = items(
		item("legacyId", "o1", "staffId", "s1", "companyId", "500"),
		item("legacyId", "o2", "staffId", "s2"),
	)

	tally, err := env.engine.RunManualSync(ctx, models.Actor{ID: "sam", LegacyStaffID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, 1, tally.Succeeded)
	assert.Equal(t, 1, tally.Deferred, "account 500 is unknown")

	opp := findOne(t, env.store, models.KindOpportunity, models.FieldLegacyLeadID, "o1")
	assigned, err := env.store.Related(ctx, opp.ID, models.RelAssignedUser)
	require.NoError(t, err)
	require.Len(t, assigned, 1)
	assert.Equal(t, sam.ID, assigned[0].ID)
}
