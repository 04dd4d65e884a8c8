package sync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/crmsync/models"
)

func TestResolveByLegacyIDFirst(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	byName := saveEntity(t, store, models.KindAccount, models.FieldName, "Acme")
	byID := saveEntity(t, store, models.KindAccount, models.FieldName, "Acme Holdings", models.FieldLegacyCompanyID, "500")

	got, tierName, err := NewResolver(store).Resolve(ctx, models.KindAccount, record("legacyCompanyId", "500", "name", "Acme"))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, byID.ID, got.ID)
	assert.Equal(t, "legacy id", tierName)
	assert.NotEqual(t, byName.ID, got.ID)
}

func TestResolveContactTiers(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	r := NewResolver(store)
	withEmail := saveEntity(t, store, models.KindContact,
		models.FieldFirstName, "Jane", models.FieldLastName, "Doe", models.FieldEmail, "jane@acme.test")

	got, tierName, err := r.Resolve(ctx, models.KindContact, record("legacyId", "c1", "firstName", "jane", "lastName", "DOE", "email", "Jane@Acme.test"))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, withEmail.ID, got.ID)
	assert.Equal(t, "name and email", tierName)

	got, tierName, err = r.Resolve(ctx, models.KindContact, record("legacyId", "c2", "firstName", "Jane", "lastName", "Doe"))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "first and last name", tierName)

	got, _, err = r.Resolve(ctx, models.KindContact, record("legacyId", "c3", "firstName", "John", "lastName", "Roe"))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestResolveSkipsClaimedEntities(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	saveEntity(t, store, models.KindUser,
		models.FieldFirstName, "Sam", models.FieldLastName, "Smith", models.FieldLegacyStaffID, "s1")
	free := saveEntity(t, store, models.KindUser,
		models.FieldFirstName, "Sam", models.FieldLastName, "Smith")

	got, _, err := NewResolver(store).Resolve(ctx, models.KindUser, record("legacyId", "s2", "firstName", "Sam", "lastName", "Smith"))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, free.ID, got.ID)
}

func TestResolveUserByEmail(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	u := saveEntity(t, store, models.KindUser,
		models.FieldFirstName, "Samantha", models.FieldLastName, "Smith", models.FieldEmail, "sam@paper.test")

	got, tierName, err := NewResolver(store).Resolve(ctx, models.KindUser, record("legacyId", "s1", "firstName", "Sam", "lastName", "Smith", "email", "sam@paper.test"))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, "email", tierName)
}

func TestResolveOpportunityOnlyByLegacyID(t *testing.T) {
	store := setupStore(t)
	saveEntity(t, store, models.KindOpportunity, models.FieldName, "Spring campaign")

	got, _, err := NewResolver(store).Resolve(context.Background(), models.KindOpportunity, record("legacyId", "o1", "name", "Spring campaign"))
	require.NoError(t, err)
	assert.Nil(t, got)
}
