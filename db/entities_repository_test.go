// ABOUTME: Tests for entity and link persistence
// ABOUTME: Covers upsert, field criteria lookups, change detection and idempotent relate
package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/crmsync/models"
)

func newAccount(name, legacyID string) *models.Entity {
	e := models.NewEntity(models.KindAccount)
	e.Set(models.FieldName, name)
	if legacyID != "" {
		e.Set(models.FieldLegacyCompanyID, legacyID)
	}
	return e
}

func TestSaveCreatesAndUpdates(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	acme := newAccount("Acme", "500")
	require.NoError(t, store.Save(ctx, acme))
	require.NotEmpty(t, acme.ID)
	assert.False(t, acme.CreatedAt.IsZero())

	acme.Set(models.FieldWebsite, "acme.example")
	require.NoError(t, store.Save(ctx, acme))

	got, err := store.Get(ctx, acme.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme", got.Name)
	assert.Equal(t, "500", got.Get(models.FieldLegacyCompanyID))
	assert.Equal(t, "acme.example", got.Get(models.FieldWebsite))

	n, err := store.Count(ctx, models.KindAccount)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSaveWithoutChangesKeepsUpdatedAt(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	acme := newAccount("Acme", "500")
	require.NoError(t, store.Save(ctx, acme))
	before, err := store.Get(ctx, acme.ID)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	again := before.Clone()
	require.NoError(t, store.Save(ctx, again))

	after, err := store.Get(ctx, acme.ID)
	require.NoError(t, err)
	assert.True(t, before.UpdatedAt.Equal(after.UpdatedAt))
}

func TestSaveRejectsInvalid(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	assert.ErrorIs(t, store.Save(ctx, nil), ErrInvalidEntity)
	assert.ErrorIs(t, store.Save(ctx, models.NewEntity(models.KindAccount)), ErrInvalidEntity)

	ghost := newAccount("Ghost", "")
	ghost.ID = "does-not-exist"
	assert.ErrorIs(t, store.Save(ctx, ghost), ErrEntityNotFound)
}

func TestSaveRejectsKindChange(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	acme := newAccount("Acme", "")
	require.NoError(t, store.Save(ctx, acme))

	imposter := acme.Clone()
	imposter.Kind = models.KindPublication
	assert.ErrorIs(t, store.Save(ctx, imposter), ErrInvalidEntity)
}

func TestFindByCriteria(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, newAccount("Acme", "500")))
	require.NoError(t, store.Save(ctx, newAccount("Globex", "501")))

	found, err := store.Find(ctx, models.KindAccount, models.Criterion{Field: models.FieldLegacyCompanyID, Value: "501"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Globex", found[0].Name)

	found, err = store.Find(ctx, models.KindAccount, models.Criterion{Field: models.FieldName, Value: "ACME", IgnoreCase: true})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "500", found[0].Get(models.FieldLegacyCompanyID))

	found, err = store.Find(ctx, models.KindAccount, models.Criterion{Field: models.FieldName, Value: "ACME"})
	require.NoError(t, err)
	assert.Empty(t, found, "exact match is case sensitive")

	found, err = store.Find(ctx, models.KindContact, models.Criterion{Field: models.FieldName, Value: "Acme"})
	require.NoError(t, err)
	assert.Empty(t, found, "kind scopes the search")
}

func TestFindByPersonTriple(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	c := models.NewEntity(models.KindContact)
	c.Set(models.FieldFirstName, "Ada")
	c.Set(models.FieldLastName, "Lovelace")
	c.Set(models.FieldEmail, "ada@example.com")
	require.NoError(t, store.Save(ctx, c))

	found, err := store.Find(ctx, models.KindContact,
		models.Criterion{Field: models.FieldFirstName, Value: "ada", IgnoreCase: true},
		models.Criterion{Field: models.FieldLastName, Value: "LOVELACE", IgnoreCase: true},
		models.Criterion{Field: models.FieldEmail, Value: "Ada@Example.com", IgnoreCase: true},
	)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Ada Lovelace", found[0].Name)
}

func TestModifiedSince(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	old := newAccount("Old", "1")
	require.NoError(t, store.Save(ctx, old))
	time.Sleep(5 * time.Millisecond)
	mark := time.Now()
	time.Sleep(5 * time.Millisecond)
	fresh := newAccount("Fresh", "2")
	require.NoError(t, store.Save(ctx, fresh))

	got, err := store.ModifiedSince(ctx, models.KindAccount, mark)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, fresh.ID, got[0].ID)
}

func TestCountAll(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, newAccount("Acme", "1")))
	counts, err := store.CountAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[models.KindAccount])
	assert.Equal(t, 0, counts[models.KindOpportunity])
	assert.Len(t, counts, len(models.AllKinds))
}

func TestRelateToOneIsIdempotentAndReplaces(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	acme := newAccount("Acme", "1")
	globex := newAccount("Globex", "2")
	opp := models.NewEntity(models.KindOpportunity)
	opp.Set(models.FieldName, "Deal")
	for _, e := range []*models.Entity{acme, globex, opp} {
		require.NoError(t, store.Save(ctx, e))
	}

	changed, err := store.Relate(ctx, opp.ID, models.RelAccount, acme.ID, false)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = store.Relate(ctx, opp.ID, models.RelAccount, acme.ID, false)
	require.NoError(t, err)
	assert.False(t, changed, "relating the same pair again is a no-op")

	changed, err = store.Relate(ctx, opp.ID, models.RelAccount, globex.ID, false)
	require.NoError(t, err)
	assert.True(t, changed)

	related, err := store.Related(ctx, opp.ID, models.RelAccount)
	require.NoError(t, err)
	require.Len(t, related, 1)
	assert.Equal(t, globex.ID, related[0].ID)

	n, err := store.CountLinks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRelateToManyAdds(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	user := models.NewEntity(models.KindUser)
	user.Set(models.FieldFirstName, "Sam")
	user.Set(models.FieldLastName, "Seller")
	teamA := models.NewEntity(models.KindTeam)
	teamA.Set(models.FieldName, "A Team")
	teamB := models.NewEntity(models.KindTeam)
	teamB.Set(models.FieldName, "B Team")
	for _, e := range []*models.Entity{user, teamA, teamB} {
		require.NoError(t, store.Save(ctx, e))
	}

	for i := 0; i < 2; i++ {
		_, err := store.Relate(ctx, user.ID, models.RelTeams, teamA.ID, true)
		require.NoError(t, err)
		_, err = store.Relate(ctx, user.ID, models.RelTeams, teamB.ID, true)
		require.NoError(t, err)
	}

	teams, err := store.Related(ctx, user.ID, models.RelTeams)
	require.NoError(t, err)
	assert.Len(t, teams, 2)

	links, err := store.LinksTo(ctx, teamA.ID, models.RelTeams)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, user.ID, links[0].OwnerID)

	from, err := store.LinksFrom(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, from, 2)
}

func TestRelateRejectsEmpty(t *testing.T) {
	store := setupTestStore(t)
	_, err := store.Relate(context.Background(), "", models.RelAccount, "x", false)
	assert.ErrorIs(t, err, ErrInvalidLink)
}
