package charm

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/crmsync/db"
	"github.com/harperreed/crmsync/models"
	crmsync "github.com/harperreed/crmsync/sync"
)

var _ crmsync.WatermarkStore = (*WatermarkStore)(nil)

func TestWatermarkMissing(t *testing.T) {
	store := NewWatermarkStore(NewTestClient(t))

	_, ok, err := store.GetWatermark(context.Background(), "companies")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWatermarkRoundTrip(t *testing.T) {
	store := NewWatermarkStore(NewTestClient(t))
	ctx := context.Background()
	at := time.Date(2026, 2, 14, 10, 11, 12, 123456789, time.FixedZone("CET", 3600))

	require.NoError(t, store.SetWatermark(ctx, "contacts", at))
	got, ok, err := store.GetWatermark(ctx, "contacts")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Equal(at))

	later := at.Add(time.Hour)
	require.NoError(t, store.SetWatermark(ctx, "contacts", later))
	got, _, err = store.GetWatermark(ctx, "contacts")
	require.NoError(t, err)
	assert.True(t, got.Equal(later))
}

func TestListAndResetWatermarks(t *testing.T) {
	c := NewTestClient(t)
	store := NewWatermarkStore(c)
	ctx := context.Background()
	at := time.Date(2026, 2, 14, 10, 0, 0, 0, time.UTC)

	require.NoError(t, store.SetWatermark(ctx, "companies", at))
	require.NoError(t, store.SetWatermark(ctx, "staff", at))
	require.NoError(t, c.Set([]byte("unrelated"), []byte("x")))

	marks, err := store.ListWatermarks(ctx)
	require.NoError(t, err)
	assert.Len(t, marks, 2)
	assert.Contains(t, marks, "companies")

	require.NoError(t, store.ResetWatermark(ctx, "companies"))
	_, ok, err := store.GetWatermark(ctx, "companies")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, resetWatermarks(ctx, store, ""))
	marks, err = store.ListWatermarks(ctx)
	require.NoError(t, err)
	assert.Empty(t, marks)

	value, err := c.Get([]byte("unrelated"))
	require.NoError(t, err)
	assert.Equal(t, "x", string(value))
}

func TestWatermarkCorruptValue(t *testing.T) {
	c := NewTestClient(t)
	require.NoError(t, c.Set([]byte(watermarkPrefix+"companies"), []byte("yesterday")))

	_, _, err := NewWatermarkStore(c).GetWatermark(context.Background(), "companies")
	assert.Error(t, err)
}

type staticSource struct {
	items map[string][]interface{}
}

func (s staticSource) Fetch(_ context.Context, category string, _ *time.Time) (*crmsync.Batch, error) {
	return crmsync.ParseRecords(category, s.items[category])
}

func TestEngineAdvancesCharmWatermarks(t *testing.T) {
	database, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	database.SetMaxOpenConns(1)
	require.NoError(t, db.InitSchema(database))
	t.Cleanup(func() { _ = database.Close() })
	entities := db.NewStore(database, db.DialectSQLite)

	marks := NewWatermarkStore(NewTestClient(t))
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	engine := crmsync.NewEngine(crmsync.Options{
		Source: staticSource{items: map[string][]interface{}{
			crmsync.CategoryCompanies: {map[string]interface{}{"legacyCompanyId": "500", "name": "Acme"}},
		}},
		Store:      entities,
		Watermarks: marks,
		Journal:    entities,
		Now:        func() time.Time { return now },
	})

	report, err := engine.Run(context.Background(), "test")
	require.NoError(t, err)
	assert.Equal(t, 1, report.TotalSuccess)

	got, ok, err := marks.GetWatermark(context.Background(), crmsync.CategoryCompanies)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Equal(now))

	_, ok, err = marks.GetWatermark(context.Background(), crmsync.CategoryContacts)
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := entities.Count(context.Background(), models.KindAccount)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
