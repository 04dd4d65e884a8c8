package sync

import (
	"context"
	"database/sql"
	"io"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/crmsync/db"
	"github.com/harperreed/crmsync/models"
)

var testNow = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

func setupStore(t *testing.T) *db.Store {
	t.Helper()
	database, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	database.SetMaxOpenConns(1)
	require.NoError(t, db.InitSchema(database))
	t.Cleanup(func() { _ = database.Close() })
	return db.NewStore(database, db.DialectSQLite)
}

func quietLogger() *log.Logger {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return logger
}

type fetchCall struct {
	category string
	since    *time.Time
}

// fakeSource serves canned feed items per category.
type fakeSource struct {
	items map[string][]interface{}
	errs  map[string]error
	calls []fetchCall
}

func newFakeSource() *fakeSource {
	return &fakeSource{items: map[string][]interface{}{}, errs: map[string]error{}}
}

func (f *fakeSource) Fetch(_ context.Context, category string, since *time.Time) (*Batch, error) {
	f.calls = append(f.calls, fetchCall{category: category, since: since})
	if err := f.errs[category]; err != nil {
		return nil, sourceError(category, err)
	}
	return ParseRecords(category, f.items[category])
}

func (f *fakeSource) fetched(category string) int {
	n := 0
	for _, c := range f.calls {
		if c.category == category {
			n++
		}
	}
	return n
}

type testEnv struct {
	store  *db.Store
	source *fakeSource
	engine *Engine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := setupStore(t)
	source := newFakeSource()
	engine := NewEngine(Options{
		Source:     source,
		Store:      store,
		Watermarks: store,
		Journal:    store,
		Now:        func() time.Time { return testNow },
		Logger:     quietLogger(),
	})
	return &testEnv{store: store, source: source, engine: engine}
}

func item(kv ...string) map[string]interface{} {
	m := make(map[string]interface{}, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		m[kv[i]] = kv[i+1]
	}
	return m
}

func items(objs ...map[string]interface{}) []interface{} {
	out := make([]interface{}, len(objs))
	for i, o := range objs {
		out[i] = o
	}
	return out
}

func record(kv ...string) Record {
	r := make(Record, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		r[kv[i]] = kv[i+1]
	}
	return r
}

func findOne(t *testing.T, store *db.Store, kind models.Kind, field, value string) *models.Entity {
	t.Helper()
	found, err := store.Find(context.Background(), kind, models.Criterion{Field: field, Value: value})
	require.NoError(t, err)
	require.Len(t, found, 1, "%s with %s=%s", kind, field, value)
	return found[0]
}

func saveEntity(t *testing.T, store *db.Store, kind models.Kind, kv ...string) *models.Entity {
	t.Helper()
	e := models.NewEntity(kind)
	for i := 0; i+1 < len(kv); i += 2 {
		e.Set(kv[i], kv[i+1])
	}
	require.NoError(t, store.Save(context.Background(), e))
	return e
}
