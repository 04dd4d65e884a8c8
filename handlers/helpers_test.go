package handlers

import (
	"context"
	"database/sql"
	"io"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/crmsync/db"
	crmsync "github.com/harperreed/crmsync/sync"
)

var testNow = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

type staticSource struct {
	items map[string][]interface{}
}

func (s staticSource) Fetch(_ context.Context, category string, _ *time.Time) (*crmsync.Batch, error) {
	return crmsync.ParseRecords(category, s.items[category])
}

func obj(kv ...string) map[string]interface{} {
	m := make(map[string]interface{}, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		m[kv[i]] = kv[i+1]
	}
	return m
}

func fullFeed() map[string][]interface{} {
	return map[string][]interface{}{
		crmsync.CategoryCompanies:       {obj("legacyCompanyId", "500", "name", "Acme")},
		crmsync.CategoryContacts:        {obj("legacyId", "c1", "firstName", "Jane", "lastName", "Doe", "companyId", "500")},
		crmsync.CategoryPublications:    {obj("legacyId", "p1", "name", "Gazette", "salesManagerId", "s1")},
		crmsync.CategoryStaff:           {obj("legacyId", "s1", "firstName", "Sam", "lastName", "Smith")},
		crmsync.CategoryTeamAssignments: {obj("staffId", "s1", "publicationId", "p1", "homePub", "1")},
		crmsync.CategoryOpportunities:   {obj("legacyId", "o1", "statusId", "6", "companyId", "500", "staffId", "s1", "publicationId", "p1")},
	}
}

func setupTestDB(t *testing.T) *db.Store {
	t.Helper()
	database, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	database.SetMaxOpenConns(1)
	require.NoError(t, db.InitSchema(database))
	t.Cleanup(func() { _ = database.Close() })
	return db.NewStore(database, db.DialectSQLite)
}

func setupRunner(t *testing.T, feed map[string][]interface{}) (*crmsync.Runner, *db.Store) {
	t.Helper()
	store := setupTestDB(t)
	logger := log.New()
	logger.SetOutput(io.Discard)
	engine := crmsync.NewEngine(crmsync.Options{
		Source:     staticSource{items: feed},
		Store:      store,
		Watermarks: store,
		Journal:    store,
		Now:        func() time.Time { return testNow },
		Logger:     logger,
	})
	return crmsync.NewRunner(engine), store
}
