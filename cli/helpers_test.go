package cli

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/crmsync/config"
	"github.com/harperreed/crmsync/db"
	crmsync "github.com/harperreed/crmsync/sync"
)

type staticSource struct {
	items map[string][]interface{}
	fail  map[string]bool
}

func (s staticSource) Fetch(_ context.Context, category string, _ *time.Time) (*crmsync.Batch, error) {
	if s.fail[category] {
		return nil, errors.New("legacy system down")
	}
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

// newTestApp wires an App over an in-memory store and returns its output buffer.
func newTestApp(t *testing.T, source crmsync.Source) (*App, *bytes.Buffer) {
	t.Helper()
	database, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	database.SetMaxOpenConns(1)
	require.NoError(t, db.InitSchema(database))
	store := db.NewStore(database, db.DialectSQLite)

	logger := log.New()
	logger.SetOutput(io.Discard)

	app := assemble(config.Default(), logger, store, source, store, crmsync.DefaultSince)
	out := &bytes.Buffer{}
	app.Out = out
	t.Cleanup(func() { _ = app.Close() })
	return app, out
}
