package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/crmsync/models"
)

func loadFullFeed(src *fakeSource) {
	src.items[CategoryCompanies] = items(item("legacyCompanyId", "500", "name", "Acme", "telephone", "555-0100"))
	src.items[CategoryContacts] = items(item("legacyId", "c1", "firstName", "Jane", "lastName", "Doe", "email", "jane@acme.test", "companyId", "500"))
	src.items[CategoryPublications] = items(item("legacyId", "p1", "name", "Gazette", "salesManagerId", "s1"))
	src.items[CategoryStaff] = items(item("legacyId", "s1", "firstName", "Sam", "lastName", "Smith", "email", "sam@paper.test", "homePublicationId", "p1"))
	src.items[CategoryTeamAssignments] = items(item("staffId", "s1", "publicationId", "p1", "homePub", "1"))
	src.items[CategoryOpportunities] = items(item("legacyId", "o1", "statusId", "6", "companyId", "500", "staffId", "s1", "publicationId", "p1"))
}

func TestRunCreatesAndLinksEverything(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	loadFullFeed(env.source)

	report, err := env.engine.Run(ctx, "test")
	require.NoError(t, err)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 6, report.TotalSuccess)
	assert.Equal(t, 0, report.TotalErrors)
	assert.Equal(t, 0, report.TotalDeferred)
	assert.Len(t, report.Categories, len(Categories))

	for _, c := range Categories {
		assert.Equal(t, 1, env.source.fetched(c), "feed %s fetched once", c)
	}

	acme := findOne(t, env.store, models.KindAccount, models.FieldLegacyCompanyID, "500")
	assert.Equal(t, "Acme", acme.Name)

	jane := findOne(t, env.store, models.KindContact, models.FieldLegacyContactID, "c1")
	accounts, err := env.store.Related(ctx, jane.ID, models.RelAccount)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, acme.ID, accounts[0].ID)

	sam := findOne(t, env.store, models.KindUser, models.FieldLegacyStaffID, "s1")
	assert.Equal(t, "sam.smith", sam.Get(models.FieldUserName))
	assert.Equal(t, "regular", sam.Get(models.FieldUserType))

	gazette := findOne(t, env.store, models.KindPublication, models.FieldLegacyPublicationID, "p1")
	managers, err := env.store.Related(ctx, gazette.ID, models.RelSalesManager)
	require.NoError(t, err)
	require.Len(t, managers, 1)
	assert.Equal(t, sam.ID, managers[0].ID)

	home, err := env.store.Related(ctx, sam.ID, models.RelHomePublication)
	require.NoError(t, err)
	require.Len(t, home, 1)
	assert.Equal(t, gazette.ID, home[0].ID)
	assert.Equal(t, "p1", sam.Get(models.FieldLegacyHomePublicationID))

	team := findOne(t, env.store, models.KindTeam, models.FieldName, "Gazette Team")
	assert.Equal(t, "Sales team for Gazette", team.Get(models.FieldDescription))
	teams, err := env.store.Related(ctx, sam.ID, models.RelTeams)
	require.NoError(t, err)
	require.Len(t, teams, 1)
	assert.Equal(t, team.ID, teams[0].ID)
	defaultTeam, err := env.store.Related(ctx, sam.ID, models.RelDefaultTeam)
	require.NoError(t, err)
	require.Len(t, defaultTeam, 1)

	opp := findOne(t, env.store, models.KindOpportunity, models.FieldLegacyLeadID, "o1")
	assert.Equal(t, "Acme - Opportunity", opp.Name)
	assert.Equal(t, models.StageQualification, opp.Get(models.FieldStage))
	assert.Equal(t, DefaultOpportunityAmount, opp.Get(models.FieldAmount))
	assert.Equal(t, "2026-06-02", opp.Get(models.FieldCloseDate))
	assigned, err := env.store.Related(ctx, opp.ID, models.RelAssignedUser)
	require.NoError(t, err)
	require.Len(t, assigned, 1)
	assert.Equal(t, sam.ID, assigned[0].ID)

	for _, c := range Categories {
		mark, ok, err := env.store.GetWatermark(ctx, c)
		require.NoError(t, err)
		require.True(t, ok, c)
		assert.True(t, mark.Equal(testNow), c)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	loadFullFeed(env.source)

	_, err := env.engine.Run(ctx, "first")
	require.NoError(t, err)
	countsBefore, err := env.store.CountAll(ctx)
	require.NoError(t, err)
	linksBefore, err := env.store.CountLinks(ctx)
	require.NoError(t, err)
	acmeBefore := findOne(t, env.store, models.KindAccount, models.FieldLegacyCompanyID, "500")
	oppBefore := findOne(t, env.store, models.KindOpportunity, models.FieldLegacyLeadID, "o1")

	report, err := env.engine.Run(ctx, "second")
	require.NoError(t, err)
	assert.Equal(t, 0, report.Relinked)

	countsAfter, err := env.store.CountAll(ctx)
	require.NoError(t, err)
	linksAfter, err := env.store.CountLinks(ctx)
	require.NoError(t, err)
	assert.Equal(t, countsBefore, countsAfter)
	assert.Equal(t, linksBefore, linksAfter)

	acmeAfter := findOne(t, env.store, models.KindAccount, models.FieldLegacyCompanyID, "500")
	assert.Equal(t, acmeBefore.ID, acmeAfter.ID)
	assert.Equal(t, acmeBefore.Fields, acmeAfter.Fields)
	assert.True(t, acmeBefore.UpdatedAt.Equal(acmeAfter.UpdatedAt), "unchanged entity keeps updated_at")

	oppAfter := findOne(t, env.store, models.KindOpportunity, models.FieldLegacyLeadID, "o1")
	assert.Equal(t, oppBefore.Fields, oppAfter.Fields)
	assert.Equal(t, oppBefore.Name, oppAfter.Name)
}

func TestBlankLegacyIDIsRejectedOnEveryRun(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.source.items[CategoryOpportunities] = items(item("legacyId", "   ", "name", "Ghost lead"))

	for i := 0; i < 2; i++ {
		report, err := env.engine.Run(ctx, "test")
		require.NoError(t, err)
		res := report.Result(CategoryOpportunities)
		require.NotNil(t, res)
		require.NotNil(t, res.Tally)
		assert.Equal(t, 0, res.Tally.Succeeded)
		assert.Equal(t, 1, res.Tally.Failed)
		require.Len(t, res.Tally.Details, 1)
		assert.Contains(t, res.Tally.Details[0].Message, ErrRecordRejected.Error())
	}

	n, err := env.store.Count(ctx, models.KindOpportunity)
	require.NoError(t, err)
	assert.Zero(t, n)
	_, ok, err := env.store.GetWatermark(ctx, CategoryOpportunities)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRunUsesDefaultSinceThenWatermark(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.source.items[CategoryCompanies] = items(item("legacyCompanyId", "500", "name", "Acme"))

	_, err := env.engine.Run(ctx, "first")
	require.NoError(t, err)
	require.NotNil(t, env.source.calls[0].since)
	assert.Equal(t, CategoryCompanies, env.source.calls[0].category)
	assert.True(t, env.source.calls[0].since.Equal(DefaultSince))

	env.source.calls = nil
	_, err = env.engine.Run(ctx, "second")
	require.NoError(t, err)
	require.NotNil(t, env.source.calls[0].since)
	assert.True(t, env.source.calls[0].since.Equal(testNow))
}

func TestWatermarkNeverMovesBackwards(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ahead := testNow.Add(time.Hour)
	require.NoError(t, env.store.SetWatermark(ctx, CategoryCompanies, ahead))
	env.source.items[CategoryCompanies] = items(item("legacyCompanyId", "500", "name", "Acme"))

	_, err := env.engine.Run(ctx, "test")
	require.NoError(t, err)

	mark, ok, err := env.store.GetWatermark(ctx, CategoryCompanies)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, mark.Equal(ahead))
}

func TestWatermarkUnchangedWithoutSuccess(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	before := testNow.Add(-24 * time.Hour)
	require.NoError(t, env.store.SetWatermark(ctx, CategoryContacts, before))
	// Every record fails validation.
	env.source.items[CategoryContacts] = items(item("legacyId", "c1", "firstName", "Jane"))

	report, err := env.engine.Run(ctx, "test")
	require.NoError(t, err)
	res := report.Result(CategoryContacts)
	require.NotNil(t, res)
	require.NotNil(t, res.Tally)
	assert.Equal(t, 0, res.Tally.Succeeded)
	assert.Equal(t, 1, res.Tally.Failed)
	require.Len(t, res.Tally.Details, 1)
	assert.Equal(t, "c1", res.Tally.Details[0].LegacyID)

	mark, ok, err := env.store.GetWatermark(ctx, CategoryContacts)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, mark.Equal(before))

	_, ok, err = env.store.GetWatermark(ctx, CategoryOpportunities)
	require.NoError(t, err)
	assert.False(t, ok, "empty feed never writes a watermark")
}

func TestSecondSyncUpdatesAccountInPlace(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.source.items[CategoryCompanies] = items(item("legacyCompanyId", "500", "name", "Acme"))

	_, err := env.engine.Run(ctx, "first")
	require.NoError(t, err)
	first := findOne(t, env.store, models.KindAccount, models.FieldLegacyCompanyID, "500")

	env.source.items[CategoryCompanies] = items(item("legacyCompanyId", "500", "name", "Acme Corp"))
	_, err = env.engine.Run(ctx, "second")
	require.NoError(t, err)

	n, err := env.store.Count(ctx, models.KindAccount)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	second := findOne(t, env.store, models.KindAccount, models.FieldLegacyCompanyID, "500")
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Acme Corp", second.Name)
}

func TestNaturalKeyAdoptsOnlyUnclaimedEntities(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	claimed := saveEntity(t, env.store, models.KindAccount, models.FieldName, "Acme", models.FieldLegacyCompanyID, "500")
	unclaimed := saveEntity(t, env.store, models.KindAccount, models.FieldName, "Beta", models.FieldPhone, "555-0199")

	env.source.items[CategoryCompanies] = items(
		item("legacyCompanyId", "501", "name", "ACME"),
		item("legacyCompanyId", "502", "name", "beta"),
	)
	_, err := env.engine.Run(ctx, "test")
	require.NoError(t, err)

	n, err := env.store.Count(ctx, models.KindAccount)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	got, err := env.store.Get(ctx, claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, "500", got.Get(models.FieldLegacyCompanyID), "legacy id never replaced")
	assert.Equal(t, "Acme", got.Name)

	got, err = env.store.Get(ctx, unclaimed.ID)
	require.NoError(t, err)
	assert.Equal(t, "502", got.Get(models.FieldLegacyCompanyID))
	assert.Equal(t, "beta", got.Name)
	assert.Equal(t, "555-0199", got.Get(models.FieldPhone), "absent optional field kept")
}

func TestOpportunityDeferredThenLinkedByRelink(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.source.items[CategoryOpportunities] = items(item("legacyId", "o9", "companyId", "999"))

	report, err := env.engine.Run(ctx, "first")
	require.NoError(t, err)
	res := report.Result(CategoryOpportunities)
	require.NotNil(t, res)
	require.NotNil(t, res.Tally)
	assert.Equal(t, 1, res.Tally.Succeeded)
	assert.Equal(t, 1, res.Tally.Deferred)
	require.Len(t, res.Tally.Details, 1)
	assert.Contains(t, res.Tally.Details[0].Message, "999")

	opp := findOne(t, env.store, models.KindOpportunity, models.FieldLegacyLeadID, "o9")
	assert.Equal(t, "999", opp.Get(models.FieldLegacyCompanyID))
	assert.Equal(t, "Opportunity o9", opp.Name)
	linked, err := env.store.Related(ctx, opp.ID, models.RelAccount)
	require.NoError(t, err)
	assert.Empty(t, linked)

	env.source.items[CategoryOpportunities] = nil
	env.source.items[CategoryCompanies] = items(item("legacyCompanyId", "999", "name", "Zeta"))
	report, err = env.engine.Run(ctx, "second")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Relinked)

	opp, err = env.store.Get(ctx, opp.ID)
	require.NoError(t, err)
	assert.Equal(t, "Zeta - Opportunity", opp.Name)
	linked, err = env.store.Related(ctx, opp.ID, models.RelAccount)
	require.NoError(t, err)
	require.Len(t, linked, 1)
	assert.Equal(t, "Zeta", linked[0].Name)
}

func TestOpportunityRerunLinksAfterCompanySync(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.source.items[CategoryOpportunities] = items(item("legacyId", "o9", "companyId", "999", "name", "Spring campaign"))
	_, err := env.engine.Run(ctx, "first")
	require.NoError(t, err)

	env.source.items[CategoryCompanies] = items(item("legacyCompanyId", "999", "name", "Zeta"))
	report, err := env.engine.Run(ctx, "second")
	require.NoError(t, err)
	res := report.Result(CategoryOpportunities)
	require.NotNil(t, res.Tally)
	assert.Equal(t, 0, res.Tally.Deferred)

	opp := findOne(t, env.store, models.KindOpportunity, models.FieldLegacyLeadID, "o9")
	assert.Equal(t, "Spring campaign", opp.Name, "legacy names are never replaced")
	linked, err := env.store.Related(ctx, opp.ID, models.RelAccount)
	require.NoError(t, err)
	require.Len(t, linked, 1)
}

func TestEmptyContactsFeedSucceedsWithZeroTally(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.source.items[CategoryContacts] = nil

	report, err := env.engine.Run(ctx, "test")
	require.NoError(t, err)
	res := report.Result(CategoryContacts)
	require.NotNil(t, res)
	assert.Empty(t, res.Error)
	require.NotNil(t, res.Tally)
	assert.Equal(t, 0, res.Tally.Succeeded)
	assert.Equal(t, 0, res.Tally.Failed)

	_, ok, err := env.store.GetWatermark(ctx, CategoryContacts)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRunReportsFailingCategoryAndContinues(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.source.errs[CategoryCompanies] = errors.New("HTTP 502")
	env.source.items[CategoryContacts] = items(
		item("legacyId", "c1", "firstName", "Jane", "lastName", "Doe"),
		item("legacyId", "c2", "firstName", "Joe", "lastName", "Roe", "companyId", "500"),
	)

	report, err := env.engine.Run(ctx, "test")
	require.NoError(t, err)

	companies := report.Result(CategoryCompanies)
	require.NotNil(t, companies)
	assert.Nil(t, companies.Tally)
	assert.Contains(t, companies.Error, "HTTP 502")

	contacts := report.Result(CategoryContacts)
	require.NotNil(t, contacts)
	require.NotNil(t, contacts.Tally)
	assert.Equal(t, 2, contacts.Tally.Succeeded)
	assert.Equal(t, 1, contacts.Tally.Deferred)

	assert.Equal(t, 2, report.TotalSuccess)
	assert.Equal(t, 0, report.TotalErrors)

	_, ok, err := env.store.GetWatermark(ctx, CategoryCompanies)
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = env.store.GetWatermark(ctx, CategoryContacts)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRunStopsOnStoreFault(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.source.items[CategoryCompanies] = items(item("legacyCompanyId", "500", "name", "Acme"))
	require.NoError(t, env.store.Close())

	report, err := env.engine.Run(ctx, "test")
	require.Error(t, err)
	assert.True(t, IsFatal(err))
	require.NotNil(t, report)
	assert.NotEmpty(t, report.Fatal)
	assert.Empty(t, env.source.calls)
}

func TestRelationshipPassDefersMissingOwner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := pass{name: "publications_relationships", category: CategoryPublications, kind: models.KindPublication, mode: passLinks}
	st := &categoryState{tally: models.NewTally(), batch: &Batch{Records: []Record{record("legacyId", "p404", "name", "Ghost", "salesManagerId", "s1")}}}

	require.NoError(t, env.engine.runPass(ctx, env.engine.logger.WithField("test", true), p, st, false))
	assert.Equal(t, 0, st.tally.Succeeded)
	assert.Equal(t, 1, st.tally.Deferred)
}

func TestPullCategory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.source.items[CategoryPublications] = items(item("legacyId", "p1", "name", "Gazette", "salesManagerId", "s1"))

	res, err := env.engine.PullCategory(ctx, CategoryPublications)
	require.NoError(t, err)
	require.NotNil(t, res.Tally)
	assert.Equal(t, 1, res.Tally.Succeeded)
	assert.Equal(t, 1, res.Tally.Deferred, "sales manager not synced yet")
	assert.Equal(t, 1, env.source.fetched(CategoryPublications))
	assert.Len(t, env.source.calls, 1)

	_, err = env.engine.PullCategory(ctx, "invoices")
	assert.ErrorIs(t, err, ErrUnknownCategory)
}

func TestTeamAssignmentKeepsStaffHomePublication(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.source.items[CategoryPublications] = items(
		item("legacyId", "pa", "name", "Alpha"),
		item("legacyId", "pb", "name", "Beta"),
	)
	env.source.items[CategoryStaff] = items(item("legacyId", "s1", "firstName", "Sam", "lastName", "Smith", "homePublicationId", "pa"))
	env.source.items[CategoryTeamAssignments] = items(item("staffId", "s1", "publicationId", "pb", "homePub", "1"))

	_, err := env.engine.Run(ctx, "test")
	require.NoError(t, err)

	sam := findOne(t, env.store, models.KindUser, models.FieldLegacyStaffID, "s1")
	assert.Equal(t, "pa", sam.Get(models.FieldLegacyHomePublicationID))

	home, err := env.store.Related(ctx, sam.ID, models.RelHomePublication)
	require.NoError(t, err)
	require.Len(t, home, 1)
	assert.Equal(t, "Beta", home[0].Name)
}

func TestApplyLeavesWatermarkAlone(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tally, err := env.engine.Apply(ctx, CategoryCompanies, items(
		item("legacyCompanyId", "500", "name", "Acme"),
		item("legacyCompanyId", "501"),
	))
	require.NoError(t, err)
	assert.Equal(t, 1, tally.Succeeded)
	assert.Equal(t, 1, tally.Failed)
	require.Len(t, tally.Details, 1)
	assert.Equal(t, "501", tally.Details[0].LegacyID)
	assert.Contains(t, tally.Details[0].Message, ErrRecordRejected.Error())
	assert.Empty(t, env.source.calls)

	_, ok, err := env.store.GetWatermark(ctx, CategoryCompanies)
	require.NoError(t, err)
	assert.False(t, ok)
	findOne(t, env.store, models.KindAccount, models.FieldLegacyCompanyID, "500")
}

func TestStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.source.items[CategoryCompanies] = items(item("legacyCompanyId", "500", "name", "Acme"))
	_, err := env.engine.Run(ctx, "test")
	require.NoError(t, err)

	st, err := env.engine.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, PhaseIdle, st.Phase)
	require.NotNil(t, st.LastSync[CategoryCompanies])
	assert.True(t, st.LastSync[CategoryCompanies].Equal(testNow))
	assert.Nil(t, st.LastSync[CategoryContacts])
	assert.Equal(t, 1, st.Counts[models.KindAccount])
	require.NotNil(t, st.LastRun)
	assert.Equal(t, "test", st.LastRun.Trigger)
	assert.Equal(t, 1, st.LastRun.Succeeded)
}
