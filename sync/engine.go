// ABOUTME: Sync orchestrator driving fetch, resolve, merge and link passes in a fixed order
// ABOUTME: Tracks per-category tallies and advances watermarks only after successful records
package sync

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/harperreed/crmsync/models"
)

// Phase is the orchestrator state reported by Status.
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseFetching Phase = "fetching"
	PhaseMerging  Phase = "merging"
	PhaseLinking  Phase = "linking"
)

// Status values written to the journal.
const (
	statusIdle    = "idle"
	statusSyncing = "syncing"
	statusError   = "error"
)

type passMode int

const (
	passFull passMode = iota
	passBasic
	passLinks
	passTeams
)

type pass struct {
	name     string
	category string
	kind     models.Kind
	mode     passMode
}

// runOrder creates publications and staff before either links to the other,
// and opportunities after everything they reference.
var runOrder = []pass{
	{"companies", CategoryCompanies, models.KindAccount, passFull},
	{"contacts", CategoryContacts, models.KindContact, passFull},
	{"publications_basic", CategoryPublications, models.KindPublication, passBasic},
	{"staff_basic", CategoryStaff, models.KindUser, passBasic},
	{"publications_relationships", CategoryPublications, models.KindPublication, passLinks},
	{"staff_relationships", CategoryStaff, models.KindUser, passLinks},
	{"team_assignments", CategoryTeamAssignments, models.KindTeam, passTeams},
	{"opportunities", CategoryOpportunities, models.KindOpportunity, passFull},
}

func passesFor(category string) []pass {
	var out []pass
	for _, p := range runOrder {
		if p.category == category {
			out = append(out, p)
		}
	}
	return out
}

// DefaultSince is the lastModified sent when a category has no watermark yet.
var DefaultSince = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

type Options struct {
	Source       Source
	Store        Store
	Watermarks   WatermarkStore
	Journal      Journal
	DefaultSince time.Time
	Now          func() time.Time
	Logger       *log.Logger
}

// Engine runs sync passes. It is not safe for overlapping runs; callers
// serialise runs themselves.
type Engine struct {
	source       Source
	store        Store
	marks        WatermarkStore
	journal      Journal
	resolver     *Resolver
	linker       *Linker
	defaultSince time.Time
	now          func() time.Time
	logger       *log.Logger

	mu       gosync.Mutex
	phase    Phase
	category string
}

func NewEngine(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	since := opts.DefaultSince
	if since.IsZero() {
		since = DefaultSince
	}
	return &Engine{
		source:       opts.Source,
		store:        opts.Store,
		marks:        opts.Watermarks,
		journal:      opts.Journal,
		resolver:     NewResolver(opts.Store),
		linker:       NewLinker(opts.Store, logger),
		defaultSince: since,
		now:          now,
		logger:       logger,
		phase:        PhaseIdle,
	}
}

type categoryState struct {
	tally      *models.Tally
	batch      *Batch
	fetchStart time.Time
	err        error
}

// Run executes every pass in order. The returned error is non-nil only for
// run-fatal store faults; the report is returned either way.
func (e *Engine) Run(ctx context.Context, trigger string) (*models.Report, error) {
	return e.runPasses(ctx, trigger, runOrder, true)
}

// PullCategory runs only the passes of one category, with the same
// watermark rules as a full run.
func (e *Engine) PullCategory(ctx context.Context, category string) (*models.CategoryResult, error) {
	if !IsCategory(category) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCategory, category)
	}
	report, err := e.runPasses(ctx, "pull:"+category, passesFor(category), false)
	res := report.Result(category)
	if res == nil {
		res = &models.CategoryResult{Category: category, Error: report.Fatal}
	}
	return res, err
}

func (e *Engine) runPasses(ctx context.Context, trigger string, passes []pass, relink bool) (*models.Report, error) {
	started := e.now()
	report := &models.Report{StartedAt: started, Categories: []models.CategoryResult{}}
	defer e.setPhase(PhaseIdle, "")

	var run *models.Run
	if e.journal != nil {
		r, err := e.journal.StartRun(ctx, trigger, started)
		if err != nil {
			if IsFatal(err) {
				report.Fatal = err.Error()
				report.FinishedAt = e.now()
				return report, err
			}
			e.logger.WithError(err).Warn("could not record run start")
		}
		run = r
	}
	if run != nil {
		report.RunID = run.ID
	}
	logger := e.logger.WithField("run_id", report.RunID)
	logger.WithField("trigger", trigger).Info("sync run started")

	lastPass := make(map[string]int)
	for i, p := range passes {
		lastPass[p.category] = i
	}

	states := make(map[string]*categoryState)
	var fatal error
	var inFlight string
	for i, p := range passes {
		st, ok := states[p.category]
		if !ok {
			st = &categoryState{tally: models.NewTally()}
			states[p.category] = st
		}
		inFlight = p.category
		if fatal = e.runPass(ctx, logger, p, st, true); fatal != nil {
			break
		}
		if lastPass[p.category] == i {
			if fatal = e.finishCategory(ctx, logger, p.category, st, report); fatal != nil {
				break
			}
			inFlight = ""
		}
	}

	if fatal == nil && relink {
		e.setPhase(PhaseLinking, "relink")
		n, err := e.linker.Relink(ctx)
		report.Relinked = n
		if err != nil {
			if IsFatal(err) {
				fatal = err
			} else {
				logger.WithError(err).Warn("relink sweep failed")
			}
		}
	}

	if fatal != nil {
		report.Fatal = fatal.Error()
		if inFlight != "" && report.Result(inFlight) == nil {
			report.Categories = append(report.Categories, models.CategoryResult{Category: inFlight, Error: fatal.Error()})
		}
	}
	for _, c := range report.Categories {
		if c.Tally != nil {
			report.TotalSuccess += c.Tally.Succeeded
			report.TotalErrors += c.Tally.Failed
			report.TotalDeferred += c.Tally.Deferred
		}
	}
	report.FinishedAt = e.now()

	if run != nil {
		run.Succeeded = report.TotalSuccess
		run.Failed = report.TotalErrors
		run.Deferred = report.TotalDeferred
		run.Error = report.Fatal
		finished := report.FinishedAt
		run.FinishedAt = &finished
		if err := e.journal.FinishRun(ctx, run); err != nil {
			logger.WithError(err).Warn("could not record run finish")
		}
	}

	entry := logger.WithFields(log.Fields{
		"success":  report.TotalSuccess,
		"errors":   report.TotalErrors,
		"deferred": report.TotalDeferred,
		"relinked": report.Relinked,
	})
	if fatal != nil {
		entry.WithError(fatal).Error("sync run aborted")
		return report, fatal
	}
	entry.Info("sync run finished")
	return report, nil
}

// runPass fetches the category feed once and applies one pass to it. Only
// fatal errors are returned.
func (e *Engine) runPass(ctx context.Context, logger *log.Entry, p pass, st *categoryState, useWatermark bool) error {
	if st.err != nil {
		return nil
	}
	entry := logger.WithFields(log.Fields{"category": p.category, "pass": p.name})

	if st.batch == nil {
		if err := e.fetch(ctx, entry, p.category, st, useWatermark); err != nil {
			return err
		}
		if st.err != nil {
			return nil
		}
	}
	if len(st.batch.Records) == 0 {
		entry.Debug("no records")
		return nil
	}

	phase := PhaseMerging
	if p.mode == passLinks {
		phase = PhaseLinking
	}
	e.setPhase(phase, p.category)

	for _, rec := range st.batch.Records {
		if err := ctx.Err(); err != nil {
			return err
		}
		var err error
		switch p.mode {
		case passFull:
			err = e.applyRecord(ctx, entry, p, rec, st.tally, true)
		case passBasic:
			err = e.applyRecord(ctx, entry, p, rec, st.tally, false)
		case passLinks:
			err = e.linkRecord(ctx, entry, p, rec, st.tally)
		case passTeams:
			err = e.assignTeam(ctx, entry, p, rec, st.tally)
		}
		if err != nil {
			return err
		}
	}
	entry.WithFields(log.Fields{
		"success":  st.tally.Succeeded,
		"errors":   st.tally.Failed,
		"deferred": st.tally.Deferred,
	}).Info("pass complete")
	return nil
}

func (e *Engine) fetch(ctx context.Context, entry *log.Entry, category string, st *categoryState, useWatermark bool) error {
	e.setPhase(PhaseFetching, category)
	e.recordStatus(ctx, category, statusSyncing, "")

	var since *time.Time
	if useWatermark {
		mark, ok, err := e.marks.GetWatermark(ctx, category)
		if err != nil {
			if IsFatal(err) {
				return err
			}
			st.err = err
			e.recordStatus(ctx, category, statusError, err.Error())
			return nil
		}
		if !ok {
			mark = e.defaultSince
		}
		since = &mark
	}

	st.fetchStart = e.now()
	batch, err := e.source.Fetch(ctx, category, since)
	if err != nil {
		if IsFatal(err) {
			return err
		}
		st.err = err
		entry.WithError(err).Warn("fetch failed, skipping category")
		e.recordStatus(ctx, category, statusError, err.Error())
		return nil
	}
	st.batch = batch
	countRejections(entry, category, batch, st.tally)
	entry.WithField("records", batch.Len()).Info("fetched")
	return nil
}

// countRejections adds the records refused at the feed boundary to tally.
func countRejections(entry *log.Entry, category string, batch *Batch, tally *models.Tally) {
	for _, rej := range batch.Rejected {
		tally.Failed++
		tally.Details = append(tally.Details, models.Detail{
			Category: category,
			LegacyID: rej.LegacyID,
			Name:     rej.Name,
			Message:  (&Error{Kind: ErrRecordRejected, Err: rej.Err}).Error(),
		})
		entry.WithField("legacy_id", rej.LegacyID).WithError(rej.Err).Warn("record rejected")
	}
}

func (e *Engine) finishCategory(ctx context.Context, logger *log.Entry, category string, st *categoryState, report *models.Report) error {
	if st.err != nil {
		report.Categories = append(report.Categories, models.CategoryResult{Category: category, Error: st.err.Error()})
		return nil
	}
	report.Categories = append(report.Categories, models.CategoryResult{Category: category, Tally: st.tally})

	if st.tally.Succeeded == 0 {
		e.recordStatus(ctx, category, statusIdle, "")
		return nil
	}
	next := st.fetchStart
	prev, ok, err := e.marks.GetWatermark(ctx, category)
	if err != nil {
		if IsFatal(err) {
			return err
		}
		logger.WithField("category", category).WithError(err).Warn("could not read watermark, leaving it")
		return nil
	}
	if ok && prev.After(next) {
		next = prev
	}
	if err := e.marks.SetWatermark(ctx, category, next); err != nil {
		if IsFatal(err) {
			return err
		}
		logger.WithField("category", category).WithError(err).Warn("could not advance watermark")
		return nil
	}
	// The charm backend keeps watermarks outside the journal; mark idle there too.
	e.recordStatus(ctx, category, statusIdle, "")
	logger.WithFields(log.Fields{"category": category, "watermark": next.Format(time.RFC3339)}).Debug("watermark advanced")
	return nil
}

// applyRecord resolves, merges and saves one record, then links it when asked.
func (e *Engine) applyRecord(ctx context.Context, entry *log.Entry, p pass, rec Record, tally *models.Tally, link bool) error {
	strat := strategyFor(p.kind)
	legacyID := rec.Get(strat.legacyKey)
	name := displayName(rec)
	entry = entry.WithField("legacy_id", legacyID)

	existing, matchedBy, err := e.resolver.Resolve(ctx, p.kind, rec)
	if err != nil {
		return e.recordFailure(entry, tally, p, legacyID, name, err)
	}
	ent := existing
	if ent == nil {
		ent = models.NewEntity(p.kind)
	}
	Merge(ent, rec, e.now())
	if err := e.store.Save(ctx, ent); err != nil {
		return e.recordFailure(entry, tally, p, legacyID, name, err)
	}

	if link {
		if err := e.linkRelations(ctx, entry, p, strat, ent, rec, tally); err != nil {
			return err
		}
	}
	tally.Succeeded++
	if existing != nil {
		entry.WithField("matched_by", matchedBy).Debug("updated")
	} else {
		entry.Debug("created")
	}
	return nil
}

// linkRecord is the relationship-only pass: the owner must already exist.
func (e *Engine) linkRecord(ctx context.Context, entry *log.Entry, p pass, rec Record, tally *models.Tally) error {
	strat := strategyFor(p.kind)
	legacyID := rec.Get(strat.legacyKey)
	name := displayName(rec)
	entry = entry.WithField("legacy_id", legacyID)

	owner, err := e.resolver.ByLegacyID(ctx, p.kind, strat.legacyField, legacyID)
	if err != nil {
		return e.recordFailure(entry, tally, p, legacyID, name, err)
	}
	if owner == nil {
		tally.Deferred++
		tally.Details = append(tally.Details, models.Detail{
			Category: p.category, Kind: string(p.kind), LegacyID: legacyID, Name: name,
			Message: fmt.Sprintf("%s not found for relationship pass", p.kind),
		})
		entry.Warn("owner not found for relationship pass")
		return nil
	}

	changed := false
	for _, rel := range strat.relations {
		if fk := rec.Get(rel.recordKey); fk != "" && owner.Get(rel.ownerField) != fk {
			owner.Set(rel.ownerField, fk)
			changed = true
		}
	}
	if changed {
		if err := e.store.Save(ctx, owner); err != nil {
			return e.recordFailure(entry, tally, p, legacyID, name, err)
		}
	}
	return e.linkRelations(ctx, entry, p, strat, owner, rec, tally)
}

func (e *Engine) linkRelations(ctx context.Context, entry *log.Entry, p pass, strat *strategy, owner *models.Entity, rec Record, tally *models.Tally) error {
	for _, rel := range strat.relations {
		fk := rec.Get(rel.recordKey)
		if fk == "" {
			continue
		}
		changed, err := e.linker.Link(ctx, owner, rel, fk)
		switch {
		case err == nil:
			if changed {
				entry.WithField("relation", rel.name).Debug("linked")
			}
		case IsFatal(err):
			return err
		case errors.Is(err, ErrRelationshipUnresolved):
			tally.Deferred++
			tally.Details = append(tally.Details, detailFor(p, owner.Get(strat.legacyField), owner.Name, err))
		default:
			tally.Details = append(tally.Details, detailFor(p, owner.Get(strat.legacyField), owner.Name, err))
			entry.WithField("relation", rel.name).WithError(err).Warn("link failed")
		}
	}
	return nil
}

// recordFailure counts a per-record failure, or returns err when it is fatal.
func (e *Engine) recordFailure(entry *log.Entry, tally *models.Tally, p pass, legacyID, name string, err error) error {
	if IsFatal(err) {
		return err
	}
	if !errors.Is(err, ErrRecordRejected) {
		err = &Error{Kind: ErrRecordRejected, Category: p.category, LegacyID: legacyID, Name: name, Err: err}
	}
	tally.Failed++
	tally.Details = append(tally.Details, detailFor(p, legacyID, name, err))
	entry.WithError(err).Warn("record failed")
	return nil
}

func detailFor(p pass, legacyID, name string, err error) models.Detail {
	msg := err.Error()
	var se *Error
	if errors.As(err, &se) {
		msg = se.Message()
	}
	return models.Detail{Category: p.category, Kind: string(p.kind), LegacyID: legacyID, Name: name, Message: msg}
}

func (e *Engine) recordStatus(ctx context.Context, category, status, msg string) {
	if e.journal == nil {
		return
	}
	if err := e.journal.SetSyncStatus(ctx, category, status, msg); err != nil {
		e.logger.WithField("category", category).WithError(err).Debug("could not record sync status")
	}
}

func (e *Engine) setPhase(phase Phase, category string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.phase = phase
	e.category = category
}

// Phase reports what the engine is doing right now.
func (e *Engine) Phase() (Phase, string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase, e.category
}
