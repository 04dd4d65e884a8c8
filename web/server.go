// ABOUTME: HTTP admin API for the legacy sync engine with an embedded status page
// ABOUTME: Pull, pull-all, push, manual trigger, export, status and run history endpoints
package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/harperreed/crmsync/models"
	crmsync "github.com/harperreed/crmsync/sync"
)

//go:embed templates/*
var templatesFS embed.FS

// TimestampLayout formats the envelope timestamp the way the legacy system does.
const TimestampLayout = "2006-01-02 15:04:05"

const maxBodyBytes = 10 << 20

// legacyPushKeys are the body keys the legacy system uses when it pushes records.
var legacyPushKeys = map[string]string{
	crmsync.CategoryCompanies:     "accounts",
	crmsync.CategoryContacts:      "contacts",
	crmsync.CategoryOpportunities: "opportunities",
	crmsync.CategoryStaff:         "staff",
	crmsync.CategoryPublications:  "publications",
}

// RunHistory lists recorded runs.
type RunHistory interface {
	ListRuns(ctx context.Context, limit int) ([]*models.Run, error)
}

type Server struct {
	runner    *crmsync.Runner
	history   RunHistory
	tokens    Tokens
	logger    *log.Logger
	templates *template.Template
	now       func() time.Time
}

// Envelope is the uniform response body of the sync endpoints.
type Envelope struct {
	Status    string      `json:"status"`
	Category  string      `json:"category,omitempty"`
	Results   interface{} `json:"results,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp string      `json:"timestamp"`
}

type actorHandler func(w http.ResponseWriter, r *http.Request, actor models.Actor)

func NewServer(runner *crmsync.Runner, history RunHistory, tokens Tokens, logger *log.Logger) (*Server, error) {
	funcMap := template.FuncMap{
		"since": func(t *time.Time) string {
			if t == nil {
				return "never"
			}
			return t.UTC().Format(TimestampLayout)
		},
	}

	tmpl, err := template.New("").Funcs(funcMap).ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Server{
		runner:    runner,
		history:   history,
		tokens:    tokens,
		logger:    logger,
		templates: tmpl,
		now:       time.Now,
	}, nil
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleDashboard)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("GET /api/sync/status", s.handleStatus)
	mux.HandleFunc("POST /api/sync/pull-all", s.requireActor(true, s.handlePullAll))
	mux.HandleFunc("POST /api/sync/pull/{category}", s.requireActor(true, s.handlePull))
	mux.HandleFunc("POST /api/sync/push/{category}", s.requireActor(true, s.handlePush))
	mux.HandleFunc("POST /api/sync/export", s.requireActor(true, s.handleExport))
	mux.HandleFunc("GET /api/sync/runs", s.requireActor(true, s.handleRuns))
	mux.HandleFunc("POST /api/sync/manual", s.requireActor(false, s.handleManual))
	return s.logRequests(mux)
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("starting sync admin server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) requireActor(admin bool, next actorHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := s.tokens.authenticate(r)
		if !ok {
			w.Header().Set("WWW-Authenticate", `Bearer realm="crmsync"`)
			s.writeEnvelope(w, http.StatusUnauthorized, Envelope{Status: "error", Error: "authentication required"})
			return
		}
		if admin && !actor.Admin {
			s.writeEnvelope(w, http.StatusForbidden, Envelope{Status: "error", Error: "admin access required for data sync: " + crmsync.ErrPermissionDenied.Error()})
			return
		}
		next(w, r, actor)
	}
}

func (s *Server) handlePull(w http.ResponseWriter, r *http.Request, actor models.Actor) {
	category := r.PathValue("category")
	result, err := s.runner.Pull(r.Context(), category)
	if err != nil {
		s.writeError(w, category, err)
		return
	}
	if result.Error != "" {
		s.writeEnvelope(w, http.StatusBadGateway, Envelope{Status: "error", Category: category, Error: result.Error})
		return
	}
	s.writeEnvelope(w, http.StatusOK, Envelope{Status: "completed", Category: category, Results: result.Tally})
}

func (s *Server) handlePullAll(w http.ResponseWriter, r *http.Request, actor models.Actor) {
	report, err := s.runner.RunAll(r.Context(), "api:"+actor.ID)
	if report == nil {
		s.writeError(w, "", err)
		return
	}

	results := map[string]interface{}{
		"runId":         report.RunID,
		"totalSuccess":  report.TotalSuccess,
		"totalErrors":   report.TotalErrors,
		"totalDeferred": report.TotalDeferred,
		"relinked":      report.Relinked,
	}
	for _, c := range report.Categories {
		if c.Error != "" {
			results[c.Category] = map[string]string{"error": c.Error}
		} else {
			results[c.Category] = c.Tally
		}
	}

	if err != nil {
		s.writeEnvelope(w, statusFor(err), Envelope{Status: "error", Results: results, Error: err.Error()})
		return
	}
	s.writeEnvelope(w, http.StatusOK, Envelope{Status: "completed", Results: results})
}

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request, actor models.Actor) {
	category := r.PathValue("category")
	if !crmsync.IsCategory(category) {
		s.writeError(w, category, fmt.Errorf("%w: %s", crmsync.ErrUnknownCategory, category))
		return
	}

	items, err := DecodePushBody(http.MaxBytesReader(w, r.Body, maxBodyBytes), category)
	if err != nil {
		s.writeEnvelope(w, http.StatusBadRequest, Envelope{Status: "error", Category: category, Error: err.Error()})
		return
	}

	tally, err := s.runner.Apply(r.Context(), category, items)
	if err != nil {
		s.writeError(w, category, err)
		return
	}
	s.writeEnvelope(w, http.StatusOK, Envelope{Status: "completed", Category: category, Results: tally})
}

func (s *Server) handleManual(w http.ResponseWriter, r *http.Request, actor models.Actor) {
	if r.URL.Query().Get("now") != "" {
		tally, err := s.runner.RunManual(r.Context(), actor)
		if err != nil {
			s.writeError(w, crmsync.CategoryOpportunities, err)
			return
		}
		s.writeEnvelope(w, http.StatusOK, Envelope{Status: "completed", Category: crmsync.CategoryOpportunities, Results: tally})
		return
	}

	results, err := s.runner.QueueManual(r.Context(), actor)
	if err != nil {
		s.writeError(w, "", err)
		return
	}
	s.writeEnvelope(w, http.StatusOK, Envelope{Status: "completed", Results: results})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request, actor models.Actor) {
	delivered := false
	_, err := s.runner.Export(r.Context(), func(updates []crmsync.OpportunityUpdate) error {
		delivered = true
		env := Envelope{
			Status:    "completed",
			Category:  crmsync.CategoryOpportunityUpdates,
			Results:   map[string]interface{}{"updates": updates, "count": len(updates)},
			Timestamp: s.now().UTC().Format(TimestampLayout),
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		return json.NewEncoder(w).Encode(env)
	})
	if err == nil {
		return
	}
	if delivered {
		// the response is already started; the watermark was kept for the next export
		s.logger.WithError(err).Warn("export response not delivered")
		return
	}
	s.writeError(w, crmsync.CategoryOpportunityUpdates, err)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.runner.Status(r.Context())
	if err != nil {
		s.writeError(w, "", err)
		return
	}
	status := "active"
	if s.runner.Busy() {
		status = "syncing"
	}
	s.writeEnvelope(w, http.StatusOK, Envelope{Status: status, Results: st})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request, actor models.Actor) {
	if s.history == nil {
		s.writeEnvelope(w, http.StatusNotFound, Envelope{Status: "error", Error: "run history is not available"})
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeEnvelope(w, http.StatusBadRequest, Envelope{Status: "error", Error: "limit must be a positive integer"})
			return
		}
		limit = n
	}

	runs, err := s.history.ListRuns(r.Context(), limit)
	if err != nil {
		s.writeError(w, "", err)
		return
	}
	if runs == nil {
		runs = []*models.Run{}
	}
	s.writeEnvelope(w, http.StatusOK, Envelope{Status: "completed", Results: runs})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	st, err := s.runner.Status(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	type row struct {
		Category string
		LastSync *time.Time
	}
	var rows []row
	for _, c := range append(append([]string{}, crmsync.Categories...), crmsync.CategoryOpportunityUpdates) {
		rows = append(rows, row{Category: c, LastSync: st.LastSync[c]})
	}
	type count struct {
		Kind  models.Kind
		Count int
	}
	var counts []count
	for _, k := range models.AllKinds {
		counts = append(counts, count{Kind: k, Count: st.Counts[k]})
	}

	data := map[string]interface{}{
		"Title":      "Sync Status",
		"Status":     st,
		"Busy":       s.runner.Busy(),
		"Watermarks": rows,
		"Counts":     counts,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, "dashboard.html", data); err != nil {
		s.logger.WithError(err).Error("template error rendering dashboard")
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-Id")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		w.Header().Set("X-Request-Id", requestID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		started := time.Now()
		next.ServeHTTP(rec, r)
		s.logger.WithFields(log.Fields{
			"request_id": requestID,
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     rec.status,
			"duration":   time.Since(started).String(),
		}).Info("request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) writeError(w http.ResponseWriter, category string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError || status == http.StatusServiceUnavailable {
		s.logger.WithError(err).WithField("category", category).Error("sync request failed")
	}
	s.writeEnvelope(w, status, Envelope{Status: "error", Category: category, Error: err.Error()})
}

func (s *Server) writeEnvelope(w http.ResponseWriter, status int, env Envelope) {
	env.Timestamp = s.now().UTC().Format(TimestampLayout)
	writeJSON(w, status, env)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, crmsync.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, crmsync.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, crmsync.ErrUnknownCategory):
		return http.StatusNotFound
	case crmsync.IsFatal(err):
		return http.StatusServiceUnavailable
	case errors.Is(err, crmsync.ErrSourceUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
