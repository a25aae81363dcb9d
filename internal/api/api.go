// Package api is the thin admin HTTP surface: artifact review, quarantine
// triage, run history, health and metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sells-group/cutoff-ingest/internal/governance"
	"github.com/sells-group/cutoff-ingest/internal/model"
	"github.com/sells-group/cutoff-ingest/internal/triage"
)

// Artifacts lists and approves discovered artifacts.
type Artifacts interface {
	List(ctx context.Context, opts governance.ListOpts) ([]model.Artifact, error)
	Approve(ctx context.Context, id uuid.UUID, reviewer string) error
}

// Runs lists ingestion runs.
type Runs interface {
	List(ctx context.Context, artifactID uuid.UUID, limit int) ([]model.IngestionRun, error)
}

// PolicyTriage resolves seat-policy quarantine.
type PolicyTriage interface {
	List(ctx context.Context, limit, offset int) ([]triage.Violation, error)
	Promote(ctx context.Context, slug, reviewer string) (triage.PromoteResult, error)
	Ignore(ctx context.Context, slug, reviewer string) (int, error)
}

// IdentityTriage resolves identity quarantine.
type IdentityTriage interface {
	List(ctx context.Context, limit int) ([]triage.Candidate, error)
	Link(ctx context.Context, candidateIDs []int64, institutionID uuid.UUID, reviewer string) (triage.IdentityResult, error)
	Promote(ctx context.Context, candidateIDs []int64, canonicalName, reviewer string) (triage.IdentityResult, error)
}

// Pinger reports store health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the services the server exposes.
type Deps struct {
	Artifacts   Artifacts
	Runs        Runs
	Policy      PolicyTriage
	Identity    IdentityTriage
	Health      Pinger
	Gatherer    prometheus.Gatherer
	CORSOrigins []string
}

// ReviewerHeader names the reviewer recorded on approvals and triage actions.
const (
	ReviewerHeader  = "X-Reviewer"
	defaultReviewer = "admin"
	requestTimeout  = 60 * time.Second
)

// Server routes admin requests.
type Server struct {
	deps Deps
	log  *zap.Logger
}

// New creates a Server.
func New(deps Deps) *Server {
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	return &Server{deps: deps, log: zap.L().With(zap.String("component", "api"))}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(s.requestLog)
	if len(s.deps.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.deps.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", ReviewerHeader},
			MaxAge:         300,
		}))
	}

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))

	r.Route("/artifacts", func(r chi.Router) {
		r.Get("/", s.handleListArtifacts)
		r.Post("/{id}/approve", s.handleApprove)
		r.Get("/{id}/runs", s.handleArtifactRuns)
	})
	r.Get("/runs", s.handleRuns)

	r.Route("/triage", func(r chi.Router) {
		r.Get("/policy", s.handleListViolations)
		r.Post("/policy/{slug}/promote", s.handlePromoteBucket)
		r.Post("/policy/{slug}/ignore", s.handleIgnoreBucket)
		r.Get("/identity", s.handleListCandidates)
		r.Post("/identity/link", s.handleLink)
		r.Post("/identity/promote", s.handlePromoteInstitution)
	})
	return r
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health != nil {
		if err := s.deps.Health.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListArtifacts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := governance.ListOpts{
		ExamCode: q.Get("exam"),
		Status:   model.ArtifactStatus(q.Get("status")),
		Limit:    intParam(q.Get("limit"), 100),
	}
	arts, err := s.deps.Artifacts.List(r.Context(), opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(arts))
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid artifact id"))
		return
	}
	if err := s.deps.Artifacts.Approve(r.Context(), id, reviewer(r)); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(model.StatusApproved), "id": id.String()})
}

func (s *Server) handleArtifactRuns(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid artifact id"))
		return
	}
	s.listRuns(w, r, id)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	s.listRuns(w, r, uuid.Nil)
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request, artifactID uuid.UUID) {
	runs, err := s.deps.Runs.List(r.Context(), artifactID, intParam(r.URL.Query().Get("limit"), 50))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(runs))
}

func (s *Server) handleListViolations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	vs, err := s.deps.Policy.List(r.Context(), intParam(q.Get("limit"), 100), intParam(q.Get("offset"), 0))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(vs))
}

func (s *Server) handlePromoteBucket(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Policy.Promote(r.Context(), chi.URLParam(r, "slug"), reviewer(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleIgnoreBucket(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	n, err := s.deps.Policy.Ignore(r.Context(), slug, reviewer(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"seat_bucket_code": slug, "ignored": n})
}

func (s *Server) handleListCandidates(w http.ResponseWriter, r *http.Request) {
	cs, err := s.deps.Identity.List(r.Context(), intParam(r.URL.Query().Get("limit"), 200))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(cs))
}

type linkRequest struct {
	CandidateIDs  []int64   `json:"candidate_ids"`
	InstitutionID uuid.UUID `json:"institution_id"`
}

func (s *Server) handleLink(w http.ResponseWriter, r *http.Request) {
	var req linkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.CandidateIDs) == 0 || req.InstitutionID == uuid.Nil {
		writeJSON(w, http.StatusBadRequest, errorBody("candidate_ids and institution_id are required"))
		return
	}
	res, err := s.deps.Identity.Link(r.Context(), req.CandidateIDs, req.InstitutionID, reviewer(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type promoteRequest struct {
	CandidateIDs []int64 `json:"candidate_ids"`
	Name         string  `json:"official_name"`
}

func (s *Server) handlePromoteInstitution(w http.ResponseWriter, r *http.Request) {
	var req promoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.CandidateIDs) == 0 || req.Name == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("candidate_ids and official_name are required"))
		return
	}
	res, err := s.deps.Identity.Promote(r.Context(), req.CandidateIDs, req.Name, reviewer(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// writeError maps domain errors onto statuses; anything else is a 500.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, governance.ErrNotFound),
		errors.Is(err, triage.ErrNoViolation),
		errors.Is(err, triage.ErrNoCandidates):
		status = http.StatusNotFound
	case errors.Is(err, governance.ErrTransition):
		status = http.StatusConflict
	case errors.Is(err, governance.ErrIncomplete),
		errors.Is(err, triage.ErrUnknownInstitution):
		status = http.StatusUnprocessableEntity
	}
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeJSON(w, status, errorBody("internal error"))
		return
	}
	writeJSON(w, status, errorBody(err.Error()))
}

func reviewer(r *http.Request) string {
	if v := r.Header.Get(ReviewerHeader); v != "" {
		return v
	}
	return defaultReviewer
}

func intParam(v string, def int) int {
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
