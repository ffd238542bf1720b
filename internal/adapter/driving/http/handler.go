// Package httphandler is the JSON read API over the casa dataset.
package httphandler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nanocasa/casa/internal/application"
	"github.com/nanocasa/casa/internal/domain/model"
	"github.com/nanocasa/casa/internal/domain/port/driven"
)

// maxBodyBytes bounds request bodies of write endpoints.
const maxBodyBytes = 1 << 20

// Dataset is the read model served by the API. *application.DatasetService
// implements it.
type Dataset interface {
	Repositories(ctx context.Context) ([]model.Repository, error)
	Contributors(ctx context.Context) ([]model.Contributor, error)
	CommitActivity(ctx context.Context) ([]model.WeeklyActivity, error)
	LatestCommits(ctx context.Context, limit int) ([]model.Commit, error)
	Milestones(ctx context.Context) ([]model.Milestone, error)
	PublicNodes(ctx context.Context) ([]model.PublicNode, error)
	NodeEvents(ctx context.Context) ([]model.NodeEvent, error)
	Misc(ctx context.Context, key string) (string, error)
	SetMisc(ctx context.Context, key, value string) error
	UpdateProfile(ctx context.Context, login string, update model.ProfileUpdate) (model.Profile, error)
	JobRuns(ctx context.Context, limit int) ([]model.JobRun, error)
	Snapshot(ctx context.Context) (application.Snapshot, error)
}

// JobTrigger runs a named job on demand. *application.Scheduler implements it.
type JobTrigger interface {
	Trigger(ctx context.Context, name string) error
}

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	dataset    Dataset
	jobs       JobTrigger
	metrics    http.Handler
	adminToken string
	logger     *slog.Logger
}

// NewHandler creates a Handler with all required dependencies. jobs and
// metrics may be nil.
func NewHandler(dataset Dataset, jobs JobTrigger, metrics http.Handler, adminToken string, logger *slog.Logger) *Handler {
	return &Handler{
		dataset:    dataset,
		jobs:       jobs,
		metrics:    metrics,
		adminToken: adminToken,
		logger:     logger,
	}
}

// NewRouter creates an http.Handler with all routes registered and wrapped
// with tracing, logging and recovery middleware.
func NewRouter(h *Handler, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(tracingMiddleware)
	r.Use(loggingMiddleware(logger))
	// Recovery innermost so panics are caught before logging.
	r.Use(recoveryMiddleware(logger))

	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.Get("/data", h.Snapshot)
		r.Get("/repositories", h.ListRepositories)
		r.Get("/contributors", h.ListContributors)
		r.Get("/commits/activity", h.CommitActivity)
		r.Get("/commits/latest", h.LatestCommits)
		r.Get("/milestones", h.ListMilestones)
		r.Get("/public-nodes", h.ListPublicNodes)
		r.Get("/node-events", h.ListNodeEvents)
		r.Get("/misc/{key}", h.GetMisc)
		r.Get("/jobs", h.ListJobRuns)

		r.Group(func(r chi.Router) {
			r.Use(requireAdmin(h.adminToken))
			r.Put("/misc/{key}", h.SetMisc)
			r.Patch("/profiles/{login}", h.UpdateProfile)
			r.Post("/jobs/{name}/run", h.TriggerJob)
		})
	})

	return r
}

// ListRepositories returns all repositories, oldest first.
func (h *Handler) ListRepositories(w http.ResponseWriter, r *http.Request) {
	repos, err := h.dataset.Repositories(r.Context())
	if err != nil {
		h.internalError(w, "failed to list repositories", err)
		return
	}

	writeJSON(w, http.StatusOK, mapSlice(repos, toRepositoryResponse))
}

// ListContributors returns ranked contributors with flags and profiles.
func (h *Handler) ListContributors(w http.ResponseWriter, r *http.Request) {
	contributors, err := h.dataset.Contributors(r.Context())
	if err != nil {
		h.internalError(w, "failed to list contributors", err)
		return
	}

	writeJSON(w, http.StatusOK, mapSlice(contributors, toContributorResponse))
}

// CommitActivity returns the weekly commit series.
func (h *Handler) CommitActivity(w http.ResponseWriter, r *http.Request) {
	series, err := h.dataset.CommitActivity(r.Context())
	if err != nil {
		h.internalError(w, "failed to load commit activity", err)
		return
	}

	writeJSON(w, http.StatusOK, mapSlice(series, toWeeklyActivityResponse))
}

// LatestCommits returns the newest commits outside the flagship repository.
func (h *Handler) LatestCommits(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}

	commits, err := h.dataset.LatestCommits(r.Context(), limit)
	if err != nil {
		h.internalError(w, "failed to list latest commits", err)
		return
	}

	writeJSON(w, http.StatusOK, mapSlice(commits, toCommitResponse))
}

// ListMilestones returns the stored milestones.
func (h *Handler) ListMilestones(w http.ResponseWriter, r *http.Request) {
	milestones, err := h.dataset.Milestones(r.Context())
	if err != nil {
		h.internalError(w, "failed to list milestones", err)
		return
	}

	writeJSON(w, http.StatusOK, mapSlice(milestones, toMilestoneResponse))
}

// ListPublicNodes returns the latest node probe results.
func (h *Handler) ListPublicNodes(w http.ResponseWriter, r *http.Request) {
	nodes, err := h.dataset.PublicNodes(r.Context())
	if err != nil {
		h.internalError(w, "failed to list public nodes", err)
		return
	}

	writeJSON(w, http.StatusOK, mapSlice(nodes, toPublicNodeResponse))
}

// ListNodeEvents returns the flagship activity feed.
func (h *Handler) ListNodeEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.dataset.NodeEvents(r.Context())
	if err != nil {
		h.internalError(w, "failed to list node events", err)
		return
	}

	writeJSON(w, http.StatusOK, mapSlice(events, toNodeEventResponse))
}

// GetMisc returns the raw JSON document stored under a key.
func (h *Handler) GetMisc(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	value, err := h.dataset.Misc(r.Context(), key)
	if errors.Is(err, driven.ErrMiscKeyNotFound) {
		writeError(w, http.StatusNotFound, "key not found")
		return
	}
	if err != nil {
		h.internalError(w, "failed to get misc value", err)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, value)
}

// SetMisc stores the request body under a key.
func (h *Handler) SetMisc(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.dataset.SetMisc(r.Context(), key, string(body)); err != nil {
		if errors.Is(err, application.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.internalError(w, "failed to set misc value", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// UpdateProfile applies a partial profile update.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	login := chi.URLParam(r, "login")

	var req ProfileUpdateRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	profile, err := h.dataset.UpdateProfile(r.Context(), login, req.toModel())
	if err != nil {
		if errors.Is(err, application.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.internalError(w, "failed to update profile", err)
		return
	}

	writeJSON(w, http.StatusOK, toProfileResponse(profile))
}

// ListJobRuns returns recent job runs, newest first, with logs nested.
func (h *Handler) ListJobRuns(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}

	runs, err := h.dataset.JobRuns(r.Context(), limit)
	if err != nil {
		h.internalError(w, "failed to list job runs", err)
		return
	}

	writeJSON(w, http.StatusOK, mapSlice(runs, toJobRunResponse))
}

// TriggerJob runs a job immediately and reports its outcome.
func (h *Handler) TriggerJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	if h.jobs == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler not running")
		return
	}

	// The run continues if the client goes away.
	err := h.jobs.Trigger(context.WithoutCancel(r.Context()), name)
	switch {
	case errors.Is(err, application.ErrUnknownJob):
		writeError(w, http.StatusNotFound, "unknown job")
	case errors.Is(err, application.ErrJobRunning):
		writeError(w, http.StatusConflict, "job already running")
	case err != nil:
		h.logger.Error("manual job run failed", "job", name, "error", err)
		writeJSON(w, http.StatusInternalServerError, JobTriggerResponse{Job: name, Status: string(model.JobStatusFailure), Error: err.Error()})
	default:
		writeJSON(w, http.StatusOK, JobTriggerResponse{Job: name, Status: string(model.JobStatusSuccess)})
	}
}

// Snapshot returns the whole dataset in one document.
func (h *Handler) Snapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.dataset.Snapshot(r.Context())
	if err != nil {
		h.internalError(w, "failed to build snapshot", err)
		return
	}

	writeJSON(w, http.StatusOK, toSnapshotResponse(snap))
}

// Health returns a simple health check response.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) internalError(w http.ResponseWriter, msg string, err error) {
	h.logger.Error(msg, "error", err)
	writeError(w, http.StatusInternalServerError, "internal server error")
}

// queryLimit parses the optional limit query parameter. Zero means default.
func queryLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return 0, false
	}
	return limit, true
}
