package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/contractlens/backend/internal/apierrors"
	"github.com/contractlens/backend/internal/jobs"
)

// JobRunner lists and triggers background jobs.
type JobRunner interface {
	ListJobs() []*jobs.Job
	RunNow(name string) error
}

// JobHandler exposes the scheduler to operators.
type JobHandler struct {
	runner JobRunner
	logger *slog.Logger
}

// NewJobHandler creates a new JobHandler.
func NewJobHandler(runner JobRunner, logger *slog.Logger) *JobHandler {
	return &JobHandler{runner: runner, logger: logger}
}

// List handles GET /jobs.
func (h *JobHandler) List(w http.ResponseWriter, r *http.Request) {
	writeData(w, h.runner.ListJobs())
}

// Run handles POST /jobs/{name}/run. The job runs in the background.
func (h *JobHandler) Run(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.runner.RunNow(name); err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			writeError(w, r, apierrors.NewNotFoundError("job", name))
			return
		}
		respondErr(w, r, h.logger, "job", err)
		return
	}
	h.logger.Info("job triggered", "name", name)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started", "job": name})
}
