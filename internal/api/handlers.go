package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bobarin/mathcast/internal/logger"
	"github.com/bobarin/mathcast/internal/models"
	"github.com/bobarin/mathcast/internal/tracker"
	"github.com/bobarin/mathcast/internal/worker"
)

// maxRequestBody bounds a submitted problem + solution.
const maxRequestBody = 1 << 20

// Jobs is the submission surface. *worker.Worker implements it.
type Jobs interface {
	Submit(ctx context.Context, problem models.ProblemRecord, solution models.SolutionRecord) (uuid.UUID, error)
	Poll(ctx context.Context, id uuid.UUID) (models.RenderJob, error)
}

var _ Jobs = (*worker.Worker)(nil)

type Handler struct {
	jobs Jobs
	log  *logger.Logger
}

func NewHandler(jobs Jobs, log *logger.Logger) *Handler {
	return &Handler{jobs: jobs, log: log}
}

// SubmitJob handles POST /v1/jobs
func (h *Handler) SubmitJob(w http.ResponseWriter, r *http.Request) {
	var req models.SubmitJobRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	id, err := h.jobs.Submit(r.Context(), req.Problem, req.Solution)
	if err != nil {
		if errors.Is(err, models.ErrUpstreamData) {
			respondError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		h.log.Error("submit failed", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to enqueue job")
		return
	}

	respondJSON(w, http.StatusAccepted, models.SubmitJobResponse{
		JobID:  id,
		Status: models.JobStatusQueued,
	})
}

// GetJob handles GET /v1/jobs/{id}
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := h.lookup(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, buildJobResponse(job))
}

// DownloadJob handles GET /v1/jobs/{id}/download. It serves the local file
// and falls back to the published copy when the local one is gone.
func (h *Handler) DownloadJob(w http.ResponseWriter, r *http.Request) {
	job, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if job.Status != models.JobStatusCompleted {
		respondError(w, http.StatusConflict, "Video not ready")
		return
	}

	if _, err := os.Stat(job.ResultPath); err != nil {
		if job.PublicURL != "" {
			http.Redirect(w, r, job.PublicURL, http.StatusFound)
			return
		}
		respondError(w, http.StatusGone, "Video file no longer available")
		return
	}

	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(job.ResultPath)))
	http.ServeFile(w, r, job.ResultPath)
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (models.RenderJob, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid job ID")
		return models.RenderJob{}, false
	}
	job, err := h.jobs.Poll(r.Context(), id)
	if err != nil {
		if errors.Is(err, tracker.ErrJobNotFound) {
			respondError(w, http.StatusNotFound, "Job not found")
		} else {
			respondError(w, http.StatusInternalServerError, "Failed to read job")
		}
		return models.RenderJob{}, false
	}
	return job, true
}

func buildJobResponse(job models.RenderJob) models.JobResponse {
	resp := models.JobResponse{
		ID:        job.ID,
		Status:    job.Status,
		Progress:  job.Progress,
		Message:   job.Message,
		Tier:      job.Tier,
		PublicURL: job.PublicURL,
		Error:     job.Error,
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.UpdatedAt,
	}
	if job.Status == models.JobStatusCompleted {
		resp.DownloadURL = fmt.Sprintf("/v1/jobs/%s/download", job.ID)
	}
	return resp
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// Health check
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
