package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/creatorhub/copyscan/internal/models"
	"github.com/creatorhub/copyscan/internal/scan"
	"github.com/creatorhub/copyscan/internal/scheduler"
	"github.com/creatorhub/copyscan/pkg/dto"
)

type JobStore interface {
	Enqueue(ctx context.Context, kind string, payload any) (*scheduler.Job, error)
	GetJob(ctx context.Context, id uuid.UUID) (*scheduler.Job, error)
}

type ScanHandler struct {
	jobs    JobStore
	matches MatchReader
}

func NewScanHandler(jobs JobStore, matches MatchReader) *ScanHandler {
	return &ScanHandler{jobs: jobs, matches: matches}
}

// Create queues a scan; the worker picks it up asynchronously.
func (h *ScanHandler) Create(c *gin.Context) {
	var body dto.CreateScanRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	req := models.ScanRequest{
		OriginalRef:  body.OriginalRef,
		CandidateURL: body.CandidateURL,
		Intervals:    body.Intervals,
	}
	if err := scan.ValidateRequest(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, err := h.jobs.Enqueue(c.Request.Context(), scan.JobKind, req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, scanToResponse(job))
}

func (h *ScanHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid scan id"})
		return
	}

	job, err := h.jobs.GetJob(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if job == nil || job.Kind != scan.JobKind {
		c.JSON(http.StatusNotFound, gin.H{"error": "scan not found"})
		return
	}

	resp := scanToResponse(job)
	if len(job.Result) > 0 {
		var res models.ScanResult
		if err := json.Unmarshal(job.Result, &res); err != nil {
			slog.Warn("decode scan result", "job_id", job.ID, "error", err)
		} else {
			resp.Outcome = res.Status
			resp.Reason = res.Reason
			if res.MatchID != nil {
				m, err := h.matches.GetMatch(c.Request.Context(), *res.MatchID)
				if err != nil {
					c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
					return
				}
				if m != nil {
					mr := dto.NewMatchResponse(m)
					resp.Match = &mr
				}
			}
		}
	}

	c.JSON(http.StatusOK, resp)
}

func scanToResponse(job *scheduler.Job) dto.ScanResponse {
	return dto.ScanResponse{
		ID:        job.ID,
		Status:    string(job.Status),
		Attempts:  job.Attempts,
		LastError: job.LastError,
		CreatedAt: job.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		UpdatedAt: job.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
}
