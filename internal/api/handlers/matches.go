package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/creatorhub/copyscan/internal/enforcement"
	"github.com/creatorhub/copyscan/internal/models"
	"github.com/creatorhub/copyscan/internal/scan"
	"github.com/creatorhub/copyscan/pkg/dto"
)

type MatchReader interface {
	GetMatch(ctx context.Context, id uuid.UUID) (*models.CopyrightMatch, error)
	ListMatches(ctx context.Context, originalRef string, limit, offset int) ([]models.CopyrightMatch, int, error)
}

// AuditStore lists and signs stored audit thumbnails.
type AuditStore interface {
	ListObjects(ctx context.Context, prefix string) ([]string, error)
	PresignedURL(ctx context.Context, key string) (string, error)
}

type ActionApplier interface {
	Apply(ctx context.Context, matchID uuid.UUID, actionType string) (*models.CopyrightAction, error)
}

type MatchHandler struct {
	matches MatchReader
	audit   AuditStore
	actions ActionApplier
}

// NewMatchHandler builds the match endpoints; audit may be nil.
func NewMatchHandler(matches MatchReader, audit AuditStore, actions ActionApplier) *MatchHandler {
	return &MatchHandler{matches: matches, audit: audit, actions: actions}
}

func (h *MatchHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid match id"})
		return
	}

	m, err := h.matches.GetMatch(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if m == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "match not found"})
		return
	}

	resp := dto.NewMatchResponse(m)
	resp.AuditFrames = h.auditFrames(c.Request.Context(), id)
	c.JSON(http.StatusOK, resp)
}

func (h *MatchHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if offset < 0 {
		offset = 0
	}

	matches, total, err := h.matches.ListMatches(c.Request.Context(), c.Query("original_ref"), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.MatchResponse, 0, len(matches))
	for i := range matches {
		resp = append(resp, dto.NewMatchResponse(&matches[i]))
	}
	c.JSON(http.StatusOK, dto.MatchListResponse{Matches: resp, Total: total})
}

// CreateAction applies an enforcement action. Failed deliveries are still
// recorded and returned with status "failed".
func (h *MatchHandler) CreateAction(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid match id"})
		return
	}

	var req dto.CreateActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	a, err := h.actions.Apply(c.Request.Context(), id, req.ActionType)
	switch {
	case errors.Is(err, enforcement.ErrInvalidActionType):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	case errors.Is(err, enforcement.ErrMatchNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "match not found"})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, dto.NewActionResponse(a))
}

func (h *MatchHandler) auditFrames(ctx context.Context, id uuid.UUID) []string {
	if h.audit == nil {
		return nil
	}
	keys, err := h.audit.ListObjects(ctx, scan.AuditPrefix(id))
	if err != nil {
		slog.Warn("list audit frames", "match_id", id, "error", err)
		return nil
	}
	urls := make([]string, 0, len(keys))
	for _, k := range keys {
		u, err := h.audit.PresignedURL(ctx, k)
		if err != nil {
			slog.Warn("presign audit frame", "key", k, "error", err)
			continue
		}
		urls = append(urls, u)
	}
	return urls
}
