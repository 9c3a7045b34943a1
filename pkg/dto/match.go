package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/creatorhub/copyscan/internal/models"
)

const timeFormat = "2006-01-02T15:04:05Z"

type CreateScanRequest struct {
	OriginalRef  string    `json:"original_ref" binding:"required"`
	CandidateURL string    `json:"candidate_url" binding:"required"`
	Intervals    []float64 `json:"intervals"`
}

type ScanResponse struct {
	ID        uuid.UUID      `json:"id"`
	Status    string         `json:"status"`
	Attempts  int            `json:"attempts"`
	LastError string         `json:"last_error,omitempty"`
	Outcome   string         `json:"outcome,omitempty"` // matched, unavailable
	Reason    string         `json:"reason,omitempty"`
	Match     *MatchResponse `json:"match,omitempty"`
	CreatedAt string         `json:"created_at"`
	UpdatedAt string         `json:"updated_at"`
}

type SignalBreakdown struct {
	Keyframe float64 `json:"keyframe"`
	OCR      float64 `json:"ocr"`
	Face     float64 `json:"face"`
	Motion   float64 `json:"motion"`
}

type MatchResponse struct {
	ID              uuid.UUID        `json:"id"`
	OriginalRef     string           `json:"original_ref"`
	CandidateURL    string           `json:"candidate_url"`
	Platform        string           `json:"platform"`
	SimilarityScore float64          `json:"similarity_score"`
	DataQuality     string           `json:"data_quality"`
	AlignedPairs    int              `json:"aligned_pairs"`
	Breakdown       SignalBreakdown  `json:"breakdown"`
	Intervals       []float64        `json:"intervals"`
	State           string           `json:"state"`
	Actions         []ActionResponse `json:"actions"`
	AuditFrames     []string         `json:"audit_frames,omitempty"`
	CreatedAt       string           `json:"created_at"`
}

type MatchListResponse struct {
	Matches []MatchResponse `json:"matches"`
	Total   int             `json:"total"`
}

type CreateActionRequest struct {
	ActionType string `json:"action_type" binding:"required"`
}

type ActionResponse struct {
	ID          uuid.UUID `json:"id"`
	MatchID     uuid.UUID `json:"match_id"`
	ActionType  string    `json:"action_type"`
	Status      string    `json:"status"`
	DocumentURL string    `json:"document_url,omitempty"`
	Detail      string    `json:"detail,omitempty"`
	CreatedAt   string    `json:"created_at"`
}

func NewMatchResponse(m *models.CopyrightMatch) MatchResponse {
	actions := make([]ActionResponse, 0, len(m.Actions))
	for i := range m.Actions {
		actions = append(actions, NewActionResponse(&m.Actions[i]))
	}
	return MatchResponse{
		ID:              m.ID,
		OriginalRef:     m.OriginalRef,
		CandidateURL:    m.CandidateURL,
		Platform:        m.Platform,
		SimilarityScore: m.SimilarityScore,
		DataQuality:     string(m.DataQuality),
		AlignedPairs:    m.AlignedPairs,
		Breakdown: SignalBreakdown{
			Keyframe: m.Breakdown.KeyframeScore,
			OCR:      m.Breakdown.OCRScore,
			Face:     m.Breakdown.FaceScore,
			Motion:   m.Breakdown.MotionScore,
		},
		Intervals: m.Intervals,
		State:     m.State(),
		Actions:   actions,
		CreatedAt: formatTime(m.CreatedAt),
	}
}

func NewActionResponse(a *models.CopyrightAction) ActionResponse {
	return ActionResponse{
		ID:          a.ID,
		MatchID:     a.MatchID,
		ActionType:  string(a.ActionType),
		Status:      string(a.Status),
		DocumentURL: a.DocumentURL,
		Detail:      a.Detail,
		CreatedAt:   formatTime(a.CreatedAt),
	}
}

// NewWSEvent converts a bus event into its WebSocket form.
func NewWSEvent(ev models.Event) WSEvent {
	out := WSEvent{
		Type:        string(ev.Type),
		MatchID:     ev.MatchID,
		OriginalRef: ev.OriginalRef,
		At:          formatTime(ev.At),
	}
	if ev.Match != nil {
		m := NewMatchResponse(ev.Match)
		out.Match = &m
	}
	if ev.Action != nil {
		a := NewActionResponse(ev.Action)
		out.Action = &a
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeFormat)
}
