package models

import (
	"time"

	"github.com/google/uuid"
)

// DataQuality labels how many comparable frame pairs backed a match score.
type DataQuality string

const (
	DataQualityInsufficient DataQuality = "insufficient"
	DataQualityLimited      DataQuality = "limited"
	DataQualityVerified     DataQuality = "verified"
)

// ActionType is the closed set of enforcement decisions.
type ActionType string

const (
	ActionTakedown          ActionType = "takedown"
	ActionInfringementEmail ActionType = "infringement_email"
	ActionIgnored           ActionType = "ignored"
)

// ParseActionType returns the ActionType for s, or false if s is not one of
// the supported types.
func ParseActionType(s string) (ActionType, bool) {
	switch ActionType(s) {
	case ActionTakedown, ActionInfringementEmail, ActionIgnored:
		return ActionType(s), true
	}
	return "", false
}

type ActionStatus string

const (
	ActionStatusSent    ActionStatus = "sent"
	ActionStatusIgnored ActionStatus = "ignored"
	ActionStatusFailed  ActionStatus = "failed"
)

// MatchStateUnactioned is the state of a match with no attached actions.
const MatchStateUnactioned = "unactioned"

// CopyrightMatch is the result of one (original, candidate) scan.
type CopyrightMatch struct {
	ID              uuid.UUID         `json:"id" db:"id"`
	OriginalRef     string            `json:"original_ref" db:"original_ref"`
	CandidateURL    string            `json:"candidate_url" db:"candidate_url"`
	Platform        string            `json:"platform" db:"platform"`
	SimilarityScore float64           `json:"similarity_score" db:"similarity_score"`
	DataQuality     DataQuality       `json:"data_quality" db:"data_quality"`
	AlignedPairs    int               `json:"aligned_pairs" db:"aligned_pairs"`
	OriginalFrames  int               `json:"original_frames" db:"original_frames"`
	CandidateFrames int               `json:"candidate_frames" db:"candidate_frames"`
	Breakdown       SignalComparison  `json:"breakdown" db:"breakdown"` // mean per-signal scores
	Intervals       []float64         `json:"intervals" db:"intervals"`
	CreatedAt       time.Time         `json:"created_at" db:"created_at"`
	Actions         []CopyrightAction `json:"actions,omitempty" db:"-"` // most recent first
}

// State returns the status of the most recent action, or "unactioned".
// Actions must be ordered most recent first.
func (m *CopyrightMatch) State() string {
	if len(m.Actions) == 0 {
		return MatchStateUnactioned
	}
	return string(m.Actions[0].Status)
}

// CopyrightAction is an immutable enforcement record attached to a match.
type CopyrightAction struct {
	ID          uuid.UUID    `json:"id" db:"id"`
	MatchID     uuid.UUID    `json:"match_id" db:"match_id"`
	ActionType  ActionType   `json:"action_type" db:"action_type"`
	Status      ActionStatus `json:"status" db:"status"`
	DocumentURL string       `json:"document_url,omitempty" db:"document_url"` // takedown only
	Detail      string       `json:"detail,omitempty" db:"detail"`
	CreatedAt   time.Time    `json:"created_at" db:"created_at"`
}

// ScanRequest is the payload of a scan job.
type ScanRequest struct {
	OriginalRef  string    `json:"original_ref"`
	CandidateURL string    `json:"candidate_url"`
	Intervals    []float64 `json:"intervals,omitempty"`
}

// ScanResult is the payload recorded when a scan job completes.
type ScanResult struct {
	Status  string     `json:"status"` // matched, unavailable
	MatchID *uuid.UUID `json:"match_id,omitempty"`
	Reason  string     `json:"reason,omitempty"`
}

const (
	ScanStatusMatched     = "matched"
	ScanStatusUnavailable = "unavailable"
)
