package dto

import "github.com/google/uuid"

// WSEvent is a WebSocket message for real-time match and action delivery.
type WSEvent struct {
	Type        string          `json:"type"` // match_created, action_recorded
	MatchID     uuid.UUID       `json:"match_id"`
	OriginalRef string          `json:"original_ref"`
	Match       *MatchResponse  `json:"match,omitempty"`
	Action      *ActionResponse `json:"action,omitempty"`
	At          string          `json:"at"`
}
