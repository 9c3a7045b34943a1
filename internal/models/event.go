package models

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventMatchCreated   EventType = "match_created"
	EventActionRecorded EventType = "action_recorded"
)

// Event is published on the COPYRIGHT stream whenever a match or action is
// persisted.
type Event struct {
	Type        EventType        `json:"type"`
	MatchID     uuid.UUID        `json:"match_id"`
	OriginalRef string           `json:"original_ref"`
	Match       *CopyrightMatch  `json:"match,omitempty"`
	Action      *CopyrightAction `json:"action,omitempty"`
	At          time.Time        `json:"at"`
}

// EmailMessage is an outbound notification handed to the mail relay.
type EmailMessage struct {
	ID      uuid.UUID `json:"id"`
	MatchID uuid.UUID `json:"match_id"`
	To      string    `json:"to,omitempty"` // empty: relay resolves the platform's abuse contact
	Subject string    `json:"subject"`
	Body    string    `json:"body"`
}
