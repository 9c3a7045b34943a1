// Package enforcement records decisions taken on copyright matches.
package enforcement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/creatorhub/copyscan/internal/models"
	"github.com/creatorhub/copyscan/internal/observability"
)

var (
	// ErrInvalidActionType is returned before any side effect for an action
	// type outside the supported set.
	ErrInvalidActionType = errors.New("invalid action type")
	ErrMatchNotFound     = errors.New("match not found")
)

type Store interface {
	GetMatch(ctx context.Context, id uuid.UUID) (*models.CopyrightMatch, error)
	CreateAction(ctx context.Context, a *models.CopyrightAction) error
}

type DocumentStore interface {
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
	PresignedURL(ctx context.Context, key string) (string, error)
}

type Mailer interface {
	DispatchEmail(ctx context.Context, msg models.EmailMessage) error
}

type Publisher interface {
	Publish(ctx context.Context, ev models.Event) error
}

// Sender identifies the rights holder on notices.
type Sender struct {
	Owner   string
	Contact string
}

// Workflow applies enforcement actions. Every Apply call appends exactly one
// action; existing actions are never changed.
type Workflow struct {
	store     Store
	documents DocumentStore
	mailer    Mailer
	events    Publisher
	sender    Sender
	now       func() time.Time
}

// NewWorkflow builds a workflow; events may be nil.
func NewWorkflow(store Store, documents DocumentStore, mailer Mailer, events Publisher, sender Sender) *Workflow {
	return &Workflow{
		store:     store,
		documents: documents,
		mailer:    mailer,
		events:    events,
		sender:    sender,
		now:       time.Now,
	}
}

// Apply performs actionType on the match and records the outcome. A failed
// takedown upload or email dispatch is recorded with status "failed" rather
// than returned as an error.
func (w *Workflow) Apply(ctx context.Context, matchID uuid.UUID, actionType string) (*models.CopyrightAction, error) {
	at, ok := models.ParseActionType(actionType)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidActionType, actionType)
	}

	m, err := w.store.GetMatch(ctx, matchID)
	if err != nil {
		return nil, fmt.Errorf("load match: %w", err)
	}
	if m == nil {
		return nil, fmt.Errorf("%w: %s", ErrMatchNotFound, matchID)
	}

	action := &models.CopyrightAction{ID: uuid.New(), MatchID: m.ID, ActionType: at}
	notice := Notice{Match: m, Owner: w.sender.Owner, Contact: w.sender.Contact, IssuedAt: w.now().UTC()}

	switch at {
	case models.ActionTakedown:
		url, err := w.issueTakedown(ctx, notice, action.ID)
		if err != nil {
			action.Status, action.Detail = models.ActionStatusFailed, err.Error()
		} else {
			action.Status, action.DocumentURL = models.ActionStatusSent, url
		}
	case models.ActionInfringementEmail:
		if err := w.sendEmail(ctx, notice, action.ID); err != nil {
			action.Status, action.Detail = models.ActionStatusFailed, err.Error()
		} else {
			action.Status = models.ActionStatusSent
		}
	case models.ActionIgnored:
		action.Status = models.ActionStatusIgnored
	}

	if err := w.store.CreateAction(ctx, action); err != nil {
		return nil, fmt.Errorf("record action: %w", err)
	}
	observability.ActionsRecorded.WithLabelValues(string(action.ActionType), string(action.Status)).Inc()
	slog.Info("action recorded",
		"match_id", m.ID,
		"action_id", action.ID,
		"type", action.ActionType,
		"status", action.Status,
	)

	if w.events != nil {
		ev := models.Event{Type: models.EventActionRecorded, MatchID: m.ID, OriginalRef: m.OriginalRef, Action: action, At: w.now().UTC()}
		if err := w.events.Publish(ctx, ev); err != nil {
			slog.Warn("publish action event", "action_id", action.ID, "error", err)
		}
	}
	return action, nil
}

// NoticeKey is where a takedown notice document is stored.
func NoticeKey(matchID, actionID uuid.UUID) string {
	return fmt.Sprintf("notices/%s/%s.txt", matchID, actionID)
}

func (w *Workflow) issueTakedown(ctx context.Context, n Notice, actionID uuid.UUID) (string, error) {
	doc, err := render(takedownTemplate, n)
	if err != nil {
		return "", err
	}
	key := NoticeKey(n.Match.ID, actionID)
	if err := w.documents.PutObject(ctx, key, []byte(doc), "text/plain; charset=utf-8"); err != nil {
		return "", fmt.Errorf("upload notice: %w", err)
	}
	url, err := w.documents.PresignedURL(ctx, key)
	if err != nil {
		return "", fmt.Errorf("presign notice: %w", err)
	}
	return url, nil
}

func (w *Workflow) sendEmail(ctx context.Context, n Notice, actionID uuid.UUID) error {
	body, err := render(emailTemplate, n)
	if err != nil {
		return err
	}
	return w.mailer.DispatchEmail(ctx, models.EmailMessage{
		ID:      actionID,
		MatchID: n.Match.ID,
		Subject: fmt.Sprintf("Copyright notice regarding %s", n.Match.CandidateURL),
		Body:    body,
	})
}
