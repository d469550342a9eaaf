package events

import (
	"context"
	"errors"
	"time"

	"nobconsult/internal/domain"
)

type Type string

const (
	ApplicationCreated  Type = "application.created"
	DocumentUploaded    Type = "document.uploaded"
	DocumentDecided     Type = "document.decided"
	StatusChanged       Type = "status.changed"
	PaymentUpdated      Type = "payment.updated"
	NotesUpdated        Type = "notes.updated"
	ApplicationAssigned Type = "application.assigned"
	MessageSent         Type = "message.sent"
	MessagesRead        Type = "messages.read"
	ApplicationArchived Type = "application.archived"
)

// Event announces a committed change and carries the full snapshot after it.
// Consumers are responsible for redacting it per viewer.
type Event struct {
	Type              Type                `json:"type"`
	ApplicationID     int64               `json:"application_id"`
	ApplicationNumber string              `json:"application_number"`
	Revision          int64               `json:"revision"`
	ActorID           int64               `json:"actor_id"`
	OccurredAt        time.Time           `json:"occurred_at"`
	Snapshot          *domain.Application `json:"snapshot"`
}

func New(t Type, actor domain.Actor, app *domain.Application) Event {
	return Event{
		Type:              t,
		ApplicationID:     app.ID,
		ApplicationNumber: app.ApplicationNumber,
		Revision:          app.Revision,
		ActorID:           actor.UserID,
		OccurredAt:        app.UpdatedAt,
		Snapshot:          app,
	}
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Fanout delivers to every publisher and reports all failures together.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
