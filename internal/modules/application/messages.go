package application

import (
	"context"
	"fmt"
	"strings"

	"nobconsult/internal/domain"
	"nobconsult/internal/events"
	"nobconsult/internal/modules/access"
	"nobconsult/internal/repository"
)

const maxMessageLength = 4000

// SendMessage appends to the customer and staff channel. Closed applications
// still accept messages; archived ones do not.
func (s *Service) SendMessage(ctx context.Context, actor domain.Actor, id int64, content string) (*domain.Application, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("%w: message is empty", ErrValidation)
	}
	if len([]rune(content)) > maxMessageLength {
		return nil, fmt.Errorf("%w: message is longer than %d characters", ErrValidation, maxMessageLength)
	}

	updated, err := s.mutate(ctx, actor, id, func(app *domain.Application) (repository.Mutation, events.Type, error) {
		if err := access.Authorize(actor, access.ActionSendMessage, access.ResourceOf(app)); err != nil {
			return repository.Mutation{}, "", err
		}
		if err := writable(app); err != nil {
			return repository.Mutation{}, "", err
		}
		return repository.Mutation{
			Messages: []domain.Message{{
				SenderID:   actor.UserID,
				SenderRole: actor.Role,
				Content:    content,
			}},
			// sending implies the sender has read the thread
			MarkReadBy: actor.UserID,
		}, events.MessageSent, nil
	})
	if err != nil {
		return nil, err
	}
	return updated.ViewFor(actor.Role), nil
}

// MarkRead flags every message from the other side as read.
func (s *Service) MarkRead(ctx context.Context, actor domain.Actor, id int64) (*domain.Application, error) {
	updated, err := s.mutate(ctx, actor, id, func(app *domain.Application) (repository.Mutation, events.Type, error) {
		if err := access.Authorize(actor, access.ActionRead, access.ResourceOf(app)); err != nil {
			return repository.Mutation{}, "", err
		}
		if err := writable(app); err != nil {
			return repository.Mutation{}, "", err
		}
		return repository.Mutation{MarkReadBy: actor.UserID}, events.MessagesRead, nil
	})
	if err != nil {
		return nil, err
	}
	return updated.ViewFor(actor.Role), nil
}
