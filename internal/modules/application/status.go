package application

import (
	"context"
	"fmt"
	"strings"
	"time"

	"nobconsult/internal/domain"
	"nobconsult/internal/events"
	"nobconsult/internal/modules/access"
	"nobconsult/internal/repository"
)

// ChangeStatus moves the application along the lifecycle. Approved and
// completed require every checklist row to be approved; that is checked
// before the transition table so the caller learns what is missing.
func (s *Service) ChangeStatus(ctx context.Context, actor domain.Actor, id int64, to domain.ApplicationStatus) (*domain.Application, error) {
	if !to.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, to)
	}
	return s.mutate(ctx, actor, id, func(app *domain.Application) (repository.Mutation, events.Type, error) {
		if err := access.Authorize(actor, access.ActionChangeStatus, access.ResourceOf(app)); err != nil {
			return repository.Mutation{}, "", err
		}
		if err := writable(app); err != nil {
			return repository.Mutation{}, "", err
		}
		if app.Status.IsTerminal() {
			return repository.Mutation{}, "", fmt.Errorf("%w: status is %s", ErrTerminalState, app.Status)
		}
		if to.RequiresApprovedDocuments() && !app.AllDocumentsApproved() {
			return repository.Mutation{}, "", fmt.Errorf("%w: %s", ErrDocumentsIncomplete, strings.Join(missingDocuments(app), ", "))
		}
		if !domain.CanTransition(app.Status, to) {
			return repository.Mutation{}, "", fmt.Errorf("%w: %s to %s", ErrInvalidTransition, app.Status, to)
		}

		return repository.Mutation{
			Fields:  map[string]any{"status": string(to)},
			History: []domain.HistoryEntry{entry(actor, to, "status changed to "+string(to))},
		}, events.StatusChanged, nil
	})
}

func missingDocuments(app *domain.Application) []string {
	var out []string
	for _, d := range app.RequiredDocuments {
		if d.Status != domain.DocumentApproved {
			out = append(out, d.ID)
		}
	}
	return out
}

func (s *Service) UpdatePayment(ctx context.Context, actor domain.Actor, id int64, status domain.PaymentStatus) (*domain.Application, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown payment status %q", ErrValidation, status)
	}
	return s.mutate(ctx, actor, id, func(app *domain.Application) (repository.Mutation, events.Type, error) {
		if err := access.Authorize(actor, access.ActionUpdatePayment, access.ResourceOf(app)); err != nil {
			return repository.Mutation{}, "", err
		}
		if err := writable(app); err != nil {
			return repository.Mutation{}, "", err
		}
		if app.Payment.Status == status {
			return repository.Mutation{}, "", fmt.Errorf("%w: payment is already %s", ErrValidation, status)
		}
		return repository.Mutation{
			Fields:  map[string]any{"payment_status": string(status)},
			History: []domain.HistoryEntry{entry(actor, app.Status, "payment "+string(status))},
		}, events.PaymentUpdated, nil
	})
}

// UpdateNotes replaces the staff-only notes. Notes are not part of the
// customer visible history.
func (s *Service) UpdateNotes(ctx context.Context, actor domain.Actor, id int64, notes string) (*domain.Application, error) {
	return s.mutate(ctx, actor, id, func(app *domain.Application) (repository.Mutation, events.Type, error) {
		if err := access.Authorize(actor, access.ActionEditNotes, access.ResourceOf(app)); err != nil {
			return repository.Mutation{}, "", err
		}
		if err := writable(app); err != nil {
			return repository.Mutation{}, "", err
		}
		return repository.Mutation{
			Fields: map[string]any{"internal_notes": notes},
		}, events.NotesUpdated, nil
	})
}

// Assign hands the application to a staff member (admin only).
func (s *Service) Assign(ctx context.Context, actor domain.Actor, id, staffID int64) (*domain.Application, error) {
	staff, err := s.loadUser(ctx, staffID)
	if err != nil {
		return nil, err
	}
	if staff == nil || !staff.Role.IsStaff() {
		return nil, fmt.Errorf("%w: staff member %d not found", ErrValidation, staffID)
	}
	return s.mutate(ctx, actor, id, func(app *domain.Application) (repository.Mutation, events.Type, error) {
		if err := access.Authorize(actor, access.ActionAssign, access.ResourceOf(app)); err != nil {
			return repository.Mutation{}, "", err
		}
		if err := writable(app); err != nil {
			return repository.Mutation{}, "", err
		}
		return assignment(actor, app, staff), events.ApplicationAssigned, nil
	})
}

// Claim lets a staff member take an application from the unassigned queue.
func (s *Service) Claim(ctx context.Context, actor domain.Actor, id int64) (*domain.Application, error) {
	staff := &domain.User{ID: actor.UserID, Role: actor.Role, Name: actor.DisplayName()}
	return s.mutate(ctx, actor, id, func(app *domain.Application) (repository.Mutation, events.Type, error) {
		if err := access.Authorize(actor, access.ActionClaim, access.ResourceOf(app)); err != nil {
			if app.AssignedStaffID != nil {
				return repository.Mutation{}, "", fmt.Errorf("%w: already assigned", ErrConflict)
			}
			return repository.Mutation{}, "", err
		}
		if err := writable(app); err != nil {
			return repository.Mutation{}, "", err
		}
		return assignment(actor, app, staff), events.ApplicationAssigned, nil
	})
}

func assignment(actor domain.Actor, app *domain.Application, staff *domain.User) repository.Mutation {
	name := staff.Name
	if name == "" {
		name = staff.Email
	}
	return repository.Mutation{
		Fields:  map[string]any{"assigned_staff_id": staff.ID},
		History: []domain.HistoryEntry{entry(actor, app.Status, "assigned to "+name)},
	}
}

// Archive hides a closed application from default listings and freezes it.
func (s *Service) Archive(ctx context.Context, actor domain.Actor, id int64) (*domain.Application, error) {
	return s.mutate(ctx, actor, id, func(app *domain.Application) (repository.Mutation, events.Type, error) {
		if err := access.Authorize(actor, access.ActionArchive, access.ResourceOf(app)); err != nil {
			return repository.Mutation{}, "", err
		}
		if err := writable(app); err != nil {
			return repository.Mutation{}, "", err
		}
		if !app.Status.IsTerminal() {
			return repository.Mutation{}, "", fmt.Errorf("%w: only rejected or completed applications can be archived", ErrValidation)
		}
		return repository.Mutation{
			Fields:  map[string]any{"archived_at": time.Now().UTC()},
			History: []domain.HistoryEntry{entry(actor, app.Status, "archived")},
		}, events.ApplicationArchived, nil
	})
}
