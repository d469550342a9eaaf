package application

import (
	"context"
	"errors"
	"fmt"

	"nobconsult/internal/domain"
	"nobconsult/internal/events"
	"nobconsult/internal/modules/access"
	"nobconsult/internal/repository"
)

// CreateApplication opens a new application for a service. Customers apply
// for themselves; staff and admins name the customer. Nothing is written when
// the service is missing, inactive or refers to unknown document types.
func (s *Service) CreateApplication(ctx context.Context, actor domain.Actor, req CreateApplicationRequest) (*domain.Application, error) {
	customerID := req.CustomerID
	if actor.Role == domain.RoleCustomer && customerID == 0 {
		customerID = actor.UserID
	}
	if customerID == 0 {
		return nil, fmt.Errorf("%w: customer_id is required", ErrValidation)
	}
	if err := access.Authorize(actor, access.ActionCreateApplication, access.ForCustomer(customerID)); err != nil {
		return nil, err
	}
	if actor.Role != domain.RoleCustomer {
		customer, err := s.loadUser(ctx, customerID)
		if err != nil {
			return nil, err
		}
		if customer == nil || customer.Role != domain.RoleCustomer {
			return nil, fmt.Errorf("%w: customer %d not found", ErrValidation, customerID)
		}
	}

	svc, err := s.catalog.GetService(ctx, req.ServiceID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidService, req.ServiceID)
	}
	if err != nil {
		return nil, translateStoreError(err)
	}
	if !svc.Active {
		return nil, fmt.Errorf("%w: %s", ErrInvalidService, req.ServiceID)
	}

	types, err := s.catalog.GetDocumentTypes(ctx, svc.RequiredDocuments)
	if err != nil {
		return nil, translateStoreError(err)
	}
	rows, err := ResolveChecklist(svc, types)
	if err != nil {
		return nil, err
	}

	app := &domain.Application{
		CustomerID:        customerID,
		ServiceID:         svc.ID,
		ServiceName:       svc.Name.Default(),
		RequiredDocuments: rows,
		Status:            domain.ApplicationPending,
		Payment: domain.Payment{
			Status:      domain.PaymentUnpaid,
			TotalAmount: svc.BaseFee,
		},
		StatusHistory: []domain.HistoryEntry{entry(actor, domain.ApplicationPending, "created")},
	}
	if err := s.apps.Create(ctx, app); err != nil {
		return nil, translateStoreError(err)
	}

	s.committed(ctx, actor, events.ApplicationCreated, app)
	return app.ViewFor(actor.Role), nil
}

// ResolveChecklist copies the service's required document types, in order,
// into fresh checklist rows. Later edits to a DocumentType never reach rows
// built here. Repeated ids keep their first position.
func ResolveChecklist(svc *domain.Service, types map[string]domain.DocumentType) ([]domain.DocumentRow, error) {
	rows := make([]domain.DocumentRow, 0, len(svc.RequiredDocuments))
	seen := make(map[string]bool, len(svc.RequiredDocuments))
	for _, id := range svc.RequiredDocuments {
		if seen[id] {
			continue
		}
		seen[id] = true

		dt, ok := types[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownDocument, id)
		}
		rows = append(rows, domain.DocumentRow{
			ID:                dt.ID,
			Name:              dt.Name,
			Description:       dt.Description,
			AllowedExtensions: append([]string(nil), dt.AllowedExtensions...),
			MaxSizeBytes:      dt.MaxSizeBytes,
			Status:            domain.DocumentNotUploaded,
		})
	}
	return rows, nil
}
