package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"nobconsult/internal/domain"
	"nobconsult/internal/pkg/validator"
	"nobconsult/internal/repository"
)

type Service struct {
	repo Repository
	log  *zap.Logger
}

func NewService(repo Repository, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{repo: repo, log: log}
}

/* ---------- DOCUMENT TYPES ---------- */

func (s *Service) CreateDocumentType(ctx context.Context, req DocumentTypeRequest) (*domain.DocumentType, error) {
	dt := req.toDomain()
	if err := check(dt); err != nil {
		return nil, err
	}
	if err := s.repo.CreateDocumentType(ctx, dt); err != nil {
		return nil, translate(err)
	}
	return dt, nil
}

// UpdateDocumentType replaces a document type. Checklists already copied into
// applications keep their old values.
func (s *Service) UpdateDocumentType(ctx context.Context, id string, req DocumentTypeRequest) (*domain.DocumentType, error) {
	current, err := s.repo.GetDocumentType(ctx, id)
	if err != nil {
		return nil, translate(err)
	}
	req.ID = id
	dt := req.toDomain()
	dt.CreatedAt = current.CreatedAt
	if err := check(dt); err != nil {
		return nil, err
	}
	if err := s.repo.SaveDocumentType(ctx, dt); err != nil {
		return nil, translate(err)
	}
	return dt, nil
}

func (s *Service) ListDocumentTypes(ctx context.Context) ([]domain.DocumentType, error) {
	return s.repo.ListDocumentTypes(ctx)
}

/* ---------- SERVICES ---------- */

func (s *Service) CreateService(ctx context.Context, req ServiceRequest) (*domain.Service, error) {
	svc := req.toDomain()
	if err := s.checkService(ctx, svc); err != nil {
		return nil, err
	}
	if err := s.repo.CreateService(ctx, svc); err != nil {
		return nil, translate(err)
	}
	s.log.Info("service created", zap.String("service_id", svc.ID), zap.Bool("active", svc.Active))
	return svc, nil
}

// UpdateService replaces a service definition. Services are never deleted;
// set active=false to withdraw one.
func (s *Service) UpdateService(ctx context.Context, id string, req ServiceRequest) (*domain.Service, error) {
	current, err := s.repo.GetService(ctx, id)
	if err != nil {
		return nil, translate(err)
	}
	req.ID = id
	svc := req.toDomain()
	svc.CreatedAt = current.CreatedAt
	if err := s.checkService(ctx, svc); err != nil {
		return nil, err
	}
	if err := s.repo.SaveService(ctx, svc); err != nil {
		return nil, translate(err)
	}
	if current.Active != svc.Active {
		s.log.Info("service availability changed", zap.String("service_id", id), zap.Bool("active", svc.Active))
	}
	return svc, nil
}

// ListServices returns active services unless includeInactive is set.
func (s *Service) ListServices(ctx context.Context, includeInactive bool) ([]domain.Service, error) {
	return s.repo.ListServices(ctx, !includeInactive)
}

// GetService returns the service with its checklist expanded. Inactive
// services are hidden unless includeInactive is set.
func (s *Service) GetService(ctx context.Context, id string, includeInactive bool) (*ServiceDetail, error) {
	svc, err := s.repo.GetService(ctx, id)
	if err != nil {
		return nil, translate(err)
	}
	if !svc.Active && !includeInactive {
		return nil, ErrNotFound
	}
	types, err := s.repo.GetDocumentTypes(ctx, svc.RequiredDocuments)
	if err != nil {
		return nil, err
	}
	out := &ServiceDetail{Service: *svc, Documents: make([]domain.DocumentType, 0, len(svc.RequiredDocuments))}
	for _, docID := range svc.RequiredDocuments {
		if dt, ok := types[docID]; ok {
			out.Documents = append(out.Documents, dt)
		}
	}
	return out, nil
}

func (s *Service) checkService(ctx context.Context, svc *domain.Service) error {
	if svc.RequiredDocuments == nil {
		svc.RequiredDocuments = []string{}
	}
	if svc.ProcessSteps == nil {
		svc.ProcessSteps = []string{}
	}
	if err := check(svc); err != nil {
		return err
	}
	seen := make(map[string]bool, len(svc.RequiredDocuments))
	for _, id := range svc.RequiredDocuments {
		if seen[id] {
			return &ValidationError{Fields: map[string]string{"RequiredDocuments": "unique"}}
		}
		seen[id] = true
	}
	types, err := s.repo.GetDocumentTypes(ctx, svc.RequiredDocuments)
	if err != nil {
		return err
	}
	for _, id := range svc.RequiredDocuments {
		if _, ok := types[id]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownDocumentType, id)
		}
	}
	return nil
}

func check(v any) error {
	if fields := validator.Validate(v); fields != nil {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func normalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		out = append(out, e)
	}
	return out
}

func translate(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, repository.ErrDuplicate):
		return ErrAlreadyExists
	}
	return err
}
