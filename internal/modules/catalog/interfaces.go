package catalog

import (
	"context"

	"nobconsult/internal/domain"
)

type Repository interface {
	CreateDocumentType(ctx context.Context, dt *domain.DocumentType) error
	SaveDocumentType(ctx context.Context, dt *domain.DocumentType) error
	GetDocumentType(ctx context.Context, id string) (*domain.DocumentType, error)
	GetDocumentTypes(ctx context.Context, ids []string) (map[string]domain.DocumentType, error)
	ListDocumentTypes(ctx context.Context) ([]domain.DocumentType, error)
	CreateService(ctx context.Context, s *domain.Service) error
	SaveService(ctx context.Context, s *domain.Service) error
	GetService(ctx context.Context, id string) (*domain.Service, error)
	ListServices(ctx context.Context, activeOnly bool) ([]domain.Service, error)
}
