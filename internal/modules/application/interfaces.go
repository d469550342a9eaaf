package application

import (
	"context"

	"nobconsult/internal/domain"
	"nobconsult/internal/repository"
	"nobconsult/internal/storage"
)

type ApplicationRepository interface {
	Create(ctx context.Context, app *domain.Application) error
	GetByID(ctx context.Context, id int64) (*domain.Application, error)
	Apply(ctx context.Context, id, expected int64, m repository.Mutation) (*domain.Application, error)
	List(ctx context.Context, q repository.ApplicationQuery) ([]domain.Application, error)
}

type CatalogReader interface {
	GetService(ctx context.Context, id string) (*domain.Service, error)
	GetDocumentTypes(ctx context.Context, ids []string) (map[string]domain.DocumentType, error)
}

type UserReader interface {
	GetByID(ctx context.Context, id int64) (*domain.User, error)
}

type BlobStore interface {
	Put(ctx context.Context, in storage.PutInput) (*storage.Blob, error)
	Stat(ctx context.Context, id string) (*storage.Blob, error)
	Delete(ctx context.Context, id string) error
}
