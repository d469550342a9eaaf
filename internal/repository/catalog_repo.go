package repository

import (
	"context"

	"nobconsult/internal/domain"

	"gorm.io/gorm"
)

type CatalogRepository struct {
	db    *gorm.DB
	retry RetryPolicy
}

func NewCatalogRepository(db *gorm.DB) *CatalogRepository {
	return &CatalogRepository{db: db, retry: DefaultRetryPolicy()}
}

func (r *CatalogRepository) CreateDocumentType(ctx context.Context, dt *domain.DocumentType) error {
	err := r.retry.do(ctx, func() error {
		return r.db.WithContext(ctx).Create(dt).Error
	})
	if err != nil && isUniqueConstraintError(err) {
		return ErrDuplicate
	}
	return err
}

func (r *CatalogRepository) SaveDocumentType(ctx context.Context, dt *domain.DocumentType) error {
	return r.retry.do(ctx, func() error {
		return r.db.WithContext(ctx).Save(dt).Error
	})
}

func (r *CatalogRepository) GetDocumentType(ctx context.Context, id string) (*domain.DocumentType, error) {
	var dt domain.DocumentType
	err := r.retry.do(ctx, func() error {
		return r.db.WithContext(ctx).Where("id = ?", id).First(&dt).Error
	})
	if err != nil {
		return nil, notFound(err)
	}
	return &dt, nil
}

// GetDocumentTypes loads the given ids; missing ids are simply absent from the result.
func (r *CatalogRepository) GetDocumentTypes(ctx context.Context, ids []string) (map[string]domain.DocumentType, error) {
	out := make(map[string]domain.DocumentType, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []domain.DocumentType
	err := r.retry.do(ctx, func() error {
		return r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error
	})
	if err != nil {
		return nil, err
	}
	for _, dt := range rows {
		out[dt.ID] = dt
	}
	return out, nil
}

func (r *CatalogRepository) ListDocumentTypes(ctx context.Context) ([]domain.DocumentType, error) {
	var rows []domain.DocumentType
	err := r.retry.do(ctx, func() error {
		return r.db.WithContext(ctx).Order("name").Find(&rows).Error
	})
	return rows, err
}

func (r *CatalogRepository) CreateService(ctx context.Context, s *domain.Service) error {
	err := r.retry.do(ctx, func() error {
		return r.db.WithContext(ctx).Create(s).Error
	})
	if err != nil && isUniqueConstraintError(err) {
		return ErrDuplicate
	}
	return err
}

func (r *CatalogRepository) SaveService(ctx context.Context, s *domain.Service) error {
	return r.retry.do(ctx, func() error {
		return r.db.WithContext(ctx).Save(s).Error
	})
}

func (r *CatalogRepository) GetService(ctx context.Context, id string) (*domain.Service, error) {
	var s domain.Service
	err := r.retry.do(ctx, func() error {
		return r.db.WithContext(ctx).Where("id = ?", id).First(&s).Error
	})
	if err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

func (r *CatalogRepository) ListServices(ctx context.Context, activeOnly bool) ([]domain.Service, error) {
	var rows []domain.Service
	err := r.retry.do(ctx, func() error {
		q := r.db.WithContext(ctx).Order("display_order").Order("id")
		if activeOnly {
			q = q.Where("active = ?", true)
		}
		return q.Find(&rows).Error
	})
	return rows, err
}
