package storage

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, b *Blob) error
	GetByID(ctx context.Context, id string) (*Blob, error)
	Delete(ctx context.Context, id string) error
	ListOlderThan(ctx context.Context, cutoff time.Time, offset, limit int) ([]*Blob, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, b *Blob) error {
	return r.db.WithContext(ctx).Create(b).Error
}

func (r *repository) GetByID(ctx context.Context, id string) (*Blob, error) {
	var b Blob
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *repository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&Blob{}).Error
}

func (r *repository) ListOlderThan(ctx context.Context, cutoff time.Time, offset, limit int) ([]*Blob, error) {
	var blobs []*Blob
	q := r.db.WithContext(ctx).Where("created_at < ?", cutoff).Order("created_at ASC").Order("id ASC").Offset(offset)
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&blobs).Error
	return blobs, err
}
