package repository

import (
	"context"
	"strings"
	"time"

	"nobconsult/internal/domain"

	"gorm.io/gorm"
)

type UserRepository struct {
	db    *gorm.DB
	retry RetryPolicy
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db, retry: DefaultRetryPolicy()}
}

func (r *UserRepository) Create(ctx context.Context, u *domain.User) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	err := r.retry.do(ctx, func() error {
		return r.db.WithContext(ctx).Create(u).Error
	})
	if err != nil && isUniqueConstraintError(err) {
		return ErrDuplicate
	}
	return err
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	var u domain.User
	err := r.retry.do(ctx, func() error {
		return r.db.WithContext(ctx).First(&u, id).Error
	})
	if err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	var u domain.User
	err := r.retry.do(ctx, func() error {
		return r.db.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&u).Error
	})
	if err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (r *UserRepository) ListByRole(ctx context.Context, role domain.UserRole) ([]domain.User, error) {
	var users []domain.User
	err := r.retry.do(ctx, func() error {
		return r.db.WithContext(ctx).Where("role = ?", role).Order("name").Find(&users).Error
	})
	return users, err
}

// RecordLoginFailure bumps the failure counter and, once it reaches max,
// locks the account until lockUntil. It returns the new counter value.
func (r *UserRepository) RecordLoginFailure(ctx context.Context, id int64, max int, lockUntil time.Time) (int, error) {
	var attempts int
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var u domain.User
		if err := tx.Select("id", "failed_login_attempts").First(&u, id).Error; err != nil {
			return err
		}
		attempts = u.FailedLoginAttempts + 1
		updates := map[string]any{"failed_login_attempts": attempts}
		if attempts >= max {
			updates["locked_until"] = lockUntil
		}
		return tx.Model(&domain.User{}).Where("id = ?", id).Updates(updates).Error
	})
	if err != nil {
		return 0, notFound(err)
	}
	return attempts, nil
}

func (r *UserRepository) ResetLoginFailures(ctx context.Context, id int64) error {
	return r.retry.do(ctx, func() error {
		return r.db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", id).
			Updates(map[string]any{"failed_login_attempts": 0, "locked_until": nil}).Error
	})
}
