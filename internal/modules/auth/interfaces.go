package auth

import (
	"context"
	"time"

	"nobconsult/internal/domain"
)

// UserRepository holds only the methods the auth service uses.
type UserRepository interface {
	Create(ctx context.Context, u *domain.User) error
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	ListByRole(ctx context.Context, role domain.UserRole) ([]domain.User, error)
	RecordLoginFailure(ctx context.Context, id int64, max int, lockUntil time.Time) (int, error)
	ResetLoginFailures(ctx context.Context, id int64) error
}

type tokenIssuer interface {
	GenerateToken(userID int64, role string) (string, error)
	TTL() time.Duration
}
