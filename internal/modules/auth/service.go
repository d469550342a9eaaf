package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"nobconsult/internal/domain"
	"nobconsult/internal/repository"
)

const (
	maxFailedLoginAttempts = 5
	lockoutDuration        = 15 * time.Minute
)

type Service struct {
	users UserRepository
	jwt   tokenIssuer
	log   *zap.Logger
	now   func() time.Time
}

func NewService(users UserRepository, jwt tokenIssuer, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{users: users, jwt: jwt, log: log, now: time.Now}
}

type LoginResult struct {
	User        *domain.User
	AccessToken string
	ExpiresIn   time.Duration
}

// Register creates a customer account and signs it in.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*LoginResult, error) {
	user := &domain.User{
		Email: req.Email,
		Name:  strings.TrimSpace(req.Name),
		Phone: strings.TrimSpace(req.Phone),
		Role:  domain.RoleCustomer,
	}
	if err := s.create(ctx, user, req.Password); err != nil {
		return nil, err
	}
	return s.issue(user)
}

// CreateStaff onboards a staff or admin account. Only admins reach this.
func (s *Service) CreateStaff(ctx context.Context, actor domain.Actor, req CreateStaffRequest) (*domain.User, error) {
	if actor.Role != domain.RoleAdmin {
		return nil, fmt.Errorf("%w: only admins create agency accounts", ErrInvalidRole)
	}
	if !req.Role.IsStaff() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, req.Role)
	}
	user := &domain.User{
		Email:      req.Email,
		Name:       strings.TrimSpace(req.Name),
		Role:       req.Role,
		Department: strings.TrimSpace(req.Department),
	}
	if err := s.create(ctx, user, req.Password); err != nil {
		return nil, err
	}
	s.log.Info("agency account created",
		zap.Int64("user_id", user.ID),
		zap.String("role", string(user.Role)),
		zap.Int64("created_by", actor.UserID))
	return user, nil
}

func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	user, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	now := s.now()
	if user.LockedUntil != nil && user.LockedUntil.After(now) {
		return nil, ErrAccountLocked
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		attempts, recErr := s.users.RecordLoginFailure(ctx, user.ID, maxFailedLoginAttempts, now.Add(lockoutDuration))
		if recErr != nil {
			return nil, recErr
		}
		if attempts >= maxFailedLoginAttempts {
			s.log.Warn("account locked after failed logins", zap.Int64("user_id", user.ID))
			return nil, ErrAccountLocked
		}
		return nil, ErrInvalidCredentials
	}

	if user.FailedLoginAttempts > 0 || user.LockedUntil != nil {
		if err := s.users.ResetLoginFailures(ctx, user.ID); err != nil {
			return nil, err
		}
	}
	return s.issue(user)
}

func (s *Service) Me(ctx context.Context, userID int64) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// ListStaff returns assignable agency accounts.
func (s *Service) ListStaff(ctx context.Context) ([]domain.User, error) {
	return s.users.ListByRole(ctx, domain.RoleStaff)
}

func (s *Service) create(ctx context.Context, user *domain.User, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	user.PasswordHash = string(hash)
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return ErrEmailAlreadyExists
		}
		return err
	}
	return nil
}

func (s *Service) issue(user *domain.User) (*LoginResult, error) {
	token, err := s.jwt.GenerateToken(user.ID, string(user.Role))
	if err != nil {
		return nil, err
	}
	return &LoginResult{User: user, AccessToken: token, ExpiresIn: s.jwt.TTL()}, nil
}
