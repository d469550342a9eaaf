package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"nobconsult/internal/domain"
	"nobconsult/internal/pkg/jwt"
	"nobconsult/internal/repository"
)

type mockUserRepo struct {
	mock.Mock
}

func (m *mockUserRepo) Create(ctx context.Context, u *domain.User) error {
	args := m.Called(ctx, u)
	if args.Error(0) == nil {
		u.ID = 100
	}
	return args.Error(0)
}

func (m *mockUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepo) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepo) ListByRole(ctx context.Context, role domain.UserRole) ([]domain.User, error) {
	args := m.Called(ctx, role)
	return args.Get(0).([]domain.User), args.Error(1)
}

func (m *mockUserRepo) RecordLoginFailure(ctx context.Context, id int64, max int, lockUntil time.Time) (int, error) {
	args := m.Called(ctx, id, max, lockUntil)
	return args.Int(0), args.Error(1)
}

func (m *mockUserRepo) ResetLoginFailures(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func hashed(t *testing.T, pw string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func newTestService(repo *mockUserRepo) (*Service, *jwt.Service) {
	j := jwt.New("auth-test-secret", 30*time.Minute)
	return NewService(repo, j, nil), j
}

func TestRegister_CreatesCustomerAndIssuesToken(t *testing.T) {
	repo := new(mockUserRepo)
	svc, j := newTestService(repo)
	repo.On("Create", mock.Anything, mock.MatchedBy(func(u *domain.User) bool {
		return u.Role == domain.RoleCustomer && u.PasswordHash != "" && u.PasswordHash != "secret123"
	})).Return(nil)

	res, err := svc.Register(context.Background(), RegisterRequest{Name: " Dana ", Email: "dana@example.com", Password: "secret123"})
	require.NoError(t, err)
	assert.Equal(t, "Dana", res.User.Name)
	assert.Equal(t, 30*time.Minute, res.ExpiresIn)

	claims, err := j.ValidateToken(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, int64(100), claims.UserID)
	repo.AssertExpectations(t)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	repo := new(mockUserRepo)
	svc, _ := newTestService(repo)
	repo.On("Create", mock.Anything, mock.Anything).Return(repository.ErrDuplicate)

	_, err := svc.Register(context.Background(), RegisterRequest{Name: "Dana", Email: "dana@example.com", Password: "secret123"})
	assert.ErrorIs(t, err, ErrEmailAlreadyExists)
}

func TestLogin_Success(t *testing.T) {
	repo := new(mockUserRepo)
	svc, _ := newTestService(repo)
	repo.On("GetByEmail", mock.Anything, "dana@example.com").
		Return(&domain.User{ID: 7, Role: domain.RoleCustomer, PasswordHash: hashed(t, "secret123")}, nil)

	res, err := svc.Login(context.Background(), LoginRequest{Email: "dana@example.com", Password: "secret123"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	repo.AssertNotCalled(t, "ResetLoginFailures", mock.Anything, mock.Anything)
}

func TestLogin_UnknownEmail(t *testing.T) {
	repo := new(mockUserRepo)
	svc, _ := newTestService(repo)
	repo.On("GetByEmail", mock.Anything, "ghost@example.com").Return(nil, repository.ErrNotFound)

	_, err := svc.Login(context.Background(), LoginRequest{Email: "ghost@example.com", Password: "x"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogin_WrongPasswordCountsFailure(t *testing.T) {
	repo := new(mockUserRepo)
	svc, _ := newTestService(repo)
	repo.On("GetByEmail", mock.Anything, "dana@example.com").
		Return(&domain.User{ID: 7, PasswordHash: hashed(t, "secret123")}, nil)
	repo.On("RecordLoginFailure", mock.Anything, int64(7), maxFailedLoginAttempts, mock.Anything).Return(2, nil)

	_, err := svc.Login(context.Background(), LoginRequest{Email: "dana@example.com", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	repo.AssertExpectations(t)
}

func TestLogin_LocksAfterMaxFailures(t *testing.T) {
	repo := new(mockUserRepo)
	svc, _ := newTestService(repo)
	repo.On("GetByEmail", mock.Anything, "dana@example.com").
		Return(&domain.User{ID: 7, PasswordHash: hashed(t, "secret123"), FailedLoginAttempts: 4}, nil)
	repo.On("RecordLoginFailure", mock.Anything, int64(7), maxFailedLoginAttempts, mock.Anything).Return(5, nil)

	_, err := svc.Login(context.Background(), LoginRequest{Email: "dana@example.com", Password: "wrong"})
	assert.ErrorIs(t, err, ErrAccountLocked)
}

func TestLogin_LockedAccountRejectedEvenWithRightPassword(t *testing.T) {
	repo := new(mockUserRepo)
	svc, _ := newTestService(repo)
	until := time.Now().Add(10 * time.Minute)
	repo.On("GetByEmail", mock.Anything, "dana@example.com").
		Return(&domain.User{ID: 7, PasswordHash: hashed(t, "secret123"), LockedUntil: &until}, nil)

	_, err := svc.Login(context.Background(), LoginRequest{Email: "dana@example.com", Password: "secret123"})
	assert.ErrorIs(t, err, ErrAccountLocked)
}

func TestLogin_ExpiredLockResetsCounter(t *testing.T) {
	repo := new(mockUserRepo)
	svc, _ := newTestService(repo)
	past := time.Now().Add(-time.Minute)
	repo.On("GetByEmail", mock.Anything, "dana@example.com").
		Return(&domain.User{ID: 7, PasswordHash: hashed(t, "secret123"), FailedLoginAttempts: 5, LockedUntil: &past}, nil)
	repo.On("ResetLoginFailures", mock.Anything, int64(7)).Return(nil)

	_, err := svc.Login(context.Background(), LoginRequest{Email: "dana@example.com", Password: "secret123"})
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestCreateStaff(t *testing.T) {
	admin := domain.Actor{UserID: 1, Role: domain.RoleAdmin}

	t.Run("admin creates staff", func(t *testing.T) {
		repo := new(mockUserRepo)
		svc, _ := newTestService(repo)
		repo.On("Create", mock.Anything, mock.Anything).Return(nil)

		u, err := svc.CreateStaff(context.Background(), admin, CreateStaffRequest{
			Name: "Aigerim", Email: "aigerim@nob.kz", Password: "secret123", Role: domain.RoleStaff, Department: "visa",
		})
		require.NoError(t, err)
		assert.Equal(t, domain.RoleStaff, u.Role)
		assert.Equal(t, "visa", u.Department)
	})

	t.Run("customer role refused", func(t *testing.T) {
		svc, _ := newTestService(new(mockUserRepo))
		_, err := svc.CreateStaff(context.Background(), admin, CreateStaffRequest{Role: domain.RoleCustomer})
		assert.ErrorIs(t, err, ErrInvalidRole)
	})

	t.Run("staff cannot create accounts", func(t *testing.T) {
		svc, _ := newTestService(new(mockUserRepo))
		_, err := svc.CreateStaff(context.Background(), domain.Actor{UserID: 3, Role: domain.RoleStaff}, CreateStaffRequest{Role: domain.RoleStaff})
		assert.ErrorIs(t, err, ErrInvalidRole)
	})
}
