package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nobconsult/internal/database"
	"nobconsult/internal/domain"
	"nobconsult/internal/middleware"
	"nobconsult/internal/pkg/jwt"
	"nobconsult/internal/repository"
)

type authAPI struct {
	router *gin.Engine
	users  *repository.UserRepository
	jwt    *jwt.Service
}

func newAuthAPI(t *testing.T) *authAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db, err := database.OpenInMemory("auth_"+strings.ReplaceAll(t.Name(), "/", "_"), repository.Models()...)
	require.NoError(t, err)

	users := repository.NewUserRepository(db)
	j := jwt.New("auth-handler-secret", time.Hour)
	h := NewHandler(NewService(users, j, nil))

	r := gin.New()
	v1 := r.Group("/api/v1")
	h.RegisterPublicRoutes(v1)
	protected := v1.Group("")
	protected.Use(middleware.JWTAuth(j, users))
	h.RegisterProtectedRoutes(protected)
	return &authAPI{router: r, users: users, jwt: j}
}

func (a *authAPI) post(t *testing.T, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return w, out
}

func TestHandler_RegisterLoginMe(t *testing.T) {
	api := newAuthAPI(t)

	w, body := api.post(t, "/api/v1/auth/register", "", gin.H{"name": "Dana", "email": "Dana@Example.com", "password": "secret123"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	data := body["data"].(map[string]any)
	assert.Equal(t, "customer", data["user"].(map[string]any)["role"])
	assert.EqualValues(t, 3600, data["expires_in"])

	w, _ = api.post(t, "/api/v1/auth/register", "", gin.H{"name": "Dana", "email": "dana@example.com", "password": "secret123"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w, body = api.post(t, "/api/v1/auth/login", "", gin.H{"email": "dana@example.com", "password": "secret123"})
	require.Equal(t, http.StatusOK, w.Code)
	token := body["data"].(map[string]any)["access_token"].(string)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"email":"dana@example.com"`)
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestHandler_LockoutPersists(t *testing.T) {
	api := newAuthAPI(t)
	w, _ := api.post(t, "/api/v1/auth/register", "", gin.H{"name": "Dana", "email": "dana@example.com", "password": "secret123"})
	require.Equal(t, http.StatusCreated, w.Code)

	for i := 0; i < maxFailedLoginAttempts-1; i++ {
		w, _ = api.post(t, "/api/v1/auth/login", "", gin.H{"email": "dana@example.com", "password": "nope-nope"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	}
	w, body := api.post(t, "/api/v1/auth/login", "", gin.H{"email": "dana@example.com", "password": "nope-nope"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "ACCOUNT_LOCKED", body["error"].(map[string]any)["code"])

	w, _ = api.post(t, "/api/v1/auth/login", "", gin.H{"email": "dana@example.com", "password": "secret123"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestHandler_CreateStaffAdminOnly(t *testing.T) {
	api := newAuthAPI(t)
	admin := &domain.User{Email: "admin@nob.kz", Role: domain.RoleAdmin, Name: "Admin"}
	staff := &domain.User{Email: "aigerim@nob.kz", Role: domain.RoleStaff, Name: "Aigerim"}
	require.NoError(t, api.users.Create(t.Context(), admin))
	require.NoError(t, api.users.Create(t.Context(), staff))

	adminToken, err := api.jwt.GenerateToken(admin.ID, "admin")
	require.NoError(t, err)
	staffToken, err := api.jwt.GenerateToken(staff.ID, "staff")
	require.NoError(t, err)

	req := gin.H{"name": "Bolat", "email": "bolat@nob.kz", "password": "secret123", "role": "staff", "department": "education"}
	w, _ := api.post(t, "/api/v1/users/staff", staffToken, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, body := api.post(t, "/api/v1/users/staff", adminToken, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "education", body["data"].(map[string]any)["department"])

	list := httptest.NewRequest(http.MethodGet, "/api/v1/users/staff", nil)
	list.Header.Set("Authorization", "Bearer "+staffToken)
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, list)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Bolat")
	assert.Contains(t, rec.Body.String(), "Aigerim")
}
