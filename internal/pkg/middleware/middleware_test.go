package middleware_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"goloja/internal/domain"
	"goloja/internal/pkg/logger"
	"goloja/internal/pkg/middleware"
	"goloja/internal/pkg/token"
)

type MockCache struct {
	mock.Mock
}

func (m *MockCache) Get(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func (m *MockCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return m.Called(ctx, key, value, expiration).Error(0)
}

func (m *MockCache) Delete(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func (m *MockCache) Incr(ctx context.Context, key string, expiration time.Duration) (int64, error) {
	args := m.Called(ctx, key, expiration)
	return args.Get(0).(int64), args.Error(1)
}

func okHandler(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }

func TestAuth_MissingToken(t *testing.T) {
	tokens := token.NewService("segredo", time.Hour)
	h := middleware.NewAuthMiddleware(tokens)(okHandler)

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/v1/sales", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), `"category":"UNAUTHORIZED"`)
}

func TestAuth_ValidTokenReachesPermission(t *testing.T) {
	tokens := token.NewService("segredo", time.Hour)
	auth := middleware.NewAuthMiddleware(tokens)
	adminOnly := middleware.PermissionMiddleware(domain.RoleAdmin)

	var seen middleware.UserClaims
	h := auth(adminOnly(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = middleware.GetUserClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	sellerToken, err := tokens.GenerateToken("u1", domain.RoleSeller)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodDelete, "/v1/sales/x", nil)
	req.Header.Set("Authorization", "Bearer "+sellerToken)
	rec := httptest.NewRecorder()
	h(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), `"category":"FORBIDDEN"`)

	adminToken, err := tokens.GenerateToken("u2", domain.RoleAdmin)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	rec = httptest.NewRecorder()
	h(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u2", seen.UserID)
	assert.True(t, seen.IsAdmin())
}

func TestRateLimiter_BlocksAfterLimit(t *testing.T) {
	c := new(MockCache)
	c.On("Incr", mock.Anything, "rate-limit:login:192.0.2.1", time.Minute).Return(int64(2), nil).Once()
	c.On("Incr", mock.Anything, "rate-limit:login:192.0.2.1", time.Minute).Return(int64(3), nil).Once()

	h := middleware.RateLimiter(c, "login", 2, time.Minute, logger.NewLogger("error"))(http.HandlerFunc(okHandler))

	req := httptest.NewRequest(http.MethodPost, "/v1/login", nil)
	req.RemoteAddr = "192.0.2.1:5555"

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	c.AssertExpectations(t)
}

func TestRateLimiter_FailsOpen(t *testing.T) {
	c := new(MockCache)
	c.On("Incr", mock.Anything, mock.Anything, mock.Anything).Return(int64(0), errors.New("redis fora"))

	h := middleware.RateLimiter(c, "webhook", 1, time.Minute, logger.NewLogger("error"))(http.HandlerFunc(okHandler))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/webhooks/payments/mock", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
