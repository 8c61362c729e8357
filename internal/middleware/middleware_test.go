package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/attendify-api/internal/models"
	appErrors "github.com/noah-isme/attendify-api/pkg/errors"
)

type verifierStub struct {
	claims *models.JWTClaims
	err    error
}

func (v verifierStub) ValidateToken(token string) (*models.JWTClaims, error) {
	if token != "good" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return v.claims, nil
}

func (v verifierStub) Principal(claims *models.JWTClaims) (models.Principal, error) {
	if v.err != nil {
		return models.Principal{}, v.err
	}
	principal, _ := models.PrincipalFromClaims(claims)
	return principal, nil
}

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers = append(handlers, func(c *gin.Context) {
		principal, _ := PrincipalFrom(c)
		c.String(http.StatusOK, string(principal.Role)+":"+principal.ID)
	})
	r.GET("/students/:id", handlers...)
	return r
}

func serve(r *gin.Engine, path, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWTResolvesPrincipal(t *testing.T) {
	verifier := verifierStub{claims: &models.JWTClaims{UserID: "s-1", Role: models.RoleStudent}}
	r := newRouter(JWT(verifier))

	w := serve(r, "/students/s-1", "Bearer good")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "STUDENT:s-1", w.Body.String())

	assert.Equal(t, http.StatusUnauthorized, serve(r, "/students/s-1", "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, "/students/s-1", "Basic good").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, "/students/s-1", "Bearer bad").Code)
}

func TestJWTRejectsUnusableIdentity(t *testing.T) {
	verifier := verifierStub{claims: &models.JWTClaims{Role: "JANITOR"}, err: appErrors.ErrUnauthorized}
	r := newRouter(JWT(verifier))
	assert.Equal(t, http.StatusUnauthorized, serve(r, "/students/s-1", "Bearer good").Code)
}

func TestRBACRolesAndSelf(t *testing.T) {
	student := verifierStub{claims: &models.JWTClaims{UserID: "s-1", Role: models.RoleStudent}}
	lecturer := verifierStub{claims: &models.JWTClaims{UserID: "l-1", Role: models.RoleLecturer}}

	selfOrLecturer := RBAC(string(models.RoleLecturer), "SELF")
	assert.Equal(t, http.StatusOK, serve(newRouter(JWT(student), selfOrLecturer), "/students/s-1", "Bearer good").Code)
	assert.Equal(t, http.StatusForbidden, serve(newRouter(JWT(student), selfOrLecturer), "/students/s-2", "Bearer good").Code)
	assert.Equal(t, http.StatusOK, serve(newRouter(JWT(lecturer), selfOrLecturer), "/students/s-2", "Bearer good").Code)

	adminOnly := RequireRoles(models.RoleAdmin)
	assert.Equal(t, http.StatusForbidden, serve(newRouter(JWT(lecturer), adminOnly), "/students/s-2", "Bearer good").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(newRouter(adminOnly), "/students/s-2", "").Code)
}

type limiterStub struct {
	remaining int
	retry     time.Duration
	err       error
	keys      []string
}

func (l *limiterStub) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	l.keys = append(l.keys, key)
	if l.err != nil {
		return false, 0, l.err
	}
	if l.remaining <= 0 {
		return false, l.retry, nil
	}
	l.remaining--
	return true, 0, nil
}

func TestRateLimitRejectsWithRetryAfter(t *testing.T) {
	verifier := verifierStub{claims: &models.JWTClaims{UserID: "s-1", Role: models.RoleStudent}}
	limiter := &limiterStub{remaining: 1, retry: 1500 * time.Millisecond}
	r := newRouter(JWT(verifier), RateLimit(limiter, nil))

	assert.Equal(t, http.StatusOK, serve(r, "/students/s-1", "Bearer good").Code)
	w := serve(r, "/students/s-1", "Bearer good")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "2", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), appErrors.ErrRateLimited.Code)
	assert.Equal(t, []string{"user:s-1", "user:s-1"}, limiter.keys)
}

func TestRateLimitFailsOpen(t *testing.T) {
	limiter := &limiterStub{err: errors.New("redis down")}
	r := newRouter(RateLimit(limiter, nil))

	assert.Equal(t, http.StatusOK, serve(r, "/students/s-1", "").Code)
	require.Len(t, limiter.keys, 1)
	assert.Contains(t, limiter.keys[0], "ip:")

	assert.Equal(t, http.StatusOK, serve(newRouter(RateLimit(nil, nil)), "/students/s-1", "").Code)
}
