package e2e

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"atelier/internal/database"
	"atelier/internal/domain"
	"atelier/internal/middleware"
	"atelier/internal/modules/auth"
	"atelier/internal/pkg/csrf"
	"atelier/internal/pkg/token"
	"atelier/internal/ratelimit"
	"atelier/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type testSuite struct {
	router *gin.Engine
	db     *gorm.DB
	tokens *token.Service
}

type envelope struct {
	Code      string         `json:"code"`
	Detail    string         `json:"detail"`
	Data      map[string]any `json:"data"`
	Type      string         `json:"type"`
	Errors    []fieldError   `json:"errors"`
	Timestamp string         `json:"timestamp"`
}

type fieldError struct {
	Detail string `json:"detail"`
	Attr   string `json:"attr"`
}

func setupSuite(t *testing.T) *testSuite {
	gin.SetMode(gin.TestMode)

	db, err := database.Connect(":memory:")
	require.NoError(t, err, "failed to connect to test database")

	require.NoError(t, db.AutoMigrate(&domain.User{}, &domain.Session{}))

	tokens := token.New("e2e-jwt-secret")
	guard := csrf.New("e2e-csrf-secret", 24*time.Hour)
	limiter := ratelimit.New(ratelimit.NewMemoryStore(), "e2e")

	userRepo := repository.NewUserRepository(db)
	sessionRepo := repository.NewSessionRepository(db)

	service := auth.NewService(userRepo, sessionRepo, tokens, limiter, 15*time.Minute, 168*time.Hour)
	handler := auth.NewHandler(service, limiter, guard, false, "/", "Strict", 15*time.Minute, 168*time.Hour)

	router := gin.New()
	router.Use(middleware.ErrorLogger())
	router.Use(middleware.CORS())
	router.Use(middleware.CSRF(guard, "/api/v1/auth/login", "/api/v1/auth/register"))

	v1 := router.Group("/api/v1")
	handler.RegisterPublicRoutes(v1)

	protected := v1.Group("/")
	protected.Use(middleware.Auth(tokens))
	handler.RegisterProtectedRoutes(protected)

	return &testSuite{router: router, db: db, tokens: tokens}
}

func (s *testSuite) do(t *testing.T, method, path string, body any, cookies []*http.Cookie, headers map[string]string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(buf)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64; rv:125.0) Gecko/20100101 Firefox/125.0")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w, env
}

func cookieByName(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// fetchCSRF returns the cookie and header pair a state-changing request
// needs to pass the double-submit check.
func (s *testSuite) fetchCSRF(t *testing.T) (*http.Cookie, map[string]string) {
	t.Helper()
	w, _ := s.do(t, "GET", "/api/v1/auth/csrf", nil, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	c := cookieByName(w, auth.CSRFTokenCookie)
	require.NotNil(t, c)
	return c, map[string]string{middleware.CSRFHeader: c.Value}
}

func TestAuthLifecycle(t *testing.T) {
	s := setupSuite(t)

	registerBody := map[string]any{"name": "A", "email": "a@x.com", "password": "longenough1"}

	// Fresh registration creates the account.
	w, env := s.do(t, "POST", "/api/v1/auth/register", registerBody, nil, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "registered", env.Code)

	// Registering the same email again succeeds with the identical body;
	// only the status differs and no second account appears.
	w, env2 := s.do(t, "POST", "/api/v1/auth/register", registerBody, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, env.Code, env2.Code)
	assert.Equal(t, env.Detail, env2.Detail)

	var userCount int64
	require.NoError(t, s.db.Table("users").Count(&userCount).Error)
	assert.Equal(t, int64(1), userCount)

	// Wrong password and correct login.
	w, env = s.do(t, "POST", "/api/v1/auth/login", map[string]any{"email": "a@x.com", "password": "wrongpassword"}, nil, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "invalid_credentials", env.Code)

	w, _ = s.do(t, "POST", "/api/v1/auth/login", map[string]any{"email": "a@x.com", "password": "longenough1"}, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	accessCookie := cookieByName(w, auth.AccessTokenCookie)
	refreshCookie := cookieByName(w, auth.RefreshTokenCookie)
	require.NotNil(t, accessCookie)
	require.NotNil(t, refreshCookie)
	assert.True(t, accessCookie.HttpOnly)
	assert.True(t, refreshCookie.HttpOnly)

	// Both tokens verify and carry the user's identifier as subject.
	claims, err := s.tokens.Verify(accessCookie.Value)
	require.NoError(t, err)
	refreshClaims, err := s.tokens.Verify(refreshCookie.Value)
	require.NoError(t, err)
	assert.Equal(t, claims.UserID, refreshClaims.UserID)

	// The access token opens the protected profile route.
	w, env = s.do(t, "GET", "/api/v1/users/me", nil, []*http.Cookie{accessCookie}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "a@x.com")

	// Refresh rotates the session: new cookies come back and the session
	// row now holds the new value.
	csrfCookie, csrfHeader := s.fetchCSRF(t)
	w, _ = s.do(t, "POST", "/api/v1/auth/refresh", nil, []*http.Cookie{refreshCookie, csrfCookie}, csrfHeader)
	require.Equal(t, http.StatusOK, w.Code)

	newRefresh := cookieByName(w, auth.RefreshTokenCookie)
	require.NotNil(t, newRefresh)
	assert.NotEqual(t, refreshCookie.Value, newRefresh.Value)

	// Presenting the pre-rotation token is reuse: 403 security alert and
	// every session of the user is revoked.
	w, env = s.do(t, "POST", "/api/v1/auth/refresh", nil, []*http.Cookie{refreshCookie, csrfCookie}, csrfHeader)
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "token_reuse_detected", env.Code)
	assert.Equal(t, "client_error", env.Type)

	var sessionCount int64
	require.NoError(t, s.db.Table("sessions").Count(&sessionCount).Error)
	assert.Equal(t, int64(0), sessionCount, "reuse detection must clear the whole session collection")

	// Even the rotated-to token is dead now.
	w, _ = s.do(t, "POST", "/api/v1/auth/refresh", nil, []*http.Cookie{newRefresh, csrfCookie}, csrfHeader)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCSRFDoubleSubmit(t *testing.T) {
	s := setupSuite(t)

	// A state-changing request without the header is rejected outright.
	w, env := s.do(t, "POST", "/api/v1/auth/refresh", nil, nil, nil)
	require.Equal(t, http.StatusForbidden, w.Code)
	require.NotEmpty(t, env.Errors)
	assert.Equal(t, "csrf", env.Errors[0].Attr)

	// With matching cookie and header the CSRF stage passes; the request
	// then fails on the missing refresh token instead.
	csrfCookie, csrfHeader := s.fetchCSRF(t)
	w, _ = s.do(t, "POST", "/api/v1/auth/refresh", nil, []*http.Cookie{csrfCookie}, csrfHeader)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// A header that does not match the cookie fails.
	w, _ = s.do(t, "POST", "/api/v1/auth/refresh", nil, []*http.Cookie{csrfCookie}, map[string]string{middleware.CSRFHeader: "forged-value"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Login and register are exempt entry points.
	w, _ = s.do(t, "POST", "/api/v1/auth/register", map[string]any{"name": "B", "email": "b@x.com", "password": "longenough1"}, nil, nil)
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestLoginRateLimitPerEmail(t *testing.T) {
	s := setupSuite(t)

	w, _ := s.do(t, "POST", "/api/v1/auth/register", map[string]any{"name": "C", "email": "c@x.com", "password": "longenough1"}, nil, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	// Five attempts within the window are answered on the merits.
	for i := 0; i < 5; i++ {
		w, _ = s.do(t, "POST", "/api/v1/auth/login", map[string]any{"email": "c@x.com", "password": "wrongpassword"}, nil, nil)
		require.Equal(t, http.StatusUnauthorized, w.Code, "attempt %d", i+1)
	}

	// The sixth is denied by the email-scoped limit, even with the right
	// password.
	w, env := s.do(t, "POST", "/api/v1/auth/login", map[string]any{"email": "c@x.com", "password": "longenough1"}, nil, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "rate_limited", env.Code)
}

func TestLogoutClearsSession(t *testing.T) {
	s := setupSuite(t)

	w, _ := s.do(t, "POST", "/api/v1/auth/register", map[string]any{"name": "D", "email": "d@x.com", "password": "longenough1"}, nil, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	w, _ = s.do(t, "POST", "/api/v1/auth/login", map[string]any{"email": "d@x.com", "password": "longenough1"}, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	refreshCookie := cookieByName(w, auth.RefreshTokenCookie)
	require.NotNil(t, refreshCookie)

	csrfCookie, csrfHeader := s.fetchCSRF(t)
	w, _ = s.do(t, "POST", "/api/v1/auth/logout", nil, []*http.Cookie{refreshCookie, csrfCookie}, csrfHeader)
	require.Equal(t, http.StatusOK, w.Code)

	var sessionCount int64
	require.NoError(t, s.db.Table("sessions").Count(&sessionCount).Error)
	assert.Equal(t, int64(0), sessionCount)

	// Cookies come back cleared.
	cleared := cookieByName(w, auth.RefreshTokenCookie)
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)

	// Logging out again without a session is fine.
	w, _ = s.do(t, "POST", "/api/v1/auth/logout", nil, []*http.Cookie{csrfCookie}, csrfHeader)
	assert.Equal(t, http.StatusOK, w.Code)
}
