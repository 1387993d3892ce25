package auth

import (
	"net/http"
	"strings"
	"time"

	"atelier/internal/pkg/apperror"
	"atelier/internal/pkg/csrf"
	"atelier/internal/pkg/response"
	"atelier/internal/pkg/validator"
	"atelier/internal/ratelimit"

	"github.com/gin-gonic/gin"
)

const (
	AccessTokenCookie  = "accessToken"
	RefreshTokenCookie = "refreshToken"
	CSRFTokenCookie    = "csrf_token"
)

// Handler manages all HTTP interactions for authentication
type Handler struct {
	service *Service
	limiter rateLimiter
	guard   *csrf.Guard

	cookieSecure bool
	cookiePath   string
	sameSite     http.SameSite
	accessTTL    time.Duration
	refreshTTL   time.Duration
}

// NewHandler creates a new auth handler with injected service
func NewHandler(service *Service, limiter rateLimiter, guard *csrf.Guard, cookieSecure bool, cookiePath, sameSite string, accessTTL, refreshTTL time.Duration) *Handler {
	return &Handler{
		service:      service,
		limiter:      limiter,
		guard:        guard,
		cookieSecure: cookieSecure,
		cookiePath:   cookiePath,
		sameSite:     parseSameSite(sameSite),
		accessTTL:    accessTTL,
		refreshTTL:   refreshTTL,
	}
}

func (h *Handler) RegisterPublicRoutes(v1 *gin.RouterGroup) {
	authGroup := v1.Group("/auth")
	{
		authGroup.POST("/register", h.Register)
		authGroup.POST("/login", h.Login)
		authGroup.POST("/refresh", h.Refresh)
		authGroup.POST("/logout", h.Logout)
		authGroup.GET("/csrf", h.CSRFToken)
	}
}

func (h *Handler) RegisterProtectedRoutes(protected *gin.RouterGroup) {
	userGroup := protected.Group("/users")
	{
		userGroup.GET("/me", h.GetMe)
	}
}

// Register creates a new account.
// @Summary	Register an account
// @Router	/auth/register [POST]
func (h *Handler) Register(c *gin.Context) {
	if !h.allowByIP(c, "register", ratelimit.RegisterPerIP) {
		return
	}

	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.New(apperror.Validation, "validation_error", "Invalid request body"))
		return
	}
	if fields := validator.Validate(req); fields != nil {
		response.ValidationErrors(c, fields)
		return
	}

	created, err := h.service.Register(c.Request.Context(), req)
	if err != nil {
		if err == ErrBotDetected {
			response.Error(c, apperror.New(apperror.Validation, "validation_error", "Invalid request body"))
			return
		}
		response.Error(c, apperror.New(apperror.Internal, "registration_failed", "Failed to register").WithCause(err))
		return
	}

	// Same body whether the account was created or already existed; only
	// the status differs. This route never confirms account existence.
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	response.Success(c, status, "registered", "If this email is valid, you will be able to log in.", nil)
}

// Login verifies credentials and opens a session.
// @Summary	Log in
// @Router	/auth/login [POST]
func (h *Handler) Login(c *gin.Context) {
	if !h.allowByIP(c, "login", ratelimit.LoginPerIP) {
		return
	}

	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.New(apperror.Validation, "validation_error", "Invalid request body"))
		return
	}
	if fields := validator.Validate(req); fields != nil {
		response.ValidationErrors(c, fields)
		return
	}

	meta := SessionMetadata{
		IP:        c.ClientIP(),
		UserAgent: c.GetHeader("User-Agent"),
		Geo:       clientGeo(c),
	}

	result, err := h.service.Login(c.Request.Context(), req, meta)
	if err != nil {
		switch err {
		case ErrRateLimited:
			response.Error(c, apperror.New(apperror.RateLimit, "rate_limited", "Too many login attempts, try again later"))
		case ErrInvalidCredentials:
			response.Error(c, apperror.New(apperror.Unauthorized, "invalid_credentials", "Email or password is incorrect"))
		default:
			response.Error(c, apperror.New(apperror.Internal, "login_failed", "Failed to login").WithCause(err))
		}
		return
	}

	h.setAuthCookies(c, result.AccessToken, result.RefreshToken)

	data := gin.H{
		"user": UserPublic{ID: result.User.ID, Name: result.User.Name, Email: result.User.Email},
	}
	if req.ReturnToken {
		data["tokens"] = TokenPair{AccessToken: result.AccessToken, RefreshToken: result.RefreshToken}
	}
	response.Success(c, http.StatusOK, "logged_in", "Login successful", data)
}

// Refresh rotates the refresh-token cookie.
// @Summary	Refresh the session
// @Router	/auth/refresh [POST]
func (h *Handler) Refresh(c *gin.Context) {
	refreshRaw, err := c.Cookie(RefreshTokenCookie)
	if err != nil || refreshRaw == "" {
		response.Error(c, apperror.New(apperror.Unauthorized, "unauthorized", "Refresh token missing"))
		return
	}

	result, err := h.service.Refresh(c.Request.Context(), refreshRaw)
	if err != nil {
		switch err {
		case ErrInvalidRefreshToken:
			response.Error(c, apperror.New(apperror.Unauthorized, "unauthorized", "Invalid or expired refresh token"))
		case ErrRefreshTokenReused:
			response.Error(c, apperror.New(apperror.SecurityAlert, "token_reuse_detected", "Security alert: refresh token reuse detected, all sessions revoked"))
		default:
			response.Error(c, apperror.New(apperror.Internal, "refresh_failed", "Failed to refresh session").WithCause(err))
		}
		return
	}

	h.setAuthCookies(c, result.AccessToken, result.RefreshToken)
	response.Success(c, http.StatusOK, "refreshed", "Session refreshed", nil)
}

// Logout removes the presented session and clears cookies.
// @Summary	Log out
// @Router	/auth/logout [POST]
func (h *Handler) Logout(c *gin.Context) {
	refreshRaw, err := c.Cookie(RefreshTokenCookie)
	if err == nil && refreshRaw != "" {
		if err := h.service.Logout(c.Request.Context(), refreshRaw); err != nil {
			response.Error(c, apperror.New(apperror.Internal, "logout_failed", "Failed to logout").WithCause(err))
			return
		}
	}

	h.clearAuthCookies(c)
	response.Success(c, http.StatusOK, "logged_out", "Logout successful", nil)
}

// CSRFToken issues a fresh anti-forgery cookie, rate-limited per IP.
// @Summary	Issue a CSRF token
// @Router	/auth/csrf [GET]
func (h *Handler) CSRFToken(c *gin.Context) {
	if !h.allowByIP(c, "csrf", ratelimit.CSRFPerIP) {
		return
	}

	tok, err := h.guard.Generate()
	if err != nil {
		response.Error(c, apperror.New(apperror.Internal, "csrf_issue_failed", "Failed to issue CSRF token").WithCause(err))
		return
	}

	c.SetSameSite(h.sameSite)
	c.SetCookie(CSRFTokenCookie, tok, int(h.guard.Window().Seconds()), h.cookiePath, "", h.cookieSecure, true)
	response.Success(c, http.StatusOK, "csrf_issued", "CSRF token issued", gin.H{"csrfToken": tok})
}

// GetMe returns the authenticated user's identity.
// @Summary	Current user profile
// @Security	BearerAuth
// @Router	/users/me [GET]
func (h *Handler) GetMe(c *gin.Context) {
	userID := c.GetInt64("user_id")
	if userID == 0 {
		response.Error(c, apperror.New(apperror.Unauthorized, "unauthorized", "Authentication required"))
		return
	}

	user, err := h.service.GetCurrentUser(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, apperror.New(apperror.Unauthorized, "unauthorized", "User not found"))
		return
	}

	response.Success(c, http.StatusOK, "me", "Current user", gin.H{
		"user": UserPublic{ID: user.ID, Name: user.Name, Email: user.Email},
	})
}

// allowByIP runs the IP-scoped limit before anything else touches the
// request. A limiter failure is a server error, never a pass-through.
func (h *Handler) allowByIP(c *gin.Context, action string, p ratelimit.Policy) bool {
	allowed, err := h.limiter.Allow(c.Request.Context(), action, c.ClientIP(), p)
	if err != nil {
		response.Error(c, apperror.New(apperror.Internal, "rate_limiter_unavailable", "Service temporarily unavailable").WithCause(err))
		return false
	}
	if !allowed {
		response.Error(c, apperror.New(apperror.RateLimit, "rate_limited", "Too many requests, try again later"))
		return false
	}
	return true
}

func (h *Handler) setAuthCookies(c *gin.Context, accessToken, refreshToken string) {
	c.SetSameSite(h.sameSite)
	c.SetCookie(AccessTokenCookie, accessToken, int(h.accessTTL.Seconds()), h.cookiePath, "", h.cookieSecure, true)
	c.SetCookie(RefreshTokenCookie, refreshToken, int(h.refreshTTL.Seconds()), h.cookiePath, "", h.cookieSecure, true)
}

func (h *Handler) clearAuthCookies(c *gin.Context) {
	c.SetSameSite(h.sameSite)
	c.SetCookie(AccessTokenCookie, "", -1, h.cookiePath, "", h.cookieSecure, true)
	c.SetCookie(RefreshTokenCookie, "", -1, h.cookiePath, "", h.cookieSecure, true)
}

func parseSameSite(v string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "lax":
		return http.SameSiteLaxMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteStrictMode
	}
}

// clientGeo reads the coarse location headers CDNs attach; empty when
// the deployment has none in front.
func clientGeo(c *gin.Context) string {
	city := c.GetHeader("X-Vercel-IP-City")
	country := c.GetHeader("X-Vercel-IP-Country")
	if country == "" {
		country = c.GetHeader("CF-IPCountry")
	}
	switch {
	case city != "" && country != "":
		return city + ", " + country
	case country != "":
		return country
	default:
		return ""
	}
}
