package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"atelier/internal/domain"
	"atelier/internal/pkg/token"
	"atelier/internal/pkg/useragent"
	"atelier/internal/ratelimit"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type tokenService interface {
	Sign(userID int64, ttl time.Duration) (string, error)
	Verify(tokenStr string) (*token.Claims, error)
}

type rateLimiter interface {
	Allow(ctx context.Context, action, scope string, p ratelimit.Policy) (bool, error)
}

// SessionMetadata carries the request-side facts recorded on a session.
type SessionMetadata struct {
	IP        string
	UserAgent string
	Geo       string
}

// Service contains all business logic for authentication
type Service struct {
	users      UserRepositoryInterface
	sessions   SessionRepositoryInterface
	tokens     tokenService
	limiter    rateLimiter
	accessTTL  time.Duration
	refreshTTL time.Duration
}

type LoginResult struct {
	User         *domain.User
	AccessToken  string
	RefreshToken string
}

type RefreshResult struct {
	AccessToken  string
	RefreshToken string
}

func NewService(
	users UserRepositoryInterface,
	sessions SessionRepositoryInterface,
	tokens tokenService,
	limiter rateLimiter,
	accessTTL time.Duration,
	refreshTTL time.Duration,
) *Service {
	return &Service{
		users:      users,
		sessions:   sessions,
		tokens:     tokens,
		limiter:    limiter,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// Register creates the account unless the email is already taken. The
// taken case reports created=false with no error: the route answers with
// the same success shape either way so account existence never leaks.
// The IP-scoped rate limit runs at the handler, before body parsing.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (bool, error) {
	if strings.TrimSpace(req.Honey) != "" {
		return false, ErrBotDetected
	}

	email := normalizeEmail(req.Email)
	exists, err := s.users.ExistsByEmail(ctx, email)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	// Hash-before-persist is an explicit step of the write path, not a
	// lifecycle hook.
	hashedPassword, err := s.hashPassword(req.Password)
	if err != nil {
		return false, err
	}

	user := &domain.User{
		Name:         req.Name,
		Email:        email,
		PasswordHash: hashedPassword,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return false, err
	}
	return true, nil
}

// Login runs the email-scoped rate limit, verifies credentials, and on
// success appends a session carrying a fresh refresh token. Unknown
// email and wrong password collapse into one ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, req LoginRequest, meta SessionMetadata) (*LoginResult, error) {
	email := normalizeEmail(req.Email)

	allowed, err := s.limiter.Allow(ctx, "login", email, ratelimit.LoginPerEmail)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, ErrRateLimited
	}

	user, err := s.users.GetByEmailWithPassword(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	accessToken, refreshToken, err := s.mintPair(user.ID)
	if err != nil {
		return nil, err
	}

	osName, browser := useragent.Parse(meta.UserAgent)
	session := &domain.Session{
		UserID:       user.ID,
		RefreshToken: refreshToken,
		RefreshExp:   time.Now().Add(s.refreshTTL),
		IP:           meta.IP,
		OS:           osName,
		Browser:      browser,
		Geo:          meta.Geo,
		Type:         domain.SessionPassword,
	}
	if err := s.sessions.Append(ctx, session); err != nil {
		return nil, err
	}

	user.PasswordHash = ""
	return &LoginResult{User: user, AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

// Refresh rotates the presented refresh token in place. A token that
// verifies cryptographically but is held by no session was already
// rotated away; that is treated as theft and every session of the user
// is revoked before the error returns.
func (s *Service) Refresh(ctx context.Context, refreshRaw string) (*RefreshResult, error) {
	claims, err := s.tokens.Verify(refreshRaw)
	if err != nil {
		return nil, ErrInvalidRefreshToken
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, err
	}

	session, err := s.sessions.FindByRefreshToken(ctx, user.ID, refreshRaw)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if revokeErr := s.sessions.RevokeAll(ctx, user.ID); revokeErr != nil {
				return nil, revokeErr
			}
			return nil, ErrRefreshTokenReused
		}
		return nil, err
	}

	accessToken, refreshToken, err := s.mintPair(user.ID)
	if err != nil {
		return nil, err
	}

	if err := s.sessions.Rotate(ctx, session.ID, refreshToken, time.Now().Add(s.refreshTTL)); err != nil {
		return nil, err
	}

	return &RefreshResult{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

// Logout removes the session holding the presented refresh token.
// Unknown or malformed tokens are a no-op; logout is idempotent.
func (s *Service) Logout(ctx context.Context, refreshRaw string) error {
	claims, err := s.tokens.Verify(refreshRaw)
	if err != nil {
		return nil
	}
	return s.sessions.DeleteByRefreshToken(ctx, claims.UserID, refreshRaw)
}

func (s *Service) GetCurrentUser(ctx context.Context, userID int64) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	user.PasswordHash = ""
	return user, nil
}

func (s *Service) mintPair(userID int64) (access string, refresh string, err error) {
	access, err = s.tokens.Sign(userID, s.accessTTL)
	if err != nil {
		return "", "", err
	}
	refresh, err = s.tokens.Sign(userID, s.refreshTTL)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

func (s *Service) hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
