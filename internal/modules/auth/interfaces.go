package auth

import (
	"context"
	"time"

	"atelier/internal/domain"
)

// UserRepositoryInterface — only the methods auth service uses
type UserRepositoryInterface interface {
	Create(ctx context.Context, u *domain.User) error
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByEmailWithPassword(ctx context.Context, email string) (*domain.User, error)
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
}

// SessionRepositoryInterface — the user's session collection
type SessionRepositoryInterface interface {
	Append(ctx context.Context, s *domain.Session) error
	FindByRefreshToken(ctx context.Context, userID int64, token string) (*domain.Session, error)
	Rotate(ctx context.Context, sessionID int64, newToken string, newExp time.Time) error
	RevokeAll(ctx context.Context, userID int64) error
	DeleteByRefreshToken(ctx context.Context, userID int64, token string) error
}
