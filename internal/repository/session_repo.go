package repository

import (
	"context"
	"time"

	"atelier/internal/domain"

	"gorm.io/gorm"
)

type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

type sessionModel struct {
	ID           int64     `gorm:"column:id;primaryKey"`
	UserID       int64     `gorm:"column:user_id"`
	RefreshToken string    `gorm:"column:refresh_token"`
	RefreshExp   time.Time `gorm:"column:refresh_exp"`
	IP           string    `gorm:"column:ip"`
	OS           string    `gorm:"column:os"`
	Browser      string    `gorm:"column:browser"`
	Geo          string    `gorm:"column:geo"`
	Type         string    `gorm:"column:type"`
	CreatedAt    time.Time `gorm:"column:created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at"`
}

func (sessionModel) TableName() string { return "sessions" }

func toDomainSession(m sessionModel) *domain.Session {
	return &domain.Session{
		ID:           m.ID,
		UserID:       m.UserID,
		RefreshToken: m.RefreshToken,
		RefreshExp:   m.RefreshExp,
		IP:           m.IP,
		OS:           m.OS,
		Browser:      m.Browser,
		Geo:          m.Geo,
		Type:         domain.SessionType(m.Type),
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

// Append adds a new session row to the user's collection. There is no
// cap on concurrent sessions per user.
func (r *SessionRepository) Append(ctx context.Context, s *domain.Session) error {
	m := sessionModel{
		UserID:       s.UserID,
		RefreshToken: s.RefreshToken,
		RefreshExp:   s.RefreshExp,
		IP:           s.IP,
		OS:           s.OS,
		Browser:      s.Browser,
		Geo:          s.Geo,
		Type:         string(s.Type),
	}
	tx := r.db.WithContext(ctx).Create(&m)
	if tx.Error != nil {
		return tx.Error
	}
	*s = *toDomainSession(m)
	return nil
}

// FindByRefreshToken locates the user's session holding exactly this
// refresh-token value. gorm.ErrRecordNotFound means no session holds it,
// which for a signature-valid token is the reuse signal.
func (r *SessionRepository) FindByRefreshToken(ctx context.Context, userID int64, token string) (*domain.Session, error) {
	var m sessionModel
	tx := r.db.WithContext(ctx).
		Where("user_id = ? AND refresh_token = ?", userID, token).
		First(&m)
	if tx.Error != nil {
		return nil, tx.Error
	}
	return toDomainSession(m), nil
}

// Rotate overwrites only the refresh-token value and its expiry; device
// metadata stays as recorded at login.
func (r *SessionRepository) Rotate(ctx context.Context, sessionID int64, newToken string, newExp time.Time) error {
	return r.db.WithContext(ctx).
		Model(&sessionModel{}).
		Where("id = ?", sessionID).
		Updates(map[string]any{
			"refresh_token": newToken,
			"refresh_exp":   newExp,
			"updated_at":    time.Now(),
		}).Error
}

// RevokeAll clears the user's entire session collection.
func (r *SessionRepository) RevokeAll(ctx context.Context, userID int64) error {
	return r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&sessionModel{}).Error
}

// DeleteByRefreshToken removes the single session matching the token.
// Missing rows are not an error; logout is idempotent.
func (r *SessionRepository) DeleteByRefreshToken(ctx context.Context, userID int64, token string) error {
	return r.db.WithContext(ctx).
		Where("user_id = ? AND refresh_token = ?", userID, token).
		Delete(&sessionModel{}).Error
}

// DeleteExpired prunes sessions whose refresh token can no longer be
// presented. Used by the cleanup binary.
func (r *SessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	tx := r.db.WithContext(ctx).
		Where("refresh_exp < ?", time.Now()).
		Delete(&sessionModel{})
	return tx.RowsAffected, tx.Error
}
