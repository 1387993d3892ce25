package domain

import "time"

type SessionType string

const (
	SessionPassword SessionType = "password"
	SessionOAuth    SessionType = "oauth"
)

// User is the identity record. PasswordHash is stored only as a bcrypt
// hash, excluded from default reads by the repository, and never
// serialized into API responses.
type User struct {
	ID           int64     `json:"id" gorm:"primaryKey"`
	Name         string    `json:"name"`
	Email        string    `json:"email" gorm:"uniqueIndex;not null" validate:"required,email"`
	PasswordHash string    `json:"-" gorm:"not null"`
	Sessions     []Session `json:"-" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Session is one refresh-token lineage tied to one login.
//
// Security notes:
//   - RefreshToken holds the lineage's live credential; rotation overwrites
//     it in place and every older value becomes a theft signal on sight.
//   - Access tokens are stateless and never stored.
type Session struct {
	ID int64 `json:"id" gorm:"primaryKey"`

	UserID int64 `json:"user_id" gorm:"index;not null"`

	RefreshToken string    `json:"-" gorm:"index;not null"`
	RefreshExp   time.Time `json:"-" gorm:"index;not null"`

	IP      string      `json:"ip,omitempty"`
	OS      string      `json:"os,omitempty"`
	Browser string      `json:"browser,omitempty"`
	Geo     string      `json:"geo,omitempty"`
	Type    SessionType `json:"type" gorm:"not null;default:password"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *Session) IsExpired(now time.Time) bool {
	return now.After(s.RefreshExp)
}
