package auth

type RegisterRequest struct {
	Name     string `json:"name" binding:"required" validate:"required,min=2"`
	Email    string `json:"email" binding:"required,email" validate:"required,email"`
	Password string `json:"password" binding:"required,min=8" validate:"required,min=8"`
	// Honey is a hidden form field real users never fill; a non-empty
	// value marks the submission as a bot.
	Honey string `json:"_honey"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email" validate:"required,email"`
	Password string `json:"password" binding:"required" validate:"required"`
	// ReturnToken asks for the raw tokens in the body, for non-browser
	// clients that cannot use cookies.
	ReturnToken bool `json:"returnToken"`
}

type UserPublic struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}
