package middleware

import (
	"strings"

	"atelier/internal/modules/auth"
	"atelier/internal/pkg/apperror"
	"atelier/internal/pkg/response"
	"atelier/internal/pkg/token"

	"github.com/gin-gonic/gin"
)

// Auth authenticates requests by access token: the accessToken cookie
// for browsers, or a Bearer header for clients that asked for raw
// tokens. Every failure mode answers with the same generic 401.
func Auth(tokens *token.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr, err := c.Cookie(auth.AccessTokenCookie)
		if err != nil || tokenStr == "" {
			h := c.GetHeader("Authorization")
			if strings.HasPrefix(h, "Bearer ") {
				tokenStr = strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
			}
		}
		if tokenStr == "" {
			abortUnauthorized(c)
			return
		}

		claims, err := tokens.Verify(tokenStr)
		if err != nil {
			abortUnauthorized(c)
			return
		}

		c.Set("user_id", claims.UserID)
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context) {
	response.Error(c, apperror.New(apperror.Unauthorized, "unauthorized", "Authentication required"))
	c.Abort()
}
