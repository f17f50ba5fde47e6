package auth

import (
	"strings"

	"github.com/gin-gonic/gin"
	apperrors "github.com/searchgate/server/internal/shared/errors"
	"github.com/searchgate/server/internal/shared/response"
)

// ContextAccountIDKey is the gin context key carrying the resolved account ID.
const ContextAccountIDKey = "account_id"

// Middleware returns a middleware that resolves the caller's account from
// the X-API-Key header or the Authorization bearer header and stores it in
// the request context.
func Middleware(resolver *Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		credential := c.GetHeader("X-API-Key")
		if credential == "" {
			authHeader := c.GetHeader("Authorization")
			if authHeader == "" {
				response.HandleAppError(c, apperrors.Unauthorized("credentials required"))
				c.Abort()
				return
			}
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				response.HandleAppError(c, apperrors.Unauthorized("invalid authorization header format"))
				c.Abort()
				return
			}
			credential = parts[1]
		}

		accountID, err := resolver.Resolve(c.Request.Context(), credential)
		if err != nil {
			response.HandleAppError(c, apperrors.Unauthorized("invalid credentials"))
			c.Abort()
			return
		}

		c.Set(ContextAccountIDKey, accountID)
		c.Next()
	}
}

// AccountID returns the resolved account ID from the request context.
func AccountID(c *gin.Context) string {
	return c.GetString(ContextAccountIDKey)
}
