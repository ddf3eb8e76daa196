package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"knowledge-hub/internal/shared/auth"
	"knowledge-hub/internal/shared/server/respond"
	"knowledge-hub/internal/shared/telemetry"
)

const (
	userIDKey    = "userId"
	userEmailKey = "userEmail"
)

// TokenVerifier is satisfied by *auth.Issuer.
type TokenVerifier interface {
	Verify(token string) (auth.Identity, error)
}

// Auth verifies the session token carried in the cookie (or a Bearer header)
// and stores the identity in context. Every failure is the same 401.
func Auth(verifier TokenVerifier, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}

		token, source := tokenFromRequest(c, cookieName)
		if token == "" {
			telemetry.Info("auth.missing_token", map[string]any{
				"path":       c.Request.URL.Path,
				"request_id": RequestIDFromContext(c),
			})
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
			return
		}

		identity, err := verifier.Verify(token)
		if err != nil {
			telemetry.Warn("auth.verify_failed", map[string]any{
				"path":         c.Request.URL.Path,
				"token_source": source,
				"reason":       err.Error(),
				"request_id":   RequestIDFromContext(c),
			})
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
			return
		}

		c.Set(userIDKey, identity.UserID)
		if identity.Email != "" {
			c.Set(userEmailKey, identity.Email)
		}
		c.Next()
	}
}

func tokenFromRequest(c *gin.Context, cookieName string) (string, string) {
	if cookieName != "" {
		if v, err := c.Cookie(cookieName); err == nil && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), "cookie"
		}
	}
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(token), "header"
	}
	return "", ""
}

// UserIDFromContext fetches the user ID set by the auth middleware.
func UserIDFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	val, _ := c.Get(userIDKey)
	if id, ok := val.(string); ok {
		return id
	}
	return ""
}

// UserEmailFromContext fetches the user email set by the auth middleware.
func UserEmailFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	val, _ := c.Get(userEmailKey)
	if email, ok := val.(string); ok {
		return email
	}
	return ""
}
