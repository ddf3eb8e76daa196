package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"knowledge-hub/internal/shared/server/respond"
	"knowledge-hub/internal/shared/telemetry"
)

// WebhookSecretHeader carries the shared secret on AI service callbacks.
const WebhookSecretHeader = "X-Webhook-Secret"

// WebhookSecret rejects callbacks that do not present the shared secret.
// An empty secret disables the check; config validation forbids that in production.
func WebhookSecret(secret string) gin.HandlerFunc {
	expected := []byte(strings.TrimSpace(secret))
	return func(c *gin.Context) {
		if len(expected) == 0 {
			c.Next()
			return
		}
		got := []byte(strings.TrimSpace(c.GetHeader(WebhookSecretHeader)))
		if subtle.ConstantTimeCompare(got, expected) != 1 {
			telemetry.Warn("webhook.rejected", map[string]any{
				"path":       c.Request.URL.Path,
				"client_ip":  c.ClientIP(),
				"has_header": len(got) > 0,
				"request_id": RequestIDFromContext(c),
			})
			respond.Error(c, http.StatusUnauthorized, "unauthorized", "invalid webhook credentials", nil)
			return
		}
		c.Next()
	}
}
