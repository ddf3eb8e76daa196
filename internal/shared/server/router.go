package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"knowledge-hub/internal/documents"
	"knowledge-hub/internal/files"
	"knowledge-hub/internal/ingest"
	"knowledge-hub/internal/query"
	"knowledge-hub/internal/services/health"
	"knowledge-hub/internal/shared/config"
	"knowledge-hub/internal/shared/metrics"
	"knowledge-hub/internal/shared/server/middleware"
	"knowledge-hub/internal/shared/server/respond"
	localstore "knowledge-hub/internal/shared/storage/object/local"
	"knowledge-hub/internal/users"
)

const (
	rateGroupDefault = "DEFAULT"
	rateGroupAuth    = "AUTH"
)

// RouterDeps carries the handlers the router mounts. LocalObjects is nil
// unless the local object store is in use.
type RouterDeps struct {
	Config          config.Config
	Verifier        middleware.TokenVerifier
	Metrics         *metrics.Registry
	Health          *health.Service
	UserHandler     *users.Handler
	DocumentHandler *documents.Handler
	FileHandler     *files.Handler
	IngestHandler   *ingest.Handler
	QueryHandler    *query.Handler
	LocalObjects    *localstore.Handler
	RateLimiter     *middleware.RateLimiter
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	cfg := deps.Config
	if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(cfg.CORSAllowOrigin),
	)
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware())
		r.GET("/metrics", deps.Metrics.Handler())
	}

	limit := middleware.RateLimit(middleware.RateLimitConfig{
		DefaultGroup: rateGroupDefault,
		GroupFor:     rateGroupFor,
		Limiter:      deps.RateLimiter,
		Rules: map[string]middleware.RateLimitRule{
			rateGroupDefault: {Rate: cfg.RateLimitRPS, Burst: cfg.RateLimitBurst},
			rateGroupAuth:    authRule(cfg),
		},
	})

	api := r.Group("/api/v1")
	api.GET("/health", healthHandler(deps.Health))

	public := api.Group("", limit)
	if deps.UserHandler != nil {
		deps.UserHandler.RegisterAuthRoutes(public)
	}
	if deps.LocalObjects != nil {
		deps.LocalObjects.RegisterRoutes(api)
	}

	// The AI service authenticates with the shared webhook secret, not a session.
	if deps.IngestHandler != nil {
		webhook := api.Group("", middleware.WebhookSecret(cfg.WebhookSecret))
		deps.IngestHandler.RegisterWebhookRoutes(webhook)
	}

	gated := api.Group("", middleware.Auth(deps.Verifier, cfg.CookieName), limit)
	if deps.UserHandler != nil {
		deps.UserHandler.RegisterRoutes(gated)
	}
	if deps.DocumentHandler != nil {
		deps.DocumentHandler.RegisterRoutes(gated)
	}
	if deps.FileHandler != nil {
		deps.FileHandler.RegisterRoutes(gated)
	}
	if deps.IngestHandler != nil {
		deps.IngestHandler.RegisterRoutes(gated)
	}
	if deps.QueryHandler != nil {
		deps.QueryHandler.RegisterRoutes(gated)
	}

	return r
}

func healthHandler(svc *health.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if svc == nil {
			respond.OK(c, gin.H{"ok": true})
			return
		}
		ok, checks := svc.Status(c.Request.Context())
		status := http.StatusOK
		if !ok {
			status = http.StatusServiceUnavailable
		}
		respond.JSON(c, status, gin.H{"ok": ok, "checks": checks})
	}
}

func rateGroupFor(c *gin.Context) string {
	if strings.HasPrefix(c.FullPath(), "/api/v1/auth/") {
		return rateGroupAuth
	}
	return rateGroupDefault
}

// authRule keeps credential endpoints well below the general limit.
func authRule(cfg config.Config) middleware.RateLimitRule {
	if cfg.RateLimitRPS <= 0 || cfg.RateLimitBurst <= 0 {
		return middleware.RateLimitRule{}
	}
	rule := middleware.RateLimitRule{Rate: cfg.RateLimitRPS / 10, Burst: cfg.RateLimitBurst / 3}
	if rule.Rate < 0.2 {
		rule.Rate = 0.2
	}
	if rule.Burst < 3 {
		rule.Burst = 3
	}
	return rule
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
