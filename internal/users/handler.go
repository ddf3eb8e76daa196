package users

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"knowledge-hub/internal/shared/server/middleware"
	"knowledge-hub/internal/shared/server/respond"
)

// CookieConfig controls the session cookie.
type CookieConfig struct {
	Name     string
	Domain   string
	Secure   bool
	SameSite http.SameSite
	MaxAge   time.Duration
}

type Handler struct {
	Svc    *Service
	Cookie CookieConfig
}

func NewHandler(svc *Service, cookie CookieConfig) *Handler {
	if cookie.Name == "" {
		cookie.Name = "access_token"
	}
	if cookie.SameSite == 0 {
		cookie.SameSite = http.SameSiteLaxMode
	}
	return &Handler{Svc: svc, Cookie: cookie}
}

// RegisterAuthRoutes mounts the unauthenticated /auth routes.
func (h *Handler) RegisterAuthRoutes(rg *gin.RouterGroup) {
	rg.POST("/auth/register", h.register)
	rg.POST("/auth/login", h.login)
	rg.POST("/auth/logout", h.logout)
}

// RegisterRoutes mounts routes that require a session.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/user/me", h.me)
}

func (h *Handler) register(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	user, token, err := h.Svc.Register(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respond.FromError(c, err, nil)
		return
	}
	h.setSessionCookie(c, token, int(h.Cookie.MaxAge/time.Second))
	respond.Created(c, toProfile(user))
}

func (h *Handler) login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	_, token, err := h.Svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respond.FromError(c, err, nil)
		return
	}
	h.setSessionCookie(c, token, int(h.Cookie.MaxAge/time.Second))
	respond.OK(c, tokenResponse{Token: token})
}

func (h *Handler) logout(c *gin.Context) {
	h.setSessionCookie(c, "", -1)
	respond.NoContent(c)
}

func (h *Handler) me(c *gin.Context) {
	user, err := h.Svc.Me(c.Request.Context(), middleware.UserIDFromContext(c))
	if err != nil {
		respond.FromError(c, err, nil)
		return
	}
	respond.OK(c, toProfile(user))
}

func (h *Handler) setSessionCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(h.Cookie.SameSite)
	c.SetCookie(h.Cookie.Name, value, maxAge, "/", h.Cookie.Domain, h.Cookie.Secure, true)
}
