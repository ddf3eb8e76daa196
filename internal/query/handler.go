package query

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"knowledge-hub/internal/shared/server/middleware"
	"knowledge-hub/internal/shared/server/respond"
)

type askRequest struct {
	Question   string `json:"question"`
	DocumentID string `json:"documentId"`
}

type Handler struct {
	Svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/query", h.ask)
}

func (h *Handler) ask(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	c.Set(middleware.DocumentIDKey, req.DocumentID)
	answer, err := h.Svc.Ask(c.Request.Context(), middleware.UserIDFromContext(c), req.DocumentID, req.Question)
	if err != nil {
		respond.FromError(c, err, nil)
		return
	}
	respond.RawJSON(c, http.StatusOK, answer)
}
