package files

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"knowledge-hub/internal/shared/server/middleware"
	"knowledge-hub/internal/shared/server/respond"
)

type Handler struct {
	Svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches file routes to a session-gated group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/documents/:id/files", h.listForDocument)
	rg.DELETE("/documents/:id/files", h.deleteForDocument)
	rg.GET("/files/:id", h.get)
	rg.PATCH("/files/:id", h.rename)
	rg.DELETE("/files/:id", h.delete)
	rg.DELETE("/user/files", h.deleteAllForUser)
}

func (h *Handler) listForDocument(c *gin.Context) {
	documentID := c.Param("id")
	c.Set(middleware.DocumentIDKey, documentID)
	list, err := h.Svc.ListByDocument(c.Request.Context(), middleware.UserIDFromContext(c), documentID)
	if err != nil {
		respond.FromError(c, err, nil)
		return
	}
	resp := make([]FileResponse, 0, len(list))
	for _, f := range list {
		resp = append(resp, ToResponse(f))
	}
	respond.OK(c, resp)
}

func (h *Handler) deleteForDocument(c *gin.Context) {
	documentID := c.Param("id")
	c.Set(middleware.DocumentIDKey, documentID)
	if err := h.Svc.DeleteForDocument(c.Request.Context(), middleware.UserIDFromContext(c), documentID); err != nil {
		respond.FromError(c, err, nil)
		return
	}
	respond.NoContent(c)
}

func (h *Handler) get(c *gin.Context) {
	fileID := c.Param("id")
	c.Set(middleware.FileIDKey, fileID)
	file, err := h.Svc.Get(c.Request.Context(), middleware.UserIDFromContext(c), fileID)
	if err != nil {
		respond.FromError(c, err, nil)
		return
	}
	respond.OK(c, ToResponse(file))
}

func (h *Handler) rename(c *gin.Context) {
	fileID := c.Param("id")
	c.Set(middleware.FileIDKey, fileID)
	var req renameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	file, err := h.Svc.Rename(c.Request.Context(), middleware.UserIDFromContext(c), fileID, req.FileName)
	if err != nil {
		respond.FromError(c, err, nil)
		return
	}
	respond.OK(c, ToResponse(file))
}

func (h *Handler) delete(c *gin.Context) {
	fileID := c.Param("id")
	c.Set(middleware.FileIDKey, fileID)
	if err := h.Svc.Delete(c.Request.Context(), middleware.UserIDFromContext(c), fileID); err != nil {
		respond.FromError(c, err, nil)
		return
	}
	respond.NoContent(c)
}

func (h *Handler) deleteAllForUser(c *gin.Context) {
	if err := h.Svc.DeleteAllForUser(c.Request.Context(), middleware.UserIDFromContext(c)); err != nil {
		respond.FromError(c, err, nil)
		return
	}
	respond.NoContent(c)
}
