package documents

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"knowledge-hub/internal/shared/server/middleware"
	"knowledge-hub/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches document routes to a session-gated group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/documents", h.create)
	rg.GET("/documents", h.list)
	rg.GET("/documents/:id", h.get)
	rg.PATCH("/documents/:id", h.update)
	rg.DELETE("/documents/:id", h.delete)
}

func (h *Handler) create(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	doc, err := h.Svc.Create(c.Request.Context(), middleware.UserIDFromContext(c), req.Name, req.Description)
	if err != nil {
		respond.FromError(c, err, nil)
		return
	}
	c.Set(middleware.DocumentIDKey, doc.ID)
	respond.Created(c, toResponse(doc))
}

func (h *Handler) list(c *gin.Context) {
	docs, err := h.Svc.List(c.Request.Context(), middleware.UserIDFromContext(c))
	if err != nil {
		respond.FromError(c, err, nil)
		return
	}
	resp := make([]DocumentResponse, 0, len(docs))
	for _, doc := range docs {
		resp = append(resp, toResponse(doc))
	}
	respond.OK(c, resp)
}

func (h *Handler) get(c *gin.Context) {
	id := c.Param("id")
	c.Set(middleware.DocumentIDKey, id)
	doc, err := h.Svc.Get(c.Request.Context(), middleware.UserIDFromContext(c), id)
	if err != nil {
		respond.FromError(c, err, nil)
		return
	}
	respond.OK(c, toResponse(doc))
}

func (h *Handler) update(c *gin.Context) {
	id := c.Param("id")
	c.Set(middleware.DocumentIDKey, id)
	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	doc, err := h.Svc.Update(c.Request.Context(), middleware.UserIDFromContext(c), id, Patch{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		respond.FromError(c, err, nil)
		return
	}
	respond.OK(c, toResponse(doc))
}

func (h *Handler) delete(c *gin.Context) {
	id := c.Param("id")
	c.Set(middleware.DocumentIDKey, id)
	if err := h.Svc.Delete(c.Request.Context(), middleware.UserIDFromContext(c), id); err != nil {
		respond.FromError(c, err, nil)
		return
	}
	respond.NoContent(c)
}
