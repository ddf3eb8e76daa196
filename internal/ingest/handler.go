package ingest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"knowledge-hub/internal/files"
	"knowledge-hub/internal/shared/server/middleware"
	"knowledge-hub/internal/shared/server/respond"
)

// multipartOverhead leaves room for boundaries and headers around the file part.
const multipartOverhead = 1 << 20

type Handler struct {
	Svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches the submission routes to a session-gated group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/documents/:id/files/upload", h.upload)
	rg.POST("/documents/:id/files/url", h.submitURL)
}

// RegisterWebhookRoutes attaches the AI service callback. The group must not
// carry the session gate.
func (h *Handler) RegisterWebhookRoutes(rg *gin.RouterGroup) {
	rg.PATCH("/internal/files/status", h.statusCallback)
}

func (h *Handler) upload(c *gin.Context) {
	documentID := c.Param("id")
	c.Set(middleware.DocumentIDKey, documentID)

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.Svc.MaxUploadBytes()+multipartOverhead)
	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respond.FromError(c, tooLargeError(h.Svc.MaxUploadBytes()), nil)
			return
		}
		respond.Error(c, http.StatusBadRequest, "validation_error", "file is required", nil)
		return
	}
	body, err := header.Open()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "could not read uploaded file", nil)
		return
	}
	defer body.Close()

	file, err := h.Svc.SubmitSource(c.Request.Context(), middleware.UserIDFromContext(c), documentID, UploadSource{
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        body,
	})
	h.respondSubmission(c, file, err)
}

func (h *Handler) submitURL(c *gin.Context) {
	documentID := c.Param("id")
	c.Set(middleware.DocumentIDKey, documentID)

	var req urlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	file, err := h.Svc.SubmitSource(c.Request.Context(), middleware.UserIDFromContext(c), documentID, URLSource{URL: req.SourceURL})
	h.respondSubmission(c, file, err)
}

func (h *Handler) respondSubmission(c *gin.Context, file files.File, err error) {
	if file.ID != "" {
		c.Set(middleware.FileIDKey, file.ID)
	}
	if err != nil {
		var details any
		if file.ID != "" {
			details = gin.H{"fileId": file.ID}
		}
		respond.FromError(c, err, details)
		return
	}
	respond.Created(c, files.ToResponse(file))
}

func (h *Handler) statusCallback(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	c.Set(middleware.FileIDKey, req.FileID)
	ack, err := h.Svc.HandleStatusCallback(c.Request.Context(), req.FileID, req.Status, req.ErrorMessage)
	if err != nil {
		respond.FromError(c, err, nil)
		return
	}
	respond.OK(c, ack)
}
