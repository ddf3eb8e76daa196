package local

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"

	"knowledge-hub/internal/shared/server/respond"
	"knowledge-hub/internal/shared/storage/object"
	"knowledge-hub/internal/shared/telemetry"
)

// ObjectsPath is the download route, relative to the API base.
const ObjectsPath = "/api/v1/storage/objects"

// Handler serves objects for signed URLs minted by Store.
type Handler struct {
	Store *Store
}

func NewHandler(store *Store) *Handler {
	return &Handler{Store: store}
}

// RegisterRoutes mounts the download route on an /api/v1 group. It must sit
// outside the session gate: the token in the URL is the credential.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/storage/objects/*key", h.download)
}

func (h *Handler) download(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("key"), "/")
	subject, err := h.Store.signer.VerifyScoped(c.Query("token"), DownloadAudience)
	if err != nil || subject != key {
		respond.Error(c, http.StatusUnauthorized, "unauthorized", "invalid or expired link", nil)
		return
	}

	rc, err := h.Store.Open(c.Request.Context(), key)
	if err != nil {
		if errors.Is(err, object.ErrNotFound) {
			respond.Error(c, http.StatusNotFound, "not_found", "object not found", nil)
			return
		}
		respond.FromError(c, err, nil)
		return
	}
	defer rc.Close()

	contentType := mime.TypeByExtension(path.Ext(key))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Type", contentType)
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, rc); err != nil {
		telemetry.Warn("storage.download_interrupted", map[string]any{"key": key, "error": err})
	}
}
