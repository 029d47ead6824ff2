package uploads

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"propertyhub/owner-portal/owner-portal-backend/internal/auth"
	"propertyhub/owner-portal/owner-portal-backend/pkg/apperrors"
	"propertyhub/owner-portal/owner-portal-backend/pkg/storage"
)

// AllowedMIMETypes are accepted for generic uploads: identity documents,
// handover attachments and message attachments.
var AllowedMIMETypes = map[string]bool{
	"image/jpeg":      true,
	"image/jpg":       true,
	"image/png":       true,
	"image/webp":      true,
	"application/pdf": true,
}

// Result is returned by POST /uploads.
type Result struct {
	URL       string `json:"url"`
	MimeType  string `json:"mimeType"`
	SizeBytes int64  `json:"sizeBytes"`
}

type Handler struct {
	storage  storage.S3Client
	maxBytes int64
	logger   *zap.Logger
}

func NewHandler(store storage.S3Client, maxBytes int64, logger *zap.Logger) *Handler {
	return &Handler{storage: store, maxBytes: maxBytes, logger: logger}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/uploads", h.Upload)
}

func (h *Handler) Upload(c *gin.Context) {
	actor, ok := auth.ActorFrom(c)
	if !ok {
		apperrors.Respond(c, h.logger, apperrors.Unauthenticated("not authenticated"))
		return
	}

	file, err := ReadFile(c, "file", h.maxBytes)
	if err != nil {
		apperrors.Respond(c, h.logger, err)
		return
	}
	defer file.Close()

	if !AllowedMIMETypes[file.MimeType] {
		apperrors.Respond(c, h.logger, apperrors.Validation("file", "unsupported file type %q", file.MimeType))
		return
	}
	if file.Size > h.maxBytes {
		apperrors.Respond(c, h.logger, apperrors.Validation("file", "file exceeds the maximum size of %s", storage.FormatBytes(h.maxBytes)))
		return
	}

	key := storage.ObjectKey("uploads/"+actor.UserID.String(), file.Name)
	url, err := h.storage.Upload(c.Request.Context(), key, file.Body, file.MimeType)
	if err != nil {
		apperrors.Respond(c, h.logger, apperrors.Infra("store upload", err))
		return
	}

	h.logger.Info("File uploaded",
		zap.String("user_id", actor.UserID.String()),
		zap.String("object_key", key),
		zap.Int64("size_bytes", file.Size))
	c.JSON(http.StatusCreated, Result{URL: url, MimeType: file.MimeType, SizeBytes: file.Size})
}
