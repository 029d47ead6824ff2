package verification

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"propertyhub/owner-portal/owner-portal-backend/internal/auth"
	"propertyhub/owner-portal/owner-portal-backend/internal/uploads"
	"propertyhub/owner-portal/owner-portal-backend/pkg/apperrors"
)

type Handler struct {
	service  Service
	maxBytes int64
	logger   *zap.Logger
}

func NewHandler(service Service, maxBytes int64, logger *zap.Logger) *Handler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	return &Handler{service: service, maxBytes: maxBytes, logger: logger}
}

// RegisterRoutes expects rg to be behind auth.RequireAuth.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	v := rg.Group("/owner-verification")
	{
		v.GET("/status", h.GetStatus)
		v.POST("/submit", auth.RequireRole(auth.RoleOwner), h.Submit)
		v.GET("/pending", auth.RequireRole(auth.RoleAdmin), h.ListPending)
		v.GET("/:userId", auth.RequireRole(auth.RoleAdmin), h.GetOwner)
		v.POST("/:userId/approve", auth.RequireRole(auth.RoleAdmin), h.Approve)
		v.POST("/:userId/reject", auth.RequireRole(auth.RoleAdmin), h.Reject)
	}

	docs := rg.Group("/owner-documents", auth.RequireRole(auth.RoleOwner))
	{
		docs.POST("", h.AddDocument)
		docs.DELETE("/:id", h.DeleteDocument)
	}
}

func (h *Handler) GetStatus(c *gin.Context) {
	actor, _ := auth.ActorFrom(c)
	view, err := h.service.GetStatus(c.Request.Context(), actor, actor.UserID)
	if err != nil {
		apperrors.Respond(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) GetOwner(c *gin.Context) {
	actor, _ := auth.ActorFrom(c)
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	view, err := h.service.GetStatus(c.Request.Context(), actor, userID)
	if err != nil {
		apperrors.Respond(c, h.logger, err)
		return
	}
	events, err := h.service.History(c.Request.Context(), actor, userID)
	if err != nil {
		apperrors.Respond(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": view, "events": events})
}

// AddDocument accepts either a multipart upload (file, type) or a JSON body
// referencing a file already stored through POST /uploads.
func (h *Handler) AddDocument(c *gin.Context) {
	actor, _ := auth.ActorFrom(c)

	if c.ContentType() == "multipart/form-data" {
		file, err := uploads.ReadFile(c, "file", h.maxBytes)
		if err != nil {
			apperrors.Respond(c, h.logger, err)
			return
		}
		defer file.Close()

		doc, err := h.service.UploadDocument(c.Request.Context(), actor, Upload{
			Type:     DocumentType(c.PostForm("type")),
			FileName: file.Name,
			MimeType: file.MimeType,
			Size:     file.Size,
			Body:     file.Body,
		})
		if err != nil {
			apperrors.Respond(c, h.logger, err)
			return
		}
		c.JSON(http.StatusCreated, doc)
		return
	}

	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.Respond(c, h.logger, apperrors.Validation("body", "%s", err.Error()))
		return
	}
	doc, err := h.service.RegisterDocument(c.Request.Context(), actor, req)
	if err != nil {
		apperrors.Respond(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, doc)
}

func (h *Handler) DeleteDocument(c *gin.Context) {
	actor, _ := auth.ActorFrom(c)
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		apperrors.Respond(c, h.logger, apperrors.Validation("id", "invalid id"))
		return
	}

	if err := h.service.DeleteDocument(c.Request.Context(), actor, id); err != nil {
		apperrors.Respond(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) Submit(c *gin.Context) {
	actor, _ := auth.ActorFrom(c)
	view, err := h.service.SubmitForReview(c.Request.Context(), actor)
	if err != nil {
		apperrors.Respond(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) Approve(c *gin.Context) {
	actor, _ := auth.ActorFrom(c)
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	var req ApproveRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			apperrors.Respond(c, h.logger, apperrors.Validation("body", "%s", err.Error()))
			return
		}
	}

	view, err := h.service.Approve(c.Request.Context(), actor, userID, req.Note)
	if err != nil {
		apperrors.Respond(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) Reject(c *gin.Context) {
	actor, _ := auth.ActorFrom(c)
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	var req RejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.Respond(c, h.logger, apperrors.Validation("body", "%s", err.Error()))
		return
	}

	view, err := h.service.Reject(c.Request.Context(), actor, userID, req.Reason)
	if err != nil {
		apperrors.Respond(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) ListPending(c *gin.Context) {
	actor, _ := auth.ActorFrom(c)
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	list, err := h.service.ListPending(c.Request.Context(), actor, page, limit)
	if err != nil {
		apperrors.Respond(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) userID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		apperrors.Respond(c, h.logger, apperrors.Validation("userId", "invalid user id"))
		return uuid.Nil, false
	}
	return id, true
}
