package threads

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"propertyhub/owner-portal/owner-portal-backend/internal/auth"
	"propertyhub/owner-portal/owner-portal-backend/pkg/apperrors"
)

type Handler struct {
	service Service
	logger  *zap.Logger
}

func NewHandler(service Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Mount registers GET and POST on path for threads of kind. path must carry
// an :id parameter naming the subject, e.g. "/handovers/:id/messages".
func (h *Handler) Mount(rg gin.IRoutes, path string, kind SubjectKind) {
	rg.GET(path, h.list(kind))
	rg.POST(path, h.create(kind))
}

func (h *Handler) list(kind SubjectKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, subject, ok := h.resolve(c, kind)
		if !ok {
			return
		}

		var req PageRequest
		if raw := c.Query("cursor"); raw != "" {
			cursor, err := uuid.Parse(raw)
			if err != nil {
				apperrors.Respond(c, h.logger, apperrors.Validation("cursor", "invalid cursor"))
				return
			}
			req.Cursor = &cursor
		}
		if raw := c.Query("limit"); raw != "" {
			limit, err := strconv.Atoi(raw)
			if err != nil {
				apperrors.Respond(c, h.logger, apperrors.Validation("limit", "limit must be an integer"))
				return
			}
			req.Limit = limit
		}

		page, err := h.service.Page(c.Request.Context(), actor, subject, req)
		if err != nil {
			apperrors.Respond(c, h.logger, err)
			return
		}
		c.JSON(http.StatusOK, page)
	}
}

func (h *Handler) create(kind SubjectKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, subject, ok := h.resolve(c, kind)
		if !ok {
			return
		}

		var req AppendRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			apperrors.Respond(c, h.logger, apperrors.Validation("body", "%s", err.Error()))
			return
		}

		msg, err := h.service.Append(c.Request.Context(), actor, subject, req)
		if err != nil {
			apperrors.Respond(c, h.logger, err)
			return
		}
		c.JSON(http.StatusCreated, msg)
	}
}

func (h *Handler) resolve(c *gin.Context, kind SubjectKind) (auth.Actor, Subject, bool) {
	actor, ok := auth.ActorFrom(c)
	if !ok {
		apperrors.Respond(c, h.logger, apperrors.Unauthenticated("not authenticated"))
		return auth.Actor{}, Subject{}, false
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		apperrors.Respond(c, h.logger, apperrors.Validation("id", "invalid id"))
		return auth.Actor{}, Subject{}, false
	}
	return actor, Subject{Kind: kind, ID: id}, true
}
