package settings

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"propertyhub/owner-portal/owner-portal-backend/internal/auth"
	"propertyhub/owner-portal/owner-portal-backend/pkg/apperrors"
)

type Handler struct {
	service *Service
	logger  *zap.Logger
}

func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes expects rg to be behind auth.RequireAuth.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/settings")
	g.GET("/notifications", h.GetNotifications)
	g.PUT("/notifications", h.UpdateNotifications)
}

func (h *Handler) GetNotifications(c *gin.Context) {
	actor, _ := auth.ActorFrom(c)
	prefs, err := h.service.GetNotifications(c.Request.Context(), actor)
	if err != nil {
		apperrors.Respond(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, prefs)
}

func (h *Handler) UpdateNotifications(c *gin.Context) {
	actor, _ := auth.ActorFrom(c)
	var req UpdateNotificationsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.Respond(c, h.logger, apperrors.Validation("body", "%s", err.Error()))
		return
	}
	prefs, err := h.service.UpdateNotifications(c.Request.Context(), actor, req)
	if err != nil {
		apperrors.Respond(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, prefs)
}
