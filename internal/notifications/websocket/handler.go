package websocket

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"propertyhub/owner-portal/owner-portal-backend/internal/auth"
	"propertyhub/owner-portal/owner-portal-backend/pkg/apperrors"
)

// Handler serves GET /ws. Authentication happens in RequireAuth, which
// accepts the token as a query parameter for browser clients.
type Handler struct {
	manager *Manager
	logger  *zap.Logger
}

func NewHandler(manager *Manager, logger *zap.Logger) *Handler {
	return &Handler{manager: manager, logger: logger}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/ws", h.Connect)
}

func (h *Handler) Connect(c *gin.Context) {
	actor, ok := auth.ActorFrom(c)
	if !ok {
		apperrors.Respond(c, h.logger, apperrors.Unauthenticated("not authenticated"))
		return
	}
	if err := h.manager.HandleConnection(c.Writer, c.Request, actor); err != nil {
		h.logger.Warn("Websocket connection failed",
			zap.String("user_id", actor.UserID.String()),
			zap.Error(err))
	}
}
