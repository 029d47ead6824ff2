package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"propertyhub/owner-portal/owner-portal-backend/pkg/apperrors"
)

type Handler struct {
	service *Service
	tokens  *TokenManager
	logger  *zap.Logger
}

func NewHandler(service *Service, tokens *TokenManager, logger *zap.Logger) *Handler {
	return &Handler{service: service, tokens: tokens, logger: logger}
}

// RegisterRoutes registers Auth routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	authGroup := rg.Group("/auth")
	{
		authGroup.POST("/register", h.Register)
		authGroup.POST("/login", h.Login)
		authGroup.GET("/me", RequireAuth(h.tokens), h.Me)
	}
}

func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.Respond(c, h.logger, apperrors.Validation("body", "%s", err.Error()))
		return
	}

	user, err := h.service.Register(c.Request.Context(), req)
	if err != nil {
		apperrors.Respond(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.Respond(c, h.logger, apperrors.Validation("body", "%s", err.Error()))
		return
	}

	resp, err := h.service.Login(c.Request.Context(), req)
	if err != nil {
		apperrors.Respond(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) Me(c *gin.Context) {
	actor, _ := ActorFrom(c)
	user, err := h.service.Me(c.Request.Context(), actor)
	if err != nil {
		apperrors.Respond(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, user)
}
