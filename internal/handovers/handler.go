package handovers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"propertyhub/owner-portal/owner-portal-backend/internal/auth"
	"propertyhub/owner-portal/owner-portal-backend/internal/threads"
	"propertyhub/owner-portal/owner-portal-backend/pkg/apperrors"
)

type Handler struct {
	service Service
	threads *threads.Handler
	logger  *zap.Logger
}

// NewHandler wires the handover routes. messages may be nil to leave the
// thread routes unmounted.
func NewHandler(service Service, messages *threads.Handler, logger *zap.Logger) *Handler {
	return &Handler{service: service, threads: messages, logger: logger}
}

// RegisterRoutes expects rg to be behind auth.RequireAuth. access runs
// before every handover route and keeps unverified owners out.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, access ...gin.HandlerFunc) {
	admin := auth.RequireRole(auth.RoleAdmin)

	g := rg.Group("/handovers", access...)
	{
		g.GET("", h.List)
		g.POST("", admin, h.Create)
		g.GET("/export", admin, h.Export)
		g.GET("/:id", h.Get)
		g.PUT("/:id", admin, h.UpdateDraft)
		g.GET("/:id/history", h.History)
		g.POST("/:id/send", admin, h.Send)
		g.POST("/:id/owner-confirm", auth.RequireRole(auth.RoleOwner), h.OwnerConfirm)
		g.POST("/:id/cancel", admin, h.Cancel)
	}
	if h.threads != nil {
		h.threads.Mount(g, "/:id/messages", threads.SubjectHandover)
	}
}

func (h *Handler) id(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		apperrors.Respond(c, h.logger, apperrors.Validation("id", "invalid handover id"))
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) bind(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		apperrors.Respond(c, h.logger, apperrors.Validation("body", "%s", err.Error()))
		return false
	}
	return true
}

func (h *Handler) filter(c *gin.Context) (ListFilter, bool) {
	f := ListFilter{
		SortBy:    c.Query("sortBy"),
		SortOrder: c.Query("sortOrder"),
		Status:    Status(c.Query("status")),
		Search:    c.Query("search"),
	}
	for _, q := range []struct {
		name string
		dst  *int
	}{{"page", &f.Page}, {"limit", &f.Limit}} {
		raw := c.Query(q.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			apperrors.Respond(c, h.logger, apperrors.Validation(q.name, "%s must be an integer", q.name))
			return f, false
		}
		*q.dst = n
	}
	return f, true
}

func (h *Handler) List(c *gin.Context) {
	actor, _ := auth.ActorFrom(c)
	f, ok := h.filter(c)
	if !ok {
		return
	}
	result, err := h.service.List(c.Request.Context(), actor, f)
	if err != nil {
		apperrors.Respond(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) Create(c *gin.Context) {
	actor, _ := auth.ActorFrom(c)
	var req CreateRequest
	if !h.bind(c, &req) {
		return
	}
	view, err := h.service.Create(c.Request.Context(), actor, req)
	if err != nil {
		apperrors.Respond(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

func (h *Handler) Export(c *gin.Context) {
	actor, _ := auth.ActorFrom(c)
	f, ok := h.filter(c)
	if !ok {
		return
	}
	format := ExportFormat(c.DefaultQuery("format", string(FormatXLSX)))
	data, err := h.service.Export(c.Request.Context(), actor, f, format)
	if err != nil {
		apperrors.Respond(c, h.logger, err)
		return
	}
	name := fmt.Sprintf("handovers-%s.%s", time.Now().UTC().Format("20060102-150405"), format)
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, format.ContentType(), data)
}

// Get honours ?maxStaleness=<seconds>; absent means a fresh read.
func (h *Handler) Get(c *gin.Context) {
	actor, _ := auth.ActorFrom(c)
	id, ok := h.id(c)
	if !ok {
		return
	}
	var staleness time.Duration
	if raw := c.Query("maxStaleness"); raw != "" {
		secs, err := strconv.Atoi(raw)
		if err != nil {
			apperrors.Respond(c, h.logger, apperrors.Validation("maxStaleness", "maxStaleness must be a number of seconds"))
			return
		}
		staleness = time.Duration(secs) * time.Second
	}

	view, err := h.service.Get(c.Request.Context(), actor, id, staleness)
	if err != nil {
		apperrors.Respond(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) UpdateDraft(c *gin.Context) {
	actor, _ := auth.ActorFrom(c)
	id, ok := h.id(c)
	if !ok {
		return
	}
	var req UpdateRequest
	if !h.bind(c, &req) {
		return
	}
	view, err := h.service.UpdateDraft(c.Request.Context(), actor, id, req)
	if err != nil {
		apperrors.Respond(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) History(c *gin.Context) {
	actor, _ := auth.ActorFrom(c)
	id, ok := h.id(c)
	if !ok {
		return
	}
	events, err := h.service.History(c.Request.Context(), actor, id)
	if err != nil {
		apperrors.Respond(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (h *Handler) Send(c *gin.Context) {
	actor, _ := auth.ActorFrom(c)
	id, ok := h.id(c)
	if !ok {
		return
	}
	var req SendRequest
	if c.Request.ContentLength != 0 && !h.bind(c, &req) {
		return
	}
	view, err := h.service.SendToOwner(c.Request.Context(), actor, id, req)
	if err != nil {
		apperrors.Respond(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) OwnerConfirm(c *gin.Context) {
	actor, _ := auth.ActorFrom(c)
	id, ok := h.id(c)
	if !ok {
		return
	}
	var req ConfirmRequest
	if c.Request.ContentLength != 0 && !h.bind(c, &req) {
		return
	}
	view, err := h.service.OwnerConfirm(c.Request.Context(), actor, id, req)
	if err != nil {
		apperrors.Respond(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) Cancel(c *gin.Context) {
	actor, _ := auth.ActorFrom(c)
	id, ok := h.id(c)
	if !ok {
		return
	}
	var req CancelRequest
	if !h.bind(c, &req) {
		return
	}
	view, err := h.service.Cancel(c.Request.Context(), actor, id, req)
	if err != nil {
		apperrors.Respond(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, view)
}
