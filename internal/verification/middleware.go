package verification

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"propertyhub/owner-portal/owner-portal-backend/internal/auth"
	"propertyhub/owner-portal/owner-portal-backend/pkg/apperrors"
)

// RequireDashboardAccess lets admins through and owners only once their
// stored status routes to the dashboard. The status is read on every request.
func RequireDashboardAccess(service Service, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := auth.ActorFrom(c)
		if !ok {
			apperrors.Respond(c, logger, apperrors.Unauthenticated("not authenticated"))
			return
		}

		switch actor.Role {
		case auth.RoleAdmin:
			c.Next()
			return
		case auth.RoleOwner:
		}

		dest, err := service.Destination(c.Request.Context(), actor.UserID)
		if err != nil {
			apperrors.Respond(c, logger, err)
			return
		}
		if dest != DestinationDashboard {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":       string(apperrors.KindAuthorization),
				"message":     "owner verification is not complete",
				"retryable":   false,
				"destination": dest,
			})
			return
		}
		c.Next()
	}
}
