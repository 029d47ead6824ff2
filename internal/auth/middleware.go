package auth

import (
	"strings"

	"github.com/gin-gonic/gin"

	"propertyhub/owner-portal/owner-portal-backend/pkg/apperrors"
)

const actorKey = "actor"

// RequireAuth validates the bearer token and stores the Actor on the context.
// Websocket clients may pass the token as the "token" query parameter.
func RequireAuth(tokens *TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := ""
		if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
			raw = strings.TrimPrefix(header, "Bearer ")
		} else if q := c.Query("token"); q != "" {
			raw = q
		}
		if raw == "" {
			apperrors.Respond(c, nil, apperrors.Unauthenticated("missing bearer token"))
			return
		}

		actor, err := tokens.Parse(raw)
		if err != nil {
			apperrors.Respond(c, nil, apperrors.Unauthenticated("invalid or expired token"))
			return
		}

		c.Set(actorKey, actor)
		c.Next()
	}
}

// RequireRole aborts with 403 unless the actor has one of roles.
func RequireRole(roles ...Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFrom(c)
		if !ok {
			apperrors.Respond(c, nil, apperrors.Unauthenticated("not authenticated"))
			return
		}
		for _, r := range roles {
			if actor.Role == r {
				c.Next()
				return
			}
		}
		apperrors.Respond(c, nil, apperrors.Forbidden("role %s may not access this resource", actor.Role))
	}
}

// ActorFrom returns the actor set by RequireAuth.
func ActorFrom(c *gin.Context) (Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return Actor{}, false
	}
	actor, ok := v.(Actor)
	return actor, ok
}

// SetActor is used by tests and internal callers that authenticate by other means.
func SetActor(c *gin.Context, actor Actor) {
	c.Set(actorKey, actor)
}
