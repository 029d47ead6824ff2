package auth

import (
	"github.com/google/uuid"
)

// Actor is the authenticated caller, passed explicitly into every workflow call.
type Actor struct {
	UserID uuid.UUID
	Role   Role
}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

func (a Actor) IsOwner() bool { return a.Role == RoleOwner }
