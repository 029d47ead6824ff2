package auth

import (
	"time"

	"github.com/google/uuid"
)

// Role is closed: every switch over it handles both variants.
type Role string

const (
	RoleAdmin Role = "ADMIN"
	RoleOwner Role = "OWNER"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleOwner
}

// VerificationStatus is the owner identity-verification state stored on the user.
type VerificationStatus string

const (
	VerificationNotRequired      VerificationStatus = "NOT_REQUIRED"
	VerificationPendingDocuments VerificationStatus = "PENDING_DOCUMENTS"
	VerificationPendingApproval  VerificationStatus = "PENDING_APPROVAL"
	VerificationApproved         VerificationStatus = "APPROVED"
	VerificationRejected         VerificationStatus = "REJECTED"
)

// InitialVerificationStatus is the status assigned at registration.
func InitialVerificationStatus(r Role) VerificationStatus {
	switch r {
	case RoleAdmin:
		return VerificationNotRequired
	case RoleOwner:
		return VerificationPendingDocuments
	}
	return VerificationPendingDocuments
}

type User struct {
	ID                 uuid.UUID          `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Email              string             `gorm:"not null;uniqueIndex" json:"email"`
	Name               string             `gorm:"not null" json:"name"`
	PasswordHash       string             `gorm:"not null" json:"-"`
	Role               Role               `gorm:"type:varchar(16);not null;index" json:"role"`
	IsActive           bool               `gorm:"not null;default:true" json:"isActive"`
	VerificationStatus VerificationStatus `gorm:"type:varchar(32);not null;index" json:"verificationStatus"`
	VerificationNote   string             `json:"verificationNote,omitempty"`
	CreatedAt          time.Time          `json:"createdAt"`
	UpdatedAt          time.Time          `json:"updatedAt"`
}
