package verification

import (
	"io"
	"time"

	"github.com/google/uuid"

	"propertyhub/owner-portal/owner-portal-backend/internal/auth"
)

// DocumentType is one of the identity-document slots an owner must fill.
type DocumentType string

const (
	DocumentPassport   DocumentType = "PASSPORT"
	DocumentNationalID DocumentType = "NATIONAL_ID"
)

// RequiredDocumentTypes lists every slot that must be filled before review.
var RequiredDocumentTypes = []DocumentType{DocumentPassport, DocumentNationalID}

func (t DocumentType) Valid() bool {
	return t == DocumentPassport || t == DocumentNationalID
}

type DocumentStatus string

const (
	DocumentPending  DocumentStatus = "PENDING"
	DocumentApproved DocumentStatus = "APPROVED"
	DocumentRejected DocumentStatus = "REJECTED"
)

// OwnerDocument is one uploaded identity document. At most one exists per
// (owner, type).
type OwnerDocument struct {
	ID              uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OwnerID         uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_owner_documents_slot,priority:1" json:"ownerId"`
	Type            DocumentType   `gorm:"type:varchar(32);not null;uniqueIndex:idx_owner_documents_slot,priority:2" json:"type"`
	FileKey         string         `gorm:"not null" json:"fileKey"`
	ObjectKey       string         `json:"-"`
	MimeType        string         `gorm:"type:varchar(64);not null" json:"mimeType"`
	SizeBytes       int64          `gorm:"not null" json:"sizeBytes"`
	Status          DocumentStatus `gorm:"type:varchar(16);not null;default:'PENDING'" json:"status"`
	RejectionReason string         `json:"rejectionReason,omitempty"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

// VerificationEvent records every verification status change.
type VerificationEvent struct {
	ID         uuid.UUID               `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID     uuid.UUID               `gorm:"type:uuid;not null;index" json:"userId"`
	FromStatus auth.VerificationStatus `gorm:"type:varchar(32);not null" json:"fromStatus"`
	ToStatus   auth.VerificationStatus `gorm:"type:varchar(32);not null" json:"toStatus"`
	ActorID    uuid.UUID               `gorm:"type:uuid;not null" json:"actorId"`
	Note       string                  `json:"note,omitempty"`
	CreatedAt  time.Time               `json:"createdAt"`
}

// Destination is where the dashboard sends a user after login.
type Destination string

const (
	DestinationDashboard       Destination = "dashboard"
	DestinationPendingApproval Destination = "pending-approval"
	DestinationDocuments       Destination = "documents"
)

// StatusView is the response of GET /owner-verification/status.
type StatusView struct {
	UserID             uuid.UUID               `json:"userId"`
	VerificationStatus auth.VerificationStatus `json:"verificationStatus"`
	VerificationNote   string                  `json:"verificationNote,omitempty"`
	Documents          []OwnerDocument         `json:"documents"`
	MissingTypes       []DocumentType          `json:"missingTypes"`
	CanSubmit          bool                    `json:"canSubmit"`
	Destination        Destination             `json:"destination"`
}

// PendingOwner is one entry of the admin review queue.
type PendingOwner struct {
	User      auth.User       `json:"user"`
	Documents []OwnerDocument `json:"documents"`
}

type PendingList struct {
	Owners []PendingOwner `json:"owners"`
	Total  int64          `json:"total"`
	Page   int            `json:"page"`
	Limit  int            `json:"limit"`
}

// Upload carries raw file bytes from a multipart request.
type Upload struct {
	Type     DocumentType
	FileName string
	MimeType string
	Size     int64
	Body     io.Reader
}

// RegisterRequest registers a file already stored through POST /uploads.
type RegisterRequest struct {
	Type      DocumentType `json:"type" binding:"required"`
	FileKey   string       `json:"fileKey" binding:"required"`
	MimeType  string       `json:"mimeType" binding:"required"`
	SizeBytes int64        `json:"sizeBytes"`
}

type ApproveRequest struct {
	Note string `json:"note"`
}

type RejectRequest struct {
	Reason string `json:"reason"`
}
