package handovers

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/datatypes"

	"propertyhub/owner-portal/owner-portal-backend/internal/auth"
)

// Status of a handover.
type Status string

const (
	StatusDraft       Status = "DRAFT"
	StatusSentToOwner Status = "SENT_TO_OWNER"
	StatusAccepted    Status = "ACCEPTED"
	StatusCancelled   Status = "CANCELLED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusSentToOwner, StatusAccepted, StatusCancelled:
		return true
	}
	return false
}

// Action is a workflow verb. View never changes state.
type Action string

const (
	ActionEdit    Action = "edit"
	ActionSend    Action = "send"
	ActionConfirm Action = "confirm"
	ActionCancel  Action = "cancel"
	ActionView    Action = "view"
)

// ItemStatus is the inspection result of a checklist item; empty until inspected.
type ItemStatus string

const (
	ItemOK    ItemStatus = "OK"
	ItemNotOK ItemStatus = "NOT_OK"
	ItemNA    ItemStatus = "NA"
)

func (s ItemStatus) Valid() bool {
	return s == ItemOK || s == ItemNotOK || s == ItemNA
}

// Handover transfers a unit from the developer to its owner.
type Handover struct {
	ID              uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UnitID          uuid.UUID      `gorm:"type:uuid;not null;index" json:"unitId"`
	OwnerID         uuid.UUID      `gorm:"type:uuid;not null;index" json:"ownerId"`
	Status          Status         `gorm:"type:varchar(32);not null;index" json:"status"`
	ScheduledAt     *time.Time     `json:"scheduledAt"`
	SentAt          *time.Time     `json:"sentAt"`
	OwnerAcceptedAt *time.Time     `json:"ownerAcceptedAt"`
	HandoverAt      *time.Time     `json:"handoverAt"`
	CancelledAt     *time.Time     `json:"cancelledAt"`
	CancelReason    string         `json:"cancelReason,omitempty"`
	Acknowledgement string         `gorm:"type:text" json:"acknowledgement,omitempty"`
	Notes           string         `gorm:"type:text" json:"notes"`
	InternalNotes   string         `gorm:"type:text" json:"internalNotes,omitempty"`
	Attachments     pq.StringArray `gorm:"type:text[]" json:"attachments"`
	PDFURL          *string        `gorm:"column:pdf_url" json:"pdfUrl"`
	CreatedBy       uuid.UUID      `gorm:"type:uuid;not null" json:"createdBy"`
	Version         int            `gorm:"not null;default:1" json:"version"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
	Items           []HandoverItem `gorm:"foreignKey:HandoverID;constraint:OnDelete:CASCADE" json:"items"`
}

// HandoverItem is one checklist line.
type HandoverItem struct {
	ID            uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	HandoverID    uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_handover_items_order,priority:1" json:"handoverId"`
	Category      string     `json:"category"`
	Label         string     `gorm:"not null" json:"label"`
	ExpectedValue string     `json:"expectedValue,omitempty"`
	ActualValue   string     `json:"actualValue,omitempty"`
	Status        ItemStatus `gorm:"type:varchar(16)" json:"status,omitempty"`
	Notes         string     `gorm:"type:text" json:"notes,omitempty"`
	SortOrder     int        `gorm:"not null;uniqueIndex:idx_handover_items_order,priority:2" json:"sortOrder"`
}

// HandoverEvent is one entry of the status history.
type HandoverEvent struct {
	ID         uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	HandoverID uuid.UUID      `gorm:"type:uuid;not null;index" json:"handoverId"`
	FromStatus Status         `gorm:"type:varchar(32)" json:"fromStatus,omitempty"`
	ToStatus   Status         `gorm:"type:varchar(32);not null" json:"toStatus"`
	Action     Action         `gorm:"type:varchar(16);not null" json:"action"`
	ActorID    uuid.UUID      `gorm:"type:uuid;not null" json:"actorId"`
	ActorRole  auth.Role      `gorm:"type:varchar(16);not null" json:"actorRole"`
	Metadata   datatypes.JSON `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// View is the detail response: the handover plus the pure projections of
// its status for the calling role.
type View struct {
	*Handover
	AllowedActions []Action `json:"allowedActions"`
	Progress       int      `json:"progress"`
	Editable       bool     `json:"editable"`
}

type ItemInput struct {
	Category      string `json:"category"`
	Label         string `json:"label"`
	ExpectedValue string `json:"expectedValue"`
}

type CreateRequest struct {
	UnitID        uuid.UUID   `json:"unitId" binding:"required"`
	OwnerID       uuid.UUID   `json:"ownerId" binding:"required"`
	ScheduledAt   *time.Time  `json:"scheduledAt"`
	Notes         string      `json:"notes"`
	InternalNotes string      `json:"internalNotes"`
	Attachments   []string    `json:"attachments"`
	Items         []ItemInput `json:"items"`
}

// UpdateRequest edits a draft. Nil fields are left unchanged; a non-nil
// Items replaces the whole checklist.
type UpdateRequest struct {
	Notes         *string      `json:"notes"`
	InternalNotes *string      `json:"internalNotes"`
	ScheduledAt   *time.Time   `json:"scheduledAt"`
	Attachments   *[]string    `json:"attachments"`
	Items         *[]ItemInput `json:"items"`
}

type SendRequest struct {
	Message string `json:"message"`
}

type ItemUpdate struct {
	ID          uuid.UUID  `json:"id" binding:"required"`
	Status      ItemStatus `json:"status"`
	ActualValue string     `json:"actualValue"`
	Notes       string     `json:"notes"`
}

type ConfirmRequest struct {
	Acknowledgement string       `json:"acknowledgement"`
	ItemUpdates     []ItemUpdate `json:"itemUpdates"`
}

type CancelRequest struct {
	Reason string `json:"reason"`
}

// ListFilter mirrors the GET /handovers query string.
type ListFilter struct {
	Page      int
	Limit     int
	SortBy    string
	SortOrder string
	Status    Status
	Search    string
	// OwnerID scopes the list; set for owner callers.
	OwnerID *uuid.UUID
}

type ListResult struct {
	Handovers []Summary `json:"handovers"`
	Total     int64     `json:"total"`
	Page      int       `json:"page"`
	Limit     int       `json:"limit"`
}

// Summary is a list row.
type Summary struct {
	ID          uuid.UUID  `json:"id"`
	UnitID      uuid.UUID  `json:"unitId"`
	OwnerID     uuid.UUID  `json:"ownerId"`
	Status      Status     `json:"status"`
	Progress    int        `json:"progress"`
	ScheduledAt *time.Time `json:"scheduledAt"`
	SentAt      *time.Time `json:"sentAt"`
	HandoverAt  *time.Time `json:"handoverAt"`
	PDFURL      *string    `json:"pdfUrl"`
	ItemCount   int        `json:"itemCount"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}
