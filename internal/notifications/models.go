package notifications

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Event names published to push clients and the event topic.
const (
	EventVerificationSubmitted = "verification.submitted"
	EventVerificationApproved  = "verification.approved"
	EventVerificationRejected  = "verification.rejected"
	EventHandoverSent          = "handover.sent"
	EventHandoverAccepted      = "handover.accepted"
	EventHandoverCancelled     = "handover.cancelled"
	EventHandoverPDFReady      = "handover.pdf_ready"
)

// Channel constants
const (
	ChannelEmail     = "email"
	ChannelWebSocket = "websocket"
	ChannelEvents    = "events"
)

// Delivery status constants
const (
	StatusSent    = "sent"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

// Recipient is who a notification is addressed to.
type Recipient struct {
	UserID uuid.UUID
	Email  string
	Name   string
}

// NotificationRequest describes one domain event and its human-readable form.
type NotificationRequest struct {
	Event     string
	Recipient *Recipient
	// NotifyAdmins also pushes to every connected admin.
	NotifyAdmins bool
	Subject      string
	Body         string
	// Link is appended to the email body, relative to the portal URL.
	Link string
	Data map[string]interface{}
}

// DeliveryLog records the outcome of each channel attempt.
type DeliveryLog struct {
	ID           uuid.UUID      `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	Event        string         `json:"event" gorm:"not null;index"`
	UserID       *uuid.UUID     `json:"userId" gorm:"type:uuid;index"`
	Channel      string         `json:"channel" gorm:"not null"`
	Status       string         `json:"status" gorm:"not null"`
	ProviderID   string         `json:"providerId"`
	ErrorMessage string         `json:"errorMessage"`
	Metadata     datatypes.JSON `json:"metadata" gorm:"type:jsonb"`
	CreatedAt    time.Time      `json:"createdAt" gorm:"autoCreateTime"`
}
