package settings

import (
	"time"

	"github.com/google/uuid"
)

// NotificationPreferences are a user's channel opt-outs. Users without a
// stored row receive everything.
type NotificationPreferences struct {
	UserID    uuid.UUID `gorm:"type:uuid;primaryKey" json:"userId"`
	Email     bool      `gorm:"not null" json:"email"`
	Push      bool      `gorm:"not null" json:"push"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (NotificationPreferences) TableName() string {
	return "notification_preferences"
}

func DefaultPreferences(userID uuid.UUID) *NotificationPreferences {
	return &NotificationPreferences{UserID: userID, Email: true, Push: true}
}

// UpdateNotificationsRequest changes only the channels that are set.
type UpdateNotificationsRequest struct {
	Email *bool `json:"email"`
	Push  *bool `json:"push"`
}
