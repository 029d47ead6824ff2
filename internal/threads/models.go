package threads

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// SubjectKind names the workflow a thread hangs off.
type SubjectKind string

const (
	SubjectHandover SubjectKind = "handover"
	SubjectSnagging SubjectKind = "snagging"
)

// Subject identifies one thread.
type Subject struct {
	Kind SubjectKind
	ID   uuid.UUID
}

func (s Subject) String() string {
	return string(s.Kind) + ":" + s.ID.String()
}

// Message is one entry of a thread. Seq is assigned by the database and is
// the only ordering source; CreatedAt is informational.
type Message struct {
	ID          uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Seq         int64          `gorm:"autoIncrement;not null;uniqueIndex" json:"-"`
	SubjectKind SubjectKind    `gorm:"type:varchar(32);not null;index:idx_messages_subject,priority:1" json:"subjectKind"`
	SubjectID   uuid.UUID      `gorm:"type:uuid;not null;index:idx_messages_subject,priority:2" json:"subjectId"`
	UserID      uuid.UUID      `gorm:"type:uuid;not null" json:"userId"`
	Body        string         `gorm:"type:text;not null" json:"body"`
	Attachments pq.StringArray `gorm:"type:text[]" json:"attachments"`
	CreatedAt   time.Time      `json:"createdAt"`
}

func (Message) TableName() string {
	return "messages"
}

// Page is one window of a thread, ordered oldest to newest.
type Page struct {
	Messages   []Message  `json:"messages"`
	HasMore    bool       `json:"hasMore"`
	NextCursor *uuid.UUID `json:"nextCursor,omitempty"`
}

type AppendRequest struct {
	Body        string   `json:"body"`
	Attachments []string `json:"attachments"`
}

type PageRequest struct {
	Cursor *uuid.UUID
	Limit  int
}
