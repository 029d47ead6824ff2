package threads

import (
	"context"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"propertyhub/owner-portal/owner-portal-backend/internal/auth"
	"propertyhub/owner-portal/owner-portal-backend/pkg/apperrors"
)

const (
	MaxBodyLength    = 5000
	DefaultPageLimit = 20
	MaxPageLimit     = 100

	EventMessageCreated = "thread.message_created"
)

// Gate is supplied by the workflow that owns a subject kind.
type Gate interface {
	CanRead(ctx context.Context, actor auth.Actor, subjectID uuid.UUID) error
	// CanAppend runs inside the insert transaction and must hold the subject
	// so it cannot close before the message commits.
	CanAppend(ctx context.Context, actor auth.Actor, subjectID uuid.UUID) error
	// Participants lists the non-admin users who follow the thread.
	Participants(ctx context.Context, subjectID uuid.UUID) ([]uuid.UUID, error)
}

// Pusher delivers realtime events to connected clients.
type Pusher interface {
	PushToUsers(event string, payload interface{}, userIDs ...uuid.UUID)
	PushToRole(role auth.Role, event string, payload interface{})
}

type Service interface {
	RegisterGate(kind SubjectKind, gate Gate)
	Append(ctx context.Context, actor auth.Actor, subject Subject, req AppendRequest) (*Message, error)
	Page(ctx context.Context, actor auth.Actor, subject Subject, req PageRequest) (*Page, error)
}

type threadService struct {
	repo   Repository
	pusher Pusher
	logger *zap.Logger

	mu    sync.RWMutex
	gates map[SubjectKind]Gate
}

// NewService creates the thread service. pusher may be nil.
func NewService(repo Repository, pusher Pusher, logger *zap.Logger) Service {
	return &threadService{
		repo:   repo,
		pusher: pusher,
		logger: logger,
		gates:  make(map[SubjectKind]Gate),
	}
}

func (s *threadService) RegisterGate(kind SubjectKind, gate Gate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gates[kind] = gate
}

func (s *threadService) gate(kind SubjectKind) (Gate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.gates[kind]
	if !ok {
		return nil, apperrors.NotFound("thread kind", kind)
	}
	return g, nil
}

func (s *threadService) Append(ctx context.Context, actor auth.Actor, subject Subject, req AppendRequest) (*Message, error) {
	body := strings.TrimSpace(req.Body)
	attachments := compact(req.Attachments)
	if body == "" && len(attachments) == 0 {
		return nil, apperrors.Validation("body", "message body or attachments required")
	}
	if utf8.RuneCountInString(body) > MaxBodyLength {
		return nil, apperrors.Validation("body", "message body exceeds %d characters", MaxBodyLength)
	}

	gate, err := s.gate(subject.Kind)
	if err != nil {
		return nil, err
	}
	msg := &Message{
		SubjectKind: subject.Kind,
		SubjectID:   subject.ID,
		UserID:      actor.UserID,
		Body:        body,
		Attachments: attachments,
	}
	guard := func(ctx context.Context) error {
		return gate.CanAppend(ctx, actor, subject.ID)
	}
	if err := s.repo.CreateMessage(ctx, msg, guard); err != nil {
		return nil, err
	}

	s.logger.Debug("Message appended",
		zap.String("subject", subject.String()),
		zap.String("message_id", msg.ID.String()),
		zap.String("user_id", actor.UserID.String()))

	s.push(ctx, gate, subject, msg)
	return msg, nil
}

func (s *threadService) push(ctx context.Context, gate Gate, subject Subject, msg *Message) {
	if s.pusher == nil {
		return
	}
	participants, err := gate.Participants(ctx, subject.ID)
	if err != nil {
		s.logger.Warn("Failed to resolve thread participants",
			zap.String("subject", subject.String()),
			zap.Error(err))
	}
	s.pusher.PushToUsers(EventMessageCreated, msg, participants...)
	s.pusher.PushToRole(auth.RoleAdmin, EventMessageCreated, msg)
}

// Page returns the newest limit messages, or with a cursor the limit messages
// immediately older than it. The result for a given cursor never changes as
// new messages arrive.
func (s *threadService) Page(ctx context.Context, actor auth.Actor, subject Subject, req PageRequest) (*Page, error) {
	gate, err := s.gate(subject.Kind)
	if err != nil {
		return nil, err
	}
	if err := gate.CanRead(ctx, actor, subject.ID); err != nil {
		return nil, err
	}

	limit := ClampLimit(req.Limit)

	var beforeSeq int64
	if req.Cursor != nil {
		cursor, err := s.repo.GetMessage(ctx, subject, *req.Cursor)
		if apperrors.Is(err, apperrors.KindNotFound) {
			return nil, apperrors.Validation("cursor", "cursor %s is not a message of this thread", req.Cursor)
		}
		if err != nil {
			return nil, err
		}
		beforeSeq = cursor.Seq
	}

	msgs, err := s.repo.ListBefore(ctx, subject, beforeSeq, limit+1)
	if err != nil {
		return nil, err
	}

	page := &Page{Messages: []Message{}}
	if len(msgs) > limit {
		page.HasMore = true
		msgs = msgs[:limit]
	}
	for i := len(msgs) - 1; i >= 0; i-- {
		page.Messages = append(page.Messages, msgs[i])
	}
	if page.HasMore {
		oldest := page.Messages[0].ID
		page.NextCursor = &oldest
	}
	return page, nil
}

// ClampLimit applies the default and maximum page size.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultPageLimit
	case limit > MaxPageLimit:
		return MaxPageLimit
	}
	return limit
}

func compact(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
