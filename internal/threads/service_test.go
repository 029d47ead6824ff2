package threads

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"propertyhub/owner-portal/owner-portal-backend/internal/auth"
	"propertyhub/owner-portal/owner-portal-backend/pkg/apperrors"
)

// memoryRepository assigns seq the way the bigserial column does.
type memoryRepository struct {
	mu      sync.Mutex
	seq     int64
	msgs    []Message
	inGuard bool
}

func (r *memoryRepository) CreateMessage(ctx context.Context, msg *Message, guard Guard) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if guard != nil {
		r.inGuard = true
		err := guard(ctx)
		r.inGuard = false
		if err != nil {
			return err
		}
	}
	r.seq++
	msg.ID = uuid.New()
	msg.Seq = r.seq
	msg.CreatedAt = time.Now()
	r.msgs = append(r.msgs, *msg)
	return nil
}

func (r *memoryRepository) GetMessage(ctx context.Context, subject Subject, id uuid.UUID) (*Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.msgs {
		if m.ID == id && m.SubjectKind == subject.Kind && m.SubjectID == subject.ID {
			out := m
			return &out, nil
		}
	}
	return nil, apperrors.NotFound("message", id)
}

func (r *memoryRepository) ListBefore(ctx context.Context, subject Subject, beforeSeq int64, limit int) ([]Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Message
	for _, m := range r.msgs {
		if m.SubjectKind != subject.Kind || m.SubjectID != subject.ID {
			continue
		}
		if beforeSeq > 0 && m.Seq >= beforeSeq {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq > out[j].Seq })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type MockGate struct {
	mock.Mock
}

func (m *MockGate) CanRead(ctx context.Context, actor auth.Actor, subjectID uuid.UUID) error {
	return m.Called(ctx, actor, subjectID).Error(0)
}

func (m *MockGate) CanAppend(ctx context.Context, actor auth.Actor, subjectID uuid.UUID) error {
	return m.Called(ctx, actor, subjectID).Error(0)
}

func (m *MockGate) Participants(ctx context.Context, subjectID uuid.UUID) ([]uuid.UUID, error) {
	args := m.Called(ctx, subjectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

type MockPusher struct {
	mock.Mock
}

func (m *MockPusher) PushToUsers(event string, payload interface{}, userIDs ...uuid.UUID) {
	m.Called(event, payload, userIDs)
}

func (m *MockPusher) PushToRole(role auth.Role, event string, payload interface{}) {
	m.Called(role, event, payload)
}

func openGate() *MockGate {
	g := new(MockGate)
	g.On("CanRead", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	g.On("CanAppend", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	g.On("Participants", mock.Anything, mock.Anything).Return([]uuid.UUID{}, nil)
	return g
}

func newTestThread(gate Gate) (Service, Subject) {
	svc := NewService(&memoryRepository{}, nil, zap.NewNop())
	svc.RegisterGate(SubjectHandover, gate)
	return svc, Subject{Kind: SubjectHandover, ID: uuid.New()}
}

var owner = auth.Actor{UserID: uuid.New(), Role: auth.RoleOwner}

func appendN(t *testing.T, svc Service, subject Subject, n int) []*Message {
	t.Helper()
	var out []*Message
	for i := 0; i < n; i++ {
		msg, err := svc.Append(context.Background(), owner, subject, AppendRequest{Body: "message " + string(rune('a'+i))})
		require.NoError(t, err)
		out = append(out, msg)
	}
	return out
}

func bodies(p *Page) []string {
	var out []string
	for _, m := range p.Messages {
		out = append(out, m.Body)
	}
	return out
}

func TestAppendValidation(t *testing.T) {
	svc, subject := newTestThread(openGate())
	ctx := context.Background()

	_, err := svc.Append(ctx, owner, subject, AppendRequest{Body: "   "})
	assert.True(t, apperrors.Is(err, apperrors.KindValidation))

	_, err = svc.Append(ctx, owner, subject, AppendRequest{Body: strings.Repeat("x", MaxBodyLength+1)})
	assert.True(t, apperrors.Is(err, apperrors.KindValidation))

	msg, err := svc.Append(ctx, owner, subject, AppendRequest{Attachments: []string{" https://cdn/x.png "}})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://cdn/x.png"}, []string(msg.Attachments))

	msg, err = svc.Append(ctx, owner, subject, AppendRequest{Body: "  please review  "})
	require.NoError(t, err)
	assert.Equal(t, "please review", msg.Body)
	assert.Equal(t, owner.UserID, msg.UserID)
	assert.NotEqual(t, uuid.Nil, msg.ID)
}

func TestAppendRespectsGate(t *testing.T) {
	gate := new(MockGate)
	gate.On("CanAppend", mock.Anything, owner, mock.Anything).
		Return(apperrors.State("CANCELLED", "append message", "thread is closed"))
	svc, subject := newTestThread(gate)

	_, err := svc.Append(context.Background(), owner, subject, AppendRequest{Body: "hello"})
	assert.True(t, apperrors.Is(err, apperrors.KindState))
}

func TestAppendChecksGateInsideInsert(t *testing.T) {
	repo := &memoryRepository{}
	subjectID := uuid.New()
	gate := new(MockGate)
	gate.On("CanAppend", mock.Anything, owner, subjectID).
		Run(func(mock.Arguments) { assert.True(t, repo.inGuard, "gate checked outside the insert") }).
		Return(nil).Once()
	gate.On("Participants", mock.Anything, mock.Anything).Return(nil, nil).Maybe()
	svc := NewService(repo, nil, zap.NewNop())
	svc.RegisterGate(SubjectHandover, gate)

	_, err := svc.Append(context.Background(), owner, Subject{Kind: SubjectHandover, ID: subjectID}, AppendRequest{Body: "hello"})
	require.NoError(t, err)
	gate.AssertExpectations(t)

	closed := new(MockGate)
	closed.On("CanAppend", mock.Anything, owner, subjectID).
		Return(apperrors.State("CANCELLED", "post message", "the handover thread is closed"))
	svc.RegisterGate(SubjectHandover, closed)

	_, err = svc.Append(context.Background(), owner, Subject{Kind: SubjectHandover, ID: subjectID}, AppendRequest{Body: "late"})
	assert.True(t, apperrors.Is(err, apperrors.KindState))
	assert.Len(t, repo.msgs, 1)
}

func TestUnknownSubjectKind(t *testing.T) {
	svc, _ := newTestThread(openGate())

	_, err := svc.Append(context.Background(), owner, Subject{Kind: SubjectSnagging, ID: uuid.New()}, AppendRequest{Body: "x"})
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))
}

func TestPageNewestFirstWindowOldestToNewest(t *testing.T) {
	svc, subject := newTestThread(openGate())
	appendN(t, svc, subject, 5)

	page, err := svc.Page(context.Background(), owner, subject, PageRequest{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"message d", "message e"}, bodies(page))
	assert.True(t, page.HasMore)
	require.NotNil(t, page.NextCursor)
	assert.Equal(t, page.Messages[0].ID, *page.NextCursor)

	older, err := svc.Page(context.Background(), owner, subject, PageRequest{Cursor: page.NextCursor, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"message b", "message c"}, bodies(older))
	assert.True(t, older.HasMore)

	oldest, err := svc.Page(context.Background(), owner, subject, PageRequest{Cursor: older.NextCursor, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"message a"}, bodies(oldest))
	assert.False(t, oldest.HasMore)
	assert.Nil(t, oldest.NextCursor)
}

func TestPageWithCursorIsIdempotentUnderAppends(t *testing.T) {
	svc, subject := newTestThread(openGate())
	msgs := appendN(t, svc, subject, 6)
	cursor := msgs[4].ID

	first, err := svc.Page(context.Background(), owner, subject, PageRequest{Cursor: &cursor, Limit: 3})
	require.NoError(t, err)

	appendN(t, svc, subject, 3)

	second, err := svc.Page(context.Background(), owner, subject, PageRequest{Cursor: &cursor, Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestPageRejectsForeignCursor(t *testing.T) {
	svc, subject := newTestThread(openGate())
	other := Subject{Kind: SubjectHandover, ID: uuid.New()}
	msgs := appendN(t, svc, other, 1)

	_, err := svc.Page(context.Background(), owner, subject, PageRequest{Cursor: &msgs[0].ID})
	assert.True(t, apperrors.Is(err, apperrors.KindValidation))
}

func TestEmptyThreadPage(t *testing.T) {
	svc, subject := newTestThread(openGate())

	page, err := svc.Page(context.Background(), owner, subject, PageRequest{})
	require.NoError(t, err)
	assert.Empty(t, page.Messages)
	assert.NotNil(t, page.Messages)
	assert.False(t, page.HasMore)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, DefaultPageLimit, ClampLimit(0))
	assert.Equal(t, DefaultPageLimit, ClampLimit(-4))
	assert.Equal(t, 7, ClampLimit(7))
	assert.Equal(t, MaxPageLimit, ClampLimit(1000))
}

func TestAppendPushesToParticipantsAndAdmins(t *testing.T) {
	ownerID := uuid.New()
	gate := new(MockGate)
	gate.On("CanAppend", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	gate.On("Participants", mock.Anything, mock.Anything).Return([]uuid.UUID{ownerID}, nil)

	pusher := new(MockPusher)
	pusher.On("PushToUsers", EventMessageCreated, mock.AnythingOfType("*threads.Message"), []uuid.UUID{ownerID}).Return()
	pusher.On("PushToRole", auth.RoleAdmin, EventMessageCreated, mock.AnythingOfType("*threads.Message")).Return()

	svc := NewService(&memoryRepository{}, pusher, zap.NewNop())
	svc.RegisterGate(SubjectHandover, gate)

	_, err := svc.Append(context.Background(), owner, Subject{Kind: SubjectHandover, ID: uuid.New()}, AppendRequest{Body: "hi"})
	require.NoError(t, err)
	pusher.AssertExpectations(t)
}
