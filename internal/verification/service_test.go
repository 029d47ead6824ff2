package verification

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"propertyhub/owner-portal/owner-portal-backend/internal/auth"
	"propertyhub/owner-portal/owner-portal-backend/internal/notifications"
	"propertyhub/owner-portal/owner-portal-backend/pkg/apperrors"
	"propertyhub/owner-portal/owner-portal-backend/pkg/storage"
)

// memoryRepository serializes every guarded operation the way the row lock does.
type memoryRepository struct {
	mu     sync.Mutex
	users  map[uuid.UUID]*auth.User
	docs   map[uuid.UUID]*OwnerDocument
	events []VerificationEvent

	failCreate bool
}

func newMemoryRepository(users ...*auth.User) *memoryRepository {
	r := &memoryRepository{users: map[uuid.UUID]*auth.User{}, docs: map[uuid.UUID]*OwnerDocument{}}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *memoryRepository) GetUser(ctx context.Context, id uuid.UUID) (*auth.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, apperrors.NotFound("user", id)
	}
	out := *u
	return &out, nil
}

func (r *memoryRepository) GetDocument(ctx context.Context, id uuid.UUID) (*OwnerDocument, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[id]
	if !ok {
		return nil, apperrors.NotFound("document", id)
	}
	out := *d
	return &out, nil
}

func (r *memoryRepository) ListDocuments(ctx context.Context, ownerIDs ...uuid.UUID) ([]OwnerDocument, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listLocked(ownerIDs...), nil
}

func (r *memoryRepository) listLocked(ownerIDs ...uuid.UUID) []OwnerDocument {
	want := map[uuid.UUID]bool{}
	for _, id := range ownerIDs {
		want[id] = true
	}
	out := []OwnerDocument{}
	for _, d := range r.docs {
		if want[d.OwnerID] {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

func (r *memoryRepository) guarded(ownerID uuid.UUID, guard Guard) (*auth.User, error) {
	u, ok := r.users[ownerID]
	if !ok {
		return nil, apperrors.NotFound("user", ownerID)
	}
	if guard != nil {
		if err := guard(u, r.listLocked(ownerID)); err != nil {
			return nil, err
		}
	}
	return u, nil
}

func (r *memoryRepository) ReplaceDocument(ctx context.Context, doc *OwnerDocument, guard Guard) (*OwnerDocument, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.guarded(doc.OwnerID, guard); err != nil {
		return nil, err
	}
	if r.failCreate {
		return nil, apperrors.Infra("create document", assert.AnError)
	}
	var replaced *OwnerDocument
	for id, d := range r.docs {
		if d.OwnerID == doc.OwnerID && d.Type == doc.Type {
			old := *d
			replaced = &old
			delete(r.docs, id)
		}
	}
	doc.ID = uuid.New()
	doc.CreatedAt = time.Now()
	stored := *doc
	r.docs[doc.ID] = &stored
	return replaced, nil
}

func (r *memoryRepository) DeleteDocument(ctx context.Context, doc *OwnerDocument, guard Guard) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.guarded(doc.OwnerID, guard); err != nil {
		return err
	}
	delete(r.docs, doc.ID)
	return nil
}

func (r *memoryRepository) UpdateStatus(ctx context.Context, change StatusChange, guard Guard) (*auth.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, err := r.guarded(change.UserID, guard)
	if err != nil {
		return nil, err
	}
	r.events = append(r.events, VerificationEvent{UserID: u.ID, FromStatus: u.VerificationStatus, ToStatus: change.To, ActorID: change.ActorID, Note: change.Note})
	u.VerificationStatus = change.To
	u.VerificationNote = change.Note
	if change.DocumentStatus != "" {
		for _, d := range r.docs {
			if d.OwnerID == u.ID {
				d.Status = change.DocumentStatus
				d.RejectionReason = change.RejectionReason
			}
		}
	}
	out := *u
	return &out, nil
}

func (r *memoryRepository) ListByStatus(ctx context.Context, status auth.VerificationStatus, offset, limit int) ([]auth.User, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []auth.User
	for _, u := range r.users {
		if u.Role == auth.RoleOwner && u.VerificationStatus == status {
			out = append(out, *u)
		}
	}
	total := int64(len(out))
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, total, nil
}

func (r *memoryRepository) ListEvents(ctx context.Context, userID uuid.UUID) ([]VerificationEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []VerificationEvent
	for _, e := range r.events {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, req *notifications.NotificationRequest) {
	m.Called(ctx, req)
}

type fixture struct {
	repo     *memoryRepository
	store    *storage.MemoryClient
	notifier *MockNotifier
	service  Service
	owner    auth.Actor
	admin    auth.Actor
}

func newFixture(t *testing.T, status auth.VerificationStatus) *fixture {
	t.Helper()
	ownerUser := &auth.User{ID: uuid.New(), Email: "owner@example.com", Name: "Owner", Role: auth.RoleOwner, IsActive: true, VerificationStatus: status}
	adminUser := &auth.User{ID: uuid.New(), Email: "admin@example.com", Role: auth.RoleAdmin, IsActive: true, VerificationStatus: auth.VerificationNotRequired}

	f := &fixture{
		repo:     newMemoryRepository(ownerUser, adminUser),
		store:    storage.NewMemoryClient("https://files.example.com"),
		notifier: new(MockNotifier),
		owner:    auth.Actor{UserID: ownerUser.ID, Role: auth.RoleOwner},
		admin:    auth.Actor{UserID: adminUser.ID, Role: auth.RoleAdmin},
	}
	f.notifier.On("Notify", mock.Anything, mock.Anything).Return()
	f.service = NewService(f.repo, f.store, f.notifier, DefaultMaxUploadBytes, zap.NewNop())
	return f
}

func (f *fixture) upload(t *testing.T, docType DocumentType) *OwnerDocument {
	t.Helper()
	doc, err := f.service.UploadDocument(context.Background(), f.owner, Upload{
		Type:     docType,
		FileName: "scan.png",
		MimeType: "image/png",
		Size:     4,
		Body:     bytes.NewReader([]byte("\x89PNG")),
	})
	require.NoError(t, err)
	return doc
}

func (f *fixture) status(t *testing.T) *StatusView {
	t.Helper()
	view, err := f.service.GetStatus(context.Background(), f.owner, f.owner.UserID)
	require.NoError(t, err)
	return view
}

func TestUploadRejectsOversizedFile(t *testing.T) {
	f := newFixture(t, auth.VerificationPendingDocuments)

	_, err := f.service.UploadDocument(context.Background(), f.owner, Upload{
		Type:     DocumentPassport,
		FileName: "passport.pdf",
		MimeType: "application/pdf",
		Size:     15 * 1000 * 1000,
		Body:     bytes.NewReader(nil),
	})

	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindValidation))
	assert.Contains(t, err.Error(), "10 MiB")
	assert.Empty(t, f.status(t).Documents)
	assert.Equal(t, 0, f.store.Len())
}

func TestUploadRejectsUnsupportedType(t *testing.T) {
	f := newFixture(t, auth.VerificationPendingDocuments)

	_, err := f.service.UploadDocument(context.Background(), f.owner, Upload{
		Type: DocumentPassport, FileName: "a.gif", MimeType: "image/gif", Size: 10, Body: bytes.NewReader(nil),
	})
	assert.True(t, apperrors.Is(err, apperrors.KindValidation))

	_, err = f.service.UploadDocument(context.Background(), f.owner, Upload{
		Type: "DRIVING_LICENCE", FileName: "a.png", MimeType: "image/png", Size: 10, Body: bytes.NewReader(nil),
	})
	assert.True(t, apperrors.Is(err, apperrors.KindValidation))
}

func TestSecondUploadReplacesSlot(t *testing.T) {
	f := newFixture(t, auth.VerificationPendingDocuments)

	first := f.upload(t, DocumentPassport)
	second := f.upload(t, DocumentPassport)

	view := f.status(t)
	require.Len(t, view.Documents, 1)
	assert.Equal(t, second.ID, view.Documents[0].ID)
	assert.NotEqual(t, first.ID, second.ID)

	_, _, ok := f.store.Object(first.ObjectKey)
	assert.False(t, ok, "replaced object should be removed from storage")
	assert.Equal(t, 1, f.store.Len())
}

func TestFailedRegistrationRemovesStoredObject(t *testing.T) {
	f := newFixture(t, auth.VerificationPendingDocuments)
	f.repo.failCreate = true

	_, err := f.service.UploadDocument(context.Background(), f.owner, Upload{
		Type: DocumentPassport, FileName: "p.png", MimeType: "image/png", Size: 4, Body: bytes.NewReader([]byte("data")),
	})

	assert.True(t, apperrors.Is(err, apperrors.KindInfra))
	assert.Equal(t, 0, f.store.Len())
}

func TestStorageFailureIsRetryable(t *testing.T) {
	f := newFixture(t, auth.VerificationPendingDocuments)
	f.store.FailUploads = true

	_, err := f.service.UploadDocument(context.Background(), f.owner, Upload{
		Type: DocumentPassport, FileName: "p.png", MimeType: "image/png", Size: 4, Body: bytes.NewReader([]byte("data")),
	})

	var appErr *apperrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.True(t, appErr.Retryable())
	assert.Empty(t, f.status(t).Documents)
}

func TestSubmitRequiresBothDocuments(t *testing.T) {
	f := newFixture(t, auth.VerificationPendingDocuments)
	ctx := context.Background()

	_, err := f.service.SubmitForReview(ctx, f.owner)
	assert.True(t, apperrors.Is(err, apperrors.KindPrecondition))

	f.upload(t, DocumentPassport)
	_, err = f.service.SubmitForReview(ctx, f.owner)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindPrecondition))
	assert.Contains(t, err.Error(), "NATIONAL_ID")
	assert.False(t, f.status(t).CanSubmit)

	f.upload(t, DocumentNationalID)
	assert.True(t, f.status(t).CanSubmit)

	view, err := f.service.SubmitForReview(ctx, f.owner)
	require.NoError(t, err)
	assert.Equal(t, auth.VerificationPendingApproval, view.VerificationStatus)
	assert.Equal(t, DestinationPendingApproval, view.Destination)
}

func TestDocumentsFrozenWhileUnderReview(t *testing.T) {
	f := newFixture(t, auth.VerificationPendingDocuments)
	ctx := context.Background()
	passport := f.upload(t, DocumentPassport)
	f.upload(t, DocumentNationalID)
	_, err := f.service.SubmitForReview(ctx, f.owner)
	require.NoError(t, err)

	err = f.service.DeleteDocument(ctx, f.owner, passport.ID)
	assert.True(t, apperrors.Is(err, apperrors.KindState))
	assert.Contains(t, err.Error(), "PENDING_APPROVAL")

	_, err = f.service.UploadDocument(ctx, f.owner, Upload{
		Type: DocumentPassport, FileName: "p.png", MimeType: "image/png", Size: 4, Body: bytes.NewReader([]byte("data")),
	})
	assert.True(t, apperrors.Is(err, apperrors.KindState))
	assert.Len(t, f.status(t).Documents, 2)
}

func TestDeleteDocumentOwnership(t *testing.T) {
	f := newFixture(t, auth.VerificationPendingDocuments)
	ctx := context.Background()
	doc := f.upload(t, DocumentPassport)

	stranger := auth.Actor{UserID: uuid.New(), Role: auth.RoleOwner}
	assert.True(t, apperrors.Is(f.service.DeleteDocument(ctx, stranger, doc.ID), apperrors.KindAuthorization))
	assert.True(t, apperrors.Is(f.service.DeleteDocument(ctx, f.owner, uuid.New()), apperrors.KindNotFound))

	require.NoError(t, f.service.DeleteDocument(ctx, f.owner, doc.ID))
	assert.Empty(t, f.status(t).Documents)
	assert.Equal(t, 0, f.store.Len())
}

func TestApproveOnlyFromPendingApproval(t *testing.T) {
	f := newFixture(t, auth.VerificationPendingDocuments)
	ctx := context.Background()

	_, err := f.service.Approve(ctx, f.admin, f.owner.UserID, "")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindInvalidTransition))
	assert.Contains(t, err.Error(), "PENDING_DOCUMENTS")

	_, err = f.service.Approve(ctx, f.owner, f.owner.UserID, "")
	assert.True(t, apperrors.Is(err, apperrors.KindAuthorization))

	f.upload(t, DocumentPassport)
	f.upload(t, DocumentNationalID)
	_, err = f.service.SubmitForReview(ctx, f.owner)
	require.NoError(t, err)

	view, err := f.service.Approve(ctx, f.admin, f.owner.UserID, "looks good")
	require.NoError(t, err)
	assert.Equal(t, auth.VerificationApproved, view.VerificationStatus)
	assert.Equal(t, DestinationDashboard, view.Destination)
	for _, d := range view.Documents {
		assert.Equal(t, DocumentApproved, d.Status)
	}

	_, err = f.service.Approve(ctx, f.admin, f.owner.UserID, "")
	assert.True(t, apperrors.Is(err, apperrors.KindInvalidTransition))

	f.notifier.AssertCalled(t, "Notify", mock.Anything, mock.MatchedBy(func(r *notifications.NotificationRequest) bool {
		return r.Event == notifications.EventVerificationApproved && r.Recipient.UserID == f.owner.UserID
	}))
}

func TestRejectThenResubmit(t *testing.T) {
	f := newFixture(t, auth.VerificationPendingDocuments)
	ctx := context.Background()
	f.upload(t, DocumentPassport)
	f.upload(t, DocumentNationalID)
	_, err := f.service.SubmitForReview(ctx, f.owner)
	require.NoError(t, err)

	_, err = f.service.Reject(ctx, f.admin, f.owner.UserID, "   ")
	assert.True(t, apperrors.Is(err, apperrors.KindValidation))

	view, err := f.service.Reject(ctx, f.admin, f.owner.UserID, "blurry passport")
	require.NoError(t, err)
	assert.Equal(t, auth.VerificationRejected, view.VerificationStatus)
	assert.Equal(t, "blurry passport", view.VerificationNote)
	assert.Equal(t, DestinationDocuments, view.Destination)
	for _, d := range view.Documents {
		assert.Equal(t, DocumentRejected, d.Status)
		assert.Equal(t, "blurry passport", d.RejectionReason)
	}

	_, err = f.service.SubmitForReview(ctx, f.owner)
	assert.True(t, apperrors.Is(err, apperrors.KindPrecondition))

	f.upload(t, DocumentPassport)
	f.upload(t, DocumentNationalID)
	view, err = f.service.SubmitForReview(ctx, f.owner)
	require.NoError(t, err)
	assert.Equal(t, auth.VerificationPendingApproval, view.VerificationStatus)
	assert.Len(t, view.Documents, 2)

	events, err := f.service.History(ctx, f.admin, f.owner.UserID)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, auth.VerificationRejected, events[1].ToStatus)
}

func TestOwnersCannotReadOthersStatus(t *testing.T) {
	f := newFixture(t, auth.VerificationPendingDocuments)

	_, err := f.service.GetStatus(context.Background(), auth.Actor{UserID: uuid.New(), Role: auth.RoleOwner}, f.owner.UserID)
	assert.True(t, apperrors.Is(err, apperrors.KindAuthorization))

	_, err = f.service.GetStatus(context.Background(), f.admin, f.owner.UserID)
	assert.NoError(t, err)
}

func TestListPending(t *testing.T) {
	f := newFixture(t, auth.VerificationPendingDocuments)
	ctx := context.Background()
	f.upload(t, DocumentPassport)
	f.upload(t, DocumentNationalID)
	_, err := f.service.SubmitForReview(ctx, f.owner)
	require.NoError(t, err)

	list, err := f.service.ListPending(ctx, f.admin, 1, 20)
	require.NoError(t, err)
	require.Len(t, list.Owners, 1)
	assert.Equal(t, int64(1), list.Total)
	assert.Len(t, list.Owners[0].Documents, 2)

	_, err = f.service.ListPending(ctx, f.owner, 1, 20)
	assert.True(t, apperrors.Is(err, apperrors.KindAuthorization))
}

func TestRegisterDocumentFromUploadURL(t *testing.T) {
	f := newFixture(t, auth.VerificationPendingDocuments)

	key := "uploads/" + f.owner.UserID.String() + "/id.pdf"
	doc, err := f.service.RegisterDocument(context.Background(), f.owner, RegisterRequest{
		Type:      DocumentNationalID,
		FileKey:   "https://files.example.com/" + key,
		MimeType:  "application/pdf",
		SizeBytes: 2048,
	})
	require.NoError(t, err)
	assert.Equal(t, key, doc.ObjectKey)

	_, err = f.service.RegisterDocument(context.Background(), f.owner, RegisterRequest{
		Type: DocumentNationalID, FileKey: "not a url", MimeType: "application/pdf", SizeBytes: 10,
	})
	assert.True(t, apperrors.Is(err, apperrors.KindValidation))
}

func TestRegisterDocumentRejectsForeignObjects(t *testing.T) {
	f := newFixture(t, auth.VerificationPendingDocuments)
	ctx := context.Background()
	victimDoc := f.upload(t, DocumentPassport)

	other := &auth.User{ID: uuid.New(), Email: "other@example.com", Role: auth.RoleOwner, IsActive: true, VerificationStatus: auth.VerificationPendingDocuments}
	f.repo.users[other.ID] = other
	attacker := auth.Actor{UserID: other.ID, Role: auth.RoleOwner}

	for _, fileKey := range []string{
		victimDoc.FileKey,
		"https://files.example.com/handovers/" + uuid.NewString() + "/handover.pdf",
		"https://elsewhere.example.com/uploads/" + other.ID.String() + "/id.pdf",
		"https://files.example.com/uploads/" + other.ID.String() + "/../" + f.owner.UserID.String() + "/id.pdf",
	} {
		_, err := f.service.RegisterDocument(ctx, attacker, RegisterRequest{
			Type: DocumentPassport, FileKey: fileKey, MimeType: "image/png", SizeBytes: 4,
		})
		assert.True(t, apperrors.Is(err, apperrors.KindValidation), fileKey)
	}

	docs, err := f.repo.ListDocuments(ctx, other.ID)
	require.NoError(t, err)
	assert.Empty(t, docs)
	_, _, ok := f.store.Object(victimDoc.ObjectKey)
	assert.True(t, ok)
}
