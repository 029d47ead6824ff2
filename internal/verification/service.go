package verification

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"propertyhub/owner-portal/owner-portal-backend/internal/auth"
	"propertyhub/owner-portal/owner-portal-backend/internal/notifications"
	"propertyhub/owner-portal/owner-portal-backend/pkg/apperrors"
	"propertyhub/owner-portal/owner-portal-backend/pkg/storage"
)

const (
	DefaultMaxUploadBytes int64 = 10 << 20

	actionUpload  = "upload document"
	actionDelete  = "delete document"
	actionSubmit  = "submit"
	actionApprove = "approve"
	actionReject  = "reject"

	storageCleanupTimeout = 30 * time.Second
)

var errStorageDisabled = errors.New("object storage is not configured")

type Service interface {
	GetStatus(ctx context.Context, actor auth.Actor, userID uuid.UUID) (*StatusView, error)
	History(ctx context.Context, actor auth.Actor, userID uuid.UUID) ([]VerificationEvent, error)
	UploadDocument(ctx context.Context, actor auth.Actor, upload Upload) (*OwnerDocument, error)
	RegisterDocument(ctx context.Context, actor auth.Actor, req RegisterRequest) (*OwnerDocument, error)
	DeleteDocument(ctx context.Context, actor auth.Actor, documentID uuid.UUID) error
	SubmitForReview(ctx context.Context, actor auth.Actor) (*StatusView, error)
	Approve(ctx context.Context, actor auth.Actor, userID uuid.UUID, note string) (*StatusView, error)
	Reject(ctx context.Context, actor auth.Actor, userID uuid.UUID, reason string) (*StatusView, error)
	ListPending(ctx context.Context, actor auth.Actor, page, limit int) (*PendingList, error)
	Destination(ctx context.Context, userID uuid.UUID) (Destination, error)
}

type verificationService struct {
	repo     Repository
	storage  storage.S3Client
	notifier notifications.Notifier
	maxBytes int64
	logger   *zap.Logger
}

// NewService creates the verification gate. notifier may be nil.
func NewService(repo Repository, store storage.S3Client, notifier notifications.Notifier, maxBytes int64, logger *zap.Logger) Service {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	return &verificationService{
		repo:     repo,
		storage:  store,
		notifier: notifier,
		maxBytes: maxBytes,
		logger:   logger,
	}
}

func (s *verificationService) GetStatus(ctx context.Context, actor auth.Actor, userID uuid.UUID) (*StatusView, error) {
	if !actor.IsAdmin() && actor.UserID != userID {
		return nil, apperrors.Forbidden("owners may only read their own verification status")
	}
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, user)
}

func (s *verificationService) view(ctx context.Context, user *auth.User) (*StatusView, error) {
	docs, err := s.repo.ListDocuments(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return buildView(user, docs), nil
}

func buildView(user *auth.User, docs []OwnerDocument) *StatusView {
	if docs == nil {
		docs = []OwnerDocument{}
	}
	missing := MissingTypes(docs)
	return &StatusView{
		UserID:             user.ID,
		VerificationStatus: user.VerificationStatus,
		VerificationNote:   user.VerificationNote,
		Documents:          docs,
		MissingTypes:       missing,
		CanSubmit:          len(missing) == 0 && EvidenceEditable(user.VerificationStatus),
		Destination:        DestinationFor(user.VerificationStatus),
	}
}

func (s *verificationService) History(ctx context.Context, actor auth.Actor, userID uuid.UUID) ([]VerificationEvent, error) {
	if !actor.IsAdmin() && actor.UserID != userID {
		return nil, apperrors.Forbidden("owners may only read their own verification history")
	}
	if _, err := s.repo.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	return s.repo.ListEvents(ctx, userID)
}

// evidenceGuard rejects document changes once the owner is under review or approved.
func evidenceGuard(action string) Guard {
	return func(user *auth.User, _ []OwnerDocument) error {
		if !EvidenceEditable(user.VerificationStatus) {
			return apperrors.State(string(user.VerificationStatus), action,
				"documents are locked while under review or after approval")
		}
		return nil
	}
}

func (s *verificationService) requireOwner(ctx context.Context, actor auth.Actor, action string) (*auth.User, error) {
	if !actor.IsOwner() {
		return nil, apperrors.Forbidden("only owners may %s", action)
	}
	user, err := s.repo.GetUser(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// UploadDocument stores the bytes first and registers them second; if
// registration fails the object is removed again.
func (s *verificationService) UploadDocument(ctx context.Context, actor auth.Actor, upload Upload) (*OwnerDocument, error) {
	if err := ValidateFile(upload.Type, upload.MimeType, upload.Size, s.maxBytes); err != nil {
		return nil, err
	}
	user, err := s.requireOwner(ctx, actor, actionUpload)
	if err != nil {
		return nil, err
	}
	if err := evidenceGuard(actionUpload)(user, nil); err != nil {
		return nil, err
	}
	if s.storage == nil {
		return nil, apperrors.Infra("store document", errStorageDisabled)
	}

	key := storage.ObjectKey("owner-documents/"+user.ID.String(), upload.FileName)
	fileURL, err := s.storage.Upload(ctx, key, upload.Body, strings.ToLower(upload.MimeType))
	if err != nil {
		return nil, apperrors.Infra("store document", err)
	}

	doc := &OwnerDocument{
		OwnerID:   user.ID,
		Type:      upload.Type,
		FileKey:   fileURL,
		ObjectKey: key,
		MimeType:  strings.ToLower(upload.MimeType),
		SizeBytes: upload.Size,
		Status:    DocumentPending,
	}
	replaced, err := s.repo.ReplaceDocument(ctx, doc, evidenceGuard(actionUpload))
	if err != nil {
		s.removeObject(key, "compensate failed registration")
		return nil, err
	}

	s.afterReplace(doc, replaced)
	return doc, nil
}

func (s *verificationService) RegisterDocument(ctx context.Context, actor auth.Actor, req RegisterRequest) (*OwnerDocument, error) {
	if err := ValidateFile(req.Type, req.MimeType, req.SizeBytes, s.maxBytes); err != nil {
		return nil, err
	}
	fileKey := strings.TrimSpace(req.FileKey)
	if u, err := url.Parse(fileKey); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, apperrors.Validation("fileKey", "fileKey must be an absolute URL")
	}
	user, err := s.requireOwner(ctx, actor, actionUpload)
	if err != nil {
		return nil, err
	}

	doc := &OwnerDocument{
		OwnerID:   user.ID,
		Type:      req.Type,
		FileKey:   fileKey,
		MimeType:  strings.ToLower(req.MimeType),
		SizeBytes: req.SizeBytes,
		Status:    DocumentPending,
	}
	if s.storage != nil {
		key, err := s.storage.KeyFromURL(fileKey)
		if err != nil {
			return nil, apperrors.Validation("fileKey", "fileKey must be a URL returned by POST /uploads")
		}
		if !ownsObject(user.ID, key) {
			return nil, apperrors.Validation("fileKey", "fileKey must reference one of your own uploads")
		}
		doc.ObjectKey = key
	}

	replaced, err := s.repo.ReplaceDocument(ctx, doc, evidenceGuard(actionUpload))
	if err != nil {
		return nil, err
	}
	s.afterReplace(doc, replaced)
	return doc, nil
}

// ownsObject reports whether key was written for userID by the upload
// endpoint or by UploadDocument.
func ownsObject(userID uuid.UUID, key string) bool {
	for _, prefix := range []string{"uploads/", "owner-documents/"} {
		if strings.HasPrefix(key, prefix+userID.String()+"/") {
			return true
		}
	}
	return false
}

func (s *verificationService) afterReplace(doc, replaced *OwnerDocument) {
	s.logger.Info("Owner document stored",
		zap.String("user_id", doc.OwnerID.String()),
		zap.String("document_id", doc.ID.String()),
		zap.String("type", string(doc.Type)))
	if replaced != nil && replaced.ObjectKey != "" && replaced.ObjectKey != doc.ObjectKey {
		s.removeObject(replaced.ObjectKey, "remove replaced document")
	}
}

// removeObject deletes a stored object; failures only leave an orphan.
func (s *verificationService) removeObject(key, reason string) {
	if s.storage == nil || key == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storageCleanupTimeout)
	defer cancel()
	if err := s.storage.Delete(ctx, key); err != nil {
		s.logger.Warn("Failed to delete stored object",
			zap.String("object_key", key),
			zap.String("reason", reason),
			zap.Error(err))
	}
}

func (s *verificationService) DeleteDocument(ctx context.Context, actor auth.Actor, documentID uuid.UUID) error {
	doc, err := s.repo.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}
	if !actor.IsOwner() || doc.OwnerID != actor.UserID {
		return apperrors.Forbidden("only the owner of a document may delete it")
	}
	if err := s.repo.DeleteDocument(ctx, doc, evidenceGuard(actionDelete)); err != nil {
		return err
	}
	s.removeObject(doc.ObjectKey, "document deleted")
	return nil
}

func (s *verificationService) SubmitForReview(ctx context.Context, actor auth.Actor) (*StatusView, error) {
	if !actor.IsOwner() {
		return nil, apperrors.Forbidden("only owners may submit documents for review")
	}

	guard := func(user *auth.User, docs []OwnerDocument) error {
		if !EvidenceEditable(user.VerificationStatus) {
			return apperrors.InvalidTransition(string(user.VerificationStatus), actionSubmit, string(actor.Role))
		}
		if missing := MissingTypes(docs); len(missing) > 0 {
			return apperrors.Precondition("missing required documents: %s", typeNames(missing))
		}
		return nil
	}
	user, err := s.repo.UpdateStatus(ctx, StatusChange{
		UserID:         actor.UserID,
		ActorID:        actor.UserID,
		To:             auth.VerificationPendingApproval,
		DocumentStatus: DocumentPending,
	}, guard)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Verification submitted", zap.String("user_id", user.ID.String()))
	s.notify(ctx, &notifications.NotificationRequest{
		Event:        notifications.EventVerificationSubmitted,
		NotifyAdmins: true,
		Subject:      "Owner documents awaiting review",
		Body:         user.Name + " submitted identity documents for review.",
		Data:         map[string]interface{}{"userId": user.ID.String()},
	})
	return s.view(ctx, user)
}

// reviewGuard admits only owners awaiting review with both documents.
func reviewGuard(action string) Guard {
	return func(user *auth.User, docs []OwnerDocument) error {
		if user.VerificationStatus != auth.VerificationPendingApproval {
			return apperrors.InvalidTransition(string(user.VerificationStatus), action, string(auth.RoleAdmin))
		}
		present := make(map[DocumentType]bool, len(docs))
		for _, d := range docs {
			present[d.Type] = true
		}
		for _, t := range RequiredDocumentTypes {
			if !present[t] {
				return apperrors.Precondition("owner has no %s document", t)
			}
		}
		return nil
	}
}

func (s *verificationService) Approve(ctx context.Context, actor auth.Actor, userID uuid.UUID, note string) (*StatusView, error) {
	if !actor.IsAdmin() {
		return nil, apperrors.Forbidden("only admins may approve owners")
	}

	user, err := s.repo.UpdateStatus(ctx, StatusChange{
		UserID:         userID,
		ActorID:        actor.UserID,
		To:             auth.VerificationApproved,
		Note:           strings.TrimSpace(note),
		DocumentStatus: DocumentApproved,
	}, reviewGuard(actionApprove))
	if err != nil {
		return nil, err
	}

	s.logger.Info("Owner approved",
		zap.String("user_id", user.ID.String()),
		zap.String("admin_id", actor.UserID.String()))
	s.notify(ctx, &notifications.NotificationRequest{
		Event:     notifications.EventVerificationApproved,
		Recipient: recipient(user),
		Subject:   "Your account has been verified",
		Body:      "Your identity documents were approved. You now have full access to the owner dashboard.",
		Link:      "/dashboard",
		Data:      map[string]interface{}{"userId": user.ID.String()},
	})
	return s.view(ctx, user)
}

func (s *verificationService) Reject(ctx context.Context, actor auth.Actor, userID uuid.UUID, reason string) (*StatusView, error) {
	if !actor.IsAdmin() {
		return nil, apperrors.Forbidden("only admins may reject owners")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperrors.Validation("reason", "a rejection reason is required")
	}

	user, err := s.repo.UpdateStatus(ctx, StatusChange{
		UserID:          userID,
		ActorID:         actor.UserID,
		To:              auth.VerificationRejected,
		Note:            reason,
		DocumentStatus:  DocumentRejected,
		RejectionReason: reason,
	}, reviewGuard(actionReject))
	if err != nil {
		return nil, err
	}

	s.logger.Info("Owner rejected",
		zap.String("user_id", user.ID.String()),
		zap.String("admin_id", actor.UserID.String()))
	s.notify(ctx, &notifications.NotificationRequest{
		Event:     notifications.EventVerificationRejected,
		Recipient: recipient(user),
		Subject:   "Your identity documents need attention",
		Body:      "Your documents were not accepted: " + reason + ". Please upload new documents and submit again.",
		Link:      "/owner/documents",
		Data:      map[string]interface{}{"userId": user.ID.String(), "reason": reason},
	})
	return s.view(ctx, user)
}

func (s *verificationService) ListPending(ctx context.Context, actor auth.Actor, page, limit int) (*PendingList, error) {
	if !actor.IsAdmin() {
		return nil, apperrors.Forbidden("only admins may list pending owners")
	}
	if page < 1 {
		page = 1
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	users, total, err := s.repo.ListByStatus(ctx, auth.VerificationPendingApproval, (page-1)*limit, limit)
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, len(users))
	for i, u := range users {
		ids[i] = u.ID
	}
	docs, err := s.repo.ListDocuments(ctx, ids...)
	if err != nil {
		return nil, err
	}
	byOwner := make(map[uuid.UUID][]OwnerDocument, len(users))
	for _, d := range docs {
		byOwner[d.OwnerID] = append(byOwner[d.OwnerID], d)
	}

	list := &PendingList{Owners: make([]PendingOwner, 0, len(users)), Total: total, Page: page, Limit: limit}
	for _, u := range users {
		ownerDocs := byOwner[u.ID]
		if ownerDocs == nil {
			ownerDocs = []OwnerDocument{}
		}
		list.Owners = append(list.Owners, PendingOwner{User: u, Documents: ownerDocs})
	}
	return list, nil
}

// Destination re-reads the stored status; it is never cached.
func (s *verificationService) Destination(ctx context.Context, userID uuid.UUID) (Destination, error) {
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return "", err
	}
	return DestinationFor(user.VerificationStatus), nil
}

func (s *verificationService) notify(ctx context.Context, req *notifications.NotificationRequest) {
	if s.notifier != nil {
		s.notifier.Notify(ctx, req)
	}
}

func recipient(user *auth.User) *notifications.Recipient {
	return &notifications.Recipient{UserID: user.ID, Email: user.Email, Name: user.Name}
}
