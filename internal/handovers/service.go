package handovers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"propertyhub/owner-portal/owner-portal-backend/internal/auth"
	"propertyhub/owner-portal/owner-portal-backend/internal/notifications"
	"propertyhub/owner-portal/owner-portal-backend/internal/threads"
	"propertyhub/owner-portal/owner-portal-backend/pkg/apperrors"
)

const (
	DefaultPageLimit    = 20
	MaxPageLimit        = 100
	DefaultMaxStaleness = 30 * time.Second

	maxExportRows = 10000
)

// Enqueuer schedules certificate generation for an accepted handover.
type Enqueuer interface {
	Enqueue(id uuid.UUID) bool
}

type Service interface {
	Create(ctx context.Context, actor auth.Actor, req CreateRequest) (*View, error)
	Get(ctx context.Context, actor auth.Actor, id uuid.UUID, staleness time.Duration) (*View, error)
	List(ctx context.Context, actor auth.Actor, filter ListFilter) (*ListResult, error)
	UpdateDraft(ctx context.Context, actor auth.Actor, id uuid.UUID, req UpdateRequest) (*View, error)
	SendToOwner(ctx context.Context, actor auth.Actor, id uuid.UUID, req SendRequest) (*View, error)
	OwnerConfirm(ctx context.Context, actor auth.Actor, id uuid.UUID, req ConfirmRequest) (*View, error)
	Cancel(ctx context.Context, actor auth.Actor, id uuid.UUID, req CancelRequest) (*View, error)
	History(ctx context.Context, actor auth.Actor, id uuid.UUID) ([]HandoverEvent, error)
	Export(ctx context.Context, actor auth.Actor, filter ListFilter, format ExportFormat) ([]byte, error)
	RecordPDF(ctx context.Context, id uuid.UUID, url string) (bool, error)
}

// Config holds the optional collaborators of the handover service.
type Config struct {
	Cache        ViewCache
	MaxStaleness time.Duration
	Threads      threads.Service
	Notifier     notifications.Notifier
	PDFQueue     Enqueuer
	Exporter     *Exporter
}

type handoverService struct {
	repo         Repository
	cache        ViewCache
	maxStaleness time.Duration
	threads      threads.Service
	notifier     notifications.Notifier
	pdfQueue     Enqueuer
	exporter     *Exporter
	logger       *zap.Logger
	now          func() time.Time
}

func NewService(repo Repository, cfg Config, logger *zap.Logger) Service {
	if cfg.MaxStaleness <= 0 {
		cfg.MaxStaleness = DefaultMaxStaleness
	}
	if cfg.Cache == nil {
		cfg.Cache = NewMemoryViewCache(cfg.MaxStaleness)
	}
	if cfg.Exporter == nil {
		cfg.Exporter = NewExporter(DefaultExportOptions())
	}
	return &handoverService{
		repo:         repo,
		cache:        cfg.Cache,
		maxStaleness: cfg.MaxStaleness,
		threads:      cfg.Threads,
		notifier:     cfg.Notifier,
		pdfQueue:     cfg.PDFQueue,
		exporter:     cfg.Exporter,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func requireAdmin(actor auth.Actor, action string) error {
	if !actor.IsAdmin() {
		return apperrors.Forbidden("only admins may %s handovers", action)
	}
	return nil
}

// canRead enforces that owners only see their own handovers.
func canRead(actor auth.Actor, h *Handover) error {
	switch actor.Role {
	case auth.RoleAdmin:
		return nil
	case auth.RoleOwner:
		if h.OwnerID == actor.UserID {
			return nil
		}
	}
	return apperrors.Forbidden("handover %s belongs to another owner", h.ID)
}

func buildItems(handoverID uuid.UUID, inputs []ItemInput) ([]HandoverItem, error) {
	items := make([]HandoverItem, 0, len(inputs))
	for i, in := range inputs {
		label := strings.TrimSpace(in.Label)
		if label == "" {
			return nil, apperrors.Validation("items", "item %d has no label", i)
		}
		items = append(items, HandoverItem{
			HandoverID:    handoverID,
			Category:      strings.TrimSpace(in.Category),
			Label:         label,
			ExpectedValue: strings.TrimSpace(in.ExpectedValue),
			SortOrder:     len(items),
		})
	}
	return items, nil
}

func compact(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func (s *handoverService) Create(ctx context.Context, actor auth.Actor, req CreateRequest) (*View, error) {
	if err := requireAdmin(actor, "create"); err != nil {
		return nil, err
	}
	if req.UnitID == uuid.Nil {
		return nil, apperrors.Validation("unitId", "unitId is required")
	}
	if req.OwnerID == uuid.Nil {
		return nil, apperrors.Validation("ownerId", "ownerId is required")
	}
	owner, err := s.repo.GetUser(ctx, req.OwnerID)
	if err != nil {
		if apperrors.Is(err, apperrors.KindNotFound) {
			return nil, apperrors.Validation("ownerId", "owner %s does not exist", req.OwnerID)
		}
		return nil, err
	}
	if owner.Role != auth.RoleOwner {
		return nil, apperrors.Validation("ownerId", "user %s is not an owner", req.OwnerID)
	}

	h := &Handover{
		ID:            uuid.New(),
		UnitID:        req.UnitID,
		OwnerID:       req.OwnerID,
		Status:        StatusDraft,
		ScheduledAt:   req.ScheduledAt,
		Notes:         strings.TrimSpace(req.Notes),
		InternalNotes: strings.TrimSpace(req.InternalNotes),
		Attachments:   compact(req.Attachments),
		CreatedBy:     actor.UserID,
		Version:       1,
	}
	items, err := buildItems(h.ID, req.Items)
	if err != nil {
		return nil, err
	}
	h.Items = items

	if err := s.repo.Create(ctx, h, actor); err != nil {
		return nil, err
	}
	s.logger.Info("Handover created",
		zap.String("handover_id", h.ID.String()),
		zap.String("owner_id", h.OwnerID.String()),
		zap.Int("items", len(items)))
	return NewView(h, actor.Role), nil
}

// Get serves a cached view when it is no older than staleness, which is
// capped at the configured polling window. Zero forces a fresh read.
func (s *handoverService) Get(ctx context.Context, actor auth.Actor, id uuid.UUID, staleness time.Duration) (*View, error) {
	if staleness < 0 {
		return nil, apperrors.Validation("maxStaleness", "maxStaleness must not be negative")
	}
	if staleness > s.maxStaleness {
		staleness = s.maxStaleness
	}

	if staleness > 0 {
		if h, at, ok := s.cache.Get(ctx, id); ok && s.now().Sub(at) <= staleness {
			if err := canRead(actor, h); err != nil {
				return nil, err
			}
			return NewView(h, actor.Role), nil
		}
	}

	readAt := s.now()
	h, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.Set(ctx, h, readAt)
	if err := canRead(actor, h); err != nil {
		return nil, err
	}
	return NewView(h, actor.Role), nil
}

// load reads the current row, bypassing the cache.
func (s *handoverService) load(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Handover, error) {
	h, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := canRead(actor, h); err != nil {
		return nil, err
	}
	return h, nil
}

func normalizeFilter(actor auth.Actor, f ListFilter) (ListFilter, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit <= 0 {
		f.Limit = DefaultPageLimit
	}
	if f.Limit > MaxPageLimit {
		f.Limit = MaxPageLimit
	}
	if f.SortBy == "" {
		f.SortBy = "createdAt"
	}
	if _, ok := sortColumns[f.SortBy]; !ok {
		return f, apperrors.Validation("sortBy", "cannot sort by %q", f.SortBy)
	}
	f.SortOrder = strings.ToLower(f.SortOrder)
	switch f.SortOrder {
	case "":
		f.SortOrder = "desc"
	case "asc", "desc":
	default:
		return f, apperrors.Validation("sortOrder", "sortOrder must be asc or desc")
	}
	if f.Status != "" && !f.Status.Valid() {
		return f, apperrors.Validation("status", "unknown status %q", f.Status)
	}
	f.Search = strings.TrimSpace(f.Search)

	switch actor.Role {
	case auth.RoleAdmin:
		f.OwnerID = nil
	case auth.RoleOwner:
		owner := actor.UserID
		f.OwnerID = &owner
	default:
		return f, apperrors.Forbidden("unknown role %q", actor.Role)
	}
	return f, nil
}

func (s *handoverService) List(ctx context.Context, actor auth.Actor, filter ListFilter) (*ListResult, error) {
	f, err := normalizeFilter(actor, filter)
	if err != nil {
		return nil, err
	}
	rows, total, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, err
	}
	result := &ListResult{Handovers: make([]Summary, 0, len(rows)), Total: total, Page: f.Page, Limit: f.Limit}
	for i := range rows {
		result.Handovers = append(result.Handovers, summarize(&rows[i]))
	}
	return result, nil
}

// staleTransition reports a lost race against the row as it is now.
func (s *handoverService) staleTransition(ctx context.Context, id uuid.UUID, action Action, actor auth.Actor) error {
	fresh, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	s.cache.Invalidate(ctx, id)
	return apperrors.InvalidTransition(string(fresh.Status), string(action), string(actor.Role))
}

func (s *handoverService) refresh(ctx context.Context, actor auth.Actor, id uuid.UUID) (*View, error) {
	s.cache.Invalidate(ctx, id)
	h, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return NewView(h, actor.Role), nil
}

func (s *handoverService) UpdateDraft(ctx context.Context, actor auth.Actor, id uuid.UUID, req UpdateRequest) (*View, error) {
	if err := requireAdmin(actor, "edit"); err != nil {
		return nil, err
	}
	h, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if _, err := CheckTransition(h, ActionEdit, actor); err != nil {
		return nil, err
	}

	change := DraftChange{HandoverID: id, Actor: actor, Fields: map[string]interface{}{}}
	if req.Notes != nil {
		change.Fields["notes"] = strings.TrimSpace(*req.Notes)
	}
	if req.InternalNotes != nil {
		change.Fields["internal_notes"] = strings.TrimSpace(*req.InternalNotes)
	}
	if req.ScheduledAt != nil {
		change.Fields["scheduled_at"] = *req.ScheduledAt
	}
	if req.Attachments != nil {
		change.Fields["attachments"] = pq.StringArray(compact(*req.Attachments))
	}
	if req.Items != nil {
		items, err := buildItems(id, *req.Items)
		if err != nil {
			return nil, err
		}
		change.Items = items
	}

	if err := s.repo.UpdateDraft(ctx, change); err != nil {
		if errors.Is(err, errStale) {
			return nil, s.staleTransition(ctx, id, ActionEdit, actor)
		}
		return nil, err
	}
	s.logger.Info("Handover draft updated", zap.String("handover_id", id.String()))
	return s.refresh(ctx, actor, id)
}

func (s *handoverService) SendToOwner(ctx context.Context, actor auth.Actor, id uuid.UUID, req SendRequest) (*View, error) {
	h, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	to, err := CheckTransition(h, ActionSend, actor)
	if err != nil {
		return nil, err
	}
	message := strings.TrimSpace(req.Message)
	if len([]rune(message)) > threads.MaxBodyLength {
		return nil, apperrors.Validation("message", "message exceeds %d characters", threads.MaxBodyLength)
	}

	now := s.now()
	t := Transition{
		HandoverID: id,
		From:       h.Status,
		To:         to,
		Action:     ActionSend,
		Actor:      actor,
		Fields:     map[string]interface{}{"sent_at": now},
	}
	if message != "" && s.threads != nil {
		t.Within = func(ctx context.Context) error {
			subject := threads.Subject{Kind: threads.SubjectHandover, ID: id}
			_, err := s.threads.Append(ctx, actor, subject, threads.AppendRequest{Body: message})
			return err
		}
	}
	err = s.repo.Transition(ctx, t)
	if err != nil {
		if errors.Is(err, errStale) {
			return nil, s.staleTransition(ctx, id, ActionSend, actor)
		}
		return nil, err
	}
	s.logger.Info("Handover sent to owner",
		zap.String("handover_id", id.String()),
		zap.String("owner_id", h.OwnerID.String()))

	s.notifyOwner(ctx, h, notifications.EventHandoverSent,
		"Your unit handover is ready for review",
		"A handover checklist for your unit has been sent to you. Please review it and confirm the handover.")
	return s.refresh(ctx, actor, id)
}

func validateItemUpdates(h *Handover, updates []ItemUpdate) ([]ItemUpdate, error) {
	known := make(map[uuid.UUID]bool, len(h.Items))
	for _, it := range h.Items {
		known[it.ID] = true
	}
	seen := make(map[uuid.UUID]bool, len(updates))
	out := make([]ItemUpdate, 0, len(updates))
	for _, u := range updates {
		if !known[u.ID] {
			return nil, apperrors.Validation("itemUpdates", "item %s does not belong to this handover", u.ID)
		}
		if seen[u.ID] {
			return nil, apperrors.Validation("itemUpdates", "item %s is updated twice", u.ID)
		}
		seen[u.ID] = true
		if !u.Status.Valid() {
			return nil, apperrors.Validation("itemUpdates", "item %s has invalid status %q", u.ID, u.Status)
		}
		u.Notes = strings.TrimSpace(u.Notes)
		u.ActualValue = strings.TrimSpace(u.ActualValue)
		if u.Status == ItemNotOK && u.Notes == "" {
			return nil, apperrors.Validation("itemUpdates", "item %s is NOT_OK and needs notes", u.ID)
		}
		out = append(out, u)
	}
	return out, nil
}

func (s *handoverService) OwnerConfirm(ctx context.Context, actor auth.Actor, id uuid.UUID, req ConfirmRequest) (*View, error) {
	h, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	to, err := CheckTransition(h, ActionConfirm, actor)
	if err != nil {
		return nil, err
	}
	updates, err := validateItemUpdates(h, req.ItemUpdates)
	if err != nil {
		return nil, err
	}

	now := s.now()
	err = s.repo.Transition(ctx, Transition{
		HandoverID: id,
		From:       h.Status,
		To:         to,
		Action:     ActionConfirm,
		Actor:      actor,
		Fields: map[string]interface{}{
			"owner_accepted_at": now,
			"handover_at":       now,
			"acknowledgement":   strings.TrimSpace(req.Acknowledgement),
		},
		ItemUpdates: updates,
		Metadata:    map[string]interface{}{"itemUpdates": len(updates)},
	})
	if err != nil {
		if errors.Is(err, errStale) {
			return nil, s.staleTransition(ctx, id, ActionConfirm, actor)
		}
		return nil, err
	}
	s.logger.Info("Handover accepted by owner",
		zap.String("handover_id", id.String()),
		zap.String("owner_id", actor.UserID.String()))

	if s.pdfQueue != nil && !s.pdfQueue.Enqueue(id) {
		s.logger.Warn("PDF queue full, leaving handover for the sweep", zap.String("handover_id", id.String()))
	}
	s.notify(ctx, &notifications.NotificationRequest{
		Event:        notifications.EventHandoverAccepted,
		NotifyAdmins: true,
		Subject:      "Handover accepted",
		Body:         "The owner accepted the handover of unit " + h.UnitID.String() + ".",
		Link:         "/handovers/" + id.String(),
		Data:         map[string]interface{}{"handoverId": id.String(), "unitId": h.UnitID.String()},
	})
	return s.refresh(ctx, actor, id)
}

func (s *handoverService) Cancel(ctx context.Context, actor auth.Actor, id uuid.UUID, req CancelRequest) (*View, error) {
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, apperrors.Validation("reason", "a cancellation reason is required")
	}
	h, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	to, err := CheckTransition(h, ActionCancel, actor)
	if err != nil {
		return nil, err
	}

	err = s.repo.Transition(ctx, Transition{
		HandoverID: id,
		From:       h.Status,
		To:         to,
		Action:     ActionCancel,
		Actor:      actor,
		Fields: map[string]interface{}{
			"cancelled_at":  s.now(),
			"cancel_reason": reason,
		},
		Metadata: map[string]interface{}{"reason": reason},
	})
	if err != nil {
		if errors.Is(err, errStale) {
			return nil, s.staleTransition(ctx, id, ActionCancel, actor)
		}
		return nil, err
	}
	s.logger.Info("Handover cancelled",
		zap.String("handover_id", id.String()),
		zap.String("reason", reason))

	// Drafts were never shown to the owner.
	if h.Status == StatusSentToOwner {
		s.notifyOwner(ctx, h, notifications.EventHandoverCancelled,
			"Your unit handover was cancelled",
			"The handover sent to you was cancelled: "+reason+".")
	}
	return s.refresh(ctx, actor, id)
}

func (s *handoverService) History(ctx context.Context, actor auth.Actor, id uuid.UUID) ([]HandoverEvent, error) {
	if _, err := s.load(ctx, actor, id); err != nil {
		return nil, err
	}
	return s.repo.ListEvents(ctx, id)
}

func (s *handoverService) Export(ctx context.Context, actor auth.Actor, filter ListFilter, format ExportFormat) ([]byte, error) {
	if err := requireAdmin(actor, "export"); err != nil {
		return nil, err
	}
	if !format.Valid() {
		return nil, apperrors.Validation("format", "format must be xlsx or csv")
	}
	f, err := normalizeFilter(actor, filter)
	if err != nil {
		return nil, err
	}
	f.Page, f.Limit = 1, MaxPageLimit

	var rows []Handover
	for len(rows) < maxExportRows {
		page, total, err := s.repo.List(ctx, f)
		if err != nil {
			return nil, err
		}
		rows = append(rows, page...)
		if len(page) < f.Limit || int64(len(rows)) >= total {
			break
		}
		f.Page++
	}

	data, err := s.exporter.Export(ctx, rows, format)
	if err != nil {
		return nil, apperrors.Infra("export handovers", err)
	}
	return data, nil
}

func (s *handoverService) RecordPDF(ctx context.Context, id uuid.UUID, url string) (bool, error) {
	recorded, err := s.repo.SetPDFURL(ctx, id, url)
	if err != nil {
		return false, err
	}
	if !recorded {
		return false, nil
	}
	s.cache.Invalidate(ctx, id)
	s.logger.Info("Handover certificate recorded", zap.String("handover_id", id.String()))

	h, err := s.repo.Get(ctx, id)
	if err != nil {
		return true, nil
	}
	s.notifyOwner(ctx, h, notifications.EventHandoverPDFReady,
		"Your handover certificate is available",
		"The signed handover certificate for your unit can now be downloaded.")
	return true, nil
}

func (s *handoverService) notifyOwner(ctx context.Context, h *Handover, event, subject, body string) {
	if s.notifier == nil {
		return
	}
	req := &notifications.NotificationRequest{
		Event:   event,
		Subject: subject,
		Body:    body,
		Link:    "/handovers/" + h.ID.String(),
		Data:    map[string]interface{}{"handoverId": h.ID.String(), "status": string(h.Status)},
	}
	if owner, err := s.repo.GetUser(ctx, h.OwnerID); err == nil {
		req.Recipient = &notifications.Recipient{UserID: owner.ID, Email: owner.Email, Name: owner.Name}
	} else {
		s.logger.Warn("Failed to load handover owner for notification",
			zap.String("handover_id", h.ID.String()),
			zap.Error(err))
		req.Recipient = &notifications.Recipient{UserID: h.OwnerID}
	}
	s.notifier.Notify(ctx, req)
}

func (s *handoverService) notify(ctx context.Context, req *notifications.NotificationRequest) {
	if s.notifier != nil {
		s.notifier.Notify(ctx, req)
	}
}
