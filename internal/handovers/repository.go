package handovers

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"propertyhub/owner-portal/owner-portal-backend/internal/auth"
	"propertyhub/owner-portal/owner-portal-backend/internal/database"
	"propertyhub/owner-portal/owner-portal-backend/pkg/apperrors"
)

// errStale means the conditional update matched no row because the status
// moved underneath the caller.
var errStale = errors.New("handover status changed concurrently")

var sortColumns = map[string]string{
	"createdAt":   "created_at",
	"scheduledAt": "scheduled_at",
	"status":      "status",
	"updatedAt":   "updated_at",
}

// Transition is a status change applied atomically with its side columns.
type Transition struct {
	HandoverID uuid.UUID
	From       Status
	To         Status
	Action     Action
	Actor      auth.Actor
	// Fields are extra handover columns written with the status.
	Fields      map[string]interface{}
	ItemUpdates []ItemUpdate
	Metadata    map[string]interface{}
	// Within runs last inside the transaction with a context carrying it;
	// an error rolls the transition back.
	Within func(ctx context.Context) error
}

// DraftChange replaces draft columns and, when Items is non-nil, the checklist.
type DraftChange struct {
	HandoverID uuid.UUID
	Actor      auth.Actor
	Fields     map[string]interface{}
	Items      []HandoverItem
}

type Repository interface {
	GetUser(ctx context.Context, id uuid.UUID) (*auth.User, error)
	Create(ctx context.Context, h *Handover, actor auth.Actor) error
	Get(ctx context.Context, id uuid.UUID) (*Handover, error)
	// GetShared reads the row without items under FOR SHARE when ctx carries
	// a transaction, so no transition commits until that transaction ends.
	GetShared(ctx context.Context, id uuid.UUID) (*Handover, error)
	List(ctx context.Context, filter ListFilter) ([]Handover, int64, error)
	UpdateDraft(ctx context.Context, change DraftChange) error
	Transition(ctx context.Context, t Transition) error
	ListEvents(ctx context.Context, id uuid.UUID) ([]HandoverEvent, error)
	// SetPDFURL records the certificate of an accepted handover once.
	SetPDFURL(ctx context.Context, id uuid.UUID, url string) (bool, error)
	ListMissingPDF(ctx context.Context, limit int) ([]uuid.UUID, error)
}

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) GetUser(ctx context.Context, id uuid.UUID) (*auth.User, error) {
	var user auth.User
	err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFound("user", id)
	}
	if err != nil {
		return nil, apperrors.Infra("load user", err)
	}
	return &user, nil
}

func (r *gormRepository) Create(ctx context.Context, h *Handover, actor auth.Actor) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(h).Error; err != nil {
			return apperrors.Infra("create handover", err)
		}
		return recordEvent(tx, h.ID, "", h.Status, ActionEdit, actor, map[string]interface{}{"created": true})
	})
}

func orderedItems(db *gorm.DB) *gorm.DB {
	return db.Order("sort_order ASC")
}

func (r *gormRepository) Get(ctx context.Context, id uuid.UUID) (*Handover, error) {
	var h Handover
	err := r.db.WithContext(ctx).Preload("Items", orderedItems).First(&h, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFound("handover", id)
	}
	if err != nil {
		return nil, apperrors.Infra("load handover", err)
	}
	return &h, nil
}

func (r *gormRepository) GetShared(ctx context.Context, id uuid.UUID) (*Handover, error) {
	var h Handover
	err := database.Conn(ctx, r.db).
		Clauses(clause.Locking{Strength: "SHARE"}).
		First(&h, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFound("handover", id)
	}
	if err != nil {
		return nil, apperrors.Infra("load handover", err)
	}
	return &h, nil
}

func (r *gormRepository) List(ctx context.Context, f ListFilter) ([]Handover, int64, error) {
	scope := func() *gorm.DB {
		q := r.db.WithContext(ctx).Model(&Handover{})
		if f.OwnerID != nil {
			q = q.Where("owner_id = ?", *f.OwnerID)
		}
		if f.Status != "" {
			q = q.Where("status = ?", f.Status)
		}
		if f.Search != "" {
			p := containsPattern(f.Search)
			q = q.Where(`(unit_id::text ILIKE ? OR notes ILIKE ? OR EXISTS (
				SELECT 1 FROM handover_items hi WHERE hi.handover_id = handovers.id AND hi.label ILIKE ?))`,
				p, p, p)
		}
		return q
	}

	var total int64
	if err := scope().Count(&total).Error; err != nil {
		return nil, 0, apperrors.Infra("count handovers", err)
	}

	column, ok := sortColumns[f.SortBy]
	if !ok {
		column = sortColumns["createdAt"]
	}
	desc := f.SortOrder != "asc"

	handovers := []Handover{}
	err := scope().
		Preload("Items", orderedItems).
		Order(clause.OrderByColumn{Column: clause.Column{Name: column}, Desc: desc}).
		Order("id").
		Offset((f.Page - 1) * f.Limit).
		Limit(f.Limit).
		Find(&handovers).Error
	if err != nil {
		return nil, 0, apperrors.Infra("list handovers", err)
	}
	return handovers, total, nil
}

func (r *gormRepository) UpdateDraft(ctx context.Context, change DraftChange) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fields := map[string]interface{}{
			"version":    gorm.Expr("version + 1"),
			"updated_at": time.Now().UTC(),
		}
		for k, v := range change.Fields {
			fields[k] = v
		}
		res := tx.Model(&Handover{}).
			Where("id = ? AND status = ?", change.HandoverID, StatusDraft).
			Updates(fields)
		if res.Error != nil {
			return apperrors.Infra("update handover", res.Error)
		}
		if res.RowsAffected == 0 {
			return errStale
		}

		if change.Items != nil {
			if err := tx.Where("handover_id = ?", change.HandoverID).Delete(&HandoverItem{}).Error; err != nil {
				return apperrors.Infra("clear handover items", err)
			}
			if len(change.Items) > 0 {
				if err := tx.Create(&change.Items).Error; err != nil {
					return apperrors.Infra("create handover items", err)
				}
			}
		}
		return recordEvent(tx, change.HandoverID, StatusDraft, StatusDraft, ActionEdit, change.Actor, nil)
	})
}

func (r *gormRepository) Transition(ctx context.Context, t Transition) error {
	return database.Transaction(ctx, r.db, func(ctx context.Context, tx *gorm.DB) error {
		fields := map[string]interface{}{
			"status":     t.To,
			"version":    gorm.Expr("version + 1"),
			"updated_at": time.Now().UTC(),
		}
		for k, v := range t.Fields {
			fields[k] = v
		}
		res := tx.Model(&Handover{}).
			Where("id = ? AND status = ?", t.HandoverID, t.From).
			Updates(fields)
		if res.Error != nil {
			return apperrors.Infra("update handover status", res.Error)
		}
		if res.RowsAffected == 0 {
			return errStale
		}

		for _, u := range t.ItemUpdates {
			err := tx.Model(&HandoverItem{}).
				Where("id = ? AND handover_id = ?", u.ID, t.HandoverID).
				Updates(map[string]interface{}{
					"status":       u.Status,
					"actual_value": u.ActualValue,
					"notes":        u.Notes,
				}).Error
			if err != nil {
				return apperrors.Infra("update handover item", err)
			}
		}
		if err := recordEvent(tx, t.HandoverID, t.From, t.To, t.Action, t.Actor, t.Metadata); err != nil {
			return err
		}
		if t.Within != nil {
			return t.Within(ctx)
		}
		return nil
	})
}

func recordEvent(tx *gorm.DB, id uuid.UUID, from, to Status, action Action, actor auth.Actor, metadata map[string]interface{}) error {
	event := &HandoverEvent{
		HandoverID: id,
		FromStatus: from,
		ToStatus:   to,
		Action:     action,
		ActorID:    actor.UserID,
		ActorRole:  actor.Role,
	}
	if len(metadata) > 0 {
		raw, err := json.Marshal(metadata)
		if err != nil {
			return apperrors.Infra("encode event metadata", err)
		}
		event.Metadata = datatypes.JSON(raw)
	}
	if err := tx.Create(event).Error; err != nil {
		return apperrors.Infra("record handover event", err)
	}
	return nil
}

func (r *gormRepository) ListEvents(ctx context.Context, id uuid.UUID) ([]HandoverEvent, error) {
	events := []HandoverEvent{}
	err := r.db.WithContext(ctx).
		Where("handover_id = ?", id).
		Order("created_at ASC").
		Find(&events).Error
	if err != nil {
		return nil, apperrors.Infra("list handover events", err)
	}
	return events, nil
}

func (r *gormRepository) SetPDFURL(ctx context.Context, id uuid.UUID, url string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&Handover{}).
		Where("id = ? AND status = ? AND (pdf_url IS NULL OR pdf_url = '')", id, StatusAccepted).
		Update("pdf_url", url)
	if res.Error != nil {
		return false, apperrors.Infra("record handover pdf", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *gormRepository) ListMissingPDF(ctx context.Context, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).Model(&Handover{}).
		Where("status = ? AND (pdf_url IS NULL OR pdf_url = '')", StatusAccepted).
		Order("handover_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, apperrors.Infra("list handovers missing pdf", err)
	}
	return ids, nil
}
