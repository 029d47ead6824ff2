package verification

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"propertyhub/owner-portal/owner-portal-backend/internal/auth"
	"propertyhub/owner-portal/owner-portal-backend/pkg/apperrors"
)

// Guard inspects the locked owner row and its documents inside a
// transaction; a non-nil error rolls the transaction back and is returned.
type Guard func(user *auth.User, docs []OwnerDocument) error

// StatusChange describes a verification status transition.
type StatusChange struct {
	UserID  uuid.UUID
	ActorID uuid.UUID
	To      auth.VerificationStatus
	Note    string
	// DocumentStatus, when set, is applied to every document of the owner.
	DocumentStatus  DocumentStatus
	RejectionReason string
}

type Repository interface {
	GetUser(ctx context.Context, id uuid.UUID) (*auth.User, error)
	GetDocument(ctx context.Context, id uuid.UUID) (*OwnerDocument, error)
	ListDocuments(ctx context.Context, ownerIDs ...uuid.UUID) ([]OwnerDocument, error)
	// ReplaceDocument deletes whatever occupies doc's slot and inserts doc,
	// returning the replaced document if there was one.
	ReplaceDocument(ctx context.Context, doc *OwnerDocument, guard Guard) (*OwnerDocument, error)
	DeleteDocument(ctx context.Context, doc *OwnerDocument, guard Guard) error
	UpdateStatus(ctx context.Context, change StatusChange, guard Guard) (*auth.User, error)
	ListByStatus(ctx context.Context, status auth.VerificationStatus, offset, limit int) ([]auth.User, int64, error)
	ListEvents(ctx context.Context, userID uuid.UUID) ([]VerificationEvent, error)
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

func (r *gormRepository) GetDocument(ctx context.Context, id uuid.UUID) (*OwnerDocument, error) {
	var doc OwnerDocument
	err := r.db.WithContext(ctx).First(&doc, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFound("document", id)
	}
	if err != nil {
		return nil, apperrors.Infra("load document", err)
	}
	return &doc, nil
}

func (r *gormRepository) ListDocuments(ctx context.Context, ownerIDs ...uuid.UUID) ([]OwnerDocument, error) {
	docs := []OwnerDocument{}
	if len(ownerIDs) == 0 {
		return docs, nil
	}
	err := r.db.WithContext(ctx).
		Where("owner_id IN ?", ownerIDs).
		Order("owner_id, type").
		Find(&docs).Error
	if err != nil {
		return nil, apperrors.Infra("list documents", err)
	}
	return docs, nil
}

// locked loads the owner row FOR UPDATE together with their documents and
// runs guard.
func locked(tx *gorm.DB, ownerID uuid.UUID, guard Guard) (*auth.User, []OwnerDocument, error) {
	var user auth.User
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&user, "id = ?", ownerID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, apperrors.NotFound("user", ownerID)
	}
	if err != nil {
		return nil, nil, apperrors.Infra("lock user", err)
	}

	var docs []OwnerDocument
	if err := tx.Where("owner_id = ?", ownerID).Find(&docs).Error; err != nil {
		return nil, nil, apperrors.Infra("list documents", err)
	}

	if guard != nil {
		if err := guard(&user, docs); err != nil {
			return nil, nil, err
		}
	}
	return &user, docs, nil
}

func (r *gormRepository) ReplaceDocument(ctx context.Context, doc *OwnerDocument, guard Guard) (*OwnerDocument, error) {
	var replaced *OwnerDocument
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, docs, err := locked(tx, doc.OwnerID, guard)
		if err != nil {
			return err
		}

		for i := range docs {
			if docs[i].Type != doc.Type {
				continue
			}
			old := docs[i]
			if err := tx.Delete(&OwnerDocument{}, "id = ?", old.ID).Error; err != nil {
				return apperrors.Infra("delete replaced document", err)
			}
			replaced = &old
		}

		if err := tx.Create(doc).Error; err != nil {
			return apperrors.Infra("create document", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return replaced, nil
}

func (r *gormRepository) DeleteDocument(ctx context.Context, doc *OwnerDocument, guard Guard) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, _, err := locked(tx, doc.OwnerID, guard); err != nil {
			return err
		}
		res := tx.Delete(&OwnerDocument{}, "id = ?", doc.ID)
		if res.Error != nil {
			return apperrors.Infra("delete document", res.Error)
		}
		if res.RowsAffected == 0 {
			return apperrors.NotFound("document", doc.ID)
		}
		return nil
	})
}

func (r *gormRepository) UpdateStatus(ctx context.Context, change StatusChange, guard Guard) (*auth.User, error) {
	var updated *auth.User
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, _, err := locked(tx, change.UserID, guard)
		if err != nil {
			return err
		}
		from := user.VerificationStatus

		res := tx.Model(&auth.User{}).
			Where("id = ? AND verification_status = ?", user.ID, from).
			Updates(map[string]interface{}{
				"verification_status": change.To,
				"verification_note":   change.Note,
			})
		if res.Error != nil {
			return apperrors.Infra("update verification status", res.Error)
		}
		if res.RowsAffected == 0 {
			return apperrors.InvalidTransition(string(from), string(change.To), "")
		}

		if change.DocumentStatus != "" {
			err := tx.Model(&OwnerDocument{}).
				Where("owner_id = ?", user.ID).
				Updates(map[string]interface{}{
					"status":           change.DocumentStatus,
					"rejection_reason": change.RejectionReason,
				}).Error
			if err != nil {
				return apperrors.Infra("update document status", err)
			}
		}

		event := &VerificationEvent{
			UserID:     user.ID,
			FromStatus: from,
			ToStatus:   change.To,
			ActorID:    change.ActorID,
			Note:       change.Note,
		}
		if err := tx.Create(event).Error; err != nil {
			return apperrors.Infra("record verification event", err)
		}

		user.VerificationStatus = change.To
		user.VerificationNote = change.Note
		updated = user
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *gormRepository) ListByStatus(ctx context.Context, status auth.VerificationStatus, offset, limit int) ([]auth.User, int64, error) {
	scope := func() *gorm.DB {
		return r.db.WithContext(ctx).Model(&auth.User{}).
			Where("role = ? AND verification_status = ?", auth.RoleOwner, status)
	}

	var total int64
	if err := scope().Count(&total).Error; err != nil {
		return nil, 0, apperrors.Infra("count users", err)
	}

	users := []auth.User{}
	if err := scope().Order("updated_at ASC").Offset(offset).Limit(limit).Find(&users).Error; err != nil {
		return nil, 0, apperrors.Infra("list users", err)
	}
	return users, total, nil
}

func (r *gormRepository) ListEvents(ctx context.Context, userID uuid.UUID) ([]VerificationEvent, error) {
	events := []VerificationEvent{}
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&events).Error
	if err != nil {
		return nil, apperrors.Infra("list verification events", err)
	}
	return events, nil
}
