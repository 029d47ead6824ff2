package threads

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"propertyhub/owner-portal/owner-portal-backend/internal/database"
	"propertyhub/owner-portal/owner-portal-backend/pkg/apperrors"
)

// Guard re-checks the subject inside the transaction that inserts a message.
type Guard func(ctx context.Context) error

type Repository interface {
	// CreateMessage runs guard and the insert in one transaction; a guard
	// error aborts the insert.
	CreateMessage(ctx context.Context, msg *Message, guard Guard) error
	GetMessage(ctx context.Context, subject Subject, id uuid.UUID) (*Message, error)
	// ListBefore returns up to limit messages of subject with seq < beforeSeq,
	// newest first. beforeSeq <= 0 means no upper bound.
	ListBefore(ctx context.Context, subject Subject, beforeSeq int64, limit int) ([]Message, error)
}

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) CreateMessage(ctx context.Context, msg *Message, guard Guard) error {
	return database.Transaction(ctx, r.db, func(ctx context.Context, tx *gorm.DB) error {
		if guard != nil {
			if err := guard(ctx); err != nil {
				return err
			}
		}
		if err := tx.Create(msg).Error; err != nil {
			return apperrors.Infra("create message", err)
		}
		return nil
	})
}

func (r *gormRepository) GetMessage(ctx context.Context, subject Subject, id uuid.UUID) (*Message, error) {
	var msg Message
	err := r.db.WithContext(ctx).
		Where("id = ? AND subject_kind = ? AND subject_id = ?", id, subject.Kind, subject.ID).
		First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFound("message", id)
	}
	if err != nil {
		return nil, apperrors.Infra("load message", err)
	}
	return &msg, nil
}

func (r *gormRepository) ListBefore(ctx context.Context, subject Subject, beforeSeq int64, limit int) ([]Message, error) {
	q := r.db.WithContext(ctx).
		Where("subject_kind = ? AND subject_id = ?", subject.Kind, subject.ID)
	if beforeSeq > 0 {
		q = q.Where("seq < ?", beforeSeq)
	}

	var msgs []Message
	if err := q.Order("seq DESC").Limit(limit).Find(&msgs).Error; err != nil {
		return nil, apperrors.Infra("list messages", err)
	}
	return msgs, nil
}
