package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mafiaboyhacker/tk-ai-model-gallery-backend/internal/platform/logger"
	"github.com/mafiaboyhacker/tk-ai-model-gallery-backend/internal/types"
)

type MediaRepo interface {
	Create(ctx context.Context, tx *gorm.DB, record *types.MediaRecord) (*types.MediaRecord, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.MediaRecord, error)
	List(ctx context.Context, tx *gorm.DB, mediaType types.MediaType, limit, offset int) ([]*types.MediaRecord, error)
	DeleteByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
}

type mediaRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMediaRepo(db *gorm.DB, baseLog *logger.Logger) MediaRepo {
	repoLog := baseLog.With("repo", "MediaRepo")
	return &mediaRepo{db: db, log: repoLog}
}

func (r *mediaRepo) Create(ctx context.Context, tx *gorm.DB, record *types.MediaRecord) (*types.MediaRecord, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if err := transaction.WithContext(ctx).Create(record).Error; err != nil {
		return nil, err
	}
	return record, nil
}

func (r *mediaRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.MediaRecord, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var result types.MediaRecord
	if err := transaction.WithContext(ctx).
		Where("id = ?", id).
		First(&result).Error; err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *mediaRepo) List(ctx context.Context, tx *gorm.DB, mediaType types.MediaType, limit, offset int) ([]*types.MediaRecord, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	q := transaction.WithContext(ctx).Model(&types.MediaRecord{})
	if mediaType != "" {
		q = q.Where("media_type = ?", mediaType)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}

	var results []*types.MediaRecord
	if err := q.Order("uploaded_at desc").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *mediaRepo) DeleteByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	return transaction.WithContext(ctx).
		Where("id = ?", id).
		Delete(&types.MediaRecord{}).Error
}
