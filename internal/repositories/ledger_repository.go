package repositories

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/tropicaldog17/pricestore/internal/db"
	apperrors "github.com/tropicaldog17/pricestore/internal/errors"
	"github.com/tropicaldog17/pricestore/internal/models"
)

const defaultListLimit = 50

type backfillAuditRepository struct {
	db *db.DB
}

func NewBackfillAuditRepository(database *db.DB) BackfillAuditRepository {
	return &backfillAuditRepository{db: database}
}

func (r *backfillAuditRepository) Create(ctx context.Context, a *models.BackfillAudit) error {
	return r.db.WithContext(ctx).Create(a).Error
}

func (r *backfillAuditRepository) List(ctx context.Context, asset string, limit int) ([]*models.BackfillAudit, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	var list []*models.BackfillAudit
	q := r.db.WithContext(ctx).Model(&models.BackfillAudit{})
	if asset != "" {
		q = q.Where("asset = ?", asset)
	}
	if err := q.Order("created_at DESC").Limit(limit).Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

type ingestionRunRepository struct {
	db *db.DB
}

func NewIngestionRunRepository(database *db.DB) IngestionRunRepository {
	return &ingestionRunRepository{db: database}
}

func (r *ingestionRunRepository) Create(ctx context.Context, run *models.IngestionRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}

func (r *ingestionRunRepository) Update(ctx context.Context, run *models.IngestionRun) error {
	return r.db.WithContext(ctx).Save(run).Error
}

func (r *ingestionRunRepository) GetByID(ctx context.Context, id string) (*models.IngestionRun, error) {
	var run models.IngestionRun
	if err := r.db.WithContext(ctx).First(&run, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("ingestion run %s: %w", id, apperrors.ErrNotFound)
		}
		return nil, err
	}
	return &run, nil
}

func (r *ingestionRunRepository) ListRecent(ctx context.Context, limit int) ([]*models.IngestionRun, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	var list []*models.IngestionRun
	if err := r.db.WithContext(ctx).
		Order("started_at DESC").
		Limit(limit).
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}
