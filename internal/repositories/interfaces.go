package repositories

import (
	"context"
	"iter"
	"time"

	"github.com/tropicaldog17/pricestore/internal/models"
)

// AppendOptions controls how a record enters a series.
type AppendOptions struct {
	// Backfill allows inserting a record dated before the latest one.
	Backfill bool
}

// PriceHistoryRepository stores one append-only rate series per non-pivot asset.
// Reads never block on writers.
type PriceHistoryRepository interface {
	Append(ctx context.Context, rec *models.PriceRecord, opts AppendOptions) error
	Latest(asset string) (*models.PriceRecord, error)
	At(asset string, date time.Time) (*models.PriceRecord, error)
	AsOf(asset string, date time.Time) (*models.PriceRecord, error)
	Range(asset string, start, end time.Time) iter.Seq2[models.PriceRecord, error]
	RangeSlice(asset string, start, end time.Time) ([]models.PriceRecord, error)
	Assets() []string
	Stats(asset string) (*SeriesStats, error)
	Reindex(asset string) error
	Close() error
}

// BackfillAuditRepository persists the trail of manual backfills.
type BackfillAuditRepository interface {
	Create(ctx context.Context, a *models.BackfillAudit) error
	List(ctx context.Context, asset string, limit int) ([]*models.BackfillAudit, error)
}

// IngestionRunRepository persists ingestion cycle summaries.
type IngestionRunRepository interface {
	Create(ctx context.Context, run *models.IngestionRun) error
	Update(ctx context.Context, run *models.IngestionRun) error
	GetByID(ctx context.Context, id string) (*models.IngestionRun, error)
	ListRecent(ctx context.Context, limit int) ([]*models.IngestionRun, error)
}
