package services

import (
	"context"
	"net/http"
	"time"

	"github.com/tropicaldog17/pricestore/internal/models"
)

// ConversionService converts amounts between assets by triangulating through the pivot.
type ConversionService interface {
	Convert(ctx context.Context, req models.ConversionRequest) (*models.ConversionResult, error)
	ConvertBatch(ctx context.Context, amounts []models.BatchAmount, to string, at *time.Time, maxStaleness time.Duration) (*BatchConversionResult, error)
}

// PriceService defines the read and backfill operations over the history store
type PriceService interface {
	Latest(asset string) (*models.PriceRecord, error)
	At(asset string, date time.Time, asOf bool) (*models.PriceRecord, error)
	History(asset string, from, to time.Time) ([]models.PriceRecord, error)
	// Rates expresses every stored asset against base, latest when at is nil.
	Rates(ctx context.Context, base string, at *time.Time) (*RateTable, error)
	Assets() []AssetInfo
	Backfill(ctx context.Context, req BackfillRequest) (*models.BackfillAudit, error)
	Audits(ctx context.Context, asset string, limit int) ([]*models.BackfillAudit, error)
}

// IngestionService defines the provider polling operations
type IngestionService interface {
	RunOnce(ctx context.Context, trigger string) (*models.IngestionRun, error)
	// FetchHistorical asks every provider for the rates of one past day and
	// backfills them, recording an audit entry per stored record.
	FetchHistorical(ctx context.Context, date time.Time, actor string) (*models.IngestionRun, error)
	RecentRuns(ctx context.Context, limit int) ([]*models.IngestionRun, error)
}

// QuoteBatch is one provider response.
type QuoteBatch struct {
	Provider   string
	ObservedAt time.Time
	Quotes     []RawQuote
}

// RateProvider fetches quotes from an upstream source.
//
//go:generate mockgen -package=services -destination=mock_rate_provider_test.go . RateProvider,HTTPClient
type RateProvider interface {
	Name() string
	Supports(asset models.Asset) bool
	// FetchLatest returns quotes for whichever of assets the upstream knows.
	// Assets it does not report are absent from the batch.
	FetchLatest(ctx context.Context, pivot string, assets []models.Asset) (*QuoteBatch, error)
	// FetchHistorical returns the quotes of date. ObservedAt is that day.
	FetchHistorical(ctx context.Context, pivot string, assets []models.Asset, date time.Time) (*QuoteBatch, error)
}

// HTTPClient describes an HTTP client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}
