package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	apperrors "github.com/tropicaldog17/pricestore/internal/errors"
	"github.com/tropicaldog17/pricestore/internal/models"
	"github.com/tropicaldog17/pricestore/internal/repositories"
)

// MaxHistorySpan bounds a single history query.
const MaxHistorySpan = 5 * 366 * 24 * time.Hour

// BackfillRequest inserts a historical rate that the scheduler missed.
type BackfillRequest struct {
	Asset  string          `json:"asset"`
	Date   string          `json:"date"`
	Rate   decimal.Decimal `json:"rate"`
	Source string          `json:"source"`
	Reason string          `json:"reason"`
	Actor  string          `json:"-"`
}

// AssetInfo is one registry entry with its series statistics, when stored.
type AssetInfo struct {
	models.Asset
	Pivot  bool                      `json:"pivot"`
	Series *repositories.SeriesStats `json:"series,omitempty"`
}

type priceService struct {
	history    repositories.PriceHistoryRepository
	audits     repositories.BackfillAuditRepository
	conversion ConversionService
	registry   *models.AssetRegistry
	logger     *zap.Logger
}

// NewPriceService builds the read facade. audits may be nil, which disables the
// audit trail; conversion may be nil when rate tables are not served.
func NewPriceService(history repositories.PriceHistoryRepository, audits repositories.BackfillAuditRepository, conversion ConversionService, registry *models.AssetRegistry, logger *zap.Logger) PriceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &priceService{history: history, audits: audits, conversion: conversion, registry: registry, logger: logger}
}

func (s *priceService) Latest(asset string) (*models.PriceRecord, error) {
	return s.history.Latest(asset)
}

// At returns the record dated exactly date, or with asOf the most recent one on or before it.
func (s *priceService) At(asset string, date time.Time, asOf bool) (*models.PriceRecord, error) {
	if asOf {
		return s.history.AsOf(asset, date)
	}
	return s.history.At(asset, date)
}

// History returns the records of asset dated within [from, to].
func (s *priceService) History(asset string, from, to time.Time) ([]models.PriceRecord, error) {
	if from.After(to) {
		return nil, &apperrors.ErrValidation{Field: "from", Message: "from must not be after to"}
	}
	if to.Sub(from) > MaxHistorySpan {
		return nil, &apperrors.ErrValidation{Field: "to", Message: "history range is limited to 5 years"}
	}
	recs, err := s.history.RangeSlice(asset, from, to)
	if err != nil {
		return nil, err
	}
	if recs == nil {
		recs = []models.PriceRecord{}
	}
	return recs, nil
}

// Assets lists the registry, pivot first, then by code.
func (s *priceService) Assets() []AssetInfo {
	pivot := s.registry.Pivot()
	out := []AssetInfo{{Asset: pivot, Pivot: true}}
	for _, a := range s.registry.All() {
		if a.Code == pivot.Code {
			continue
		}
		info := AssetInfo{Asset: a}
		if st, err := s.history.Stats(a.Code); err == nil && st.Count > 0 {
			info.Series = st
		}
		out = append(out, info)
	}
	return out
}

// CrossRate is the amount of Asset worth one unit of the table's base.
type CrossRate struct {
	Asset string          `json:"asset"`
	Rate  decimal.Decimal `json:"rate"`
	// RateDate is the older of the two stored rates combined, empty when both sides are the pivot.
	RateDate string `json:"rate_date,omitempty"`
}

// RateTable lists every asset that has a rate, expressed against Base.
type RateTable struct {
	Base    string      `json:"base"`
	Date    string      `json:"date,omitempty"`
	Rates   []CrossRate `json:"rates"`
	Missing []string    `json:"missing,omitempty"`
}

// Rates expresses every registered asset against base. Assets without a usable
// rate at that point are listed in Missing; a base without one fails the call.
// Each rate is rounded half-up to the rate scale of its asset.
func (s *priceService) Rates(ctx context.Context, base string, at *time.Time) (*RateTable, error) {
	if s.conversion == nil {
		return nil, errors.New("rate tables are not configured")
	}
	b, err := s.registry.Lookup(base)
	if err != nil {
		return nil, &apperrors.ErrValidation{Field: "base", Message: err.Error()}
	}
	table := &RateTable{Base: b.Code, Rates: []CrossRate{}}
	if at != nil {
		table.Date = models.DateOnly(*at).Format(models.DateLayout)
	}

	if !s.registry.IsPivot(b.Code) {
		pivot := s.registry.Pivot().Code
		if _, err := s.conversion.Convert(ctx, models.ConversionRequest{From: b.Code, To: pivot, Amount: decimal.NewFromInt(1), At: at}); err != nil {
			return nil, err
		}
	}

	for _, target := range s.registry.All() {
		if target.Code == b.Code {
			table.Rates = append(table.Rates, CrossRate{Asset: b.Code, Rate: decimal.NewFromInt(1)})
			continue
		}
		res, err := s.conversion.Convert(ctx, models.ConversionRequest{From: b.Code, To: target.Code, Amount: decimal.NewFromInt(1), At: at})
		if err != nil {
			if errors.Is(err, apperrors.ErrMissingRate) || errors.Is(err, apperrors.ErrStaleRate) {
				table.Missing = append(table.Missing, target.Code)
				continue
			}
			return nil, err
		}
		cr := CrossRate{
			Asset: target.Code,
			Rate:  res.RateFrom.DivRound(res.RateTo, target.RateScale()),
		}
		if d := olderDate(res.RateDateFrom, res.RateDateTo); d != nil {
			cr.RateDate = d.Format(models.DateLayout)
		}
		table.Rates = append(table.Rates, cr)
	}
	return table, nil
}

func olderDate(a, b *time.Time) *time.Time {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case b.Before(*a):
		return b
	}
	return a
}

// Backfill inserts req into the past of its series and records who did it.
func (s *priceService) Backfill(ctx context.Context, req BackfillRequest) (*models.BackfillAudit, error) {
	if strings.TrimSpace(req.Actor) == "" {
		return nil, &apperrors.ErrValidation{Field: "actor", Message: "actor is required"}
	}
	if strings.TrimSpace(req.Reason) == "" {
		return nil, &apperrors.ErrValidation{Field: "reason", Message: "reason is required"}
	}
	d, err := models.ParseDate(req.Date)
	if err != nil {
		return nil, err
	}
	source := req.Source
	if source == "" {
		source = models.SourceManual
	}

	rec := &models.PriceRecord{Asset: strings.ToUpper(req.Asset), Date: d, Rate: req.Rate, Source: source}
	if err := s.history.Append(ctx, rec, repositories.AppendOptions{Backfill: true}); err != nil {
		return nil, err
	}

	audit := &models.BackfillAudit{
		ID:        uuid.New().String(),
		Asset:     rec.Asset,
		Date:      rec.Date,
		Rate:      rec.Rate,
		Source:    rec.Source,
		Actor:     req.Actor,
		Reason:    req.Reason,
		CreatedAt: time.Now().UTC(),
	}
	s.logger.Info("rate backfilled",
		zap.String("asset", rec.Asset),
		zap.String("date", rec.DateString()),
		zap.String("rate", rec.Rate.String()),
		zap.String("actor", req.Actor),
	)
	if s.audits == nil {
		return audit, nil
	}
	if err := s.audits.Create(ctx, audit); err != nil {
		s.logger.Error("backfill stored without audit entry", zap.String("asset", rec.Asset), zap.Error(err))
		return nil, fmt.Errorf("rate stored but audit entry failed: %w", err)
	}
	return audit, nil
}

// Audits lists recent backfills, optionally for one asset.
func (s *priceService) Audits(ctx context.Context, asset string, limit int) ([]*models.BackfillAudit, error) {
	if s.audits == nil {
		return []*models.BackfillAudit{}, nil
	}
	return s.audits.List(ctx, strings.ToUpper(asset), limit)
}
