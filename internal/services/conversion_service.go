package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	apperrors "github.com/tropicaldog17/pricestore/internal/errors"
	"github.com/tropicaldog17/pricestore/internal/models"
	"github.com/tropicaldog17/pricestore/internal/repositories"
)

// ConversionOptions configures a ConversionService.
type ConversionOptions struct {
	// MaxStaleness applies when a request does not set its own limit. 0 disables the check.
	MaxStaleness time.Duration
	Now          func() time.Time
	Logger       *zap.Logger
}

type conversionService struct {
	history      repositories.PriceHistoryRepository
	registry     *models.AssetRegistry
	maxStaleness time.Duration
	now          func() time.Time
	logger       *zap.Logger
}

func NewConversionService(history repositories.PriceHistoryRepository, registry *models.AssetRegistry, opts ConversionOptions) ConversionService {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &conversionService{
		history:      history,
		registry:     registry,
		maxStaleness: opts.MaxStaleness,
		now:          opts.Now,
		logger:       opts.Logger,
	}
}

// BatchConversionResult holds every converted line and their sum in the target asset.
type BatchConversionResult struct {
	To      string                     `json:"to"`
	Total   decimal.Decimal            `json:"total"`
	Results []*models.ConversionResult `json:"results"`
}

// resolvedRate is a pivot-relative rate and the day it was recorded (nil for the pivot).
type resolvedRate struct {
	rate decimal.Decimal
	date *time.Time
}

// Convert returns req.Amount of req.From expressed in req.To, rounded half-up to
// the precision of req.To.
func (s *conversionService) Convert(ctx context.Context, req models.ConversionRequest) (*models.ConversionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	from, err := s.registry.Lookup(req.From)
	if err != nil {
		return nil, &apperrors.ErrValidation{Field: "from", Message: err.Error()}
	}
	to, err := s.registry.Lookup(req.To)
	if err != nil {
		return nil, &apperrors.ErrValidation{Field: "to", Message: err.Error()}
	}
	if req.Amount.IsNegative() {
		return nil, &apperrors.ErrValidation{Field: "amount", Message: "amount must not be negative"}
	}
	if req.MaxStaleness < 0 {
		return nil, &apperrors.ErrValidation{Field: "max_staleness", Message: "must not be negative"}
	}

	result := &models.ConversionResult{
		From:   from.Code,
		To:     to.Code,
		Amount: req.Amount,
	}
	if from.Code == to.Code {
		result.Result = req.Amount
		result.RateFrom = decimal.NewFromInt(1)
		result.RateTo = decimal.NewFromInt(1)
		return result, nil
	}

	maxStale := req.MaxStaleness
	if maxStale == 0 {
		maxStale = s.maxStaleness
	}

	rf, err := s.resolve(from, req.At, maxStale)
	if err != nil {
		return nil, err
	}
	rt, err := s.resolve(to, req.At, maxStale)
	if err != nil {
		return nil, err
	}

	result.RateFrom, result.RateDateFrom = rf.rate, rf.date
	result.RateTo, result.RateDateTo = rt.rate, rt.date
	result.Result = req.Amount.Mul(rf.rate).DivRound(rt.rate, to.Precision)
	return result, nil
}

func (s *conversionService) resolve(asset models.Asset, at *time.Time, maxStale time.Duration) (resolvedRate, error) {
	if s.registry.IsPivot(asset.Code) {
		return resolvedRate{rate: decimal.NewFromInt(1)}, nil
	}

	var (
		rec *models.PriceRecord
		err error
		ref time.Time
	)
	if at == nil {
		rec, err = s.history.Latest(asset.Code)
		ref = s.now()
	} else {
		rec, err = s.history.AsOf(asset.Code, *at)
		ref = *at
	}
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			when := "latest"
			if at != nil {
				when = models.DateOnly(*at).Format(models.DateLayout)
			}
			return resolvedRate{}, fmt.Errorf("no %s rate at %s: %w", asset.Code, when, apperrors.ErrMissingRate)
		}
		return resolvedRate{}, err
	}

	if maxStale > 0 {
		age := models.DateOnly(ref).Sub(rec.Date)
		if age > maxStale {
			s.logger.Debug("stale rate rejected",
				zap.String("asset", asset.Code),
				zap.String("rate_date", rec.DateString()),
				zap.Duration("age", age),
				zap.Duration("max_staleness", maxStale),
			)
			return resolvedRate{}, fmt.Errorf("%s rate from %s is %s old, limit %s: %w",
				asset.Code, rec.DateString(), age, maxStale, apperrors.ErrStaleRate)
		}
	}
	d := rec.Date
	return resolvedRate{rate: rec.Rate, date: &d}, nil
}

// ConvertBatch converts every amount into to at the same point in time.
// The first failing line aborts the batch.
func (s *conversionService) ConvertBatch(ctx context.Context, amounts []models.BatchAmount, to string, at *time.Time, maxStaleness time.Duration) (*BatchConversionResult, error) {
	if len(amounts) == 0 {
		return nil, &apperrors.ErrValidation{Field: "amounts", Message: "at least one amount is required"}
	}
	target, err := s.registry.Lookup(to)
	if err != nil {
		return nil, &apperrors.ErrValidation{Field: "to", Message: err.Error()}
	}

	out := &BatchConversionResult{To: target.Code, Total: decimal.Zero}
	for i, a := range amounts {
		res, err := s.Convert(ctx, models.ConversionRequest{
			From:         a.Asset,
			To:           target.Code,
			Amount:       a.Amount,
			At:           at,
			MaxStaleness: maxStaleness,
		})
		if err != nil {
			return nil, fmt.Errorf("amount %d (%s): %w", i, a.Asset, err)
		}
		out.Results = append(out.Results, res)
		out.Total = out.Total.Add(res.Result)
	}
	return out, nil
}
