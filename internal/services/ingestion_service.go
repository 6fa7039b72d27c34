package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/tropicaldog17/pricestore/internal/errors"
	"github.com/tropicaldog17/pricestore/internal/models"
	"github.com/tropicaldog17/pricestore/internal/repositories"
)

// ErrIngestionRunning is returned when a run is requested while another is in progress.
var ErrIngestionRunning = errors.New("ingestion already running")

// Ingestion triggers
const (
	TriggerSchedule   = "schedule"
	TriggerManual     = "manual"
	TriggerHistorical = "historical"
)

const appendConcurrency = 8

type IngestionOptions struct {
	// AppendTimeout bounds each individual append.
	AppendTimeout time.Duration
	// FetchTimeout bounds each provider request.
	FetchTimeout time.Duration
	// Audits receives one entry per record stored by FetchHistorical. May be nil.
	Audits repositories.BackfillAuditRepository
	Now    func() time.Time
	Logger *zap.Logger
}

// ingestionService runs fetch, normalize and append cycles across all providers.
type ingestionService struct {
	providers  []RateProvider
	normalizer *RateNormalizer
	history    repositories.PriceHistoryRepository
	runs       repositories.IngestionRunRepository
	registry   *models.AssetRegistry
	opts       IngestionOptions
	logger     *zap.Logger

	running sync.Mutex
}

// NewIngestionService wires the cycle. When two providers quote the same asset
// the one listed first wins. runs may be nil.
func NewIngestionService(providers []RateProvider, normalizer *RateNormalizer, history repositories.PriceHistoryRepository, runs repositories.IngestionRunRepository, registry *models.AssetRegistry, opts IngestionOptions) IngestionService {
	if opts.AppendTimeout <= 0 {
		opts.AppendTimeout = 5 * time.Second
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 30 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &ingestionService{
		providers:  providers,
		normalizer: normalizer,
		history:    history,
		runs:       runs,
		registry:   registry,
		opts:       opts,
		logger:     opts.Logger,
	}
}

type fetchResult struct {
	batch *QuoteBatch
	err   error
}

// historicalPass selects the day FetchHistorical asks for and who asked.
type historicalPass struct {
	date  time.Time
	actor string
}

// RunOnce performs one ingestion cycle and returns its summary.
func (s *ingestionService) RunOnce(ctx context.Context, trigger string) (*models.IngestionRun, error) {
	return s.run(ctx, trigger, nil)
}

// FetchHistorical fetches the rates of date from every provider and inserts
// them with backfill semantics. Days already stored are skipped.
func (s *ingestionService) FetchHistorical(ctx context.Context, date time.Time, actor string) (*models.IngestionRun, error) {
	if strings.TrimSpace(actor) == "" {
		return nil, &apperrors.ErrValidation{Field: "actor", Message: "actor is required"}
	}
	day := models.DateOnly(date)
	if day.After(models.DateOnly(s.opts.Now())) {
		return nil, &apperrors.ErrValidation{Field: "date", Message: "date must not be in the future"}
	}
	return s.run(ctx, TriggerHistorical, &historicalPass{date: day, actor: actor})
}

func (s *ingestionService) run(ctx context.Context, trigger string, hist *historicalPass) (*models.IngestionRun, error) {
	if !s.running.TryLock() {
		return nil, ErrIngestionRunning
	}
	defer s.running.Unlock()

	run := &models.IngestionRun{
		ID:        uuid.New().String(),
		Trigger:   trigger,
		Status:    models.IngestionStatusRunning,
		StartedAt: s.opts.Now().UTC(),
	}
	s.saveRun(ctx, run, true)
	log := s.logger.With(zap.String("run_id", run.ID), zap.String("trigger", trigger))
	if hist != nil {
		log = log.With(zap.String("date", hist.date.Format(models.DateLayout)), zap.String("actor", hist.actor))
	}

	var assets []models.Asset
	for _, a := range s.registry.All() {
		if !s.registry.IsPivot(a.Code) {
			assets = append(assets, a)
		}
	}
	pivot := s.registry.Pivot().Code

	results := make([]fetchResult, len(s.providers))
	var g errgroup.Group
	for i, p := range s.providers {
		g.Go(func() error {
			fctx, cancel := context.WithTimeout(ctx, s.opts.FetchTimeout)
			defer cancel()
			var (
				batch *QuoteBatch
				err   error
			)
			if hist != nil {
				batch, err = p.FetchHistorical(fctx, pivot, assets, hist.date)
			} else {
				batch, err = p.FetchLatest(fctx, pivot, assets)
			}
			results[i] = fetchResult{batch: batch, err: err}
			return nil
		})
	}
	_ = g.Wait()

	var (
		fetchErrs []string
		records   []*models.PriceRecord
		taken     = make(map[string]string)
	)
	for i, res := range results {
		name := s.providers[i].Name()
		if res.err != nil {
			log.Warn("provider fetch failed", zap.String("provider", name), zap.Error(res.err))
			fetchErrs = append(fetchErrs, fmt.Sprintf("%s: %v", name, res.err))
			continue
		}
		if res.batch == nil {
			log.Debug("provider returned no quotes", zap.String("provider", name))
			continue
		}
		observed := res.batch.ObservedAt
		if hist != nil {
			observed = hist.date
		}
		for _, q := range res.batch.Quotes {
			asset, err := s.registry.Lookup(q.Asset)
			if err != nil {
				log.Debug("quote for unregistered asset ignored", zap.String("provider", name), zap.String("asset", q.Asset))
				continue
			}
			if by, ok := taken[asset.Code]; ok {
				log.Debug("quote superseded", zap.String("asset", asset.Code), zap.String("provider", name), zap.String("kept", by))
				continue
			}
			rec, err := s.normalizer.Normalize(q, asset, observed)
			if err != nil {
				log.Warn("quote rejected", zap.String("provider", name), zap.String("asset", asset.Code), zap.Error(err))
				run.Failed++
				continue
			}
			taken[asset.Code] = name
			records = append(records, rec)
		}
	}

	var (
		mu         sync.Mutex
		appendErrs []string
	)
	appendOpts := repositories.AppendOptions{Backfill: hist != nil}
	ag := new(errgroup.Group)
	ag.SetLimit(appendConcurrency)
	for _, rec := range records {
		ag.Go(func() error {
			actx, cancel := context.WithTimeout(ctx, s.opts.AppendTimeout)
			defer cancel()
			err := s.history.Append(actx, rec, appendOpts)
			if err == nil && hist != nil {
				err = s.audit(context.WithoutCancel(ctx), rec, hist)
			}

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				run.Appended++
			case errors.Is(err, apperrors.ErrDuplicateTimestamp), errors.Is(err, apperrors.ErrOutOfOrder):
				run.Skipped++
			default:
				run.Failed++
				appendErrs = append(appendErrs, fmt.Sprintf("%s: %v", rec.Asset, err))
				log.Error("append failed", zap.String("asset", rec.Asset), zap.Error(err))
			}
			return nil
		})
	}
	_ = ag.Wait()

	allErrs := append(fetchErrs, appendErrs...)
	switch {
	case run.Failed == 0 && len(fetchErrs) == 0:
		run.Status = models.IngestionStatusSucceeded
	case run.Appended+run.Skipped > 0:
		run.Status = models.IngestionStatusPartial
	default:
		run.Status = models.IngestionStatusFailed
	}
	run.Error = strings.Join(allErrs, "; ")
	finished := s.opts.Now().UTC()
	run.FinishedAt = &finished
	s.saveRun(context.WithoutCancel(ctx), run, false)

	log.Info("ingestion run finished",
		zap.String("status", run.Status),
		zap.Int("appended", run.Appended),
		zap.Int("skipped", run.Skipped),
		zap.Int("failed", run.Failed),
		zap.Duration("took", finished.Sub(run.StartedAt)),
	)
	return run, nil
}

// audit records a provider backfill. The record is already stored when this fails.
func (s *ingestionService) audit(ctx context.Context, rec *models.PriceRecord, hist *historicalPass) error {
	if s.opts.Audits == nil {
		return nil
	}
	err := s.opts.Audits.Create(ctx, &models.BackfillAudit{
		ID:        uuid.New().String(),
		Asset:     rec.Asset,
		Date:      rec.Date,
		Rate:      rec.Rate,
		Source:    rec.Source,
		Actor:     hist.actor,
		Reason:    "provider historical fetch",
		CreatedAt: s.opts.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("rate stored but audit entry failed: %w", err)
	}
	return nil
}

func (s *ingestionService) saveRun(ctx context.Context, run *models.IngestionRun, create bool) {
	if s.runs == nil {
		return
	}
	var err error
	if create {
		err = s.runs.Create(ctx, run)
	} else {
		err = s.runs.Update(ctx, run)
	}
	if err != nil {
		s.logger.Warn("failed to record ingestion run", zap.String("run_id", run.ID), zap.Error(err))
	}
}

// RecentRuns lists the latest ingestion summaries.
func (s *ingestionService) RecentRuns(ctx context.Context, limit int) ([]*models.IngestionRun, error) {
	if s.runs == nil {
		return []*models.IngestionRun{}, nil
	}
	return s.runs.ListRecent(ctx, limit)
}
