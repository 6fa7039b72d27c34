package repositories

import (
	"context"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/tropicaldog17/pricestore/internal/errors"
	"github.com/tropicaldog17/pricestore/internal/models"
)

// FileHistoryOptions tunes how the store is opened.
type FileHistoryOptions struct {
	// IndexInterval is the number of records between sparse index samples.
	IndexInterval int
	// LoadConcurrency bounds how many series are loaded in parallel.
	LoadConcurrency int
	Logger          *zap.Logger
}

// SeriesStats describes one stored series.
type SeriesStats struct {
	Asset        string    `json:"asset"`
	Count        int       `json:"count"`
	First        time.Time `json:"first"`
	Last         time.Time `json:"last"`
	SizeBytes    int64     `json:"size_bytes"`
	IndexEntries int       `json:"index_entries"`
}

type fileHistoryRepository struct {
	dir      string
	registry *models.AssetRegistry
	opts     FileHistoryOptions
	logger   *zap.Logger

	series   sync.Map // code -> *series
	createMu sync.Mutex
}

// NewFileHistoryRepository opens the history store rooted at dataDir.
// Every existing series is validated; a malformed file fails with a CorruptStoreError.
func NewFileHistoryRepository(dataDir string, registry *models.AssetRegistry, opts FileHistoryOptions) (PriceHistoryRepository, error) {
	return openFileHistory(dataDir, registry, opts)
}

func openFileHistory(dataDir string, registry *models.AssetRegistry, opts FileHistoryOptions) (*fileHistoryRepository, error) {
	if opts.IndexInterval <= 0 {
		opts.IndexInterval = DefaultIndexInterval
	}
	if opts.LoadConcurrency <= 0 {
		opts.LoadConcurrency = runtime.GOMAXPROCS(0)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	dir := filepath.Join(dataDir, "series")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create series directory: %w", err)
	}

	r := &fileHistoryRepository{
		dir:      dir,
		registry: registry,
		opts:     opts,
		logger:   logger,
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list series directory: %w", err)
	}

	var assets []models.Asset
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(name, tmpSuffix) {
			logger.Warn("removing leftover temp file", zap.String("file", name))
			if err := os.Remove(filepath.Join(dir, name)); err != nil {
				return nil, fmt.Errorf("failed to remove %s: %w", name, err)
			}
			continue
		}
		if !strings.HasSuffix(name, seriesExt) {
			continue
		}
		code := strings.TrimSuffix(name, seriesExt)
		asset, err := registry.Lookup(code)
		if err != nil {
			return nil, &apperrors.CorruptStoreError{Path: filepath.Join(dir, name), Err: err}
		}
		if registry.IsPivot(asset.Code) || asset.Code != code {
			return nil, &apperrors.CorruptStoreError{
				Path: filepath.Join(dir, name),
				Err:  fmt.Errorf("unexpected series file for %s", code),
			}
		}
		assets = append(assets, asset)
	}

	loaded := make([]*series, len(assets))
	g := new(errgroup.Group)
	g.SetLimit(opts.LoadConcurrency)
	for i, asset := range assets {
		g.Go(func() error {
			s, err := openSeries(dir, asset, opts.IndexInterval, logger)
			if err != nil {
				return err
			}
			loaded[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, s := range loaded {
			if s != nil {
				s.close()
			}
		}
		return nil, err
	}

	total := 0
	for _, s := range loaded {
		r.series.Store(s.asset.Code, s)
		total += s.current.Load().count
	}
	logger.Info("history store opened",
		zap.String("dir", dir),
		zap.Int("series", len(loaded)),
		zap.Int("records", total),
	)
	return r, nil
}

// resolve maps a code to a stored-series asset, rejecting the pivot.
func (r *fileHistoryRepository) resolve(code string) (models.Asset, error) {
	asset, err := r.registry.Lookup(code)
	if err != nil {
		return models.Asset{}, &apperrors.ErrValidation{Field: "asset", Message: err.Error()}
	}
	if r.registry.IsPivot(asset.Code) {
		return models.Asset{}, &apperrors.ErrValidation{Field: "asset", Message: "pivot currency has no stored series"}
	}
	return asset, nil
}

func (r *fileHistoryRepository) lookup(code string) (*series, models.Asset, error) {
	asset, err := r.resolve(code)
	if err != nil {
		return nil, asset, err
	}
	v, ok := r.series.Load(asset.Code)
	if !ok {
		return nil, asset, fmt.Errorf("no history for %s: %w", asset.Code, apperrors.ErrNotFound)
	}
	return v.(*series), asset, nil
}

func (r *fileHistoryRepository) getOrCreate(asset models.Asset) (*series, error) {
	if v, ok := r.series.Load(asset.Code); ok {
		return v.(*series), nil
	}
	r.createMu.Lock()
	defer r.createMu.Unlock()
	if v, ok := r.series.Load(asset.Code); ok {
		return v.(*series), nil
	}
	s, err := openSeries(r.dir, asset, r.opts.IndexInterval, r.logger)
	if err != nil {
		return nil, err
	}
	r.series.Store(asset.Code, s)
	r.logger.Info("series created", zap.String("asset", asset.Code))
	return s, nil
}

func (r *fileHistoryRepository) Append(ctx context.Context, rec *models.PriceRecord, opts AppendOptions) error {
	if rec == nil {
		return &apperrors.ErrValidation{Field: "record", Message: "record is required"}
	}
	asset, err := r.resolve(rec.Asset)
	if err != nil {
		return err
	}
	if err := rec.Validate(asset); err != nil {
		return err
	}
	s, err := r.getOrCreate(asset)
	if err != nil {
		return err
	}
	r2 := *rec
	r2.Asset = asset.Code
	return s.append(ctx, &r2, opts.Backfill)
}

func (r *fileHistoryRepository) Latest(code string) (*models.PriceRecord, error) {
	s, asset, err := r.lookup(code)
	if err != nil {
		return nil, err
	}
	snap := s.current.Load()
	if snap.last == nil {
		return nil, fmt.Errorf("no history for %s: %w", asset.Code, apperrors.ErrNotFound)
	}
	last := *snap.last
	return &last, nil
}

func (r *fileHistoryRepository) At(code string, date time.Time) (*models.PriceRecord, error) {
	rec, err := r.AsOf(code, date)
	if err != nil {
		return nil, err
	}
	if !rec.Date.Equal(models.DateOnly(date)) {
		return nil, fmt.Errorf("no %s rate on %s: %w", rec.Asset, models.DateOnly(date).Format(models.DateLayout), apperrors.ErrNotFound)
	}
	return rec, nil
}

func (r *fileHistoryRepository) AsOf(code string, date time.Time) (*models.PriceRecord, error) {
	s, asset, err := r.lookup(code)
	if err != nil {
		return nil, err
	}
	snap, err := s.acquire()
	if err != nil {
		return nil, err
	}
	defer snap.seg.release()

	day := models.DateOnly(date)
	rec, err := snap.floor(asset, day)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("no %s rate on or before %s: %w", asset.Code, day.Format(models.DateLayout), apperrors.ErrNotFound)
	}
	return rec, nil
}

func (r *fileHistoryRepository) Range(code string, start, end time.Time) iter.Seq2[models.PriceRecord, error] {
	return func(yield func(models.PriceRecord, error) bool) {
		asset, err := r.resolve(code)
		if err != nil {
			yield(models.PriceRecord{}, err)
			return
		}
		// a registered asset without a series has an empty history
		v, ok := r.series.Load(asset.Code)
		if !ok {
			return
		}
		s := v.(*series)
		from, to := models.DateOnly(start), models.DateOnly(end)
		if from.After(to) {
			return
		}
		snap, err := s.acquire()
		if err != nil {
			yield(models.PriceRecord{}, err)
			return
		}
		defer snap.seg.release()

		if snap.count == 0 || to.Before(snap.first.Date) || from.After(snap.last.Date) {
			return
		}
		err = snap.scan(asset, seek(snap.index, from), 0, func(rec models.PriceRecord, _ int64, _ int) (bool, error) {
			if rec.Date.Before(from) {
				return true, nil
			}
			if rec.Date.After(to) {
				return false, nil
			}
			return yield(rec, nil), nil
		})
		if err != nil {
			yield(models.PriceRecord{}, err)
		}
	}
}

func (r *fileHistoryRepository) RangeSlice(code string, start, end time.Time) ([]models.PriceRecord, error) {
	var out []models.PriceRecord
	for rec, err := range r.Range(code, start, end) {
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (r *fileHistoryRepository) Assets() []string {
	var codes []string
	r.series.Range(func(k, v any) bool {
		if v.(*series).current.Load().count > 0 {
			codes = append(codes, k.(string))
		}
		return true
	})
	sort.Strings(codes)
	return codes
}

func (r *fileHistoryRepository) Stats(code string) (*SeriesStats, error) {
	s, asset, err := r.lookup(code)
	if err != nil {
		return nil, err
	}
	snap := s.current.Load()
	st := &SeriesStats{
		Asset:        asset.Code,
		Count:        snap.count,
		SizeBytes:    snap.size,
		IndexEntries: len(snap.index),
	}
	if snap.first != nil {
		st.First = snap.first.Date
		st.Last = snap.last.Date
	}
	return st, nil
}

func (r *fileHistoryRepository) Reindex(code string) error {
	s, _, err := r.lookup(code)
	if err != nil {
		return err
	}
	return s.reindex()
}

func (r *fileHistoryRepository) Close() error {
	r.series.Range(func(_, v any) bool {
		v.(*series).close()
		return true
	})
	return nil
}
