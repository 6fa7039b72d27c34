package repositories

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	apperrors "github.com/tropicaldog17/pricestore/internal/errors"
	"github.com/tropicaldog17/pricestore/internal/models"
)

const (
	seriesExt = ".jsonl"
	indexExt  = ".idx"
	tmpSuffix = ".tmp"

	filePerm os.FileMode = 0o640
)

var errStoreClosed = errors.New("history store closed")

// seriesLine is the on-disk form of one record.
type seriesLine struct {
	Asset  string `json:"asset"`
	Date   string `json:"date"`
	Rate   string `json:"rate"`
	Source string `json:"source"`
}

func encodeLine(asset models.Asset, rec *models.PriceRecord) ([]byte, error) {
	b, err := json.Marshal(seriesLine{
		Asset:  asset.Code,
		Date:   rec.DateString(),
		Rate:   rec.Rate.StringFixed(asset.RateScale()),
		Source: rec.Source,
	})
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

func decodeLine(asset models.Asset, line []byte) (models.PriceRecord, error) {
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.DisallowUnknownFields()

	var l seriesLine
	if err := dec.Decode(&l); err != nil {
		return models.PriceRecord{}, err
	}
	if dec.More() {
		return models.PriceRecord{}, errors.New("trailing data after record")
	}
	if l.Asset != asset.Code {
		return models.PriceRecord{}, fmt.Errorf("record for %q in %s series", l.Asset, asset.Code)
	}
	d, err := time.Parse(models.DateLayout, l.Date)
	if err != nil {
		return models.PriceRecord{}, err
	}
	rate, err := decimal.NewFromString(l.Rate)
	if err != nil {
		return models.PriceRecord{}, err
	}
	if !rate.IsPositive() {
		return models.PriceRecord{}, fmt.Errorf("non-positive rate %s", l.Rate)
	}
	if l.Source == "" {
		return models.PriceRecord{}, errors.New("empty source")
	}
	return models.PriceRecord{Asset: l.Asset, Date: d, Rate: rate, Source: l.Source}, nil
}

// segment is an open series file shared by every snapshot that points at it.
// The series owns one reference; readers take one for the duration of a read.
type segment struct {
	file *os.File
	refs atomic.Int64
}

func newSegment(f *os.File) *segment {
	s := &segment{file: f}
	s.refs.Store(1)
	return s
}

func (s *segment) acquire() bool {
	for {
		r := s.refs.Load()
		if r <= 0 {
			return false
		}
		if s.refs.CompareAndSwap(r, r+1) {
			return true
		}
	}
}

func (s *segment) release() {
	if s.refs.Add(-1) == 0 {
		_ = s.file.Close()
	}
}

// snapshot is an immutable view of a series. Appends publish a new snapshot;
// nothing in a published snapshot is modified afterwards.
type snapshot struct {
	seg   *segment
	index []indexEntry
	count int
	size  int64
	first *models.PriceRecord
	last  *models.PriceRecord
}

// scan decodes records starting at byte offset from, calling fn until it returns
// false or an error. line numbers are reported relative to startLine (0 = unknown).
func (snap *snapshot) scan(asset models.Asset, from int64, startLine int, fn func(rec models.PriceRecord, off int64, line int) (bool, error)) error {
	if from >= snap.size {
		return nil
	}
	r := bufio.NewReader(io.NewSectionReader(snap.seg.file, from, snap.size-from))
	off := from
	line := startLine
	for {
		raw, err := r.ReadBytes('\n')
		if len(raw) > 0 {
			if raw[len(raw)-1] != '\n' {
				return &apperrors.CorruptStoreError{Path: snap.seg.file.Name(), Line: line, Offset: off, Err: io.ErrUnexpectedEOF}
			}
			rec, derr := decodeLine(asset, raw[:len(raw)-1])
			if derr != nil {
				return &apperrors.CorruptStoreError{Path: snap.seg.file.Name(), Line: line, Offset: off, Err: derr}
			}
			cont, ferr := fn(rec, off, line)
			if ferr != nil {
				return ferr
			}
			if !cont {
				return nil
			}
			off += int64(len(raw))
			if line > 0 {
				line++
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", snap.seg.file.Name(), err)
		}
	}
}

// floor returns the most recent record dated on or before date, or nil.
func (snap *snapshot) floor(asset models.Asset, date time.Time) (*models.PriceRecord, error) {
	if snap.count == 0 || date.Before(snap.first.Date) {
		return nil, nil
	}
	if !date.Before(snap.last.Date) {
		last := *snap.last
		return &last, nil
	}
	var found *models.PriceRecord
	err := snap.scan(asset, seek(snap.index, date), 0, func(rec models.PriceRecord, _ int64, _ int) (bool, error) {
		if rec.Date.After(date) {
			return false, nil
		}
		r := rec
		found = &r
		return true, nil
	})
	return found, err
}

// series is the append-only history of one asset.
type series struct {
	asset    models.Asset
	path     string
	idxPath  string
	interval int
	logger   *zap.Logger

	mu      sync.Mutex // serializes writers
	failed  error
	closed  atomic.Bool
	current atomic.Pointer[snapshot]
}

func seriesPaths(dir, code string) (string, string) {
	return filepath.Join(dir, code+seriesExt), filepath.Join(dir, code+indexExt)
}

// openSeries opens (creating if needed) the series file of asset, validates every
// record and builds its index. The persisted index is rewritten when it differs.
func openSeries(dir string, asset models.Asset, interval int, logger *zap.Logger) (*series, error) {
	path, idxPath := seriesPaths(dir, asset.Code)
	s := &series{
		asset:    asset,
		path:     path,
		idxPath:  idxPath,
		interval: interval,
		logger:   logger.With(zap.String("asset", asset.Code)),
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_APPEND|os.O_CREATE, filePerm)
	if err != nil {
		return nil, fmt.Errorf("failed to open series %s: %w", asset.Code, err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat series %s: %w", asset.Code, err)
	}
	seg := newSegment(f)

	snap, err := s.loadFull(seg, st.Size())
	if err != nil {
		f.Close()
		return nil, err
	}
	s.current.Store(snap)
	s.syncIndexFile(snap.index)
	return s, nil
}

// loadFull scans every line of the series once, validating each record.
func (s *series) loadFull(seg *segment, size int64) (*snapshot, error) {
	snap := &snapshot{seg: seg, size: size}
	var entries []indexEntry
	err := snap.scan(s.asset, 0, 1, func(rec models.PriceRecord, off int64, line int) (bool, error) {
		if snap.last != nil && !rec.Date.After(snap.last.Date) {
			return false, &apperrors.CorruptStoreError{
				Path: s.path, Line: line, Offset: off,
				Err: fmt.Errorf("date %s does not follow %s", rec.DateString(), snap.last.DateString()),
			}
		}
		if snap.count%s.interval == 0 {
			entries = append(entries, indexEntry{date: rec.Date, offset: off})
		}
		r := rec
		if snap.first == nil {
			snap.first = &r
		}
		snap.last = &r
		snap.count++
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	snap.index = entries
	return snap, nil
}

// syncIndexFile rewrites the companion index when it is absent or differs from entries.
func (s *series) syncIndexFile(entries []indexEntry) {
	persisted, err := readIndexFile(s.idxPath)
	if err == nil && sameIndex(persisted, entries) {
		if len(entries) > 0 {
			return
		}
		if _, statErr := os.Stat(s.idxPath); statErr == nil {
			return
		}
	}
	if err := writeFileAtomic(s.idxPath, encodeIndex(entries), filePerm); err != nil {
		s.logger.Warn("failed to write sparse index", zap.Error(err))
		return
	}
	s.logger.Debug("sparse index rebuilt", zap.Int("entries", len(entries)))
}

func (s *series) appendIndexLine(e indexEntry) {
	f, err := os.OpenFile(s.idxPath, os.O_WRONLY|os.O_APPEND|os.O_CREATE, filePerm)
	if err != nil {
		s.logger.Warn("failed to open sparse index", zap.Error(err))
		return
	}
	defer f.Close()
	if _, err := f.WriteString(formatIndexLine(e)); err != nil {
		s.logger.Warn("failed to extend sparse index", zap.Error(err))
	}
}

// acquire returns the current snapshot with a reference held on its file.
// The caller must release it.
func (s *series) acquire() (*snapshot, error) {
	for {
		if s.closed.Load() {
			return nil, errStoreClosed
		}
		snap := s.current.Load()
		if snap.seg.acquire() {
			return snap, nil
		}
	}
}

func (s *series) append(ctx context.Context, rec *models.PriceRecord, backfill bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return errStoreClosed
	}
	if s.failed != nil {
		return fmt.Errorf("series %s unavailable: %w", s.asset.Code, s.failed)
	}

	snap := s.current.Load()
	if snap.last != nil && !rec.Date.After(snap.last.Date) {
		if rec.Date.Equal(snap.last.Date) {
			return fmt.Errorf("%s %s: %w", s.asset.Code, rec.DateString(), apperrors.ErrDuplicateTimestamp)
		}
		if !backfill {
			return fmt.Errorf("%s %s is not after %s: %w", s.asset.Code, rec.DateString(), snap.last.DateString(), apperrors.ErrOutOfOrder)
		}
		return s.insertLocked(ctx, snap, rec)
	}

	line, err := encodeLine(s.asset, rec)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	f := snap.seg.file
	n, err := f.Write(line)
	if err == nil && n != len(line) {
		err = io.ErrShortWrite
	}
	if err == nil {
		err = f.Sync()
	}
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		if terr := s.truncateLocked(snap); terr != nil {
			s.failed = terr
			s.logger.Error("failed to roll back partial append", zap.Error(terr))
		}
		return fmt.Errorf("failed to append %s %s: %w", s.asset.Code, rec.DateString(), err)
	}

	r := *rec
	next := &snapshot{
		seg:   snap.seg,
		index: snap.index,
		count: snap.count + 1,
		size:  snap.size + int64(len(line)),
		first: snap.first,
		last:  &r,
	}
	if next.first == nil {
		next.first = &r
	}
	sampled := snap.count%s.interval == 0
	var entry indexEntry
	if sampled {
		entry = indexEntry{date: rec.Date, offset: snap.size}
		next.index = append(snap.index, entry)
	}
	s.current.Store(next)

	if sampled {
		s.appendIndexLine(entry)
	}
	return nil
}

func (s *series) truncateLocked(snap *snapshot) error {
	if err := snap.seg.file.Truncate(snap.size); err != nil {
		return err
	}
	return snap.seg.file.Sync()
}

// insertLocked writes a copy of the series with rec inserted in date order and
// swaps it in with a rename. Readers of the old snapshot keep their file open.
func (s *series) insertLocked(ctx context.Context, snap *snapshot, rec *models.PriceRecord) error {
	existing, err := snap.floor(s.asset, rec.Date)
	if err != nil {
		return err
	}
	if existing != nil && existing.Date.Equal(rec.Date) {
		return fmt.Errorf("%s %s: %w", s.asset.Code, rec.DateString(), apperrors.ErrDuplicateTimestamp)
	}

	line, err := encodeLine(s.asset, rec)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	insertAt := snap.size
	err = snap.scan(s.asset, seek(snap.index, rec.Date), 0, func(r models.PriceRecord, off int64, _ int) (bool, error) {
		if r.Date.After(rec.Date) {
			insertAt = off
			return false, nil
		}
		return true, nil
	})
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*"+tmpSuffix)
	if err != nil {
		return fmt.Errorf("failed to create backfill file: %w", err)
	}
	tmpName := tmp.Name()
	abort := func(cause error) error {
		tmp.Close()
		_ = os.Remove(tmpName)
		return cause
	}

	src := snap.seg.file
	if _, err := io.Copy(tmp, io.NewSectionReader(src, 0, insertAt)); err != nil {
		return abort(fmt.Errorf("failed to copy series head: %w", err))
	}
	if _, err := tmp.Write(line); err != nil {
		return abort(fmt.Errorf("failed to write backfill record: %w", err))
	}
	if _, err := io.Copy(tmp, io.NewSectionReader(src, insertAt, snap.size-insertAt)); err != nil {
		return abort(fmt.Errorf("failed to copy series tail: %w", err))
	}
	if err := tmp.Sync(); err != nil {
		return abort(err)
	}
	if err := ctx.Err(); err != nil {
		return abort(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, filePerm); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to publish backfill: %w", err)
	}
	if err := syncDir(dir); err != nil {
		s.logger.Warn("failed to sync series directory", zap.Error(err))
	}

	// The rename is the commit point; from here on the old file is stale.
	nf, err := os.OpenFile(s.path, os.O_RDWR|os.O_APPEND, filePerm)
	if err != nil {
		s.failed = err
		return fmt.Errorf("failed to reopen series after backfill: %w", err)
	}
	st, err := nf.Stat()
	if err != nil {
		nf.Close()
		s.failed = err
		return fmt.Errorf("failed to stat series after backfill: %w", err)
	}
	next, err := s.loadFull(newSegment(nf), st.Size())
	if err != nil {
		nf.Close()
		s.failed = err
		return err
	}
	s.current.Store(next)
	snap.seg.release()

	if err := writeFileAtomic(s.idxPath, encodeIndex(next.index), filePerm); err != nil {
		s.logger.Warn("failed to rewrite sparse index", zap.Error(err))
	}
	s.logger.Info("backfilled record",
		zap.String("date", rec.DateString()),
		zap.String("source", rec.Source),
		zap.Int("records", next.count),
	)
	return nil
}

// reindex rewrites the companion index from the current snapshot.
func (s *series) reindex() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return errStoreClosed
	}
	return writeFileAtomic(s.idxPath, encodeIndex(s.current.Load().index), filePerm)
}

func (s *series) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Swap(true) {
		return
	}
	s.current.Load().seg.release()
}
