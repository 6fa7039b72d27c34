package repositories

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/tropicaldog17/pricestore/internal/errors"
	"github.com/tropicaldog17/pricestore/internal/models"
)

var day0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func day(n int) time.Time { return day0.AddDate(0, 0, n) }

func rec(asset string, d time.Time, rate string) *models.PriceRecord {
	return &models.PriceRecord{Asset: asset, Date: d, Rate: decimal.RequireFromString(rate), Source: "test"}
}

func openTestStore(t *testing.T, dir string, opts FileHistoryOptions) *fileHistoryRepository {
	t.Helper()
	if opts.IndexInterval == 0 {
		opts.IndexInterval = 4
	}
	r, err := openFileHistory(dir, models.DefaultRegistry(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func fill(t *testing.T, r PriceHistoryRepository, asset string, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		require.NoError(t, r.Append(ctx, rec(asset, day(i), fmt.Sprintf("1.%04d", i+1)), AppendOptions{}))
	}
}

func TestFileHistory_AppendAndReads(t *testing.T) {
	r := openTestStore(t, t.TempDir(), FileHistoryOptions{})
	ctx := context.Background()

	require.NoError(t, r.Append(ctx, rec("EUR", day(0), "1.10"), AppendOptions{}))
	require.NoError(t, r.Append(ctx, rec("EUR", day(2), "1.12"), AppendOptions{}))

	latest, err := r.Latest("eur")
	require.NoError(t, err)
	assert.True(t, latest.Date.Equal(day(2)))
	assert.Equal(t, "1.12", latest.Rate.String())

	got, err := r.At("EUR", day(0))
	require.NoError(t, err)
	assert.Equal(t, "1.1", got.Rate.String())

	_, err = r.At("EUR", day(1))
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	asOf, err := r.AsOf("EUR", day(1))
	require.NoError(t, err)
	assert.True(t, asOf.Date.Equal(day(0)))

	_, err = r.AsOf("EUR", day(-1))
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	_, err = r.Latest("GBP")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	empty, err := r.RangeSlice("GBP", day(0), day(5))
	require.NoError(t, err)
	assert.Empty(t, empty)
	_, err = r.RangeSlice("DOGE", day(0), day(5))
	var verr *apperrors.ErrValidation
	assert.ErrorAs(t, err, &verr)

	assert.Equal(t, []string{"EUR"}, r.Assets())
}

func TestFileHistory_AppendRejections(t *testing.T) {
	r := openTestStore(t, t.TempDir(), FileHistoryOptions{})
	ctx := context.Background()
	require.NoError(t, r.Append(ctx, rec("EUR", day(5), "1.10"), AppendOptions{}))

	tests := []struct {
		name    string
		rec     *models.PriceRecord
		wantIs  error
		wantVal bool
	}{
		{"duplicate", rec("EUR", day(5), "1.20"), apperrors.ErrDuplicateTimestamp, false},
		{"out of order", rec("EUR", day(4), "1.20"), apperrors.ErrOutOfOrder, false},
		{"pivot", rec("USD", day(6), "1"), nil, true},
		{"unknown asset", rec("DOGE", day(6), "1"), nil, true},
		{"zero rate", rec("EUR", day(6), "0"), nil, true},
		{"excess scale", rec("EUR", day(6), "1.00000000001"), nil, true},
		{"empty source", &models.PriceRecord{Asset: "EUR", Date: day(6), Rate: decimal.NewFromInt(1)}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.Append(ctx, tt.rec, AppendOptions{})
			require.Error(t, err)
			if tt.wantVal {
				var verr *apperrors.ErrValidation
				assert.ErrorAs(t, err, &verr)
			} else {
				assert.True(t, errors.Is(err, tt.wantIs), "got %v", err)
			}
		})
	}

	// rejected appends leave the series unchanged
	all, err := r.RangeSlice("EUR", day(0), day(10))
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "1.1", all[0].Rate.String())
	st, err := r.Stats("EUR")
	require.NoError(t, err)
	assert.Equal(t, 1, st.Count)
}

func TestFileHistory_RangeExactness(t *testing.T) {
	r := openTestStore(t, t.TempDir(), FileHistoryOptions{IndexInterval: 3})
	fill(t, r, "XAU", 50)

	tests := []struct {
		name       string
		start, end time.Time
		want       int
		first      time.Time
	}{
		{"all", day(-10), day(100), 50, day(0)},
		{"middle", day(7), day(19), 13, day(7)},
		{"single", day(33), day(33), 1, day(33)},
		{"sample boundary", day(3), day(6), 4, day(3)},
		{"before", day(-10), day(-1), 0, time.Time{}},
		{"after", day(50), day(60), 0, time.Time{}},
		{"inverted", day(10), day(5), 0, time.Time{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.RangeSlice("XAU", tt.start, tt.end)
			require.NoError(t, err)
			require.Len(t, got, tt.want)
			if tt.want == 0 {
				return
			}
			assert.True(t, got[0].Date.Equal(tt.first))
			for i := 1; i < len(got); i++ {
				assert.True(t, got[i].Date.After(got[i-1].Date))
			}
			for _, g := range got {
				assert.False(t, g.Date.Before(tt.start))
				assert.False(t, g.Date.After(tt.end))
			}
		})
	}
}

func TestFileHistory_RangeEarlyStop(t *testing.T) {
	r := openTestStore(t, t.TempDir(), FileHistoryOptions{})
	fill(t, r, "EUR", 10)

	n := 0
	for rec, err := range r.Range("EUR", day(0), day(9)) {
		require.NoError(t, err)
		n++
		if rec.Date.Equal(day(2)) {
			break
		}
	}
	assert.Equal(t, 3, n)

	// restartable
	again, err := r.RangeSlice("EUR", day(0), day(9))
	require.NoError(t, err)
	assert.Len(t, again, 10)
}

func TestFileHistory_ReloadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	r, err := openFileHistory(dir, models.DefaultRegistry(), FileHistoryOptions{IndexInterval: 4})
	require.NoError(t, err)
	fill(t, r, "EUR", 21)
	fill(t, r, "BTC", 5)
	before, err := r.RangeSlice("EUR", day(0), day(30))
	require.NoError(t, err)
	require.NoError(t, r.Close())

	r2 := openTestStore(t, dir, FileHistoryOptions{IndexInterval: 4})
	after, err := r2.RangeSlice("EUR", day(0), day(30))
	require.NoError(t, err)
	require.Len(t, after, len(before))
	for i := range before {
		assert.True(t, before[i].Date.Equal(after[i].Date))
		assert.True(t, before[i].Rate.Equal(after[i].Rate))
		assert.Equal(t, before[i].Source, after[i].Source)
	}
	st, err := r2.Stats("EUR")
	require.NoError(t, err)
	assert.Equal(t, 21, st.Count)
	assert.Equal(t, 6, st.IndexEntries)
	assert.Equal(t, []string{"BTC", "EUR"}, r2.Assets())
}

func TestFileHistory_ReopenWithOtherInterval(t *testing.T) {
	dir := t.TempDir()
	r, err := openFileHistory(dir, models.DefaultRegistry(), FileHistoryOptions{IndexInterval: 4})
	require.NoError(t, err)
	fill(t, r, "EUR", 10)
	require.NoError(t, r.Close())

	r2 := openTestStore(t, dir, FileHistoryOptions{IndexInterval: 2})
	st, err := r2.Stats("EUR")
	require.NoError(t, err)
	assert.Equal(t, 10, st.Count)
	assert.Equal(t, 5, st.IndexEntries)

	entries, err := readIndexFile(filepath.Join(dir, "series", "EUR"+indexExt))
	require.NoError(t, err)
	require.Len(t, entries, 5)
	for k, e := range entries {
		assert.True(t, e.date.Equal(day(2*k)), "sample %d", k)
	}

	require.NoError(t, r2.Append(context.Background(), rec("EUR", day(10), "2.0"), AppendOptions{}))
	st, err = r2.Stats("EUR")
	require.NoError(t, err)
	assert.Equal(t, 11, st.Count)
	assert.Equal(t, 6, st.IndexEntries)
	got, err := r2.RangeSlice("EUR", day(9), day(10))
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestFileHistory_CorruptionBeforeLastSampleStopsOpen(t *testing.T) {
	dir := t.TempDir()
	r, err := openFileHistory(dir, models.DefaultRegistry(), FileHistoryOptions{IndexInterval: 2})
	require.NoError(t, err)
	fill(t, r, "EUR", 10)
	require.NoError(t, r.Close())

	path := filepath.Join(dir, "series", "EUR.jsonl")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.SplitAfter(string(data), "\n")
	lines[1] = strings.Replace(lines[1], `"rate":"1`, `"rate":"x`, 1)
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "")), 0o640))
	require.Len(t, strings.Join(lines, ""), len(data))

	_, err = openFileHistory(dir, models.DefaultRegistry(), FileHistoryOptions{IndexInterval: 2})
	require.Error(t, err)
	var cerr *apperrors.CorruptStoreError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, 2, cerr.Line)
	assert.Equal(t, int64(len(lines[0])), cerr.Offset)
}

func TestFileHistory_IndexFileRebuilt(t *testing.T) {
	dir := t.TempDir()
	r, err := openFileHistory(dir, models.DefaultRegistry(), FileHistoryOptions{IndexInterval: 4})
	require.NoError(t, err)
	fill(t, r, "EUR", 9)
	require.NoError(t, r.Close())

	idx := filepath.Join(dir, "series", "EUR"+indexExt)
	data, err := os.ReadFile(idx)
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(string(data), "\n"))

	require.NoError(t, os.Remove(idx))
	openTestStore(t, dir, FileHistoryOptions{IndexInterval: 4})
	rebuilt, err := os.ReadFile(idx)
	require.NoError(t, err)
	assert.Equal(t, string(data), string(rebuilt))

	// a stale index is replaced on open
	require.NoError(t, os.WriteFile(idx, []byte("2024-01-01 0\n2024-01-05 7\n"), 0o640))
	r3 := openTestStore(t, dir, FileHistoryOptions{IndexInterval: 4})
	got, err := r3.RangeSlice("EUR", day(0), day(8))
	require.NoError(t, err)
	assert.Len(t, got, 9)
	rewritten, err := os.ReadFile(idx)
	require.NoError(t, err)
	assert.Equal(t, string(data), string(rewritten))
}

func TestFileHistory_PersistedLineFormat(t *testing.T) {
	dir := t.TempDir()
	r := openTestStore(t, dir, FileHistoryOptions{})
	require.NoError(t, r.Append(context.Background(), rec("EUR", day(0), "0.9"), AppendOptions{}))

	data, err := os.ReadFile(filepath.Join(dir, "series", "EUR.jsonl"))
	require.NoError(t, err)
	assert.Equal(t, `{"asset":"EUR","date":"2024-01-01","rate":"0.9000000000","source":"test"}`+"\n", string(data))
}

func TestFileHistory_CorruptStore(t *testing.T) {
	tests := []struct {
		name    string
		content string
		line    int
	}{
		{"bad json", `{"asset":"EUR","date":"2024-01-01","rate":"1","source":"x"}` + "\n{oops\n", 2},
		{"wrong asset", `{"asset":"GBP","date":"2024-01-01","rate":"1","source":"x"}` + "\n", 1},
		{"negative rate", `{"asset":"EUR","date":"2024-01-01","rate":"-1","source":"x"}` + "\n", 1},
		{"unknown field", `{"asset":"EUR","date":"2024-01-01","rate":"1","source":"x","extra":1}` + "\n", 1},
		{"not increasing", `{"asset":"EUR","date":"2024-01-02","rate":"1","source":"x"}` + "\n" +
			`{"asset":"EUR","date":"2024-01-01","rate":"1","source":"x"}` + "\n", 2},
		{"partial line", `{"asset":"EUR","date":"2024-01-01","rate":"1","source":"x"}`, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			require.NoError(t, os.MkdirAll(filepath.Join(dir, "series"), 0o750))
			require.NoError(t, os.WriteFile(filepath.Join(dir, "series", "EUR.jsonl"), []byte(tt.content), 0o640))

			_, err := openFileHistory(dir, models.DefaultRegistry(), FileHistoryOptions{})
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperrors.ErrCorruptStore))
			var cerr *apperrors.CorruptStoreError
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, tt.line, cerr.Line)
		})
	}

	t.Run("unknown series file", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "series"), 0o750))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "series", "DOGE.jsonl"), nil, 0o640))
		_, err := openFileHistory(dir, models.DefaultRegistry(), FileHistoryOptions{})
		assert.True(t, errors.Is(err, apperrors.ErrCorruptStore))
	})
}

func TestFileHistory_LeftoverTempRemoved(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "series"), 0o750))
	tmp := filepath.Join(dir, "series", "EUR.jsonl.123"+tmpSuffix)
	require.NoError(t, os.WriteFile(tmp, []byte("garbage"), 0o640))

	openTestStore(t, dir, FileHistoryOptions{})
	_, err := os.Stat(tmp)
	assert.True(t, os.IsNotExist(err))
}

func TestFileHistory_Backfill(t *testing.T) {
	dir := t.TempDir()
	r := openTestStore(t, dir, FileHistoryOptions{IndexInterval: 2})
	ctx := context.Background()
	for _, d := range []int{0, 2, 4, 6, 8} {
		require.NoError(t, r.Append(ctx, rec("EUR", day(d), "1.0"), AppendOptions{}))
	}

	// a reader holding the old snapshot keeps working across the swap
	next, stop := iter.Pull2(r.Range("EUR", day(0), day(8)))
	defer stop()
	first, err, ok := next()
	require.True(t, ok)
	require.NoError(t, err)
	assert.True(t, first.Date.Equal(day(0)))

	require.NoError(t, r.Append(ctx, rec("EUR", day(3), "1.3"), AppendOptions{Backfill: true}))
	require.NoError(t, r.Append(ctx, rec("EUR", day(-1), "0.9"), AppendOptions{Backfill: true}))
	require.NoError(t, r.Append(ctx, rec("EUR", day(9), "1.9"), AppendOptions{Backfill: true}))

	err = r.Append(ctx, rec("EUR", day(4), "2.0"), AppendOptions{Backfill: true})
	assert.True(t, errors.Is(err, apperrors.ErrDuplicateTimestamp))

	got, err := r.RangeSlice("EUR", day(-5), day(20))
	require.NoError(t, err)
	var dates []int
	for _, g := range got {
		dates = append(dates, int(g.Date.Sub(day0).Hours()/24))
	}
	assert.Equal(t, []int{-1, 0, 2, 3, 4, 6, 8, 9}, dates)

	n := 1
	for {
		_, err, ok := next()
		if !ok {
			break
		}
		require.NoError(t, err)
		n++
	}
	assert.Equal(t, 5, n)

	back, err := r.At("EUR", day(3))
	require.NoError(t, err)
	assert.Equal(t, "1.3", back.Rate.String())

	require.NoError(t, r.Close())
	r2 := openTestStore(t, dir, FileHistoryOptions{IndexInterval: 2})
	reloaded, err := r2.RangeSlice("EUR", day(-5), day(20))
	require.NoError(t, err)
	assert.Len(t, reloaded, 8)
	st, err := r2.Stats("EUR")
	require.NoError(t, err)
	assert.Equal(t, 4, st.IndexEntries)
}

func TestFileHistory_CancelledAppend(t *testing.T) {
	r := openTestStore(t, t.TempDir(), FileHistoryOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.Append(ctx, rec("EUR", day(0), "1.1"), AppendOptions{})
	assert.True(t, errors.Is(err, context.Canceled))

	st, err := r.Stats("EUR")
	require.NoError(t, err)
	assert.Equal(t, 0, st.Count)
	assert.Equal(t, int64(0), st.SizeBytes)
	assert.Empty(t, r.Assets())
}

func TestFileHistory_ConcurrentReadersAndWriters(t *testing.T) {
	r := openTestStore(t, t.TempDir(), FileHistoryOptions{})
	ctx := context.Background()
	assets := []string{"EUR", "GBP", "XAU", "BTC"}
	const n = 60

	var wg sync.WaitGroup
	for _, a := range assets {
		wg.Add(1)
		go func(asset string) {
			defer wg.Done()
			for i := 0; i < n; i++ {
				assert.NoError(t, r.Append(ctx, rec(asset, day(i), "1.5"), AppendOptions{}))
			}
		}(a)
	}
	stop := make(chan struct{})
	var readers sync.WaitGroup
	for i := 0; i < 4; i++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				for _, a := range assets {
					got, err := r.RangeSlice(a, day(0), day(n))
					if errors.Is(err, apperrors.ErrNotFound) {
						continue
					}
					assert.NoError(t, err)
					for j := 1; j < len(got); j++ {
						assert.True(t, got[j].Date.After(got[j-1].Date))
					}
				}
			}
		}()
	}
	wg.Wait()
	close(stop)
	readers.Wait()

	for _, a := range assets {
		st, err := r.Stats(a)
		require.NoError(t, err)
		assert.Equal(t, n, st.Count)
	}
}

func TestFileHistory_Reindex(t *testing.T) {
	dir := t.TempDir()
	r := openTestStore(t, dir, FileHistoryOptions{})
	fill(t, r, "EUR", 10)
	idx := filepath.Join(dir, "series", "EUR"+indexExt)
	require.NoError(t, os.WriteFile(idx, []byte("junk"), 0o640))

	require.NoError(t, r.Reindex("EUR"))
	entries, err := readIndexFile(idx)
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	assert.True(t, errors.Is(r.Reindex("GBP"), apperrors.ErrNotFound))
}
