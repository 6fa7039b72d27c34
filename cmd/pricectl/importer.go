package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	apperrors "github.com/tropicaldog17/pricestore/internal/errors"
	"github.com/tropicaldog17/pricestore/internal/models"
	"github.com/tropicaldog17/pricestore/internal/repositories"
	"github.com/tropicaldog17/pricestore/internal/services"
)

type importOptions struct {
	// Asset is used when the file has no asset column.
	Asset      string
	Source     string
	Delimiter  rune
	Convention services.QuoteConvention
	Backfill   bool
}

type importSummary struct {
	Read     int
	Appended int
	Skipped  int
}

func parseConvention(s string) (services.QuoteConvention, error) {
	switch strings.ToLower(s) {
	case "", "pivot_per_asset", "ppa":
		return services.PivotPerAsset, nil
	case "asset_per_pivot", "app":
		return services.AssetPerPivot, nil
	}
	return 0, fmt.Errorf("unknown quote convention %q", s)
}

func parseImportDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return models.ParseDate(s)
}

// columnIndex finds the first header matching one of names.
func columnIndex(header []string, names ...string) int {
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(h))
		for _, n := range names {
			if h == n {
				return i
			}
		}
	}
	return -1
}

// importCSV loads daily rates from r. The header must name a date column
// (date or timestamp) and a rate column (rate or close); asset and source are optional.
// Rows are normalized, sorted by date and appended; rows already stored are skipped.
func importCSV(ctx context.Context, r io.Reader, opts importOptions, registry *models.AssetRegistry, history repositories.PriceHistoryRepository) (importSummary, error) {
	var sum importSummary

	cr := csv.NewReader(r)
	if opts.Delimiter != 0 {
		cr.Comma = opts.Delimiter
	}
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return sum, fmt.Errorf("failed to read header: %w", err)
	}
	dateCol := columnIndex(header, "date", "timestamp")
	rateCol := columnIndex(header, "rate", "close")
	assetCol := columnIndex(header, "asset", "code")
	sourceCol := columnIndex(header, "source")
	if dateCol < 0 || rateCol < 0 {
		return sum, errors.New("header must contain a date and a rate column")
	}
	if assetCol < 0 && opts.Asset == "" {
		return sum, errors.New("file has no asset column; pass --asset")
	}

	normalizer := services.NewRateNormalizer(registry)
	var recs []*models.PriceRecord
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return sum, fmt.Errorf("line %d: %w", line, err)
		}
		sum.Read++

		code := opts.Asset
		if assetCol >= 0 && row[assetCol] != "" {
			code = row[assetCol]
		}
		asset, err := registry.Lookup(code)
		if err != nil {
			return sum, fmt.Errorf("line %d: %w", line, err)
		}
		observed, err := parseImportDate(row[dateCol])
		if err != nil {
			return sum, fmt.Errorf("line %d: %w", line, err)
		}
		source := opts.Source
		if sourceCol >= 0 && row[sourceCol] != "" {
			source = row[sourceCol]
		}
		rec, err := normalizer.Normalize(services.RawQuote{
			Asset:      asset.Code,
			Value:      row[rateCol],
			Convention: opts.Convention,
			Source:     source,
		}, asset, observed)
		if err != nil {
			return sum, fmt.Errorf("line %d: %w", line, err)
		}
		recs = append(recs, rec)
	}

	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Asset != recs[j].Asset {
			return recs[i].Asset < recs[j].Asset
		}
		return recs[i].Date.Before(recs[j].Date)
	})

	for _, rec := range recs {
		err := history.Append(ctx, rec, repositories.AppendOptions{Backfill: opts.Backfill})
		switch {
		case err == nil:
			sum.Appended++
		case errors.Is(err, apperrors.ErrDuplicateTimestamp), errors.Is(err, apperrors.ErrOutOfOrder):
			sum.Skipped++
		default:
			return sum, fmt.Errorf("%s %s: %w", rec.Asset, rec.DateString(), err)
		}
	}
	return sum, nil
}
