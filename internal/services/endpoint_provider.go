package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tropicaldog17/pricestore/internal/config"
	"github.com/tropicaldog17/pricestore/internal/models"
)

const endpointProviderName = "endpoints"

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// EndpointProvider fetches one asset per configured JSON endpoint.
type EndpointProvider struct {
	endpoints  map[string]config.EndpointConfig
	httpClient HTTPClient
	now        func() time.Time
	logger     *zap.Logger
}

func NewEndpointProvider(endpoints []config.EndpointConfig, httpClient HTTPClient, logger *zap.Logger) *EndpointProvider {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	m := make(map[string]config.EndpointConfig, len(endpoints))
	for _, e := range endpoints {
		m[strings.ToUpper(e.Asset)] = e
	}
	return &EndpointProvider{endpoints: m, httpClient: httpClient, now: time.Now, logger: logger}
}

func (p *EndpointProvider) Name() string { return endpointProviderName }

func (p *EndpointProvider) Supports(asset models.Asset) bool {
	_, ok := p.endpoints[asset.Code]
	return ok
}

// FetchLatest queries every configured endpoint concurrently. A failing endpoint
// is logged and left out of the batch; the call fails only when all of them fail.
func (p *EndpointProvider) FetchLatest(ctx context.Context, pivot string, assets []models.Asset) (*QuoteBatch, error) {
	return p.fetchAll(ctx, pivot, assets, p.now().UTC(), false)
}

// FetchHistorical queries the endpoints whose URL takes a {date} placeholder.
func (p *EndpointProvider) FetchHistorical(ctx context.Context, pivot string, assets []models.Asset, date time.Time) (*QuoteBatch, error) {
	return p.fetchAll(ctx, pivot, assets, models.DateOnly(date), true)
}

func (p *EndpointProvider) fetchAll(ctx context.Context, pivot string, assets []models.Asset, at time.Time, dated bool) (*QuoteBatch, error) {
	var targets []config.EndpointConfig
	for _, a := range assets {
		e, ok := p.endpoints[a.Code]
		if !ok || strings.EqualFold(a.Code, pivot) {
			continue
		}
		if dated && !strings.Contains(e.URL, "{date}") {
			p.logger.Debug("endpoint has no date placeholder", zap.String("asset", a.Code))
			continue
		}
		targets = append(targets, e)
	}

	quotes := make([]*RawQuote, len(targets))
	errs := make([]error, len(targets))
	var g errgroup.Group
	for i, e := range targets {
		g.Go(func() error {
			q, err := p.fetch(ctx, e, pivot, at)
			quotes[i], errs[i] = q, err
			return nil
		})
	}
	_ = g.Wait()

	batch := &QuoteBatch{Provider: p.Name(), ObservedAt: at}
	var firstErr error
	for i, q := range quotes {
		if errs[i] != nil {
			p.logger.Warn("endpoint fetch failed", zap.String("asset", targets[i].Asset), zap.Error(errs[i]))
			if firstErr == nil {
				firstErr = errs[i]
			}
			continue
		}
		batch.Quotes = append(batch.Quotes, *q)
	}
	if len(batch.Quotes) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return batch, nil
}

func (p *EndpointProvider) fetch(ctx context.Context, e config.EndpointConfig, pivot string, now time.Time) (*RawQuote, error) {
	asset := strings.ToUpper(e.Asset)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, buildEndpointURL(e.URL, asset, pivot, now), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range e.Headers {
		req.Header.Set(k, expandEnvVars(v))
	}
	switch strings.ToLower(e.AuthType) {
	case "bearer":
		req.Header.Set("Authorization", "Bearer "+expandEnvVars(e.AuthValue))
	case "apikey":
		req.Header.Set("X-API-Key", expandEnvVars(e.AuthValue))
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", asset, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%s endpoint returned status %d: %s", asset, resp.StatusCode, string(body))
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	var data any
	if err := dec.Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", asset, err)
	}

	path := e.ResponsePath
	if path == "" {
		path = "price"
	}
	value, err := extractValue(data, path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", asset, err)
	}

	convention := PivotPerAsset
	if e.Convention == "asset_per_pivot" {
		convention = AssetPerPivot
	}
	return &RawQuote{Asset: asset, Value: value, Convention: convention, Source: p.Name()}, nil
}

func buildEndpointURL(template, asset, pivot string, now time.Time) string {
	r := strings.NewReplacer(
		"{asset}", asset,
		"{asset_lower}", strings.ToLower(asset),
		"{pivot}", pivot,
		"{pivot_lower}", strings.ToLower(pivot),
		"{date}", now.Format(models.DateLayout),
	)
	return expandEnvVars(r.Replace(template))
}

// expandEnvVars replaces ${VAR} with the environment value, keeping unknown references.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if v := os.Getenv(match[2 : len(match)-1]); v != "" {
			return v
		}
		return match
	})
}

// extractValue walks a dot separated path and returns the number found there as text.
func extractValue(data any, path string) (string, error) {
	current := data
	for _, part := range strings.Split(path, ".") {
		obj, ok := current.(map[string]any)
		if !ok {
			return "", fmt.Errorf("cannot navigate path %q in non-object type", part)
		}
		if current, ok = obj[part]; !ok {
			return "", fmt.Errorf("path element %q not found in response", part)
		}
	}
	switch v := current.(type) {
	case json.Number:
		return v.String(), nil
	case string:
		return v, nil
	default:
		return "", fmt.Errorf("value at %q is not a number: %T", path, current)
	}
}
