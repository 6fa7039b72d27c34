package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/tropicaldog17/pricestore/internal/models"
)

const (
	exchangeRateKeyedBaseURL = "https://v6.exchangerate-api.com/v6"
	exchangeRateOpenBaseURL  = "https://open.er-api.com/v6"
)

const defaultSharedFetchTimeout = 30 * time.Second

// ExchangeRateProvider fetches fiat and precious metal quotes from exchangerate-api.
// The API quotes units of each currency per one unit of the base, so quotes are AssetPerPivot.
type ExchangeRateProvider struct {
	apiKey     string
	baseURL    string
	httpClient HTTPClient
	logger     *zap.Logger
	group      singleflight.Group
	// fetchTimeout bounds a shared upstream request, which outlives any single caller.
	fetchTimeout time.Duration
}

// ExchangeRateOption configures an ExchangeRateProvider.
type ExchangeRateOption func(*ExchangeRateProvider)

func WithExchangeRateBaseURL(baseURL string) ExchangeRateOption {
	return func(p *ExchangeRateProvider) {
		if baseURL != "" {
			p.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

func WithExchangeRateHTTPClient(c HTTPClient) ExchangeRateOption {
	return func(p *ExchangeRateProvider) { p.httpClient = c }
}

func WithExchangeRateLogger(l *zap.Logger) ExchangeRateOption {
	return func(p *ExchangeRateProvider) { p.logger = l }
}

func WithExchangeRateFetchTimeout(d time.Duration) ExchangeRateOption {
	return func(p *ExchangeRateProvider) {
		if d > 0 {
			p.fetchTimeout = d
		}
	}
}

// NewExchangeRateProvider creates the provider. Without an API key the open endpoint is used.
func NewExchangeRateProvider(apiKey string, opts ...ExchangeRateOption) *ExchangeRateProvider {
	p := &ExchangeRateProvider{
		apiKey:       apiKey,
		baseURL:      exchangeRateOpenBaseURL,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		logger:       zap.NewNop(),
		fetchTimeout: defaultSharedFetchTimeout,
	}
	if apiKey != "" {
		p.baseURL = exchangeRateKeyedBaseURL
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *ExchangeRateProvider) Name() string { return models.SourceExchangeRateAPI }

func (p *ExchangeRateProvider) Supports(asset models.Asset) bool {
	return asset.Class == models.AssetClassFiat || asset.Class == models.AssetClassPreciousMetal
}

// normalizeCurrencyForAPI maps stablecoins the API does not accept as a base onto USD.
func normalizeCurrencyForAPI(symbol string) string {
	s := strings.ToUpper(symbol)
	if s == "USDT" || s == "USDC" {
		return "USD"
	}
	return s
}

type exchangeRateTable struct {
	updatedAt time.Time
	rates     map[string]json.Number
}

func (p *ExchangeRateProvider) FetchLatest(ctx context.Context, pivot string, assets []models.Asset) (*QuoteBatch, error) {
	base := normalizeCurrencyForAPI(pivot)
	url := fmt.Sprintf("%s/latest/%s", p.baseURL, base)
	if p.apiKey != "" {
		url = fmt.Sprintf("%s/%s/latest/%s", p.baseURL, p.apiKey, base)
	}
	table, err := p.sharedFetch(ctx, "latest/"+base, url)
	if err != nil {
		return nil, err
	}
	return p.quotes(table, table.updatedAt, pivot, assets), nil
}

// FetchHistorical uses the history endpoint, which needs an API key.
func (p *ExchangeRateProvider) FetchHistorical(ctx context.Context, pivot string, assets []models.Asset, date time.Time) (*QuoteBatch, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("exchangerate-api historical rates require an API key")
	}
	base := normalizeCurrencyForAPI(pivot)
	d := models.DateOnly(date)
	url := fmt.Sprintf("%s/%s/history/%s/%d/%d/%d", p.baseURL, p.apiKey, base, d.Year(), int(d.Month()), d.Day())
	table, err := p.sharedFetch(ctx, "history/"+base+"/"+d.Format(models.DateLayout), url)
	if err != nil {
		return nil, err
	}
	return p.quotes(table, d, pivot, assets), nil
}

// sharedFetch lets concurrent callers share one upstream request per key. The
// request runs detached from any caller; each caller waits on its own ctx.
func (p *ExchangeRateProvider) sharedFetch(ctx context.Context, key, url string) (*exchangeRateTable, error) {
	ch := p.group.DoChan(key, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.fetchTimeout)
		defer cancel()
		return p.fetchTable(fctx, url)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*exchangeRateTable), nil
	}
}

func (p *ExchangeRateProvider) quotes(table *exchangeRateTable, observed time.Time, pivot string, assets []models.Asset) *QuoteBatch {
	batch := &QuoteBatch{Provider: p.Name(), ObservedAt: observed}
	for _, a := range assets {
		if !p.Supports(a) || strings.EqualFold(a.Code, pivot) {
			continue
		}
		n, ok := table.rates[a.Code]
		if !ok {
			p.logger.Debug("asset not quoted by exchangerate-api", zap.String("asset", a.Code))
			continue
		}
		batch.Quotes = append(batch.Quotes, RawQuote{
			Asset:      a.Code,
			Value:      n.String(),
			Convention: AssetPerPivot,
			Source:     p.Name(),
		})
	}
	return batch
}

func (p *ExchangeRateProvider) fetchTable(ctx context.Context, url string) (*exchangeRateTable, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch rates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("exchangerate-api returned status %d", resp.StatusCode)
	}

	// v6 responses carry conversion_rates, the open and v4 endpoints carry rates
	var payload struct {
		Result          string                 `json:"result"`
		ErrorType       string                 `json:"error-type"`
		TimeLastUpdate  int64                  `json:"time_last_update_unix"`
		ConversionRates map[string]json.Number `json:"conversion_rates"`
		Rates           map[string]json.Number `json:"rates"`
	}
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if payload.Result != "" && payload.Result != "success" {
		return nil, fmt.Errorf("exchangerate-api error: %s %s", payload.Result, payload.ErrorType)
	}

	rates := payload.ConversionRates
	if rates == nil {
		rates = payload.Rates
	}
	if rates == nil {
		return nil, fmt.Errorf("exchangerate-api response missing rates")
	}

	updated := time.Now().UTC()
	if payload.TimeLastUpdate > 0 {
		updated = time.Unix(payload.TimeLastUpdate, 0).UTC()
	}
	return &exchangeRateTable{updatedAt: updated, rates: rates}, nil
}
