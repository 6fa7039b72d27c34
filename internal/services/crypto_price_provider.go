package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tropicaldog17/pricestore/internal/models"
)

const coinGeckoBaseURL = "https://api.coingecko.com/api/v3"

// CoinGeckoProvider fetches crypto prices. CoinGecko quotes the price of one coin
// in the vs currency, so quotes are PivotPerAsset.
type CoinGeckoProvider struct {
	apiKey     string
	baseURL    string
	httpClient HTTPClient
	logger     *zap.Logger
}

type CoinGeckoOption func(*CoinGeckoProvider)

func WithCoinGeckoBaseURL(baseURL string) CoinGeckoOption {
	return func(p *CoinGeckoProvider) {
		if baseURL != "" {
			p.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

func WithCoinGeckoHTTPClient(c HTTPClient) CoinGeckoOption {
	return func(p *CoinGeckoProvider) { p.httpClient = c }
}

func WithCoinGeckoLogger(l *zap.Logger) CoinGeckoOption {
	return func(p *CoinGeckoProvider) { p.logger = l }
}

func NewCoinGeckoProvider(apiKey string, opts ...CoinGeckoOption) *CoinGeckoProvider {
	p := &CoinGeckoProvider{
		apiKey:     apiKey,
		baseURL:    coinGeckoBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *CoinGeckoProvider) Name() string { return models.SourceCoinGecko }

func (p *CoinGeckoProvider) Supports(asset models.Asset) bool {
	return asset.Class == models.AssetClassCrypto && mapSymbolToCoinGeckoID(asset.Code) != ""
}

func (p *CoinGeckoProvider) FetchLatest(ctx context.Context, pivot string, assets []models.Asset) (*QuoteBatch, error) {
	ids := make(map[string]string) // coingecko id -> asset code
	for _, a := range assets {
		if p.Supports(a) && !strings.EqualFold(a.Code, pivot) {
			ids[mapSymbolToCoinGeckoID(a.Code)] = a.Code
		}
	}
	batch := &QuoteBatch{Provider: p.Name(), ObservedAt: time.Now().UTC()}
	if len(ids) == 0 {
		return batch, nil
	}

	idList := make([]string, 0, len(ids))
	for id := range ids {
		idList = append(idList, id)
	}
	sort.Strings(idList)

	vs := strings.ToLower(pivot)
	q := url.Values{}
	q.Set("ids", strings.Join(idList, ","))
	q.Set("vs_currencies", vs)
	q.Set("include_last_updated_at", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/simple/price?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if p.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch prices: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coingecko status %d", resp.StatusCode)
	}

	var payload map[string]map[string]json.Number
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	var latest int64
	for _, id := range idList {
		m, ok := payload[id]
		if !ok {
			p.logger.Debug("coin missing from coingecko response", zap.String("id", id))
			continue
		}
		price, ok := m[vs]
		if !ok {
			p.logger.Debug("currency missing from coingecko response", zap.String("id", id), zap.String("vs", vs))
			continue
		}
		if ts, err := m["last_updated_at"].Int64(); err == nil && ts > latest {
			latest = ts
		}
		batch.Quotes = append(batch.Quotes, RawQuote{
			Asset:      ids[id],
			Value:      price.String(),
			Convention: PivotPerAsset,
			Source:     p.Name(),
		})
	}
	if latest > 0 {
		batch.ObservedAt = time.Unix(latest, 0).UTC()
	}
	return batch, nil
}

// FetchHistorical queries the per-coin history endpoint, one request per coin.
// Coins that fail are logged and left out; the call fails only when all do.
func (p *CoinGeckoProvider) FetchHistorical(ctx context.Context, pivot string, assets []models.Asset, date time.Time) (*QuoteBatch, error) {
	d := models.DateOnly(date)
	batch := &QuoteBatch{Provider: p.Name(), ObservedAt: d}
	vs := strings.ToLower(pivot)

	var lastErr error
	requested := 0
	for _, a := range assets {
		if !p.Supports(a) || strings.EqualFold(a.Code, pivot) {
			continue
		}
		requested++
		price, err := p.historicalPrice(ctx, mapSymbolToCoinGeckoID(a.Code), vs, d)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			p.logger.Warn("coingecko history failed", zap.String("asset", a.Code), zap.Error(err))
			lastErr = err
			continue
		}
		batch.Quotes = append(batch.Quotes, RawQuote{
			Asset:      a.Code,
			Value:      price.String(),
			Convention: PivotPerAsset,
			Source:     p.Name(),
		})
	}
	if requested > 0 && len(batch.Quotes) == 0 && lastErr != nil {
		return nil, fmt.Errorf("coingecko history %s: %w", d.Format(models.DateLayout), lastErr)
	}
	return batch, nil
}

func (p *CoinGeckoProvider) historicalPrice(ctx context.Context, id, vs string, d time.Time) (json.Number, error) {
	// the history endpoint expects dd-mm-yyyy
	q := url.Values{}
	q.Set("date", fmt.Sprintf("%02d-%02d-%d", d.Day(), int(d.Month()), d.Year()))
	q.Set("localization", "false")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/coins/"+id+"/history?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if p.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch history: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("coingecko status %d", resp.StatusCode)
	}

	var payload struct {
		MarketData struct {
			CurrentPrice map[string]json.Number `json:"current_price"`
		} `json:"market_data"`
	}
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	price, ok := payload.MarketData.CurrentPrice[vs]
	if !ok {
		return "", fmt.Errorf("no %s price for %s", vs, id)
	}
	return price, nil
}

func mapSymbolToCoinGeckoID(symbol string) string {
	switch strings.ToUpper(symbol) {
	case "BTC":
		return "bitcoin"
	case "ETH":
		return "ethereum"
	case "SOL":
		return "solana"
	case "XRP":
		return "ripple"
	case "ADA":
		return "cardano"
	case "BNB":
		return "binancecoin"
	case "DOGE":
		return "dogecoin"
	case "LTC":
		return "litecoin"
	case "DOT":
		return "polkadot"
	case "AVAX":
		return "avalanche-2"
	case "LINK":
		return "chainlink"
	case "USDT":
		return "tether"
	case "USDC":
		return "usd-coin"
	default:
		return ""
	}
}
