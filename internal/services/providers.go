package services

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/tropicaldog17/pricestore/internal/config"
)

// NewProvidersFromConfig builds the configured providers in priority order.
func NewProvidersFromConfig(cfg config.IngestionConfig, logger *zap.Logger) ([]RateProvider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	providers := make([]RateProvider, 0, len(cfg.Providers))
	for _, name := range cfg.Providers {
		switch name {
		case "fiat":
			providers = append(providers, NewExchangeRateProvider(cfg.FiatAPIKey,
				WithExchangeRateBaseURL(cfg.FiatAPIBaseURL),
				WithExchangeRateLogger(logger.Named("exchangerate")),
				WithExchangeRateFetchTimeout(cfg.FetchTimeout),
			))
		case "crypto":
			providers = append(providers, NewCoinGeckoProvider(cfg.CryptoAPIKey,
				WithCoinGeckoBaseURL(cfg.CryptoBaseURL),
				WithCoinGeckoLogger(logger.Named("coingecko")),
			))
		case "endpoints":
			providers = append(providers, NewEndpointProvider(cfg.Endpoints, nil, logger.Named("endpoints")))
		case "mock":
			providers = append(providers, NewFixedRateProvider(nil))
		default:
			return nil, fmt.Errorf("unknown rate provider %q", name)
		}
	}
	return providers, nil
}
