package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"

	"github.com/tropicaldog17/pricestore/internal/services"
)

// HealthChecker reports whether a dependency is reachable.
type HealthChecker interface {
	Health() error
}

// RouterConfig collects everything the HTTP surface depends on.
type RouterConfig struct {
	Prices     services.PriceService
	Conversion services.ConversionService
	Ingestion  services.IngestionService
	// Database is optional; when set /health pings it.
	Database HealthChecker
	Logger   *zap.Logger
}

// NewRouter builds the HTTP API.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	rates := NewRatesHandler(cfg.Prices)
	convert := NewConvertHandler(cfg.Conversion)
	admin := NewAdminHandler(cfg.Prices, cfg.Ingestion)

	router := mux.NewRouter()
	router.Use(requestLogger(logger))

	router.HandleFunc("/health", healthHandler(cfg.Prices, cfg.Database)).Methods(http.MethodGet)

	router.HandleFunc("/rates", rates.HandleRates).Methods(http.MethodGet)
	router.HandleFunc("/rates/latest", rates.HandleLatest).Methods(http.MethodGet)
	router.HandleFunc("/rates/history", rates.HandleHistory).Methods(http.MethodGet)
	router.HandleFunc("/rates/at", rates.HandleAt).Methods(http.MethodGet)
	router.HandleFunc("/assets", rates.HandleAssets).Methods(http.MethodGet)

	router.HandleFunc("/convert", convert.HandleConvert).Methods(http.MethodGet)
	router.HandleFunc("/convert/batch", convert.HandleConvertBatch).Methods(http.MethodPost)

	router.HandleFunc("/admin/rates/backfill", admin.HandleBackfill).Methods(http.MethodPost)
	router.HandleFunc("/admin/rates/backfills", admin.HandleBackfills).Methods(http.MethodGet)
	router.HandleFunc("/admin/rates/fetch", admin.HandleFetchHistorical).Methods(http.MethodPost)
	router.HandleFunc("/admin/ingest", admin.HandleIngest).Methods(http.MethodPost)
	router.HandleFunc("/admin/ingest/runs", admin.HandleIngestRuns).Methods(http.MethodGet)

	router.PathPrefix("/swagger/").Handler(httpSwagger.WrapHandler)

	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	})
	return router
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Service  string `json:"service"`
	Series   int    `json:"series"`
	Database string `json:"database,omitempty"`
}

// healthHandler handles GET /health
// @Summary Health check
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse
// @Failure 503 {object} HealthResponse
// @Router /health [get]
func healthHandler(prices services.PriceService, database HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{Status: "healthy", Service: "pricestore"}
		for _, info := range prices.Assets() {
			if info.Series != nil {
				resp.Series++
			}
		}
		status := http.StatusOK
		if database != nil {
			resp.Database = "ok"
			if err := database.Health(); err != nil {
				resp.Status = "degraded"
				resp.Database = err.Error()
				status = http.StatusServiceUnavailable
			}
		}
		writeJSON(w, status, resp)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func requestLogger(logger *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.status),
				zap.Duration("took", time.Since(start)),
			}
			if rec.status >= http.StatusInternalServerError {
				logger.Error("request failed", fields...)
				return
			}
			logger.Debug("request", fields...)
		})
	}
}
