package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/tropicaldog17/pricestore/internal/models"
	"github.com/tropicaldog17/pricestore/internal/services"
)

// ActorHeader names the operator performing an admin write.
const ActorHeader = "X-Actor"

// AdminHandler serves the operator endpoints: backfills and ingestion control.
type AdminHandler struct {
	prices    services.PriceService
	ingestion services.IngestionService
}

func NewAdminHandler(prices services.PriceService, ingestion services.IngestionService) *AdminHandler {
	return &AdminHandler{prices: prices, ingestion: ingestion}
}

func parseLimit(r *http.Request) (int, bool) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 || n > 500 {
		return 0, false
	}
	return n, true
}

// HandleBackfill handles POST /admin/rates/backfill
// @Summary Backfill a historical rate
// @Description Inserts a rate dated before the latest stored one and records an audit entry
// @Tags admin
// @Accept json
// @Produce json
// @Param X-Actor header string true "Operator name"
// @Param request body services.BackfillRequest true "Rate to insert"
// @Success 201 {object} models.BackfillAudit
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /admin/rates/backfill [post]
func (h *AdminHandler) HandleBackfill(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req services.BackfillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "body", "invalid JSON body")
		return
	}
	req.Actor = strings.TrimSpace(r.Header.Get(ActorHeader))

	audit, err := h.prices.Backfill(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, audit)
}

// HandleBackfills handles GET /admin/rates/backfills
// @Summary List backfills
// @Tags admin
// @Produce json
// @Param asset query string false "Filter by asset"
// @Param limit query int false "Maximum entries (default 50)"
// @Success 200 {array} models.BackfillAudit
// @Router /admin/rates/backfills [get]
func (h *AdminHandler) HandleBackfills(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	limit, ok := parseLimit(r)
	if !ok {
		badRequest(w, "limit", "limit must be between 0 and 500")
		return
	}
	list, err := h.prices.Audits(r.Context(), r.URL.Query().Get("asset"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// HandleFetchHistorical handles POST /admin/rates/fetch
// @Summary Fetch historical rates
// @Description Asks every provider for the rates of one past day and backfills them with an audit entry per stored record
// @Tags admin
// @Produce json
// @Param X-Actor header string true "Operator name"
// @Param date query string true "Date (YYYY-MM-DD)"
// @Success 200 {object} models.IngestionRun
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /admin/rates/fetch [post]
func (h *AdminHandler) HandleFetchHistorical(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	date, err := models.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		badRequest(w, "date", err.Error())
		return
	}
	run, err := h.ingestion.FetchHistorical(r.Context(), date, strings.TrimSpace(r.Header.Get(ActorHeader)))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// HandleIngest handles POST /admin/ingest
// @Summary Run ingestion now
// @Description Fetches, normalizes and appends the current quotes of every provider
// @Tags admin
// @Produce json
// @Success 200 {object} models.IngestionRun
// @Failure 409 {object} ErrorResponse
// @Router /admin/ingest [post]
func (h *AdminHandler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	run, err := h.ingestion.RunOnce(r.Context(), services.TriggerManual)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// HandleIngestRuns handles GET /admin/ingest/runs
// @Summary Recent ingestion runs
// @Tags admin
// @Produce json
// @Param limit query int false "Maximum entries (default 50)"
// @Success 200 {array} models.IngestionRun
// @Router /admin/ingest/runs [get]
func (h *AdminHandler) HandleIngestRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	limit, ok := parseLimit(r)
	if !ok {
		badRequest(w, "limit", "limit must be between 0 and 500")
		return
	}
	runs, err := h.ingestion.RecentRuns(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}
