package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/tropicaldog17/pricestore/internal/models"
	"github.com/tropicaldog17/pricestore/internal/services"
)

// RatesHandler serves read access to the stored rate history.
type RatesHandler struct {
	prices services.PriceService
}

func NewRatesHandler(prices services.PriceService) *RatesHandler {
	return &RatesHandler{prices: prices}
}

// HandleRates handles GET /rates
// @Summary Rate table
// @Description Every asset expressed against a base, latest or as of a date. Assets without a rate are listed as missing.
// @Tags rates
// @Produce json
// @Param base query string false "Base asset (default pivot)"
// @Param date query string false "Date (YYYY-MM-DD), latest when omitted"
// @Success 200 {object} services.RateTable
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /rates [get]
func (h *RatesHandler) HandleRates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	base := q.Get("base")
	if base == "" {
		base = models.DefaultPivot
		for _, info := range h.prices.Assets() {
			if info.Pivot {
				base = info.Code
				break
			}
		}
	}
	at, err := parseAt(q.Get("date"))
	if err != nil {
		badRequest(w, "date", err.Error())
		return
	}
	table, err := h.prices.Rates(r.Context(), base, at)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, table)
}

// HandleLatest handles GET /rates/latest
// @Summary Latest rate
// @Description Most recent stored rate of an asset, expressed in pivot units
// @Tags rates
// @Produce json
// @Param asset query string true "Asset code"
// @Success 200 {object} models.PriceRecord
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /rates/latest [get]
func (h *RatesHandler) HandleLatest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	asset := r.URL.Query().Get("asset")
	if asset == "" {
		badRequest(w, "asset", "asset is required")
		return
	}
	rec, err := h.prices.Latest(asset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// HandleHistory handles GET /rates/history
// @Summary Rate history
// @Description Stored rates of an asset dated within [from, to], oldest first
// @Tags rates
// @Produce json
// @Param asset query string true "Asset code"
// @Param from query string true "Start date (YYYY-MM-DD)"
// @Param to query string true "End date (YYYY-MM-DD)"
// @Success 200 {array} models.PriceRecord
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /rates/history [get]
func (h *RatesHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	asset := q.Get("asset")
	if asset == "" {
		badRequest(w, "asset", "asset is required")
		return
	}
	from, err := models.ParseDate(q.Get("from"))
	if err != nil {
		badRequest(w, "from", err.Error())
		return
	}
	to, err := models.ParseDate(q.Get("to"))
	if err != nil {
		badRequest(w, "to", err.Error())
		return
	}
	recs, err := h.prices.History(asset, from, to)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

// HandleAt handles GET /rates/at
// @Summary Rate on a date
// @Description Rate dated exactly on date, or with as_of the most recent one on or before it
// @Tags rates
// @Produce json
// @Param asset query string true "Asset code"
// @Param date query string true "Date (YYYY-MM-DD)"
// @Param as_of query bool false "Fall back to the closest earlier record"
// @Success 200 {object} models.PriceRecord
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /rates/at [get]
func (h *RatesHandler) HandleAt(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	asset := q.Get("asset")
	if asset == "" {
		badRequest(w, "asset", "asset is required")
		return
	}
	date, err := models.ParseDate(q.Get("date"))
	if err != nil {
		badRequest(w, "date", err.Error())
		return
	}
	asOf := false
	if v := q.Get("as_of"); v != "" {
		asOf, err = strconv.ParseBool(v)
		if err != nil {
			badRequest(w, "as_of", "must be a boolean")
			return
		}
	}
	rec, err := h.prices.At(asset, date, asOf)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// HandleAssets handles GET /assets
// @Summary List assets
// @Description Registered assets, pivot first, with statistics for stored series
// @Tags assets
// @Produce json
// @Param class query string false "Filter by class (fiat, precious_metal, crypto)"
// @Success 200 {array} services.AssetInfo
// @Router /assets [get]
func (h *RatesHandler) HandleAssets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	infos := h.prices.Assets()
	if class := strings.ToLower(r.URL.Query().Get("class")); class != "" {
		if !models.AssetClass(class).IsValid() {
			badRequest(w, "class", "unknown asset class")
			return
		}
		filtered := make([]services.AssetInfo, 0, len(infos))
		for _, info := range infos {
			if string(info.Class) == class {
				filtered = append(filtered, info)
			}
		}
		infos = filtered
	}
	writeJSON(w, http.StatusOK, infos)
}
