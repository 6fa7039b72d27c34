package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tropicaldog17/pricestore/internal/models"
	"github.com/tropicaldog17/pricestore/internal/services"
)

// ConvertHandler exposes the conversion engine.
type ConvertHandler struct {
	conversion services.ConversionService
}

func NewConvertHandler(conversion services.ConversionService) *ConvertHandler {
	return &ConvertHandler{conversion: conversion}
}

// BatchConvertRequest is the body of POST /convert/batch.
type BatchConvertRequest struct {
	Amounts      []models.BatchAmount `json:"amounts"`
	To           string               `json:"to"`
	At           string               `json:"at,omitempty"`
	MaxStaleness string               `json:"max_staleness,omitempty"`
}

// parseAt reads a conversion point in time. Empty and "latest" mean the latest rates.
func parseAt(v string) (*time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" || strings.EqualFold(v, "latest") {
		return nil, nil
	}
	d, err := models.ParseDate(v)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// parseStaleness accepts Go durations ("36h") and whole days ("3d").
func parseStaleness(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, nil
	}
	if days, ok := strings.CutSuffix(v, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n < 0 {
			return 0, strconv.ErrSyntax
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return 0, strconv.ErrSyntax
	}
	return d, nil
}

// HandleConvert handles GET /convert
// @Summary Convert an amount
// @Description Converts amount of from into to through the pivot, rounded half-up to the precision of to
// @Tags convert
// @Produce json
// @Param from query string true "Source asset"
// @Param to query string true "Target asset"
// @Param amount query string true "Decimal amount"
// @Param at query string false "Date (YYYY-MM-DD) or latest"
// @Param max_staleness query string false "Maximum rate age, e.g. 72h or 3d"
// @Success 200 {object} models.ConversionResult
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /convert [get]
func (h *ConvertHandler) HandleConvert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	amount, err := decimal.NewFromString(strings.TrimSpace(q.Get("amount")))
	if err != nil {
		badRequest(w, "amount", "amount must be a decimal number")
		return
	}
	at, err := parseAt(q.Get("at"))
	if err != nil {
		badRequest(w, "at", err.Error())
		return
	}
	maxStale, err := parseStaleness(q.Get("max_staleness"))
	if err != nil {
		badRequest(w, "max_staleness", "must be a duration such as 72h or 3d")
		return
	}

	res, err := h.conversion.Convert(r.Context(), models.ConversionRequest{
		From:         q.Get("from"),
		To:           q.Get("to"),
		Amount:       amount,
		At:           at,
		MaxStaleness: maxStale,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleConvertBatch handles POST /convert/batch
// @Summary Convert several amounts
// @Description Converts every amount into one target asset at the same point in time and sums them
// @Tags convert
// @Accept json
// @Produce json
// @Param request body BatchConvertRequest true "Amounts to convert"
// @Success 200 {object} services.BatchConversionResult
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /convert/batch [post]
func (h *ConvertHandler) HandleConvertBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req BatchConvertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "body", "invalid JSON body")
		return
	}
	at, err := parseAt(req.At)
	if err != nil {
		badRequest(w, "at", err.Error())
		return
	}
	maxStale, err := parseStaleness(req.MaxStaleness)
	if err != nil {
		badRequest(w, "max_staleness", "must be a duration such as 72h or 3d")
		return
	}

	res, err := h.conversion.ConvertBatch(r.Context(), req.Amounts, req.To, at, maxStale)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
