package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// ConversionRequest asks for amount of From expressed in To.
// A nil At means "latest".
type ConversionRequest struct {
	From         string
	To           string
	Amount       decimal.Decimal
	At           *time.Time
	MaxStaleness time.Duration
}

// ConversionResult carries the converted amount and the rates that produced it.
type ConversionResult struct {
	From         string          `json:"from"`
	To           string          `json:"to"`
	Amount       decimal.Decimal `json:"amount"`
	Result       decimal.Decimal `json:"result"`
	RateFrom     decimal.Decimal `json:"rate_from"`
	RateTo       decimal.Decimal `json:"rate_to"`
	RateDateFrom *time.Time      `json:"-"`
	RateDateTo   *time.Time      `json:"-"`
}

func (c ConversionResult) MarshalJSON() ([]byte, error) {
	type alias ConversionResult
	out := struct {
		alias
		RateDateFrom string `json:"rate_date_from,omitempty"`
		RateDateTo   string `json:"rate_date_to,omitempty"`
	}{alias: alias(c)}
	if c.RateDateFrom != nil {
		out.RateDateFrom = c.RateDateFrom.Format(DateLayout)
	}
	if c.RateDateTo != nil {
		out.RateDateTo = c.RateDateTo.Format(DateLayout)
	}
	return json.Marshal(out)
}

// BatchAmount is one line of a batch conversion.
type BatchAmount struct {
	Asset  string          `json:"asset"`
	Amount decimal.Decimal `json:"amount"`
}
