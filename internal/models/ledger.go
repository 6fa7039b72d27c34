package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BackfillAudit records who inserted a historical rate through the backfill path and why.
type BackfillAudit struct {
	ID        string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Asset     string          `json:"asset" gorm:"type:varchar(16);index:idx_backfill_asset_date"`
	Date      time.Time       `json:"date" gorm:"index:idx_backfill_asset_date"`
	Rate      decimal.Decimal `json:"rate" gorm:"type:numeric(38,18)"`
	Source    string          `json:"source" gorm:"type:varchar(64)"`
	Actor     string          `json:"actor" gorm:"type:varchar(128)"`
	Reason    string          `json:"reason" gorm:"type:text"`
	CreatedAt time.Time       `json:"created_at"`
}

func (BackfillAudit) TableName() string { return "backfill_audits" }

// Ingestion run statuses
const (
	IngestionStatusRunning   = "running"
	IngestionStatusSucceeded = "succeeded"
	IngestionStatusPartial   = "partial"
	IngestionStatusFailed    = "failed"
)

// IngestionRun summarises one fetch-normalize-append cycle.
type IngestionRun struct {
	ID         string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Trigger    string     `json:"trigger" gorm:"type:varchar(32)"`
	Status     string     `json:"status" gorm:"type:varchar(16);index"`
	Appended   int        `json:"appended"`
	Skipped    int        `json:"skipped"`
	Failed     int        `json:"failed"`
	Error      string     `json:"error,omitempty" gorm:"type:text"`
	StartedAt  time.Time  `json:"started_at" gorm:"index"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

func (IngestionRun) TableName() string { return "ingestion_runs" }
