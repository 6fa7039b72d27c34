package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tropicaldog17/pricestore/internal/db"
	apperrors "github.com/tropicaldog17/pricestore/internal/errors"
	"github.com/tropicaldog17/pricestore/internal/models"
)

func setupLedgerDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.Connect(&db.Config{Driver: db.DriverSQLite, Path: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate())
	t.Cleanup(func() { _ = database.Close() })
	return database
}

func exerciseLedger(t *testing.T, database *db.DB) {
	ctx := context.Background()
	audits := NewBackfillAuditRepository(database)
	runs := NewIngestionRunRepository(database)

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, asset := range []string{"EUR", "XAU", "EUR"} {
		require.NoError(t, audits.Create(ctx, &models.BackfillAudit{
			ID:        uuid.New().String(),
			Asset:     asset,
			Date:      day(i),
			Rate:      decimal.RequireFromString("1.2345"),
			Source:    models.SourceManual,
			Actor:     "ops",
			Reason:    "late publication",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	eur, err := audits.List(ctx, "EUR", 0)
	require.NoError(t, err)
	require.Len(t, eur, 2)
	assert.True(t, eur[0].CreatedAt.After(eur[1].CreatedAt))
	assert.True(t, eur[0].Rate.Equal(decimal.RequireFromString("1.2345")))

	all, err := audits.List(ctx, "", 1)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	run := &models.IngestionRun{
		ID:        uuid.New().String(),
		Trigger:   "schedule",
		Status:    models.IngestionStatusRunning,
		StartedAt: base,
	}
	require.NoError(t, runs.Create(ctx, run))

	finished := base.Add(time.Second)
	run.Status = models.IngestionStatusPartial
	run.Appended = 3
	run.Failed = 1
	run.Error = "coingecko: status 429"
	run.FinishedAt = &finished
	require.NoError(t, runs.Update(ctx, run))

	got, err := runs.GetByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IngestionStatusPartial, got.Status)
	assert.Equal(t, 3, got.Appended)
	require.NotNil(t, got.FinishedAt)

	_, err = runs.GetByID(ctx, "missing")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	require.NoError(t, runs.Create(ctx, &models.IngestionRun{
		ID: uuid.New().String(), Trigger: "manual", Status: models.IngestionStatusSucceeded, StartedAt: base.Add(time.Hour),
	}))
	recent, err := runs.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "manual", recent[0].Trigger)
}

func TestLedgerRepositories_SQLite(t *testing.T) {
	exerciseLedger(t, setupLedgerDB(t))
}
