package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	_ "github.com/tropicaldog17/pricestore/docs"
	"github.com/tropicaldog17/pricestore/internal/config"
	"github.com/tropicaldog17/pricestore/internal/db"
	apperrors "github.com/tropicaldog17/pricestore/internal/errors"
	"github.com/tropicaldog17/pricestore/internal/handlers"
	"github.com/tropicaldog17/pricestore/internal/logger"
	"github.com/tropicaldog17/pricestore/internal/models"
	"github.com/tropicaldog17/pricestore/internal/repositories"
	"github.com/tropicaldog17/pricestore/internal/services"
)

// @title Price Store API
// @version 1.0
// @description Historical pivot-relative rates for fiat, precious metals and crypto, with conversion between any two assets.
// @BasePath /
func main() {
	configPath := flag.String("config", "", "path to a config file (yaml, json or toml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	zl, err := logger.New(cfg.Logging)
	if err != nil {
		log.Fatal("Failed to build logger:", err)
	}
	defer zl.Sync()

	if err := run(cfg, zl); err != nil {
		zl.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, zl *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry, err := models.NewAssetRegistry(cfg.Pivot, models.DefaultAssets())
	if err != nil {
		return err
	}

	history, err := repositories.NewFileHistoryRepository(cfg.Store.DataDir, registry, repositories.FileHistoryOptions{
		IndexInterval: cfg.Store.IndexInterval,
		Logger:        zl.Named("store"),
	})
	if err != nil {
		var corrupt *apperrors.CorruptStoreError
		if errors.As(err, &corrupt) {
			zl.Error("history store is corrupt; run pricectl verify for details",
				zap.String("path", corrupt.Path),
				zap.Int("line", corrupt.Line),
				zap.Int64("offset", corrupt.Offset),
			)
		}
		return err
	}
	defer history.Close()

	database, err := db.Connect(cfg.DBConfig())
	if err != nil {
		return err
	}
	defer database.Close()
	if err := database.AutoMigrate(); err != nil {
		return err
	}
	zl.Info("database connection established", zap.String("driver", cfg.Database.Driver))

	providers, err := services.NewProvidersFromConfig(cfg.Ingestion, zl.Named("provider"))
	if err != nil {
		return err
	}

	audits := repositories.NewBackfillAuditRepository(database)
	conversion := services.NewConversionService(history, registry, services.ConversionOptions{
		MaxStaleness: cfg.Conversion.MaxStaleness,
		Logger:       zl.Named("conversion"),
	})
	prices := services.NewPriceService(history, audits, conversion, registry, zl.Named("prices"))
	ingestion := services.NewIngestionService(
		providers,
		services.NewRateNormalizer(registry),
		history,
		repositories.NewIngestionRunRepository(database),
		registry,
		services.IngestionOptions{
			AppendTimeout: cfg.Ingestion.AppendTimeout,
			FetchTimeout:  cfg.Ingestion.FetchTimeout,
			Audits:        audits,
			Logger:        zl.Named("ingestion"),
		},
	)

	schedulerDone := make(chan struct{})
	if cfg.Ingestion.Enabled && len(providers) > 0 {
		go func() {
			defer close(schedulerDone)
			services.NewScheduler(ingestion, cfg.Ingestion.Interval, zl.Named("scheduler")).Run(ctx)
		}()
	} else {
		close(schedulerDone)
		zl.Info("scheduled ingestion disabled")
	}

	srv := &http.Server{
		Addr: ":" + cfg.Server.Port,
		Handler: handlers.NewRouter(handlers.RouterConfig{
			Prices:     prices,
			Conversion: conversion,
			Ingestion:  ingestion,
			Database:   database,
			Logger:     zl.Named("http"),
		}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		zl.Info("server starting",
			zap.String("addr", srv.Addr),
			zap.String("pivot", registry.Pivot().Code),
			zap.String("swagger", "/swagger/index.html"),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	zl.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Warn("http shutdown", zap.Error(err))
	}
	stop()
	<-schedulerDone
	return nil
}
