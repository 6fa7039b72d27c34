package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/tropicaldog17/pricestore/internal/config"
	"github.com/tropicaldog17/pricestore/internal/db"
	"github.com/tropicaldog17/pricestore/internal/logger"
	"github.com/tropicaldog17/pricestore/migrations"
)

func main() {
	configPath := flag.String("config", "", "path to a config file")
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

	if cfg.Database.Driver != db.DriverPostgres {
		zl.Fatal("SQL migrations target postgres; sqlite ledgers are created by the server on startup",
			zap.String("driver", cfg.Database.Driver))
	}

	conn, err := sql.Open("postgres", cfg.DBConfig().DSN())
	if err != nil {
		zl.Fatal("failed to open database", zap.Error(err))
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		zl.Fatal("failed to ping database", zap.Error(err))
	}

	ms, err := migrations.Load()
	if err != nil {
		zl.Fatal("failed to load migrations", zap.Error(err))
	}
	n, err := migrations.NewRunner(conn, zl).Up(ctx, ms)
	if err != nil {
		zl.Fatal("migration failed", zap.Int("applied", n), zap.Error(err))
	}
	zl.Info("all migrations completed", zap.Int("applied", n))
}
