package main

import (
	"context"
	"flag"
	"os"
	"time"

	"lending/internal/config"
	"lending/internal/db"
	"lending/internal/logging"
	"lending/migrations"

	"github.com/pressly/goose/v3"
)

func main() {
	down := flag.Bool("down", false, "roll back the most recent migration")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Setup("lending-migrate", "", "info", os.Stderr).Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.Setup("lending-migrate", cfg.AppEnv, cfg.LogLevel, os.Stdout)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	database, err := db.Connect(ctx, cfg.DatabaseURL, db.DefaultPoolConfig())
	if err != nil {
		logger.Error("failed to connect database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		logger.Error("failed to set goose dialect", "error", err)
		os.Exit(1)
	}

	if *down {
		err = goose.DownContext(ctx, database.DB, ".")
	} else {
		err = goose.UpContext(ctx, database.DB, ".")
	}
	if err != nil {
		logger.Error("migration failed", "down", *down, "error", err)
		os.Exit(1)
	}

	version, err := goose.GetDBVersionContext(ctx, database.DB)
	if err != nil {
		logger.Error("failed to read schema version", "error", err)
		os.Exit(1)
	}
	logger.Info("migrations applied", "version", version)
}
