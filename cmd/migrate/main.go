// Command migrate applies the contact store schema to the database named by
// DATABASE_URL.
package main

import (
	"context"
	"os"
	"time"

	"github.com/jackc/pgx/v5"

	"contacthub/internal/contact/store"
	"contacthub/internal/platform/config"
	"contacthub/internal/platform/logger"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if cfg.DatabaseURL == "" {
		log.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conn, err := pgx.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("connecting to postgres", "error", err)
		os.Exit(1)
	}
	defer conn.Close(ctx)

	if _, err := conn.Exec(ctx, store.Schema); err != nil {
		log.Error("applying schema", "error", err)
		os.Exit(1)
	}

	log.Info("schema applied")
}
