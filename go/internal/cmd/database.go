package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/mcdev12/quizrooms/go/internal/dbconfig"
	"github.com/mcdev12/quizrooms/go/internal/schema"
	"github.com/rs/zerolog/log"
)

func setupDatabase(ctx context.Context, cfg dbconfig.Config) (*sql.DB, error) {
	database, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection: %w", err)
	}
	database.SetMaxOpenConns(20)
	database.SetMaxIdleConns(5)
	database.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := database.PingContext(pingCtx); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Str("dsn", cfg.Redacted()).Msg("connected to database")
	return database, nil
}

func migrate(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := dbconfig.NewConfigFromEnv()
	database, err := setupDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	if _, err := database.ExecContext(ctx, schema.SQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	log.Info().Str("dsn", cfg.Redacted()).Msg("schema applied")
	return nil
}
