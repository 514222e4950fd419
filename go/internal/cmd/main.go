package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/mcdev12/quizrooms/go/internal/dbconfig"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := &Config{}
	cobra.CheckErr(newCmd(cfg).ExecuteContext(ctx))
}

func serve(ctx context.Context, cfg *Config) error {
	dbCfg := dbconfig.NewConfigFromEnv()
	database, err := setupDatabase(ctx, dbCfg)
	if err != nil {
		return err
	}

	services, err := setupServices(ctx, cfg, dbCfg, database)
	if err != nil {
		database.Close()
		return err
	}
	defer services.close()

	services.run(ctx, cfg)
	srv := setupServer(cfg, services)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", releaseVersion).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
