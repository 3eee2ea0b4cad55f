package main

import (
	"context"
	"os"
	"time"

	"wydatki/internal/backend"
	"wydatki/internal/cli"
	"wydatki/internal/ledger"
	"wydatki/internal/log"
	"wydatki/internal/mirror"
)

func main() {
	cli.LoadEnvFile()
	cfg, logger := cli.LoadAndValidateConfig()
	logger = logger.WithComponent(log.ComponentMirror)
	ctx := context.Background()

	if err := cfg.ValidateMirror(); err != nil {
		logger.ErrorContext(ctx, "Mirror configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}

	backendConfig, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.ErrorContext(ctx, "Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	result, err := backend.NewFactory(logger).CreateBackend(ctx, backendConfig)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to initialize backend", log.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	writer, err := mirror.NewSheetsWriter(ctx, mirror.Credentials{
		JSON: cfg.GoogleServiceAccountJSON,
		File: cfg.GoogleServiceAccountFile,
	}, cfg.GoogleSpreadsheetID, cfg.MirrorSheetPrefix)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to initialize Google Sheets client", log.FieldError, err)
		_ = result.Close()
		os.Exit(1)
	}

	runner := mirror.NewRunner(ledger.NewRecordStore(result.Store), writer, cfg.MirrorOwners, logger)

	runDone := make(chan struct{})
	shutdownCtx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		select {
		case <-runDone:
		case <-ctx.Done():
		}
		if err := result.Close(); err != nil {
			logger.ErrorContext(ctx, "Backend cleanup error", log.FieldError, err)
		}
	})

	logger.InfoContext(ctx, "Starting wydatki-mirror",
		"backend", cfg.DataBackend,
		"spreadsheet_id", cfg.GoogleSpreadsheetID,
		"owners", len(cfg.MirrorOwners))

	err = runner.Run(shutdownCtx)
	close(runDone)
	if err != nil {
		logger.ErrorContext(ctx, "Mirror stopped with error", log.FieldError, err)
		_ = result.Close()
		os.Exit(1)
	}

	cli.WaitForShutdown(shutdownCtx, done)
	logger.InfoContext(ctx, "Mirror stopped")
}
