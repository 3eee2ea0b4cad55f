package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"wydatki/internal/backend"
	"wydatki/internal/cache"
	"wydatki/internal/cli"
	"wydatki/internal/core"
	apphttp "wydatki/internal/http"
	"wydatki/internal/identity"
	"wydatki/internal/ledger"
	"wydatki/internal/log"
	"wydatki/internal/settings"
	"wydatki/internal/summary"
)

func main() {
	cli.LoadEnvFile()
	cfg, logger := cli.LoadAndValidateConfig()
	ctx := context.Background()

	loc, _ := cfg.Location() // validated above

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

	// Settings cache (disabled with SETTINGS_CACHE_SIZE=0)
	var settingsCache cache.Cache[core.BudgetSettings]
	cacheManager := cache.NewManager()
	if cfg.SettingsCacheSize > 0 {
		lru := cache.NewLRU[core.BudgetSettings](cfg.SettingsCacheSize, cfg.SettingsCacheTTL)
		cacheManager.Register(lru)
		cacheManager.Start(ctx, cfg.SettingsCacheTTL)
		settingsCache = lru
	}

	records := ledger.NewRecordStore(result.Store)
	settingsSvc := settings.NewService(result.Store, settingsCache)

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Ledger:   ledger.NewService(result.Store, time.Now),
		Records:  records,
		Settings: settingsSvc,
		Summary:  summary.NewService(records, settingsSvc, loc, nil),
		Identity: identity.NewHeaderProvider(cfg.AuthHeader),
		Ping:     result.Ping,
		Logger:   logger,
	})
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	shutdownCtx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.ErrorContext(ctx, "Server shutdown error", log.FieldError, err)
		}
		cacheManager.Stop()
		if err := result.Close(); err != nil {
			logger.ErrorContext(ctx, "Backend cleanup error", log.FieldError, err)
		}
	})

	logger.InfoContext(ctx, "Starting wydatki server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"timezone", loc.String())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.ErrorContext(ctx, "Server error", log.FieldError, err, "port", cfg.Port)
		_ = result.Close()
		os.Exit(1)
	}

	cli.WaitForShutdown(shutdownCtx, done)
	logger.InfoContext(ctx, "Server stopped gracefully")
}
