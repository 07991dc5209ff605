package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/duckgate/duckgate/internal/api"
	"github.com/duckgate/duckgate/internal/auth"
	"github.com/duckgate/duckgate/internal/config"
	"github.com/duckgate/duckgate/internal/gate"
	"github.com/duckgate/duckgate/internal/nl2sql"
	"github.com/duckgate/duckgate/internal/observability"
	duckdbengine "github.com/duckgate/duckgate/internal/query/duckdb"
	"github.com/duckgate/duckgate/internal/runner"
	"github.com/duckgate/duckgate/internal/schema"
	"github.com/duckgate/duckgate/internal/warehouse"
)

const schemaSampleRows = 3

func main() {
	cfg, err := config.LoadFromEnv("duckgate-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)

	db, err := warehouse.Open(context.Background(), warehouse.Config{
		Driver:          cfg.Warehouse.Driver,
		Path:            cfg.Warehouse.Path,
		DSN:             cfg.Warehouse.DSN,
		ReadOnly:        cfg.Warehouse.ReadOnly,
		Threads:         cfg.Warehouse.Threads,
		MemoryLimit:     cfg.Warehouse.MemoryLimit,
		MaxOpenConns:    cfg.Warehouse.MaxOpenConns,
		MaxIdleConns:    cfg.Warehouse.MaxIdleConns,
		ConnMaxIdleTime: cfg.Warehouse.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.Warehouse.ConnMaxLifetime,
	})
	if err != nil {
		logger.Error("failed to open warehouse", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	engine := duckdbengine.NewEngine(db)
	if cfg.Warehouse.AcquireTimeout > 0 {
		engine.AcquireTimeout = cfg.Warehouse.AcquireTimeout
	}

	// Configured keywords extend the built-in deny list rather than replace it.
	denied := gate.DefaultDeniedKeywords()
	denied = append(denied, cfg.Policy.DeniedKeywords...)
	policy := gate.NewPolicy(denied, cfg.Policy.DefaultRowLimit, cfg.Policy.HardRowCeiling, cfg.Policy.QueryTimeout)

	queryRunner := runner.New(gate.New(policy), engine, logger)
	introspector := schema.NewIntrospector(engine, schemaSampleRows)

	var translator nl2sql.Translator
	if cfg.AI.TranslateEnabled {
		translator, err = nl2sql.NewOpenAITranslator(nl2sql.OpenAIConfig{
			BaseURL:     cfg.AI.BaseURL,
			APIKey:      cfg.AI.APIKey,
			Model:       cfg.AI.Model,
			Temperature: cfg.AI.Temperature,
			Timeout:     cfg.AI.Timeout,
		})
		if err != nil {
			logger.Error("failed to initialize query translator", slog.Any("error", err))
			os.Exit(1)
		}
	}

	deps := api.Dependencies{
		Logger:            logger,
		Runner:            queryRunner,
		Translator:        translator,
		Schema:            introspector,
		DefaultRowLimit:   policy.DefaultRowLimit,
		Readiness:         api.CheckWarehouse(db.PingContext),
		DependencyTimeout: time.Second,
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("warehouse", cfg.Warehouse.Driver),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}
