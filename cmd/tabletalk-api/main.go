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

	"github.com/tabletalk/tabletalk/internal/api"
	"github.com/tabletalk/tabletalk/internal/auth"
	"github.com/tabletalk/tabletalk/internal/config"
	"github.com/tabletalk/tabletalk/internal/dataset"
	"github.com/tabletalk/tabletalk/internal/demo"
	"github.com/tabletalk/tabletalk/internal/observability"
	"github.com/tabletalk/tabletalk/internal/schema"
	"github.com/tabletalk/tabletalk/internal/session"
	"github.com/tabletalk/tabletalk/internal/store"
	"github.com/tabletalk/tabletalk/internal/store/duckdb"
	s3store "github.com/tabletalk/tabletalk/internal/storage/s3"
	"github.com/tabletalk/tabletalk/internal/translate"
	"github.com/tabletalk/tabletalk/internal/translate/llm"
)

func main() {
	cfg, err := config.LoadFromEnv("tabletalk-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)

	datasetLimits := dataset.Limits{
		MaxRows:    cfg.Limits.MaxDatasetRows,
		MaxColumns: cfg.Limits.MaxDatasetColumns,
		MaxBytes:   cfg.Limits.MaxUploadBytes,
	}

	var objectStore *s3store.Store
	if cfg.ObjectStore.Enabled {
		objectStore, err = s3store.New(context.Background(), s3store.Config{
			Endpoint:         cfg.ObjectStore.Endpoint,
			Region:           cfg.ObjectStore.Region,
			Bucket:           cfg.ObjectStore.Bucket,
			AccessKeyID:      cfg.ObjectStore.AccessKeyID,
			SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
			UseSSL:           cfg.ObjectStore.UseSSL,
			AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
		})
		if err != nil {
			logger.Error("failed to initialize object store", slog.Any("error", err))
			os.Exit(1)
		}
	}
	if cfg.Demo.SeedObjectStore && objectStore != nil {
		if err := demo.SeedObjectStore(context.Background(), objectStore, cfg.Demo.Rows, cfg.Demo.Seed); err != nil {
			logger.Warn("demo object seeding failed", slog.Any("error", err))
		} else {
			logger.Info("demo object seeded", slog.String("key", demo.ObjectKey))
		}
	}

	strategies := []translate.Strategy{translate.NewPatternStrategy()}
	if cfg.Provider.Kind != config.ProviderNone {
		var provider llm.Provider
		switch cfg.Provider.Kind {
		case config.ProviderOpenAI:
			provider, err = llm.NewOpenAIProvider(llm.OpenAIConfig{
				BaseURL:     cfg.Provider.BaseURL,
				APIKey:      cfg.Provider.APIKey,
				Model:       cfg.Provider.Model,
				Temperature: cfg.Provider.Temperature,
				Timeout:     cfg.Provider.Timeout,
			})
		case config.ProviderAnthropic:
			provider, err = llm.NewAnthropicProvider(llm.AnthropicConfig{
				APIKey:    cfg.Provider.APIKey,
				Model:     cfg.Provider.Model,
				MaxTokens: cfg.Provider.MaxTokens,
			})
		}
		if err != nil {
			logger.Error("failed to initialize provider", slog.Any("error", err))
			os.Exit(1)
		}
		strategies = append(strategies, llm.NewStrategy(provider, llm.Config{
			Timeout:      cfg.Provider.Timeout,
			SampleValues: cfg.Session.SampleValues,
		}))
	}

	newStore := func() (store.Store, error) {
		return duckdb.Open(cfg.Limits.QueryRowCap)
	}
	// A fresh cache per engine keeps entries from outliving the dataset
	// they were translated against.
	newEngine := func(sc schema.Context, exec translate.Executor) *translate.Engine {
		var cache *translate.Cache
		if cfg.Cache.Enabled {
			cache = translate.NewCache(cfg.Cache.MaxEntries, cfg.Cache.IncludeLLM)
		}
		return translate.NewEngine(sc, exec, strategies, translate.EngineConfig{
			MaxLimit: cfg.Limits.MaxRowLimit,
			Cache:    cache,
			Logger:   logger,
		})
	}
	registry, err := session.NewRegistry(newStore, newEngine, session.Config{
		TTL:           cfg.Session.TTL,
		SweepInterval: cfg.Session.SweepInterval,
		MaxSessions:   cfg.Session.MaxSessions,
	}, logger)
	if err != nil {
		logger.Error("failed to build session registry", slog.Any("error", err))
		os.Exit(1)
	}

	readiness := []api.ReadinessCheck{api.CheckProviderConfig(cfg)}
	if objectStore != nil {
		readiness = append(readiness, api.CheckObjectStore(objectStore))
	}

	deps := api.Dependencies{
		Logger:            logger,
		Sessions:          registry,
		DemoData:          func() dataset.Dataset { return demo.Dataset(cfg.Demo.Rows, cfg.Demo.Seed) },
		DatasetLimits:     datasetLimits,
		MaxUploadBytes:    cfg.Limits.MaxUploadBytes,
		AdminMutations:    cfg.Profile == config.ProfileProd,
		Readiness:         api.CombineReadinessChecks(readiness...),
		DependencyTimeout: time.Second,
	}
	if objectStore != nil {
		deps.Objects = dataset.NewObjectSource(objectStore, datasetLimits)
	}
	if cfg.PGImport.Enabled {
		importer, err := dataset.OpenPostgres(context.Background(), cfg.PGImport.DSN, datasetLimits)
		if err != nil {
			logger.Error("failed to connect import source", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() { _ = importer.Close() }()
		deps.Imports = importer
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

	go func() { _ = registry.Run(ctx) }()

	go func() {
		logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address))
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
	registry.Shutdown()
}
