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

	"github.com/joho/godotenv"
	"golang.org/x/term"

	"github.com/duckmesh/sqlassist/internal/assistant"
	"github.com/duckmesh/sqlassist/internal/auth"
	"github.com/duckmesh/sqlassist/internal/cli/sqlassist"
	"github.com/duckmesh/sqlassist/internal/config"
	"github.com/duckmesh/sqlassist/internal/export"
	"github.com/duckmesh/sqlassist/internal/nl2sql"
	"github.com/duckmesh/sqlassist/internal/observability"
	"github.com/duckmesh/sqlassist/internal/query/sqldb"
	"github.com/duckmesh/sqlassist/internal/schema"
	"github.com/duckmesh/sqlassist/internal/sqlguard"
	"github.com/duckmesh/sqlassist/internal/storage"
	s3store "github.com/duckmesh/sqlassist/internal/storage/s3"
)

func main() {
	os.Exit(run())
}

func run() int {
	envErr := godotenv.Load()

	cfg, err := config.LoadFromEnv("sqlassist")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		return 1
	}
	logger := observability.NewLogger(cfg, os.Stderr)
	if envErr != nil {
		logger.Debug("no .env file loaded", slog.Any("error", envErr))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := sqldb.Open(ctx, sqldb.DBConfig{
		Driver:          cfg.Database.Driver,
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		logger.Error("failed to open database", slog.Any("error", err))
		return 1
	}
	defer func() { _ = db.Close() }()

	var objectStore storage.ObjectStore
	if cfg.ObjectStore.Enabled() {
		store, err := s3store.New(ctx, s3store.Config{
			Endpoint:         cfg.ObjectStore.Endpoint,
			Region:           cfg.ObjectStore.Region,
			Bucket:           cfg.ObjectStore.Bucket,
			AccessKeyID:      cfg.ObjectStore.AccessKeyID,
			SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
			UseSSL:           cfg.ObjectStore.UseSSL,
			Prefix:           cfg.ObjectStore.Prefix,
			AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
		})
		if err != nil {
			logger.Error("failed to initialize object store", slog.Any("error", err))
			return 1
		}
		objectStore = store
	}

	catalogue, source, err := schema.Resolve(ctx, schema.Source{
		File:      cfg.Schema.File,
		ObjectKey: cfg.Schema.ObjectKey,
		Store:     objectStore,
	})
	if err != nil {
		logger.Error("failed to load schema catalogue", slog.Any("error", err))
		return 1
	}
	logger.Info("schema catalogue loaded", slog.String("source", source), slog.Any("tables", catalogue.TableNames()))

	completer, err := nl2sql.NewOpenAIClient(nl2sql.OpenAIConfig{
		BaseURL: cfg.AI.BaseURL,
		APIKey:  cfg.AI.APIKey,
		Model:   cfg.AI.Model,
		Timeout: cfg.AI.Timeout,
	})
	if err != nil {
		logger.Error("failed to initialize llm client; set OPENAI_API_KEY or SQLASSIST_AI_API_KEY", slog.Any("error", err))
		return 1
	}

	asst, err := assistant.New(assistant.Config{
		Schema:        catalogue.Describe(),
		Rules:         catalogue.Rules,
		HistoryWindow: cfg.Context.HistoryWindow,
		PreviewRows:   cfg.Context.PreviewRows,
		Temperature:   cfg.AI.Temperature,
		MaxTokens:     cfg.AI.MaxTokens,
		LLMTimeout:    cfg.AI.Timeout,
		SQLTimeout:    cfg.Database.QueryTimeout,
		RowLimit:      cfg.Database.RowLimit,
		Guard: sqlguard.Policy{
			ReadOnly: cfg.Guard.ReadOnly,
			Allowed:  cfg.Guard.AllowedStatements,
		},
	}, completer, sqldb.NewEngine(db), logger)
	if err != nil {
		logger.Error("failed to initialize assistant", slog.Any("error", err))
		return 1
	}

	if cfg.Ops.Address != "" {
		keys, err := auth.NewStaticAPIKeyValidator(cfg.Ops.APIKeys)
		if err != nil {
			logger.Error("invalid ops api keys", slog.Any("error", err))
			return 1
		}
		var guard func(http.Handler) http.Handler
		if keys.Len() > 0 {
			guard = auth.Middleware(logger, keys)
		}
		server := &http.Server{
			Addr:              cfg.Ops.Address,
			Handler:           observability.NewOpsHandler(logger, db.PingContext, time.Second, guard),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("starting ops listener", slog.String("addr", cfg.Ops.Address))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("ops listener failed", slog.Any("error", err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Ops.ShutdownTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Error("ops listener shutdown failed", slog.Any("error", err))
				_ = server.Close()
			}
		}()
	}

	return sqlassist.Run(ctx, os.Args[1:], sqlassist.Options{
		Assistant: asst,
		Exporter:  &export.Exporter{Dir: cfg.Export.Dir, Store: objectStore},
		Logger:    logger,
		Stdin:     os.Stdin,
		Stdout:    os.Stdout,
		Stderr:    os.Stderr,
		Color:     useColor(os.Stdout),
	})
}

func useColor(out *os.File) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return term.IsTerminal(int(out.Fd()))
}
