// Command papyrusd serves the document QA API: document upload and listing,
// background ingestion tasks, and SSE-streamed answers.
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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	papyrus "github.com/fzimmer/papyrus"
	"github.com/fzimmer/papyrus/ingest"
	"github.com/fzimmer/papyrus/internal/config"
	"github.com/fzimmer/papyrus/internal/jobs"
	"github.com/fzimmer/papyrus/observer"
	"github.com/fzimmer/papyrus/provider/openaicompat"
	"github.com/fzimmer/papyrus/store/postgres"
	"github.com/fzimmer/papyrus/store/sqlite"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if err := run(logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	_ = godotenv.Load()
	cfg := config.Load(os.Getenv("PAPYRUS_CONFIG"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Providers
	var llm papyrus.Generator = openaicompat.NewGenerator(
		cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.BaseURL,
		openaicompat.WithName(cfg.LLM.Provider),
		openaicompat.WithTemperature(cfg.LLM.Temperature),
	)
	var embedding papyrus.EmbeddingProvider = openaicompat.NewEmbedding(
		cfg.Embedding.APIKey, cfg.Embedding.Model, cfg.Embedding.BaseURL,
		cfg.Embedding.Dimensions,
		openaicompat.WithEmbeddingName(cfg.Embedding.Provider),
	)

	// Store
	var store papyrus.Store
	switch cfg.Database.Driver {
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.Database.PostgresURL)
		if err != nil {
			return err
		}
		defer pool.Close()
		store = postgres.New(pool, postgres.WithEmbeddingDimension(cfg.Embedding.Dimensions))
		logger.Info("using postgres store")
	default:
		store = sqlite.New(cfg.Database.SQLitePath, sqlite.WithLogger(logger))
		logger.Info("using sqlite store", "path", cfg.Database.SQLitePath)
	}

	// Observability
	if cfg.Observer.Enabled {
		inst, shutdown, err := observer.Init(ctx)
		if err != nil {
			return err
		}
		defer func() {
			shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(shutCtx)
		}()
		llm = observer.WrapGenerator(llm, inst)
		embedding = observer.WrapEmbedding(embedding, inst)
		store = observer.WrapStore(store, inst)
		logger.Info("observability enabled")
	}

	if err := store.Init(ctx); err != nil {
		return err
	}
	defer store.Close()

	pipeline := ingest.NewPipeline(store, embedding, llm,
		ingest.WithChildWindow(cfg.Ingest.ChildWindow),
		ingest.WithChildOverlap(cfg.Ingest.ChildOverlap),
		ingest.WithMinParagraphChars(cfg.Ingest.MinParagraphChars),
		ingest.WithLogger(logger),
	)
	engine := papyrus.NewEngine(store, embedding, llm,
		papyrus.WithTopK(cfg.Query.TopK),
		papyrus.WithRoutingThreshold(float32(cfg.Query.RoutingThreshold)),
		papyrus.WithHistoryWindow(cfg.Query.HistoryWindow),
		papyrus.WithHyDE(cfg.Query.HyDE),
		papyrus.WithLogger(logger),
	)

	queue := jobs.New(cfg.Server.Workers, jobs.WithLogger(logger))
	defer queue.Close()

	srv := &http.Server{
		Addr: cfg.Server.Addr,
		Handler: newHandler(handlerDeps{
			store:       store,
			engine:      engine,
			pipeline:    pipeline,
			queue:       queue,
			logger:      logger,
			uploadLimit: int64(cfg.Server.UploadLimitMB) << 20,
		}),
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
	}()

	logger.Info("listening", "addr", cfg.Server.Addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
