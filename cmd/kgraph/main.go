package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	lgrag "github.com/smallnest/langgraphgo/rag"
	lgstore "github.com/smallnest/langgraphgo/rag/store"
	lcopenai "github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"github.com/liquidgraph/kgraph/internal/config"
	"github.com/liquidgraph/kgraph/internal/db"
	dbRedis "github.com/liquidgraph/kgraph/internal/db/redis"
	"github.com/liquidgraph/kgraph/internal/engine"
	logpkg "github.com/liquidgraph/kgraph/internal/logger"
	"github.com/liquidgraph/kgraph/internal/metrics"
	ledgerrepo "github.com/liquidgraph/kgraph/internal/repository/ledger"
	vectorrepo "github.com/liquidgraph/kgraph/internal/repository/vector"
	chiTransport "github.com/liquidgraph/kgraph/internal/transport/chi"
	openaiEmb "github.com/liquidgraph/kgraph/internal/transport/openai"
	healthuc "github.com/liquidgraph/kgraph/internal/usecase/health"
	ingestuc "github.com/liquidgraph/kgraph/internal/usecase/ingest"
	queryuc "github.com/liquidgraph/kgraph/internal/usecase/query"
	"github.com/liquidgraph/kgraph/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting kgraph API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("vector_driver", cfg.Vector.Driver),
		zap.String("workdir", cfg.Graph.Workdir),
	)

	ctx := context.Background()

	// Register metric groups explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterIngestMetrics()

	// Embedding provider
	embedder := openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:     cfg.LLM.APIKey,
		BaseURL:    cfg.LLM.BaseURL,
		Model:      cfg.LLM.EmbeddingModel,
		Dimensions: cfg.LLM.Dimensions,
		Logger:     logger,
	})

	// Vector stores for the three namespaces, plus the ingest ledger
	var (
		store       db.Store
		chunks      lgrag.VectorStore
		entities    lgrag.VectorStore
		relations   lgrag.VectorStore
		ingestLedge ingestuc.Ledger
	)
	switch cfg.Vector.Driver {
	case "redis":
		store, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Vector.Addrs,
			Password: cfg.Vector.Password,
		})
		if err != nil {
			logger.Fatal("Failed to create vector store", zap.Error(err))
		}
		defer store.Close()

		if err := store.WaitForReady(ctx, time.Duration(cfg.Vector.ReadinessTimeout)*time.Second); err != nil {
			logger.Fatal("Vector database not ready", zap.Error(err))
		}
		logger.Info("Connected to vector database", zap.Strings("addrs", cfg.Vector.Addrs))

		chunks = mustNamespace(logger, store, embedder, cfg, cfg.Vector.Namespaces.Chunks)
		entities = mustNamespace(logger, store, embedder, cfg, cfg.Vector.Namespaces.Entities)
		relations = mustNamespace(logger, store, embedder, cfg, cfg.Vector.Namespaces.Relations)
		ingestLedge = ledgerrepo.NewRedisLedger(store, cfg.Vector.KeyPrefix)

	case "memory":
		chunks = vectorrepo.NewLocked(lgstore.NewInMemoryVectorStore(embedder))
		entities = vectorrepo.NewLocked(lgstore.NewInMemoryVectorStore(embedder))
		relations = vectorrepo.NewLocked(lgstore.NewInMemoryVectorStore(embedder))
		ingestLedge = ledgerrepo.NewMemoryLedger()
		logger.Info("Using in-memory vector stores")

	default:
		logger.Fatal("Unknown vector driver", zap.String("driver", cfg.Vector.Driver))
	}

	// LLM for extraction and answer synthesis
	llmClient, err := buildLLM(cfg)
	if err != nil {
		logger.Fatal("Failed to create LLM client", zap.Error(err))
	}
	llm := engine.NewLangchainLLM(llmClient)

	// Knowledge graph: in-memory topology + journal on the workdir
	kg, err := lgstore.NewKnowledgeGraph("memory://kgraph")
	if err != nil {
		logger.Fatal("Failed to create knowledge graph", zap.Error(err))
	}
	innerGraph, ok := kg.(engine.KnowledgeGraph)
	if !ok {
		logger.Fatal("Knowledge graph backend lacks mutation support",
			zap.String("type", fmt.Sprintf("%T", kg)))
	}
	journal, err := engine.OpenJournal(cfg.Graph.Workdir)
	if err != nil {
		logger.Fatal("Failed to open graph journal", zap.Error(err))
	}
	graph := engine.NewPersistentGraph(innerGraph, journal, entities, relations, logger)

	// The redis driver keeps vectors across restarts; only the memory
	// driver needs them rebuilt from the journal.
	if err := graph.Replay(ctx, cfg.Vector.Driver == "memory"); err != nil {
		logger.Fatal("Failed to replay graph journal", zap.Error(err))
	}
	defer func() {
		if err := graph.Close(); err != nil {
			logger.Error("Error closing graph", zap.Error(err))
		}
	}()

	eng, err := engine.NewGraphEngine(engine.Config{
		TopK:         cfg.Ingest.TopK,
		ChunkSize:    cfg.Ingest.ChunkSize,
		ChunkOverlap: cfg.Ingest.ChunkOverlap,
		EntityTypes:  cfg.Graph.EntityTypes,
		MaxDepth:     cfg.Graph.MaxDepth,
	}, llm, embedder, graph, chunks, entities, relations, logger)
	if err != nil {
		logger.Fatal("Failed to create engine", zap.Error(err))
	}

	// Use case services
	ingestSvc, err := ingestuc.New(eng, ingestLedge, ingestuc.Config{
		QueueSize:  cfg.Ingest.QueueSize,
		MinTextLen: cfg.Ingest.MinTextLen,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to create ingest service", zap.Error(err))
	}
	querySvc := queryuc.New(eng, logger)

	var pinger healthuc.DBPinger
	if store != nil {
		pinger = store
	}
	healthSvc := healthuc.New(eng, pinger, embedder, cfg.Graph.Workdir)

	// HTTP server
	server := chiTransport.NewServer(ingestSvc, querySvc, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.APIKeyAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Mount(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	// Drain queued extractions before the journal closes
	if err := ingestSvc.Close(time.Duration(cfg.HTTP.ShutdownSec) * time.Second); err != nil {
		logger.Error("Error draining ingest queue", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// mustNamespace builds a redis-backed vector namespace and ensures its
// search index exists.
func mustNamespace(
	logger *zap.Logger,
	store db.Store,
	embedder lgrag.Embedder,
	cfg config.Config,
	namespace string,
) lgrag.VectorStore {
	repo, err := vectorrepo.New(store, embedder, vectorrepo.Config{
		Namespace: namespace,
		KeyPrefix: cfg.Vector.KeyPrefix,
		Dimension: cfg.LLM.Dimensions,
	})
	if err != nil {
		logger.Fatal("Failed to create vector namespace",
			zap.String("namespace", namespace), zap.Error(err))
	}
	if err := repo.EnsureIndex(context.Background()); err != nil {
		logger.Fatal("Failed to ensure vector index",
			zap.String("namespace", namespace), zap.Error(err))
	}
	return repo
}

// buildLLM creates the langchaingo OpenAI client used for extraction
// and synthesis.
func buildLLM(cfg config.Config) (*lcopenai.LLM, error) {
	opts := []lcopenai.Option{
		lcopenai.WithToken(cfg.LLM.APIKey),
		lcopenai.WithModel(cfg.LLM.Model),
	}
	if cfg.LLM.BaseURL != "" {
		opts = append(opts, lcopenai.WithBaseURL(cfg.LLM.BaseURL))
	}
	return lcopenai.New(opts...)
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
