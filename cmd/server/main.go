// Package main is the entry point for the eduagent API server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/im-zhong/eduagent/agent"
	"github.com/im-zhong/eduagent/internal/api"
	"github.com/im-zhong/eduagent/internal/auth"
	"github.com/im-zhong/eduagent/internal/cache"
	"github.com/im-zhong/eduagent/internal/config"
	"github.com/im-zhong/eduagent/internal/store"
	"github.com/im-zhong/eduagent/llm"
	"github.com/im-zhong/eduagent/rag"
	"github.com/im-zhong/eduagent/vectorstore"
	"github.com/im-zhong/eduagent/vectorstore/memory"
	"github.com/im-zhong/eduagent/vectorstore/pgvector"
	"github.com/im-zhong/eduagent/vectorstore/qdrant"
	"github.com/im-zhong/eduagent/vectorstore/redisvec"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to configuration file")
	flag.Parse()

	bootLogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfgManager, err := config.NewManager(*configPath, bootLogger)
	if err != nil {
		bootLogger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	cfg := cfgManager.Get()

	logger := buildLogger(cfg.Logging)
	slog.SetDefault(logger)
	logger.Info("starting eduagent server", "project", cfg.Project.Name, "env", cfg.Project.Environment)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := cfgManager.Watch(ctx); err != nil {
		logger.Warn("config hot-reload disabled", "error", err)
	}

	// Relational store
	db, err := store.New(cfg.Database.DSN)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	startupCtx, startupCancel := context.WithTimeout(ctx, 30*time.Second)
	defer startupCancel()

	if err := db.Ping(startupCtx); err != nil {
		logger.Error("database unreachable", "error", err)
		os.Exit(1)
	}
	if err := db.EnsureSchema(startupCtx); err != nil {
		logger.Error("failed to ensure database schema", "error", err)
		os.Exit(1)
	}

	// Vector store backends
	registry := vectorstore.NewRegistry()
	memory.Register(registry)
	pgvector.Register(registry)
	qdrant.Register(registry)
	redisvec.Register(registry)

	vectors, err := buildVectorStore(startupCtx, registry, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize vector store", "backend", cfg.VectorStore.Backend, "error", err)
		os.Exit(1)
	}

	// LLM clients
	var chat rag.ChatClient
	if c := buildLLMClient(cfg, cfg.LLM.ChatProvider); c != nil {
		chat = c
		logger.Info("chat provider configured", "provider", cfg.LLM.ChatProvider)
	}
	var embedder rag.Embedder
	if c := buildLLMClient(cfg, cfg.LLM.EmbeddingProvider); c != nil {
		embedder = c
		logger.Info("embedding provider configured", "provider", cfg.LLM.EmbeddingProvider)
	}

	// Extraction and retrieval strategies
	factory := rag.NewFactory(rag.Deps{
		Chat:        chat,
		Embedder:    embedder,
		VectorStore: vectors,
		Knowledge:   db,
		Logger:      logger,
	})

	extractionType := rag.ExtractionRuleBased
	if chat != nil {
		extractionType = rag.ExtractionHybrid
	}
	extraction, err := factory.CreateExtractionStrategy(extractionType)
	if err != nil {
		logger.Error("failed to create extraction strategy", "type", extractionType, "error", err)
		os.Exit(1)
	}

	retrievalType := rag.RetrievalKeyword
	if embedder != nil && vectors != nil {
		retrievalType = rag.RetrievalHybrid
	}
	retrieval, err := factory.CreateRetrievalStrategy(retrievalType)
	if err != nil {
		logger.Error("failed to create retrieval strategy", "type", retrievalType, "error", err)
		os.Exit(1)
	}
	if cfg.Cache.Enabled {
		retrieval = cache.NewRetrievalCache(retrieval, cfg.Cache.RetrievalTTL)
	}
	logger.Info("strategies ready", "extraction", extractionType, "retrieval", retrieval.Name())

	// Session tokens
	var tokens *auth.TokenManager
	if cfg.Auth.TokenSecret != "" {
		tokens, err = auth.NewTokenManager(cfg.Auth.TokenSecret, cfg.Auth.TokenTTL)
		if err != nil {
			logger.Error("failed to initialize token manager", "error", err)
			os.Exit(1)
		}
	} else {
		logger.Warn("auth.token_secret not set, authenticated endpoints disabled")
	}

	var analytics *cache.AnalyticsCache
	if cfg.Cache.Enabled {
		analytics = cache.NewAnalyticsCache(cfg.Cache.AnalyticsTTL)
	}

	// Agents and tools
	manager := agent.NewManager(logger)
	manager.AddAgent(agent.NewTutorAgent(retrieval, chat))
	manager.AddAgent(agent.NewAssessmentAgent(db))
	manager.AddAgent(agent.NewQuestionGeneratorAgent(db))
	manager.AddTool(agent.NewRAGTool(retrieval))
	manager.AddTool(agent.NewAnalyticsTool(db))
	manager.AddTool(agent.NewAssessmentTool(db))
	manager.AddTool(agent.NewQuestionTool(db))

	handler := api.NewHandler(api.Deps{
		Gateway:    db,
		Manager:    manager,
		Extraction: extraction,
		Retrieval:  retrieval,
		Embedder:   embedder,
		Vectors:    vectors,
		Tokens:     tokens,
		Analytics:  analytics,
		Logger:     logger,
	})

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	if cfg.Metrics.Enabled {
		mux.Handle("GET "+cfg.Metrics.Path, promhttp.Handler())
	}

	rpm := 0
	if cfg.RateLimit.Enabled {
		rpm = cfg.RateLimit.RequestsPerMinute
	}
	httpHandler := api.Chain(logger, rpm, cfg.RateLimit.BurstSize)(mux)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("server listening", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	if vectors != nil {
		if err := vectors.Disconnect(shutdownCtx); err != nil {
			logger.Warn("vector store disconnect error", "error", err)
		}
	}
	logger.Info("server stopped")
}

func buildLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// buildVectorStore creates, connects, and indexes the configured backend.
func buildVectorStore(ctx context.Context, registry *vectorstore.Registry, cfg *config.Config, logger *slog.Logger) (vectorstore.Store, error) {
	vsCfg := vectorstore.Config{
		Backend:          cfg.VectorStore.Backend,
		ConnectionString: cfg.VectorStore.ConnectionString,
		CollectionName:   cfg.VectorStore.CollectionName,
		Dimension:        cfg.VectorStore.Dimension,
		DistanceMetric:   vectorstore.DistanceMetric(cfg.VectorStore.DistanceMetric),
	}
	// The Redis backend can share the session Redis instance.
	if vsCfg.Backend == redisvec.BackendName && vsCfg.ConnectionString == "" {
		vsCfg.ConnectionString = cfg.Redis.Addr
	}

	vectors, err := registry.Create(vsCfg)
	if err != nil {
		return nil, err
	}
	if err := vectors.Connect(ctx); err != nil {
		return nil, err
	}
	if err := vectors.CreateIndex(ctx, vsCfg.Dimension); err != nil {
		return nil, err
	}
	logger.Info("vector store ready", "backend", vsCfg.Backend, "collection", vsCfg.CollectionName)
	return vectors, nil
}

// buildLLMClient constructs the named provider's client, nil when the
// provider is not configured.
func buildLLMClient(cfg *config.Config, name string) *llm.Client {
	if name == "" {
		return nil
	}
	p, ok := cfg.Provider(name)
	if !ok {
		return nil
	}

	opts := make([]llm.Option, 0, 4)
	if p.BaseURL != "" {
		opts = append(opts, llm.WithBaseURL(p.BaseURL))
	}
	if p.ChatModel != "" {
		opts = append(opts, llm.WithChatModel(p.ChatModel))
	}
	if p.EmbeddingModel != "" {
		opts = append(opts, llm.WithEmbeddingModel(p.EmbeddingModel))
	}
	if p.Timeout > 0 {
		opts = append(opts, llm.WithHTTPClient(&http.Client{Timeout: p.Timeout}))
	}

	switch p.Name {
	case "openai":
		return llm.NewOpenAI(p.APIKey, opts...)
	case "deepseek":
		return llm.NewDeepSeek(p.APIKey, opts...)
	case "qwen":
		return llm.NewQwen(p.APIKey, opts...)
	default:
		return llm.New(p.Name, append([]llm.Option{llm.WithAPIKey(p.APIKey)}, opts...)...)
	}
}
