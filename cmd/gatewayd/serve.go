package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/saptiva-copilot/gateway/internal/auth"
	"github.com/saptiva-copilot/gateway/internal/cache"
	"github.com/saptiva-copilot/gateway/internal/chatpipeline"
	"github.com/saptiva-copilot/gateway/internal/config"
	"github.com/saptiva-copilot/gateway/internal/httpapi"
	"github.com/saptiva-copilot/gateway/internal/llmclient"
	"github.com/saptiva-copilot/gateway/internal/mcp"
	"github.com/saptiva-copilot/gateway/internal/objectstore"
	"github.com/saptiva-copilot/gateway/internal/observability"
	"github.com/saptiva-copilot/gateway/internal/prompts"
	"github.com/saptiva-copilot/gateway/internal/ragcache"
	"github.com/saptiva-copilot/gateway/internal/ratelimit"
	"github.com/saptiva-copilot/gateway/internal/retrieval"
	"github.com/saptiva-copilot/gateway/internal/sessions"
	"github.com/saptiva-copilot/gateway/internal/store"

	"github.com/redis/go-redis/v9"
)

func buildServeCmd() *cobra.Command {
	var configPath string
	var debug bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), configPath, debug)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the gateway config file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "enable debug logging")
	return cmd
}

// runServe loads configuration, wires every collaborator, and serves until a
// shutdown signal arrives.
func runServe(ctx context.Context, configPath string, debug bool) error {
	logLevel := slog.LevelInfo
	if debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	logger.Info("starting gateway", "version", version, "commit", commit, "config", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	mongoStore, err := store.Connect(ctx, cfg.Mongo.URL, cfg.Mongo.Database)
	if err != nil {
		return fmt.Errorf("connect mongo: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.URL})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer redisClient.Close()

	metrics := observability.NewMetrics()

	tokenService := auth.NewTokenService(cfg.Auth.JWTSecretKey, cfg.Auth.AccessExpiry, cfg.Auth.RefreshExpiry, cfg.Auth.ResetExpiry)
	blacklist := auth.NewRedisBlacklist(redisClient)
	authService := auth.NewService(mongoStore, tokenService, blacklist)

	llmClient := llmclient.New(llmclient.Config{
		BaseURL:           cfg.Saptiva.BaseURL,
		APIKey:            cfg.Saptiva.APIKey,
		ConnectTimeout:    cfg.Saptiva.ConnectTimeout,
		ReadTimeout:       cfg.Saptiva.ReadTimeout,
		TotalTimeout:      cfg.Saptiva.TotalTimeout,
		ForceMock:         cfg.Saptiva.ForceMock,
		AllowMockFallback: cfg.Saptiva.AllowMockFallback,
	})

	promptRegistry := prompts.New(logger)
	if cfg.Prompts.RegistryPath != "" {
		if err := promptRegistry.Load(cfg.Prompts.RegistryPath); err != nil {
			return fmt.Errorf("load prompt registry: %w", err)
		}
	}

	docCacheStore := ragcache.NewRedisStore(redisClient)
	docCache := ragcache.New(docCacheStore, logger)

	analyzer := retrieval.NewHeuristicQueryAnalyzer()
	chunkSource := retrieval.NewCachedChunkSource(docCacheStore)
	embedder := retrieval.NewHTTPEmbedder(cfg.Retrieval.EmbeddingBaseURL, cfg.Retrieval.EmbeddingAPIKey, cfg.Retrieval.Timeout)
	searcher := retrieval.NewHTTPVectorSearcher(cfg.Retrieval.VectorSearchBaseURL, cfg.Retrieval.VectorSearchAPIKey, cfg.Retrieval.Timeout)
	orchestrator := retrieval.NewOrchestrator(analyzer, chunkSource, embedder, searcher, logger)

	taskManager := mcp.NewTaskManager(24*time.Hour, logger)
	if err := taskManager.Start(); err != nil {
		return fmt.Errorf("start task manager: %w", err)
	}
	defer taskManager.Stop()

	var objects objectstore.Store
	if cfg.Files.Bucket != "" {
		s3store, err := objectstore.New(ctx, objectstore.Config{
			Bucket:          cfg.Files.Bucket,
			Region:          cfg.Files.Region,
			Endpoint:        cfg.Files.Endpoint,
			Prefix:          cfg.Files.Prefix,
			AccessKeyID:     cfg.Files.AccessKeyID,
			SecretAccessKey: cfg.Files.SecretAccessKey,
			UsePathStyle:    cfg.Files.UsePathStyle,
			PresignExpiry:   cfg.Files.PresignExpiry,
			TTLDays:         cfg.Files.TTLDays,
		})
		if err != nil {
			return fmt.Errorf("connect object store: %w", err)
		}
		objects = s3store
	} else {
		logger.Warn("files.bucket not configured, excel_analyzer tool will be unavailable")
	}

	registry := mcp.NewLazyRegistry(logger)
	registerTools(registry, docCache, objects, taskManager, cfg)

	catalog := mcp.NewMarkdownCatalog(registry)

	limiterStore := ratelimit.NewRedisStore(redisClient)
	limiter := ratelimit.New(limiterStore, logger)
	defaultRate := ratelimit.Config{CallsPerMinute: 30, CallsPerHour: cfg.Server.RateLimitPerHr}

	resultCache := mcp.NewRedisResultCache(redisClient)
	dedupe := cache.NewDedupeCache(cache.DedupeCacheOptions{TTL: 5 * time.Minute, MaxSize: 10000})

	dispatcher := mcp.NewDispatcher(registry, limiter, defaultRate, resultCache, dedupe, metrics, logger)

	chatService := chatpipeline.NewService(promptRegistry, llmClient, catalog)
	standardHandler := chatpipeline.NewStandardHandler(docCache, chatService).WithOrchestrator(orchestrator)
	auditHandler := chatpipeline.NewAuditCommandHandler(dispatcher)
	chain := chatpipeline.NewChain(auditHandler, standardHandler)

	historyCache := sessions.NewRedisHistoryCache(redisClient)
	sessionService := sessions.NewService(mongoStore, taskManager, historyCache)

	server := httpapi.NewServer(httpapi.Deps{
		Config:      cfg,
		Auth:        authService,
		Chat:        chain,
		ChatService: chatService,
		Standard:    standardHandler,
		Sessions:    sessionService,
		Dispatcher:  dispatcher,
		Registry:    registry,
		Tasks:       taskManager,
		CacheAdmin:  resultCache,
		Limiter:     limiter,
		Metrics:     metrics,
		Logger:      logger,
	})

	if err := server.Start(cfg.Server.Addr); err != nil {
		return fmt.Errorf("start http server: %w", err)
	}

	shutdownCtx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	<-shutdownCtx.Done()

	logger.Info("shutdown signal received, draining in-flight requests")
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	if err := server.Stop(stopCtx); err != nil {
		return fmt.Errorf("stop http server: %w", err)
	}

	logger.Info("gateway stopped")
	return nil
}
