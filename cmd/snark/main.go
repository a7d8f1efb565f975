package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/snarkbot/snark/internal/api"
	"github.com/snarkbot/snark/internal/config"
	"github.com/snarkbot/snark/internal/convo"
	"github.com/snarkbot/snark/internal/cooldown"
	"github.com/snarkbot/snark/internal/dispatch"
	"github.com/snarkbot/snark/internal/embedding"
	"github.com/snarkbot/snark/internal/executor"
	"github.com/snarkbot/snark/internal/gateway"
	"github.com/snarkbot/snark/internal/intent"
	"github.com/snarkbot/snark/internal/memory"
	"github.com/snarkbot/snark/internal/provider"
	"github.com/snarkbot/snark/internal/rag"
	pgstore "github.com/snarkbot/snark/internal/store"
	"github.com/snarkbot/snark/internal/vectorstore"
)

func main() {
	_ = godotenv.Load()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	logger.Info("Starting snark...")

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/snark.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.String("path", cfgPath), zap.Error(err))
	}
	logger.Info("Config loaded", zap.String("path", cfgPath))

	// Provider router with purpose routes.
	models := provider.NewRouter(logger)
	for _, pc := range cfg.Providers {
		provCfg := provider.Config{
			ID: pc.ID, Type: pc.Type, Name: pc.Name,
			Endpoint: pc.Endpoint, APIKey: pc.APIKey, Extra: pc.Extra,
		}
		switch pc.Type {
		case "openai":
			models.Register(provider.NewOpenAIProvider(provCfg, logger))
		case "anthropic":
			models.Register(provider.NewAnthropicProvider(provCfg, logger))
		default:
			logger.Warn("unknown provider type", zap.String("id", pc.ID), zap.String("type", pc.Type))
		}
	}
	for purpose, route := range cfg.Routes {
		models.SetRoute(purpose, provider.Route{Provider: route.Provider, Model: route.Model})
		if len(route.Fallbacks) > 0 {
			fallbacks := make([]provider.Route, len(route.Fallbacks))
			for i, id := range route.Fallbacks {
				fallbacks[i] = provider.Route{Provider: id, Model: route.Model}
			}
			models.SetFallbacks(purpose, fallbacks)
		}
	}

	// Durable memory: Postgres for facts, Redis for the channel cache.
	var store *pgstore.Store
	if cfg.Database.Postgres.DSN != "" {
		ps, pgErr := pgstore.New(cfg.Database.Postgres.DSN, logger)
		if pgErr != nil {
			logger.Warn("PostgreSQL unavailable, running without durable memory", zap.Error(pgErr))
		} else {
			if mErr := ps.Migrate(context.Background(), "migrations"); mErr != nil {
				logger.Fatal("migration failed", zap.Error(mErr))
			}
			store = ps
			defer ps.Close()
		}
	}
	mem := memory.New(store, memory.KeepForever(), logger)

	var cache *memory.ContextCache
	var ledger cooldown.Ledger
	if cfg.Database.Redis.URL != "" {
		cc, redisErr := memory.NewContextCache(cfg.Database.Redis.URL, logger)
		if redisErr != nil {
			logger.Warn("Redis unavailable, running without the context cache", zap.Error(redisErr))
		} else {
			cache = cc
			defer cc.Close()
		}
		rl, redisErr := cooldown.NewRedisLedger(cfg.Database.Redis.URL, logger)
		if redisErr != nil {
			logger.Warn("Redis unavailable for cooldowns, using the in-process ledger", zap.Error(redisErr))
			ledger = cooldown.NewMemoryLedger()
		} else {
			ledger = rl
			defer rl.Close()
		}
	} else {
		ledger = cooldown.NewMemoryLedger()
	}

	// Retrieval: embeddings + Qdrant. Optional; the bot degrades to
	// conversation-only context without it.
	var index *rag.Index
	var retr executor.Retriever
	if cfg.Database.Qdrant.Host != "" {
		qdrant, qErr := vectorstore.NewClient(vectorstore.QdrantConfig{
			Host: cfg.Database.Qdrant.Host,
			Port: cfg.Database.Qdrant.Port,
		})
		if qErr != nil {
			logger.Warn("Qdrant unavailable, running without retrieval", zap.Error(qErr))
		} else {
			defer qdrant.Close()
			var embedder embedding.Provider
			embCfg := embedding.Config{
				Provider:  cfg.Embedding.Provider,
				Endpoint:  cfg.Embedding.Endpoint,
				Model:     cfg.Embedding.Model,
				APIKey:    cfg.Embedding.APIKey,
				Dimension: cfg.Embedding.Dimension,
			}
			if embCfg.Provider == "local" {
				embedder = embedding.NewLocalProvider(embCfg)
			} else {
				embedder = embedding.NewAPIProvider(embCfg)
			}
			idx := rag.New(embedder, qdrant, logger)
			if initErr := idx.Init(context.Background()); initErr != nil {
				logger.Warn("retrieval init failed, running without it", zap.Error(initErr))
			} else {
				index = idx
				retr = rag.NewAdapter(idx)
			}
		}
	}

	gate, err := intent.NewGate(cfg.Bot.ActivationPattern)
	if err != nil {
		logger.Fatal("bad activation pattern", zap.Error(err))
	}

	// Gateway and adapters.
	gw := gateway.NewGateway(logger)
	var restAdapter *gateway.RESTAdapter
	if cfg.Gateway.REST.Enabled {
		restAdapter = gateway.NewRESTAdapter(logger)
		gw.Register(restAdapter)
	}
	if cfg.Gateway.Discord.Enabled && cfg.Gateway.Discord.BotToken != "" {
		gw.Register(gateway.NewDiscordAdapter(cfg.Gateway.Discord.BotToken, logger))
	}
	if cfg.Gateway.Slack.Enabled && cfg.Gateway.Slack.BotToken != "" {
		gw.Register(gateway.NewSlackAdapter(cfg.Gateway.Slack.BotToken, cfg.Gateway.Slack.AppToken, logger))
	}

	recon := convo.NewReconstructor(gw, recentOrNil(cache), convo.Config{
		ReplyDepth:    cfg.Context.ReplyDepth,
		ChannelWindow: cfg.Context.ChannelWindow,
		MaxAge:        cfg.Context.HistoryWindow(),
	}, logger)

	router := intent.NewRouter(models, cfg.Bot.SystemPrompt, logger)

	registry := executor.NewRegistry(executor.Deps{
		Gateway: gw,
		Models:  models,
		Memory:  mem,
		Index:   retr,
		Logger:  logger,
	})

	cooldowns := make(map[intent.Capability]time.Duration)
	for name := range cfg.Cooldowns.Seconds {
		cooldowns[intent.Capability(name)] = cfg.Cooldowns.Duration(name)
	}

	dispatcher := dispatch.New(gw, gate, recon, router, registry, ledger, mem, cache,
		indexerOrNil(index), retr, dispatch.Config{
			Cooldowns:       cooldowns,
			RefundOnFailure: cfg.Cooldowns.RefundOnFailure,
			CallTimeout:     cfg.Context.CallTimeout(),
		}, logger)

	// Wire the handler before connecting so no early message is dropped.
	gw.SetHandler(dispatcher.Handle)
	if err := gw.ConnectAll(context.Background()); err != nil {
		logger.Warn("some gateway adapters failed to connect", zap.Error(err))
	}

	// Ops API.
	handler := api.NewHandler(store, models, ledger, restAdapter, gw, logger)
	port := cfg.Server.Port
	if port == 0 {
		port = 3210
	}
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: handler.Router(),
	}

	go func() {
		logger.Info("snark listening", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown", zap.Error(err))
	}
	if err := gw.Close(); err != nil {
		logger.Warn("gateway close", zap.Error(err))
	}
}

// indexerOrNil avoids handing the dispatcher a non-nil interface wrapping
// a nil *rag.Index.
func indexerOrNil(index *rag.Index) dispatch.Indexer {
	if index == nil {
		return nil
	}
	return index
}

func recentOrNil(cache *memory.ContextCache) convo.RecentSource {
	if cache == nil {
		return nil
	}
	return cache
}
