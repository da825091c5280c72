package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"propertychat/internal/config"
	"propertychat/internal/handler"
	"propertychat/internal/logging"
	"propertychat/internal/repository"
	"propertychat/internal/service"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP chat server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	// Print version info
	log.Printf("Property Chat")
	log.Printf("Version: %s", Version)
	log.Printf("Build Time: %s", BuildTime)
	log.Printf("Git Commit: %s", GitCommit)
	log.Println("")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := logging.New(cfg.Logging, os.Stdout)
	slog.SetDefault(logger)

	// Set Gin mode
	gin.SetMode(cfg.Server.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database connection when anything is backed by PostgreSQL
	var repo *repository.PostgresRepository
	if cfg.NeedsPostgres() {
		repo, err = repository.NewPostgresRepository(
			cfg.GetPostgreSQLDSN(),
			cfg.PostgreSQL.MaxConnections,
			cfg.PostgreSQL.MaxIdleConnections,
			logger,
		)
		if err != nil {
			return err
		}
		defer repo.Close()
		logger.Info("connected to PostgreSQL")

		if cfg.PostgreSQL.BootstrapSchema {
			if err := repo.EnsureSchema(ctx); err != nil {
				return err
			}
		}
	}

	source, err := newPropertySource(cfg, repo)
	if err != nil {
		return err
	}

	store, err := newSessionStore(ctx, cfg, repo, logger)
	if err != nil {
		return err
	}
	defer store.Close()
	logger.Info("session store ready", "driver", cfg.Session.Store)

	// Initialize services
	cache := service.NewInventoryCache(source, service.CacheOptions{
		TTL:         cfg.Cache.TTL,
		LoadTimeout: cfg.Cache.LoadTimeout,
	}, logger)
	chatService := service.NewChatService(
		store,
		cache,
		service.NewIntentParser(),
		service.NewRanker(cfg.Chat.MaxResults),
		service.NewResponseComposer(),
		service.ChatOptions{
			HistoryLimit:   cfg.Chat.HistoryLimit,
			RequestTimeout: cfg.Chat.RequestTimeout,
		},
		logger,
	)

	logger.Info("services initialized",
		"inventory_source", cfg.Inventory.Source,
		"cache_ttl", cfg.Cache.TTL)

	// Initialize handlers
	chatHandler := handler.NewChatHandler(chatService, logger)

	router := newRouter(cfg, chatHandler, chatService)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	g, gctx := errgroup.WithContext(ctx)

	// Warm the inventory cache so the first chat turn does not pay for the load
	g.Go(func() error {
		if _, err := cache.Get(gctx); err != nil {
			logger.Warn("initial inventory load failed", "error", err)
		}
		return nil
	})

	g.Go(func() error {
		logger.Info("starting server", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}

func newRouter(cfg *config.Config, chatHandler *handler.ChatHandler, chatService *service.ChatService) *gin.Engine {
	router := gin.Default()

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	origins := splitList(cfg.Server.AllowedOrigins)
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = origins
	}
	corsConfig.AllowMethods = splitList(cfg.Server.AllowedMethods)
	corsConfig.AllowHeaders = splitList(cfg.Server.AllowedHeaders)
	router.Use(cors.New(corsConfig))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":     "healthy",
			"service":    "property-chat",
			"version":    Version,
			"build_time": BuildTime,
			"git_commit": GitCommit,
			"inventory":  chatService.InventoryStatus(),
		})
	})

	// Version endpoint
	router.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":    Version,
			"build_time": BuildTime,
			"git_commit": GitCommit,
		})
	})

	// API routes
	apiV1 := router.Group("/api/v1")
	chatHandler.RegisterRoutes(apiV1)

	return router
}

func newPropertySource(cfg *config.Config, repo *repository.PostgresRepository) (service.PropertySource, error) {
	switch cfg.Inventory.Source {
	case config.InventorySourceFile:
		return repository.NewFileInventory(cfg.Inventory.FilePath), nil
	case config.InventorySourcePostgres:
		return repo, nil
	default:
		return nil, fmt.Errorf("unknown inventory source %q", cfg.Inventory.Source)
	}
}

func newSessionStore(ctx context.Context, cfg *config.Config, repo *repository.PostgresRepository, logger *slog.Logger) (repository.SessionStore, error) {
	opts := []repository.StoreOption{
		repository.WithLogger(logger),
		repository.WithSQLitePath(cfg.Session.SQLitePath),
		repository.WithRedisTTL(cfg.Session.RedisTTL),
	}

	if repo != nil {
		opts = append(opts, repository.WithPostgres(repo))
	}

	if cfg.Session.Store == config.SessionStoreRedis {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Session.RedisAddr,
			Password: cfg.Session.RedisPassword,
			DB:       cfg.Session.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		opts = append(opts, repository.WithRedisClient(client))
	}

	return repository.NewSessionStore(repository.StoreType(cfg.Session.Store), opts...)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
