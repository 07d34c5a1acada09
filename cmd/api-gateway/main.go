package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lgulliver/quarry/cmd/api-gateway/middleware"
	"github.com/lgulliver/quarry/cmd/api-gateway/routes"
	"github.com/lgulliver/quarry/internal/artifact"
	"github.com/lgulliver/quarry/internal/auth"
	"github.com/lgulliver/quarry/internal/catalog"
	"github.com/lgulliver/quarry/internal/common"
	"github.com/lgulliver/quarry/internal/registry"
	"github.com/lgulliver/quarry/internal/storage"
	"github.com/lgulliver/quarry/pkg/config"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("quarry stopped")
	}
}

func run() error {
	var configPath string

	flagSet := pflag.NewFlagSet("quarry", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", os.Getenv("QUARRY_CONFIG"), "path to a YAML config file")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	cfg.Logging.SetupLogging()

	log.Info().Str("addr", cfg.Server.Addr()).Msg("starting quarry registry")

	registryService, cleanup, err := buildServices(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      setupRouter(registryService, cfg),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("shutting down server")
	}

	// Give outstanding requests 30 seconds to complete
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info().Msg("server shutdown complete")
	return nil
}

// buildServices opens the stores named by cfg and wires the registry
// coordinator over them. cleanup closes everything that was opened.
func buildServices(cfg *config.Config) (*registry.Service, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	db, err := common.NewDatabase(&cfg.Database, cfg.Logging.IsDebug())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	closers = append(closers, func() { db.Close() })

	if err := db.Migrate(); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	blobStorage, err := storage.NewStorageFactory(&cfg.Storage).CreateStorage()
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	// the remote tier is optional; a nil *common.Cache must not become a
	// non-nil interface
	var remote artifact.RemoteCache
	if cfg.Redis.Enabled {
		cache, err := common.NewCache(&cfg.Redis)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		closers = append(closers, func() { cache.Close() })
		remote = cache
		log.Info().Str("addr", cfg.Redis.RedisAddr()).Msg("remote artifact cache enabled")
	}

	registryService := registry.NewService(
		catalog.NewService(db),
		artifact.NewStore(blobStorage, remote, cfg.Storage.CacheShards),
		auth.NewService(db, &cfg.Auth),
	)
	return registryService, cleanup, nil
}

func setupRouter(registryService routes.RegistryServiceInterface, cfg *config.Config) *gin.Engine {
	if cfg.Logging.IsDebug() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger())
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	// Health check
	router.GET("/_health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "quarry",
			"time":    time.Now().UTC(),
		})
	})

	routes.AdminRoutes(router, registryService)
	routes.RegistryRoutes(router, registryService, cfg.Server.MaxUploadSize)

	return router
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Content-Length, Authorization, X-Request-ID")
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
