package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ChatPane/controllers"
	"ChatPane/middleware"
	"ChatPane/models"
	"ChatPane/pkg/cache"
	"ChatPane/pkg/chat"
	"ChatPane/pkg/config"
	"ChatPane/pkg/identity"
	"ChatPane/pkg/kv"
	"ChatPane/pkg/services"
	"ChatPane/pkg/theme"
	tokenstore "ChatPane/pkg/token"
	"ChatPane/routes"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

const tokenTTL = 24 * time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := cfg.NewLogger(os.Stderr)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := kv.Open(cfg.StorageDriver, cfg.StorageDSN)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	transcriptCache := cache.New(cfg.TranscriptCacheMaxItems, time.Minute)
	defer transcriptCache.Close()

	gemini := services.NewGeminiService(cfg, cache.NewTranscripts(transcriptCache, cfg.TranscriptCacheTTL()), logger)
	deps := &controllers.Deps{
		Registry: chat.NewRegistry(store, chat.PickCompleter(gemini, logger), gemini, logger),
		Identity: identity.NewProvider(store),
		Tokens:   identity.NewIssuer(cfg.SigningKey(), tokenTTL, tokenstore.New()),
		Theme:    theme.New(store, models.Theme(cfg.DefaultTheme)),
		Log:      logger.With("component", "http"),
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()

	// CORS configuration
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	routes.RegisterRoutes(r, deps, middleware.NewRateLimiter(cfg.RateLimitWindow(), cfg.RateLimitCapacity))

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srv.Addr, "env", cfg.AppEnv, "storage", cfg.StorageDriver)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
