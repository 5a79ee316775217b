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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"gwi.com/todo-assistant/internal/api"
	"gwi.com/todo-assistant/internal/auth"
	"gwi.com/todo-assistant/internal/config"
	"gwi.com/todo-assistant/internal/core"
	"gwi.com/todo-assistant/internal/logger"
	"gwi.com/todo-assistant/internal/metrics"
	"gwi.com/todo-assistant/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Apply pending migrations and start the HTTP server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	log := logger.SetupDefault(os.Stdout, cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbStore, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbStore.Close()

	if err := dbStore.MigrateUp(); err != nil {
		return err
	}

	todoService := core.NewTodoService(dbStore)
	toolbox, err := core.NewToolbox(todoService)
	if err != nil {
		return fmt.Errorf("failed to load chat tools: %w", err)
	}

	var model core.ChatModel
	if cfg.ChatEnabled() {
		llmService, err := core.NewLLMService(ctx, cfg.GeminiAPIKey, cfg.ChatModel, cfg.ChatMaxToolRounds, toolbox.Declarations(), log)
		if err != nil {
			return err
		}
		defer llmService.Close()
		model = llmService
	} else {
		log.Warn("GEMINI_API_KEY is not set, chat requests will fail with 502")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	chatService := core.NewChatService(dbStore, toolbox, model, cfg.ChatHistoryLimit, log)
	chatService.SetObserver(collector)
	authService := core.NewAuthService(dbStore, auth.NewJWTManager(cfg.JWTSecret, cfg.JWTTTL.Duration), log)

	limiter := api.NewRateLimiter(api.RateLimiterConfig{
		GeneralPerMinute: cfg.RateLimitGeneral,
		ChatPerMinute:    cfg.RateLimitChat,
	})
	defer limiter.Stop()

	router := api.NewRouter(api.RouterDeps{
		Handler:            api.NewAPIHandler(authService, todoService, chatService, dbStore, log),
		RateLimiter:        limiter,
		Logger:             log,
		Metrics:            collector,
		Gatherer:           registry,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})

	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)
	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // model calls with tool rounds can take a while
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", slog.String("addr", serverAddr), slog.String("dialect", string(dbStore.Dialect())))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("could not listen on %s: %w", serverAddr, err)
		}
		return nil
	case <-ctx.Done():
	}
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("server exited gracefully")
	return nil
}
