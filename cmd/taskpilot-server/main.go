package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"taskpilot/internal/agent/ports"
	"taskpilot/internal/analyzer"
	"taskpilot/internal/config"
	"taskpilot/internal/exec"
	"taskpilot/internal/llm"
	"taskpilot/internal/logging"
	"taskpilot/internal/search"
	serverHTTP "taskpilot/internal/server/http"
	"taskpilot/internal/store"
)

func main() {
	logger := logging.NewComponentLogger("Main")
	logger.Info("Starting taskpilot server...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	logger.Info("=== Server Configuration ===")
	logger.Info("LLM Model: %s", cfg.LLMModel)
	logger.Info("LLM Base URL: %s", cfg.LLMBaseURL)
	logger.Info("Search: %s", enabledLabel(cfg.BraveAPIKey != ""))
	logger.Info("Store: %s", storeLabel(cfg.DatabaseURL))
	logger.Info("Port: %s", cfg.Port)
	logger.Info("===========================")

	llmClient, err := llm.NewOpenAIClient(cfg.LLMModel, llm.Config{
		APIKey:    cfg.LLMAPIKey,
		BaseURL:   cfg.LLMBaseURL,
		Timeout:   cfg.LLMTimeout,
		MaxTokens: cfg.MaxTokens,
	})
	if err != nil {
		log.Fatalf("Failed to create LLM client: %v", err)
	}

	searchProvider := search.NewBraveProvider(cfg.BraveAPIKey, search.WithTimeout(cfg.SearchTimeout))

	tasks, history, cleanup, err := buildStores(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer cleanup()

	orchestrator := exec.NewOrchestrator(llmClient, exec.NewClassifier(llmClient), searchProvider)
	router := serverHTTP.NewRouter(
		serverHTTP.NewAPIHandler(analyzer.New(llmClient), exec.NewFollowUp(llmClient), tasks, history, searchProvider),
		serverHTTP.NewExecuteHandler(orchestrator, history),
		cfg.AllowedOrigins,
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // No timeout for SSE
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("Server listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server stopped")
}

// buildStores selects Postgres when DATABASE_URL is set, an in-memory store
// otherwise.
func buildStores(cfg *config.Config) (ports.TaskStore, ports.HistoryStore, func(), error) {
	if cfg.DatabaseURL == "" {
		mem := store.NewMemoryStore()
		return mem, mem, func() {}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	pg, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := pg.EnsureSchema(ctx); err != nil {
		pg.Close()
		return nil, nil, nil, err
	}
	return pg, pg, pg.Close, nil
}

func storeLabel(databaseURL string) string {
	if databaseURL == "" {
		return "memory"
	}
	return "postgres"
}

func enabledLabel(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}
