package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/tasksuite/tasks/internal/api"
	"github.com/tasksuite/tasks/internal/auth"
	"github.com/tasksuite/tasks/internal/config"
	"github.com/tasksuite/tasks/internal/connector"
	"github.com/tasksuite/tasks/internal/core"
	"github.com/tasksuite/tasks/internal/functions"
	"github.com/tasksuite/tasks/internal/hub"
	"github.com/tasksuite/tasks/internal/logging"
	"github.com/tasksuite/tasks/internal/slack"
	"github.com/tasksuite/tasks/internal/store"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logging.Init(cfg.LogLevel, cfg.LogFormat, nil)

	// Initialize database store
	dbStore, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer dbStore.Close()

	// Connector credentials: OS keyring first, then environment
	conns := connector.Chain{}
	if ring, err := connector.OpenKeyring(); err != nil {
		log.Warnf("Keyring unavailable, using environment connectors only: %v", err)
	} else {
		conns = append(conns, ring)
	}
	conns = append(conns, connector.NewEnv())

	registry := functions.NewRegistry()
	registry.Register(functions.TaskCompletionName, functions.NewTaskCompletion(dbStore, cfg.MinCompletionPercent))
	registry.Register(functions.NotifyTaskCompletedName,
		functions.NewNotifyTaskCompleted(conns, slack.NewClient(cfg.SlackAPIURL, nil), cfg.SlackChannel))
	log.Infof("Registered functions: %v", registry.Names())

	providers := map[string]auth.Provider{}
	if cfg.GoogleClientID != "" && cfg.GoogleClientSecret != "" {
		providers["google"] = auth.NewGoogleProvider(cfg.GoogleClientID, cfg.GoogleClientSecret,
			cfg.PublicURL+"/api/auth/callback/google")
	} else {
		log.Warn("GOOGLE_CLIENT_ID/GOOGLE_CLIENT_SECRET not set, login is disabled")
	}

	// Initialize LLM service; the agent reports unavailable without it
	var llm core.Model
	if cfg.GeminiAPIKey != "" {
		svc, err := core.NewLLMService(context.Background(), cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			log.Fatalf("Failed to initialize LLM service: %v", err)
		}
		defer svc.Close()
		llm = svc
	}

	updates := hub.New()
	agents := core.NewAgentService(dbStore, llm, updates, cfg.AgentMaxSteps, core.NewTaskManagerAgent(dbStore))

	apiHandler := api.NewAPIHandler(api.Deps{
		Store:     dbStore,
		Agents:    agents,
		Hub:       updates,
		Functions: registry,
		Issuer:    auth.NewIssuer(cfg.JWTSecret),
		Providers: providers,
		PublicURL: cfg.PublicURL,
	})
	router := api.NewRouter(apiHandler)

	// Start HTTP server
	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)

	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Infof("Starting server on %s. Press Ctrl+C to quit.", serverAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v", serverAddr, err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("Server forced to shutdown: %v", err)
	}
	// Pending agent replies still write to the store.
	agents.Wait()

	log.Info("Server exiting gracefully")
}
