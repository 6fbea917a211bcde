// Package main is the entry point for the research agent API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keystone-ai/research-agent/internal/agent"
	"github.com/keystone-ai/research-agent/internal/checkpoint"
	"github.com/keystone-ai/research-agent/internal/config"
	"github.com/keystone-ai/research-agent/internal/handler"
	"github.com/keystone-ai/research-agent/internal/llm"
	"github.com/keystone-ai/research-agent/internal/middleware"
	natsclient "github.com/keystone-ai/research-agent/internal/nats"
	"github.com/keystone-ai/research-agent/internal/service"
	"github.com/keystone-ai/research-agent/internal/tool"
	"github.com/keystone-ai/research-agent/pkg/logger"
	"github.com/keystone-ai/research-agent/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting research agent API server")

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "research-agent", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", "error", err)
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Open the checkpoint store
	store, err := checkpoint.NewSQLiteStore(cfg.CheckpointDBPath)
	if err != nil {
		log.Error("failed to open checkpoint store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// Connect to NATS if an event bus is configured
	var natsConn *natsclient.Client
	var events *natsclient.EventPublisher
	if cfg.NATSURL != "" {
		natsConn, err = natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			log.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer natsConn.Close()

		events = natsclient.NewEventPublisher(natsConn)
		if err := events.EnsureStream(ctx); err != nil {
			log.Error("failed to ensure event stream", "error", err)
			os.Exit(1)
		}
	}

	// Initialize LLM client
	var llmClient llm.Client
	if cfg.DefaultLLM == string(llm.ProviderOpenAI) && cfg.OpenAIAPIKey != "" {
		llmClient, err = llm.NewOpenAIClient(cfg.OpenAIAPIKey)
	} else if cfg.AnthropicAPIKey != "" {
		llmClient, err = llm.NewAnthropicClient(cfg.AnthropicAPIKey)
	} else if cfg.OpenAIAPIKey != "" {
		llmClient, err = llm.NewOpenAIClient(cfg.OpenAIAPIKey)
	} else {
		log.Error("no LLM API key configured")
		os.Exit(1)
	}
	if err != nil {
		log.Error("failed to create LLM client", "error", err)
		os.Exit(1)
	}

	// Register tool adapters
	httpClient := &http.Client{Timeout: 30 * time.Second}
	registry := tool.NewRegistry()
	registry.Register(tool.NewCalculator())
	registry.Register(tool.NewWebSearch(tool.WebSearchConfig{
		APIKey:     cfg.TavilyAPIKey,
		MaxResults: cfg.TavilyMaxResults,
		HTTPClient: httpClient,
	}))
	registry.Register(tool.NewArxivSearch(tool.ArxivConfig{
		MaxResults: cfg.ArxivMaxResults,
		HTTPClient: httpClient,
	}))
	registry.Register(tool.NewWikipedia(tool.WikipediaConfig{
		MaxResults: cfg.WikiMaxResults,
		HTTPClient: httpClient,
	}))

	// Construct the agent loop and session service once; lifecycle is
	// owned here, not by ambient singletons.
	loop := agent.NewLoop(llmClient, registry, log, agent.Config{
		Model:         cfg.DefaultModel,
		MaxRoundTrips: cfg.MaxRoundTrips,
		ToolTimeout:   cfg.ToolTimeout,
	})
	sessions := service.NewSessionService(store, loop, events, log)

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(store, natsConn)
	threadHandler := handler.NewThreadHandler(sessions, log)
	turnHandler := handler.NewTurnHandler(sessions, log)
	streamHandler := handler.NewStreamHandler(sessions, log)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// API routes with authentication
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Route("/threads", func(r chi.Router) {
			r.Post("/", threadHandler.Create)
			r.Get("/", threadHandler.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Delete("/", threadHandler.Delete)
				r.Get("/history", threadHandler.History)

				r.Post("/turns", turnHandler.Run)
				r.Post("/turns/stream", streamHandler.RunStream)
			})
		})
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening", "port", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}
