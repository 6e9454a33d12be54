package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"goalbreaker/internal/auth"
	"goalbreaker/internal/catalog"
	"goalbreaker/internal/config"
	"goalbreaker/internal/handler"
	"goalbreaker/internal/middleware"
	"goalbreaker/internal/repository/postgres"
	serviceAuth "goalbreaker/internal/service/auth"
	serviceGoals "goalbreaker/internal/service/goals"
	serviceLLM "goalbreaker/internal/service/llm"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

func main() {
	// Load .env file (silently ignore if it doesn't exist - for production)
	_ = godotenv.Load()

	cfg := config.Load()

	logLevel := slog.LevelInfo
	if cfg.Environment == "dev" || cfg.Debug {
		logLevel = slog.LevelDebug
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("server starting",
		"environment", cfg.Environment,
		"port", cfg.Port,
		"table_prefix", cfg.TablePrefix,
		"provider", cfg.DefaultProvider,
		"auth", cfg.AuthEnabled(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Tokens are only checked when a JWKS endpoint is configured
	var jwtVerifier auth.JWTVerifier
	if cfg.AuthEnabled() {
		v, err := auth.NewJWTVerifier(ctx, cfg.SupabaseJWKSURL, logger)
		if err != nil {
			log.Fatalf("Failed to create JWT verifier: %v", err)
		}
		defer v.Close()
		jwtVerifier = v
	} else {
		logger.Warn("authentication disabled: no JWKS URL configured")
	}

	pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to create connection pool: %v", err)
	}
	defer pool.Close()

	tables := postgres.NewTableNames(cfg.TablePrefix)
	repoConfig := &postgres.RepositoryConfig{
		Pool:   pool,
		Tables: tables,
		Logger: logger,
	}
	goalRepo := postgres.NewGoalRepository(repoConfig)
	txManager := postgres.NewTransactionManager(pool, logger)

	if err := goalRepo.EnsureSchema(ctx); err != nil {
		log.Fatalf("Failed to prepare schema: %v", err)
	}
	logger.Info("database ready", "table", tables.Goals)

	modelCatalog, err := catalog.NewRegistry()
	if err != nil {
		log.Fatalf("Failed to load model catalog: %v", err)
	}

	goalService := serviceGoals.NewService(goalRepo, txManager, logger)
	authorizer := serviceAuth.NewOwnerBasedAuthorizer(goalRepo)

	providerRegistry := serviceLLM.NewProviderRegistry(serviceLLM.NewProviderFactory(cfg), cfg.DefaultProvider)
	streamService := serviceLLM.NewStreamService(providerRegistry, logger)

	goalHandler := handler.NewGoalHandler(goalService, authorizer, logger)
	modelsHandler := handler.NewModelsHandler(modelCatalog, logger)
	streamHandler := handler.NewStreamHandler(streamService, logger)

	limiter := middleware.NewRateLimiter(cfg.StreamRateLimit, cfg.StreamBurst)

	logger.Info("services initialized")

	// Create HTTP router (Go 1.22+ enhanced patterns)
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", handler.HealthCheck)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /api/v1/goals/{userId}", goalHandler.CreateGoal)
	mux.HandleFunc("PUT /api/v1/goals/{id}", goalHandler.UpdateGoal)
	mux.HandleFunc("DELETE /api/v1/goals/{id}", goalHandler.DeleteGoal)
	mux.HandleFunc("GET /api/v1/history/{userId}", goalHandler.History)
	mux.HandleFunc("DELETE /api/v1/history/{userId}", goalHandler.ClearHistory)

	mux.HandleFunc("GET /api/v1/models", modelsHandler.ListModels)
	mux.HandleFunc("POST /api/v1/stream-goal", limiter.Limit(streamHandler.StreamGoal))

	// Apply middleware in reverse order (they wrap each other)
	// Order: CORS → Recovery → Auth → Routes
	var h http.Handler = mux
	h = middleware.AuthMiddleware(jwtVerifier)(h)
	h = middleware.Recovery(logger)(h)

	// CORS - Must be before auth to handle OPTIONS pre-flight requests
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   config.SplitList(cfg.CORSOrigins),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: true,
	})
	h = corsHandler.Handler(h)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // Disabled to allow long-lived plain-text streams
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}
