// Package main is the entry point for the seatscan API.
//
// It loads configuration, builds the AWS SDK clients, wires the domain
// services (identity, tiers, providers, search, bookmarks) into the core
// chassis, and serves requests. In Lambda mode (detected via the runtime
// environment) it bridges API Gateway events to the chi router with
// chiadapter; otherwise it runs a standard HTTP server with graceful
// shutdown.
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

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	chiadapter "github.com/awslabs/aws-lambda-go-api-proxy/chi"
	"github.com/go-chi/chi/v5"

	"seatscan/internal/api/handlers"
	"seatscan/internal/bookmarks"
	"seatscan/internal/config"
	"seatscan/internal/core"
	"seatscan/internal/identity"
	"seatscan/internal/metrics"
	"seatscan/internal/providers"
	"seatscan/internal/queue"
	"seatscan/internal/search"
	"seatscan/internal/store"
	"seatscan/internal/tiers"
	"seatscan/internal/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("seatscan API starting",
		"environment", cfg.Environment,
		"port", cfg.Server.Port,
	)

	ctx := context.Background()
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return fmt.Errorf("loading AWS configuration: %w", err)
	}

	// LocalStack support: a configured endpoint URL overrides the default for
	// every service client. Nil in prod, which leaves the defaults untouched.
	var localEndpoint *string
	if cfg.AWS.EndpointURL != "" {
		localEndpoint = aws.String(cfg.AWS.EndpointURL)
	}

	ddb := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) { o.BaseEndpoint = localEndpoint })
	sqsClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) { o.BaseEndpoint = localEndpoint })
	cwClient := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) { o.BaseEndpoint = localEndpoint })

	// Stores
	tierRepo := store.NewTierRepo(ddb, cfg.AWS.TiersTable, logger)
	userRepo := store.NewUserRepo(ddb, cfg.AWS.UsersTable)
	usageRepo := store.NewUsageRepo(ddb, cfg.AWS.UsageTable, types.RealClock{})
	guestRepo := store.NewGuestRepo(ddb, cfg.AWS.GuestAccessTable, types.RealClock{})
	bookmarkRepo := store.NewBookmarkRepo(ddb, cfg.AWS.BookmarksTable)

	// Identity
	tokenSvc := identity.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenLifetime, types.RealClock{})
	resolver := identity.NewResolver(tokenSvc, userRepo, logger)
	authSvc := identity.NewService(identity.ServiceConfig{
		Users:  userRepo,
		Tokens: tokenSvc,
		Logger: logger,
	})

	// Tier catalog and limiter
	catalog := tiers.NewCatalog(tierRepo, logger)
	limiter := tiers.NewLimiter(catalog, usageRepo, guestRepo, types.RealClock{}, logger)

	// Provider adapters and aggregation
	amadeus := providers.NewAmadeusAdapter(
		&http.Client{Timeout: cfg.Amadeus.Timeout},
		providers.AmadeusConfig{
			APIKey:    cfg.Amadeus.APIKey,
			APISecret: cfg.Amadeus.APISecret,
			Endpoint:  cfg.Amadeus.Endpoint,
			Logger:    logger,
		},
	)
	sabre := providers.NewSabreAdapter(
		&http.Client{Timeout: cfg.Sabre.Timeout},
		providers.SabreAdapterConfig{
			Username: cfg.Sabre.Username,
			Password: cfg.Sabre.Password,
			PCC:      cfg.Sabre.PCC,
			Endpoint: cfg.Sabre.Endpoint,
			Logger:   logger,
		},
	)
	emitter := metrics.NewEmitter(cwClient, logger)
	aggregator := search.NewAggregator(amadeus, sabre, emitter, logger)
	registry := providers.NewRegistry(amadeus, sabre)

	// Bookmarks
	var alerts bookmarks.AlertEnqueuer
	if cfg.AWS.AlertQueueURL != "" {
		alerts = queue.NewAlertTrigger(sqsClient, cfg.AWS.AlertQueueURL, logger)
	}
	bookmarkSvc := bookmarks.NewService(bookmarks.ServiceConfig{
		Store:  bookmarkRepo,
		Gate:   limiter,
		Alerts: alerts,
		TTL:    cfg.Search.BookmarkTTL,
		Logger: logger,
	})
	replayer := bookmarks.NewReplayer(registry, logger)

	// Chassis and handlers
	srv, err := core.NewServer(cfg, resolver, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	authHandler := handlers.NewAuthHandler(authSvc, srv.Validator, logger)
	flightsHandler := handlers.NewFlightsHandler(aggregator, limiter, emitter, srv.Validator, cfg.Search.MaxResultsCeiling, logger)
	bookmarksHandler := handlers.NewBookmarksHandler(bookmarkSvc, replayer, limiter, emitter, srv.Validator, logger)
	tiersHandler := handlers.NewTiersHandler(catalog, limiter, logger)

	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		authHandler.RegisterRoutes,
		tiersHandler.RegisterPublicRoutes,
		func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(srv.RequireAuth)
				flightsHandler.RegisterRoutes(r)
				bookmarksHandler.RegisterRoutes(r)
				tiersHandler.RegisterUsageRoutes(r)
			})
		},
	)

	srv.MountRoutes()

	if isLambdaEnvironment() {
		return runLambda(srv, logger)
	}
	return runHTTPServer(srv, cfg, logger)
}

// isLambdaEnvironment returns true if the process is running inside AWS Lambda.
func isLambdaEnvironment() bool {
	_, hasRuntimeAPI := os.LookupEnv("AWS_LAMBDA_RUNTIME_API")
	_, hasTaskRoot := os.LookupEnv("LAMBDA_TASK_ROOT")
	return hasRuntimeAPI || hasTaskRoot
}

// runLambda bridges API Gateway proxy events to the chi router.
func runLambda(srv *core.Server, logger *slog.Logger) error {
	logger.Info("running in Lambda mode")
	adapter := chiadapter.New(srv.Router())
	lambda.Start(adapter.ProxyWithContext)
	return nil
}

// runHTTPServer starts the server in standard HTTP mode with graceful shutdown.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler)
}
