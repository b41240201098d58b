package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"

	"github.com/pesio-ai/be-plt-approvals/internal/approver"
	"github.com/pesio-ai/be-plt-approvals/internal/client"
	"github.com/pesio-ai/be-plt-approvals/internal/config"
	"github.com/pesio-ai/be-plt-approvals/internal/database"
	"github.com/pesio-ai/be-plt-approvals/internal/handler"
	"github.com/pesio-ai/be-plt-approvals/internal/logger"
	"github.com/pesio-ai/be-plt-approvals/internal/metrics"
	"github.com/pesio-ai/be-plt-approvals/internal/middleware"
	"github.com/pesio-ai/be-plt-approvals/internal/repository"
	"github.com/pesio-ai/be-plt-approvals/internal/service"
)

const devAuthSecret = "dev-only-secret"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:       cfg.Service.LogLevel,
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name,
		Version:     cfg.Service.Version,
	})

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("environment", cfg.Service.Environment).
		Msg("Starting Approvals Service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Persistence: Postgres when configured, otherwise in-process.
	var (
		stores repository.Stores
		health func(context.Context) error
	)
	if cfg.Database.URL != "" {
		db, err := database.New(ctx, database.Config{
			URL:         cfg.Database.URL,
			MaxConns:    cfg.Database.MaxConns,
			MinConns:    cfg.Database.MinConns,
			MaxConnTime: cfg.Database.MaxConnTime,
			MaxIdleTime: cfg.Database.MaxIdleTime,
			HealthCheck: cfg.Database.HealthCheck,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer db.Close()
		stores = repository.NewPostgresStores(db)
		health = db.Ping
		log.Info().Msg("Database connection established")
	} else {
		stores = repository.NewMemoryStore().Stores()
		log.Warn().Msg("DATABASE_URL not set; using in-memory store")
	}

	// Membership directory: identity service when configured, otherwise
	// token claims. Redis caches remote lookups.
	var dir approver.Directory = approver.ClaimsDirectory{}
	if cfg.Identity.URL != "" {
		dir = client.NewHTTPDirectory(cfg.Identity.URL, cfg.Identity.Timeout, log.Component("directory"))
		if cfg.Redis.URL != "" {
			opts, err := redis.ParseURL(cfg.Redis.URL)
			if err != nil {
				log.Fatal().Err(err).Msg("Invalid REDIS_URL")
			}
			rdb := redis.NewClient(opts)
			defer rdb.Close()
			dir = approver.NewCachedDirectory(dir, rdb, cfg.Redis.CacheTTL, log.Component("directory-cache"))
		}
		log.Info().Str("identity_url", cfg.Identity.URL).Bool("cached", cfg.Redis.URL != "").Msg("Identity directory configured")
	}
	resolver := approver.NewResolver(dir, log.Component("resolver"))

	// Notifications
	var notifier service.Notifier = client.NewLogNotifier(log.Component("notifier"))
	if cfg.NATS.URL != "" {
		nc, err := client.ConnectNATS(cfg.NATS.URL, cfg.Service.Name, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to NATS")
		}
		defer nc.Drain()
		notifier = client.NewNATSNotifier(nc, cfg.NATS.SubjectPrefix, log.Component("notifier"))
		log.Info().Str("subject_prefix", cfg.NATS.SubjectPrefix).Msg("NATS notifications enabled")
	}

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Initialize services
	approvals := service.NewApprovalService(stores, resolver, notifier, log.Component("engine"),
		service.WithMetrics(m),
		service.WithMaxRetries(cfg.Engine.MaxRetries),
	)
	workflows := service.NewWorkflowService(stores, resolver, log.Component("workflows"))

	secret := cfg.Auth.Secret
	if secret == "" {
		secret = devAuthSecret
		log.Warn().Msg("AUTH_SECRET not set; using development secret")
	}
	auth := middleware.NewAuthenticator(secret, cfg.Auth.Issuer)

	// Setup HTTP routes
	httpHandler := handler.NewHTTPHandler(approvals, workflows, log)
	router := httpHandler.Router(handler.RouterConfig{Auth: auth, Metrics: m, Health: health})

	// Apply middleware
	var h http.Handler = router
	h = middleware.MaxBodyBytes(1 << 20)(h)
	h = middleware.Timeout(cfg.Server.RequestTimeout)(h)
	h = middleware.RateLimit(cfg.RateLimit.RPS, cfg.RateLimit.Burst, cfg.RateLimit.TrustedProxies...)(h)
	h = middleware.CORS([]string{"*"})(h)
	h = middleware.Recovery(&log.Logger)(h)
	h = middleware.Logger(&log.Logger)(h)
	h = middleware.RequestID(h)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	// Start gRPC server
	grpcHandler := handler.NewGRPCHandler(approvals, workflows, log.Logger)
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(
		handler.RecoveryInterceptor(log.Logger),
		handler.LoggingInterceptor(log.Logger),
		handler.AuthInterceptor(auth),
	))
	handler.RegisterApprovalServiceServer(grpcServer, grpcHandler)

	grpcListener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create gRPC listener")
	}

	go func() {
		log.Info().Int("port", cfg.Server.GRPCPort).Msg("Starting gRPC server")
		if err := grpcServer.Serve(grpcListener); err != nil {
			log.Error().Err(err).Msg("gRPC server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(cfg.Server.ShutdownTimeout):
		grpcServer.Stop()
	}

	log.Info().Msg("Server stopped")
}
