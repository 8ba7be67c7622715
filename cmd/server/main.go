package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/pesio-ai/be-doc-validations/internal/client"
	"github.com/pesio-ai/be-doc-validations/internal/handler"
	"github.com/pesio-ai/be-doc-validations/internal/lock"
	"github.com/pesio-ai/be-doc-validations/internal/platform/config"
	"github.com/pesio-ai/be-doc-validations/internal/platform/database"
	"github.com/pesio-ai/be-doc-validations/internal/platform/logger"
	"github.com/pesio-ai/be-doc-validations/internal/platform/tracing"
	"github.com/pesio-ai/be-doc-validations/internal/repository"
	"github.com/pesio-ai/be-doc-validations/internal/repository/memory"
	"github.com/pesio-ai/be-doc-validations/internal/rpc"
	"github.com/pesio-ai/be-doc-validations/internal/service"
)

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
		Msg("Starting Document Validations Service")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Tracing.Enabled {
		shutdownTracing, err := tracing.Init(cfg.Service.Name, cfg.Service.Version, nil)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize tracing")
		}
		defer func() { _ = shutdownTracing(context.Background()) }()
	}

	// ── Store ──

	var store service.FlowStore
	switch cfg.Store.Driver {
	case "memory":
		store = memory.New()
		log.Warn().Msg("Using in-memory store, validation state is not persisted")
	default:
		db, err := database.New(ctx, database.Config{
			Host:        cfg.Database.Host,
			Port:        cfg.Database.Port,
			User:        cfg.Database.User,
			Password:    cfg.Database.Password,
			Database:    cfg.Database.Database,
			SSLMode:     cfg.Database.SSLMode,
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
		log.Info().Msg("Database connection established")

		if cfg.Database.AutoMigrate {
			if err := repository.EnsureSchema(ctx, db); err != nil {
				log.Fatal().Err(err).Msg("Failed to apply database schema")
			}
		}
		store = repository.NewValidationStore(db, cfg.Database.LockTimeout)
	}

	// ── Locker ──

	var locker lock.Locker
	switch cfg.Lock.Driver {
	case "redis":
		rdb, err := lock.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to redis")
		}
		defer rdb.Close()
		locker = lock.NewRedisLocker(rdb, cfg.Lock.TTL, cfg.Lock.WaitTimeout, log)
		log.Info().Str("addr", cfg.Redis.Addr).Msg("Using redis document lock")
	default:
		locker = lock.NewLocalLocker(cfg.Lock.WaitTimeout)
	}

	// ── Collaborators ──

	var opts []service.Option

	if cfg.NATS.URL != "" {
		nc, js, err := client.ConnectJetStream(ctx, cfg.NATS.URL, cfg.NATS.Stream, cfg.NATS.SubjectPrefix)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to NATS JetStream")
		}
		defer nc.Drain()
		opts = append(opts, service.WithNotifier(
			client.NewNotificationPublisher(js, cfg.NATS.SubjectPrefix, cfg.Service.Name, log.Logger)))
		log.Info().Str("stream", cfg.NATS.Stream).Msg("Validation events enabled")
	}

	if cfg.Directory.GRPCAddr != "" {
		directory, err := client.NewDirectoryGRPCClient(cfg.Directory.GRPCAddr)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create directory gRPC client")
		}
		defer directory.Close()
		opts = append(opts, service.WithDirectory(directory))
		log.Info().Str("directory_grpc", cfg.Directory.GRPCAddr).Msg("Company membership checks enabled")
	}

	validationService := service.NewValidationService(store, locker, log, opts...)

	// ── HTTP ──

	router := handler.NewRouter(handler.NewHTTPHandler(validationService, log), log, handler.RouterConfig{
		ServiceName:    cfg.Service.Name,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RequestTimeout: cfg.Server.RequestTimeout,
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// ── gRPC ──

	grpcServer := grpc.NewServer()
	rpc.RegisterValidationServiceServer(grpcServer, handler.NewGRPCHandler(validationService, log.Logger))
	healthServer := health.NewServer()
	healthServer.SetServingStatus(rpc.ValidationServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)

	grpcListener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPC.Port))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create gRPC listener")
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		log.Info().Int("port", cfg.GRPC.Port).Msg("Starting gRPC server")
		if err := grpcServer.Serve(grpcListener); err != nil {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		healthServer.Shutdown()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown failed")
		}
		grpcServer.GracefulStop()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server exited with error")
	}
	log.Info().Msg("Server stopped")
}
