package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/pesio-ai/be-rp-allocations/internal/client"
	"github.com/pesio-ai/be-rp-allocations/internal/handler"
	"github.com/pesio-ai/be-rp-allocations/internal/repository"
	"github.com/pesio-ai/be-rp-allocations/internal/repository/memory"
	"github.com/pesio-ai/be-rp-allocations/internal/repository/postgres"
	"github.com/pesio-ai/be-rp-allocations/internal/service"
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and gRPC servers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), *configPath)
		},
	}
}

func serve(ctx context.Context, configPath string) error {
	cfg, log, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("environment", cfg.Service.Environment).
		Str("store", cfg.Store.Driver).
		Msg("Starting allocations service")

	var store repository.Store
	switch cfg.Store.Driver {
	case "memory":
		ms := memory.NewStore()
		if err := ms.LoadSeedFile(cfg.Store.SeedFile); err != nil {
			return fmt.Errorf("failed to load seed: %w", err)
		}
		store = ms
		log.Warn().Str("seed_file", cfg.Store.SeedFile).Msg("Using in-memory store, data is lost on exit")
	default:
		db, err := connectDB(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()
		log.Info().Msg("Database connection established")
		store = postgres.NewStore(db)
	}

	var opts []service.Option
	if cfg.NATS.Enabled {
		nc, err := client.Connect(cfg.NATS.URL, cfg.Service.Name, log.Logger)
		if err != nil {
			return fmt.Errorf("failed to connect to nats: %w", err)
		}
		defer nc.Drain()
		opts = append(opts, service.WithPublisher(client.NewNotificationPublisher(nc, cfg.NATS.SubjectPrefix, log.Logger)))
		log.Info().Str("url", cfg.NATS.URL).Msg("Publishing approval events to NATS")
	}

	periods := service.NewPeriodService(store, log, opts...)
	planning := service.NewPlanningService(store, log, opts...)
	approvals := service.NewApprovalService(store, log, opts...)
	actuals := service.NewActualsService(store, approvals, log, opts...)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.Server.RequestTimeout))
	r.Mount("/", handler.NewHTTPHandler(periods, planning, actuals, approvals, log).Router())

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(handler.IdentityInterceptor()))
	handler.NewGRPCHandler(actuals, approvals, log.Logger).Register(grpcServer)
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	healthSrv.SetServingStatus(handler.ApprovalServiceName, healthpb.HealthCheckResponse_SERVING)
	reflection.Register(grpcServer)

	grpcListener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
	if err != nil {
		return fmt.Errorf("failed to create gRPC listener: %w", err)
	}

	errCh := make(chan error, 2)
	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		log.Info().Int("port", cfg.Server.GRPCPort).Msg("Starting gRPC server")
		if err := grpcServer.Serve(grpcListener); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
	case err = <-errCh:
		log.Error().Err(err).Msg("Server failed")
	}

	log.Info().Msg("Shutting down server...")
	healthSrv.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if serr := httpServer.Shutdown(shutdownCtx); serr != nil {
		log.Error().Err(serr).Msg("HTTP server shutdown failed")
	}
	grpcServer.GracefulStop()

	log.Info().Msg("Server stopped")
	return err
}
