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

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	httpadapter "github.com/otpbazaar/golang_services/internal/cancellation_service/adapters/http"
	"github.com/otpbazaar/golang_services/internal/cancellation_service/adapters/provider"
	"github.com/otpbazaar/golang_services/internal/cancellation_service/app"
	"github.com/otpbazaar/golang_services/internal/cancellation_service/domain"
	"github.com/otpbazaar/golang_services/internal/cancellation_service/repository/postgres"
	"github.com/otpbazaar/golang_services/internal/platform/cache"
	"github.com/otpbazaar/golang_services/internal/platform/config"
	"github.com/otpbazaar/golang_services/internal/platform/database"
	"github.com/otpbazaar/golang_services/internal/platform/httpclient"
	"github.com/otpbazaar/golang_services/internal/platform/httpserver"
	"github.com/otpbazaar/golang_services/internal/platform/logger"
	"github.com/otpbazaar/golang_services/internal/platform/messagebroker"
)

const (
	serviceName        = "cancellation-service"
	defaultHTTPPort    = 8086
	defaultMetricsPort = 9096
	shutdownTimeout    = 15 * time.Second
)

func main() {
	mainCtx, mainCancel := context.WithCancel(context.Background())
	defer mainCancel()

	cfg, err := config.Load(serviceName)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	appLogger := logger.New(cfg.LogLevel).With("service", serviceName)

	httpPort := cfg.CancellationServiceHTTPPort
	if httpPort == 0 {
		httpPort = defaultHTTPPort
	}
	metricsPort := cfg.CancellationServiceMetricsPort
	if metricsPort == 0 {
		metricsPort = defaultMetricsPort
	}

	matchMode, err := app.ParseMatchMode(cfg.ReconcilerMatchMode)
	if err != nil {
		appLogger.Error("Invalid reconciler match mode", "error", err)
		os.Exit(1)
	}

	appLogger.Info("Cancellation service starting...",
		"http_port", httpPort,
		"metrics_port", metricsPort,
		"polling_interval", cfg.ReconcilerPollingInterval,
		"batch_size", cfg.ReconcilerBatchSize,
		"max_attempts", cfg.ReconcilerMaxAttempts,
		"match_mode", matchMode,
	)

	dbPool, err := database.NewDBPool(mainCtx, cfg.PostgresDSN, appLogger)
	if err != nil {
		appLogger.Error("Failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()
	appLogger.Info("Successfully connected to PostgreSQL")

	var publisher messagebroker.Publisher = messagebroker.NewNoopPublisher(appLogger)
	if cfg.NATSUrl == "" {
		appLogger.Info("NATS_URL is empty, run summaries will not be published")
	} else if natsClient, err := messagebroker.NewNATSClient(cfg.NATSUrl, appLogger, serviceName); err != nil {
		appLogger.Warn("NATS unavailable, run summaries will not be published", "error", err)
	} else {
		defer natsClient.Close()
		publisher = natsClient
		appLogger.Info("Successfully connected to NATS")
	}

	cancellationRepo := postgres.NewPgPendingCancellationRepository(dbPool, appLogger)
	serverRepo := postgres.NewPgServerConfigRepository(dbPool, appLogger)
	canceller := provider.NewCancelClient(appLogger, httpclient.New("provider_cancel", cfg.ReconcilerCancelTimeout))
	serverCache := cache.New[string, *domain.ServerConfig](cfg.ReconcilerProviderCacheTTL)

	reconciler := app.NewReconciler(cancellationRepo, serverRepo, canceller, serverCache, publisher, appLogger, app.ReconcilerConfig{
		PollingInterval:  cfg.ReconcilerPollingInterval,
		BatchSize:        cfg.ReconcilerBatchSize,
		MaxAttempts:      cfg.ReconcilerMaxAttempts,
		EarlyCancelDelay: cfg.ReconcilerEarlyCancelDelay,
		Concurrency:      cfg.ReconcilerConcurrency,
		MatchMode:        matchMode,
	})
	enqueuer := app.NewEnqueuer(cancellationRepo, appLogger)

	router := httpserver.NewRouter(appLogger)
	handler := httpadapter.NewHandler(reconciler, enqueuer, appLogger)
	router.Group(func(r chi.Router) {
		if cfg.ServiceRoleJWTSecret != "" {
			r.Use(httpserver.RequireServiceRole(cfg.ServiceRoleJWTSecret, appLogger))
		} else {
			appLogger.Warn("SERVICE_ROLE_JWT_SECRET is empty; cancellation endpoints are unauthenticated")
		}
		handler.Routes(r)
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", httpPort),
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: runWriteTimeout(cfg.ReconcilerBatchSize, cfg.ReconcilerConcurrency, cfg.ReconcilerCancelTimeout),
		IdleTimeout:  120 * time.Second,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", metricsPort),
		Handler: metricsMux,
	}

	g, groupCtx := errgroup.WithContext(mainCtx)

	g.Go(func() error {
		interval := cfg.ReconcilerPollingInterval
		if interval <= 0 {
			appLogger.Info("Reconciler ticker disabled; runs only via HTTP trigger")
			return nil
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		appLogger.Info("Reconciler loop started", "interval", interval)
		for {
			select {
			case <-groupCtx.Done():
				appLogger.Info("Reconciler loop stopping")
				return nil
			case <-ticker.C:
				summary, err := reconciler.Run(groupCtx)
				if err != nil {
					appLogger.Error("Scheduled reconciler run failed", "error", err)
					continue
				}
				if summary.Processed > 0 {
					appLogger.Info("Scheduled reconciler run finished",
						"processed", summary.Processed,
						"cancelled", summary.Cancelled,
						"failed", summary.Failed,
						"rescheduled", summary.Rescheduled,
					)
				}
			}
		}
	})

	g.Go(func() error {
		appLogger.Info("HTTP server starting", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("HTTP server ListenAndServe error", "error", err)
			return err
		}
		appLogger.Info("HTTP server shut down gracefully.")
		return nil
	})

	g.Go(func() error {
		appLogger.Info("Metrics HTTP server starting", "address", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("Metrics HTTP server ListenAndServe error", "error", err)
			return err
		}
		appLogger.Info("Metrics HTTP server shut down gracefully.")
		return nil
	})

	stopSignal := make(chan os.Signal, 1)
	signal.Notify(stopSignal, syscall.SIGINT, syscall.SIGTERM)

	g.Go(func() error {
		select {
		case sig := <-stopSignal:
			appLogger.Info("Received termination signal", "signal", sig.String())
			mainCancel()
			return nil
		case <-groupCtx.Done():
			return nil
		}
	})

	g.Go(func() error {
		<-groupCtx.Done()
		appLogger.Info("Initiating graceful shutdown of servers...")

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdown()

		var shutdownErrors error
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			appLogger.Error("HTTP server graceful shutdown failed", "error", err)
			shutdownErrors = errors.Join(shutdownErrors, fmt.Errorf("http shutdown: %w", err))
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			appLogger.Error("Metrics HTTP server graceful shutdown failed", "error", err)
			shutdownErrors = errors.Join(shutdownErrors, fmt.Errorf("metrics http shutdown: %w", err))
		}
		return shutdownErrors
	})

	appLogger.Info("Cancellation service is ready and running.")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		appLogger.Error("Service group encountered an error during run/shutdown", "error", err)
	}
	appLogger.Info("Cancellation service shut down successfully.")
}

// runWriteTimeout covers a full batch of provider calls at the configured
// concurrency, plus headroom for the database work.
func runWriteTimeout(batchSize, concurrency int, callTimeout time.Duration) time.Duration {
	if concurrency < 1 {
		concurrency = 1
	}
	rounds := (batchSize + concurrency - 1) / concurrency
	return time.Duration(rounds)*callTimeout + 30*time.Second
}
