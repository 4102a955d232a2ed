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

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	httpadapter "github.com/otpbazaar/golang_services/internal/payment_service/adapters/http"
	"github.com/otpbazaar/golang_services/internal/payment_service/adapters/paymentgateway"
	"github.com/otpbazaar/golang_services/internal/payment_service/app"
	"github.com/otpbazaar/golang_services/internal/payment_service/repository/postgres"
	"github.com/otpbazaar/golang_services/internal/platform/config"
	"github.com/otpbazaar/golang_services/internal/platform/database"
	"github.com/otpbazaar/golang_services/internal/platform/httpclient"
	"github.com/otpbazaar/golang_services/internal/platform/httpserver"
	"github.com/otpbazaar/golang_services/internal/platform/logger"
	"github.com/otpbazaar/golang_services/internal/platform/messagebroker"
)

const (
	serviceName        = "payment-service"
	defaultHTTPPort    = 8085
	defaultMetricsPort = 9095
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

	httpPort := cfg.PaymentServiceHTTPPort
	if httpPort == 0 {
		httpPort = defaultHTTPPort
	}
	metricsPort := cfg.PaymentServiceMetricsPort
	if metricsPort == 0 {
		metricsPort = defaultMetricsPort
	}
	appLogger.Info("Payment service starting...",
		"http_port", httpPort,
		"metrics_port", metricsPort,
		"gateway_timeout", cfg.GatewayTimeout,
		"settings_cache_ttl", cfg.SettingsCacheTTL,
		"cryptomus_strict_signature", cfg.CryptomusStrictSignature,
	)
	if !cfg.CryptomusStrictSignature {
		appLogger.Warn("Cryptomus webhook signatures are not enforced; mismatches are only logged")
	}

	dbPool, err := database.NewDBPool(mainCtx, cfg.PostgresDSN, appLogger)
	if err != nil {
		appLogger.Error("Failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()
	appLogger.Info("Successfully connected to PostgreSQL")

	var publisher messagebroker.Publisher = messagebroker.NewNoopPublisher(appLogger)
	if cfg.NATSUrl == "" {
		appLogger.Info("NATS_URL is empty, payment events will not be published")
	} else if natsClient, err := messagebroker.NewNATSClient(cfg.NATSUrl, appLogger, serviceName); err != nil {
		appLogger.Warn("NATS unavailable, payment events will not be published", "error", err)
	} else {
		defer natsClient.Close()
		publisher = natsClient
		appLogger.Info("Successfully connected to NATS")
	}

	settingsRepo := postgres.NewCachedSettingsRepository(
		postgres.NewPgSettingsRepository(dbPool, appLogger),
		cfg.SettingsCacheTTL,
		time.Now,
	)
	orderRepo := postgres.NewPgOrderRepository(dbPool, appLogger)
	balanceRepo := postgres.NewPgBalanceRepository(dbPool, appLogger)

	cryptomusClient := paymentgateway.NewCryptomusClient(appLogger, cfg.CryptomusAPIURL, httpclient.New("cryptomus", cfg.GatewayTimeout))
	paytmClient := paymentgateway.NewPaytmClient(appLogger, cfg.PaytmStatusURL, httpclient.New("paytm", cfg.GatewayTimeout))
	bharatPeClient := paymentgateway.NewBharatPeClient(appLogger, cfg.BharatPeAPIURL, httpclient.New("bharatpe", cfg.GatewayTimeout))

	cryptomusService := app.NewCryptomusService(settingsRepo, orderRepo, balanceRepo, cryptomusClient, publisher, appLogger, app.CryptomusConfig{
		CallbackURL:     cfg.CryptomusCallbackURL,
		ReturnURL:       cfg.CryptomusReturnURL,
		GatewayMinimum:  decimal.NewFromInt(int64(cfg.CryptomusGatewayMinimum)),
		SuccessStatuses: cfg.CryptomusSuccessStatuses,
		StrictSignature: cfg.CryptomusStrictSignature,
	})
	paytmService := app.NewPaytmService(settingsRepo, orderRepo, balanceRepo, paytmClient, publisher, appLogger, app.PaytmConfig{
		QRCodeBaseURL:     cfg.QRCodeBaseURL,
		InvalidOrderCodes: cfg.PaytmInvalidOrderCodes,
	})
	upiService := app.NewUPIService(settingsRepo, balanceRepo, bharatPeClient, publisher, appLogger, app.UPIConfig{
		Lookback: cfg.BharatPeLookback,
	})

	router := httpserver.NewRouter(appLogger)
	httpadapter.NewHandler(cryptomusService, paytmService, upiService, appLogger).Routes(router)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", httpPort),
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
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

	appLogger.Info("Payment service is ready and running.")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		appLogger.Error("Service group encountered an error during run/shutdown", "error", err)
	}
	appLogger.Info("Payment service shut down successfully.")
}
