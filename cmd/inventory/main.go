package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/FroDev-CR/Tropical-TCG-Player-sub001/internal/app"
	"github.com/FroDev-CR/Tropical-TCG-Player-sub001/internal/clock"
	"github.com/FroDev-CR/Tropical-TCG-Player-sub001/internal/config"
	"github.com/FroDev-CR/Tropical-TCG-Player-sub001/internal/eventbus"
	"github.com/FroDev-CR/Tropical-TCG-Player-sub001/internal/storage/postgres"
	transporthttp "github.com/FroDev-CR/Tropical-TCG-Player-sub001/internal/transport/http"
	"github.com/FroDev-CR/Tropical-TCG-Player-sub001/internal/worker"
	"github.com/FroDev-CR/Tropical-TCG-Player-sub001/migrations"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logger := zerolog.New(os.Stderr).With().Timestamp().Str("service", "inventory").Logger()

	cfg, err := config.Load(".")
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}

	startupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(startupCtx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect to db")
	}
	defer pool.Close()

	if err := pool.Ping(startupCtx); err != nil {
		logger.Fatal().Err(err).Msg("db ping")
	}
	if err := migrations.Apply(startupCtx, pool); err != nil {
		logger.Fatal().Err(err).Msg("apply migrations")
	}

	clk := clock.NewSystem()
	listingRepo := postgres.NewListingRepository(pool)
	ledgerSvc := app.NewLedgerService(listingRepo, clk, logger, app.WithHoldTTL(cfg.HoldTTL))
	catalogSvc := app.NewCatalogService(listingRepo, clk, logger)
	querySvc := app.NewQueryService(listingRepo, ledgerSvc, clk)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", transporthttp.HealthHandler)
	mux.Handle("/listings", transporthttp.HandleListings(ledgerSvc, catalogSvc, querySvc))
	mux.Handle("/listings/", transporthttp.HandleListings(ledgerSvc, catalogSvc, querySvc))
	mux.Handle("/availability", transporthttp.HandleBulkAvailability(querySvc))
	mux.Handle("/", transporthttp.NotFoundHandler())

	handler := transporthttp.RequestLogger(transporthttp.CORS(cfg.Origins(), mux), logger)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handler,
	}

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	sweeper := worker.NewSweeper(listingRepo, ledgerSvc, clk, logger, cfg.SweepInterval, cfg.SweepBatch)
	go sweeper.Run(workerCtx)

	// The relay is optional: without a broker the ledger still works, the
	// outbox just accumulates until one is back.
	publisher, err := eventbus.NewRabbitMQPublisher(cfg.RabbitMQURL, cfg.EventsExchange, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("rabbitmq unavailable, outbox relay disabled")
	} else {
		defer publisher.Close()
		relay := worker.NewOutboxRelay(postgres.NewOutboxRepository(pool), publisher, logger, cfg.OutboxInterval, cfg.OutboxBatch)
		go relay.Run(workerCtx)
	}

	logger.Info().Str("port", cfg.Port).Msg("inventory service listening")

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- server.ListenAndServe()
	}()

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server error")
		}
	case <-stopCtx.Done():
		logger.Info().Msg("shutdown signal received, stopping server")
	}

	stopWorkers()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("server shutdown error")
	}
	logger.Info().Msg("server stopped")
}
