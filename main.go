package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/uptrace/bun"

	"ms-booking/internal/analytics"
	"ms-booking/internal/api"
	"ms-booking/internal/auth"
	"ms-booking/internal/booking"
	bookingdb "ms-booking/internal/booking/db"
	"ms-booking/internal/checkin"
	checkindb "ms-booking/internal/checkin/db"
	"ms-booking/internal/config"
	"ms-booking/internal/database"
	"ms-booking/internal/database/migrations"
	"ms-booking/internal/kafka"
	"ms-booking/internal/lock"
	"ms-booking/internal/logger"
	"ms-booking/internal/payment"
	"ms-booking/internal/scheduler"
	"ms-booking/internal/slots"
	slotsdb "ms-booking/internal/slots/db"
	"ms-booking/internal/telemetry"
	"ms-booking/internal/utils"
)

func main() {
	logger := logger.NewLogger()
	defer logger.Close()

	logger.Info("APP", "Starting Booking Service initialization")

	if err := godotenv.Load(); err != nil {
		logger.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		logger.Info("CONFIG", "Loaded environment variables from .env file")
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Fatal("CONFIG", fmt.Sprintf("Invalid configuration: %v", err))
	}

	loc, err := time.LoadLocation(cfg.CheckIn.Timezone)
	if err != nil {
		logger.Fatal("CONFIG", fmt.Sprintf("Unknown FACILITY_TIMEZONE %q: %v", cfg.CheckIn.Timezone, err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Init(ctx, cfg.Telemetry, logger)
	if err != nil {
		logger.Fatal("TELEMETRY", fmt.Sprintf("Failed to initialize tracing: %v", err))
	}

	// --- Storage ---
	bunDB, err := database.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal("DATABASE", err.Error())
	}
	defer bunDB.Close()

	if cfg.Database.AutoMigrate {
		if err := migrate(ctx, cfg.Database, bunDB, logger); err != nil {
			logger.Fatal("DATABASE", fmt.Sprintf("Failed to migrate schema: %v", err))
		}
	}

	locker, closeLocker, err := lock.New(ctx, cfg.Redis, logger)
	if err != nil {
		logger.Fatal("REDIS", err.Error())
	}
	defer closeLocker()

	// --- Events ---
	var publisher kafka.Publisher = kafka.Noop{}
	if cfg.Kafka.Enabled {
		logger.Info("KAFKA", fmt.Sprintf("Using Kafka brokers %v", cfg.Kafka.Brokers))
		if err := kafka.EnsureTopicsExist(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topics.All(), logger); err != nil {
			logger.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}
		publisher = kafka.NewProducer(cfg.Kafka.Brokers, logger)
	} else {
		logger.Info("KAFKA", "Kafka disabled, domain events are dropped")
	}
	defer publisher.Close()
	events := kafka.NewEmitter(publisher, cfg.Kafka.Topics, logger)

	// --- Services ---
	client := &http.Client{Timeout: cfg.Payment.Timeout}
	gateway, err := payment.NewGateway(cfg.Payment, client)
	if err != nil {
		logger.Fatal("PAYMENT", err.Error())
	}
	logger.Info("PAYMENT", fmt.Sprintf("Payment provider: %s", gateway.Name()))

	verifier, err := auth.NewVerifier(ctx, cfg.Auth)
	if err != nil {
		logger.Fatal("AUTH", err.Error())
	}

	signer := checkin.NewTokenSigner(cfg.CheckIn.TokenSecret)
	slotStore := &slotsdb.DB{Bun: bunDB}
	bookingStore := &bookingdb.DB{Bun: bunDB}

	generator := slots.NewGenerator(slotStore, locker, logger, cfg.Generation.MaxRangeDays)
	generator.Now = utils.ClockIn(loc)
	handler := &api.Handler{
		Catalog:   slots.NewCatalog(slotStore, logger),
		Generator: generator,
		Ledger:    booking.NewLedger(bookingStore, signer, events, logger, loc),
		Payments:  booking.NewPaymentService(bookingStore, gateway, events, logger, cfg.Payment.Currency, cfg.Payment.Timeout),
		CheckIn:   checkin.NewEngine(&checkindb.DB{Bun: bunDB}, signer, locker, events, logger, loc),
		Analytics: analytics.NewService(bunDB, loc),
		DB:        bunDB,
		Logger:    logger,
	}

	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched = scheduler.New(generator, logger, cfg.Scheduler.DaysAhead)
		if err := sched.Start(cfg.Scheduler.Spec); err != nil {
			logger.Fatal("SCHEDULER", err.Error())
		}
	}

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      api.NewRouter(handler, verifier),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("HTTP", fmt.Sprintf("Booking Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	logger.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-ctx.Done()

	logger.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if sched != nil {
		sched.Stop(ctxShutdown)
	}
	if err := server.Shutdown(ctxShutdown); err != nil {
		logger.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		logger.Info("HTTP", "Booking Service shutdown complete")
	}
	if err := shutdownTracing(ctxShutdown); err != nil {
		logger.Warn("TELEMETRY", fmt.Sprintf("Tracer shutdown: %v", err))
	}
}

// migrate applies the SQL migrations on Postgres and builds the schema from the models on SQLite.
func migrate(ctx context.Context, cfg config.DatabaseConfig, db *bun.DB, log *logger.Logger) error {
	if cfg.Driver == "sqlite" {
		return database.CreateSchema(ctx, db)
	}
	runner := migrations.NewRunner(db.DB, log)
	return runner.Up()
}
