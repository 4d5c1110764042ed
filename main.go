package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-admission/internal/archive"
	"ms-admission/internal/auth"
	"ms-admission/internal/config"
	"ms-admission/internal/database/migrations"
	"ms-admission/internal/kafka"
	"ms-admission/internal/logger"
	"ms-admission/internal/models"
	"ms-admission/internal/monitoring"
	"ms-admission/internal/payments"
	"ms-admission/internal/tickets/qr"
	tickets "ms-admission/internal/tickets/service"
	"ms-admission/internal/tickets/ticket_api"
)

func connectDatabase(cfg config.DatabaseConfig, log *logger.Logger) *bun.DB {
	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
			cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database)
	}

	var sqldb *sql.DB
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", dsn)
		if err == nil {
			err = sqldb.Ping()
			if err == nil {
				break
			}
		}
		log.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", maxRetries, err))
	}

	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.MaxLifetime)

	log.Info("DATABASE", "PostgreSQL connection successful")
	return bun.NewDB(sqldb, pgdialect.New())
}

func main() {
	log := logger.NewLogger()
	defer log.Close()

	log.Info("APP", "Starting Admission Service initialization")

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		log.Info("CONFIG", "Loaded environment variables from .env file")
	}

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bunDB := connectDatabase(cfg.Database, log)
	defer bunDB.Close()

	runner := migrations.NewRunner(bunDB, migrations.DefaultOptions(), log)
	if err := runner.MigrateUp(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Migrations failed: %v", err))
	}
	defer runner.Close()

	replayCache, err := payments.NewRedisReplayCache(cfg.Redis.Addr, 24*time.Hour, log)
	if err != nil {
		log.Fatal("REDIS", fmt.Sprintf("Redis connection error: %v", err))
	}
	defer replayCache.Close()

	gateway, err := payments.NewStripeGateway(cfg.Payment, log)
	if err != nil {
		log.Fatal("STRIPE", fmt.Sprintf("Payment gateway init failed: %v", err))
	}

	var publisher *kafka.Producer
	if cfg.Kafka.Enabled {
		requiredTopics := []string{
			cfg.Kafka.Topics.TicketApproved,
			cfg.Kafka.Topics.TicketArchived,
			cfg.Kafka.Topics.TicketValidated,
			cfg.Kafka.Topics.PaymentNotification,
		}
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, requiredTopics, log); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}
		publisher = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics, log)
		defer publisher.Close()
		log.Info("KAFKA", "Kafka producer initialized successfully")
	} else {
		log.Warn("KAFKA", "Kafka disabled, lifecycle events will not be published")
	}

	qrGen := qr.NewGenerator(cfg.Tickets.QRSecretKey)

	serviceOpts := tickets.Options{
		ReservationWindow: cfg.Tickets.ReservationWindow,
		CodeMaxAttempts:   cfg.Tickets.CodeMaxAttempts,
		GeneralPrice:      cfg.Tickets.GeneralPrice,
	}
	var svcPublisher tickets.Publisher
	var sweepPublisher archive.Publisher
	if publisher != nil {
		svcPublisher = publisher
		sweepPublisher = publisher
	}
	ticketService := tickets.NewTicketService(bunDB, gateway, svcPublisher, qrGen, log, serviceOpts)

	reconciler := payments.NewReconciler(ticketService, replayCache, log)
	sweeper := archive.NewSweeper(bunDB, sweepPublisher, log, cfg.Sweep.BatchSize)

	worker := archive.NewWorker(sweeper, cfg.Sweep.Interval, log)
	go worker.Start(ctx)

	if cfg.Kafka.Enabled {
		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topics.PaymentNotification, cfg.Kafka.GroupID, log)
		defer consumer.Close()
		go consumer.Start(ctx, func(ctx context.Context, n models.ProviderNotification) error {
			_, err := reconciler.Process(ctx, n)
			return err
		})
	}

	handler := ticket_api.NewHandler(ticketService, reconciler, sweeper, cfg, log)

	log.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()

	// --- Public routes ---
	r.Get("/metrics", monitoring.Handler().ServeHTTP)
	r.Post("/api/payments/webhook", handler.PaymentWebhook)
	r.Route("/api", func(r chi.Router) {
		r.Post("/tickets", handler.PurchaseTicket)
		r.Get("/tickets", handler.CustomerTickets)
		r.Get("/tickets/{ticketID}", handler.ViewTicket)
		r.Get("/tickets/{ticketID}/pass", handler.TicketPass)
		r.Get("/inventory/{eventID}", handler.EventAvailability)
		r.Post("/validate", handler.ValidateTicket)
	})

	// --- Admin routes ---
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(cfg.Auth.OIDCIssuer, log))
		r.Route("/api/admin", func(r chi.Router) {
			r.Post("/inventory", handler.CreateInventory)
			r.Put("/inventory", handler.UpdateInventory)
			r.Post("/sweep", handler.TriggerSweep)
			r.Post("/sweep/backfill", handler.TriggerBackfill)
			r.Get("/archives/{eventID}", handler.ListArchives)
		})
	})

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("Admission Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	cancel()

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server shutdown failed: %v", err))
	}
	log.Info("APP", "Shutdown complete")
}
