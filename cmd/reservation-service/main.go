package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-reservations/internal/catalog"
	"ms-reservations/internal/config"
	"ms-reservations/internal/database/migrations"
	"ms-reservations/internal/inventory/cache"
	inventorydb "ms-reservations/internal/inventory/db"
	"ms-reservations/internal/kafka"
	"ms-reservations/internal/logger"
	"ms-reservations/internal/order"
	orderdb "ms-reservations/internal/order/db"
	"ms-reservations/internal/order/discount"
	"ms-reservations/internal/order/order_api"
	"ms-reservations/internal/order/qr"
	"ms-reservations/internal/reservation"
	reservationapi "ms-reservations/internal/reservation/api"
	reservationdb "ms-reservations/internal/reservation/db"
	"ms-reservations/internal/store"
	"ms-reservations/internal/sweeper"
	"ms-reservations/internal/utils"
)

func openDatabase(cfg *config.Config, log *logger.Logger) *bun.DB {
	sqldb, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to open Postgres: %v", err))
	}
	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)

	if err := sqldb.Ping(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to Postgres: %v", err))
	}
	log.Info("DATABASE", "Postgres connection successful")

	return bun.NewDB(sqldb, pgdialect.New())
}

func main() {
	_ = godotenv.Load() // Loads .env file if present

	cfg := config.Load()
	log := logger.NewLogger()
	defer log.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bunDB := openDatabase(cfg, log)
	defer bunDB.Close()

	if err := migrations.Run(ctx, bunDB); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Migration failed: %v", err))
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn("REDIS", fmt.Sprintf("Redis unavailable, availability cache degraded: %v", err))
	}

	if cfg.Kafka.Enabled && !cfg.Kafka.MockMode {
		topics := []string{cfg.Kafka.Topics.ReservationEvents, cfg.Kafka.Topics.OrderEvents}
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, topics, log); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Failed to ensure topics: %v", err))
		}
	}
	producer := kafka.NewProducer(
		cfg.Kafka.Brokers,
		cfg.Kafka.Topics.ReservationEvents,
		cfg.Kafka.Topics.OrderEvents,
		cfg.Kafka.MockMode || !cfg.Kafka.Enabled,
		log,
	)
	defer producer.Close()

	retry := store.RetryPolicy{
		MaxRetries: uint64(cfg.Transaction.MaxRetries),
		BaseDelay:  cfg.Transaction.RetryBaseDelay,
		Isolation:  sql.LevelSerializable,
	}

	shards := inventorydb.NewStore(bunDB, cfg.Inventory.ShardCount)
	availabilityCache := cache.New(rdb, cfg.Redis.AvailabilityCacheTTL)
	catalogStore := catalog.NewStore(bunDB)

	reservationService := reservation.NewService(bunDB, shards, producer, log, cfg.Inventory.ReservationTTL, retry)
	orderService := order.NewService(
		bunDB,
		shards,
		qr.NewGenerator(cfg.QRSecret),
		discount.NewHTTPValidator(&http.Client{Timeout: 10 * time.Second}, log),
		producer,
		log,
		retry,
	)

	sweep := sweeper.New(
		&reservationdb.DB{Bun: bunDB},
		&orderdb.DB{Bun: bunDB},
		reservationService,
		producer,
		log,
		cfg.Inventory.SweepBatchSize,
		cfg.Inventory.PendingOrderTimeout,
	)
	sweep.Start(ctx, cfg.Inventory.SweepInterval, cfg.Inventory.StaleOrderInterval)

	reservationHandler := &reservationapi.Handler{
		Service: reservationService,
		Catalog: catalogStore,
		Shards:  shards,
		Cache:   availabilityCache,
		Logger:  log,
	}
	orderHandler := &order_api.Handler{OrderService: orderService, Logger: log}

	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(utils.SuccessResponse("ok", nil))
	})

	r.Route("/reservations", func(r chi.Router) {
		r.Post("/", reservationHandler.CreateReservation)
		r.Get("/{reservationID}", reservationHandler.GetReservation)
		r.Delete("/{reservationID}", reservationHandler.ReleaseReservation)
	})

	r.Get("/events/{eventID}/availability", reservationHandler.GetAvailability)

	r.Route("/orders", func(r chi.Router) {
		r.Post("/", orderHandler.CreateOrder)
		r.Get("/{orderID}", orderHandler.GetOrder)
		r.Post("/{orderID}/confirm", orderHandler.ConfirmPayment)
	})

	// Job endpoints for an external scheduler; the in-process tickers cover
	// deployments without one.
	r.Post("/jobs/cleanup-reservations", func(w http.ResponseWriter, req *http.Request) {
		released, err := sweep.CleanupExpiredReservations(req.Context())
		w.Header().Set("Content-Type", "application/json")
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(utils.ErrorResponse("Sweep failed", err.Error()))
			return
		}
		_ = json.NewEncoder(w).Encode(utils.SuccessResponse("Sweep complete", map[string]int{"released": released}))
	})
	r.Post("/jobs/fail-stale-orders", func(w http.ResponseWriter, req *http.Request) {
		failed, err := sweep.FailStaleOrders(req.Context())
		w.Header().Set("Content-Type", "application/json")
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(utils.ErrorResponse("Sweep failed", err.Error()))
			return
		}
		_ = json.NewEncoder(w).Encode(utils.SuccessResponse("Sweep complete", map[string]int{"expired": failed}))
	})

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("SERVER", fmt.Sprintf("Reservation service on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("SERVER", fmt.Sprintf("HTTP error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	cancel()
	ctxShutdown, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(ctxShutdown)
	log.Info("SERVER", "Reservation service shutdown complete")
}
