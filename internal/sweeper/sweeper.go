// Package sweeper runs the background reclamation loops: expired
// reservations get their shard locks released, and orders stuck in
// pending_payment get marked expired so they are never mistaken for live
// ones. Both loops are idempotent and safe to run concurrently with
// themselves or with explicit cancellations.
package sweeper

import (
	"context"
	"fmt"
	"time"

	"ms-reservations/internal/logger"
	"ms-reservations/internal/models"
	orderdb "ms-reservations/internal/order/db"
	reservationdb "ms-reservations/internal/reservation/db"
)

// Releaser is the reservation service's release path; the sweep converges on
// the same idempotent operation explicit cancellation uses.
type Releaser interface {
	ReleaseInventory(ctx context.Context, reservationID string) error
}

// Publisher is the slice of the Kafka producer the sweeper emits on.
type Publisher interface {
	PublishOrderExpired(order models.Order) error
}

type Sweeper struct {
	Reservations *reservationdb.DB
	Orders       *orderdb.DB
	Releaser     Releaser
	Kafka        Publisher
	Logger       *logger.Logger

	BatchSize           int
	PendingOrderTimeout time.Duration

	// Now is the clock; tests override it.
	Now func() time.Time
}

func New(reservations *reservationdb.DB, orders *orderdb.DB, releaser Releaser, kafka Publisher, log *logger.Logger, batchSize int, pendingTimeout time.Duration) *Sweeper {
	return &Sweeper{
		Reservations:        reservations,
		Orders:              orders,
		Releaser:            releaser,
		Kafka:               kafka,
		Logger:              log,
		BatchSize:           batchSize,
		PendingOrderTimeout: pendingTimeout,
		Now:                 time.Now,
	}
}

// CleanupExpiredReservations releases one batch of past-expiry holds. A
// failure on one reservation is logged and the sweep continues; the next run
// picks up whatever was left behind.
func (s *Sweeper) CleanupExpiredReservations(ctx context.Context) (int, error) {
	expired, err := s.Reservations.FindExpired(ctx, s.Now().UTC(), s.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to query expired reservations: %w", err)
	}
	if len(expired) == 0 {
		return 0, nil
	}

	released := 0
	for _, reservation := range expired {
		if err := s.Releaser.ReleaseInventory(ctx, reservation.ID); err != nil {
			s.Logger.Error("SWEEP", fmt.Sprintf("Failed to release reservation %s: %v", reservation.ID, err))
			continue
		}
		released++
	}

	s.Logger.LogSweep("RESERVATIONS", fmt.Sprintf("released %d of %d expired", released, len(expired)))
	return released, nil
}

// FailStaleOrders marks one batch of stuck pending orders expired. Inventory
// is untouched: it was finalized when the order was created.
func (s *Sweeper) FailStaleOrders(ctx context.Context) (int, error) {
	cutoff := s.Now().UTC().Add(-s.PendingOrderTimeout)
	stale, err := s.Orders.FindStalePending(ctx, cutoff, s.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to query stale orders: %w", err)
	}
	if len(stale) == 0 {
		return 0, nil
	}

	failed := 0
	for _, order := range stale {
		affected, err := s.Orders.MarkExpired(ctx, order.ID)
		if err != nil {
			s.Logger.Error("SWEEP", fmt.Sprintf("Failed to expire order %s: %v", order.ID, err))
			continue
		}
		if affected == 0 {
			// A webhook confirmed it between the query and the update.
			continue
		}
		failed++

		order.Status = models.OrderExpired
		if err := s.Kafka.PublishOrderExpired(order); err != nil {
			s.Logger.Error("KAFKA", fmt.Sprintf("order_expired publish failed: %v", err))
		}
	}

	s.Logger.LogSweep("ORDERS", fmt.Sprintf("expired %d of %d stale pending", failed, len(stale)))
	return failed, nil
}

// Start runs both sweeps on their intervals until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context, sweepInterval, staleInterval time.Duration) {
	go s.loop(ctx, sweepInterval, "RESERVATIONS", s.CleanupExpiredReservations)
	go s.loop(ctx, staleInterval, "ORDERS", s.FailStaleOrders)
}

func (s *Sweeper) loop(ctx context.Context, interval time.Duration, name string, sweep func(context.Context) (int, error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Logger.LogSweep(name, "sweep loop stopped")
			return
		case <-ticker.C:
			if _, err := sweep(ctx); err != nil {
				s.Logger.Error("SWEEP", fmt.Sprintf("%s sweep failed: %v", name, err))
			}
		}
	}
}
