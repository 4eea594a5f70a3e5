// Package reservation implements time-boxed inventory holds. All shared-state
// mutations run as single serializable transactions; correctness under
// concurrent buyers comes from the store's conflict detection plus the
// bounded retry policy, never from in-process locking.
package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-reservations/internal/catalog"
	inventorydb "ms-reservations/internal/inventory/db"
	"ms-reservations/internal/logger"
	"ms-reservations/internal/models"
	"ms-reservations/internal/pricing"
	reservationdb "ms-reservations/internal/reservation/db"
	"ms-reservations/internal/store"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ValidationError is a buyer-displayable rejection. It aborts the enclosing
// transaction but is surfaced as a typed result, not as a failed call.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Publisher is the slice of the Kafka producer this service emits on.
type Publisher interface {
	PublishReservationCreated(res models.Reservation) error
	PublishReservationReleased(res models.Reservation) error
}

type Service struct {
	Bun    *bun.DB
	DB     *reservationdb.DB
	Shards *inventorydb.Store
	Kafka  Publisher
	Logger *logger.Logger
	TTL    time.Duration
	Retry  store.RetryPolicy

	// Now is the clock; tests override it to simulate expiry.
	Now func() time.Time
}

func NewService(bunDB *bun.DB, shards *inventorydb.Store, kafka Publisher, log *logger.Logger, ttl time.Duration, retry store.RetryPolicy) *Service {
	return &Service{
		Bun:    bunDB,
		DB:     &reservationdb.DB{Bun: bunDB},
		Shards: shards,
		Kafka:  kafka,
		Logger: log,
		TTL:    ttl,
		Retry:  retry,
		Now:    time.Now,
	}
}

// CreateReservation validates the requested quantities against the canonical
// catalog and the shard counters, then locks the whole request on one random
// shard and writes the hold — all inside one transaction, so either every
// item locks or none do.
func (s *Service) CreateReservation(ctx context.Context, req models.ReservationRequest) (models.ReservationResult, error) {
	if len(req.Items) == 0 {
		return models.ReservationResult{Success: false, Error: "No tickets requested"}, nil
	}
	for _, line := range req.Items {
		if line.Quantity <= 0 {
			return models.ReservationResult{Success: false, Error: "Invalid ticket quantity"}, nil
		}
	}

	var created models.Reservation

	err := store.RunInTx(ctx, s.Bun, s.Retry, func(ctx context.Context, tx bun.Tx) error {
		now := s.Now().UTC()

		event, err := catalog.GetEventTx(ctx, tx, req.EventID)
		if err != nil {
			if errors.Is(err, catalog.ErrEventNotFound) {
				return &ValidationError{Message: "Event not found"}
			}
			return err
		}

		items := make([]models.ReservationItem, 0, len(req.Items))
		for _, line := range req.Items {
			tier := event.Tier(line.TierID)
			if tier == nil {
				return &ValidationError{Message: "Ticket tier not found"}
			}
			if tier.SalesStart != nil && now.Before(*tier.SalesStart) {
				return &ValidationError{Message: fmt.Sprintf("%s sales have not started", tier.Name)}
			}
			if tier.SalesEnd != nil && now.After(*tier.SalesEnd) {
				return &ValidationError{Message: fmt.Sprintf("%s sales have ended", tier.Name)}
			}

			// The availability read happens inside this transaction so the
			// store's conflict detection covers the decision that depends
			// on it.
			avail, err := inventorydb.Availability(ctx, tx, event.ID, tier.ID)
			if err != nil {
				return err
			}
			available := tier.Quantity - avail.Sold - avail.Locked
			if line.Quantity > available {
				if available <= 0 {
					return &ValidationError{Message: fmt.Sprintf("%s is sold out", tier.Name)}
				}
				return &ValidationError{Message: fmt.Sprintf("Only %d %s tickets available", available, tier.Name)}
			}

			price := pricing.Resolve(tier, now)
			items = append(items, models.ReservationItem{
				TierID:    tier.ID,
				TierName:  tier.Name,
				Quantity:  line.Quantity,
				UnitPrice: price.Price,
				Subtotal:  price.Price * float64(line.Quantity),
			})
		}

		// One shard for the whole reservation: its lock writes commit or
		// roll back as a unit.
		shardIndex := s.Shards.PickShard()
		for _, item := range items {
			if err := inventorydb.IncrementLock(ctx, tx, event.ID, item.TierID, shardIndex, item.Quantity); err != nil {
				return err
			}
		}

		created = models.Reservation{
			ID:         uuid.NewString(),
			EventID:    event.ID,
			CustomerID: req.CustomerID,
			DeviceID:   req.DeviceID,
			Items:      items,
			ShardIndex: shardIndex,
			Status:     models.ReservationActive,
			CreatedAt:  now,
			ExpiresAt:  now.Add(s.TTL),
		}
		return reservationdb.InsertReservationTx(ctx, tx, &created)
	})

	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			s.Logger.LogReservation("REJECT", req.EventID, verr.Message)
			return models.ReservationResult{Success: false, Error: verr.Message}, nil
		}
		return models.ReservationResult{}, err
	}

	s.Logger.LogReservation("CREATE", created.ID, fmt.Sprintf("shard=%d items=%d", created.ShardIndex, len(created.Items)))
	if err := s.Kafka.PublishReservationCreated(created); err != nil {
		s.Logger.Error("KAFKA", fmt.Sprintf("reservation_created publish failed: %v", err))
	}

	var total float64
	for _, item := range created.Items {
		total += item.Subtotal
	}
	return models.ReservationResult{
		Success:       true,
		ReservationID: created.ID,
		Items:         created.Items,
		TotalAmount:   total,
		ExpiresAt:     created.ExpiresAt,
	}, nil
}

// ReleaseInventory returns a reservation's locked quantities to its shard and
// marks it expired. Idempotent: a reservation that is already converted or
// expired is left untouched, so an explicit cancel racing the sweeper is
// harmless whichever runs first.
func (s *Service) ReleaseInventory(ctx context.Context, reservationID string) error {
	var released *models.Reservation

	err := store.RunInTx(ctx, s.Bun, s.Retry, func(ctx context.Context, tx bun.Tx) error {
		reservation, err := reservationdb.GetReservationTx(ctx, tx, reservationID)
		if err != nil {
			return err
		}
		if reservation.Status != models.ReservationActive {
			return nil
		}

		for _, item := range reservation.Items {
			if err := inventorydb.DecrementLock(ctx, tx, reservation.EventID, item.TierID, reservation.ShardIndex, item.Quantity); err != nil {
				return err
			}
		}
		if err := reservationdb.UpdateStatusTx(ctx, tx, reservation.ID, models.ReservationExpired, ""); err != nil {
			return err
		}
		reservation.Status = models.ReservationExpired
		released = reservation
		return nil
	})
	if err != nil {
		return err
	}

	if released != nil {
		s.Logger.LogReservation("RELEASE", released.ID, fmt.Sprintf("shard=%d", released.ShardIndex))
		if err := s.Kafka.PublishReservationReleased(*released); err != nil {
			s.Logger.Error("KAFKA", fmt.Sprintf("reservation_released publish failed: %v", err))
		}
	}
	return nil
}

// GetReservation fetches one reservation; reservationdb.ErrReservationNotFound
// when absent.
func (s *Service) GetReservation(ctx context.Context, reservationID string) (*models.Reservation, error) {
	return s.DB.GetReservationByID(ctx, reservationID)
}
