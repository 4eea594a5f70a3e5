// Package order converts reservations and direct purchases into finalized
// orders. The commit is one transaction: the canonical catalog deduction, the
// shard-lock release and the order write land together or not at all, and the
// deterministic order id makes retried commits return the first result.
package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-reservations/internal/catalog"
	inventorydb "ms-reservations/internal/inventory/db"
	"ms-reservations/internal/logger"
	"ms-reservations/internal/models"
	orderdb "ms-reservations/internal/order/db"
	"ms-reservations/internal/order/discount"
	"ms-reservations/internal/pricing"
	reservationdb "ms-reservations/internal/reservation/db"
	"ms-reservations/internal/store"
	"ms-reservations/internal/utils"

	"github.com/uptrace/bun"
)

var (
	ErrReservationNotFound = errors.New("reservation not found")
	ErrReservationExpired  = errors.New("reservation has expired")
	ErrTierNotFound        = errors.New("ticket tier not found")
	ErrInsufficientStock   = errors.New("insufficient tickets available")
	ErrNoItems             = errors.New("order has no items")
)

// Publisher is the slice of the Kafka producer this service emits on.
type Publisher interface {
	PublishOrderCreated(order models.Order) error
	PublishOrderConfirmed(order models.Order) error
	PublishOrderExpired(order models.Order) error
}

// QRGenerator issues ticket credentials when an order confirms.
type QRGenerator interface {
	GenerateOrderQRCodes(order *models.Order, event *models.Event) ([]models.QRCode, error)
}

type Service struct {
	Bun    *bun.DB
	DB     *orderdb.DB
	Shards *inventorydb.Store
	QR     QRGenerator
	Promo  discount.Validator
	Kafka  Publisher
	Logger *logger.Logger
	Retry  store.RetryPolicy

	// Now is the clock; tests override it.
	Now func() time.Time
}

func NewService(bunDB *bun.DB, shards *inventorydb.Store, qrGen QRGenerator, promo discount.Validator, kafka Publisher, log *logger.Logger, retry store.RetryPolicy) *Service {
	return &Service{
		Bun:    bunDB,
		DB:     &orderdb.DB{Bun: bunDB},
		Shards: shards,
		QR:     qrGen,
		Promo:  promo,
		Kafka:  kafka,
		Logger: log,
		Retry:  retry,
		Now:    time.Now,
	}
}

// CreateOrder commits a purchase. With a reservation id the order id is
// derived from it, so a duplicate commit (client retry, double-delivered
// webhook) finds the existing order and returns it unchanged instead of
// deducting inventory twice.
func (s *Service) CreateOrder(ctx context.Context, req models.OrderRequest) (*models.Order, error) {
	var orderID string
	if req.ReservationID != "" {
		orderID = utils.OrderIDFromReservation(req.ReservationID)
	} else {
		if len(req.Items) == 0 {
			return nil, ErrNoItems
		}
		orderID = utils.GenerateOrderID()
	}

	// Promo validation is an external call; it happens outside the
	// transaction and only its numeric result is used inside.
	var promo *discount.ValidationResult
	if req.PromoCode != "" {
		result, err := s.Promo.ValidatePromoCode(ctx, req.EventID, req.PromoCode, req.UserID, nil)
		if err != nil {
			s.Logger.Error("PROMO", fmt.Sprintf("Promo validation failed for %s: %v", req.PromoCode, err))
		} else if result.Valid {
			promo = result
		}
	}

	var committed *models.Order
	alreadyExisted := false

	err := store.RunInTx(ctx, s.Bun, s.Retry, func(ctx context.Context, tx bun.Tx) error {
		alreadyExisted = false

		existing, err := orderdb.GetOrderTx(ctx, tx, orderID)
		if err == nil {
			committed = existing
			alreadyExisted = true
			return nil
		}
		if !errors.Is(err, orderdb.ErrOrderNotFound) {
			return err
		}

		now := s.Now().UTC()

		var reservation *models.Reservation
		eventID := req.EventID
		if req.ReservationID != "" {
			reservation, err = reservationdb.GetReservationTx(ctx, tx, req.ReservationID)
			if errors.Is(err, reservationdb.ErrReservationNotFound) {
				return ErrReservationNotFound
			}
			if err != nil {
				return err
			}
			if reservation.Status == models.ReservationExpired {
				return ErrReservationExpired
			}
			eventID = reservation.EventID
		}

		event, err := catalog.GetEventTx(ctx, tx, eventID)
		if err != nil {
			return err
		}

		var tickets []models.OrderTicket
		if reservation != nil {
			for _, item := range reservation.Items {
				tickets = append(tickets, models.OrderTicket{
					TierID:    item.TierID,
					TierName:  item.TierName,
					Quantity:  item.Quantity,
					UnitPrice: item.UnitPrice,
					Subtotal:  item.Subtotal,
				})
			}
		} else {
			for _, line := range req.Items {
				tier := event.Tier(line.TierID)
				if tier == nil {
					return ErrTierNotFound
				}
				price := pricing.Resolve(tier, now)
				tickets = append(tickets, models.OrderTicket{
					TierID:    tier.ID,
					TierName:  tier.Name,
					Quantity:  line.Quantity,
					UnitPrice: price.Price,
					Subtotal:  price.Price * float64(line.Quantity),
				})
			}
		}

		// Shard for sold counters: the reservation's own shard, or a fresh
		// pick for a direct purchase.
		shardIndex := 0
		if reservation != nil {
			shardIndex = reservation.ShardIndex
		} else {
			shardIndex = s.Shards.PickShard()
		}

		for _, line := range tickets {
			tier := event.Tier(line.TierID)
			if tier == nil {
				return ErrTierNotFound
			}

			if reservation != nil {
				if tier.Remaining < line.Quantity {
					return fmt.Errorf("%w: tier %s", ErrInsufficientStock, tier.Name)
				}
				tier.Remaining -= line.Quantity
				// The hold is consumed in the same transaction that spends it.
				if err := inventorydb.DecrementLock(ctx, tx, event.ID, tier.ID, shardIndex, line.Quantity); err != nil {
					return err
				}
			} else {
				// Direct purchases hold no lock; re-validate against
				// remaining minus everyone else's holds at commit time.
				avail, err := inventorydb.Availability(ctx, tx, event.ID, tier.ID)
				if err != nil {
					return err
				}
				if tier.Remaining-avail.Locked < line.Quantity {
					return fmt.Errorf("%w: tier %s", ErrInsufficientStock, tier.Name)
				}
				tier.Remaining -= line.Quantity
			}

			if err := inventorydb.IncrementSold(ctx, tx, event.ID, tier.ID, shardIndex, line.Quantity); err != nil {
				return err
			}
		}

		if err := catalog.UpdateTiers(ctx, tx, event); err != nil {
			return err
		}

		var total float64
		for _, line := range tickets {
			total += line.Subtotal
		}
		if promo != nil {
			total -= promo.DiscountAmount
			if total < 0 {
				total = 0
			}
		}

		newOrder := &models.Order{
			ID:          orderID,
			EventID:     event.ID,
			UserID:      req.UserID,
			Tickets:     tickets,
			TotalAmount: total,
			PromoCode:   req.PromoCode,
			CreatedAt:   now,
		}
		if reservation != nil {
			newOrder.ReservationID = reservation.ID
		}

		if total == 0 {
			newOrder.Status = models.OrderConfirmed
			newOrder.ConfirmedAt = now
			codes, err := s.QR.GenerateOrderQRCodes(newOrder, event)
			if err != nil {
				return err
			}
			newOrder.QRCodes = codes
		} else {
			newOrder.Status = models.OrderPendingPayment
		}

		if err := orderdb.InsertOrderTx(ctx, tx, newOrder); err != nil {
			return err
		}

		if reservation != nil {
			if err := reservationdb.UpdateStatusTx(ctx, tx, reservation.ID, models.ReservationConverted, newOrder.ID); err != nil {
				return err
			}
		}

		committed = newOrder
		return nil
	})
	if err != nil {
		return nil, err
	}

	if alreadyExisted {
		s.Logger.LogOrder("DUPLICATE", committed.ID, "returning existing order")
		return committed, nil
	}

	s.Logger.LogOrder("CREATE", committed.ID, fmt.Sprintf("status=%s total=%.2f", committed.Status, committed.TotalAmount))
	if err := s.Kafka.PublishOrderCreated(*committed); err != nil {
		s.Logger.Error("KAFKA", fmt.Sprintf("order_created publish failed: %v", err))
	}
	if committed.Status == models.OrderConfirmed {
		s.afterConfirmation(ctx, committed)
	}
	return committed, nil
}

// ConfirmOrderPayment is the webhook entry point. Safe to deliver any number
// of times: an already-confirmed order is returned unchanged with its QR
// codes intact.
func (s *Service) ConfirmOrderPayment(ctx context.Context, orderID string, payment models.PaymentData) (*models.Order, error) {
	var confirmed *models.Order
	alreadyConfirmed := false

	err := store.RunInTx(ctx, s.Bun, s.Retry, func(ctx context.Context, tx bun.Tx) error {
		alreadyConfirmed = false

		order, err := orderdb.GetOrderTx(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order.Status == models.OrderConfirmed {
			confirmed = order
			alreadyConfirmed = true
			return nil
		}

		event, err := catalog.GetEventTx(ctx, tx, order.EventID)
		if err != nil {
			return err
		}

		order.Status = models.OrderConfirmed
		order.PaymentID = payment.PaymentID
		order.PaymentSig = payment.Signature
		order.PaymentMode = payment.Mode
		order.ConfirmedAt = s.Now().UTC()

		codes, err := s.QR.GenerateOrderQRCodes(order, event)
		if err != nil {
			return err
		}
		order.QRCodes = codes

		if err := orderdb.UpdateOrderTx(ctx, tx, order); err != nil {
			return err
		}
		confirmed = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	if alreadyConfirmed {
		s.Logger.LogOrder("WEBHOOK", confirmed.ID, "already confirmed, no-op")
		return confirmed, nil
	}

	s.Logger.LogOrder("CONFIRM", confirmed.ID, fmt.Sprintf("payment=%s", confirmed.PaymentID))
	s.afterConfirmation(ctx, confirmed)
	return confirmed, nil
}

// afterConfirmation handles the post-commit side effects of a confirmation:
// the lifecycle event and the promo redemption record.
func (s *Service) afterConfirmation(ctx context.Context, order *models.Order) {
	if err := s.Kafka.PublishOrderConfirmed(*order); err != nil {
		s.Logger.Error("KAFKA", fmt.Sprintf("order_confirmed publish failed: %v", err))
	}
	if order.PromoCode != "" {
		if err := s.Promo.RecordRedemption(ctx, order.EventID, order.PromoCode, order.UserID, order.ID); err != nil {
			s.Logger.Error("PROMO", fmt.Sprintf("Failed to record redemption for %s: %v", order.ID, err))
		}
	}
}

// GetOrder fetches one order; orderdb.ErrOrderNotFound when absent.
func (s *Service) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	return s.DB.GetOrderByID(ctx, orderID)
}
