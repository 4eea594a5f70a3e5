// Package db is the persistence layer for orders.
package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"ms-reservations/internal/models"

	"github.com/uptrace/bun"
)

var ErrOrderNotFound = errors.New("order not found")

type DB struct {
	Bun *bun.DB
}

// GetOrderByID fetches one order through the connection pool.
func (d *DB) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	return GetOrderTx(ctx, d.Bun, id)
}

// GetOrdersByUserID lists a user's orders, newest first.
func (d *DB) GetOrdersByUserID(ctx context.Context, userID string) ([]models.Order, error) {
	var orders []models.Order
	err := d.Bun.NewSelect().
		Model(&orders).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// FindStalePending returns up to limit orders stuck in pending_payment since
// before cutoff, oldest first.
func (d *DB) FindStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	var orders []models.Order
	err := d.Bun.NewSelect().
		Model(&orders).
		Where("status = ?", models.OrderPendingPayment).
		Where("created_at < ?", cutoff).
		Order("created_at ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// GetOrderTx fetches one order through idb, which may be a pooled DB or an
// open transaction.
func GetOrderTx(ctx context.Context, idb bun.IDB, id string) (*models.Order, error) {
	var order models.Order
	err := idb.NewSelect().
		Model(&order).
		Where("order_id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// InsertOrderTx writes a new order inside the caller's transaction.
func InsertOrderTx(ctx context.Context, idb bun.IDB, order *models.Order) error {
	_, err := idb.NewInsert().Model(order).Exec(ctx)
	return err
}

// UpdateOrderTx persists an order's mutable fields.
func UpdateOrderTx(ctx context.Context, idb bun.IDB, order *models.Order) error {
	_, err := idb.NewUpdate().
		Model(order).
		Column("status", "total_amount", "promo_code", "payment_id", "payment_sig", "payment_mode", "qr_codes", "confirmed_at").
		Where("order_id = ?", order.ID).
		Exec(ctx)
	return err
}

// MarkExpired transitions one pending order to expired. Returns the number
// of rows changed so the sweeper can skip orders a webhook confirmed in the
// meantime.
func (d *DB) MarkExpired(ctx context.Context, id string) (int64, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("status = ?", models.OrderExpired).
		Where("order_id = ?", id).
		Where("status = ?", models.OrderPendingPayment).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
