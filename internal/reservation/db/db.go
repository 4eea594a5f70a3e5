// Package db is the persistence layer for cart reservations.
package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"ms-reservations/internal/models"

	"github.com/uptrace/bun"
)

var ErrReservationNotFound = errors.New("reservation not found")

type DB struct {
	Bun *bun.DB
}

// GetReservationByID fetches one reservation through the connection pool.
func (d *DB) GetReservationByID(ctx context.Context, id string) (*models.Reservation, error) {
	return GetReservationTx(ctx, d.Bun, id)
}

// FindExpired returns up to limit active reservations whose expiry has
// passed. Ordered oldest-first so a capped sweep drains the backlog in order.
func (d *DB) FindExpired(ctx context.Context, now time.Time, limit int) ([]models.Reservation, error) {
	var reservations []models.Reservation
	err := d.Bun.NewSelect().
		Model(&reservations).
		Where("status = ?", models.ReservationActive).
		Where("expires_at < ?", now).
		Order("expires_at ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return reservations, nil
}

// GetReservationTx fetches one reservation through idb, which may be a pooled
// DB or an open transaction.
func GetReservationTx(ctx context.Context, idb bun.IDB, id string) (*models.Reservation, error) {
	var reservation models.Reservation
	err := idb.NewSelect().
		Model(&reservation).
		Where("reservation_id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrReservationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &reservation, nil
}

// InsertReservationTx writes a new reservation inside the caller's
// transaction.
func InsertReservationTx(ctx context.Context, idb bun.IDB, reservation *models.Reservation) error {
	_, err := idb.NewInsert().Model(reservation).Exec(ctx)
	return err
}

// UpdateStatusTx transitions a reservation's status, optionally recording the
// order that consumed it.
func UpdateStatusTx(ctx context.Context, idb bun.IDB, id, status, orderID string) error {
	q := idb.NewUpdate().
		Model((*models.Reservation)(nil)).
		Set("status = ?", status).
		Where("reservation_id = ?", id)
	if orderID != "" {
		q = q.Set("order_id = ?", orderID)
	}
	_, err := q.Exec(ctx)
	return err
}
