// Package migrations creates the service's tables on startup.
package migrations

import (
	"context"
	"fmt"

	"ms-reservations/internal/models"

	"github.com/uptrace/bun"
)

// Run creates every table this service owns if it does not already exist.
// Shard rows themselves are created lazily by the inventory store; only the
// schema is prepared here.
func Run(ctx context.Context, db *bun.DB) error {
	tables := []interface{}{
		(*models.Event)(nil),
		(*models.InventoryShard)(nil),
		(*models.Reservation)(nil),
		(*models.Order)(nil),
	}

	for _, model := range tables {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table failed: %w", err)
		}
	}
	return nil
}
