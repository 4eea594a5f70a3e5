// Package db implements the sharded inventory counters. Each (event, tier,
// shard) row is an independent counter with its own atomic upsert, so
// concurrent reservations fan their lock writes across N rows instead of
// serializing on one.
package db

import (
	"context"
	"math/rand"

	"ms-reservations/internal/models"

	"github.com/uptrace/bun"
)

// Store provides shard selection and pooled-connection availability reads.
// The mutating operations are package functions over bun.IDB so they run
// inside whatever transaction the caller already holds.
type Store struct {
	Bun        *bun.DB
	ShardCount int
}

func NewStore(bunDB *bun.DB, shardCount int) *Store {
	return &Store{Bun: bunDB, ShardCount: shardCount}
}

// PickShard chooses a uniformly random shard index for a new reservation.
// Random placement is the load-distribution mechanism under burst traffic.
func (s *Store) PickShard() int {
	return rand.Intn(s.ShardCount)
}

// Availability sums locked and sold counters across all shards of a tier
// using the connection pool. Reads taken this way are best-effort: the rows
// are not snapshotted together. Decision paths must call the package-level
// Availability with their open transaction instead.
func (s *Store) Availability(ctx context.Context, eventID, tierID string) (models.TierAvailability, error) {
	return Availability(ctx, s.Bun, eventID, tierID)
}

// Availability sums a tier's shard counters through idb, which may be a
// pooled DB or an open transaction.
func Availability(ctx context.Context, idb bun.IDB, eventID, tierID string) (models.TierAvailability, error) {
	var shards []models.InventoryShard
	err := idb.NewSelect().
		Model(&shards).
		Where("event_id = ?", eventID).
		Where("tier_id = ?", tierID).
		Scan(ctx)
	if err != nil {
		return models.TierAvailability{}, err
	}

	var avail models.TierAvailability
	for _, sh := range shards {
		avail.Locked += sh.LockedQty
		avail.Sold += sh.SoldQty
	}
	return avail, nil
}

// IncrementLock adds delta to a shard's locked counter, creating the shard
// row lazily on first use.
func IncrementLock(ctx context.Context, idb bun.IDB, eventID, tierID string, shardIndex, delta int) error {
	shard := &models.InventoryShard{
		EventID:    eventID,
		TierID:     tierID,
		ShardIndex: shardIndex,
		LockedQty:  delta,
	}
	_, err := idb.NewInsert().
		Model(shard).
		On("CONFLICT (event_id, tier_id, shard_index) DO UPDATE").
		Set("locked_qty = locked_qty + EXCLUDED.locked_qty").
		Exec(ctx)
	return err
}

// DecrementLock removes delta from a shard's locked counter, clamping at
// zero. A decrement against an already-drained counter is a no-op, which is
// what makes double release (explicit cancel racing the sweeper) harmless.
func DecrementLock(ctx context.Context, idb bun.IDB, eventID, tierID string, shardIndex, delta int) error {
	_, err := idb.NewUpdate().
		Model((*models.InventoryShard)(nil)).
		Set("locked_qty = CASE WHEN locked_qty >= ? THEN locked_qty - ? ELSE 0 END", delta, delta).
		Where("event_id = ?", eventID).
		Where("tier_id = ?", tierID).
		Where("shard_index = ?", shardIndex).
		Exec(ctx)
	return err
}

// IncrementSold records delta confirmed sales on a shard. Sold counters
// mirror confirmed deductions from the canonical catalog so the shard-summed
// availability formula (quantity - sold - locked) stays truthful without
// reading the event document.
func IncrementSold(ctx context.Context, idb bun.IDB, eventID, tierID string, shardIndex, delta int) error {
	shard := &models.InventoryShard{
		EventID:    eventID,
		TierID:     tierID,
		ShardIndex: shardIndex,
		SoldQty:    delta,
	}
	_, err := idb.NewInsert().
		Model(shard).
		On("CONFLICT (event_id, tier_id, shard_index) DO UPDATE").
		Set("sold_qty = sold_qty + EXCLUDED.sold_qty").
		Exec(ctx)
	return err
}
