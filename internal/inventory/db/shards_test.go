package db_test

import (
	"context"
	"database/sql"
	"testing"

	inventorydb "ms-reservations/internal/inventory/db"
	"ms-reservations/internal/models"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func setupTestDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:?cache=shared")
	if err != nil {
		t.Fatalf("Failed to open sqlite: %v", err)
	}
	bunDB := bun.NewDB(sqldb, sqlitedialect.New())

	err = bunDB.ResetModel(context.Background(), (*models.InventoryShard)(nil))
	if err != nil {
		t.Fatalf("Failed to create shard table: %v", err)
	}
	t.Cleanup(func() { bunDB.Close() })

	return bunDB
}

func TestIncrementLockCreatesShardLazily(t *testing.T) {
	bunDB := setupTestDB(t)
	ctx := context.Background()

	err := inventorydb.IncrementLock(ctx, bunDB, "ev1", "ga", 3, 2)
	if err != nil {
		t.Fatalf("Failed to increment lock: %v", err)
	}

	avail, err := inventorydb.Availability(ctx, bunDB, "ev1", "ga")
	if err != nil {
		t.Fatalf("Failed to read availability: %v", err)
	}
	if avail.Locked != 2 {
		t.Errorf("Expected locked=2, got %d", avail.Locked)
	}
	if avail.Sold != 0 {
		t.Errorf("Expected sold=0, got %d", avail.Sold)
	}
}

func TestIncrementLockReusesShard(t *testing.T) {
	bunDB := setupTestDB(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := inventorydb.IncrementLock(ctx, bunDB, "ev1", "ga", 0, 2); err != nil {
			t.Fatalf("Failed to increment lock: %v", err)
		}
	}

	count, err := bunDB.NewSelect().Model((*models.InventoryShard)(nil)).Count(ctx)
	if err != nil {
		t.Fatalf("Failed to count shards: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected a single shard row, got %d", count)
	}

	avail, _ := inventorydb.Availability(ctx, bunDB, "ev1", "ga")
	if avail.Locked != 6 {
		t.Errorf("Expected locked=6, got %d", avail.Locked)
	}
}

func TestAvailabilitySumsAcrossShards(t *testing.T) {
	bunDB := setupTestDB(t)
	ctx := context.Background()

	_ = inventorydb.IncrementLock(ctx, bunDB, "ev1", "ga", 0, 1)
	_ = inventorydb.IncrementLock(ctx, bunDB, "ev1", "ga", 4, 2)
	_ = inventorydb.IncrementSold(ctx, bunDB, "ev1", "ga", 7, 5)
	// Another tier and event must not bleed in.
	_ = inventorydb.IncrementLock(ctx, bunDB, "ev1", "vip", 0, 9)
	_ = inventorydb.IncrementLock(ctx, bunDB, "ev2", "ga", 0, 9)

	avail, err := inventorydb.Availability(ctx, bunDB, "ev1", "ga")
	if err != nil {
		t.Fatalf("Failed to read availability: %v", err)
	}
	if avail.Locked != 3 {
		t.Errorf("Expected locked=3, got %d", avail.Locked)
	}
	if avail.Sold != 5 {
		t.Errorf("Expected sold=5, got %d", avail.Sold)
	}
}

func TestDecrementLockClampsAtZero(t *testing.T) {
	bunDB := setupTestDB(t)
	ctx := context.Background()

	if err := inventorydb.IncrementLock(ctx, bunDB, "ev1", "ga", 2, 3); err != nil {
		t.Fatalf("Failed to increment lock: %v", err)
	}

	// Release more than is held; partial-failure double release must not
	// drive the counter negative.
	if err := inventorydb.DecrementLock(ctx, bunDB, "ev1", "ga", 2, 5); err != nil {
		t.Fatalf("Failed to decrement lock: %v", err)
	}

	avail, _ := inventorydb.Availability(ctx, bunDB, "ev1", "ga")
	if avail.Locked != 0 {
		t.Errorf("Expected locked clamped to 0, got %d", avail.Locked)
	}

	// Decrementing an already-zero counter is a no-op, not an error.
	if err := inventorydb.DecrementLock(ctx, bunDB, "ev1", "ga", 2, 1); err != nil {
		t.Fatalf("Expected no-op decrement, got error: %v", err)
	}
	avail, _ = inventorydb.Availability(ctx, bunDB, "ev1", "ga")
	if avail.Locked != 0 {
		t.Errorf("Expected locked to stay 0, got %d", avail.Locked)
	}
}

func TestDecrementLockMissingShardIsNoop(t *testing.T) {
	bunDB := setupTestDB(t)
	ctx := context.Background()

	if err := inventorydb.DecrementLock(ctx, bunDB, "ev1", "ga", 0, 1); err != nil {
		t.Fatalf("Expected decrement on missing shard to be a no-op, got: %v", err)
	}
}

func TestPickShardInRange(t *testing.T) {
	store := inventorydb.NewStore(nil, 10)
	seen := make(map[int]bool)
	for i := 0; i < 1000; i++ {
		idx := store.PickShard()
		if idx < 0 || idx >= 10 {
			t.Fatalf("Shard index out of range: %d", idx)
		}
		seen[idx] = true
	}
	// With 1000 draws over 10 shards, every shard should have been hit.
	if len(seen) != 10 {
		t.Errorf("Expected all 10 shards to be selected, got %d", len(seen))
	}
}
