package models

import (
	"github.com/uptrace/bun"
)

// InventoryShard is one of N independent lock counters for a tier. Lock
// writes for concurrent reservations fan out across shards so that a flash
// sale never serializes on a single hot row. Shard rows are created lazily
// on first lock and reused forever after.
type InventoryShard struct {
	bun.BaseModel `bun:"table:ticket_shards"`

	ID         int64  `bun:"id,pk,autoincrement" json:"-"`
	EventID    string `bun:"event_id,unique:shard_key" json:"event_id"`
	TierID     string `bun:"tier_id,unique:shard_key" json:"tier_id"`
	ShardIndex int    `bun:"shard_index,unique:shard_key" json:"shard_index"`
	LockedQty  int    `bun:"locked_qty" json:"locked_qty"`
	SoldQty    int    `bun:"sold_qty" json:"sold_qty"`
}

// TierAvailability is the shard-summed view of a tier's in-flight and sold
// inventory. Outside a transaction it is a best-effort read across N rows.
type TierAvailability struct {
	Locked int `json:"locked"`
	Sold   int `json:"sold"`
}
