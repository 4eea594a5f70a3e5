package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Reservation statuses.
const (
	ReservationActive    = "active"
	ReservationConverted = "converted"
	ReservationExpired   = "expired"
)

// ReservationItem is one tier line of a reservation, with the price
// snapshotted at reservation time so a mid-checkout price change cannot
// alter what the buyer was quoted.
type ReservationItem struct {
	TierID    string  `json:"tier_id"`
	TierName  string  `json:"tier_name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	Subtotal  float64 `json:"subtotal"`
}

// Reservation is a time-boxed hold on inventory. While active, the shard at
// ShardIndex carries locked_qty credit for every item; that credit is removed
// exactly once, by conversion to an order or by release.
type Reservation struct {
	bun.BaseModel `bun:"table:cart_reservations"`

	ID         string            `bun:"reservation_id,pk" json:"id"`
	EventID    string            `bun:"event_id" json:"event_id"`
	CustomerID string            `bun:"customer_id" json:"customer_id"`
	DeviceID   string            `bun:"device_id" json:"device_id,omitempty"`
	Items      []ReservationItem `bun:"items,type:jsonb" json:"items"`
	ShardIndex int               `bun:"shard_index" json:"shard_index"`
	Status     string            `bun:"status" json:"status"`
	OrderID    string            `bun:"order_id" json:"order_id,omitempty"`
	CreatedAt  time.Time         `bun:"created_at" json:"created_at"`
	ExpiresAt  time.Time         `bun:"expires_at" json:"expires_at"`
}

// ReservationRequest is the client payload for creating a hold.
type ReservationRequest struct {
	EventID    string            `json:"event_id"`
	CustomerID string            `json:"customer_id"`
	DeviceID   string            `json:"device_id,omitempty"`
	Items      []RequestedItem   `json:"items"`
}

// RequestedItem is one (tier, quantity) line of a reservation request.
type RequestedItem struct {
	TierID   string `json:"tier_id"`
	Quantity int    `json:"quantity"`
}

// ReservationResult is the typed outcome of a reservation attempt. Validation
// failures land here as Error text the caller can show a buyer; they are never
// raised as panics or bare errors past the service boundary.
type ReservationResult struct {
	Success       bool              `json:"success"`
	ReservationID string            `json:"reservation_id,omitempty"`
	Items         []ReservationItem `json:"items,omitempty"`
	TotalAmount   float64           `json:"total_amount,omitempty"`
	ExpiresAt     time.Time         `json:"expires_at,omitempty"`
	Error         string            `json:"error,omitempty"`
}
