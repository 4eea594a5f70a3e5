package models

import (
	"time"

	"github.com/uptrace/bun"
)

// ScheduledPrice is a time-boxed price window on a tier. Windows are stored
// in catalog order and are expected not to overlap; first match wins.
type ScheduledPrice struct {
	Name     string    `json:"name"`
	Price    float64   `json:"price"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
}

// TicketTier is one entry of an event's ticket catalog. Quantity is fixed
// once sales begin; Remaining is decremented only by confirmed order creation.
type TicketTier struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	BasePrice       float64          `json:"base_price"`
	Quantity        int              `json:"quantity"`
	Remaining       int              `json:"remaining"`
	SalesStart      *time.Time       `json:"sales_start,omitempty"`
	SalesEnd        *time.Time       `json:"sales_end,omitempty"`
	ScheduledPrices []ScheduledPrice `json:"scheduled_prices,omitempty"`
}

// Event holds the canonical tier catalog for one event. The catalog column is
// the single source of truth for Remaining; only the order service rewrites it.
type Event struct {
	bun.BaseModel `bun:"table:events"`

	ID        string       `bun:"event_id,pk" json:"id"`
	Slug      string       `bun:"slug" json:"slug"`
	Name      string       `bun:"name" json:"name"`
	Tiers     []TicketTier `bun:"tiers,type:jsonb" json:"tiers"`
	CreatedAt time.Time    `bun:"created_at" json:"created_at"`
	UpdatedAt time.Time    `bun:"updated_at" json:"updated_at"`
}

// Tier returns the catalog entry for id, or nil if the event has no such tier.
func (e *Event) Tier(id string) *TicketTier {
	for i := range e.Tiers {
		if e.Tiers[i].ID == id {
			return &e.Tiers[i]
		}
	}
	return nil
}
