// Package pricing resolves the active price of a ticket tier at a point in
// time. It is pure and deterministic so it can run inside a transaction with
// the transaction-start timestamp without drifting mid-commit.
package pricing

import (
	"ms-reservations/internal/models"
	"time"
)

// ResolvedPrice is the outcome of a price lookup.
type ResolvedPrice struct {
	Price     float64
	Label     string
	Scheduled bool
}

// Resolve returns the price in effect for tier at the given instant. Windows
// are checked in stored order and the first match wins; overlapping windows
// are a catalog-authoring problem, not validated here. Outside all windows
// the base price applies.
func Resolve(tier *models.TicketTier, at time.Time) ResolvedPrice {
	for _, w := range tier.ScheduledPrices {
		if !at.Before(w.StartsAt) && !at.After(w.EndsAt) {
			return ResolvedPrice{Price: w.Price, Label: w.Name, Scheduled: true}
		}
	}
	return ResolvedPrice{Price: tier.BasePrice, Label: tier.Name, Scheduled: false}
}
