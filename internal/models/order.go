package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Order statuses.
const (
	OrderPendingPayment = "pending_payment"
	OrderConfirmed      = "confirmed"
	OrderExpired        = "expired"
	OrderTransferred    = "transferred"
)

// OrderTicket is one tier line of an order.
type OrderTicket struct {
	TierID    string  `json:"tier_id"`
	TierName  string  `json:"tier_name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	Subtotal  float64 `json:"subtotal"`
}

// QRCode is one issued ticket credential. Code is the encoded PNG.
type QRCode struct {
	TicketID string    `json:"ticket_id"`
	TierID   string    `json:"tier_id"`
	Code     []byte    `json:"code"`
	IssuedAt time.Time `json:"issued_at"`
}

// Order is a finalized purchase. When it originates from a reservation its ID
// is derived from the reservation ID, which is what makes commit idempotent:
// a retried commit computes the same ID and finds the existing row.
type Order struct {
	bun.BaseModel `bun:"table:orders"`

	ID            string        `bun:"order_id,pk" json:"id"`
	EventID       string        `bun:"event_id" json:"event_id"`
	UserID        string        `bun:"user_id" json:"user_id"`
	Tickets       []OrderTicket `bun:"tickets,type:jsonb" json:"tickets"`
	Status        string        `bun:"status" json:"status"`
	TotalAmount   float64       `bun:"total_amount" json:"total_amount"`
	ReservationID string        `bun:"reservation_id" json:"reservation_id,omitempty"`
	PromoCode     string        `bun:"promo_code" json:"promo_code,omitempty"`
	PaymentID     string        `bun:"payment_id" json:"payment_id,omitempty"`
	PaymentSig    string        `bun:"payment_sig" json:"-"`
	PaymentMode   string        `bun:"payment_mode" json:"payment_mode,omitempty"`
	QRCodes       []QRCode      `bun:"qr_codes,type:jsonb" json:"qr_codes,omitempty"`
	CreatedAt     time.Time     `bun:"created_at" json:"created_at"`
	ConfirmedAt   time.Time     `bun:"confirmed_at,nullzero" json:"confirmed_at,omitempty"`
}

// OrderRequest is the payload for committing an order, either against an
// existing reservation or as a direct purchase.
type OrderRequest struct {
	EventID       string          `json:"event_id"`
	UserID        string          `json:"user_id"`
	ReservationID string          `json:"reservation_id,omitempty"`
	Items         []RequestedItem `json:"items,omitempty"`
	PromoCode     string          `json:"promo_code,omitempty"`
}

// PaymentData carries the gateway identifiers delivered by the payment
// confirmation webhook.
type PaymentData struct {
	PaymentID string `json:"payment_id"`
	Signature string `json:"signature"`
	Mode      string `json:"mode"`
}
