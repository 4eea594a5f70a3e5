package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// OrderIDFromReservation derives the order id for a reservation commit.
// Deterministic: a retried commit for the same reservation computes the same
// id and finds the already-created order.
func OrderIDFromReservation(reservationID string) string {
	return "ord_" + reservationID
}

// GenerateOrderID creates a time-based id for direct purchases with no
// reservation to derive from.
func GenerateOrderID() string {
	timestamp := time.Now().Unix()
	randomNum, _ := rand.Int(rand.Reader, big.NewInt(999999))
	return fmt.Sprintf("ord_%d_%06d", timestamp, randomNum.Int64())
}

// GenerateTicketID creates an id for one issued ticket credential.
func GenerateTicketID() string {
	timestamp := time.Now().Unix()
	randomNum, _ := rand.Int(rand.Reader, big.NewInt(999999999))
	return fmt.Sprintf("tkt_%d_%09d", timestamp, randomNum.Int64())
}
