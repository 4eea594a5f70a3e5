package order_api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"ms-reservations/internal/logger"
	"ms-reservations/internal/models"
	"ms-reservations/internal/order"
	orderdb "ms-reservations/internal/order/db"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	OrderService *order.Service
	Logger       *logger.Logger
}

// CreateOrder handles POST /orders: commit of a reservation or a direct
// purchase. Repeating the call with the same reservation id returns the
// existing order.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req models.OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.ReservationID == "" && req.EventID == "" {
		http.Error(w, "reservation_id or event_id is required", http.StatusBadRequest)
		return
	}

	created, err := h.OrderService.CreateOrder(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, order.ErrReservationNotFound):
			http.Error(w, "Reservation not found", http.StatusNotFound)
		case errors.Is(err, order.ErrReservationExpired):
			http.Error(w, "Reservation has expired", http.StatusConflict)
		case errors.Is(err, order.ErrInsufficientStock):
			http.Error(w, err.Error(), http.StatusConflict)
		case errors.Is(err, order.ErrTierNotFound), errors.Is(err, order.ErrNoItems):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			h.Logger.Error("API", fmt.Sprintf("CreateOrder: %v", err))
			http.Error(w, "Failed to create order", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(created); err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreateOrder: failed to encode response: %v", err))
	}
}

// GetOrder handles GET /orders/{orderID}.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	found, err := h.OrderService.GetOrder(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, orderdb.ErrOrderNotFound) {
			http.Error(w, "Order not found", http.StatusNotFound)
			return
		}
		h.Logger.Error("API", fmt.Sprintf("GetOrder: %v", err))
		http.Error(w, "Failed to fetch order", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(found); err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetOrder: failed to encode response: %v", err))
	}
}

// ConfirmPayment handles POST /orders/{orderID}/confirm, the payment
// gateway's webhook. The gateway may deliver the same event more than once;
// every delivery after the first returns the already-confirmed order.
func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	h.Logger.Info("API", fmt.Sprintf("ConfirmPayment: orderId=%s", orderID))

	var payment models.PaymentData
	if err := json.NewDecoder(r.Body).Decode(&payment); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	confirmed, err := h.OrderService.ConfirmOrderPayment(r.Context(), orderID, payment)
	if err != nil {
		if errors.Is(err, orderdb.ErrOrderNotFound) {
			http.Error(w, "Order not found", http.StatusNotFound)
			return
		}
		h.Logger.Error("API", fmt.Sprintf("ConfirmPayment: %v", err))
		http.Error(w, "Failed to confirm payment", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(confirmed); err != nil {
		h.Logger.Error("API", fmt.Sprintf("ConfirmPayment: failed to encode response: %v", err))
	}
}
