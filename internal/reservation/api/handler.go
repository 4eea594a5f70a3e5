package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"ms-reservations/internal/catalog"
	"ms-reservations/internal/inventory/cache"
	inventorydb "ms-reservations/internal/inventory/db"
	"ms-reservations/internal/logger"
	"ms-reservations/internal/models"
	"ms-reservations/internal/reservation"
	reservationdb "ms-reservations/internal/reservation/db"
	"ms-reservations/internal/utils"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	Service *reservation.Service
	Catalog *catalog.Store
	Shards  *inventorydb.Store
	Cache   *cache.AvailabilityCache
	Logger  *logger.Logger
}

// CreateReservation handles POST /reservations.
func (h *Handler) CreateReservation(w http.ResponseWriter, r *http.Request) {
	var req models.ReservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.EventID == "" || req.CustomerID == "" {
		http.Error(w, "event_id and customer_id are required", http.StatusBadRequest)
		return
	}

	result, err := h.Service.CreateReservation(r.Context(), req)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreateReservation: %v", err))
		http.Error(w, "Failed to create reservation", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if !result.Success {
		w.WriteHeader(http.StatusConflict)
	} else {
		w.WriteHeader(http.StatusCreated)
	}
	if err := json.NewEncoder(w).Encode(result); err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreateReservation: failed to encode response: %v", err))
	}
}

// GetReservation handles GET /reservations/{reservationID}.
func (h *Handler) GetReservation(w http.ResponseWriter, r *http.Request) {
	reservationID := chi.URLParam(r, "reservationID")

	res, err := h.Service.GetReservation(r.Context(), reservationID)
	if err != nil {
		if errors.Is(err, reservationdb.ErrReservationNotFound) {
			http.Error(w, "Reservation not found", http.StatusNotFound)
			return
		}
		h.Logger.Error("API", fmt.Sprintf("GetReservation: %v", err))
		http.Error(w, "Failed to fetch reservation", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(res); err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetReservation: failed to encode response: %v", err))
	}
}

// ReleaseReservation handles DELETE /reservations/{reservationID}. Calling it
// twice is a no-op the second time.
func (h *Handler) ReleaseReservation(w http.ResponseWriter, r *http.Request) {
	reservationID := chi.URLParam(r, "reservationID")

	err := h.Service.ReleaseInventory(r.Context(), reservationID)
	if err != nil {
		if errors.Is(err, reservationdb.ErrReservationNotFound) {
			http.Error(w, "Reservation not found", http.StatusNotFound)
			return
		}
		h.Logger.Error("API", fmt.Sprintf("ReleaseReservation: %v", err))
		http.Error(w, "Failed to release reservation", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(utils.SuccessResponse("Reservation released", nil)); err != nil {
		h.Logger.Error("API", fmt.Sprintf("ReleaseReservation: failed to encode response: %v", err))
	}
}

type tierAvailabilityView struct {
	TierID    string `json:"tier_id"`
	TierName  string `json:"tier_name"`
	Locked    int    `json:"locked"`
	Sold      int    `json:"sold"`
	Available int    `json:"available"`
}

// GetAvailability handles GET /events/{eventID}/availability. This is the
// approximate display read: shard sums come from the short-TTL cache when
// fresh enough, and are never used for reservation decisions.
func (h *Handler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")

	event, err := h.Catalog.GetEvent(r.Context(), eventID)
	if err != nil {
		if errors.Is(err, catalog.ErrEventNotFound) {
			http.Error(w, "Event not found", http.StatusNotFound)
			return
		}
		h.Logger.Error("API", fmt.Sprintf("GetAvailability: %v", err))
		http.Error(w, "Failed to fetch event", http.StatusInternalServerError)
		return
	}

	views := make([]tierAvailabilityView, 0, len(event.Tiers))
	for _, tier := range event.Tiers {
		avail, hit, cacheErr := h.Cache.Get(r.Context(), event.ID, tier.ID)
		if cacheErr != nil {
			h.Logger.Warn("CACHE", fmt.Sprintf("Availability cache read failed: %v", cacheErr))
		}
		if !hit {
			avail, err = h.Shards.Availability(r.Context(), event.ID, tier.ID)
			if err != nil {
				h.Logger.Error("API", fmt.Sprintf("GetAvailability: %v", err))
				http.Error(w, "Failed to read availability", http.StatusInternalServerError)
				return
			}
			if setErr := h.Cache.Set(r.Context(), event.ID, tier.ID, avail); setErr != nil {
				h.Logger.Warn("CACHE", fmt.Sprintf("Availability cache write failed: %v", setErr))
			}
		}

		available := tier.Quantity - avail.Sold - avail.Locked
		if available < 0 {
			available = 0
		}
		views = append(views, tierAvailabilityView{
			TierID:    tier.ID,
			TierName:  tier.Name,
			Locked:    avail.Locked,
			Sold:      avail.Sold,
			Available: available,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(utils.SuccessResponse("Availability", views)); err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetAvailability: failed to encode response: %v", err))
	}
}
