// Package discount is the narrow client for the promo-code service. The
// order commit path uses it only to decide whether a redemption should be
// recorded; discount math for checkout display lives elsewhere in the
// platform.
package discount

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"ms-reservations/internal/logger"
	"ms-reservations/internal/models"
)

// ValidationResult is the promo service's numeric contract.
type ValidationResult struct {
	Valid          bool    `json:"valid"`
	DiscountAmount float64 `json:"discount_amount"`
	Error          string  `json:"error,omitempty"`
}

type Validator interface {
	ValidatePromoCode(ctx context.Context, eventID, code, userID string, items []models.OrderTicket) (*ValidationResult, error)
	RecordRedemption(ctx context.Context, eventID, code, userID, orderID string) error
}

// HTTPValidator talks to the promo service over its internal API.
type HTTPValidator struct {
	client *http.Client
	logger *logger.Logger
}

func NewHTTPValidator(client *http.Client, log *logger.Logger) *HTTPValidator {
	return &HTTPValidator{client: client, logger: log}
}

func promoServiceURL() string {
	url := os.Getenv("PROMO_SERVICE_URL")
	if url != "" && url[len(url)-1] == '/' {
		url = url[:len(url)-1]
	}
	return url
}

func (v *HTTPValidator) ValidatePromoCode(ctx context.Context, eventID, code, userID string, items []models.OrderTicket) (*ValidationResult, error) {
	base := promoServiceURL()
	if base == "" || code == "" {
		return &ValidationResult{Valid: false}, nil
	}

	body, err := json.Marshal(map[string]interface{}{
		"event_id": eventID,
		"code":     code,
		"user_id":  userID,
		"items":    items,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/internal/v1/promos/validate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create promo request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		v.logger.Error("PROMO", fmt.Sprintf("Promo service error: %v", err))
		return nil, fmt.Errorf("promo service error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("promo service returned status %d", resp.StatusCode)
	}

	var result ValidationResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode promo response: %w", err)
	}
	return &result, nil
}

func (v *HTTPValidator) RecordRedemption(ctx context.Context, eventID, code, userID, orderID string) error {
	base := promoServiceURL()
	if base == "" || code == "" {
		return nil
	}

	body, err := json.Marshal(map[string]string{
		"event_id": eventID,
		"code":     code,
		"user_id":  userID,
		"order_id": orderID,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/internal/v1/promos/redeem", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create redemption request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("promo service error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("promo redemption returned status %d", resp.StatusCode)
	}
	v.logger.Info("PROMO", fmt.Sprintf("Recorded redemption of %s for order %s", code, orderID))
	return nil
}

// NoopValidator is used when no promo service is configured.
type NoopValidator struct{}

func (NoopValidator) ValidatePromoCode(ctx context.Context, eventID, code, userID string, items []models.OrderTicket) (*ValidationResult, error) {
	return &ValidationResult{Valid: false}, nil
}

func (NoopValidator) RecordRedemption(ctx context.Context, eventID, code, userID, orderID string) error {
	return nil
}
