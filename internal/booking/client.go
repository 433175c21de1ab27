// Package booking wraps the external calendar collaborator. The relay
// does not retry booking calls; retries, if any, are the collaborator's
// concern.
package booking

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2/clientcredentials"

	"voice-booking-relay-go/internal/config"
	"voice-booking-relay-go/internal/model"
)

// ErrSlotUnavailable is returned when the collaborator reports the
// requested slot is taken
var ErrSlotUnavailable = errors.New("booking: requested slot unavailable")

// Request carries everything the collaborator needs to book a slot
type Request struct {
	BusinessID   string                 `json:"business_id"`
	CustomerName string                 `json:"customer_name"`
	Phone        string                 `json:"phone,omitempty"`
	Email        string                 `json:"email,omitempty"`
	Confidence   float64                `json:"confidence"`
	Slot         model.ResolvedDateTime `json:"slot"`
}

// Booking is the collaborator's confirmation
type Booking struct {
	ID        string    `json:"id"`
	StartsAt  time.Time `json:"starts_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Client books time slots with the external calendar backend
type Client interface {
	Book(ctx context.Context, req Request) (*Booking, error)
}

// HTTPClient is the production Client, authenticated with OAuth2 client
// credentials.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient builds the collaborator client from config
func NewHTTPClient(cfg config.BookingConfig) (*HTTPClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("booking base URL is required")
	}

	httpClient := &http.Client{Timeout: cfg.Timeout}
	if cfg.ClientID != "" {
		oauthCfg := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
		}
		httpClient = oauthCfg.Client(context.Background())
		httpClient.Timeout = cfg.Timeout
	}

	return &HTTPClient{baseURL: cfg.BaseURL, client: httpClient}, nil
}

// Book posts the booking request and maps conflict replies to the typed
// error the handler branches on.
func (c *HTTPClient) Book(ctx context.Context, req Request) (*Booking, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode booking request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/bookings", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build booking request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("booking request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusConflict:
		return nil, ErrSlotUnavailable
	case resp.StatusCode >= 300:
		return nil, fmt.Errorf("booking collaborator returned status %d", resp.StatusCode)
	}

	var out Booking
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode booking response: %w", err)
	}
	return &out, nil
}
