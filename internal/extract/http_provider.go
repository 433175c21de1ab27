package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"voice-booking-relay-go/internal/model"
)

// HTTPProvider calls an external entity-detection API. The wire contract
// is a POST of {"text": ...} answered by {"phone", "email", "confidence"};
// a zero confidence in the reply falls back to the tier default.
type HTTPProvider struct {
	name              string
	url               string
	apiKey            string
	defaultConfidence float64
	client            *http.Client
}

// NewHTTPProvider creates an external detection provider tier
func NewHTTPProvider(name, url, apiKey string, defaultConfidence float64, timeout time.Duration) *HTTPProvider {
	return &HTTPProvider{
		name:              name,
		url:               url,
		apiKey:            apiKey,
		defaultConfidence: defaultConfidence,
		client:            &http.Client{Timeout: timeout},
	}
}

// Name returns the provider name
func (p *HTTPProvider) Name() string {
	return p.name
}

type detectRequest struct {
	Text string `json:"text"`
}

type detectResponse struct {
	Phone      string  `json:"phone"`
	Email      string  `json:"email"`
	Confidence float64 `json:"confidence"`
}

// Detect posts the text to the provider and maps its reply
func (p *HTTPProvider) Detect(ctx context.Context, text string) (model.ExtractedEntities, error) {
	body, err := json.Marshal(detectRequest{Text: text})
	if err != nil {
		return model.ExtractedEntities{}, fmt.Errorf("failed to encode detect request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return model.ExtractedEntities{}, fmt.Errorf("failed to build detect request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return model.ExtractedEntities{}, fmt.Errorf("detect request to %s failed: %w", p.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.ExtractedEntities{}, fmt.Errorf("detect provider %s returned status %d", p.name, resp.StatusCode)
	}

	var out detectResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return model.ExtractedEntities{}, fmt.Errorf("failed to decode detect response from %s: %w", p.name, err)
	}

	confidence := out.Confidence
	if confidence == 0 {
		confidence = p.defaultConfidence
	}

	return model.ExtractedEntities{
		Phone:      out.Phone,
		Email:      out.Email,
		Confidence: confidence,
	}, nil
}
