package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"voice-booking-relay-go/internal/config"
	"voice-booking-relay-go/internal/model"
)

const vonageBaseURL = "https://rest.nexmo.com/sms/json"

// VonageSender is the secondary SMS provider, tried when the primary
// fails within the sms channel.
type VonageSender struct {
	apiKey    string
	apiSecret string
	from      string
	baseURL   string
	client    *http.Client
}

// NewVonageSender validates the config and returns a ready sender
func NewVonageSender(cfg config.NotifyConfig) (*VonageSender, error) {
	if cfg.SMSBackupKey == "" || cfg.SMSBackupSecret == "" || cfg.SMSBackupFrom == "" {
		return nil, fmt.Errorf("backup sms provider requires api key, secret, and from number")
	}
	return &VonageSender{
		apiKey:    cfg.SMSBackupKey,
		apiSecret: cfg.SMSBackupSecret,
		from:      cfg.SMSBackupFrom,
		baseURL:   vonageBaseURL,
		client:    &http.Client{Timeout: cfg.RequestTimeout},
	}, nil
}

// Name returns the provider name
func (s *VonageSender) Name() string {
	return "vonage"
}

// Channel returns the notification channel this sender serves
func (s *VonageSender) Channel() string {
	return model.ChannelSMS
}

// Send delivers one SMS and returns Vonage's message id
func (s *VonageSender) Send(ctx context.Context, recipient, body string) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"api_key":    s.apiKey,
		"api_secret": s.apiSecret,
		"from":       s.from,
		"to":         recipient,
		"text":       body,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode sms request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", &SendError{Provider: s.Name(), Temporary: true, Msg: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", &SendError{
			Provider:  s.Name(),
			Code:      resp.StatusCode,
			Temporary: classifyStatus(resp.StatusCode),
			Msg:       string(raw),
		}
	}

	var out struct {
		Messages []struct {
			MessageID string `json:"message-id"`
			Status    string `json:"status"`
			ErrorText string `json:"error-text"`
		} `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode sms response: %w", err)
	}
	if len(out.Messages) == 0 {
		return "", &SendError{Provider: s.Name(), Code: resp.StatusCode, Temporary: true, Msg: "empty response"}
	}
	// Vonage reports per-message status inside a 200 body; "0" is success.
	if out.Messages[0].Status != "0" {
		return "", &SendError{Provider: s.Name(), Code: resp.StatusCode, Temporary: false, Msg: out.Messages[0].ErrorText}
	}
	return out.Messages[0].MessageID, nil
}

// SetBaseURL overrides the API endpoint, used in tests
func (s *VonageSender) SetBaseURL(u string) {
	s.baseURL = u
}
