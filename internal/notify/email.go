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

const sendgridBaseURL = "https://api.sendgrid.com/v3/mail/send"

// SendgridSender sends transactional email
type SendgridSender struct {
	apiKey  string
	from    string
	baseURL string
	client  *http.Client
}

// NewSendgridSender validates the config and returns a ready sender
func NewSendgridSender(cfg config.NotifyConfig) (*SendgridSender, error) {
	if cfg.EmailAPIKey == "" || cfg.EmailFrom == "" {
		return nil, fmt.Errorf("email provider requires api key and from address")
	}
	return &SendgridSender{
		apiKey:  cfg.EmailAPIKey,
		from:    cfg.EmailFrom,
		baseURL: sendgridBaseURL,
		client:  &http.Client{Timeout: cfg.RequestTimeout},
	}, nil
}

// Name returns the provider name
func (s *SendgridSender) Name() string {
	return "sendgrid"
}

// Channel returns the notification channel this sender serves
func (s *SendgridSender) Channel() string {
	return model.ChannelEmail
}

// Send delivers one email and returns the provider message id
func (s *SendgridSender) Send(ctx context.Context, recipient, body string) (string, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"personalizations": []map[string]interface{}{
			{"to": []map[string]string{{"email": recipient}}},
		},
		"from":    map[string]string{"email": s.from},
		"subject": "Your appointment",
		"content": []map[string]string{{"type": "text/plain", "value": body}},
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode email request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build email request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
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

	return resp.Header.Get("X-Message-Id"), nil
}

// SetBaseURL overrides the API endpoint, used in tests
func (s *SendgridSender) SetBaseURL(u string) {
	s.baseURL = u
}
