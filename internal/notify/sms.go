package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"voice-booking-relay-go/internal/config"
	"voice-booking-relay-go/internal/model"
)

const twilioBaseURL = "https://api.twilio.com/2010-04-01"

// TwilioSender sends SMS through the Twilio messages API
type TwilioSender struct {
	accountSID string
	authToken  string
	from       string
	baseURL    string
	client     *http.Client
}

// NewTwilioSender validates the config and returns a ready sender; an
// unconfigured provider is a typed error here, not a failure mid-send.
func NewTwilioSender(cfg config.NotifyConfig) (*TwilioSender, error) {
	if cfg.SMSAccountSID == "" || cfg.SMSAuthToken == "" || cfg.SMSFromNumber == "" {
		return nil, fmt.Errorf("sms provider requires account sid, auth token, and from number")
	}
	return &TwilioSender{
		accountSID: cfg.SMSAccountSID,
		authToken:  cfg.SMSAuthToken,
		from:       cfg.SMSFromNumber,
		baseURL:    twilioBaseURL,
		client:     &http.Client{Timeout: cfg.RequestTimeout},
	}, nil
}

// Name returns the provider name
func (s *TwilioSender) Name() string {
	return "twilio"
}

// Channel returns the notification channel this sender serves
func (s *TwilioSender) Channel() string {
	return model.ChannelSMS
}

// Send delivers one SMS and returns Twilio's message SID
func (s *TwilioSender) Send(ctx context.Context, recipient, body string) (string, error) {
	form := url.Values{}
	form.Set("To", recipient)
	form.Set("From", s.from)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", s.baseURL, s.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to build sms request: %w", err)
	}
	req.SetBasicAuth(s.accountSID, s.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", &SendError{Provider: s.Name(), Temporary: true, Msg: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", &SendError{
			Provider:  s.Name(),
			Code:      resp.StatusCode,
			Temporary: classifyStatus(resp.StatusCode),
			Msg:       string(payload),
		}
	}

	var out struct {
		SID string `json:"sid"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode sms response: %w", err)
	}
	return out.SID, nil
}

// SetBaseURL overrides the API endpoint, used in tests
func (s *TwilioSender) SetBaseURL(u string) {
	s.baseURL = u
}
