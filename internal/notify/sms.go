package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kairos-clinic/scheduling/pkg/logging"
)

// SMSSender sends SMS messages.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// GatewaySMSSender sends SMS through a Telnyx-style HTTP gateway.
type GatewaySMSSender struct {
	baseURL    string
	apiKey     string
	from       string
	httpClient *http.Client
	logger     *logging.Logger
}

// GatewaySMSConfig holds configuration for the SMS gateway.
type GatewaySMSConfig struct {
	BaseURL    string
	APIKey     string
	FromNumber string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// NewGatewaySMSSender creates an SMS sender. Returns nil when no API key is
// configured so callers can fall back to the stub.
func NewGatewaySMSSender(cfg GatewaySMSConfig, logger *logging.Logger) *GatewaySMSSender {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &GatewaySMSSender{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		from:       cfg.FromNumber,
		httpClient: httpClient,
		logger:     logger,
	}
}

// SendSMS posts the message to the gateway.
func (s *GatewaySMSSender) SendSMS(ctx context.Context, to, body string) error {
	payload, err := json.Marshal(struct {
		From string `json:"from"`
		To   string `json:"to"`
		Text string `json:"text"`
	}{From: s.from, To: to, Text: body})
	if err != nil {
		return fmt.Errorf("notify: marshal SMS payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("notify: build SMS request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notify: SMS gateway request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		s.logger.Error("SMS gateway rejected message", "status", resp.StatusCode, "body", string(data))
		return fmt.Errorf("notify: SMS gateway returned status %d", resp.StatusCode)
	}

	s.logger.Info("SMS sent", "to", to)
	return nil
}

var _ SMSSender = (*GatewaySMSSender)(nil)

// StubSMSSender is a no-op sender for testing or when SMS is disabled.
type StubSMSSender struct {
	logger *logging.Logger
}

// NewStubSMSSender creates a stub SMS sender.
func NewStubSMSSender(logger *logging.Logger) *StubSMSSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubSMSSender{logger: logger}
}

// SendSMS logs but doesn't send.
func (s *StubSMSSender) SendSMS(ctx context.Context, to, body string) error {
	s.logger.Info("stub SMS sender: would send", "to", to, "body_preview", truncate(body, 50))
	return nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

var _ SMSSender = (*StubSMSSender)(nil)
