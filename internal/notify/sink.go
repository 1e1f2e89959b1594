package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// LogSink writes messages to the log instead of delivering them.
type LogSink struct{}

func (LogSink) Send(_ context.Context, to, body string) error {
	slog.Info("sms", "to", to, "body", body)
	return nil
}

// HTTPSink posts messages as JSON {"to", "body"} to an SMS gateway.
type HTTPSink struct {
	url    string
	client *http.Client
}

// NewHTTPSink creates a sink for the gateway at url. A nil client uses
// http.DefaultClient.
func NewHTTPSink(url string, client *http.Client) *HTTPSink {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSink{url: url, client: client}
}

type gatewayMessage struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

func (s *HTTPSink) Send(ctx context.Context, to, body string) error {
	payload, err := json.Marshal(gatewayMessage{To: to, Body: body})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post to gateway: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("gateway returned %s: %s", resp.Status, bytes.TrimSpace(msg))
	}
	return nil
}
