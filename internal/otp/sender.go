package otp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/pribylovaa/go-services-marketplace/internal/pkg/log"
	"github.com/pribylovaa/go-services-marketplace/internal/pkg/redact"
)

// LogSender пишет код в лог на уровне debug. Только для local/dev.
type LogSender struct{}

// Send логирует код вместо реальной доставки.
func (LogSender) Send(ctx context.Context, mobile, code string) error {
	log.From(ctx).Debug("otp_issued",
		"mobile", redact.Mobile(mobile),
		"code", code,
	)

	return nil
}

// WebhookSender отправляет код POST-запросом с JSON {phone, code}
// на адрес шлюза доставки.
type WebhookSender struct {
	url    string
	client *http.Client
}

// NewWebhookSender создаёт отправителя с заданным таймаутом запроса.
func NewWebhookSender(url string, timeout time.Duration) *WebhookSender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &WebhookSender{
		url: url,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type webhookPayload struct {
	Phone string `json:"phone"`
	Code  string `json:"code"`
}

// Send не логирует код.
func (s *WebhookSender) Send(ctx context.Context, mobile, code string) error {
	const op = "otp.WebhookSender.Send"

	if s.url == "" {
		return fmt.Errorf("%s: sender url not configured", op)
	}

	raw, err := json.Marshal(webhookPayload{Phone: mobile, Code: code})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s: request failed status=%d body=%s", op, resp.StatusCode, string(b))
	}

	return nil
}
