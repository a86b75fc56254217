// Package webhook delivers signed JSON payment notifications to merchant
// HTTP endpoints.
package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gyaneshwarpardhi/paynotify/internal/delivery"
	"github.com/gyaneshwarpardhi/paynotify/internal/ledger"
	"github.com/gyaneshwarpardhi/paynotify/internal/merchant"
	"github.com/gyaneshwarpardhi/paynotify/internal/payment"
	"github.com/gyaneshwarpardhi/paynotify/internal/signing"
)

// Request headers set on every delivery.
const (
	HeaderSignature = "X-Webhook-Signature"
	HeaderEvent     = "X-Webhook-Event"
	HeaderID        = "X-Webhook-ID"
	HeaderTimestamp = "X-Webhook-Timestamp"

	userAgent = "paynotify-webhook/1.0"
)

// DefaultTimeout bounds a single POST.
const DefaultTimeout = 30 * time.Second

// Config tunes the client.
type Config struct {
	Timeout time.Duration
	Policy  delivery.DelaySchedule
}

// Client is the webhook delivery.Transport.
type Client struct {
	http    *http.Client
	timeout time.Duration
	policy  delivery.DelaySchedule
	tokens  *payment.Tokens
	log     *slog.Logger
	now     func() time.Time
}

// New creates a Client. A zero Timeout uses DefaultTimeout.
func New(cfg Config, tokens *payment.Tokens, log *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		http:    &http.Client{},
		timeout: cfg.Timeout,
		policy:  cfg.Policy,
		tokens:  tokens,
		log:     log.With("transport", merchant.KindWebhook),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (c *Client) Kind() merchant.Kind { return merchant.KindWebhook }

func (c *Client) Policy() delivery.RetryPolicy { return c.policy }

// Deliver signs a fresh payload for evt and POSTs it.
func (c *Client) Deliver(ctx context.Context, m merchant.Merchant, evt payment.Event, eventType string) delivery.Outcome {
	if err := c.check(m); err != nil {
		return delivery.Outcome{Err: err}
	}
	if eventType == "" {
		eventType = signing.DefaultEventType
	}
	p := signing.Payload{
		EventID:   evt.ID(),
		EventType: eventType,
		Timestamp: c.now(),
		Data:      signing.Data(evt.Fields(c.tokens)),
	}
	return c.send(ctx, m, p)
}

// Redeliver re-signs the stored payload with the merchant's current secret
// and posts it to the current URL.
func (c *Client) Redeliver(ctx context.Context, rec ledger.Record, m merchant.Merchant) delivery.Outcome {
	if err := c.check(m); err != nil {
		return delivery.Outcome{Payload: rec.Payload, Err: err}
	}
	p, err := signing.ParseBody([]byte(rec.Payload))
	if err != nil {
		return delivery.Outcome{
			Payload:      rec.Payload,
			ResponseBody: err.Error(),
			Err:          fmt.Errorf("%w: stored payload: %v", delivery.ErrConfiguration, err),
		}
	}
	return c.send(ctx, m, p)
}

func (c *Client) check(m merchant.Merchant) error {
	if m.Kind != merchant.KindWebhook {
		return fmt.Errorf("%w: merchant %s is not a webhook merchant", delivery.ErrConfiguration, m.ID)
	}
	if err := m.Validate(); err != nil {
		return fmt.Errorf("%w: %v", delivery.ErrConfiguration, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, m merchant.Merchant, p signing.Payload) delivery.Outcome {
	signed, err := signing.SignPayload(p, m.WebhookSecret)
	if err != nil {
		return delivery.Outcome{Err: fmt.Errorf("%w: %v", delivery.ErrConfiguration, err)}
	}
	body, err := signed.Body()
	if err != nil {
		return delivery.Outcome{Err: fmt.Errorf("%w: %v", delivery.ErrConfiguration, err)}
	}
	payload := string(body)
	now := c.now()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return delivery.Outcome{Payload: payload, Err: fmt.Errorf("%w: build request: %v", delivery.ErrConfiguration, err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set(HeaderSignature, signing.SignaturePrefix+signed.Signature)
	req.Header.Set(HeaderEvent, signed.EventType)
	req.Header.Set(HeaderID, signed.EventID)
	req.Header.Set(HeaderTimestamp, signed.Timestamp.UTC().Format(signing.TimestampLayout))

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("webhook request failed", "merchant", m.ShortID(), "event_id", signed.EventID, "err", err)
		return delivery.Failed(c.policy, now, payload, nil, err.Error(), fmt.Errorf("%w: %v", delivery.ErrTransient, err))
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, delivery.MaxResponseBody))
	code := resp.StatusCode
	if code >= 200 && code < 300 {
		c.log.Debug("webhook delivered", "merchant", m.ShortID(), "event_id", signed.EventID, "status", code)
		return delivery.Outcome{Success: true, Payload: payload, ResponseCode: &code, ResponseBody: string(respBody)}
	}

	c.log.Warn("webhook rejected", "merchant", m.ShortID(), "event_id", signed.EventID, "status", code)
	return delivery.Failed(c.policy, now, payload, &code, string(respBody),
		fmt.Errorf("%w: webhook returned status %d", delivery.ErrTransient, code))
}

// CheckURL reports whether url answers an OPTIONS request. Any HTTP status
// counts as reachable.
func (c *Client) CheckURL(ctx context.Context, url string) (string, error) {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return "", fmt.Errorf("%w: url must start with http:// or https://", delivery.ErrConfiguration)
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodOptions, url, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", delivery.ErrConfiguration, err)
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("cannot reach url: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, delivery.MaxResponseBody))
	return fmt.Sprintf("url is reachable (status: %d)", resp.StatusCode), nil
}

// Check verifies a merchant's endpoint without sending a payment.
func (c *Client) Check(ctx context.Context, m merchant.Merchant) (string, error) {
	if err := c.check(m); err != nil {
		return "", err
	}
	return c.CheckURL(ctx, m.WebhookURL)
}

var _ delivery.Transport = (*Client)(nil)
