// Package chat delivers payment notifications as Markdown messages through a
// Telegram-compatible bot API.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gyaneshwarpardhi/paynotify/internal/delivery"
	"github.com/gyaneshwarpardhi/paynotify/internal/ledger"
	"github.com/gyaneshwarpardhi/paynotify/internal/merchant"
	"github.com/gyaneshwarpardhi/paynotify/internal/payment"
	"github.com/gyaneshwarpardhi/paynotify/internal/ratelimit"
)

const (
	DefaultAPIBase = "https://api.telegram.org"
	DefaultTimeout = 10 * time.Second
)

// Config tunes the client.
type Config struct {
	Token       string
	APIBase     string
	ExplorerURL string
	Timeout     time.Duration
	Policy      delivery.LinearBackoff
}

// Client is the chat delivery.Transport.
type Client struct {
	http    *http.Client
	cfg     Config
	tokens  *payment.Tokens
	limiter *ratelimit.Window
	log     *slog.Logger
	now     func() time.Time
}

// New creates a Client. limiter is shared by every send; nil disables
// limiting.
func New(cfg Config, tokens *payment.Tokens, limiter *ratelimit.Window, log *slog.Logger) *Client {
	if cfg.APIBase == "" {
		cfg.APIBase = DefaultAPIBase
	}
	cfg.APIBase = strings.TrimRight(cfg.APIBase, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		http:    &http.Client{},
		cfg:     cfg,
		tokens:  tokens,
		limiter: limiter,
		log:     log.With("transport", merchant.KindChat),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (c *Client) Kind() merchant.Kind { return merchant.KindChat }

func (c *Client) Policy() delivery.RetryPolicy { return c.cfg.Policy }

// Deliver renders evt and sends it to the merchant's chat.
func (c *Client) Deliver(ctx context.Context, m merchant.Merchant, evt payment.Event, _ string) delivery.Outcome {
	if err := c.check(m); err != nil {
		return delivery.Outcome{Err: err}
	}
	return c.send(ctx, m, Render(evt, c.tokens, c.cfg.ExplorerURL))
}

// Redeliver sends the stored text to the merchant's current chat.
func (c *Client) Redeliver(ctx context.Context, rec ledger.Record, m merchant.Merchant) delivery.Outcome {
	if err := c.check(m); err != nil {
		return delivery.Outcome{Payload: rec.Payload, Err: err}
	}
	return c.send(ctx, m, rec.Payload)
}

// Verify checks the bot token with getMe and returns the bot username.
func (c *Client) Verify(ctx context.Context) (string, error) {
	if c.cfg.Token == "" {
		return "", fmt.Errorf("%w: chat bot token is not set", delivery.ErrConfiguration)
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("getMe"), nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat getMe: %w", unwrapURLError(err))
	}
	defer resp.Body.Close()

	var r apiResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, delivery.MaxResponseBody)).Decode(&r); err != nil {
		return "", fmt.Errorf("chat getMe: decode: %w", err)
	}
	if !r.OK {
		return "", fmt.Errorf("chat getMe: %d %s", r.ErrorCode, r.Description)
	}
	var me struct {
		Username string `json:"username"`
	}
	_ = json.Unmarshal(r.Result, &me)
	return me.Username, nil
}

// Check sends a test message to the merchant's chat.
func (c *Client) Check(ctx context.Context, m merchant.Merchant) (string, error) {
	if err := c.check(m); err != nil {
		return "", err
	}
	text := fmt.Sprintf("*Test Notification*\n\nIf you received this, payment notifications for this chat are configured correctly.\n\nChat ID: `%s`", m.ChatID)
	out := c.send(ctx, m, text)
	if !out.Success {
		return "", out.Err
	}
	return "test message sent", nil
}

type sendMessage struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`
	Description string          `json:"description,omitempty"`
}

func (c *Client) check(m merchant.Merchant) error {
	if m.Kind != merchant.KindChat {
		return fmt.Errorf("%w: merchant %s is not a chat merchant", delivery.ErrConfiguration, m.ID)
	}
	if err := m.Validate(); err != nil {
		return fmt.Errorf("%w: %v", delivery.ErrConfiguration, err)
	}
	if c.cfg.Token == "" {
		return fmt.Errorf("%w: chat bot token is not set", delivery.ErrConfiguration)
	}
	return nil
}

func (c *Client) endpoint(method string) string {
	return c.cfg.APIBase + "/bot" + c.cfg.Token + "/" + method
}

func (c *Client) send(ctx context.Context, m merchant.Merchant, text string) delivery.Outcome {
	if err := c.limiter.Wait(ctx); err != nil {
		return delivery.Failed(c.cfg.Policy, c.now(), text, nil, err.Error(), fmt.Errorf("%w: rate limit wait: %v", delivery.ErrTransient, err))
	}

	body, err := json.Marshal(sendMessage{
		ChatID:    m.ChatID,
		Text:      text,
		ParseMode: "Markdown",
	})
	if err != nil {
		return delivery.Outcome{Payload: text, Err: fmt.Errorf("%w: %v", delivery.ErrConfiguration, err)}
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("sendMessage"), bytes.NewReader(body))
	if err != nil {
		return delivery.Outcome{Payload: text, Err: fmt.Errorf("%w: build request: %v", delivery.ErrConfiguration, err)}
	}
	req.Header.Set("Content-Type", "application/json")

	now := c.now()
	resp, err := c.http.Do(req)
	if err != nil {
		// The URL embeds the bot token; log only the cause.
		err = unwrapURLError(err)
		c.log.Warn("chat request failed", "merchant", m.ShortID(), "err", err)
		return delivery.Failed(c.cfg.Policy, now, text, nil, err.Error(), fmt.Errorf("%w: %v", delivery.ErrTransient, err))
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, delivery.MaxResponseBody))
	var r apiResponse
	if err := json.Unmarshal(raw, &r); err != nil {
		code := resp.StatusCode
		return delivery.Failed(c.cfg.Policy, now, text, &code, string(raw),
			fmt.Errorf("%w: chat api returned status %d with undecodable body", delivery.ErrTransient, code))
	}
	if r.OK {
		code := http.StatusOK
		c.log.Debug("chat message sent", "merchant", m.ShortID())
		return delivery.Outcome{Success: true, Payload: text, ResponseCode: &code, ResponseBody: string(raw)}
	}

	code := r.ErrorCode
	if code == 0 {
		code = resp.StatusCode
	}
	c.log.Warn("chat api rejected message", "merchant", m.ShortID(), "code", code, "description", r.Description)
	return delivery.Failed(c.cfg.Policy, now, text, &code, string(raw),
		fmt.Errorf("%w: chat api error %d: %s", delivery.ErrTransient, code, r.Description))
}

// unwrapURLError drops the *url.Error wrapper so the request URL, which
// carries the bot token, never reaches logs or the ledger.
func unwrapURLError(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) && uerr.Err != nil {
		return uerr.Err
	}
	return err
}

var _ delivery.Transport = (*Client)(nil)
