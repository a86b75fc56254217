package merchant

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind is the transport a merchant has chosen for notifications.
type Kind string

const (
	KindWebhook Kind = "webhook"
	KindChat    Kind = "chat"
)

// Kinds lists every supported transport kind.
var Kinds = []Kind{KindWebhook, KindChat}

// ParseKind maps a configured string onto a Kind. "telegram" is accepted as
// an alias of chat.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(KindWebhook):
		return KindWebhook, nil
	case string(KindChat), "telegram":
		return KindChat, nil
	}
	return "", fmt.Errorf("%w: unknown transport kind %q", ErrMisconfigured, s)
}

var (
	// ErrNotFound is returned by a Directory for unknown merchant ids.
	ErrNotFound = errors.New("merchant not found")
	// ErrMisconfigured marks a merchant whose transport settings are incomplete.
	ErrMisconfigured = errors.New("merchant misconfigured")
)

// Merchant is a read-only view of a merchant directory entry.
type Merchant struct {
	ID            string `yaml:"id" json:"id"`
	Name          string `yaml:"name" json:"name,omitempty"`
	Kind          Kind   `yaml:"kind" json:"kind"`
	WebhookURL    string `yaml:"webhook_url" json:"webhook_url,omitempty"`
	WebhookSecret string `yaml:"webhook_secret" json:"-"`
	ChatID        string `yaml:"chat_id" json:"chat_id,omitempty"`
	Active        bool   `yaml:"active" json:"active"`
}

// Validate checks that the merchant carries what its transport needs.
func (m Merchant) Validate() error {
	switch m.Kind {
	case KindWebhook:
		if strings.TrimSpace(m.WebhookURL) == "" || strings.TrimSpace(m.WebhookSecret) == "" {
			return fmt.Errorf("%w: merchant %s: webhook url and secret are required", ErrMisconfigured, m.ID)
		}
		if !strings.HasPrefix(m.WebhookURL, "http://") && !strings.HasPrefix(m.WebhookURL, "https://") {
			return fmt.Errorf("%w: merchant %s: webhook url must be http(s)", ErrMisconfigured, m.ID)
		}
	case KindChat:
		if strings.TrimSpace(m.ChatID) == "" {
			return fmt.Errorf("%w: merchant %s: chat id is required", ErrMisconfigured, m.ID)
		}
	default:
		return fmt.Errorf("%w: merchant %s: unknown transport kind %q", ErrMisconfigured, m.ID, m.Kind)
	}
	return nil
}

// ShortID renders the merchant address as 0x1234...abcd for logs.
func (m Merchant) ShortID() string {
	if len(m.ID) > 10 {
		return m.ID[:6] + "..." + m.ID[len(m.ID)-4:]
	}
	return m.ID
}

// NormalizeID lower-cases an address and adds the 0x prefix when missing.
func NormalizeID(id string) string {
	id = strings.ToLower(strings.TrimSpace(id))
	if id != "" && !strings.HasPrefix(id, "0x") {
		id = "0x" + id
	}
	return id
}

// Directory resolves merchants by id. Implementations must be safe for
// concurrent use.
type Directory interface {
	Lookup(ctx context.Context, id string) (Merchant, error)
}
