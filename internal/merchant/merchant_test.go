package merchant_test

import (
	"context"
	"errors"
	"testing"

	"github.com/gyaneshwarpardhi/paynotify/internal/merchant"
)

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		m       merchant.Merchant
		wantErr bool
	}{
		{"webhook ok", merchant.Merchant{ID: "0x1", Kind: merchant.KindWebhook, WebhookURL: "https://shop.test/hook", WebhookSecret: "s"}, false},
		{"webhook no secret", merchant.Merchant{ID: "0x1", Kind: merchant.KindWebhook, WebhookURL: "https://shop.test/hook"}, true},
		{"webhook no url", merchant.Merchant{ID: "0x1", Kind: merchant.KindWebhook, WebhookSecret: "s"}, true},
		{"webhook bad scheme", merchant.Merchant{ID: "0x1", Kind: merchant.KindWebhook, WebhookURL: "ftp://x", WebhookSecret: "s"}, true},
		{"chat ok", merchant.Merchant{ID: "0x1", Kind: merchant.KindChat, ChatID: "42"}, false},
		{"chat no destination", merchant.Merchant{ID: "0x1", Kind: merchant.KindChat}, true},
		{"unknown kind", merchant.Merchant{ID: "0x1", Kind: "pigeon"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.m.Validate()
			if tc.wantErr {
				if !errors.Is(err, merchant.ErrMisconfigured) {
					t.Fatalf("expected ErrMisconfigured, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestParseKind(t *testing.T) {
	for in, want := range map[string]merchant.Kind{
		"webhook":  merchant.KindWebhook,
		"CHAT":     merchant.KindChat,
		"telegram": merchant.KindChat,
	} {
		got, err := merchant.ParseKind(in)
		if err != nil || got != want {
			t.Errorf("ParseKind(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := merchant.ParseKind("sms"); !errors.Is(err, merchant.ErrMisconfigured) {
		t.Errorf("expected ErrMisconfigured for sms, got %v", err)
	}
}

func TestRegistry_LookupAndReplace(t *testing.T) {
	reg := merchant.NewRegistry([]merchant.Merchant{
		{ID: "ABCDEF", Kind: merchant.KindChat, ChatID: "1", Active: true},
	})
	m, err := reg.Lookup(context.Background(), "0xabcdef")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if m.ChatID != "1" {
		t.Errorf("unexpected merchant %+v", m)
	}

	reg.Replace(nil)
	if _, err := reg.Lookup(context.Background(), "0xabcdef"); !errors.Is(err, merchant.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after replace, got %v", err)
	}
	if reg.Len() != 0 {
		t.Errorf("expected empty registry, got %d", reg.Len())
	}
}

func TestRegistry_ListSortedByID(t *testing.T) {
	reg := merchant.NewRegistry([]merchant.Merchant{
		{ID: "0xbb", Kind: merchant.KindChat, ChatID: "2"},
		{ID: "0xaa", Kind: merchant.KindChat, ChatID: "1"},
	})
	ms, err := reg.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(ms) != 2 || ms[0].ID != "0xaa" || ms[1].ID != "0xbb" {
		t.Errorf("List = %+v", ms)
	}
}
