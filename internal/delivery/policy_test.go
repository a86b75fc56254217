package delivery_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gyaneshwarpardhi/paynotify/internal/delivery"
	"github.com/gyaneshwarpardhi/paynotify/internal/ledger"
	"github.com/gyaneshwarpardhi/paynotify/internal/merchant"
	"github.com/gyaneshwarpardhi/paynotify/internal/payment"
)

func TestDelaySchedule_DefaultProgression(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p := delivery.DefaultWebhookSchedule()

	tests := []struct {
		failed int
		want   time.Duration
		ok     bool
	}{
		{1, time.Minute, true},
		{2, 5 * time.Minute, true},
		{3, 15 * time.Minute, true},
		{4, 0, false},
		{5, 0, false},
	}
	for _, tc := range tests {
		got, ok := p.Next(tc.failed, now)
		if ok != tc.ok {
			t.Fatalf("after %d failures: ok = %v, want %v", tc.failed, ok, tc.ok)
		}
		if ok && got.Sub(now) != tc.want {
			t.Errorf("after %d failures: delay = %v, want %v", tc.failed, got.Sub(now), tc.want)
		}
	}
}

func TestDelaySchedule_RepeatsLastDelay(t *testing.T) {
	now := time.Now()
	p := delivery.DelaySchedule{Delays: []time.Duration{time.Second, 2 * time.Second}, MaxAttempts: 5}
	got, ok := p.Next(4, now)
	if !ok || got.Sub(now) != 2*time.Second {
		t.Fatalf("Next(4) = %v, %v", got.Sub(now), ok)
	}
}

func TestDelaySchedule_NoDelaysDisablesRetries(t *testing.T) {
	if _, ok := (delivery.DelaySchedule{MaxAttempts: 4}).Next(1, time.Now()); ok {
		t.Fatal("expected no retry with empty delays")
	}
	if delivery.NextRetry(delivery.DelaySchedule{}, 1, time.Now()) != nil {
		t.Fatal("expected nil next retry")
	}
}

func TestDelaySchedule_LastDelayNeedsRaisedCap(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p := delivery.DefaultWebhookSchedule()
	if _, ok := p.Next(4, now); ok {
		t.Fatal("default schedule should exhaust after 4 failures")
	}
	p.MaxAttempts = 5
	if next, ok := p.Next(4, now); !ok || next.Sub(now) != time.Hour {
		t.Fatalf("with max_attempts 5: next = %v, %v; want +1h", next.Sub(now), ok)
	}
}

func TestLinearBackoff_ChatCap(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p := delivery.DefaultChatBackoff()

	// The live failure, then retries one and two.
	for failed, want := range map[int]time.Duration{1: 5 * time.Minute, 2: 5 * time.Minute, 3: 10 * time.Minute} {
		next, ok := p.Next(failed, now)
		if !ok || next.Sub(now) != want {
			t.Fatalf("after %d failures: next = %v, %v; want +%v", failed, next.Sub(now), ok, want)
		}
	}
	if _, ok := p.Next(4, now); ok {
		t.Fatal("expected exhaustion on the third failed retry")
	}
	if _, ok := (delivery.LinearBackoff{Step: time.Minute}).Next(1, now); ok {
		t.Fatal("zero MaxRetries must not schedule retries")
	}
}

type stubTransport struct{ kind merchant.Kind }

func (s stubTransport) Kind() merchant.Kind { return s.kind }
func (s stubTransport) Deliver(context.Context, merchant.Merchant, payment.Event, string) delivery.Outcome {
	return delivery.Outcome{Success: true}
}
func (s stubTransport) Redeliver(context.Context, ledger.Record, merchant.Merchant) delivery.Outcome {
	return delivery.Outcome{Success: true}
}
func (s stubTransport) Policy() delivery.RetryPolicy { return delivery.DefaultChatBackoff() }

func TestRegistry(t *testing.T) {
	r := delivery.NewRegistry(stubTransport{kind: merchant.KindChat})
	if _, err := r.Get(merchant.KindChat); err != nil {
		t.Fatalf("get chat: %v", err)
	}
	if _, err := r.Get(merchant.KindWebhook); !errors.Is(err, delivery.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
	if kinds := r.Kinds(); len(kinds) != 1 || kinds[0] != merchant.KindChat {
		t.Fatalf("kinds = %v", kinds)
	}

	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	r.Register(stubTransport{kind: merchant.KindChat})
}

func TestFailed_TruncatesAndSchedules(t *testing.T) {
	now := time.Now()
	body := make([]byte, delivery.MaxResponseBody+100)
	for i := range body {
		body[i] = 'x'
	}
	out := delivery.Failed(delivery.DefaultWebhookSchedule(), now, "{}", nil, string(body), delivery.ErrTransient)
	if len(out.ResponseBody) != delivery.MaxResponseBody {
		t.Errorf("body length = %d", len(out.ResponseBody))
	}
	if out.NextRetryAt == nil || out.NextRetryAt.Sub(now) != time.Minute {
		t.Errorf("next retry = %v", out.NextRetryAt)
	}
}
