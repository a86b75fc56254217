package payment_test

import (
	"testing"
	"time"

	"github.com/gyaneshwarpardhi/paynotify/internal/payment"
)

const (
	usdcSepolia = "0x1c7d4b196cb0c7b01d743fbc6116a902379c7238"
	dai         = "0x6b175474e89094c44da98b954eedeac495271d0f"
)

func makeEvent() payment.Event {
	return payment.Event{
		PaymentIntentID: "0xabcdef0123456789abcdef0123456789",
		MerchantID:      "0x1234567890ABCDEF1234567890abcdef12345678",
		CustomerAddress: "0xAAAABBBBCCCCDDDDEEEEFFFF0000111122223333",
		TokenAddress:    "0x1C7D4B196CB0C7B01D743FBC6116A902379C7238",
		Amount:          "100000000",
		TransactionHash: "0xDEADBEEF",
		BlockNumber:     4242,
		BlockTimestamp:  time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC),
	}.Normalize()
}

func TestNormalize(t *testing.T) {
	ev := makeEvent()
	if ev.MerchantID != "0x1234567890abcdef1234567890abcdef12345678" {
		t.Errorf("merchant id not lower-cased: %s", ev.MerchantID)
	}
	if ev.TransactionHash != "0xdeadbeef" {
		t.Errorf("tx hash not lower-cased: %s", ev.TransactionHash)
	}
	if ev.Status != payment.StatusCompleted {
		t.Errorf("expected default status, got %q", ev.Status)
	}
}

func TestEventID_Deterministic(t *testing.T) {
	a := makeEvent()
	b := makeEvent()
	if a.ID() != b.ID() {
		t.Fatalf("event id not deterministic: %s vs %s", a.ID(), b.ID())
	}
	want := "evt_0xdeadbeef_0xabcdef0123456789abcdef0123456789"
	if a.ID() != want {
		t.Errorf("expected %s, got %s", want, a.ID())
	}

	c := makeEvent()
	c.PaymentIntentID = "other"
	if c.ID() == a.ID() {
		t.Error("different payment intents must not share an event id")
	}
}

func TestFormatAmount(t *testing.T) {
	tokens := payment.NewTokens(payment.Token{Address: "0xFEED", Symbol: "WBTC", Decimals: 8})
	cases := []struct {
		name   string
		token  string
		amount string
		want   string
	}{
		{"six decimals", usdcSepolia, "100000000", "100.00 USDC"},
		{"six decimals fraction", usdcSepolia, "1234567", "1.23 USDC"},
		{"eighteen decimals", dai, "1500000000000000000", "1.5000 DAI"},
		{"eighteen decimals small", dai, "123456789000000", "0.0001 DAI"},
		{"unknown token", "0x0000", "2000000000000000000", "2.0000 TOKEN"},
		{"config token", "0xfeed", "150000000", "1.5000 WBTC"},
		{"garbage amount", usdcSepolia, "n/a", "n/a USDC"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tokens.Format(tc.token, tc.amount); got != tc.want {
				t.Errorf("Format(%s, %s) = %q, want %q", tc.token, tc.amount, got, tc.want)
			}
		})
	}
}

func TestShortening(t *testing.T) {
	ev := makeEvent()
	if got := ev.ShortCustomer(); got != "0xaaaa...3333" {
		t.Errorf("ShortCustomer = %q", got)
	}
	if got := ev.ShortPaymentID(); got != "0xabcdef01...456789" {
		t.Errorf("ShortPaymentID = %q", got)
	}
	ev.PaymentIntentID = "short-id"
	if got := ev.ShortPaymentID(); got != "short-id" {
		t.Errorf("short ids must be kept, got %q", got)
	}
}

func TestFields_CarriesFormattedAmount(t *testing.T) {
	ev := makeEvent()
	f := ev.Fields(nil)
	if f["formatted_amount"] != "100.00 USDC" {
		t.Errorf("formatted_amount = %v", f["formatted_amount"])
	}
	if f["block_timestamp"] != "2024-05-01T12:30:00Z" {
		t.Errorf("block_timestamp = %v", f["block_timestamp"])
	}
	if f["block_number"] != uint64(4242) {
		t.Errorf("block_number = %v", f["block_number"])
	}
}
