package signing_test

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/gyaneshwarpardhi/paynotify/internal/signing"
)

func makePayload() signing.Payload {
	return signing.Payload{
		EventID:   "evt_0xabc_pi_1",
		EventType: signing.DefaultEventType,
		Timestamp: time.Date(2024, 5, 1, 12, 0, 0, 123456000, time.UTC),
		Data: signing.Data{
			"payment_intent_id": "pi_1",
			"amount":            "100000000",
			"formatted_amount":  "100.00 USDC",
			"block_number":      uint64(77),
			"note":              "<b>&",
		},
	}
}

func TestCanonical_SortedCompact(t *testing.T) {
	got, err := makePayload().Canonical()
	if err != nil {
		t.Fatalf("canonical: %v", err)
	}
	want := `{"data":{"amount":"100000000","block_number":77,"formatted_amount":"100.00 USDC","note":"<b>&","payment_intent_id":"pi_1"},` +
		`"event_id":"evt_0xabc_pi_1","event_type":"payment.completed","timestamp":"2024-05-01T12:00:00.123456Z"}`
	if string(got) != want {
		t.Fatalf("canonical mismatch\n got: %s\nwant: %s", got, want)
	}
}

func TestSignVerify_RoundTrip(t *testing.T) {
	p, err := signing.SignPayload(makePayload(), "whsec_test")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	canonical, _ := p.Canonical()
	if !signing.Verify(canonical, p.Signature, "whsec_test") {
		t.Fatal("signature did not verify")
	}
	if !signing.Verify(canonical, signing.SignaturePrefix+p.Signature, "whsec_test") {
		t.Fatal("prefixed signature did not verify")
	}
	if signing.Verify(canonical, p.Signature, "other-secret") {
		t.Fatal("signature verified under a different secret")
	}

	for i := range canonical {
		tampered := bytes.Clone(canonical)
		tampered[i] ^= 0x01
		if signing.Verify(tampered, p.Signature, "whsec_test") {
			t.Fatalf("tampered byte %d still verified", i)
		}
	}
}

func TestSignPayload_EmptySecret(t *testing.T) {
	if _, err := signing.SignPayload(makePayload(), ""); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

func TestVerifyBody_AsMerchant(t *testing.T) {
	p, err := signing.SignPayload(makePayload(), "whsec_test")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	body, err := p.Body()
	if err != nil {
		t.Fatalf("body: %v", err)
	}
	ok, err := signing.VerifyBody(body, "sha256="+p.Signature, "whsec_test")
	if err != nil || !ok {
		t.Fatalf("VerifyBody = %v, %v", ok, err)
	}

	tampered := bytes.Replace(body, []byte("100.00 USDC"), []byte("900.00 USDC"), 1)
	ok, err = signing.VerifyBody(tampered, "sha256="+p.Signature, "whsec_test")
	if err != nil || ok {
		t.Fatalf("tampered body: VerifyBody = %v, %v", ok, err)
	}
}

func TestParseBody_ResignIsStable(t *testing.T) {
	p, _ := signing.SignPayload(makePayload(), "k1")
	body, _ := p.Body()

	parsed, err := signing.ParseBody(body)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	resigned, err := signing.SignPayload(parsed, "k1")
	if err != nil {
		t.Fatalf("resign: %v", err)
	}
	if resigned.Signature != p.Signature {
		t.Fatalf("re-signing a parsed body changed the signature")
	}
}

func TestSnippet(t *testing.T) {
	for _, lang := range signing.SnippetLanguages() {
		s, err := signing.Snippet(lang)
		if err != nil || !strings.Contains(s, "sha256") {
			t.Errorf("snippet %s: %v", lang, err)
		}
	}
	if _, err := signing.Snippet("cobol"); err == nil {
		t.Error("expected error for unsupported language")
	}
}
