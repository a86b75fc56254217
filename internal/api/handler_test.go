package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gyaneshwarpardhi/paynotify/internal/api"
	"github.com/gyaneshwarpardhi/paynotify/internal/delivery"
	"github.com/gyaneshwarpardhi/paynotify/internal/intake"
	"github.com/gyaneshwarpardhi/paynotify/internal/ledger"
	"github.com/gyaneshwarpardhi/paynotify/internal/merchant"
	"github.com/gyaneshwarpardhi/paynotify/internal/payment"
	"github.com/gyaneshwarpardhi/paynotify/internal/router"
	"github.com/gyaneshwarpardhi/paynotify/internal/signing"
)

const shopID = "0x1111111111111111111111111111111111111111"

type okTransport struct{ kind merchant.Kind }

func (t okTransport) Kind() merchant.Kind           { return t.kind }
func (t okTransport) Policy() delivery.RetryPolicy { return delivery.DefaultWebhookSchedule() }

func (t okTransport) Deliver(context.Context, merchant.Merchant, payment.Event, string) delivery.Outcome {
	code := 200
	return delivery.Outcome{Success: true, Payload: `{"ok":true}`, ResponseCode: &code}
}

func (t okTransport) Redeliver(context.Context, ledger.Record, merchant.Merchant) delivery.Outcome {
	return delivery.Outcome{Success: true}
}

func (t okTransport) Check(_ context.Context, m merchant.Merchant) (string, error) {
	return "reachable " + m.WebhookURL, nil
}

type fakeQueue struct {
	util   float64
	accept int
	got    int
}

func (q *fakeQueue) Submit(payment.Event, string) error {
	q.got++
	if q.got > q.accept {
		return intake.ErrQueueFull
	}
	return nil
}

func (q *fakeQueue) Utilization() float64 { return q.util }

type fakeChecker struct{}

func (fakeChecker) CheckURL(_ context.Context, url string) (string, error) {
	if !strings.HasPrefix(url, "http") {
		return "", delivery.ErrConfiguration
	}
	if strings.Contains(url, "down") {
		return "", errors.New("connection refused")
	}
	return "url is reachable (status: 200)", nil
}

type fixture struct {
	srv    *httptest.Server
	ledger *ledger.Memory
	queue  *fakeQueue
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := ledger.NewMemory()
	dir := merchant.NewRegistry([]merchant.Merchant{
		{ID: shopID, Kind: merchant.KindWebhook, WebhookURL: "https://shop.example/hook", WebhookSecret: "s", Active: true},
	})
	transports := delivery.NewRegistry(okTransport{kind: merchant.KindWebhook})
	q := &fakeQueue{accept: 2}
	h := api.New(api.Deps{
		Router:     router.New(store, dir, transports, router.Config{}, nil),
		Queue:      q,
		Ledger:     store,
		Directory:  dir,
		Transports: transports,
		URLChecker: fakeChecker{},
	})
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, ledger: store, queue: q}
}

func (f *fixture) do(t *testing.T, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, f.srv.URL+path, &buf)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out map[string]any
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp, out
}

func eventBody(intent string) map[string]any {
	return map[string]any{
		"payment_intent_id": intent,
		"merchant_id":       strings.ToUpper(shopID[2:]),
		"token_address":     "0x1c7d4b196cb0c7b01d743fbc6116a902379c7238",
		"amount":            "1000000",
		"transaction_hash":  "0xABC",
		"block_number":      7,
		"block_timestamp":   time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, http.MethodGet, "/healthz", nil)
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("healthz = %d %v", resp.StatusCode, body)
	}
	if resp.Header.Get("X-Request-Id") == "" {
		t.Error("missing request id header")
	}
}

func TestReadyz_Overloaded(t *testing.T) {
	f := newFixture(t)
	f.queue.util = 0.9
	resp, body := f.do(t, http.MethodGet, "/readyz", nil)
	if resp.StatusCode != http.StatusServiceUnavailable || body["status"] != "overloaded" {
		t.Fatalf("readyz = %d %v", resp.StatusCode, body)
	}
}

func TestRouteEvent_RecordsDelivery(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, http.MethodPost, "/v1/events", eventBody("pi_1"))
	if resp.StatusCode != http.StatusOK || body["delivered"] != true {
		t.Fatalf("route = %d %v", resp.StatusCode, body)
	}
	eventID, _ := body["event_id"].(string)
	if eventID != "evt_0xabc_pi_1" {
		t.Fatalf("event id = %q", eventID)
	}

	resp, body = f.do(t, http.MethodGet, "/v1/deliveries/"+eventID+"/"+shopID, nil)
	if resp.StatusCode != http.StatusOK || body["state"] != string(ledger.StateDelivered) {
		t.Fatalf("get delivery = %d %v", resp.StatusCode, body)
	}

	_, body = f.do(t, http.MethodGet, "/v1/deliveries?state=delivered&transport=webhook", nil)
	if body["count"] != float64(1) {
		t.Errorf("list = %v", body)
	}

	// Replaying the same event is a no-op reported as delivered.
	_, body = f.do(t, http.MethodPost, "/v1/events", eventBody("pi_1"))
	if body["delivered"] != true {
		t.Errorf("replay = %v", body)
	}

	_, body = f.do(t, http.MethodGet, "/v1/stats", nil)
	routing, _ := body["routing"].(map[string]any)
	if routing["total"] != float64(2) || routing["already_processed"] != float64(1) {
		t.Errorf("stats = %v", body)
	}
	f.do(t, http.MethodPost, "/v1/stats/reset", nil)
	_, body = f.do(t, http.MethodGet, "/v1/stats", nil)
	routing, _ = body["routing"].(map[string]any)
	if routing["total"] != float64(0) {
		t.Errorf("stats after reset = %v", body)
	}
}

func TestRouteEvent_Validation(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		name string
		body any
	}{
		{"bad json", "{"},
		{"missing merchant", map[string]any{"payment_intent_id": "pi", "transaction_hash": "0x1"}},
		{"missing tx hash", map[string]any{"payment_intent_id": "pi", "merchant_id": shopID}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := f.do(t, http.MethodPost, "/v1/events", tc.body)
			if resp.StatusCode != http.StatusBadRequest || body["error"] == "" {
				t.Fatalf("got %d %v", resp.StatusCode, body)
			}
		})
	}
}

func TestRouteEvent_UnknownMerchant(t *testing.T) {
	f := newFixture(t)
	evt := eventBody("pi_x")
	evt["merchant_id"] = "0x9999999999999999999999999999999999999999"
	_, body := f.do(t, http.MethodPost, "/v1/events", evt)
	if body["delivered"] != false || !strings.Contains(body["error"].(string), "not registered") {
		t.Fatalf("route = %v", body)
	}
}

func TestRouteBatch(t *testing.T) {
	f := newFixture(t)
	req := map[string]any{"events": []any{eventBody("pi_1"), eventBody("pi_2")}}
	resp, body := f.do(t, http.MethodPost, "/v1/events/batch", req)
	if resp.StatusCode != http.StatusOK || body["delivered"] != float64(2) {
		t.Fatalf("batch = %d %v", resp.StatusCode, body)
	}

	big := make([]any, 101)
	for i := range big {
		big[i] = eventBody("pi")
	}
	resp, _ = f.do(t, http.MethodPost, "/v1/events/batch", map[string]any{"events": big})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("oversized batch = %d", resp.StatusCode)
	}
}

func TestEnqueueBatch(t *testing.T) {
	f := newFixture(t)
	req := map[string]any{"events": []any{eventBody("pi_1"), eventBody("pi_2"), eventBody("pi_3")}}
	resp, body := f.do(t, http.MethodPost, "/v1/events/async", req)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("async = %d %v", resp.StatusCode, body)
	}
	if body["queued"] != float64(2) || body["rejected"] != float64(1) || body["job_id"] == "" {
		t.Errorf("async body = %v", body)
	}
}

func TestDeliveries_Errors(t *testing.T) {
	f := newFixture(t)
	if resp, _ := f.do(t, http.MethodGet, "/v1/deliveries?state=lost", nil); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown state = %d", resp.StatusCode)
	}
	if resp, _ := f.do(t, http.MethodGet, "/v1/deliveries?limit=0", nil); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad limit = %d", resp.StatusCode)
	}
	if resp, _ := f.do(t, http.MethodGet, "/v1/deliveries/evt_missing/"+shopID, nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing delivery = %d", resp.StatusCode)
	}
}

func TestMerchants(t *testing.T) {
	f := newFixture(t)
	_, body := f.do(t, http.MethodGet, "/v1/merchants", nil)
	if body["count"] != float64(1) {
		t.Fatalf("list = %v", body)
	}
	ms := body["merchants"].([]any)
	if _, leaked := ms[0].(map[string]any)["webhook_secret"]; leaked {
		t.Error("webhook secret exposed")
	}

	resp, body := f.do(t, http.MethodPost, "/v1/merchants/"+shopID+"/test", nil)
	if resp.StatusCode != http.StatusOK || body["success"] != true {
		t.Fatalf("test = %d %v", resp.StatusCode, body)
	}
	if resp, _ := f.do(t, http.MethodGet, "/v1/merchants/0xdead", nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown merchant = %d", resp.StatusCode)
	}
}

func TestCheckWebhookURL(t *testing.T) {
	f := newFixture(t)
	_, body := f.do(t, http.MethodPost, "/v1/webhooks/check", map[string]string{"url": "https://shop.example"})
	if body["reachable"] != true {
		t.Errorf("reachable = %v", body)
	}
	_, body = f.do(t, http.MethodPost, "/v1/webhooks/check", map[string]string{"url": "https://down.example"})
	if body["reachable"] != false {
		t.Errorf("down = %v", body)
	}
	if resp, _ := f.do(t, http.MethodPost, "/v1/webhooks/check", map[string]string{"url": "ftp://x"}); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad scheme = %d", resp.StatusCode)
	}
}

func TestSignatureEndpoints(t *testing.T) {
	f := newFixture(t)

	signed, err := signing.SignPayload(signing.Payload{
		EventID:   "evt_1",
		EventType: signing.DefaultEventType,
		Timestamp: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		Data:      signing.Data{"amount": "1"},
	}, "whsec")
	if err != nil {
		t.Fatal(err)
	}
	raw, err := signed.Body()
	if err != nil {
		t.Fatal(err)
	}
	req := map[string]any{
		"payload":   json.RawMessage(raw),
		"signature": signing.SignaturePrefix + signed.Signature,
		"secret":    "whsec",
	}
	_, body := f.do(t, http.MethodPost, "/v1/signature/verify", req)
	if body["valid"] != true {
		t.Errorf("verify = %v", body)
	}
	req["secret"] = "other"
	_, body = f.do(t, http.MethodPost, "/v1/signature/verify", req)
	if body["valid"] != false {
		t.Errorf("verify with wrong secret = %v", body)
	}

	resp, _ := f.do(t, http.MethodGet, "/v1/signature/snippet?language=go", nil)
	if resp.StatusCode != http.StatusOK || !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/plain") {
		t.Errorf("snippet = %d %s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	if resp, _ := f.do(t, http.MethodGet, "/v1/signature/snippet?language=cobol", nil); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown language = %d", resp.StatusCode)
	}
}

func TestReloadWithoutLoader(t *testing.T) {
	f := newFixture(t)
	if resp, _ := f.do(t, http.MethodPost, "/v1/config/reload", nil); resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("reload = %d", resp.StatusCode)
	}
}
