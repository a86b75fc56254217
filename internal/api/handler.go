package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gyaneshwarpardhi/paynotify/internal/config"
	"github.com/gyaneshwarpardhi/paynotify/internal/delivery"
	"github.com/gyaneshwarpardhi/paynotify/internal/ledger"
	"github.com/gyaneshwarpardhi/paynotify/internal/merchant"
	"github.com/gyaneshwarpardhi/paynotify/internal/payment"
	"github.com/gyaneshwarpardhi/paynotify/internal/router"
	"github.com/gyaneshwarpardhi/paynotify/internal/signing"
)

const maxBatchSize = 100

// EventRouter is the part of router.Router the API drives.
type EventRouter interface {
	Route(ctx context.Context, evt payment.Event, eventType string) (bool, error)
	RouteBatch(ctx context.Context, events []payment.Event, eventType string) []router.Result
	Stats() router.Snapshot
	ResetStats()
}

// Intake accepts events for asynchronous routing.
type Intake interface {
	Submit(evt payment.Event, eventType string) error
	Utilization() float64
}

// URLChecker probes a webhook endpoint.
type URLChecker interface {
	CheckURL(ctx context.Context, url string) (string, error)
}

// Checker is implemented by transports that can test a merchant's
// destination without a payment.
type Checker interface {
	Check(ctx context.Context, m merchant.Merchant) (string, error)
}

// Lister is implemented by directories that can enumerate merchants.
type Lister interface {
	List(ctx context.Context) ([]merchant.Merchant, error)
}

// Reloader re-reads the config file.
type Reloader interface {
	Reload() (*config.Config, error)
}

// Deps are the handler's collaborators. Queue, URLChecker, Reloader and
// Ready may be nil; their endpoints then answer 503.
type Deps struct {
	Router     EventRouter
	Queue      Intake
	Ledger     ledger.Store
	Directory  merchant.Directory
	Transports *delivery.Registry
	URLChecker URLChecker
	Reloader   Reloader
	// Ready reports whether backing storage is reachable.
	Ready func(ctx context.Context) error
	Log   *slog.Logger
}

// Handler holds all HTTP handler dependencies.
type Handler struct {
	Deps
}

// New creates an HTTP handler and registers all routes.
func New(d Deps) http.Handler {
	if d.Log == nil {
		d.Log = slog.Default()
	}
	h := &Handler{Deps: d}

	r := chi.NewRouter()
	r.Use(requestID, h.logRequests, recoverer(d.Log))
	r.Get("/healthz", h.healthz)
	r.Get("/readyz", h.readyz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/events", h.routeEvent)
		r.Post("/events/batch", h.routeBatch)
		r.Post("/events/async", h.enqueueBatch)

		r.Get("/stats", h.stats)
		r.Post("/stats/reset", h.resetStats)

		r.Get("/deliveries", h.listDeliveries)
		r.Get("/deliveries/{event_id}/{merchant_id}", h.getDelivery)

		r.Get("/merchants", h.listMerchants)
		r.Get("/merchants/{merchant_id}", h.getMerchant)
		r.Post("/merchants/{merchant_id}/test", h.testMerchant)
		r.Post("/webhooks/check", h.checkWebhookURL)

		r.Get("/signature/snippet", h.signatureSnippet)
		r.Post("/signature/verify", h.verifySignature)

		r.Post("/config/reload", h.reloadConfig)
	})
	return r
}

// eventRequest is a payment event plus an optional event type.
type eventRequest struct {
	payment.Event
	EventType string `json:"event_type,omitempty"`
}

type batchRequest struct {
	EventType string          `json:"event_type,omitempty"`
	Events    []payment.Event `json:"events"`
}

func validateEvent(evt payment.Event) error {
	switch {
	case evt.MerchantID == "":
		return errors.New("merchant_id is required")
	case evt.TransactionHash == "":
		return errors.New("transaction_hash is required")
	case evt.PaymentIntentID == "":
		return errors.New("payment_intent_id is required")
	}
	return nil
}

// POST /v1/events — route one event synchronously.
func (h *Handler) routeEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	evt := req.Event.Normalize()
	if err := validateEvent(evt); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ok, err := h.Router.Route(r.Context(), evt, req.EventType)
	res := router.Result{EventID: evt.ID(), MerchantID: merchant.NormalizeID(evt.MerchantID), Delivered: ok}
	if err != nil {
		res.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, res)
}

func decodeBatch(w http.ResponseWriter, r *http.Request) (batchRequest, bool) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return req, false
	}
	if len(req.Events) == 0 {
		writeError(w, http.StatusBadRequest, "batch must contain at least one event")
		return req, false
	}
	if len(req.Events) > maxBatchSize {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("batch size %d exceeds max %d", len(req.Events), maxBatchSize))
		return req, false
	}
	for i, evt := range req.Events {
		evt = evt.Normalize()
		if err := validateEvent(evt); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("events[%d]: %s", i, err))
			return req, false
		}
		req.Events[i] = evt
	}
	return req, true
}

// POST /v1/events/batch — route a batch synchronously (up to 100 events).
func (h *Handler) routeBatch(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeBatch(w, r)
	if !ok {
		return
	}
	results := h.Router.RouteBatch(r.Context(), req.Events, req.EventType)
	delivered := 0
	for _, res := range results {
		if res.Delivered {
			delivered++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total":     len(results),
		"delivered": delivered,
		"results":   results,
	})
}

// POST /v1/events/async — enqueue a batch for background routing.
func (h *Handler) enqueueBatch(w http.ResponseWriter, r *http.Request) {
	if h.Queue == nil {
		writeError(w, http.StatusServiceUnavailable, "async intake is disabled")
		return
	}
	req, ok := decodeBatch(w, r)
	if !ok {
		return
	}
	queued := 0
	for _, evt := range req.Events {
		if err := h.Queue.Submit(evt, req.EventType); err == nil {
			queued++
		}
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":   uuid.New().String(),
		"total":    len(req.Events),
		"queued":   queued,
		"rejected": len(req.Events) - queued,
	})
}

// GET /v1/stats
func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"routing": h.Router.Stats()}
	if h.Queue != nil {
		resp["queue_utilization"] = h.Queue.Utilization()
	}
	writeJSON(w, http.StatusOK, resp)
}

// POST /v1/stats/reset
func (h *Handler) resetStats(w http.ResponseWriter, r *http.Request) {
	h.Router.ResetStats()
	writeJSON(w, http.StatusOK, map[string]any{"reset": true})
}

// deliveryView adds the derived state to a ledger record.
type deliveryView struct {
	ledger.Record
	State ledger.State `json:"state"`
}

func viewOf(rec ledger.Record) deliveryView {
	return deliveryView{Record: rec, State: rec.State()}
}

// GET /v1/deliveries?state=&transport=&merchant_id=&limit=
func (h *Handler) listDeliveries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f ledger.Filter
	if s := q.Get("state"); s != "" {
		switch st := ledger.State(strings.ToLower(s)); st {
		case ledger.StatePending, ledger.StateDelivered, ledger.StateExhausted:
			f.State = st
		default:
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown state %q", s))
			return
		}
	}
	if s := q.Get("transport"); s != "" {
		kind, err := merchant.ParseKind(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		f.Transport = kind
	}
	if s := q.Get("merchant_id"); s != "" {
		f.MerchantID = merchant.NormalizeID(s)
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 || n > 1000 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		f.Limit = n
	}

	recs, err := h.Ledger.List(r.Context(), f)
	if err != nil {
		h.Log.Error("list deliveries failed", "err", err)
		writeError(w, http.StatusInternalServerError, "ledger unavailable")
		return
	}
	out := make([]deliveryView, 0, len(recs))
	for _, rec := range recs {
		out = append(out, viewOf(rec))
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(out), "deliveries": out})
}

// GET /v1/deliveries/{event_id}/{merchant_id}
func (h *Handler) getDelivery(w http.ResponseWriter, r *http.Request) {
	key := ledger.Key{
		EventID:    chi.URLParam(r, "event_id"),
		MerchantID: merchant.NormalizeID(chi.URLParam(r, "merchant_id")),
	}
	rec, err := h.Ledger.Get(r.Context(), key)
	if errors.Is(err, ledger.ErrNotFound) {
		writeError(w, http.StatusNotFound, "delivery not found")
		return
	}
	if err != nil {
		h.Log.Error("get delivery failed", "event_id", key.EventID, "err", err)
		writeError(w, http.StatusInternalServerError, "ledger unavailable")
		return
	}
	writeJSON(w, http.StatusOK, viewOf(rec))
}

// GET /v1/merchants
func (h *Handler) listMerchants(w http.ResponseWriter, r *http.Request) {
	l, ok := h.Directory.(Lister)
	if !ok {
		writeError(w, http.StatusNotImplemented, "merchant directory cannot be listed")
		return
	}
	ms, err := l.List(r.Context())
	if err != nil {
		h.Log.Error("list merchants failed", "err", err)
		writeError(w, http.StatusInternalServerError, "merchant directory unavailable")
		return
	}
	if ms == nil {
		ms = []merchant.Merchant{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(ms), "merchants": ms})
}

func (h *Handler) lookupMerchant(w http.ResponseWriter, r *http.Request) (merchant.Merchant, bool) {
	id := chi.URLParam(r, "merchant_id")
	m, err := h.Directory.Lookup(r.Context(), id)
	if errors.Is(err, merchant.ErrNotFound) {
		writeError(w, http.StatusNotFound, "merchant not found")
		return m, false
	}
	if err != nil {
		h.Log.Error("merchant lookup failed", "merchant", id, "err", err)
		writeError(w, http.StatusInternalServerError, "merchant directory unavailable")
		return m, false
	}
	return m, true
}

// GET /v1/merchants/{merchant_id}
func (h *Handler) getMerchant(w http.ResponseWriter, r *http.Request) {
	m, ok := h.lookupMerchant(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// POST /v1/merchants/{merchant_id}/test — probe the merchant's destination.
func (h *Handler) testMerchant(w http.ResponseWriter, r *http.Request) {
	m, ok := h.lookupMerchant(w, r)
	if !ok {
		return
	}
	t, err := h.Transports.Get(m.Kind)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	c, ok := t.(Checker)
	if !ok {
		writeError(w, http.StatusServiceUnavailable, fmt.Sprintf("transport %s cannot be tested", m.Kind))
		return
	}
	msg, err := c.Check(r.Context(), m)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "method": m.Kind, "message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "method": m.Kind, "message": msg})
}

// POST /v1/webhooks/check {"url": "..."}
func (h *Handler) checkWebhookURL(w http.ResponseWriter, r *http.Request) {
	if h.URLChecker == nil {
		writeError(w, http.StatusServiceUnavailable, "webhook transport is disabled")
		return
	}
	var req struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	msg, err := h.URLChecker.CheckURL(r.Context(), strings.TrimSpace(req.URL))
	if errors.Is(err, delivery.ErrConfiguration) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"reachable": false, "message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reachable": true, "message": msg})
}

// GET /v1/signature/snippet?language=go
func (h *Handler) signatureSnippet(w http.ResponseWriter, r *http.Request) {
	lang := r.URL.Query().Get("language")
	if lang == "" {
		lang = "python"
	}
	code, err := signing.Snippet(lang)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(code))
}

// POST /v1/signature/verify {"payload": {...}, "signature": "sha256=...", "secret": "..."}
func (h *Handler) verifySignature(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Payload   json.RawMessage `json:"payload"`
		Signature string          `json:"signature"`
		Secret    string          `json:"secret"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	if len(req.Payload) == 0 || req.Signature == "" || req.Secret == "" {
		writeError(w, http.StatusBadRequest, "payload, signature and secret are required")
		return
	}
	valid, err := signing.VerifyBody(req.Payload, req.Signature, req.Secret)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": valid})
}

// POST /v1/config/reload — re-read the config file from disk.
func (h *Handler) reloadConfig(w http.ResponseWriter, r *http.Request) {
	if h.Reloader == nil {
		writeError(w, http.StatusServiceUnavailable, "config reload is not available")
		return
	}
	cfg, err := h.Reloader.Reload()
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"reloaded":        true,
		"version":         cfg.Version,
		"merchants_count": len(cfg.Merchants),
	})
}

// GET /healthz — always 200 (liveness probe).
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /readyz — 503 if storage is down or the intake queue is >80% full.
func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	if h.Ready != nil {
		if err := h.Ready(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "storage unavailable", "error": err.Error()})
			return
		}
	}
	var util float64
	if h.Queue != nil {
		util = h.Queue.Utilization()
	}
	if util > 0.8 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":            "overloaded",
			"queue_utilization": util,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "ready",
		"queue_utilization": util,
	})
}
