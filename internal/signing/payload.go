// Package signing builds webhook payloads and signs them with HMAC-SHA256.
//
// The signature covers the canonical serialization of every payload field
// except "signature": a compact JSON object with keys sorted at every level,
// no insignificant whitespace and no HTML escaping. Anyone holding the shared
// secret can reproduce it by parsing the body, dropping "signature" and
// re-serializing the remainder the same way.
package signing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// DefaultEventType is used when callers do not name one.
const DefaultEventType = "payment.completed"

// Data is the opaque key/value body of a payload.
type Data map[string]any

// Payload is the envelope POSTed to merchant webhooks.
type Payload struct {
	EventID   string
	EventType string
	Timestamp time.Time
	Data      Data
	Signature string
}

// TimestampLayout is used both in the body and in the X-Webhook-Timestamp header.
const TimestampLayout = time.RFC3339Nano

func (p Payload) fields(withSignature bool) map[string]any {
	m := map[string]any{
		"event_id":   p.EventID,
		"event_type": p.EventType,
		"timestamp":  p.Timestamp.UTC().Format(TimestampLayout),
		"data":       map[string]any(p.Data),
	}
	if withSignature {
		m["signature"] = p.Signature
	}
	return m
}

// Canonical returns the bytes the signature is computed over.
func (p Payload) Canonical() ([]byte, error) {
	return Canonicalize(p.fields(false))
}

// Body returns the canonical JSON body including the signature.
func (p Payload) Body() ([]byte, error) {
	return Canonicalize(p.fields(true))
}

// Canonicalize serializes v as compact JSON with sorted map keys.
func Canonicalize(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// ParseBody decodes a payload previously produced by Body. Numbers are kept
// as json.Number so re-serialization is byte-stable.
func ParseBody(body []byte) (Payload, error) {
	var raw struct {
		EventID   string         `json:"event_id"`
		EventType string         `json:"event_type"`
		Timestamp string         `json:"timestamp"`
		Data      map[string]any `json:"data"`
		Signature string         `json:"signature"`
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return Payload{}, fmt.Errorf("parse payload: %w", err)
	}
	ts, err := time.Parse(TimestampLayout, raw.Timestamp)
	if err != nil {
		return Payload{}, fmt.Errorf("parse payload timestamp %q: %w", raw.Timestamp, err)
	}
	return Payload{
		EventID:   raw.EventID,
		EventType: raw.EventType,
		Timestamp: ts,
		Data:      Data(raw.Data),
		Signature: raw.Signature,
	}, nil
}
