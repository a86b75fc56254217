package signing

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// SignaturePrefix precedes the hex digest in the X-Webhook-Signature header.
const SignaturePrefix = "sha256="

// ErrEmptySecret is returned when signing without a secret.
var ErrEmptySecret = errors.New("signing secret is empty")

// Sign computes the hex HMAC-SHA256 of canonical under secret.
func Sign(canonical []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(canonical)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature (optionally "sha256="-prefixed) matches
// canonical under secret, comparing in constant time.
func Verify(canonical []byte, signature, secret string) bool {
	expected := Sign(canonical, secret)
	got := strings.TrimPrefix(strings.TrimSpace(signature), SignaturePrefix)
	return hmac.Equal([]byte(expected), []byte(got))
}

// SignPayload fills p.Signature and returns the signed copy.
func SignPayload(p Payload, secret string) (Payload, error) {
	if secret == "" {
		return p, ErrEmptySecret
	}
	canonical, err := p.Canonical()
	if err != nil {
		return p, err
	}
	p.Signature = Sign(canonical, secret)
	return p, nil
}

// VerifyBody checks a received webhook body against the signature header
// the way a merchant would: drop "signature", re-canonicalize, compare.
func VerifyBody(body []byte, signature, secret string) (bool, error) {
	var m map[string]any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&m); err != nil {
		return false, fmt.Errorf("verify: decode body: %w", err)
	}
	delete(m, "signature")
	canonical, err := Canonicalize(m)
	if err != nil {
		return false, err
	}
	return Verify(canonical, signature, secret), nil
}
