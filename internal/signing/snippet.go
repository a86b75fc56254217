package signing

import (
	"fmt"
	"sort"
	"strings"
)

// Snippet returns merchant-facing example code that verifies our webhook
// signatures in the given language.
func Snippet(language string) (string, error) {
	s, ok := snippets[strings.ToLower(strings.TrimSpace(language))]
	if !ok {
		return "", fmt.Errorf("no verification snippet for %q (available: %s)",
			language, strings.Join(SnippetLanguages(), ", "))
	}
	return s, nil
}

// SnippetLanguages lists the languages Snippet supports.
func SnippetLanguages() []string {
	out := make([]string, 0, len(snippets))
	for k := range snippets {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

var snippets = map[string]string{
	"go": `package webhook

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// Verify checks the X-Webhook-Signature header against the raw request body.
func Verify(body []byte, header, secret string) bool {
	var payload map[string]any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return false
	}
	delete(payload, "signature")

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		return false
	}
	canonical := bytes.TrimRight(buf.Bytes(), "\n")

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(canonical)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.TrimPrefix(header, "sha256=")))
}
`,
	"python": `import hashlib
import hmac
import json


def verify_webhook(body: str, header: str, secret: str) -> bool:
    signature = header[len("sha256="):] if header.startswith("sha256=") else header
    payload = json.loads(body)
    payload.pop("signature", None)
    canonical = json.dumps(payload, separators=(",", ":"), sort_keys=True, ensure_ascii=False)
    expected = hmac.new(secret.encode(), canonical.encode(), hashlib.sha256).hexdigest()
    return hmac.compare_digest(expected, signature)
`,
	"javascript": `const crypto = require('crypto');

function canonical(value) {
  if (Array.isArray(value)) {
    return '[' + value.map(canonical).join(',') + ']';
  }
  if (value && typeof value === 'object') {
    return '{' + Object.keys(value).sort()
      .map((k) => JSON.stringify(k) + ':' + canonical(value[k]))
      .join(',') + '}';
  }
  return JSON.stringify(value);
}

function verifyWebhook(body, header, secret) {
  const signature = header.startsWith('sha256=') ? header.slice(7) : header;
  const payload = JSON.parse(body);
  delete payload.signature;
  const expected = crypto.createHmac('sha256', secret).update(canonical(payload)).digest('hex');
  if (expected.length !== signature.length) return false;
  return crypto.timingSafeEqual(Buffer.from(expected), Buffer.from(signature));
}

module.exports = { verifyWebhook };
`,
}
