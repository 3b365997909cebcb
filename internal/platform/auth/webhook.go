package auth

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"io"
	"net/http"
	"strings"
)

const maxWebhookBodyBytes = 1 << 20

// WebhookSecretProvider returns the shared secret used to validate webhook signatures.
// Returning an empty secret disables validation (local development).
type WebhookSecretProvider func() string

// RequireWebhookSignature validates an HMAC-SHA256 hex signature computed over
// the raw request body against the supplied header. The body is re-buffered so
// downstream handlers can read it again.
func RequireWebhookSignature(header string, secret WebhookSecretProvider) func(http.Handler) http.Handler {
	header = strings.TrimSpace(header)
	if header == "" {
		header = "X-Webhook-Signature"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := ""
			if secret != nil {
				key = strings.TrimSpace(secret())
			}
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes+1))
			if err != nil {
				respondAuthError(w, http.StatusBadRequest, "invalid_body", "Unable to read request body")
				return
			}
			_ = r.Body.Close()
			if len(body) > maxWebhookBodyBytes {
				respondAuthError(w, http.StatusRequestEntityTooLarge, "body_too_large", "Request body exceeds limit")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			provided := strings.TrimSpace(r.Header.Get(header))
			if provided == "" {
				respondAuthError(w, http.StatusUnauthorized, "missing_signature", "Webhook signature header missing")
				return
			}

			if !validSignature(key, body, provided) {
				respondAuthError(w, http.StatusUnauthorized, "invalid_signature", "Webhook signature mismatch")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// SignWebhookBody computes the hex HMAC-SHA256 signature for a payload. Shared
// with tests and outbound webhook senders.
func SignWebhookBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func validSignature(secret string, body []byte, provided string) bool {
	provided = strings.TrimPrefix(strings.ToLower(provided), "sha256=")
	expected := SignWebhookBody(secret, body)
	if len(provided) != len(expected) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) == 1
}
