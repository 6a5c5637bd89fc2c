package handlers

import (
	"crypto/hmac"
	"net/http"
)

const webhookSecretHeader = "X-Webhook-Secret"

// validateSharedSecret compares X-Webhook-Secret against the configured secret
// in constant time. An unconfigured secret rejects every caller.
func validateSharedSecret(r *http.Request, secret string) bool {
	if secret == "" {
		return false
	}
	got := r.Header.Get(webhookSecretHeader)
	if got == "" {
		return false
	}
	return hmac.Equal([]byte(got), []byte(secret))
}
