package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Signature headers sent with every delivery.
const (
	HeaderSignature = "X-Pulse-Signature"
	HeaderEvent     = "X-Pulse-Event"
	HeaderDelivery  = "X-Pulse-Delivery"
)

// Sign computes the delivery signature for a raw JSON body:
// "sha256=" + hex(HMAC-SHA256(body, secret)).
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a received signature against the raw body using a
// constant-time comparison. Exported for consumers building receivers.
func VerifySignature(secret string, body []byte, signature string) bool {
	return hmac.Equal([]byte(Sign(secret, body)), []byte(signature))
}
