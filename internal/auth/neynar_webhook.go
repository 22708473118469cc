package auth

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"strings"
)

const WebhookSignatureHeader = "X-Neynar-Signature"

var (
	ErrMissingSignature = errors.New("webhook signature is missing")
	ErrInvalidSignature = errors.New("webhook signature mismatch")
)

// SignWebhookBody returns the hex HMAC-SHA512 of body, the value Neynar sends
// in X-Neynar-Signature.
func SignWebhookBody(secret string, body []byte) string {
	h := hmac.New(sha512.New, []byte(secret))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyWebhookSignature checks the raw request body against signature.
func VerifyWebhookSignature(secret string, body []byte, signature string) error {
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return ErrMissingSignature
	}
	got, err := hex.DecodeString(strings.TrimPrefix(signature, "0x"))
	if err != nil {
		return ErrInvalidSignature
	}
	want, _ := hex.DecodeString(SignWebhookBody(secret, body))
	if !hmac.Equal(got, want) {
		return ErrInvalidSignature
	}
	return nil
}
