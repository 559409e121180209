package webhook

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"strings"
)

const SignatureHeader = "x-paystack-signature"

type SignatureResult struct {
	IsValid bool
	// Reason is diagnostic only. It carries at most a short prefix of the computed digest.
	Reason string
}

// VerifySignature checks the HMAC-SHA512 of the exact request bytes against
// the hex signature header. Missing inputs fail closed.
func VerifySignature(body []byte, header, secret string) SignatureResult {
	sig := strings.TrimSpace(header)
	key := strings.TrimSpace(secret)
	switch {
	case key == "":
		return SignatureResult{Reason: "webhook secret not configured"}
	case sig == "":
		return SignatureResult{Reason: "missing signature header"}
	}

	decoded, err := hex.DecodeString(strings.ToLower(sig))
	if err != nil {
		return SignatureResult{Reason: "signature header is not hex"}
	}

	mac := hmac.New(sha512.New, []byte(key))
	mac.Write(body)
	computed := mac.Sum(nil)
	if !hmac.Equal(computed, decoded) {
		return SignatureResult{Reason: "signature mismatch (computed " + hex.EncodeToString(computed)[:8] + "...)"}
	}
	return SignatureResult{IsValid: true}
}

// Sign returns the hex signature the provider would send for body.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
