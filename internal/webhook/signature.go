package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// GitHub webhook delivery headers.
const (
	SignatureHeader = "X-Hub-Signature-256"
	EventHeader     = "X-GitHub-Event"
	DeliveryHeader  = "X-GitHub-Delivery"
)

// Signature verification errors.
var (
	ErrMissingSignature   = errors.New("missing signature header")
	ErrMalformedSignature = errors.New("malformed signature header")
	ErrBadSignature       = errors.New("signature mismatch")
)

// VerifySignature checks the X-Hub-Signature-256 header value against an
// HMAC-SHA256 of the raw request body. The header format is
// "sha256=<hex digest>". Comparison is constant-time.
func VerifySignature(secret, body []byte, header string) error {
	if header == "" {
		return ErrMissingSignature
	}
	digest, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return ErrMalformedSignature
	}
	got, err := hex.DecodeString(digest)
	if err != nil {
		return ErrMalformedSignature
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return ErrBadSignature
	}
	return nil
}

// SignBody computes the header value GitHub would send for a body, for use
// in tests and delivery replay tooling.
func SignBody(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
