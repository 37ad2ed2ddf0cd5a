// Package webhook receives repository push notifications and turns them into
// cache invalidations. Payloads are authenticated with an HMAC-SHA256
// signature computed over the raw request body.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/conneroisu/gitcms/internal/errors"
)

// Header names sent by GitHub.
const (
	SignatureHeader = "X-Hub-Signature-256"
	EventHeader     = "X-GitHub-Event"
	DeliveryHeader  = "X-GitHub-Delivery"
)

const signaturePrefix = "sha256="

// Sign returns the signature header value for body.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks header against the HMAC of body. body must be the bytes
// exactly as received. An empty secret never verifies.
func Verify(secret, body []byte, header string) error {
	if len(secret) == 0 {
		return errors.NewSignatureError(errors.ErrCodeNoSecret, "webhook secret is not configured")
	}

	header = strings.TrimSpace(header)
	if header == "" {
		return errors.NewSignatureError(errors.ErrCodeMissingSignature, "missing signature header")
	}

	hexSig, ok := strings.CutPrefix(header, signaturePrefix)
	if !ok {
		return errors.NewSignatureError(errors.ErrCodeBadSignature, "unsupported signature scheme")
	}
	got, err := hex.DecodeString(hexSig)
	if err != nil {
		return errors.NewSignatureError(errors.ErrCodeBadSignature, "malformed signature")
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return errors.NewSignatureError(errors.ErrCodeBadSignature, "signature mismatch")
	}
	return nil
}
