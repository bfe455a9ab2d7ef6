package platform

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"strings"

	pkgError "github.com/AzielCF/az-messenger/pkg/error"
)

const (
	HeaderSignature256 = "X-Hub-Signature-256"
	HeaderSignature    = "X-Hub-Signature"

	modeSubscribe = "subscribe"
)

// VerifySignature checks the webhook body against the signature headers.
// The sha256 header is used when present, otherwise the legacy sha1 one.
func (c *Client) VerifySignature(body []byte, signature256, signature1 string) error {
	switch {
	case signature256 != "":
		return verifyHMAC(sha256.New, "sha256=", c.creds.AppSecret, body, signature256)
	case signature1 != "":
		return verifyHMAC(sha1.New, "sha1=", c.creds.AppSecret, body, signature1)
	default:
		return pkgError.VerificationError("missing webhook signature")
	}
}

func verifyHMAC(h func() hash.Hash, prefix, secret string, body []byte, header string) error {
	if !strings.HasPrefix(header, prefix) {
		return pkgError.VerificationError("malformed webhook signature")
	}
	expected, err := hex.DecodeString(header[len(prefix):])
	if err != nil {
		return pkgError.VerificationError("malformed webhook signature")
	}

	mac := hmac.New(h, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(mac.Sum(nil), expected) {
		return pkgError.VerificationError("webhook signature mismatch")
	}
	return nil
}

// VerifyToken checks a subscription handshake.
func (c *Client) VerifyToken(mode, token string) error {
	if mode != modeSubscribe {
		return pkgError.VerificationError("unsupported hub.mode " + mode)
	}
	if c.creds.VerificationToken == "" ||
		!hmac.Equal([]byte(token), []byte(c.creds.VerificationToken)) {
		return pkgError.VerificationError("verify token mismatch")
	}
	return nil
}
