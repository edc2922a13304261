// utils.go
package parkcluster

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// -----------------------------
// HMAC helpers, inter-node message authenticity
// -----------------------------

// computeHMACSHA256Hex signs a broker message body with the cluster's shared
// secret. Used in place of per-request bearer tokens: there is no human
// caller on the wire between nodes, only other cluster members sharing one
// configured secret.
func computeHMACSHA256Hex(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func verifyHMACSHA256Hex(body []byte, secret, hexSig string) bool {
	expect := computeHMACSHA256Hex(body, secret)
	return hmac.Equal([]byte(expect), []byte(hexSig))
}
