// Package sign implements the per-gateway notification signing schemes.
// The digests are each counterparty's historical choice and are kept
// exactly as the remote end computes them; upgrading one would break the
// signature exchange.
package sign

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Concat joins the string values of the named fields in the given order.
// A missing field contributes the empty string; counterparties expect that
// leniency for optional fields.
func Concat(fields map[string]string, order []string) string {
	var b strings.Builder
	for _, name := range order {
		b.WriteString(fields[name])
	}
	return b.String()
}

// MD5KeySuffix is the transferuj scheme: md5(values ++ key).
func MD5KeySuffix(fields map[string]string, order []string, key string) string {
	sum := md5.Sum([]byte(Concat(fields, order) + key))
	return hex.EncodeToString(sum[:])
}

// SHA256KeyPrefix is the dotpay scheme: sha256(pin ++ values).
func SHA256KeyPrefix(fields map[string]string, order []string, pin string) string {
	sum := sha256.Sum256([]byte(pin + Concat(fields, order)))
	return hex.EncodeToString(sum[:])
}

// Equal compares two signature strings in constant time.
func Equal(got, want string) bool {
	return hmac.Equal([]byte(got), []byte(want))
}

// VerifyMD5KeySuffix recomputes the MD5 suffix-keyed signature and checks
// it against the received one.
func VerifyMD5KeySuffix(fields map[string]string, order []string, key, received string) bool {
	return Equal(received, MD5KeySuffix(fields, order, key))
}

// VerifySHA256KeyPrefix recomputes the SHA-256 prefix-keyed signature and
// checks it against the received one.
func VerifySHA256KeyPrefix(fields map[string]string, order []string, pin, received string) bool {
	return Equal(received, SHA256KeyPrefix(fields, order, pin))
}
