// credential.go - Random opaque secrets for new accounts.
//
// The ledger never interprets or verifies secrets; authentication lives
// outside this engine. The charset omits characters that read
// ambiguously when handed to a customer on paper (0/O, 1/l/I).

package ledger

import (
	"crypto/rand"
	"fmt"
)

const (
	secretCharset = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz23456789"
	secretLength  = 8
)

// NewSecret returns a random opaque credential for a new account.
func NewSecret() (string, error) {
	buf := make([]byte, secretLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	for i, b := range buf {
		buf[i] = secretCharset[int(b)%len(secretCharset)]
	}
	return string(buf), nil
}
