// Package verification generates and checks the 6-digit SMS codes that prove control of a phone number.
package verification

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"math/big"
	"time"
)

const (
	// CodeDigits is the length of a verification code.
	CodeDigits = 6
	// CodeTTL is how long a verification code stays valid after it is issued.
	CodeTTL = 5 * time.Minute
)

var codeSpace = big.NewInt(1_000_000)

// GenerateCode returns a uniformly distributed 6-digit numeric code (e.g. "042817") from crypto/rand.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", err
	}
	s := n.String()
	for len(s) < CodeDigits {
		s = "0" + s
	}
	return s, nil
}

// HashCode returns the hex SHA-256 of code. Only the hash is persisted.
func HashCode(code string) string {
	h := sha256.Sum256([]byte(code))
	return hex.EncodeToString(h[:])
}

// CodeMatches compares code against a stored hash in constant time.
func CodeMatches(code, storedHash string) bool {
	return subtle.ConstantTimeCompare([]byte(HashCode(code)), []byte(storedHash)) == 1
}
