package domain

import (
	"errors"
	"strings"
	"time"
)

// Identity is a phone-number identity that proves itself with SMS codes. Identities are never deleted.
type Identity struct {
	ID          string
	PhoneNumber string
	NationalID  string
	Verified    bool
	Role        Role
	// UserID links the account created on first successful verification; empty until then.
	UserID    string
	CreatedAt time.Time
}

// Role distinguishes union owners from registry administrators.
type Role string

const (
	RoleUnion Role = "union"
	RoleAdmin Role = "admin"
)

var (
	// ErrInvalidPhone is returned for phone numbers that are not 11 digits starting with 09.
	ErrInvalidPhone = errors.New("phone number must be 11 digits starting with 09")
	// ErrInvalidNationalID is returned for national IDs that are not exactly 10 digits.
	ErrInvalidNationalID = errors.New("national id must be 10 digits")
)

// NormalizePhone trims spaces, maps Persian and Arabic-Indic digits to ASCII, converts a +98/0098
// prefix to a leading 0, and validates the result as an Iranian mobile number (09XXXXXXXXX).
func NormalizePhone(s string) (string, error) {
	p := asciiDigits(strings.TrimSpace(s))
	p = strings.NewReplacer(" ", "", "-", "").Replace(p)
	switch {
	case strings.HasPrefix(p, "+98"):
		p = "0" + p[3:]
	case strings.HasPrefix(p, "0098"):
		p = "0" + p[4:]
	}
	if len(p) != 11 || !strings.HasPrefix(p, "09") || !allDigits(p) {
		return "", ErrInvalidPhone
	}
	return p, nil
}

// NormalizeNationalID trims spaces, maps Persian digits to ASCII, and checks for 10 digits.
func NormalizeNationalID(s string) (string, error) {
	n := asciiDigits(strings.TrimSpace(s))
	if len(n) != 10 || !allDigits(n) {
		return "", ErrInvalidNationalID
	}
	return n, nil
}

func asciiDigits(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= '۰' && r <= '۹':
			return '0' + (r - '۰')
		case r >= '٠' && r <= '٩':
			return '0' + (r - '٠')
		}
		return r
	}, s)
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
