package domain

import "time"

// Code is an issued SMS verification code (stored in verification_codes). Only the hash is kept.
// A phone may hold several outstanding codes; each is independently valid until it expires or is consumed.
type Code struct {
	ID          string
	PhoneNumber string
	CodeHash    string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	ConsumedAt  *time.Time
}

// Active reports whether the code can still be redeemed at now.
func (c *Code) Active(now time.Time) bool {
	return c.ConsumedAt == nil && c.ExpiresAt.After(now)
}
