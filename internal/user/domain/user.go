package domain

import (
	"errors"
	"time"
)

// User is the authenticatable account (JWT subject). It is created lazily the first time an
// identity verifies, and its username is the identity's phone number.
type User struct {
	ID        string
	Username  string
	CreatedAt time.Time
}

// Validate validates the user for persistence.
func (u *User) Validate() error {
	if u.Username == "" {
		return errors.New("username is required")
	}
	return nil
}
