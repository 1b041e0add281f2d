package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"union-registry/backend/internal/disclosure"
)

var (
	// ErrValidation wraps every field validation failure.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound is returned by every lookup of a union that does not exist.
	ErrNotFound = errors.New("union not found")
)

// Union is a registered trade union. Each identity owns at most one.
type Union struct {
	ID              string
	OwnerIdentityID string
	// OwnerPhone is read from the owner identity; it is not stored on the union row.
	OwnerPhone         string
	Name               string
	HeadOfUnion        string
	Region             string
	EconomicCode       string
	Code               string
	FiscalYear         string
	AuditStatus        disclosure.AuditStatus
	RegistrationStatus RegistrationStatus
	SubmittedAt        time.Time
	ApprovedAt         *time.Time
	RejectedAt         *time.Time
	RejectionReason    string
	FinancialData      *disclosure.Snapshot
	CreatedAt          time.Time
}

// RegistrationStatus is the administrative review state of a union.
type RegistrationStatus string

const (
	StatusPending  RegistrationStatus = "pending"
	StatusApproved RegistrationStatus = "approved"
	StatusRejected RegistrationStatus = "rejected"
)

// Validate trims text fields and checks the registration fields. The returned error wraps
// ErrValidation and names every missing or malformed field.
func (u *Union) Validate() error {
	u.Name = strings.TrimSpace(u.Name)
	u.HeadOfUnion = strings.TrimSpace(u.HeadOfUnion)
	u.Region = strings.TrimSpace(u.Region)
	u.EconomicCode = strings.TrimSpace(u.EconomicCode)
	u.Code = strings.TrimSpace(u.Code)
	u.FiscalYear = strings.TrimSpace(u.FiscalYear)

	var problems []string
	required := []struct{ field, value string }{
		{"name", u.Name},
		{"headOfUnion", u.HeadOfUnion},
		{"region", u.Region},
		{"economicCode", u.EconomicCode},
		{"code", u.Code},
	}
	for _, r := range required {
		if r.value == "" {
			problems = append(problems, r.field+" is required")
		}
	}
	if !isFiscalYear(u.FiscalYear) {
		problems = append(problems, "fiscalYear must be 4 digits")
	}
	if u.OwnerIdentityID == "" {
		problems = append(problems, "owner is required")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrValidation, strings.Join(problems, "; "))
	}
	if u.AuditStatus == "" {
		u.AuditStatus = disclosure.AuditStatusCompleted
	}
	if u.RegistrationStatus == "" {
		u.RegistrationStatus = StatusPending
	}
	return nil
}

// Approved reports whether the union may file disclosures.
func (u *Union) Approved() bool {
	return u != nil && u.RegistrationStatus == StatusApproved
}

func isFiscalYear(s string) bool {
	if len(s) != 4 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
