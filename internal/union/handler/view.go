package handler

import (
	"time"

	"union-registry/backend/internal/disclosure"
	"union-registry/backend/internal/union/domain"
)

// UnionView is the JSON shape of a union shared by every endpoint that returns one.
type UnionView struct {
	ID                 string               `json:"id"`
	User               string               `json:"user"`
	Name               string               `json:"name"`
	HeadOfUnion        string               `json:"headOfUnion"`
	Region             string               `json:"region"`
	EconomicCode       string               `json:"economicCode"`
	FiscalYear         string               `json:"fiscalYear"`
	Code               string               `json:"code"`
	AuditStatus        string               `json:"audit_status"`
	RegistrationStatus string               `json:"registration_status"`
	SubmittedAt        time.Time            `json:"submitted_at"`
	ApprovedAt         *time.Time           `json:"approved_at"`
	RejectedAt         *time.Time           `json:"rejected_at"`
	RejectionReason    string               `json:"rejection_reason"`
	FinancialData      *disclosure.Snapshot `json:"financial_data"`
	PhoneNumber        string               `json:"phone_number"`
}

// View converts u to its JSON representation.
func View(u *domain.Union) UnionView {
	return UnionView{
		ID:                 u.ID,
		User:               u.OwnerIdentityID,
		Name:               u.Name,
		HeadOfUnion:        u.HeadOfUnion,
		Region:             u.Region,
		EconomicCode:       u.EconomicCode,
		FiscalYear:         u.FiscalYear,
		Code:               u.Code,
		AuditStatus:        string(u.AuditStatus),
		RegistrationStatus: string(u.RegistrationStatus),
		SubmittedAt:        u.SubmittedAt,
		ApprovedAt:         u.ApprovedAt,
		RejectedAt:         u.RejectedAt,
		RejectionReason:    u.RejectionReason,
		FinancialData:      u.FinancialData,
		PhoneNumber:        u.OwnerPhone,
	}
}

// Views converts a list of unions; an empty list encodes as [].
func Views(unions []*domain.Union) []UnionView {
	out := make([]UnionView, 0, len(unions))
	for _, u := range unions {
		out = append(out, View(u))
	}
	return out
}
