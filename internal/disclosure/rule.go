package disclosure

import (
	"context"

	"github.com/shopspring/decimal"
)

// AuditStatus is a union's audit state. New unions start completed; every disclosure sets
// required or not_required.
type AuditStatus string

const (
	AuditStatusPending     AuditStatus = "pending"
	AuditStatusRequired    AuditStatus = "required"
	AuditStatusNotRequired AuditStatus = "not_required"
	AuditStatusCompleted   AuditStatus = "completed"
)

// Audit thresholds. A value strictly above any threshold requires an audit.
const (
	AnnualRevenueThreshold int64 = 5_000_000_000
	TotalAssetsThreshold   int64 = 3_000_000_000
	MemberCountThreshold   int64 = 500
)

var (
	revenueThreshold = decimal.NewFromInt(AnnualRevenueThreshold)
	assetsThreshold  = decimal.NewFromInt(TotalAssetsThreshold)
)

// AuditRequired reports whether s triggers a mandatory audit. Absent fields count as zero/false.
func AuditRequired(s *Snapshot) bool {
	return s.Revenue().GreaterThan(revenueThreshold) ||
		s.Assets().GreaterThan(assetsThreshold) ||
		s.Supported() ||
		s.Members() > MemberCountThreshold
}

// Decision maps AuditRequired to an audit status.
func Decision(s *Snapshot) AuditStatus {
	if AuditRequired(s) {
		return AuditStatusRequired
	}
	return AuditStatusNotRequired
}

// Valid reports whether a is a known audit status.
func (a AuditStatus) Valid() bool {
	switch a {
	case AuditStatusPending, AuditStatusRequired, AuditStatusNotRequired, AuditStatusCompleted:
		return true
	}
	return false
}

// Policy decides the audit status for a snapshot. Every call site shares one instance.
type Policy interface {
	Decide(ctx context.Context, s *Snapshot) AuditStatus
}

// ThresholdPolicy applies AuditRequired directly.
type ThresholdPolicy struct{}

// Decide implements Policy.
func (ThresholdPolicy) Decide(_ context.Context, s *Snapshot) AuditStatus {
	return Decision(s)
}
