package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/open-policy-agent/opa/v1/rego"
	"go.uber.org/zap"

	"union-registry/backend/internal/disclosure"
)

const auditQuery = "data.unions.audit.audit_required"

// DefaultRegoPolicy mirrors disclosure.AuditRequired. Absent inputs are undefined in Rego, so each
// rule only fires for values that are present.
var DefaultRegoPolicy = fmt.Sprintf(`package unions.audit

default audit_required = false

audit_required if {
	input.annualRevenue > %d
}

audit_required if {
	input.totalAssets > %d
}

audit_required if {
	input.governmentSupport == true
}

audit_required if {
	input.memberCount > %d
}
`, disclosure.AnnualRevenueThreshold, disclosure.TotalAssetsThreshold, disclosure.MemberCountThreshold)

// OPAEvaluator evaluates the audit rule with OPA Rego. Evaluation failures fall back to the Go rule.
type OPAEvaluator struct {
	query    rego.PreparedEvalQuery
	fallback disclosure.Policy
	logger   *zap.Logger
}

// NewOPAEvaluator compiles DefaultRegoPolicy.
func NewOPAEvaluator(ctx context.Context, logger *zap.Logger) (*OPAEvaluator, error) {
	return NewOPAEvaluatorWithPolicy(ctx, DefaultRegoPolicy, logger)
}

// NewOPAEvaluatorWithPolicy compiles module, which must define data.unions.audit.audit_required.
func NewOPAEvaluatorWithPolicy(ctx context.Context, module string, logger *zap.Logger) (*OPAEvaluator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	q, err := rego.New(
		rego.Query(auditQuery),
		rego.Module("audit.rego", module),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile audit policy: %w", err)
	}
	return &OPAEvaluator{query: q, fallback: disclosure.ThresholdPolicy{}, logger: logger}, nil
}

// Decide implements disclosure.Policy.
func (e *OPAEvaluator) Decide(ctx context.Context, s *disclosure.Snapshot) disclosure.AuditStatus {
	required, err := e.evaluate(ctx, buildInput(s))
	if err != nil {
		e.logger.Warn("policy: audit evaluation failed, using threshold rule", zap.Error(err))
		return e.fallback.Decide(ctx, s)
	}
	if required {
		return disclosure.AuditStatusRequired
	}
	return disclosure.AuditStatusNotRequired
}

// HealthCheck verifies that the prepared query evaluates to a boolean on an empty disclosure.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	_, err := e.evaluate(ctx, map[string]any{})
	return err
}

func (e *OPAEvaluator) evaluate(ctx context.Context, input map[string]any) (bool, error) {
	rs, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return false, fmt.Errorf("eval audit policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, errors.New("audit policy returned no result")
	}
	v, ok := rs[0].Expressions[0].Value.(bool)
	if !ok {
		return false, fmt.Errorf("audit policy returned %T, want bool", rs[0].Expressions[0].Value)
	}
	return v, nil
}

// buildInput passes only the fields present in s. Amounts are sent as json.Number so large values
// keep their precision.
func buildInput(s *disclosure.Snapshot) map[string]any {
	input := map[string]any{}
	if s == nil {
		return input
	}
	if s.AnnualRevenue != nil {
		input[disclosure.KeyAnnualRevenue] = json.Number(s.AnnualRevenue.String())
	}
	if s.TotalAssets != nil {
		input[disclosure.KeyTotalAssets] = json.Number(s.TotalAssets.String())
	}
	if s.MemberCount != nil {
		input[disclosure.KeyMemberCount] = *s.MemberCount
	}
	if s.GovernmentSupport != nil {
		input[disclosure.KeyGovernmentSupport] = *s.GovernmentSupport
	}
	return input
}
