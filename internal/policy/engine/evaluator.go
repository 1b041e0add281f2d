// Package engine selects and runs the audit-requirement policy.
package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"union-registry/backend/internal/disclosure"
)

// Engine names accepted by New.
const (
	EngineThreshold = "threshold"
	EngineOPA       = "opa"
)

// Evaluator is an audit policy that can report whether it is able to evaluate.
type Evaluator interface {
	disclosure.Policy
	// HealthCheck returns nil when the evaluator can produce decisions.
	HealthCheck(ctx context.Context) error
}

// ThresholdEvaluator is the Go implementation of the audit rule.
type ThresholdEvaluator struct {
	disclosure.ThresholdPolicy
}

// HealthCheck always succeeds.
func (ThresholdEvaluator) HealthCheck(context.Context) error { return nil }

// New returns the evaluator named by engine ("threshold" or "opa").
func New(ctx context.Context, engine string, logger *zap.Logger) (Evaluator, error) {
	switch engine {
	case "", EngineThreshold:
		return ThresholdEvaluator{}, nil
	case EngineOPA:
		return NewOPAEvaluator(ctx, logger)
	}
	return nil, fmt.Errorf("unknown audit policy engine %q", engine)
}
