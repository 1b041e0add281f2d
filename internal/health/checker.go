// Package health runs the readiness checks shared by /healthz and the gRPC health service.
package health

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"
)

const defaultTimeout = 2 * time.Second

// Pinger is implemented by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PolicyChecker is implemented by the audit policy evaluators.
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// Checker runs the database and policy checks. Nil dependencies are skipped.
type Checker struct {
	db      Pinger
	policy  PolicyChecker
	timeout time.Duration
}

// NewChecker returns a Checker. db and policy may be nil.
func NewChecker(db Pinger, policy PolicyChecker) *Checker {
	return &Checker{db: db, policy: policy, timeout: defaultTimeout}
}

// Result is the outcome of one readiness run, keyed by check name.
type Result map[string]error

// Err joins the failed checks in name order, or returns nil when all passed.
func (r Result) Err() error {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	var errs []error
	for _, name := range names {
		if r[name] != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, r[name]))
		}
	}
	return errors.Join(errs...)
}

// Check runs every configured check with a bounded timeout.
func (c *Checker) Check(ctx context.Context) Result {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	res := make(Result, 2)
	if c.db != nil {
		res["database"] = c.db.PingContext(ctx)
	}
	if c.policy != nil {
		res["policy"] = c.policy.HealthCheck(ctx)
	}
	return res
}
