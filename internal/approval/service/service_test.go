package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"union-registry/backend/internal/auditlog"
	"union-registry/backend/internal/platform/metrics"
	uniondomain "union-registry/backend/internal/union/domain"
)

const (
	unionID = "22222222-2222-2222-2222-222222222222"
	adminID = "admin-user"
)

type memUnionRepo struct {
	mu        sync.Mutex
	m         map[string]uniondomain.Union
	updateErr error
}

func (r *memUnionRepo) GetByIDForUpdate(ctx context.Context, id string) (*uniondomain.Union, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.m[id]; ok {
		return &u, nil
	}
	return nil, nil
}

func (r *memUnionRepo) UpdateDecision(ctx context.Context, u *uniondomain.Union) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	r.m[u.ID] = *u
	return nil
}

func (r *memUnionRepo) get(id string) uniondomain.Union {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.m[id]
}

type memTxRunner struct{ repo *memUnionRepo }

func (t memTxRunner) RunInTx(ctx context.Context, fn func(UnionRepo) error) error {
	return fn(t.repo)
}

type recordedActivity struct {
	actor, action, resourceID string
	metadata                  map[string]any
}

type memRecorder struct {
	mu      sync.Mutex
	entries []recordedActivity
}

func (r *memRecorder) Record(ctx context.Context, actorID, action, resource, resourceID string, metadata map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, recordedActivity{actorID, action, resourceID, metadata})
}

var decidedAt = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

func newService(status uniondomain.RegistrationStatus) (*Service, *memUnionRepo, *memRecorder, *metrics.Metrics) {
	repo := &memUnionRepo{m: map[string]uniondomain.Union{
		unionID: {ID: unionID, Name: "Bakers", RegistrationStatus: status},
	}}
	rec := &memRecorder{}
	m := metrics.New(prometheus.NewRegistry())
	svc := NewService(memTxRunner{repo}, rec, m, nil, nil)
	svc.now = func() time.Time { return decidedAt }
	return svc, repo, rec, m
}

func TestDecide_Approve(t *testing.T) {
	svc, repo, rec, m := newService(uniondomain.StatusPending)

	u, err := svc.Decide(context.Background(), adminID, unionID, "approve", "")
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if u.RegistrationStatus != uniondomain.StatusApproved {
		t.Errorf("status = %q, want approved", u.RegistrationStatus)
	}
	stored := repo.get(unionID)
	if stored.ApprovedAt == nil || !stored.ApprovedAt.Equal(decidedAt) {
		t.Errorf("approved_at = %v", stored.ApprovedAt)
	}
	if len(rec.entries) != 1 || rec.entries[0].action != auditlog.ActionUnionApproved || rec.entries[0].actor != adminID {
		t.Errorf("activity = %+v", rec.entries)
	}
	if got := testutil.ToFloat64(m.Decisions.WithLabelValues("approve")); got != 1 {
		t.Errorf("decisions{approve} = %v", got)
	}
}

func TestDecide_RejectWithComment(t *testing.T) {
	svc, repo, rec, _ := newService(uniondomain.StatusPending)

	if _, err := svc.Decide(context.Background(), adminID, unionID, "reject", "incomplete filing"); err != nil {
		t.Fatalf("Decide: %v", err)
	}
	stored := repo.get(unionID)
	if stored.RegistrationStatus != uniondomain.StatusRejected {
		t.Errorf("status = %q, want rejected", stored.RegistrationStatus)
	}
	if stored.RejectedAt == nil || stored.RejectionReason != "incomplete filing" {
		t.Errorf("rejected_at = %v, reason = %q", stored.RejectedAt, stored.RejectionReason)
	}
	if stored.ApprovedAt != nil {
		t.Errorf("approved_at = %v, want nil", stored.ApprovedAt)
	}
	if rec.entries[0].action != auditlog.ActionUnionRejected || rec.entries[0].metadata["comment"] != "incomplete filing" {
		t.Errorf("activity = %+v", rec.entries[0])
	}
}

func TestDecide_RevocationKeepsApprovedAt(t *testing.T) {
	svc, repo, _, _ := newService(uniondomain.StatusPending)
	ctx := context.Background()
	if _, err := svc.Decide(ctx, adminID, unionID, "approve", ""); err != nil {
		t.Fatal(err)
	}
	svc.now = func() time.Time { return decidedAt.Add(time.Hour) }
	if _, err := svc.Decide(ctx, adminID, unionID, "reject", ""); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	stored := repo.get(unionID)
	if stored.ApprovedAt == nil || !stored.ApprovedAt.Equal(decidedAt) {
		t.Errorf("approved_at = %v, want untouched", stored.ApprovedAt)
	}
	if stored.RejectionReason != "" {
		t.Errorf("reason = %q, want empty", stored.RejectionReason)
	}
}

func TestDecide_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  uniondomain.RegistrationStatus
		union   string
		action  string
		wantErr error
	}{
		{"unknown action", uniondomain.StatusPending, unionID, "archive", ErrUnknownAction},
		{"empty action", uniondomain.StatusPending, unionID, "", ErrUnknownAction},
		{"approve twice", uniondomain.StatusApproved, unionID, "approve", ErrInvalidTransition},
		{"reject twice", uniondomain.StatusRejected, unionID, "reject", ErrInvalidTransition},
		{"missing union", uniondomain.StatusPending, "33333333-3333-3333-3333-333333333333", "approve", ErrUnionNotFound},
		{"malformed id", uniondomain.StatusPending, "42", "approve", ErrUnionNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, rec, _ := newService(tt.status)
			_, err := svc.Decide(context.Background(), adminID, tt.union, tt.action, "")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if repo.get(unionID).RegistrationStatus != tt.status {
				t.Error("union changed on failed decision")
			}
			if len(rec.entries) != 0 {
				t.Error("failed decision recorded in activity log")
			}
		})
	}
}

func TestDecide_StoreFailure(t *testing.T) {
	svc, repo, rec, _ := newService(uniondomain.StatusPending)
	repo.updateErr = errors.New("connection reset")
	if _, err := svc.Decide(context.Background(), adminID, unionID, "approve", ""); err == nil {
		t.Fatal("expected error")
	}
	if len(rec.entries) != 0 {
		t.Error("failed decision recorded in activity log")
	}
}
