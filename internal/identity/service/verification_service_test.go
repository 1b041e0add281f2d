package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	identitydomain "union-registry/backend/internal/identity/domain"
	"union-registry/backend/internal/platform/metrics"
	"union-registry/backend/internal/security"
	userdomain "union-registry/backend/internal/user/domain"
	"union-registry/backend/internal/verification"
	"union-registry/backend/internal/verification/devcode"
	verificationdomain "union-registry/backend/internal/verification/domain"
)

// memState is the shared backing store for the in-memory repositories.
type memState struct {
	mu         sync.Mutex
	codes      map[string]verificationdomain.Code
	identities map[string]identitydomain.Identity
	users      map[string]userdomain.User
}

func newMemState() *memState {
	return &memState{
		codes:      make(map[string]verificationdomain.Code),
		identities: make(map[string]identitydomain.Identity),
		users:      make(map[string]userdomain.User),
	}
}

func (m *memState) stores() Stores {
	return Stores{Codes: &memCodeRepo{m}, Identities: &memIdentityRepo{m}, Users: &memUserRepo{m}}
}

type memCodeRepo struct{ s *memState }

func (r *memCodeRepo) Create(ctx context.Context, c *verificationdomain.Code) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.codes[c.ID] = *c
	return nil
}

func (r *memCodeRepo) ListActiveForUpdate(ctx context.Context, phone string, now time.Time) ([]*verificationdomain.Code, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*verificationdomain.Code
	for _, c := range r.s.codes {
		if c.PhoneNumber == phone && c.Active(now) {
			c := c
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *memCodeRepo) MarkConsumed(ctx context.Context, id string, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.codes[id]
	if !ok || c.ConsumedAt != nil {
		return false, nil
	}
	c.ConsumedAt = &at
	r.s.codes[id] = c
	return true, nil
}

type memIdentityRepo struct{ s *memState }

func (r *memIdentityRepo) GetByID(ctx context.Context, id string) (*identitydomain.Identity, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if i, ok := r.s.identities[id]; ok {
		return &i, nil
	}
	return nil, nil
}

func (r *memIdentityRepo) GetByPhone(ctx context.Context, phone string) (*identitydomain.Identity, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, i := range r.s.identities {
		if i.PhoneNumber == phone {
			return &i, nil
		}
	}
	return nil, nil
}

func (r *memIdentityRepo) GetByPhoneForUpdate(ctx context.Context, phone string) (*identitydomain.Identity, error) {
	return r.GetByPhone(ctx, phone)
}

func (r *memIdentityRepo) Create(ctx context.Context, i *identitydomain.Identity) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.identities {
		if existing.PhoneNumber == i.PhoneNumber {
			return &pgconn.PgError{Code: "23505", ConstraintName: "identities_phone_number_key"}
		}
		if i.NationalID != "" && existing.NationalID == i.NationalID {
			return &pgconn.PgError{Code: "23505", ConstraintName: "identities_national_id_key"}
		}
	}
	r.s.identities[i.ID] = *i
	return nil
}

func (r *memIdentityRepo) MarkVerified(ctx context.Context, id, userID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if i, ok := r.s.identities[id]; ok {
		i.Verified = true
		if i.UserID == "" {
			i.UserID = userID
		}
		r.s.identities[id] = i
	}
	return nil
}

func (r *memIdentityRepo) Promote(ctx context.Context, id string, role identitydomain.Role) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if i, ok := r.s.identities[id]; ok {
		i.Role = role
		r.s.identities[id] = i
	}
	return nil
}

type memUserRepo struct{ s *memState }

func (r *memUserRepo) GetByID(ctx context.Context, id string) (*userdomain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if u, ok := r.s.users[id]; ok {
		return &u, nil
	}
	return nil, nil
}

func (r *memUserRepo) GetByUsername(ctx context.Context, username string) (*userdomain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Username == username {
			return &u, nil
		}
	}
	return nil, nil
}

func (r *memUserRepo) Create(ctx context.Context, u *userdomain.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.users[u.ID] = *u
	return nil
}

// memTxRunner snapshots the state and restores it when fn fails.
type memTxRunner struct{ s *memState }

func (t *memTxRunner) RunInTx(ctx context.Context, fn func(Stores) error) error {
	t.s.mu.Lock()
	codes := make(map[string]verificationdomain.Code, len(t.s.codes))
	for k, v := range t.s.codes {
		codes[k] = v
	}
	identities := make(map[string]identitydomain.Identity, len(t.s.identities))
	for k, v := range t.s.identities {
		identities[k] = v
	}
	users := make(map[string]userdomain.User, len(t.s.users))
	for k, v := range t.s.users {
		users[k] = v
	}
	t.s.mu.Unlock()
	if err := fn(t.s.stores()); err != nil {
		t.s.mu.Lock()
		t.s.codes, t.s.identities, t.s.users = codes, identities, users
		t.s.mu.Unlock()
		return err
	}
	return nil
}

type captureSender struct {
	mu    sync.Mutex
	codes map[string][]string
	err   error
}

func (s *captureSender) SendCode(ctx context.Context, phone, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.codes == nil {
		s.codes = make(map[string][]string)
	}
	s.codes[phone] = append(s.codes[phone], code)
	return s.err
}

func (s *captureSender) last(phone string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.codes[phone]
	if len(c) == 0 {
		return ""
	}
	return c[len(c)-1]
}

type fixedLimiter struct {
	allowed bool
	err     error
}

func (l fixedLimiter) Allow(context.Context, string) (bool, error) { return l.allowed, l.err }

const (
	testPhone      = "09121234567"
	testNationalID = "1234567890"
	adminPhone     = "09000000000"
	adminNID       = "0000000000"
)

type harness struct {
	svc     *VerificationService
	state   *memState
	sender  *captureSender
	tokens  *security.TokenProvider
	metrics *metrics.Metrics
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	tokens, err := security.NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	admin, err := NewAdminCredentials(adminPhone, adminNID, security.NewHasher(4))
	if err != nil {
		t.Fatalf("NewAdminCredentials: %v", err)
	}
	state := newMemState()
	sender, _ := opts.Sender.(*captureSender)
	if sender == nil {
		sender = &captureSender{}
		opts.Sender = sender
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New(prometheus.NewRegistry())
	}
	svc := NewVerificationService(state.stores(), &memTxRunner{state}, tokens, admin, opts)
	return &harness{svc: svc, state: state, sender: sender, tokens: tokens, metrics: opts.Metrics}
}

func TestRequestCode_CreatesIdentityAndStoresHashOnly(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()

	res, err := h.svc.RequestCode(ctx, "+989121234567", testNationalID)
	if err != nil {
		t.Fatalf("RequestCode: %v", err)
	}
	if res.PhoneNumber != testPhone {
		t.Errorf("phone = %q, want %q", res.PhoneNumber, testPhone)
	}
	if res.DebugCode != "" {
		t.Errorf("debug code must not be returned outside dev mode, got %q", res.DebugCode)
	}
	sent := h.sender.last(testPhone)
	if len(sent) != verification.CodeDigits {
		t.Fatalf("sent code = %q, want %d digits", sent, verification.CodeDigits)
	}
	if len(h.state.codes) != 1 {
		t.Fatalf("stored codes = %d, want 1", len(h.state.codes))
	}
	for _, c := range h.state.codes {
		if c.CodeHash == sent {
			t.Error("plaintext code stored")
		}
		if !verification.CodeMatches(sent, c.CodeHash) {
			t.Error("stored hash does not match sent code")
		}
		if got := c.ExpiresAt.Sub(c.CreatedAt); got != verification.CodeTTL {
			t.Errorf("ttl = %v, want %v", got, verification.CodeTTL)
		}
	}
	ident, _ := h.state.stores().Identities.GetByPhone(ctx, testPhone)
	if ident == nil || ident.NationalID != testNationalID || ident.Verified || ident.Role != identitydomain.RoleUnion {
		t.Errorf("identity = %+v", ident)
	}
	if got := testutil.ToFloat64(h.metrics.CodesIssued); got != 1 {
		t.Errorf("codes issued = %v, want 1", got)
	}
}

func TestRequestCode_Validation(t *testing.T) {
	h := newHarness(t, Options{})
	testCases := []struct {
		name       string
		phone, nid string
		wantErr    error
	}{
		{"short phone", "0912", testNationalID, identitydomain.ErrInvalidPhone},
		{"landline", "02112345678", testNationalID, identitydomain.ErrInvalidPhone},
		{"short national id", testPhone, "123", identitydomain.ErrInvalidNationalID},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := h.svc.RequestCode(context.Background(), tc.phone, tc.nid); !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
		})
	}
	if len(h.state.codes) != 0 {
		t.Errorf("codes stored for invalid input: %d", len(h.state.codes))
	}
}

func TestRequestCode_NationalIDConflict(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()
	if _, err := h.svc.RequestCode(ctx, testPhone, testNationalID); err != nil {
		t.Fatalf("first RequestCode: %v", err)
	}
	if _, err := h.svc.RequestCode(ctx, "09351234567", testNationalID); !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
}

func TestRequestCode_ExistingIdentityKeepsNationalID(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()
	if _, err := h.svc.RequestCode(ctx, testPhone, testNationalID); err != nil {
		t.Fatal(err)
	}
	if _, err := h.svc.RequestCode(ctx, testPhone, "9999999999"); err != nil {
		t.Fatalf("second RequestCode: %v", err)
	}
	ident, _ := h.state.stores().Identities.GetByPhone(ctx, testPhone)
	if ident.NationalID != testNationalID {
		t.Errorf("national id = %q, want %q", ident.NationalID, testNationalID)
	}
}

func TestRequestCode_RateLimited(t *testing.T) {
	h := newHarness(t, Options{Limiter: fixedLimiter{allowed: false}})
	if _, err := h.svc.RequestCode(context.Background(), testPhone, testNationalID); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
	if got := testutil.ToFloat64(h.metrics.RateLimited); got != 1 {
		t.Errorf("rate limited = %v, want 1", got)
	}
}

func TestRequestCode_LimiterErrorFailsOpen(t *testing.T) {
	h := newHarness(t, Options{Limiter: fixedLimiter{allowed: true, err: errors.New("redis down")}})
	if _, err := h.svc.RequestCode(context.Background(), testPhone, testNationalID); err != nil {
		t.Fatalf("RequestCode: %v", err)
	}
}

func TestRequestCode_DeliveryFailureNotSurfaced(t *testing.T) {
	h := newHarness(t, Options{Sender: &captureSender{err: errors.New("provider 500")}})
	if _, err := h.svc.RequestCode(context.Background(), testPhone, testNationalID); err != nil {
		t.Fatalf("RequestCode: %v", err)
	}
	if got := testutil.ToFloat64(h.metrics.SMSDeliveryFailed); got != 1 {
		t.Errorf("delivery failures = %v, want 1", got)
	}
	if len(h.state.codes) != 1 {
		t.Errorf("code must still be stored, got %d", len(h.state.codes))
	}
}

func TestRequestCode_DevModeEchoesCode(t *testing.T) {
	store := devcode.NewMemoryStore()
	h := newHarness(t, Options{ReturnCode: true, DevCodes: store})
	ctx := context.Background()
	res, err := h.svc.RequestCode(ctx, testPhone, testNationalID)
	if err != nil {
		t.Fatal(err)
	}
	if res.DebugCode == "" || res.DebugCode != h.sender.last(testPhone) {
		t.Errorf("debug code = %q, sent %q", res.DebugCode, h.sender.last(testPhone))
	}
	got, ok := h.svc.DevCode(ctx, testPhone)
	if !ok || got != res.DebugCode {
		t.Errorf("DevCode = %q, %v", got, ok)
	}
}

func TestDevCode_DisabledOutsideDevMode(t *testing.T) {
	h := newHarness(t, Options{DevCodes: devcode.NewMemoryStore()})
	ctx := context.Background()
	if _, err := h.svc.RequestCode(ctx, testPhone, testNationalID); err != nil {
		t.Fatal(err)
	}
	if _, ok := h.svc.DevCode(ctx, testPhone); ok {
		t.Error("DevCode must be unavailable when codes are not echoed")
	}
}

func TestVerifyCode_Success(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()
	if _, err := h.svc.RequestCode(ctx, testPhone, testNationalID); err != nil {
		t.Fatal(err)
	}
	res, err := h.svc.VerifyCode(ctx, testPhone, h.sender.last(testPhone))
	if err != nil {
		t.Fatalf("VerifyCode: %v", err)
	}
	if !res.Identity.Verified || res.UserID == "" || res.Identity.UserID != res.UserID {
		t.Errorf("identity = %+v, user = %q", res.Identity, res.UserID)
	}
	stored, _ := h.state.stores().Identities.GetByPhone(ctx, testPhone)
	if !stored.Verified || stored.UserID != res.UserID {
		t.Errorf("stored identity = %+v", stored)
	}
	user, _ := h.state.stores().Users.GetByID(ctx, res.UserID)
	if user == nil || user.Username != testPhone {
		t.Errorf("user = %+v, want username %q", user, testPhone)
	}
	claims, err := h.tokens.ValidateAccess(res.Tokens.Access)
	if err != nil {
		t.Fatalf("ValidateAccess: %v", err)
	}
	if p := claims.Principal(); p.UserID != res.UserID || p.IdentityID != stored.ID || p.Role != "union" {
		t.Errorf("principal = %+v", p)
	}
}

func TestVerifyCode_TwoOutstandingCodesBothValid(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()
	if _, err := h.svc.RequestCode(ctx, testPhone, testNationalID); err != nil {
		t.Fatal(err)
	}
	first := h.sender.last(testPhone)
	h.svc.now = func() time.Time { return time.Now().UTC().Add(time.Second) }
	if _, err := h.svc.RequestCode(ctx, testPhone, testNationalID); err != nil {
		t.Fatal(err)
	}
	second := h.sender.last(testPhone)
	if first == second {
		t.Skip("generated identical codes")
	}

	first1, err := h.svc.VerifyCode(ctx, testPhone, first)
	if err != nil {
		t.Fatalf("VerifyCode(first): %v", err)
	}
	second1, err := h.svc.VerifyCode(ctx, testPhone, second)
	if err != nil {
		t.Fatalf("VerifyCode(second): %v", err)
	}
	if first1.UserID != second1.UserID {
		t.Errorf("principal changed between verifications: %q vs %q", first1.UserID, second1.UserID)
	}
	if len(h.state.users) != 1 {
		t.Errorf("users = %d, want 1", len(h.state.users))
	}
}

func TestVerifyCode_Failures(t *testing.T) {
	ctx := context.Background()

	t.Run("wrong code", func(t *testing.T) {
		h := newHarness(t, Options{})
		if _, err := h.svc.RequestCode(ctx, testPhone, testNationalID); err != nil {
			t.Fatal(err)
		}
		wrong := "000000"
		if h.sender.last(testPhone) == wrong {
			wrong = "111111"
		}
		if _, err := h.svc.VerifyCode(ctx, testPhone, wrong); !errors.Is(err, ErrCodeInvalidOrExpired) {
			t.Fatalf("err = %v, want ErrCodeInvalidOrExpired", err)
		}
	})

	t.Run("never requested", func(t *testing.T) {
		h := newHarness(t, Options{})
		if _, err := h.svc.VerifyCode(ctx, testPhone, "123456"); !errors.Is(err, ErrCodeInvalidOrExpired) {
			t.Fatalf("err = %v, want ErrCodeInvalidOrExpired", err)
		}
		if len(h.state.identities) != 0 || len(h.state.users) != 0 {
			t.Error("failed verification must not create records")
		}
	})

	t.Run("expired", func(t *testing.T) {
		h := newHarness(t, Options{})
		if _, err := h.svc.RequestCode(ctx, testPhone, testNationalID); err != nil {
			t.Fatal(err)
		}
		h.svc.now = func() time.Time { return time.Now().UTC().Add(verification.CodeTTL + time.Second) }
		if _, err := h.svc.VerifyCode(ctx, testPhone, h.sender.last(testPhone)); !errors.Is(err, ErrCodeInvalidOrExpired) {
			t.Fatalf("err = %v, want ErrCodeInvalidOrExpired", err)
		}
	})

	t.Run("replayed", func(t *testing.T) {
		h := newHarness(t, Options{})
		if _, err := h.svc.RequestCode(ctx, testPhone, testNationalID); err != nil {
			t.Fatal(err)
		}
		code := h.sender.last(testPhone)
		if _, err := h.svc.VerifyCode(ctx, testPhone, code); err != nil {
			t.Fatalf("first VerifyCode: %v", err)
		}
		if _, err := h.svc.VerifyCode(ctx, testPhone, code); !errors.Is(err, ErrCodeInvalidOrExpired) {
			t.Fatalf("replay err = %v, want ErrCodeInvalidOrExpired", err)
		}
	})

	t.Run("malformed code", func(t *testing.T) {
		h := newHarness(t, Options{})
		if _, err := h.svc.VerifyCode(ctx, testPhone, "12"); !errors.Is(err, ErrCodeInvalidOrExpired) {
			t.Fatalf("err = %v, want ErrCodeInvalidOrExpired", err)
		}
		if got := testutil.ToFloat64(h.metrics.Verifications.WithLabelValues("invalid")); got != 1 {
			t.Errorf("invalid verifications = %v, want 1", got)
		}
	})
}

func TestAdminLogin(t *testing.T) {
	ctx := context.Background()

	t.Run("creates admin identity", func(t *testing.T) {
		h := newHarness(t, Options{})
		res, err := h.svc.AdminLogin(ctx, adminPhone, adminNID)
		if err != nil {
			t.Fatalf("AdminLogin: %v", err)
		}
		if res.Identity.Role != identitydomain.RoleAdmin || !res.Identity.Verified {
			t.Errorf("identity = %+v", res.Identity)
		}
		claims, err := h.tokens.ValidateAccess(res.Tokens.Access)
		if err != nil {
			t.Fatal(err)
		}
		if claims.Role != "admin" {
			t.Errorf("role claim = %q, want admin", claims.Role)
		}
		again, err := h.svc.AdminLogin(ctx, adminPhone, adminNID)
		if err != nil {
			t.Fatal(err)
		}
		if again.UserID != res.UserID || len(h.state.identities) != 1 {
			t.Errorf("second login created new records")
		}
	})

	t.Run("promotes existing identity", func(t *testing.T) {
		h := newHarness(t, Options{})
		if _, err := h.svc.RequestCode(ctx, adminPhone, "1111111111"); err != nil {
			t.Fatal(err)
		}
		res, err := h.svc.AdminLogin(ctx, adminPhone, adminNID)
		if err != nil {
			t.Fatal(err)
		}
		stored, _ := h.state.stores().Identities.GetByID(ctx, res.Identity.ID)
		if stored.Role != identitydomain.RoleAdmin {
			t.Errorf("role = %q, want admin", stored.Role)
		}
	})

	testCases := []struct {
		name       string
		phone, nid string
	}{
		{"wrong national id", adminPhone, "1111111111"},
		{"wrong phone", testPhone, adminNID},
		{"malformed phone", "abc", adminNID},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, Options{})
			if _, err := h.svc.AdminLogin(ctx, tc.phone, tc.nid); !errors.Is(err, ErrInvalidCredentials) {
				t.Fatalf("err = %v, want ErrInvalidCredentials", err)
			}
		})
	}
}

func TestRefresh(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()
	if _, err := h.svc.RequestCode(ctx, testPhone, testNationalID); err != nil {
		t.Fatal(err)
	}
	verified, err := h.svc.VerifyCode(ctx, testPhone, h.sender.last(testPhone))
	if err != nil {
		t.Fatal(err)
	}

	res, err := h.svc.Refresh(ctx, verified.Tokens.Refresh)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if res.UserID != verified.UserID {
		t.Errorf("user = %q, want %q", res.UserID, verified.UserID)
	}
	if _, err := h.tokens.ValidateAccess(res.Tokens.Access); err != nil {
		t.Errorf("refreshed access token invalid: %v", err)
	}

	if _, err := h.svc.Refresh(ctx, verified.Tokens.Access); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Errorf("access token as refresh: err = %v, want ErrInvalidRefreshToken", err)
	}
	if _, err := h.svc.Refresh(ctx, "garbage"); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Errorf("garbage: err = %v, want ErrInvalidRefreshToken", err)
	}
}
