package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"union-registry/backend/internal/db"
	identitydomain "union-registry/backend/internal/identity/domain"
	"union-registry/backend/internal/platform/metrics"
	"union-registry/backend/internal/platform/ratelimit"
	"union-registry/backend/internal/security"
	"union-registry/backend/internal/telemetry"
	userdomain "union-registry/backend/internal/user/domain"
	"union-registry/backend/internal/verification"
	"union-registry/backend/internal/verification/devcode"
	verificationdomain "union-registry/backend/internal/verification/domain"
	"union-registry/backend/internal/verification/sms"
)

// Sentinel errors for the verification service; the HTTP handler maps them to status codes.
var (
	ErrCodeInvalidOrExpired = errors.New("verification code is invalid or expired")
	ErrConflict             = errors.New("national id is already registered to another phone number")
	ErrRateLimited          = errors.New("too many verification code requests; try again later")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrInvalidRefreshToken  = errors.New("invalid or expired refresh token")
)

const (
	eventSource = "identity"

	constraintIdentityPhone      = "identities_phone_number_key"
	constraintIdentityNationalID = "identities_national_id_key"
)

// CodeRepo is the minimal verification code repository needed by the service.
type CodeRepo interface {
	Create(ctx context.Context, c *verificationdomain.Code) error
	ListActiveForUpdate(ctx context.Context, phone string, now time.Time) ([]*verificationdomain.Code, error)
	MarkConsumed(ctx context.Context, id string, at time.Time) (bool, error)
}

// IdentityRepo is the minimal identity repository needed by the service.
type IdentityRepo interface {
	GetByID(ctx context.Context, id string) (*identitydomain.Identity, error)
	GetByPhone(ctx context.Context, phone string) (*identitydomain.Identity, error)
	GetByPhoneForUpdate(ctx context.Context, phone string) (*identitydomain.Identity, error)
	Create(ctx context.Context, i *identitydomain.Identity) error
	MarkVerified(ctx context.Context, id, userID string) error
	Promote(ctx context.Context, id string, role identitydomain.Role) error
}

// UserRepo is the minimal user repository needed by the service.
type UserRepo interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
	GetByUsername(ctx context.Context, username string) (*userdomain.User, error)
	Create(ctx context.Context, u *userdomain.User) error
}

// Stores bundles the repositories the service touches. The same bundle is rebuilt per transaction.
type Stores struct {
	Codes      CodeRepo
	Identities IdentityRepo
	Users      UserRepo
}

// TxRunner runs fn with Stores bound to one transaction. *db.TxRunner[Stores] satisfies it.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(Stores) error) error
}

// AdminCredentials are the bootstrap admin's phone and a matcher for its national ID.
type AdminCredentials struct {
	Phone      string
	NationalID *security.SecretMatcher
}

// NewAdminCredentials normalizes phone and hashes nationalID once.
func NewAdminCredentials(phone, nationalID string, hasher *security.Hasher) (*AdminCredentials, error) {
	p, err := identitydomain.NormalizePhone(phone)
	if err != nil {
		return nil, fmt.Errorf("admin phone: %w", err)
	}
	m, err := security.NewSecretMatcher(hasher, strings.TrimSpace(nationalID))
	if err != nil {
		return nil, fmt.Errorf("admin national id: %w", err)
	}
	return &AdminCredentials{Phone: p, NationalID: m}, nil
}

// Options carries optional collaborators. Zero values are safe: codes are only logged,
// no rate limit applies, and no events are published.
type Options struct {
	Sender   sms.Sender
	DevCodes devcode.Store
	Limiter  ratelimit.Limiter
	Metrics  *metrics.Metrics
	Events   telemetry.EventEmitter
	Logger   *zap.Logger
	// ReturnCode echoes issued codes to the caller and records them in DevCodes.
	ReturnCode bool
}

// CodeResult is the outcome of RequestCode. DebugCode is set only when codes are echoed.
type CodeResult struct {
	PhoneNumber string
	ExpiresAt   time.Time
	DebugCode   string
}

// AuthResult is the outcome of VerifyCode, AdminLogin and Refresh.
type AuthResult struct {
	Identity *identitydomain.Identity
	UserID   string
	Tokens   *security.TokenPair
}

// VerificationService implements SMS code issuance and verification, admin login, and token refresh.
type VerificationService struct {
	stores     Stores
	tx         TxRunner
	tokens     *security.TokenProvider
	admin      *AdminCredentials
	sender     sms.Sender
	devCodes   devcode.Store
	limiter    ratelimit.Limiter
	metrics    *metrics.Metrics
	events     telemetry.EventEmitter
	logger     *zap.Logger
	returnCode bool
	now        func() time.Time
}

// NewVerificationService returns a VerificationService. stores is used outside transactions;
// tx supplies stores bound to a transaction for VerifyCode and AdminLogin.
func NewVerificationService(stores Stores, tx TxRunner, tokens *security.TokenProvider, admin *AdminCredentials, opts Options) *VerificationService {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	sender := opts.Sender
	if sender == nil {
		sender = sms.LogSender{Logger: logger}
	}
	limiter := opts.Limiter
	if limiter == nil {
		limiter = ratelimit.NoopLimiter{}
	}
	return &VerificationService{
		stores:     stores,
		tx:         tx,
		tokens:     tokens,
		admin:      admin,
		sender:     sender,
		devCodes:   opts.DevCodes,
		limiter:    limiter,
		metrics:    opts.Metrics,
		events:     opts.Events,
		logger:     logger,
		returnCode: opts.ReturnCode,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// RequestCode issues a new verification code for phone, creating the identity on first contact.
// Older outstanding codes stay valid. SMS delivery failures are logged and counted, not returned.
func (s *VerificationService) RequestCode(ctx context.Context, phone, nationalID string) (*CodeResult, error) {
	phone, err := identitydomain.NormalizePhone(phone)
	if err != nil {
		return nil, err
	}
	nationalID, err = identitydomain.NormalizeNationalID(nationalID)
	if err != nil {
		return nil, err
	}

	allowed, err := s.limiter.Allow(ctx, phone)
	if err != nil {
		s.logger.Warn("rate limiter unavailable; allowing request", zap.Error(err))
	}
	if !allowed {
		s.metrics.IncRateLimited()
		return nil, ErrRateLimited
	}

	if _, err := s.findOrCreateIdentity(ctx, s.stores.Identities, phone, nationalID); err != nil {
		return nil, err
	}

	code, err := verification.GenerateCode()
	if err != nil {
		return nil, fmt.Errorf("generate code: %w", err)
	}
	now := s.now()
	rec := &verificationdomain.Code{
		ID:          uuid.New().String(),
		PhoneNumber: phone,
		CodeHash:    verification.HashCode(code),
		CreatedAt:   now,
		ExpiresAt:   now.Add(verification.CodeTTL),
	}
	if err := s.stores.Codes.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("store verification code: %w", err)
	}
	s.metrics.IncCodesIssued()

	if err := s.sender.SendCode(ctx, phone, code); err != nil {
		s.metrics.IncSMSDeliveryFailed()
		s.logger.Error("sms delivery failed", zap.String("phone", sms.MaskPhone(phone)), zap.Error(err))
	}

	res := &CodeResult{PhoneNumber: phone, ExpiresAt: rec.ExpiresAt}
	if s.returnCode {
		res.DebugCode = code
		if s.devCodes != nil {
			s.devCodes.Put(ctx, phone, code, rec.ExpiresAt)
		}
	}
	telemetry.EmitAsync(s.events, s.logger,
		telemetry.NewEvent(telemetry.EventVerificationIssued, eventSource).With("phone", sms.MaskPhone(phone)))
	return res, nil
}

// findOrCreateIdentity returns the identity for phone, creating an unverified union identity when absent.
// nationalID is stored only on creation.
func (s *VerificationService) findOrCreateIdentity(ctx context.Context, repo IdentityRepo, phone, nationalID string) (*identitydomain.Identity, error) {
	ident, err := repo.GetByPhone(ctx, phone)
	if err != nil {
		return nil, err
	}
	if ident != nil {
		return ident, nil
	}
	ident = &identitydomain.Identity{
		ID:          uuid.New().String(),
		PhoneNumber: phone,
		NationalID:  nationalID,
		Role:        identitydomain.RoleUnion,
		CreatedAt:   s.now(),
	}
	if err := repo.Create(ctx, ident); err != nil {
		switch {
		case db.IsUniqueViolation(err, constraintIdentityNationalID):
			return nil, ErrConflict
		case db.IsUniqueViolation(err, constraintIdentityPhone):
			// Concurrent first contact for the same phone; use the winner's row.
			return repo.GetByPhone(ctx, phone)
		}
		return nil, err
	}
	return ident, nil
}

// VerifyCode consumes the newest matching code for phone and returns the verified identity with a
// credential pair. Wrong, expired, consumed and never-issued codes all yield ErrCodeInvalidOrExpired.
func (s *VerificationService) VerifyCode(ctx context.Context, phone, code string) (*AuthResult, error) {
	phone, err := identitydomain.NormalizePhone(phone)
	if err != nil {
		return nil, err
	}
	code = strings.TrimSpace(code)
	if len(code) != verification.CodeDigits {
		s.metrics.ObserveVerification("invalid")
		return nil, ErrCodeInvalidOrExpired
	}

	var (
		ident  *identitydomain.Identity
		userID string
	)
	err = s.tx.RunInTx(ctx, func(st Stores) error {
		now := s.now()
		codes, err := st.Codes.ListActiveForUpdate(ctx, phone, now)
		if err != nil {
			return err
		}
		var match *verificationdomain.Code
		for _, c := range codes {
			if verification.CodeMatches(code, c.CodeHash) {
				match = c
				break
			}
		}
		if match == nil {
			return ErrCodeInvalidOrExpired
		}
		consumed, err := st.Codes.MarkConsumed(ctx, match.ID, now)
		if err != nil {
			return err
		}
		if !consumed {
			return ErrCodeInvalidOrExpired
		}

		ident, err = st.Identities.GetByPhoneForUpdate(ctx, phone)
		if err != nil {
			return err
		}
		if ident == nil {
			ident = &identitydomain.Identity{
				ID:          uuid.New().String(),
				PhoneNumber: phone,
				Role:        identitydomain.RoleUnion,
				CreatedAt:   now,
			}
			if err := st.Identities.Create(ctx, ident); err != nil {
				return err
			}
		}
		userID, err = s.linkPrincipal(ctx, st, ident, now)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrCodeInvalidOrExpired) {
			s.metrics.ObserveVerification("invalid")
		}
		return nil, err
	}
	s.metrics.ObserveVerification("verified")

	pair, err := s.issue(ident, userID)
	if err != nil {
		return nil, err
	}
	ev := telemetry.NewEvent(telemetry.EventIdentityVerified, eventSource)
	ev.ActorID = userID
	telemetry.EmitAsync(s.events, s.logger, ev)
	return &AuthResult{Identity: ident, UserID: userID, Tokens: pair}, nil
}

// linkPrincipal ensures a principal exists for ident (username = phone), marks ident verified and
// links it. Returns the principal id.
func (s *VerificationService) linkPrincipal(ctx context.Context, st Stores, ident *identitydomain.Identity, now time.Time) (string, error) {
	var user *userdomain.User
	var err error
	if ident.UserID != "" {
		user, err = st.Users.GetByID(ctx, ident.UserID)
		if err != nil {
			return "", err
		}
	}
	if user == nil {
		user, err = st.Users.GetByUsername(ctx, ident.PhoneNumber)
		if err != nil {
			return "", err
		}
	}
	if user == nil {
		user = &userdomain.User{ID: uuid.New().String(), Username: ident.PhoneNumber, CreatedAt: now}
		if err := user.Validate(); err != nil {
			return "", err
		}
		if err := st.Users.Create(ctx, user); err != nil {
			return "", err
		}
	}
	if err := st.Identities.MarkVerified(ctx, ident.ID, user.ID); err != nil {
		return "", err
	}
	ident.Verified = true
	if ident.UserID == "" {
		ident.UserID = user.ID
	}
	return ident.UserID, nil
}

// AdminLogin authenticates the bootstrap admin by phone and national ID, creating or promoting the
// admin identity as needed.
func (s *VerificationService) AdminLogin(ctx context.Context, phone, nationalID string) (*AuthResult, error) {
	if s.admin == nil {
		return nil, ErrInvalidCredentials
	}
	phone, err := identitydomain.NormalizePhone(phone)
	if err != nil || phone != s.admin.Phone {
		return nil, ErrInvalidCredentials
	}
	nationalID = strings.TrimSpace(nationalID)
	if err := s.admin.NationalID.Match(nationalID); err != nil {
		return nil, ErrInvalidCredentials
	}

	var (
		ident  *identitydomain.Identity
		userID string
	)
	err = s.tx.RunInTx(ctx, func(st Stores) error {
		now := s.now()
		var err error
		ident, err = st.Identities.GetByPhoneForUpdate(ctx, phone)
		if err != nil {
			return err
		}
		switch {
		case ident == nil:
			ident = &identitydomain.Identity{
				ID:          uuid.New().String(),
				PhoneNumber: phone,
				NationalID:  nationalID,
				Role:        identitydomain.RoleAdmin,
				CreatedAt:   now,
			}
			if err := st.Identities.Create(ctx, ident); err != nil {
				return err
			}
		case ident.Role != identitydomain.RoleAdmin:
			if err := st.Identities.Promote(ctx, ident.ID, identitydomain.RoleAdmin); err != nil {
				return err
			}
			ident.Role = identitydomain.RoleAdmin
		}
		userID, err = s.linkPrincipal(ctx, st, ident, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	pair, err := s.issue(ident, userID)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Identity: ident, UserID: userID, Tokens: pair}, nil
}

// Refresh validates a refresh token and issues a new pair carrying the identity's current role.
func (s *VerificationService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	claims, err := s.tokens.ValidateRefresh(strings.TrimSpace(refreshToken))
	if err != nil {
		return nil, ErrInvalidRefreshToken
	}
	ident, err := s.stores.Identities.GetByID(ctx, claims.IdentityID)
	if err != nil {
		return nil, err
	}
	if ident == nil || !ident.Verified || ident.UserID != claims.Subject {
		return nil, ErrInvalidRefreshToken
	}
	pair, err := s.issue(ident, ident.UserID)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Identity: ident, UserID: ident.UserID, Tokens: pair}, nil
}

// DevCode returns the last code issued to phone when codes are echoed; ok is false otherwise.
func (s *VerificationService) DevCode(ctx context.Context, phone string) (string, bool) {
	if !s.returnCode || s.devCodes == nil {
		return "", false
	}
	p, err := identitydomain.NormalizePhone(phone)
	if err != nil {
		return "", false
	}
	return s.devCodes.Get(ctx, p)
}

func (s *VerificationService) issue(ident *identitydomain.Identity, userID string) (*security.TokenPair, error) {
	pair, err := s.tokens.IssuePair(security.Principal{
		UserID:     userID,
		IdentityID: ident.ID,
		Role:       string(ident.Role),
	})
	if err != nil {
		return nil, fmt.Errorf("issue tokens: %w", err)
	}
	return pair, nil
}
