// seed inserts development sample unions for local testing: go run ./cmd/seed.
// Idempotent: the admin identity is found or created, and sample unions whose owner phone already
// exists are skipped.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"union-registry/backend/internal/config"
	"union-registry/backend/internal/db"
	"union-registry/backend/internal/disclosure"
	identitydomain "union-registry/backend/internal/identity/domain"
	identityrepo "union-registry/backend/internal/identity/repository"
	"union-registry/backend/internal/platform/logger"
	uniondomain "union-registry/backend/internal/union/domain"
	unionrepo "union-registry/backend/internal/union/repository"
	userdomain "union-registry/backend/internal/user/domain"
	userrepo "union-registry/backend/internal/user/repository"
)

type sample struct {
	phone      string
	nationalID string
	union      uniondomain.Union
	snapshot   *disclosure.Snapshot
}

type stores struct {
	identities *identityrepo.PostgresRepository
	users      *userrepo.PostgresRepository
	unions     *unionrepo.PostgresRepository
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log := logger.Must(cfg.Env, cfg.LogLevel, cfg.LogFormat).Named("seed")
	defer func() { _ = log.Sync() }()

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}
	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("db", zap.Error(err))
	}
	defer conn.Close()

	ctx := context.Background()
	tx := db.NewTxRunner(conn, func(d db.DBTX) stores {
		return stores{
			identities: identityrepo.NewPostgresRepository(d),
			users:      userrepo.NewPostgresRepository(d),
			unions:     unionrepo.NewPostgresRepository(d),
		}
	})

	if err := tx.RunInTx(ctx, func(st stores) error { return seedAdmin(ctx, st, cfg.AdminPhone, cfg.AdminNationalID) }); err != nil {
		log.Fatal("seed admin", zap.Error(err))
	}
	log.Info("admin identity ready", zap.String("phone", cfg.AdminPhone))

	for _, s := range samples() {
		existing, err := identityrepo.NewPostgresRepository(conn).GetByPhone(ctx, s.phone)
		if err != nil {
			log.Fatal("seed check", zap.String("phone", s.phone), zap.Error(err))
		}
		if existing != nil {
			log.Info("already seeded, skipping", zap.String("phone", s.phone))
			continue
		}
		if err := tx.RunInTx(ctx, func(st stores) error { return insert(ctx, st, s) }); err != nil {
			log.Fatal("seed", zap.String("phone", s.phone), zap.Error(err))
		}
		log.Info("seeded union",
			zap.String("name", s.union.Name),
			zap.String("phone", s.phone),
			zap.String("status", string(s.union.RegistrationStatus)))
	}
}

// seedAdmin creates the bootstrap admin identity and principal unless the phone is already taken,
// in which case the existing identity is promoted to admin.
func seedAdmin(ctx context.Context, st stores, phone, nationalID string) error {
	existing, err := st.identities.GetByPhoneForUpdate(ctx, phone)
	if err != nil {
		return err
	}
	if existing != nil {
		if existing.Role == identitydomain.RoleAdmin {
			return nil
		}
		return st.identities.Promote(ctx, existing.ID, identitydomain.RoleAdmin)
	}
	now := time.Now().UTC()
	user := &userdomain.User{ID: uuid.NewString(), Username: phone, CreatedAt: now}
	if err := st.users.Create(ctx, user); err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}
	return st.identities.Create(ctx, &identitydomain.Identity{
		ID:          uuid.NewString(),
		PhoneNumber: phone,
		NationalID:  nationalID,
		Verified:    true,
		Role:        identitydomain.RoleAdmin,
		UserID:      user.ID,
		CreatedAt:   now,
	})
}

func insert(ctx context.Context, st stores, s sample) error {
	now := time.Now().UTC()
	user := &userdomain.User{ID: uuid.NewString(), Username: s.phone, CreatedAt: now}
	if err := st.users.Create(ctx, user); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	ident := &identitydomain.Identity{
		ID:          uuid.NewString(),
		PhoneNumber: s.phone,
		NationalID:  s.nationalID,
		Verified:    true,
		Role:        identitydomain.RoleUnion,
		UserID:      user.ID,
		CreatedAt:   now,
	}
	if err := st.identities.Create(ctx, ident); err != nil {
		return fmt.Errorf("create identity: %w", err)
	}

	u := s.union
	u.ID = uuid.NewString()
	u.OwnerIdentityID = ident.ID
	u.SubmittedAt = now
	u.CreatedAt = now
	u.FinancialData = s.snapshot
	u.AuditStatus = disclosure.AuditStatusCompleted
	if s.snapshot != nil {
		u.AuditStatus = disclosure.Decision(s.snapshot)
	}
	if u.RegistrationStatus == uniondomain.StatusApproved {
		u.ApprovedAt = &now
	}
	if err := st.unions.Create(ctx, &u); err != nil {
		return fmt.Errorf("create union: %w", err)
	}
	return nil
}

func samples() []sample {
	revenue := decimal.NewFromInt(7_200_000_000)
	assets := decimal.NewFromInt(1_500_000_000)
	members := int64(320)
	support := false
	return []sample{
		{
			phone:      "09120000001",
			nationalID: "0012345678",
			union: uniondomain.Union{
				Name:               "Tehran Bakers Union",
				HeadOfUnion:        "Dev Head",
				Region:             "Tehran",
				EconomicCode:       "411111111111",
				Code:               "U-1001",
				FiscalYear:         "1403",
				RegistrationStatus: uniondomain.StatusApproved,
			},
			snapshot: &disclosure.Snapshot{
				AnnualRevenue:     &revenue,
				TotalAssets:       &assets,
				MemberCount:       &members,
				GovernmentSupport: &support,
			},
		},
		{
			phone:      "09120000002",
			nationalID: "0023456789",
			union: uniondomain.Union{
				Name:               "Isfahan Tailors Union",
				HeadOfUnion:        "Dev Member",
				Region:             "Isfahan",
				EconomicCode:       "422222222222",
				Code:               "U-1002",
				FiscalYear:         "1403",
				RegistrationStatus: uniondomain.StatusPending,
			},
		},
	}
}
