// server runs the union registry HTTP API and the gRPC health endpoint.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	approvalhandler "union-registry/backend/internal/approval/handler"
	approvalservice "union-registry/backend/internal/approval/service"
	"union-registry/backend/internal/auditlog"
	activityhandler "union-registry/backend/internal/auditlog/handler"
	activityrepo "union-registry/backend/internal/auditlog/repository"
	"union-registry/backend/internal/blob"
	"union-registry/backend/internal/config"
	"union-registry/backend/internal/db"
	disclosurehandler "union-registry/backend/internal/disclosure/handler"
	disclosureservice "union-registry/backend/internal/disclosure/service"
	filinghandler "union-registry/backend/internal/filing/handler"
	filingrepo "union-registry/backend/internal/filing/repository"
	filingservice "union-registry/backend/internal/filing/service"
	"union-registry/backend/internal/health"
	healthhandler "union-registry/backend/internal/health/handler"
	identityhandler "union-registry/backend/internal/identity/handler"
	identityrepo "union-registry/backend/internal/identity/repository"
	identityservice "union-registry/backend/internal/identity/service"
	"union-registry/backend/internal/platform/logger"
	"union-registry/backend/internal/platform/metrics"
	"union-registry/backend/internal/platform/ratelimit"
	"union-registry/backend/internal/policy/engine"
	"union-registry/backend/internal/security"
	"union-registry/backend/internal/server"
	"union-registry/backend/internal/server/middleware"
	"union-registry/backend/internal/telemetry"
	telemetryotel "union-registry/backend/internal/telemetry/otel"
	"union-registry/backend/internal/telemetry/producer"
	unionhandler "union-registry/backend/internal/union/handler"
	unionrepo "union-registry/backend/internal/union/repository"
	unionservice "union-registry/backend/internal/union/service"
	userrepo "union-registry/backend/internal/user/repository"
	"union-registry/backend/internal/verification/devcode"
	verificationrepo "union-registry/backend/internal/verification/repository"
	"union-registry/backend/internal/verification/sms"
)

const serviceName = "union-registry"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.Env, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}
	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	defer conn.Close()

	providers, err := telemetryotel.NewProviders(ctx, cfg.OTLPEndpoint, serviceName, cfg.OTLPInsecure)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	providers.SetGlobal()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			log.Warn("otel shutdown", zap.Error(err))
		}
	}()

	emitters := telemetry.MultiEmitter{telemetryotel.NewEventEmitter(providers.LoggerProvider)}
	if kp := producer.NewKafkaProducer(cfg.EventsKafkaBrokersList(), cfg.EventsKafkaTopic); kp != nil {
		emitters = append(emitters, kp)
		defer func() { _ = kp.Close() }()
		log.Info("publishing domain events to kafka", zap.String("topic", cfg.EventsKafkaTopic))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	privateKey, publicKey, err := security.LoadSigningKeys(cfg.JWTPrivateKey, cfg.JWTPublicKey, !cfg.IsProduction())
	if err != nil {
		return fmt.Errorf("jwt keys: %w", err)
	}
	tokens := security.NewTokenProvider(privateKey, publicKey, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL(), cfg.RefreshTTL())
	admin, err := identityservice.NewAdminCredentials(cfg.AdminPhone, cfg.AdminNationalID, security.NewHasher(cfg.BcryptCost))
	if err != nil {
		return err
	}

	policy, err := engine.New(ctx, cfg.AuditPolicyEngine, log)
	if err != nil {
		return fmt.Errorf("audit policy: %w", err)
	}

	blobs, err := newBlobStore(ctx, cfg)
	if err != nil {
		return err
	}

	var limiter ratelimit.Limiter = ratelimit.NoopLimiter{}
	if cfg.RedisURL != "" {
		rdb, err := ratelimit.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer rdb.Close()
		limiter = ratelimit.NewRedisLimiter(rdb, "verification:", cfg.OTPRateLimitPerWindow, cfg.RateLimitWindow())
	}

	var sender sms.Sender = sms.LogSender{Logger: log}
	if cfg.KavenegarAPIKey != "" {
		sender = sms.NewKavenegarClient(cfg.KavenegarAPIKey, cfg.KavenegarBaseURL, cfg.KavenegarSender)
	}

	activityRepo := activityrepo.NewPostgresRepository(conn)
	activity := auditlog.NewLogger(activityRepo, middleware.GetClientIP, log)

	identityStores := func(d db.DBTX) identityservice.Stores {
		return identityservice.Stores{
			Codes:      verificationrepo.NewPostgresRepository(d),
			Identities: identityrepo.NewPostgresRepository(d),
			Users:      userrepo.NewPostgresRepository(d),
		}
	}
	identities := identityrepo.NewPostgresRepository(conn)
	verification := identityservice.NewVerificationService(identityStores(conn), db.NewTxRunner(conn, identityStores), tokens, admin,
		identityservice.Options{
			Sender:     sender,
			DevCodes:   devcode.NewMemoryStore(),
			Limiter:    limiter,
			Metrics:    m,
			Events:     emitters,
			Logger:     log.Named("verification"),
			ReturnCode: cfg.OTPReturnToClient,
		})

	unions := unionrepo.NewPostgresRepository(conn)
	registry := unionservice.NewRegistryService(unions, activity, m, emitters, log.Named("union"))
	disclosures := disclosureservice.NewService(unions, policy, activity, m, emitters, log.Named("disclosure"))

	filingStores := func(d db.DBTX) filingservice.Stores {
		return filingservice.Stores{
			Requests: filingrepo.NewPostgresRepository(d),
			Unions:   unionrepo.NewPostgresRepository(d),
		}
	}
	filing := filingservice.NewFilingService(filingrepo.NewPostgresRepository(conn), unions, db.NewTxRunner(conn, filingStores), blobs, disclosures,
		filingservice.Options{Activity: activity, Metrics: m, Events: emitters, Logger: log.Named("filing")})

	approvals := approvalservice.NewService(
		db.NewTxRunner(conn, func(d db.DBTX) approvalservice.UnionRepo { return unionrepo.NewPostgresRepository(d) }),
		activity, m, emitters, log.Named("approval"))

	checker := health.NewChecker(conn, policy)

	router := server.NewRouter(server.HTTPDeps{
		Logger:         log.Named("http"),
		Metrics:        m,
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Health:         healthhandler.NewHTTP(checker, log),
		Tokens:         tokens,
		Identities:     identities,
		Verification:   identityhandler.NewHandler(verification, log),
		Unions:         unionhandler.NewHandler(registry, log),
		Filing:         filinghandler.NewHandler(filing, log),
		Disclosure:     disclosurehandler.NewHandler(disclosures, log),
		Approval:       approvalhandler.NewHandler(approvals, log),
		Activity:       activityhandler.NewHandler(activityRepo, log),
		CORSOrigins:    cfg.CORSOrigins(),
		DevRoutes:      cfg.OTPReturnToClient && !cfg.IsProduction(),
	})
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.GRPCAddr, err)
	}
	grpcSrv := server.NewGRPCServer(server.GRPCDeps{Health: checker, Logger: log.Named("grpc")})

	errCh := make(chan error, 2)
	go func() {
		log.Info("gRPC health server listening", zap.String("addr", cfg.GRPCAddr))
		errCh <- grpcSrv.Serve(lis)
	}()
	go func() {
		log.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		log.Error("server failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	grpcSrv.GracefulStop()
	log.Info("stopped")
	return nil
}

func newBlobStore(ctx context.Context, cfg *config.Config) (blob.Store, error) {
	switch cfg.BlobBackend {
	case "s3":
		s, err := blob.NewS3Store(ctx, cfg.S3Bucket, cfg.S3Region, cfg.S3Endpoint)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return blob.NewLocalStore(cfg.BlobLocalDir), nil
	}
}
