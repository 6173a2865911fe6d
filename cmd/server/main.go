// Server runs the auth HTTP API and the gRPC health endpoint.
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"helpdesk-auth/backend/internal/audit"
	auditrepo "helpdesk-auth/backend/internal/audit/repository"
	clientversionrepo "helpdesk-auth/backend/internal/clientversion/repository"
	"helpdesk-auth/backend/internal/config"
	"helpdesk-auth/backend/internal/db"
	"helpdesk-auth/backend/internal/directory"
	"helpdesk-auth/backend/internal/health"
	identitysvc "helpdesk-auth/backend/internal/identity/service"
	"helpdesk-auth/backend/internal/logging"
	settingsrepo "helpdesk-auth/backend/internal/platformsettings/repository"
	"helpdesk-auth/backend/internal/policy/engine"
	"helpdesk-auth/backend/internal/reaper"
	"helpdesk-auth/backend/internal/security"
	"helpdesk-auth/backend/internal/server"
	"helpdesk-auth/backend/internal/server/middleware"
	sessionrepo "helpdesk-auth/backend/internal/session/repository"
	sessionsvc "helpdesk-auth/backend/internal/session/service"
	"helpdesk-auth/backend/internal/telemetry"
	"helpdesk-auth/backend/internal/telemetry/otel"
	"helpdesk-auth/backend/internal/telemetry/producer"
	tokenrepo "helpdesk-auth/backend/internal/token/repository"
	tokensvc "helpdesk-auth/backend/internal/token/service"
	userrepo "helpdesk-auth/backend/internal/user/repository"
	"helpdesk-auth/backend/internal/versionpolicy"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("config", zap.Error(err))
	}
	log, err := logging.New(cfg.Env)
	if err != nil {
		zap.NewExample().Fatal("logger", zap.Error(err))
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := otel.NewProviders(ctx, otel.Options{
		Endpoint:       cfg.OTelEndpoint,
		ServiceName:    cfg.OTelServiceName,
		ServiceVersion: version,
		Insecure:       cfg.OTelInsecure,
	})
	if err != nil {
		return err
	}
	providers.SetGlobal()
	defer shutdownWithTimeout(log, "otel", providers.Shutdown)

	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	users := userrepo.NewPostgresRepository(pool)
	sessionsRepo := sessionrepo.NewPostgresRepository(pool)
	tokensRepo := tokenrepo.NewPostgresRepository(pool)
	settings := settingsrepo.NewPostgresRepository(pool)
	registry := clientversionrepo.NewPostgresRepository(pool)

	var dir directory.Directory = directory.Disabled{}
	if cfg.DirectoryEnabled() {
		dir = directory.NewLDAPClient(directory.Config{
			URL:                cfg.ADURL,
			BaseDN:             cfg.ADBaseDN,
			Domain:             cfg.ADDomain,
			BindUsername:       cfg.ADBindUsername,
			BindPassword:       cfg.ADBindPassword,
			Timeout:            cfg.DirectoryTimeout(),
			InsecureSkipVerify: cfg.ADInsecureSkipVerify,
		}, log)
		log.Info("directory enabled", zap.String("url", cfg.ADURL))
	} else {
		log.Warn("AD_URL not set; directory lookups and AD login are disabled")
	}

	var enforcer versionpolicy.Enforcer
	var policyCheck health.PolicyChecker
	if cfg.VersionPolicyRegoFile != "" {
		rego, err := engine.NewRegoEnforcerFromFile(ctx, cfg.VersionPolicyRegoFile, log)
		if err != nil {
			return err
		}
		enforcer, policyCheck = rego, rego
	}
	gate := versionpolicy.NewGate(registry, settings, versionpolicy.PolicySettings{
		EnforceEnabled:         cfg.VersionPolicyEnforceEnabled,
		RejectOutdatedEnforced: cfg.VersionPolicyRejectOutdatedEnforced,
		RejectUnknown:          cfg.VersionPolicyRejectUnknown,
	}, enforcer, log)

	provider, err := tokenProvider(cfg, log)
	if err != nil {
		return err
	}
	issuer := tokensvc.NewIssuer(tokensRepo, users, sessionsRepo, provider, log)
	sessions := sessionsvc.NewManager(sessionsRepo, log)

	kafka := producer.NewKafkaProducer(cfg.KafkaBrokersList(), cfg.AuthEventsTopic)
	defer func() { _ = kafka.Close() }()
	emitter := telemetry.Multi{kafka, otel.NewEventEmitter(providers.LoggerProvider)}
	auditLog := audit.NewLogger(auditrepo.NewPostgresRepository(pool), emitter, log)

	authService := identitysvc.NewAuthService(identitysvc.Deps{
		Resolver:  identitysvc.NewResolver(users, dir, cfg.RefreshThreshold(), log),
		Users:     users,
		Directory: dir,
		Sessions:  sessions,
		Tokens:    issuer,
		Gate:      gate,
		Hasher:    security.NewHasher(cfg.BcryptCost),
		Audit:     auditLog,
		Log:       log,
	})

	var redisPing health.Pinger
	var locker reaper.Locker
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return err
		}
		rdb := redis.NewClient(opts)
		defer func() { _ = rdb.Close() }()
		redisPing = health.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
		locker = reaper.NewRedisLocker(rdb, log)
	}
	checker := health.NewChecker(pool, policyCheck, redisPing, log)
	cleaner := reaper.New(tokensRepo, sessionsRepo, locker, log)

	router := server.NewRouter(server.RouterOptions{
		Auth:          authService,
		Cleaner:       cleaner,
		RetentionDays: cfg.TokenRetentionDays,
		RateLimiter:   middleware.NewRateLimiter(cfg.LoginRatePerMinute),
		Health:        checker,
		Metrics:       promhttp.Handler(),
		Log:           log,
	})
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 2)
	go func() {
		log.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return err
		}
		grpcServer, healthServer := server.NewGRPCServer(log)
		go checker.Sync(ctx, healthServer, 10*time.Second)
		go func() {
			log.Info("gRPC health server listening", zap.String("addr", cfg.GRPCAddr))
			if err := grpcServer.Serve(lis); err != nil {
				errc <- err
			}
		}()
		defer grpcServer.GracefulStop()
	}

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errc:
		return err
	}
	shutdownWithTimeout(log, "http", httpServer.Shutdown)
	if !telemetry.Drain(telemetry.ShutdownDrainDuration) {
		log.Warn("auth events still in flight at shutdown", zap.Duration("waited", telemetry.ShutdownDrainDuration))
	}
	return nil
}

// tokenProvider loads the signing key pair, or generates an ephemeral key outside production.
func tokenProvider(cfg *config.Config, log *zap.Logger) (*security.TokenProvider, error) {
	if cfg.JWTPrivateKey != "" && cfg.JWTPublicKey != "" {
		priv, pub, err := security.LoadKeyPair(cfg.JWTPrivateKey, cfg.JWTPublicKey)
		if err != nil {
			return nil, err
		}
		return security.NewTokenProvider(priv, pub, cfg.JWTIssuer, cfg.JWTAudience, security.AccessTokenTTL), nil
	}
	if cfg.Env == "production" {
		return nil, errors.New("JWT_PRIVATE_KEY and JWT_PUBLIC_KEY are required in production")
	}
	log.Warn("JWT keys not set; using an ephemeral signing key, tokens will not survive a restart")
	priv, err := security.GenerateEphemeralKey()
	if err != nil {
		return nil, err
	}
	return security.NewTokenProvider(priv, priv.Public(), cfg.JWTIssuer, cfg.JWTAudience, security.AccessTokenTTL), nil
}

func shutdownWithTimeout(log *zap.Logger, name string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := fn(ctx); err != nil {
		log.Warn("shutdown failed", zap.String("component", name), zap.Error(err))
	}
}
