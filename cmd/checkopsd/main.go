// Command checkopsd runs the check-operations API server.
package main

import (
	"context"
	"database/sql"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jmalloway/checksub001/pkg/audit"
	"github.com/jmalloway/checksub001/pkg/auth"
	"github.com/jmalloway/checksub001/pkg/checkitem"
	"github.com/jmalloway/checksub001/pkg/config"
	"github.com/jmalloway/checksub001/pkg/database"
	"github.com/jmalloway/checksub001/pkg/decision"
	"github.com/jmalloway/checksub001/pkg/dispatch"
	"github.com/jmalloway/checksub001/pkg/entitlement"
	"github.com/jmalloway/checksub001/pkg/extcall"
	"github.com/jmalloway/checksub001/pkg/fraud"
	"github.com/jmalloway/checksub001/pkg/httpapi"
	"github.com/jmalloway/checksub001/pkg/imageconn"
	"github.com/jmalloway/checksub001/pkg/imagetoken"
	"github.com/jmalloway/checksub001/pkg/jwtauth"
	"github.com/jmalloway/checksub001/pkg/model"
	"github.com/jmalloway/checksub001/pkg/observability"
	"github.com/jmalloway/checksub001/pkg/pgstore"
	"github.com/jmalloway/checksub001/pkg/ratelimit"
	"github.com/jmalloway/checksub001/pkg/seed"

	_ "github.com/lib/pq" // Postgres driver
)

func main() {
	log.Println("[checkops] starting")
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel(cfg)}))
	slog.SetDefault(logger)

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("ping database: %v", err)
	}
	log.Println("[checkops] postgres: connected")

	if err := pgstore.EnsureSchema(ctx, db); err != nil {
		log.Fatalf("ensure schema: %v", err)
	}

	obs, err := observability.New(observability.Config{
		ServiceName:    "checkopsd",
		ServiceVersion: "1.0.0",
		Environment:    cfg.Environment,
		Enabled:        os.Getenv("OTEL_TRACES_ENABLED") == "true",
		PrettyPrint:    cfg.IsDevelopment(),
	})
	if err != nil {
		log.Fatalf("observability: %v", err)
	}

	// Stores.
	authStore := pgstore.NewAuthStore(db)
	auditStore := pgstore.NewAuditStore(db)
	itemStore := pgstore.NewCheckItemStore(db)
	itemReadStore := pgstore.NewCheckItemReadStore(&database.TenantDB{DB: db})
	decisionStore := pgstore.NewDecisionStore(db)
	entitlementStore := pgstore.NewEntitlementStore(db)
	imageTokenStore := pgstore.NewImageTokenStore(db)
	fraudStore := pgstore.NewFraudStore(db)
	policyStore := pgstore.NewPolicyStore(db)
	userAdminStore := pgstore.NewUserAdminStore(db)

	// Crypto and auth.
	accessTTL := time.Duration(cfg.AccessTokenExpireMinutes) * time.Minute
	refreshTTL := time.Duration(cfg.RefreshTokenExpireDays) * 24 * time.Hour
	imageURLTTL := time.Duration(cfg.ImageSignedURLTTLSeconds) * time.Second
	tokens := jwtauth.NewManager(cfg.SecretKey, cfg.ImageSigningKey, accessTTL, refreshTTL, imageURLTTL)
	authSvc := auth.NewService(authStore, tokens, refreshTTL)
	csrf := auth.NewCSRF(cfg.CSRFSecretKey)

	auditSvc := audit.NewService(auditStore)
	authenticator := dispatch.NewAuthenticator(tokens, authStore)
	router := dispatch.NewRouter(authenticator, auditSvc)

	// Domain services.
	entitlements := entitlement.NewChecker(entitlementStore)
	decisionSvc := decision.NewService(decisionStore, entitlements, auditSvc, model.Money(cfg.DualControlThreshold))

	provider := checkitem.NewDemoProvider() // real feed adapters are configured out-of-tree
	ingestSvc := checkitem.NewService(provider, itemStore, cfg.DefaultSLAHours)
	querySvc := checkitem.NewQueryService(itemReadStore)
	assignSvc := checkitem.NewAssignmentService(pgstore.NewAssignmentStore(db), auditSvc)

	imageTokenSvc := imagetoken.NewService(imageTokenStore, imageURLTTL)
	imageCaller := extcall.NewCaller(extcall.DefaultPolicy())
	images := imageconn.NewDemo()

	hasher := fraud.NewHasher(fraud.PepperSet{
		Current:        cfg.NetworkPepper,
		CurrentVersion: cfg.NetworkPepperVersion,
		Prior:          cfg.NetworkPepperPrior,
		PriorVersion:   cfg.NetworkPepperPriorVersion,
	})
	fraudSvc := fraud.NewService(fraudStore, hasher, cfg.FraudPrivacyThreshold)

	// Rate limiting: Redis-backed when a cache cluster is configured, so
	// limits hold across processes; in-process token buckets otherwise.
	var loginLimiter, apiLimiter ratelimit.Limiter
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis url: %v", err)
		}
		client := redis.NewClient(opts)
		loginLimiter = ratelimit.NewRedisBacked(client, 5, time.Minute, "rl:login")
		apiLimiter = ratelimit.NewRedisBacked(client, 300, time.Minute, "rl:api")
		log.Println("[checkops] redis rate limiter: connected")
	} else {
		loginLimiter = ratelimit.NewInProcess(5, 5)
		apiLimiter = ratelimit.NewInProcess(300, 60)
	}

	// Optional fixture bootstrap for development/demo databases.
	if path := os.Getenv("SEED_FILE"); path != "" {
		fixtures, err := seed.Load(path)
		if err != nil {
			log.Fatalf("seed: %v", err)
		}
		if err := seed.Apply(ctx, fixtures, pgstore.NewSeedStore(db), auth.HashPassword, time.Now().UTC()); err != nil {
			log.Fatalf("seed: %v", err)
		}
		log.Printf("[checkops] seeded fixtures from %s", path)
	}

	server := httpapi.NewServer(httpapi.Deps{
		Log: logger,
		Obs: obs,

		AuthService: authSvc,
		Users:       authStore,
		CSRF:        csrf,
		Tokens:      tokens,
		Router:      router,

		AuditService: auditSvc,
		AuditReader:  auditStore,
		Exporter:     audit.NewExporter(auditStore),

		Items:       querySvc,
		Assignments: assignSvc,
		Ingest:      ingestSvc,
		ItemViews:   pgstore.NewItemViewStore(db),

		Decisions:      decisionSvc,
		DecisionReader: decisionStore,

		ImageTokens: imageTokenSvc,
		Images:      images,
		ImageFetch:  imageCaller.Do,

		FraudService: fraudSvc,
		Policies:     policyStore,
		UserAdmin:    userAdminStore,

		LoginLimiter: loginLimiter,
		APILimiter:   apiLimiter,

		Cookies: httpapi.CookieConfig{
			Secure:     cfg.CookieSecure,
			SameSite:   sameSite(cfg.CookieSameSite),
			Domain:     cfg.CookieDomain,
			RefreshTTL: refreshTTL,
		},
		TrustedProxies: cfg.TrustedProxyIPs,
		Development:    cfg.IsDevelopment(),
	})

	addr := os.Getenv("LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.Routes(cfg.CORSOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	_, _ = auditSvc.Log(ctx, audit.Entry{
		Action: model.AuditSystemStartup, ResourceType: "system", ResourceID: "checkopsd",
		Description: "server starting on " + addr,
	})

	shutdownCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("[checkops] listening on %s", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-shutdownCtx.Done()
	log.Println("[checkops] shutting down")

	drainCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(drainCtx); err != nil {
		log.Printf("[checkops] shutdown: %v", err)
	}
	_, _ = auditSvc.Log(drainCtx, audit.Entry{
		Action: model.AuditSystemShutdown, ResourceType: "system", ResourceID: "checkopsd",
		Description: "server stopped",
	})
	if err := obs.Shutdown(drainCtx); err != nil {
		log.Printf("[checkops] observability shutdown: %v", err)
	}
}

func logLevel(cfg *config.Config) slog.Level {
	if cfg.IsDevelopment() {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

func sameSite(v string) http.SameSite {
	switch strings.ToLower(v) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}
