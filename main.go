package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver for migrations
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/agentdist/dataguard/pkg/config"
	"github.com/agentdist/dataguard/pkg/database"
	"github.com/agentdist/dataguard/pkg/handlers"
	"github.com/agentdist/dataguard/pkg/logging"
	"github.com/agentdist/dataguard/pkg/permissions"
	"github.com/agentdist/dataguard/pkg/repositories"
	"github.com/agentdist/dataguard/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	logger.Info("Configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("database", cfg.Database.Host),
		zap.Bool("guard_enabled", cfg.Guard.Enabled),
		zap.Bool("redis_configured", cfg.Redis.Host != ""))

	ctx := context.Background()

	db, err := database.NewConnection(ctx, &database.PoolConfig{
		URL:            cfg.Database.ConnectionString(),
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := runMigrations(cfg, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	redisClient, err := database.NewRedisClient(&cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	if redisClient != nil {
		defer redisClient.Close() //nolint:errcheck
	}

	// Enforcement pipeline. The AccessGuard itself is constructed by the
	// services embedding this module; the admin binary wires the shared
	// checker so matrix changes invalidate cached verdicts.
	permRepo := repositories.NewPermissionRepository(db)
	auditRepo := repositories.NewOperationAuditRepository(db)

	cache := permissions.NewVerdictCache(redisClient, time.Duration(cfg.Cache.TTLMinutes)*time.Minute, logger)
	checker := permissions.NewChecker(permRepo, cache, permissions.DefaultStaticGrants(), logger)

	permSvc := services.NewPermissionService(permRepo, checker, logger)
	auditSvc := services.NewOperationAuditService(auditRepo, cfg.Audit.RetentionDays, logger)

	if cfg.Audit.RetentionDays > 0 {
		go retentionLoop(ctx, auditSvc, logger)
	}

	mux := http.NewServeMux()

	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewPermissionHandler(permSvc, logger).RegisterRoutes(mux)
	handlers.NewAuditHandler(auditSvc, logger).RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	addr := cfg.BindAddr + ":" + cfg.Port
	logger.Info("Starting dataguard admin server",
		zap.String("addr", addr),
		zap.String("version", cfg.Version))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

func loadConfig() (*config.Config, error) {
	if _, err := os.Stat("config.yaml"); err != nil {
		return config.LoadFromEnv(Version)
	}
	return config.Load(Version)
}

// runMigrations drives golang-migrate over a short-lived database/sql
// connection, separate from the pgx pool.
func runMigrations(cfg *config.Config, logger *zap.Logger) error {
	sqlDB, err := sql.Open("pgx", cfg.Database.ConnectionString())
	if err != nil {
		return err
	}
	defer sqlDB.Close() //nolint:errcheck

	return database.RunMigrations(sqlDB, logger)
}

// retentionLoop purges expired audit entries once a day. Purge failures are
// logged by the service and retried on the next tick.
func retentionLoop(ctx context.Context, svc services.OperationAuditService, logger *zap.Logger) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		if _, err := svc.PurgeExpired(ctx); err != nil {
			logger.Warn("Audit retention purge failed", zap.Error(err))
		}
		<-ticker.C
	}
}
