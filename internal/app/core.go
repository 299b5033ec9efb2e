package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/heraerp/heraerp-prd-sub081/internal/coa"
	"github.com/heraerp/heraerp-prd-sub081/internal/entities"
	"github.com/heraerp/heraerp-prd-sub081/internal/ledger"
	"github.com/heraerp/heraerp-prd-sub081/internal/observability"
	"github.com/heraerp/heraerp-prd-sub081/internal/platform/cache"
	"github.com/heraerp/heraerp-prd-sub081/internal/platform/db"
	"github.com/heraerp/heraerp-prd-sub081/internal/rbac"
	"github.com/heraerp/heraerp-prd-sub081/internal/relationships"
	"github.com/heraerp/heraerp-prd-sub081/internal/shared"
)

// Core bundles the connected services shared by the CLI and the worker.
type Core struct {
	Pool          *pgxpool.Pool
	Redis         *redis.Client
	Metrics       *observability.Metrics
	Security      *rbac.Service
	Entities      *entities.Service
	Relationships *relationships.Service
	Ledger        *ledger.Service
	COA           *coa.Enforcer
}

// NewCore connects to Postgres and Redis and wires every core service.
func NewCore(ctx context.Context, cfg *Config, logger *slog.Logger) (*Core, error) {
	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns})
	if err != nil {
		return nil, err
	}
	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		pool.Close()
		return nil, err
	}
	core, err := buildCore(cfg, logger, pool, redisClient)
	if err != nil {
		pool.Close()
		_ = redisClient.Close()
		return nil, err
	}
	return core, nil
}

func buildCore(cfg *Config, logger *slog.Logger, pool *pgxpool.Pool, redisClient *redis.Client) (*Core, error) {
	mapping := coa.DefaultMapping()
	if cfg.COAMappingFile != "" {
		loaded, err := coa.LoadMapping(cfg.COAMappingFile)
		if err != nil {
			return nil, fmt.Errorf("app: coa mapping: %w", err)
		}
		mapping = loaded
	}

	metrics := observability.NewMetrics()
	relRepo := relationships.NewRepository(pool)
	trail := rbac.NewAuditTrail(cfg.AuditBufferCapacity, shared.NewAuditLogger(pool), logger).WithObserver(metrics)
	security := rbac.NewService(relRepo, trail, rbac.Options{
		SessionTTL:  cfg.SessionTTL,
		MaxLifetime: cfg.SessionMaxLifetime,
	}, logger)

	enforcer := coa.NewEnforcer(coa.NewRepository(pool), coa.NewRedisSequencer(redisClient, ""), mapping, logger)
	ledgerService := ledger.NewService(ledger.NewRepository(pool), ledger.Options{
		Tolerance: cfg.LedgerTolerance,
		Accounts:  enforcer,
		Numbers:   enforcer,
		Cache:     cache.NewVersioned(redisClient, "hera", cfg.ReconcileCacheTTL),
		Metrics:   metrics,
	}, logger)

	return &Core{
		Pool:          pool,
		Redis:         redisClient,
		Metrics:       metrics,
		Security:      security,
		Entities:      entities.NewService(entities.NewRepository(pool), logger),
		Relationships: relationships.NewService(relRepo, logger),
		Ledger:        ledgerService,
		COA:           enforcer,
	}, nil
}

// Checks returns the dependency probes served on /healthz.
func (c *Core) Checks() map[string]HealthCheck {
	return map[string]HealthCheck{
		"postgres": func(ctx context.Context) error { return c.Pool.Ping(ctx) },
		"redis":    func(ctx context.Context) error { return c.Redis.Ping(ctx).Err() },
	}
}

// Session establishes a security context for actorID in orgID and returns a
// context carrying it.
func (c *Core) Session(ctx context.Context, actorID, orgID string) (context.Context, *rbac.Context, error) {
	ctx = c.Security.Bind(ctx)
	actor, org, err := parseIDs(actorID, orgID)
	if err != nil {
		return ctx, nil, err
	}
	sc, err := c.Security.Establish(ctx, actor, org)
	if err != nil {
		return ctx, nil, err
	}
	return rbac.WithSecurity(ctx, sc), sc, nil
}

// Close releases the connections.
func (c *Core) Close() {
	if c == nil {
		return
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
	if c.Pool != nil {
		c.Pool.Close()
	}
}
