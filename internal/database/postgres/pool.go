// Package postgres turns a database.PoolConfig into a live pgxpool-backed
// connection pool for the job queue.
//
// Usage:
//
//	pool, err := postgres.Connect(ctx, cfg)
//	if err != nil {
//	    if errs.IsAuthFailed(err) { ... }
//	    return err
//	}
//	defer pool.Close()
//
//	conn, err := pool.Acquire(ctx)
//	if err != nil { ... }
//	defer conn.Release()
package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/koustreak/jobqueue/internal/database"
	"github.com/koustreak/jobqueue/internal/errs"
	"github.com/koustreak/jobqueue/internal/logger"
)

// maxHealthCheckPeriod caps how often idle and expired connections are
// swept. Shorter idle timeouts sweep at their own period.
const maxHealthCheckPeriod = time.Minute

// Pool is a shared handle to a set of reusable PostgreSQL connections.
// It is safe for concurrent use by multiple goroutines; its sizing and
// timeouts are fixed when Connect returns.
type Pool struct {
	pool     *pgxpool.Pool
	settings database.Settings
}

// Connect resolves cfg, builds the connection descriptor and establishes a
// pool against it. It returns once at least one connection is open and
// makes a best effort to open MinConns before returning. The whole call is
// bounded by the resolved acquire timeout.
//
// On failure no pool is returned and any connection opened along the way
// is closed. The error is an *errs.Error of kind ConnectionFailed,
// AuthFailed, Timeout or InvalidInput. Connect never retries.
func Connect(ctx context.Context, cfg database.PoolConfig) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	settings := cfg.Resolve()

	log := logger.FromContext(ctx).With().
		Str("component", "postgres").
		Object("pool", cfg).
		Logger()

	poolCfg, err := buildPoolConfig(cfg, settings)
	if err != nil {
		log.ErrorWith("invalid pool config", err, nil)
		return nil, err
	}

	connectCtx, cancel := context.WithTimeout(ctx, settings.AcquireTimeout)
	defer cancel()

	log.Debug("connecting")
	start := time.Now()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		connErr := mapError(err, "failed to create connection pool")
		log.ErrorWith("connect failed", connErr, nil)
		return nil, connErr
	}

	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		connErr := mapError(err, "connect failed")
		log.ErrorWith("connect failed", connErr, map[string]any{"elapsed": time.Since(start).String()})
		return nil, connErr
	}

	p := &Pool{pool: pool, settings: settings}
	p.warm(connectCtx, log)

	log.InfoWith("pool established", map[string]any{
		"total_conns": p.pool.Stat().TotalConns(),
		"elapsed":     time.Since(start).String(),
	})
	return p, nil
}

// buildPoolConfig maps resolved settings onto a pgxpool config.
func buildPoolConfig(cfg database.PoolConfig, s database.Settings) (*pgxpool.Config, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.ConnString())
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "invalid connection descriptor", err)
	}

	poolCfg.MaxConns = int32(s.MaxConns)
	poolCfg.MinConns = int32(s.MinConns)
	poolCfg.MaxConnLifetime = s.MaxLifetime
	poolCfg.MaxConnIdleTime = s.IdleTimeout
	poolCfg.ConnConfig.ConnectTimeout = s.AcquireTimeout
	if s.IdleTimeout > 0 && s.IdleTimeout < maxHealthCheckPeriod {
		poolCfg.HealthCheckPeriod = s.IdleTimeout
	}

	return poolCfg, nil
}

// warm holds up to MinConns connections at once so the pool opens that many,
// then hands them all back. Failures are logged; the pool is already usable.
func (p *Pool) warm(ctx context.Context, log *logger.Logger) {
	held := make([]*pgxpool.Conn, 0, p.settings.MinConns)
	defer func() {
		for _, c := range held {
			c.Release()
		}
	}()

	for uint32(len(held)) < p.settings.MinConns {
		conn, err := p.pool.Acquire(ctx)
		if err != nil {
			log.WarnWith("pool warm-up incomplete", mapError(err, "warm-up"), map[string]any{
				"opened": len(held),
				"want":   p.settings.MinConns,
			})
			return
		}
		held = append(held, conn)
	}
}

// Acquire takes a connection from the pool, waiting at most the configured
// acquire timeout (or less, if ctx expires first). The caller must Release it.
func (p *Pool) Acquire(ctx context.Context) (*pgxpool.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, p.settings.AcquireTimeout)
	defer cancel()

	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, mapError(err, "acquire failed")
	}
	return conn, nil
}

// Ping verifies the database is reachable by acquiring a connection and
// round-tripping an empty statement.
func (p *Pool) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.settings.AcquireTimeout)
	defer cancel()

	if err := p.pool.Ping(ctx); err != nil {
		return mapError(err, "ping failed")
	}
	return nil
}

// Stat returns a snapshot of pool usage.
func (p *Pool) Stat() *pgxpool.Stat {
	return p.pool.Stat()
}

// Stats returns the driver-neutral view of Stat.
func (p *Pool) Stats() database.PoolStats {
	s := p.pool.Stat()
	return database.PoolStats{
		MaxConns:             s.MaxConns(),
		TotalConns:           s.TotalConns(),
		IdleConns:            s.IdleConns(),
		InUseConns:           s.AcquiredConns(),
		AcquireCount:         s.AcquireCount(),
		WaitCount:            s.EmptyAcquireCount(),
		CanceledAcquireCount: s.CanceledAcquireCount(),
		WaitDuration:         s.AcquireDuration(),
		IdleClosed:           s.MaxIdleDestroyCount(),
		LifetimeClosed:       s.MaxLifetimeDestroyCount(),
	}
}

// Settings returns the resolved policy the pool was created with.
func (p *Pool) Settings() database.Settings {
	return p.settings
}

// PgxPool returns the underlying pgxpool (for advanced use)
func (p *Pool) PgxPool() *pgxpool.Pool {
	return p.pool
}

// Close closes every connection and waits for them to finish.
// Only the last holder of the pool should call it.
func (p *Pool) Close() {
	p.pool.Close()
}
