// Package mysql builds a database/sql connection pool for MySQL from the
// same database.PoolConfig the postgres connector accepts, so a job queue
// can be pointed at either backend without changing its configuration.
package mysql

import (
	"context"
	"database/sql"
	"net"
	"strconv"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/koustreak/jobqueue/internal/database"
	"github.com/koustreak/jobqueue/internal/errs"
	"github.com/koustreak/jobqueue/internal/logger"
)

// Pool is a shared handle to a MySQL *sql.DB.
// It is safe for concurrent use by multiple goroutines.
type Pool struct {
	db       *sql.DB
	settings database.Settings
}

// Connect resolves cfg, opens a pool and verifies it with a ping bounded by
// the acquire timeout. database/sql has no minimum pool size, so MinConns
// connections are opened once up front and kept as idle connections.
//
// Errors are *errs.Error; on failure the pool is closed and nil is returned.
func Connect(ctx context.Context, cfg database.PoolConfig) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	settings := cfg.Resolve()

	log := logger.FromContext(ctx).With().
		Str("component", "mysql").
		Object("pool", cfg).
		Logger()

	connector, err := gomysql.NewConnector(buildConfig(cfg, settings))
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "invalid mysql config", err)
	}

	db := sql.OpenDB(connector)
	applyLimits(db, settings)

	connectCtx, cancel := context.WithTimeout(ctx, settings.AcquireTimeout)
	defer cancel()

	if err := db.PingContext(connectCtx); err != nil {
		_ = db.Close()
		connErr := mapError(err, "connect failed")
		log.ErrorWith("connect failed", connErr, nil)
		return nil, connErr
	}

	p := &Pool{db: db, settings: settings}
	p.warm(connectCtx, log)

	log.InfoWith("pool established", map[string]any{"open_conns": db.Stats().OpenConnections})
	return p, nil
}

// buildConfig maps a PoolConfig onto the driver's structured config, so no
// descriptor string is interpolated and credentials need no escaping.
func buildConfig(cfg database.PoolConfig, s database.Settings) *gomysql.Config {
	mc := gomysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(int(cfg.Port)))
	mc.DBName = cfg.DB
	mc.ParseTime = true
	mc.Timeout = s.AcquireTimeout
	return mc
}

// applyLimits sizes db like the postgres pool: up to MaxConns may sit idle,
// and the idle timeout, not the idle cap, is what shrinks the pool back.
func applyLimits(db *sql.DB, s database.Settings) {
	db.SetMaxOpenConns(int(s.MaxConns))
	db.SetMaxIdleConns(int(s.MaxConns))
	db.SetConnMaxLifetime(s.MaxLifetime)
	db.SetConnMaxIdleTime(s.IdleTimeout)
}

func (p *Pool) warm(ctx context.Context, log *logger.Logger) {
	held := make([]*sql.Conn, 0, p.settings.MinConns)
	defer func() {
		for _, c := range held {
			_ = c.Close()
		}
	}()

	for uint32(len(held)) < p.settings.MinConns {
		conn, err := p.db.Conn(ctx)
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

// Conn reserves a single connection, waiting at most the acquire timeout.
// The caller must Close it to return it to the pool.
func (p *Pool) Conn(ctx context.Context) (*sql.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, p.settings.AcquireTimeout)
	defer cancel()

	conn, err := p.db.Conn(ctx)
	if err != nil {
		return nil, mapError(err, "acquire failed")
	}
	return conn, nil
}

// Ping verifies the server is reachable.
func (p *Pool) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.settings.AcquireTimeout)
	defer cancel()

	if err := p.db.PingContext(ctx); err != nil {
		return mapError(err, "ping failed")
	}
	return nil
}

// Stats returns the driver-neutral view of sql.DBStats.
func (p *Pool) Stats() database.PoolStats {
	s := p.db.Stats()
	return database.PoolStats{
		MaxConns:       int32(s.MaxOpenConnections),
		TotalConns:     int32(s.OpenConnections),
		IdleConns:      int32(s.Idle),
		InUseConns:     int32(s.InUse),
		WaitCount:      s.WaitCount,
		WaitDuration:   s.WaitDuration,
		IdleClosed:     s.MaxIdleTimeClosed,
		LifetimeClosed: s.MaxLifetimeClosed,
	}
}

// Settings returns the resolved policy the pool was created with.
func (p *Pool) Settings() database.Settings {
	return p.settings
}

// DB returns the underlying *sql.DB (for advanced use)
func (p *Pool) DB() *sql.DB {
	return p.db
}

// Close closes the pool. Only the last holder should call it.
func (p *Pool) Close() error {
	return p.db.Close()
}
