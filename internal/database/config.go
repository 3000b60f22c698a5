package database

import (
	"fmt"
	"math"
	"time"

	"github.com/koustreak/jobqueue/internal/errs"
	"github.com/rs/zerolog"
)

// Defaults applied by Resolve to optional PoolConfig fields that are unset.
const (
	DefaultMaxConnections        uint32 = 10
	DefaultMinConnections        uint32 = 1
	DefaultAcquireTimeoutSeconds uint64 = 30
	DefaultMaxLifetimeSeconds    uint64 = 300
	DefaultIdleTimeoutSeconds    uint64 = 60
)

// MaxDurationSeconds is the largest *_seconds value a time.Duration can hold.
const MaxDurationSeconds = uint64(math.MaxInt64 / int64(time.Second))

// PoolConfig describes how to reach and size a connection pool.
//
// It is a plain transfer object: it owns no connections, is safe to copy,
// and round-trips through JSON and YAML so it can be handed across process
// or API boundaries. Optional fields are pointers; nil means "use the
// default", and defaults are only applied by Resolve, never stored back.
type PoolConfig struct {
	Host     string `json:"host" yaml:"host"`
	Port     uint16 `json:"port" yaml:"port"`
	User     string `json:"user" yaml:"user"`
	Password string `json:"password" yaml:"password"`
	DB       string `json:"db" yaml:"db"`

	MaxConnections        *uint32 `json:"max_connections,omitempty" yaml:"max_connections,omitempty"`
	MinConnections        *uint32 `json:"min_connections,omitempty" yaml:"min_connections,omitempty"`
	AcquireTimeoutSeconds *uint64 `json:"acquire_timeout_seconds,omitempty" yaml:"acquire_timeout_seconds,omitempty"`
	MaxLifetimeSeconds    *uint64 `json:"max_lifetime_seconds,omitempty" yaml:"max_lifetime_seconds,omitempty"`
	IdleTimeoutSeconds    *uint64 `json:"idle_timeout_seconds,omitempty" yaml:"idle_timeout_seconds,omitempty"`

	// EscapeCredentials switches the connection descriptor from raw
	// substitution to percent-encoded user and password. See ConnString.
	EscapeCredentials bool `json:"escape_credentials,omitempty" yaml:"escape_credentials,omitempty"`
}

// Settings is the resolved sizing and lifecycle policy of a pool.
type Settings struct {
	MaxConns       uint32
	MinConns       uint32
	AcquireTimeout time.Duration
	MaxLifetime    time.Duration
	IdleTimeout    time.Duration
}

// Resolve returns the pool settings with every unset optional field
// replaced by its default.
func (c PoolConfig) Resolve() Settings {
	return Settings{
		MaxConns:       deref(c.MaxConnections, DefaultMaxConnections),
		MinConns:       deref(c.MinConnections, DefaultMinConnections),
		AcquireTimeout: seconds(deref(c.AcquireTimeoutSeconds, DefaultAcquireTimeoutSeconds)),
		MaxLifetime:    seconds(deref(c.MaxLifetimeSeconds, DefaultMaxLifetimeSeconds)),
		IdleTimeout:    seconds(deref(c.IdleTimeoutSeconds, DefaultIdleTimeoutSeconds)),
	}
}

// Validate rejects values no connector can honour: durations too long to
// represent, then the sizing checks of Settings.Validate.
func (c PoolConfig) Validate() error {
	for _, f := range []struct {
		key string
		val *uint64
	}{
		{"acquire_timeout_seconds", c.AcquireTimeoutSeconds},
		{"max_lifetime_seconds", c.MaxLifetimeSeconds},
		{"idle_timeout_seconds", c.IdleTimeoutSeconds},
	} {
		if f.val != nil && *f.val > MaxDurationSeconds {
			return errs.New(errs.ErrKindInvalidInput,
				fmt.Sprintf("%s %d exceeds %d", f.key, *f.val, MaxDurationSeconds))
		}
	}
	return c.Resolve().Validate()
}

// Validate rejects sizing combinations no connector can honour.
func (s Settings) Validate() error {
	switch {
	case s.MaxConns == 0:
		return errs.New(errs.ErrKindInvalidInput, "max_connections must be greater than 0")
	case s.MaxConns > math.MaxInt32:
		return errs.New(errs.ErrKindInvalidInput,
			fmt.Sprintf("max_connections %d exceeds %d", s.MaxConns, math.MaxInt32))
	case s.MinConns > s.MaxConns:
		return errs.New(errs.ErrKindInvalidInput,
			fmt.Sprintf("min_connections %d exceeds max_connections %d", s.MinConns, s.MaxConns))
	}
	return nil
}

// String renders the config for humans with the password redacted.
func (c PoolConfig) String() string {
	return fmt.Sprintf("%s@%s:%d/%s", c.User, c.Host, c.Port, c.DB)
}

// MarshalZerologObject lets the config be logged with .Object without
// leaking the password.
func (c PoolConfig) MarshalZerologObject(e *zerolog.Event) {
	s := c.Resolve()
	e.Str("host", c.Host).
		Uint16("port", c.Port).
		Str("user", c.User).
		Str("db", c.DB).
		Uint32("max_conns", s.MaxConns).
		Uint32("min_conns", s.MinConns).
		Dur("acquire_timeout", s.AcquireTimeout).
		Dur("max_lifetime", s.MaxLifetime).
		Dur("idle_timeout", s.IdleTimeout)
}

// Uint32 and Uint64 return pointers for filling optional PoolConfig fields.
func Uint32(v uint32) *uint32 { return &v }
func Uint64(v uint64) *uint64 { return &v }

func deref[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}

// seconds saturates instead of wrapping; Validate reports the overflow.
func seconds(n uint64) time.Duration {
	if n > MaxDurationSeconds {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(n) * time.Second
}
