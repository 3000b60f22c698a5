package database

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/koustreak/jobqueue/internal/errs"
	"go.yaml.in/yaml/v3"
)

// Environment variables that override the connection identity of a loaded
// PoolConfig. Sizing is only configurable through the file.
const (
	EnvHost     = "JOBQUEUE_DB_HOST"
	EnvPort     = "JOBQUEUE_DB_PORT"
	EnvUser     = "JOBQUEUE_DB_USER"
	EnvPassword = "JOBQUEUE_DB_PASSWORD"
	EnvName     = "JOBQUEUE_DB_NAME"
)

// ParseConfig decodes a PoolConfig from YAML. JSON is accepted as well,
// being a subset of YAML. Unknown keys are rejected.
func ParseConfig(data []byte) (PoolConfig, error) {
	var cfg PoolConfig

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return PoolConfig{}, errs.Wrap(errs.ErrKindInvalidInput, "invalid pool config", err)
	}
	return cfg, nil
}

// EncodeConfig renders cfg as YAML. Unset optional fields are omitted.
func EncodeConfig(cfg PoolConfig) ([]byte, error) {
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "encode pool config", err)
	}
	return out, nil
}

// LoadConfig reads a YAML PoolConfig from path and applies the JOBQUEUE_DB_*
// environment overrides. An empty path starts from a zero config so a pool
// can be described by environment alone.
func LoadConfig(path string) (PoolConfig, error) {
	var cfg PoolConfig
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return PoolConfig{}, errs.Wrap(errs.ErrKindInvalidInput,
				fmt.Sprintf("read pool config %q", path), err)
		}
		if cfg, err = ParseConfig(data); err != nil {
			return PoolConfig{}, err
		}
	}
	return applyEnv(cfg, os.LookupEnv)
}

func applyEnv(cfg PoolConfig, lookup func(string) (string, bool)) (PoolConfig, error) {
	if v, ok := lookup(EnvHost); ok {
		cfg.Host = v
	}
	if v, ok := lookup(EnvPort); ok {
		port, err := strconv.ParseUint(v, 10, 16)
		if err != nil {
			return PoolConfig{}, errs.Wrap(errs.ErrKindInvalidInput,
				fmt.Sprintf("%s=%q is not a port", EnvPort, v), err)
		}
		cfg.Port = uint16(port)
	}
	if v, ok := lookup(EnvUser); ok {
		cfg.User = v
	}
	if v, ok := lookup(EnvPassword); ok {
		cfg.Password = v
	}
	if v, ok := lookup(EnvName); ok {
		cfg.DB = v
	}
	return cfg, nil
}
