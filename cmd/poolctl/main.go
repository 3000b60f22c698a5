// Command poolctl checks and serves a job-queue connection pool described
// by a PoolConfig file.
//
//	poolctl check --config pool.yaml
//	poolctl serve --config pool.yaml --addr :9187
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/koustreak/jobqueue/internal/database"
	"github.com/koustreak/jobqueue/internal/database/mysql"
	"github.com/koustreak/jobqueue/internal/database/postgres"
	"github.com/koustreak/jobqueue/internal/errs"
	"github.com/koustreak/jobqueue/internal/logger"
	"github.com/koustreak/jobqueue/internal/metrics"
	"github.com/koustreak/jobqueue/internal/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

type options struct {
	configPath string
	driver     string
	logLevel   string
	logFormat  string
	addr       string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "poolctl",
		Short:         "Check and serve a job-queue connection pool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to pool config (YAML or JSON)")
	root.PersistentFlags().StringVar(&opts.driver, "driver", "postgres", "Backend driver (postgres, mysql)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "json", "Log format (json, console)")

	check := &cobra.Command{
		Use:   "check",
		Short: "Connect once, report pool stats and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCheck(cmd.Context(), opts)
		},
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Connect and serve /healthz, /stats and /metrics until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
	serve.Flags().StringVar(&opts.addr, "addr", ":9187", "Listen address for the admin server")

	root.AddCommand(check, serve)
	return root
}

// pool is what both connectors offer once established.
type pool interface {
	server.Pool
	metrics.StatsSource
}

func connect(ctx context.Context, opts *options) (pool, func(), *logger.Logger, error) {
	log := logger.New(&logger.Config{Level: opts.logLevel, Format: opts.logFormat, Output: os.Stderr})
	logger.SetGlobal(log)
	ctx = log.WithContext(ctx)

	cfg, err := database.LoadConfig(opts.configPath)
	if err != nil {
		return nil, nil, log, err
	}

	switch opts.driver {
	case "postgres":
		p, err := postgres.Connect(ctx, cfg)
		if err != nil {
			return nil, nil, log, err
		}
		return p, p.Close, log, nil
	case "mysql":
		p, err := mysql.Connect(ctx, cfg)
		if err != nil {
			return nil, nil, log, err
		}
		return p, func() { _ = p.Close() }, log, nil
	default:
		return nil, nil, log, errs.New(errs.ErrKindInvalidInput, fmt.Sprintf("unknown driver %q", opts.driver))
	}
}

func runCheck(ctx context.Context, opts *options) error {
	p, closePool, _, err := connect(ctx, opts)
	if err != nil {
		return err
	}
	defer closePool()

	s := p.Stats()
	fmt.Printf("ok: %d/%d connections open (%d idle)\n", s.TotalConns, s.MaxConns, s.IdleConns)
	return nil
}

func runServe(ctx context.Context, opts *options) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, closePool, log, err := connect(ctx, opts)
	if err != nil {
		return err
	}
	defer closePool()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		metrics.NewPoolCollector(opts.driver, p),
	)

	srv := &http.Server{
		Addr:              opts.addr,
		Handler:           server.NewRouter(p, reg, log),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("admin server listening on %s", opts.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// exitCode gives callers (systemd, k8s probes, scripts) a stable signal
// for what kind of failure occurred.
func exitCode(err error) int {
	switch errs.KindOf(err) {
	case errs.ErrKindInvalidInput:
		return 2
	case errs.ErrKindAuthFailed:
		return 3
	case errs.ErrKindConnectionFailed:
		return 4
	case errs.ErrKindTimeout:
		return 5
	case errs.ErrKindCanceled:
		return 130
	default:
		return 1
	}
}
