package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/xraph/ballot"
	"github.com/xraph/ballot/api"
	audithook "github.com/xraph/ballot/audit_hook"
	"github.com/xraph/ballot/lock"
	"github.com/xraph/ballot/observability"
	"github.com/xraph/ballot/store/memory"
	"github.com/xraph/ballot/token"
	"github.com/xraph/ballot/token/erc20"
	tokenmem "github.com/xraph/ballot/token/memory"
	"github.com/xraph/ballot/types"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(c *cobra.Command, _ []string) error {
			cfg, err := LoadConfig(configPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(c.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, newLogger(cfg))
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", os.Getenv("BALLOT_CONFIG"), "path to a YAML config file")
	return cmd
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the default configuration as YAML",
		RunE: func(c *cobra.Command, _ []string) error {
			enc := yaml.NewEncoder(c.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(DefaultConfig())
		},
	}
}

// daemon holds everything serve wires together.
type daemon struct {
	engine  *ballot.Engine
	handler http.Handler
	closers []func() error
}

func (d *daemon) close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		errs = append(errs, d.closers[i]())
	}
	return errors.Join(errs...)
}

func build(ctx context.Context, cfg Config, logger *slog.Logger) (_ *daemon, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d := &daemon{}
	defer func() {
		if err != nil {
			_ = d.close()
		}
	}()

	initialFee, err := cfg.Unit.Parse(cfg.InitialFee)
	if err != nil {
		return nil, err
	}

	ledger, err := openToken(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if c, ok := ledger.(io.Closer); ok {
		d.closers = append(d.closers, c.Close)
	}

	opts := []ballot.Option{
		ballot.WithLogger(logger),
		ballot.WithUnit(cfg.Unit),
		ballot.WithProjectCacheSize(cfg.ProjectCacheSize),
	}

	if cfg.Lock.Backend == "redis" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    cfg.Lock.RedisAddr,
			Password: cfg.Lock.Password,
		})
		d.closers = append(d.closers, client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}

		lockOpts := []lock.RedisOption{lock.WithLogger(logger)}
		if cfg.Lock.Prefix != "" {
			lockOpts = append(lockOpts, lock.WithPrefix(cfg.Lock.Prefix))
		}
		if cfg.Lock.TTL > 0 {
			lockOpts = append(lockOpts, lock.WithTTL(cfg.Lock.TTL))
		}
		opts = append(opts, ballot.WithLocker(lock.NewRedis(client, lockOpts...)))
	}

	reg := prometheus.NewRegistry()
	if cfg.Metrics.Enabled {
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		opts = append(opts, ballot.WithPlugin(observability.NewMetricsExtension(observability.NewPrometheusFactory(reg))))
	}
	if cfg.Audit.Enabled {
		opts = append(opts, ballot.WithPlugin(audithook.New(auditLog(logger),
			audithook.WithLogger(logger),
			audithook.WithDisabledActions(cfg.Audit.Disable...),
		)))
	}

	engine, err := ballot.New(memory.New(), ledger, types.Address(cfg.Owner), initialFee, opts...)
	if err != nil {
		return nil, err
	}
	d.engine = engine

	apiOpts := []api.Option{api.WithLogger(logger), api.WithBasePath(cfg.BasePath)}
	if cfg.Metrics.Enabled {
		apiOpts = append(apiOpts, api.WithMetrics(reg))
	}
	if cfg.Signatures.Enabled {
		apiOpts = append(apiOpts, api.WithSignatureVerification(api.NewSignatureVerifier(nil, cfg.Signatures.MaxSkew)))
	} else {
		logger.Warn("caller header trusted without signatures; owner operations rely on upstream authentication",
			"owner", cfg.Owner)
	}

	mux := http.NewServeMux()
	if cfg.Metrics.Enabled {
		mux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}
	mux.Handle("/", api.NewServer(engine, apiOpts...))
	d.handler = mux

	return d, nil
}

func openToken(ctx context.Context, cfg Config, logger *slog.Logger) (token.Ledger, error) {
	switch cfg.Token.Backend {
	case "erc20":
		return erc20.Dial(ctx, erc20.DialConfig{
			RPCURL:       cfg.Token.RPCURL,
			TokenAddress: cfg.Token.TokenAddress,
			PrivateKey:   cfg.Token.PrivateKey,
			ChainID:      cfg.Token.ChainID,
		}, erc20.WithLogger(logger))
	default:
		tok := tokenmem.New(cfg.Unit)
		system := types.Address(cfg.Token.SystemAccount)
		for _, g := range cfg.Token.Genesis {
			addr := types.Address(g.Address)
			if g.Balance != "" {
				amount, err := cfg.Unit.Parse(g.Balance)
				if err != nil {
					return nil, fmt.Errorf("genesis %s balance: %w", g.Address, err)
				}
				tok.Mint(addr, amount)
			}
			if g.Approve != "" {
				amount, err := cfg.Unit.Parse(g.Approve)
				if err != nil {
					return nil, fmt.Errorf("genesis %s approve: %w", g.Address, err)
				}
				tok.Approve(addr, system, amount)
			}
		}
		logger.Warn("using in-memory token; balances are lost on restart",
			"system_account", system.String(),
			"genesis_accounts", len(cfg.Token.Genesis),
		)
		return tok.Session(system), nil
	}
}

// auditLog records audit events as structured log lines.
func auditLog(logger *slog.Logger) audithook.Recorder {
	return audithook.RecorderFunc(func(ctx context.Context, evt *audithook.AuditEvent) error {
		logger.LogAttrs(ctx, slog.LevelInfo, "audit",
			slog.String("action", evt.Action),
			slog.String("resource", evt.Resource),
			slog.String("resource_id", evt.ResourceID),
			slog.String("outcome", evt.Outcome),
			slog.String("severity", evt.Severity),
			slog.Any("metadata", evt.Metadata),
		)
		return nil
	})
}

func serve(ctx context.Context, cfg Config, logger *slog.Logger) error {
	d, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := d.close(); err != nil {
			logger.Error("shutdown", "error", err)
		}
	}()

	if err := d.engine.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = d.engine.Stop() }()

	srv := &http.Server{Addr: cfg.Listen, Handler: d.handler}
	errc := make(chan error, 1)
	go func() {
		logger.Info("ballotd listening", "addr", cfg.Listen, "version", version)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("ballotd shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Shutdown)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
