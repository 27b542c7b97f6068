package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/tide-labs/tide/internal/api"
	"github.com/tide-labs/tide/internal/app/task"
	"github.com/tide-labs/tide/internal/domain"
	"github.com/tide-labs/tide/internal/health"
	"github.com/tide-labs/tide/internal/infra/aggregator"
	"github.com/tide-labs/tide/internal/infra/events"
	"github.com/tide-labs/tide/internal/infra/evm"
	_ "github.com/tide-labs/tide/internal/infra/metrics" // Register Prometheus metrics
	"github.com/tide-labs/tide/internal/infra/proxy"
	"github.com/tide-labs/tide/internal/infra/solana"
	"github.com/tide-labs/tide/internal/infra/sqlite"
	"github.com/tide-labs/tide/internal/infra/trade"
	"github.com/tide-labs/tide/internal/security"
)

// shutdownTimeout bounds the wait for workers to check out on exit.
const shutdownTimeout = 3 * time.Minute

// newKafkaForwarder builds the event exporter; tests replace it.
var newKafkaForwarder = func(brokers []string, topic string, logger *zap.Logger) (events.Forwarder, error) {
	return events.NewKafkaForwarder(brokers, topic, logger)
}

// Daemon is the tide runtime. It wires together all services.
type Daemon struct {
	Config   Config
	Log      *zap.Logger
	DB       *sqlite.DB
	Wallets  *sqlite.WalletStore
	Hub      *events.Hub
	Registry *task.Registry
	Health   *health.Checker
	Server   *api.Server
}

// New loads the config and creates a Daemon with all services wired.
func New(ctx context.Context, logger *zap.Logger) (*Daemon, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewWithConfig(ctx, cfg, logger)
}

// NewWithConfig creates a Daemon with the given configuration. EVM chains
// are dialed here, so ctx bounds startup.
func NewWithConfig(ctx context.Context, cfg Config, logger *zap.Logger) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sealer, err := security.OpenKeystore(cfg.Storage.Dir, cfg.Keystore.PassphraseEnv)
	if err != nil {
		return nil, fmt.Errorf("open keystore: %w", err)
	}

	db, err := sqlite.Open(cfg.Storage.Dir)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	wallets, err := sqlite.NewWalletStore(db, sealer)
	if err != nil {
		db.Close()
		return nil, err
	}

	d := &Daemon{Config: cfg, Log: logger, DB: db, Wallets: wallets}
	checks := []health.Check{health.SQLiteCheck(db)}

	// ─── Events ────────────────────────────────────────────────────────

	var (
		forwarders []events.Forwarder
		evmClients []*evm.Client
	)
	abort := func() {
		for _, f := range forwarders {
			_ = f.Close()
		}
		for _, c := range evmClients {
			c.Close()
		}
		_ = db.Close()
	}

	if len(cfg.Events.KafkaBrokers) > 0 {
		kf, err := newKafkaForwarder(cfg.Events.KafkaBrokers, cfg.Events.KafkaTopic, logger.Named("kafka"))
		if err != nil {
			abort()
			return nil, err
		}
		forwarders = append(forwarders, kf)
	}
	d.Hub = events.NewHub(events.Config{
		Buffer:           cfg.Events.Buffer,
		SubscriberBuffer: cfg.Events.SubscriberBuffer,
	}, logger.Named("events"), forwarders...)

	// ─── Executors ─────────────────────────────────────────────────────

	pcfg := proxy.DefaultConfig()
	pcfg.URLs = cfg.Proxy.URLs
	pcfg.Timeout = parseDuration(cfg.Proxy.Timeout, pcfg.Timeout)
	proxies, err := proxy.New(pcfg)
	if err != nil {
		abort()
		return nil, fmt.Errorf("proxy pool: %w", err)
	}

	executors := make(map[domain.Chain]task.Executor)

	if cfg.Solana.RPCURL != "" {
		rpc := solana.New(cfg.Solana.RPCURL, proxies.Direct(), logger.Named("solana"))
		executors[domain.ChainSolana] = trade.NewSolanaExecutor(
			rpc,
			aggregator.NewJupiter(cfg.Solana.AggregatorURL),
			proxies,
			logger.Named("executor.solana"),
			trade.SolanaOptions{
				ComputeUnitLimit: cfg.Solana.ComputeUnitLimit,
				PollInterval:     parseDuration(cfg.Solana.PollInterval, trade.DefaultPollInterval),
				ConfirmTimeout:   parseDuration(cfg.Solana.ConfirmTimeout, trade.DefaultConfirmTimeout),
			},
		)
		checks = append(checks, health.RPCCheck("rpc_solana", rpc.Ping, nil))
	}

	oneInch := aggregator.NewOneInch(cfg.OneInch.URL, cfg.OneInch.APIKey)
	for _, name := range cfg.EVMChains() {
		ec := cfg.EVM[name]
		chain := domain.Chain(name)
		client, err := evm.Dial(ctx, ec.RPCURL, ec.ChainID, proxies.Direct(), logger.Named("evm").With(zap.String("chain", name)))
		if err != nil {
			abort()
			return nil, fmt.Errorf("evm %s: %w", name, err)
		}
		evmClients = append(evmClients, client)
		executors[chain] = trade.NewEVMExecutor(
			trade.EVMChain{Chain: chain, ChainID: ec.ChainID, Router: ec.Router, NativeSymbol: ec.NativeSymbol},
			client, oneInch, proxies,
			logger.Named("executor.evm").With(zap.String("chain", name)),
			nil,
		)
		checks = append(checks, health.RPCCheck("rpc_"+name, client.Ping, client.Reconnect))
	}
	if len(executors) == 0 {
		logger.Warn("no chain configured; tasks can be created but not for any chain")
	}

	// ─── Control plane ─────────────────────────────────────────────────

	d.Registry = task.NewRegistry(wallets, executors, d.Hub, logger.Named("registry"))
	d.Health = health.NewChecker(parseDuration(cfg.Health.Interval, health.DefaultInterval), logger.Named("health"), checks...)

	d.Server = api.NewServer(d.Registry, d.Hub, logger.Named("api"))
	d.Server.SetWallets(wallets, ParseKey)
	d.Server.SetHealth(d.Health)
	if cfg.Telemetry.Prometheus {
		d.Server.EnableMetrics()
	}

	return d, nil
}

// ParseKey decodes an exported private key for chain: base58 keypairs on
// Solana, hex scalars on EVM chains.
func ParseKey(chain domain.Chain, s string) (domain.PrivateKey, error) {
	switch {
	case chain == domain.ChainSolana:
		return solana.ParsePrivateKey(s)
	case chain.IsEVM():
		return evm.ParsePrivateKey(s)
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedChain, chain)
}

// Serve starts the HTTP server and background services, and blocks until
// ctx ends or a termination signal arrives. Running tasks are stopped and
// their workers awaited before the store closes.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The hub outlives the registry so the final Stopped events are delivered.
	hubCtx, stopHub := context.WithCancel(context.Background())
	hubDone := make(chan struct{})
	go func() {
		d.Hub.Run(hubCtx)
		close(hubDone)
	}()

	go d.Health.Run(ctx)

	addr := fmt.Sprintf("%s:%d", d.Config.API.Host, d.Config.API.Port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           d.Server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		d.Log.Info("tide serving", zap.String("addr", "http://"+addr), zap.Bool("metrics", d.Config.Telemetry.Prometheus))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		d.Log.Info("shutting down")
	case serveErr = <-errCh:
		d.Log.Error("http server", zap.Error(serveErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	_ = httpServer.Shutdown(shutdownCtx)
	if err := d.Registry.Shutdown(shutdownCtx); err != nil {
		d.Log.Warn("registry shutdown", zap.Error(err))
	}
	stopHub()
	<-hubDone
	_ = d.DB.Close()
	_ = d.Log.Sync()

	return serveErr
}

// Close releases resources without serving. Used when startup fails after
// New succeeded.
func (d *Daemon) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if d.Registry != nil {
		_ = d.Registry.Shutdown(ctx)
	}
	if d.DB != nil {
		_ = d.DB.Close()
	}
}
