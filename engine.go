package identitysync

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-identity-sync/adapters/gocommand"
	"github.com/goliatone/go-identity-sync/command"
	"github.com/goliatone/go-identity-sync/core"
	"github.com/goliatone/go-identity-sync/inbound"
	"github.com/goliatone/go-identity-sync/query"
	"github.com/goliatone/go-identity-sync/reconcile"
	"github.com/goliatone/go-identity-sync/store/memory"
	glog "github.com/goliatone/go-logger/glog"
)

const loggerName = "identity_sync.engine"

type Commands struct {
	ReconcileEvent   *command.ReconcileEventCommand
	PurgeDedupLedger *command.PurgeDedupLedgerCommand
}

type Queries struct {
	GetUser *query.GetUserQuery
}

// Engine owns one fully wired sync pipeline: sources, reconciler, delivery
// endpoint and the command/query handlers exposed over go-command.
type Engine struct {
	cfg Config

	store           core.UserStore
	ledger          core.DedupLedger
	metrics         core.MetricsRecorder
	logger          core.Logger
	loggerProvider  core.LoggerProvider
	extraSources    []core.Source
	resolveProvider inbound.ProviderResolver
	now             func() time.Time

	sources    *core.SourceRegistry
	reconciler *reconcile.Reconciler
	pipeline   *inbound.Pipeline
	endpoint   *inbound.Endpoint

	commands Commands
	queries  Queries
}

func New(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		cfg:     cfg,
		metrics: core.NopMetricsRecorder{},
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(e)
	}
	e.loggerProvider, e.logger = glog.Resolve(loggerName, e.loggerProvider, e.logger)
	e.logger = glog.Ensure(e.logger)

	if e.store == nil {
		if !strings.EqualFold(strings.TrimSpace(cfg.Store.Driver), core.StoreDriverMemory) {
			return nil, fmt.Errorf("identitysync: store.driver %q requires WithUserStore", cfg.Store.Driver)
		}
		e.store = memory.NewUserStore()
	}
	if e.ledger == nil {
		if !strings.EqualFold(strings.TrimSpace(cfg.Dedup.Backend), core.DedupBackendMemory) {
			return nil, fmt.Errorf("identitysync: dedup.backend %q requires WithDedupLedger", cfg.Dedup.Backend)
		}
		e.ledger = core.NewMemoryDedupLedgerWithLimits(cfg.Dedup.Retention, cfg.Dedup.MaxEntries)
	}

	if err := e.buildSources(); err != nil {
		return nil, err
	}

	reconciler, err := reconcile.New(e.store,
		reconcile.WithLedger(e.ledger),
		reconcile.WithLoggerProvider(e.loggerProvider),
		reconcile.WithLogger(e.logger),
		reconcile.WithMetricsRecorder(e.metrics),
		reconcile.WithOperationTimeout(cfg.Store.OperationTimeout),
		reconcile.WithMaxAttempts(cfg.Store.MaxAttempts),
		reconcile.WithClock(e.now),
	)
	if err != nil {
		return nil, err
	}
	e.reconciler = reconciler

	pipeline, err := inbound.NewPipeline(e.sources, reconciler,
		inbound.WithPipelineLoggerProvider(e.loggerProvider),
		inbound.WithPipelineLogger(e.logger),
		inbound.WithPipelineMetrics(e.metrics),
	)
	if err != nil {
		return nil, err
	}
	e.pipeline = pipeline

	endpointOpts := []inbound.EndpointOption{
		inbound.WithMaxBodyBytes(cfg.Webhook.MaxBodyBytes),
		inbound.WithDefaultProvider(cfg.Webhook.Provider),
	}
	if e.resolveProvider != nil {
		endpointOpts = append(endpointOpts, inbound.WithProviderResolver(e.resolveProvider))
	}
	endpoint, err := inbound.NewEndpoint(pipeline, endpointOpts...)
	if err != nil {
		return nil, err
	}
	e.endpoint = endpoint

	e.commands = Commands{
		ReconcileEvent:   command.NewReconcileEventCommand(reconciler),
		PurgeDedupLedger: command.NewPurgeDedupLedgerCommand(e.ledger),
	}
	e.queries = Queries{
		GetUser: query.NewGetUserQuery(e.store),
	}

	e.logger.Info("identity sync engine ready",
		"providers", e.sources.ProviderIDs(),
		"store_driver", cfg.Store.Driver,
		"dedup_backend", cfg.Dedup.Backend,
	)
	return e, nil
}

func (e *Engine) buildSources() error {
	e.sources = core.NewSourceRegistry()
	source, builtin, err := sourceForConfig(e.cfg, e.now)
	if err != nil {
		return err
	}
	if builtin {
		if err := e.sources.Register(source); err != nil {
			return err
		}
	}
	for _, extra := range e.extraSources {
		if err := e.sources.Register(extra); err != nil {
			return err
		}
	}
	if _, ok := e.sources.Get(e.cfg.Webhook.Provider); !ok {
		return fmt.Errorf("identitysync: no source registered for provider %q", e.cfg.Webhook.Provider)
	}
	return nil
}

func (e *Engine) Config() Config {
	return e.cfg
}

// Handler serves webhook deliveries. Mount it under a route that exposes the
// provider id, or rely on the configured default provider.
func (e *Engine) Handler() http.Handler {
	return e.endpoint
}

func (e *Engine) Process(ctx context.Context, req core.InboundRequest) inbound.Result {
	return e.pipeline.Process(ctx, req)
}

func (e *Engine) Reconcile(ctx context.Context, event core.CanonicalEvent) (core.Outcome, error) {
	return e.reconciler.Reconcile(ctx, event)
}

func (e *Engine) PurgeDedupLedger(ctx context.Context) (int, error) {
	return e.ledger.Purge(ctx)
}

func (e *Engine) Commands() Commands {
	return e.commands
}

func (e *Engine) Queries() Queries {
	return e.queries
}

func (e *Engine) Sources() *core.SourceRegistry {
	return e.sources
}

func (e *Engine) UserStore() core.UserStore {
	return e.store
}

func (e *Engine) DedupLedger() core.DedupLedger {
	return e.ledger
}

// Register exposes the engine commands and queries on the go-command
// dispatcher. Callers own the returned subscriptions.
func (e *Engine) Register(adapter *gocommand.RegistryAdapter) (gocommand.Subscriptions, error) {
	if adapter == nil {
		return nil, fmt.Errorf("identitysync: command registry adapter is required")
	}
	subscriptions := make(gocommand.Subscriptions, 0, 3)

	sub, err := gocommand.RegisterAndSubscribe[command.ReconcileEventMessage](adapter, e.commands.ReconcileEvent)
	if err != nil {
		subscriptions.Unsubscribe()
		return nil, err
	}
	subscriptions = append(subscriptions, sub)

	sub, err = gocommand.RegisterAndSubscribe[command.PurgeDedupLedgerMessage](adapter, e.commands.PurgeDedupLedger)
	if err != nil {
		subscriptions.Unsubscribe()
		return nil, err
	}
	subscriptions = append(subscriptions, sub)

	sub, err = gocommand.RegisterAndSubscribeQuery[query.GetUserMessage, core.UserRecord](adapter, e.queries.GetUser)
	if err != nil {
		subscriptions.Unsubscribe()
		return nil, err
	}
	return append(subscriptions, sub), nil
}
