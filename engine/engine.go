// Package engine wires all Postmaster subsystems together. It selects the
// persistence store from the configured Mode and creates the extension
// registry, middleware chain, dead letter queue, retention sweeper and
// scheduler.
//
// This package sits above all subsystem packages and below the
// application layer, so that scheduler, dlq and the stores never import
// each other's wiring.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/postmaster"
	"github.com/xraph/postmaster/backoff"
	"github.com/xraph/postmaster/dlq"
	"github.com/xraph/postmaster/ext"
	"github.com/xraph/postmaster/id"
	"github.com/xraph/postmaster/message"
	mw "github.com/xraph/postmaster/middleware"
	"github.com/xraph/postmaster/observability"
	"github.com/xraph/postmaster/scheduler"
	"github.com/xraph/postmaster/store"
	"github.com/xraph/postmaster/transport"
)

const instrumentationName = "github.com/xraph/postmaster"

// Engine owns the store, the scheduler and their supporting services.
// Use Build to create one.
type Engine struct {
	cfg        postmaster.Config
	mode       postmaster.Mode
	store      store.Store
	ownStore   bool
	scheduler  *scheduler.Scheduler
	extensions *ext.Registry
	dlqService *dlq.Service
	retention  sweeper
	bo         backoff.Strategy
	mws        []mw.Middleware
	logger     *slog.Logger

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// sweeper runs periodic DLQ maintenance; *dlq.Retention is the only
// implementation outside tests.
type sweeper interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context)
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger shared by every subsystem.
func WithLogger(l *slog.Logger) Option {
	return func(eng *Engine) { eng.logger = l }
}

// WithStore overrides the store selected from the configuration. The
// caller keeps ownership; Stop does not close it.
func WithStore(s store.Store) Option {
	return func(eng *Engine) { eng.store = s }
}

// WithExtension registers an extension with the engine.
func WithExtension(e ext.Extension) Option {
	return func(eng *Engine) { eng.extensions.Register(e) }
}

// WithMiddleware adds middleware after the default send chain.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) { eng.mws = append(eng.mws, m) }
}

// WithBackoff sets the retry backoff strategy. If not set, exponential
// backoff with jitter between Dispatch.BackoffInitial and BackoffMax is used.
func WithBackoff(b backoff.Strategy) Option {
	return func(eng *Engine) { eng.bo = b }
}

// WithTracerProvider sets a custom OTel TracerProvider for the tracing
// middleware. If not set, the global otel.GetTracerProvider() is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) { eng.tracerProvider = tp }
}

// WithMeterProvider sets a custom OTel MeterProvider for the metrics
// middleware and the observability extension.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) { eng.meterProvider = mp }
}

// Build resolves cfg, opens the store for its Mode and assembles the
// scheduler around tr. A disabled configuration yields ErrDisabled.
func Build(ctx context.Context, cfg postmaster.Config, tr transport.Transport, opts ...Option) (*Engine, error) {
	if err := cfg.Resolve(); err != nil {
		return nil, err
	}
	mode := cfg.Mode()
	if mode == postmaster.ModeDisabled {
		return nil, postmaster.ErrDisabled
	}

	eng := &Engine{
		cfg:    cfg,
		mode:   mode,
		logger: slog.Default(),
	}
	// The registry is created before options so WithExtension can use it;
	// its logger is replaced once options are applied.
	eng.extensions = ext.NewRegistry(nil)
	for _, opt := range opts {
		opt(eng)
	}
	eng.extensions.SetLogger(eng.logger)

	if eng.store == nil {
		s, err := openStore(cfg, eng.logger)
		if err != nil {
			return nil, err
		}
		eng.store = s
		eng.ownStore = true
	}
	if err := eng.store.Migrate(ctx); err != nil {
		eng.closeStore()
		return nil, fmt.Errorf("postmaster/engine: migrate store: %w", err)
	}

	eng.dlqService = dlq.NewService(eng.store, nil)
	if cfg.DLQ.Retention > 0 {
		r, err := dlq.NewRetention(eng.store, cfg.DLQ.Retention, cfg.DLQ.PurgeSchedule, eng.logger)
		if err != nil {
			eng.closeStore()
			return nil, fmt.Errorf("%w: %w", postmaster.ErrInvalidConfiguration, err)
		}
		eng.retention = r
	}

	// Register the observability metrics extension.
	var obsExt *observability.MetricsExtension
	if eng.meterProvider != nil {
		obsExt = observability.NewMetricsExtensionWithMeter(eng.meterProvider.Meter(instrumentationName + "/observability"))
	} else {
		obsExt = observability.NewMetricsExtension()
	}
	eng.extensions.Register(obsExt)

	schedOpts := []scheduler.Option{
		scheduler.WithLogger(eng.logger),
		scheduler.WithExtensions(eng.extensions),
		scheduler.WithDLQ(eng.dlqService),
		scheduler.WithMiddleware(eng.middleware()...),
	}
	if mode.Persistent() {
		schedOpts = append(schedOpts, scheduler.WithStore(eng.store))
	}
	if eng.bo != nil {
		schedOpts = append(schedOpts, scheduler.WithBackoff(eng.bo))
	}
	sched, err := scheduler.New(cfg, tr, schedOpts...)
	if err != nil {
		eng.closeStore()
		return nil, err
	}
	eng.scheduler = sched
	eng.dlqService.SetEnqueuer(sched)

	eng.logger.Info("engine built",
		slog.String("mode", mode.String()),
		slog.Int("priority_levels", cfg.PriorityLevels),
	)
	return eng, nil
}

// middleware builds the send chain:
// recover → tracing → metrics → logging → rate limit → timeout → custom.
func (eng *Engine) middleware() []mw.Middleware {
	var tracingMw mw.Middleware
	if eng.tracerProvider != nil {
		tracingMw = mw.TracingWithTracer(eng.tracerProvider.Tracer(instrumentationName))
	} else {
		tracingMw = mw.Tracing()
	}

	var metricsMw mw.Middleware
	if eng.meterProvider != nil {
		metricsMw = mw.MetricsWithMeter(eng.meterProvider.Meter(instrumentationName))
	} else {
		metricsMw = mw.Metrics()
	}

	d := eng.cfg.Dispatch
	all := []mw.Middleware{
		mw.Recover(eng.logger),
		tracingMw,
		metricsMw,
		mw.Logging(eng.logger),
		mw.RateLimit(d.RateLimit, d.RateBurst),
		mw.Timeout(d.SendTimeout),
	}
	return append(all, eng.mws...)
}

// Start recovers stored overflow, starts the scheduler and the DLQ
// retention sweeper.
func (eng *Engine) Start(ctx context.Context) error {
	if err := eng.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("postmaster/engine: start scheduler: %w", err)
	}
	if eng.retention != nil {
		if err := eng.retention.Start(context.WithoutCancel(ctx)); err != nil {
			if stopErr := eng.scheduler.Stop(ctx); stopErr != nil {
				eng.logger.Error("scheduler stop error", slog.String("error", stopErr.Error()))
			}
			return fmt.Errorf("postmaster/engine: start retention: %w", err)
		}
	}
	return nil
}

// Stop stops the scheduler, which flushes in-memory records to the store,
// then the retention sweeper, and finally closes an owned store.
func (eng *Engine) Stop(ctx context.Context) error {
	err := eng.scheduler.Stop(ctx)
	if err != nil {
		eng.logger.Error("scheduler stop error", slog.String("error", err.Error()))
	}
	if eng.retention != nil {
		eng.retention.Stop(ctx)
	}
	eng.closeStore()
	return err
}

func (eng *Engine) closeStore() {
	if !eng.ownStore || eng.store == nil {
		return
	}
	if err := eng.store.Close(); err != nil {
		eng.logger.Warn("failed to close store", slog.String("error", err.Error()))
	}
}

// Enqueue accepts a raw RFC 5322 message at the given priority.
func (eng *Engine) Enqueue(ctx context.Context, payload []byte, priority int) (*message.Message, error) {
	return eng.scheduler.Enqueue(ctx, payload, priority)
}

// Withdraw removes a message that has not been dispatched yet.
func (eng *Engine) Withdraw(ctx context.Context, msgID id.MessageID) error {
	return eng.scheduler.Withdraw(ctx, msgID)
}

// Stats returns scheduler counters.
func (eng *Engine) Stats() scheduler.Stats { return eng.scheduler.Stats() }

// Mode returns the resolved operating mode.
func (eng *Engine) Mode() postmaster.Mode { return eng.mode }

// Config returns the resolved configuration.
func (eng *Engine) Config() postmaster.Config { return eng.cfg }

// Ping checks store connectivity.
func (eng *Engine) Ping(ctx context.Context) error { return eng.store.Ping(ctx) }

// Extensions returns the extension registry.
func (eng *Engine) Extensions() *ext.Registry { return eng.extensions }

// Scheduler returns the underlying scheduler.
func (eng *Engine) Scheduler() *scheduler.Scheduler { return eng.scheduler }

// Store returns the store backing overflow and dead letters.
func (eng *Engine) Store() store.Store { return eng.store }

// DLQService returns the engine's DLQ service for replay and inspection.
func (eng *Engine) DLQService() *dlq.Service { return eng.dlqService }
