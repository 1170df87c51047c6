package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"mercator-hq/relay/pkg/cache"
	"mercator-hq/relay/pkg/classifier"
	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/credentials"
	"mercator-hq/relay/pkg/dispatch"
	"mercator-hq/relay/pkg/events"
	"mercator-hq/relay/pkg/monitor"
	"mercator-hq/relay/pkg/notify"
	"mercator-hq/relay/pkg/providers"
	"mercator-hq/relay/pkg/registry"
	"mercator-hq/relay/pkg/relay"
	"mercator-hq/relay/pkg/routing"
	"mercator-hq/relay/pkg/server"
	"mercator-hq/relay/pkg/telemetry/health"
	"mercator-hq/relay/pkg/telemetry/logging"
	"mercator-hq/relay/pkg/telemetry/metrics"
	"mercator-hq/relay/pkg/telemetry/tracing"
)

// app is the assembled router: every component of a running relay and
// the order they are closed in.
type app struct {
	logger *logging.Logger

	metrics     *metrics.Collector
	tracer      *tracing.Tracer
	registry    *registry.Registry
	monitor     *monitor.Collector
	prober      *monitor.Prober
	credentials *credentials.Chain
	providers   *providers.Manager
	dispatcher  *dispatch.Dispatcher
	cache       *cache.Cache
	engine      *routing.Engine
	events      *events.Pipeline
	notifier    *notify.Async
	service     *relay.Service
	health      *health.Checker
	server      *server.Server

	wg       sync.WaitGroup
	closers  []func() error
	reloadMu sync.Mutex
}

// newApp builds every component from cfg. On error whatever was already
// opened is closed again.
func newApp(cfg *config.Config, logger *logging.Logger) (_ *app, err error) {
	a := &app{logger: logger}
	defer func() {
		if err != nil {
			_ = a.close()
		}
	}()

	a.metrics = metrics.NewCollector(cfg.Telemetry.Metrics, nil)

	a.tracer, err = tracing.New(cfg.Telemetry.Tracing, logger.Logger)
	if err != nil {
		return nil, err
	}
	a.onClose(func() error { return a.tracer.Shutdown(context.Background()) })

	cls, err := classifier.New(cfg.Classifier)
	if err != nil {
		return nil, fmt.Errorf("failed to build classifier: %w", err)
	}

	a.registry, err = registry.New(registry.FromConfig(cfg.Providers), logger.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build provider registry: %w", err)
	}
	a.monitor = monitor.NewCollector(cfg.Health, a.registry, a.metrics, logger.Logger)

	a.credentials, err = credentials.NewFromConfig(cfg.Credentials, logger.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open credential store: %w", err)
	}
	a.onClose(a.credentials.Close)

	a.providers = providers.NewManager(logger.Logger)
	if err := a.providers.LoadFromConfig(cfg.Providers); err != nil {
		return nil, err
	}
	a.prober = monitor.NewProber(a.monitor, a.registry, a.providers, logger.Logger)

	a.dispatcher = dispatch.New(cfg.Dispatch, cfg.Providers, dispatch.Options{
		Providers:   a.providers,
		Credentials: a.credentials,
		Recorder:    a.monitor,
		Logger:      logger.Logger,
	})

	a.cache, err = cache.New(cfg.Cache, logger.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build response cache: %w", err)
	}
	a.onClose(a.cache.Close)

	a.engine = routing.NewEngine(cfg.Routing, a.registry, logger.Logger)

	a.events, err = events.NewPipeline(cfg.Events, logger.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build event pipeline: %w", err)
	}
	a.onClose(a.events.Close)

	a.notifier = notify.NewAsync(notify.New(cfg.Notify, logger.Logger), cfg.Notify.Timeout, logger.Logger)
	a.notifier.OnDelivery(func(e notify.Escalation, err error) {
		a.metrics.RecordEscalation(e.Tier, err == nil)
	})
	a.onClose(a.notifier.Close)

	a.service, err = relay.New(relay.Options{
		Classifier: cls,
		Router:     a.engine,
		Dispatcher: a.dispatcher,
		Cache:      a.cache,
		Events:     a.events.Sink,
		Escalator:  a.notifier,
		Metrics:    a.metrics,
		Logger:     logger.Logger,
	})
	if err != nil {
		return nil, err
	}

	a.health = health.New(0)
	a.health.RegisterCheck("providers", health.ProvidersCheck(a.registry))
	if a.events.Storage != nil {
		a.health.RegisterCheck("events", health.PingCheck(a.events.Storage))
	}

	a.server, err = server.New(cfg.Server, server.Options{
		Service:   a.service,
		Providers: a.registry,
		Routing:   a.engine,
		Cache:     a.cache,
		Health:    a.health,
		Metrics:   a.metricsHandler(),
		Version:   health.NewVersionInfo(Version, GitCommit, BuildDate),

		MetricsPath: cfg.Telemetry.Metrics.Path,

		Logger: logger.Logger,
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// metricsHandler refreshes the cache size gauge before every scrape.
func (a *app) metricsHandler() http.Handler {
	if !a.metrics.Enabled() {
		return nil
	}
	h := a.metrics.Handler()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.metrics.UpdateCacheEntries(a.cache.Len())
		h.ServeHTTP(w, r)
	})
}

// start launches the background loops. They stop when ctx is done.
func (a *app) start(ctx context.Context) error {
	if err := a.events.Start(ctx); err != nil {
		return fmt.Errorf("failed to start event retention: %w", err)
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.prober.Run(ctx)
	}()
	return nil
}

// reload applies a new configuration to the running components. Classifier
// rules and the server, cache, events, notify and tracing sections keep
// their startup values.
func (a *app) reload(cfg *config.Config) {
	a.reloadMu.Lock()
	defer a.reloadMu.Unlock()

	if err := a.logger.SetLevel(cfg.Telemetry.Logging.Level); err != nil {
		a.logger.Warn("ignoring log level from reloaded config", "error", err)
	}

	// Instances first so a provider is invocable before it is routable.
	if err := a.providers.LoadFromConfig(cfg.Providers); err != nil {
		a.logger.Error("provider reload failed, keeping previous providers", "error", err)
		return
	}
	a.dispatcher.UpdateProviders(cfg.Providers)
	a.dispatcher.UpdateConfig(cfg.Dispatch)

	if err := a.registry.Replace(registry.FromConfig(cfg.Providers)); err != nil {
		a.logger.Error("registry reload failed", "error", err)
		return
	}
	ids := make([]string, len(cfg.Providers))
	for i, p := range cfg.Providers {
		ids[i] = p.ID
	}
	a.monitor.Retain(ids)

	a.engine.UpdateConfig(cfg.Routing)
	a.logger.Info("configuration applied", "providers", len(ids))
}

func (a *app) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// close releases everything in reverse order of construction. The caller
// must have stopped the server and cancelled the start context first.
func (a *app) close() error {
	a.wg.Wait()

	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// newLogger builds the process logger and installs it as the default.
func newLogger(cfg config.LoggingConfig) (*logging.Logger, error) {
	logger, err := logging.New(cfg, nil)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger.Logger)
	return logger, nil
}
