package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Strob0t/conductor/internal/adapter/fswatch"
	cfhttp "github.com/Strob0t/conductor/internal/adapter/http"
	"github.com/Strob0t/conductor/internal/adapter/mcp"
	cfnats "github.com/Strob0t/conductor/internal/adapter/nats"
	cfotel "github.com/Strob0t/conductor/internal/adapter/otel"
	"github.com/Strob0t/conductor/internal/adapter/ws"
	"github.com/Strob0t/conductor/internal/config"
	"github.com/Strob0t/conductor/internal/domain/agent"
	"github.com/Strob0t/conductor/internal/domain/alert"
	"github.com/Strob0t/conductor/internal/domain/workflow"
	"github.com/Strob0t/conductor/internal/logger"
	"github.com/Strob0t/conductor/internal/middleware"
	"github.com/Strob0t/conductor/internal/port/agentbackend"
	"github.com/Strob0t/conductor/internal/resilience"
	"github.com/Strob0t/conductor/internal/service"
)

const idempotencyTTL = 24 * time.Hour

func newServeCommand() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the engine and its HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadFrom(configPath)
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFile, "YAML config file (optional)")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	log, logCloser := logger.New(cfg.Logging)
	slog.SetDefault(log)
	defer logCloser.Close()

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"store", cfg.Store.Driver,
		"nats", cfg.NATS.URL != "",
		"max_parallel", cfg.Scheduler.MaxParallel,
	)

	// --- Telemetry ---

	tel, err := cfotel.Init(ctx, cfg.OTEL)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			slog.Warn("otel shutdown", "error", err)
		}
	}()
	metrics, err := cfotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("otel metrics: %w", err)
	}

	// --- Infrastructure ---

	stores, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = stores.alerts.Close() }()

	var queue *cfnats.Queue
	if cfg.NATS.URL != "" {
		queue, err = cfnats.Connect(ctx, cfg.NATS.URL, cfg.NATS.Stream)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() {
			if err := queue.Drain(); err != nil {
				slog.Warn("nats drain", "error", err)
			}
		}()
	}

	snapshots, closeCache, err := openCache(ctx, cfg, queue)
	if err != nil {
		return err
	}
	defer closeCache()

	// --- Services ---

	bus := service.NewEventBus(ctx)
	defer bus.Close()

	registry := service.NewAgentRegistry(cfg.Registry)

	backends := service.NewAgentBackends(toolSettings(cfg.Bridge.Tools))
	defer backends.Close()
	if queue != nil {
		nc, ttl := queue.Conn(), cfg.NATS.RequestTTL
		backends.Use(agent.TransportNATS, func(d agent.Descriptor) (agentbackend.Backend, error) {
			return cfnats.NewAgentBackend(nc, d.ID, ttl), nil
		})
	}

	templates, err := workflow.NewRegistry(workflow.BuiltinTemplates()...)
	if err != nil {
		return fmt.Errorf("builtin templates: %w", err)
	}
	if err := reloadTemplates(templates, cfg.Templates.Dir); err != nil {
		return err
	}

	dispatcher := service.NewNotificationDispatcher(
		service.ChannelsFromConfig(cfg.Channels),
		resilience.Backoff{
			Attempts: cfg.Alerting.MaxAttempts,
			Base:     cfg.Alerting.BackoffBase,
			Max:      cfg.Alerting.BackoffMax,
		},
		cfg.Breaker,
		metrics,
	)
	engine, err := service.NewAlertEngine(stores.alerts, dispatcher, service.AlertOptions{
		DedupeSize:         cfg.Alerting.DedupeSize,
		EscalationChannels: cfg.Alerting.EscalationChannel,
		Metrics:            metrics,
	})
	if err != nil {
		return fmt.Errorf("alert engine: %w", err)
	}
	if err := engine.LoadRules(ctx, alert.DefaultRules()); err != nil {
		return fmt.Errorf("load alert rules: %w", err)
	}
	if cfg.Alerting.RulesFile != "" {
		if err := reloadRules(ctx, engine, cfg.Alerting.RulesFile); err != nil {
			return err
		}
	}

	var manager *service.WorkflowManager
	scheduler := service.NewScheduler(registry, backends, service.SchedulerOptions{
		Config:          cfg.Scheduler,
		ExpectedLatency: cfg.Registry.ExpectedLatency,
		Metrics:         metrics,
		Publish:         bus.Publish,
		OnFinish:        func(s workflow.Snapshot) { manager.StoreSnapshot(s) },
	})
	manager = service.NewWorkflowManager(templates, registry, scheduler, service.WorkflowOptions{
		Cache:          snapshots,
		CacheTTL:       cfg.Cache.TTL,
		DefaultRetries: cfg.Scheduler.MaxRetries,
	})

	history := service.NewHistory(stores.events, engine)
	hub := ws.NewHub()

	bus.Subscribe("alerts", engine.HandleEvent)
	bus.Subscribe("history", history.HandleEvent)
	bus.Subscribe("ws", hub.HandleEvent)
	if queue != nil {
		bridge := service.NewQueueBridge(queue, registry, bus.Publish, engine)
		bus.Subscribe("nats", bridge.Forward)
		stopBridge, err := bridge.Start(ctx)
		if err != nil {
			return fmt.Errorf("nats bridge: %w", err)
		}
		defer stopBridge()
	}

	registerStaticAgents(registry, cfg.Agents)

	monitor := service.NewMonitor(registry, engine, bus.Publish, cfg.Registry.HeartbeatInterval, cfg.Alerting.EscalationCheck)

	var watchTargets []fswatch.Target
	if cfg.Templates.Watch {
		watchTargets = append(watchTargets,
			fswatch.Target{
				Name: "templates",
				Path: cfg.Templates.Dir,
				Reload: func(context.Context) error {
					if err := reloadTemplates(templates, cfg.Templates.Dir); err != nil {
						return err
					}
					scheduler.Wake()
					return nil
				},
			},
			fswatch.Target{
				Name:   "alert rules",
				Path:   cfg.Alerting.RulesFile,
				Reload: func(ctx context.Context) error { return reloadRules(ctx, engine, cfg.Alerting.RulesFile) },
			},
		)
	}
	watcher := fswatch.New(watchTargets)

	// --- HTTP ---

	handlers := &cfhttp.Handlers{
		Workflows:  manager,
		Agents:     registry,
		Scheduler:  scheduler,
		Backends:   backends,
		Alerts:     engine,
		Dispatcher: dispatcher,
		History:    history,
		Publish:    bus.Publish,
		Ready: func(ctx context.Context) error {
			if err := stores.alerts.Ping(ctx); err != nil {
				return fmt.Errorf("store: %w", err)
			}
			if queue != nil && !queue.IsConnected() {
				return errors.New("nats disconnected")
			}
			return nil
		},
		Version: version,
	}

	mounts := cfhttp.Mounts{
		WS:      hub.HandleWS,
		Metrics: tel.MetricsHandler,
		API: []func(http.Handler) http.Handler{
			chimw.Timeout(cfg.Server.RequestTimeout),
			middleware.Idempotency(snapshots, idempotencyTTL),
		},
	}
	if cfg.MCP.Enabled {
		mcpServer := mcp.NewServer(mcp.ServerConfig{Name: "conductor", Version: version}, mcp.ServerDeps{
			Workflows: manager,
			Agents:    registry,
			Rules:     engine,
		})
		mounts.MCP = mcpServer.Handler()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(cfhttp.Logger)
	r.Use(chimw.Recoverer)
	r.Use(cfhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(cfotel.HTTPMiddleware(cfg.OTEL.ServiceName))
	r.Use(middleware.APIKey(cfg.Auth.APIKeyHash))
	cfhttp.MountRoutes(r, handlers, mounts)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// --- Run ---

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return scheduler.Run(gctx) })
	g.Go(func() error { return monitor.Run(gctx) })
	g.Go(func() error { return watcher.Run(gctx) })
	g.Go(func() error {
		slog.Info("starting server", "addr", srv.Addr, "auth", cfg.Auth.APIKeyHash != "", "mcp", cfg.MCP.Enabled)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server")
		hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// toolSettings turns the task type to tool map into backend factory
// settings.
func toolSettings(tools map[string]string) map[string]string {
	out := make(map[string]string, len(tools))
	for taskType, tool := range tools {
		out[agentbackend.ToolSettingPrefix+taskType] = tool
	}
	return out
}

func reloadTemplates(templates *workflow.Registry, dir string) error {
	if dir == "" {
		return nil
	}
	loaded, err := workflow.LoadFromDirectory(dir)
	if err != nil {
		return fmt.Errorf("load templates: %w", err)
	}
	if err := templates.ReplaceLoaded(loaded); err != nil {
		return fmt.Errorf("load templates: %w", err)
	}
	slog.Info("workflow templates loaded", "dir", dir, "count", len(loaded))
	return nil
}

func reloadRules(ctx context.Context, engine *service.AlertEngine, path string) error {
	rules, err := alert.LoadRulesFromFile(path)
	if err != nil {
		return err
	}
	if err := engine.PutRules(ctx, rules); err != nil {
		return fmt.Errorf("apply rule file %s: %w", path, err)
	}
	slog.Info("alert rules loaded", "file", path, "count", len(rules))
	return nil
}

func registerStaticAgents(registry *service.AgentRegistry, agents []config.Agent) {
	for _, a := range agents {
		_, _, err := registry.Register(agent.Descriptor{
			ID:           a.ID,
			Name:         a.Name,
			Capabilities: a.Capabilities,
			Transport:    agent.Transport(a.Transport),
			Endpoint:     a.Endpoint,
		})
		if err != nil {
			slog.Warn("static agent skipped", "agent_id", a.ID, "error", err)
		}
	}
}
