package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/fedbroker/fedbroker/pkg/config"
	"github.com/fedbroker/fedbroker/pkg/connectors"
	"github.com/fedbroker/fedbroker/pkg/controller"
	"github.com/fedbroker/fedbroker/pkg/federation"
	"github.com/fedbroker/fedbroker/pkg/orders"
	"github.com/fedbroker/fedbroker/pkg/plugins"
	"github.com/fedbroker/fedbroker/pkg/processors"
	"github.com/fedbroker/fedbroker/pkg/stores"
	"github.com/fedbroker/fedbroker/pkg/telemetry"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the federation broker",
		Long: `Run the federation broker for one member.

The broker loads its member identity, clouds, and peers from the config
file, repopulates active orders from the order store, starts the
reconciliation processors, and serves the federation and operational HTTP
endpoints until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := telemetry.NewLogger(cfg.Telemetry.Logging)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	telemetry.SetGlobalLevel(cfg.Telemetry.Logging.Level)
	logger = logger.With().Str("member", cfg.Member).Logger()

	metrics := telemetry.NewMetrics(cfg.Telemetry.Metrics)
	tracer, err := telemetry.NewTracer(cfg.Telemetry.Tracing, cfg.Telemetry.ServiceName, cfg.Telemetry.Environment)
	if err != nil {
		return fmt.Errorf("failed to create tracer: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("tracer shutdown failed")
		}
	}()

	var orderStore controller.OrderStore
	var store *stores.SQLiteStore
	if cfg.Store.Path != "" {
		store, err = stores.NewSQLiteStore(stores.Config{Path: cfg.Store.Path})
		if err != nil {
			return err
		}
		if err := store.Init(ctx); err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
		if err := store.Migrate(ctx); err != nil {
			return err
		}
		orderStore = store
	}

	repo := orders.NewRepository()
	tracker := orders.NewDependencyTracker()

	registry, mapper, err := buildPlugins(cfg)
	if err != nil {
		return err
	}

	client := federation.NewHTTPClient(cfg.PeerEndpoints(), cfg.Federation.Timeout, logger)
	local := connectors.NewLocalCloudConnector(repo, registry, mapper, logger, metrics)
	transitioner := controller.NewStateTransitioner(cfg.Member, repo, client, orderStore, logger, metrics)
	ctrl := controller.NewOrderController(cfg.Member, repo, tracker, transitioner, local, client, logger, metrics, tracer)

	if store != nil {
		if err := repopulate(ctx, store, repo, tracker, cfg.Member, logger); err != nil {
			return err
		}
	}

	if err := config.Watch(ctx, configPath, logger); err != nil {
		logger.Warn().Err(err).Msg("config watch disabled")
	}

	var wg sync.WaitGroup
	for _, runner := range buildRunners(cfg, repo, tracker, transitioner, local, client, logger, metrics) {
		wg.Add(1)
		go func(r *processors.Runner) {
			defer wg.Done()
			r.Run(ctx)
		}(runner)
	}

	serverErr := make(chan error, 1)
	server := buildServer(cfg, ctrl, metrics, store, logger)
	go func() {
		logger.Info().Str("address", cfg.ListenAddress).Msg("broker listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		return fmt.Errorf("http server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http server shutdown failed")
	}
	wg.Wait()
	logger.Info().Msg("broker stopped")
	return nil
}

// buildPlugins populates the plugin registry and credential mapper from
// configuration.
func buildPlugins(cfg *config.Config) (*plugins.Registry, plugins.CredentialMapper, error) {
	registry := plugins.NewRegistry()
	allTypes := []orders.ResourceType{
		orders.TypeCompute,
		orders.TypeNetwork,
		orders.TypeVolume,
		orders.TypeAttachment,
		orders.TypePublicIP,
	}

	for _, cloud := range cfg.Clouds {
		switch cloud.Driver {
		case "stub":
			stub := plugins.NewStubPlugin(cloud.ReadyAfterPolls)
			for _, typ := range allTypes {
				if err := registry.Register(cloud.Name, typ, stub); err != nil {
					return nil, nil, err
				}
			}
		default:
			return nil, nil, fmt.Errorf("unknown cloud driver %q for cloud %q", cloud.Driver, cloud.Name)
		}
	}

	mapper := &plugins.StaticCredentialMapper{
		Users: make(map[string]plugins.Credential, len(cfg.Credentials.Users)),
	}
	for user, entry := range cfg.Credentials.Users {
		mapper.Users[user] = plugins.Credential(entry)
	}
	if cfg.Credentials.Default != (config.CredentialEntry{}) {
		cred := plugins.Credential(cfg.Credentials.Default)
		mapper.Default = &cred
	}
	return registry, mapper, nil
}

// repopulate reloads persisted orders into the repository, their state
// lists, and the dependency tracker.
func repopulate(
	ctx context.Context,
	store *stores.SQLiteStore,
	repo *orders.Repository,
	tracker *orders.DependencyTracker,
	member string,
	logger zerolog.Logger,
) error {
	persisted, err := store.ReadActiveOrders(ctx)
	if err != nil {
		return fmt.Errorf("failed to repopulate orders: %w", err)
	}

	restored := 0
	for _, o := range persisted {
		list, err := repo.ListFor(o.State)
		if err != nil {
			logger.Warn().Str("order_id", o.ID).Str("state", string(o.State)).
				Msg("persisted order has no state list; skipping")
			continue
		}
		if err := repo.Put(o); err != nil {
			return err
		}
		if err := list.Add(o); err != nil {
			return err
		}
		if o.IsRequesterLocal(member) {
			tracker.Register(o)
		}
		restored++
	}

	logger.Info().Int("orders", restored).Msg("repopulated active orders")
	return nil
}

// buildRunners creates the six reconciliation loops.
func buildRunners(
	cfg *config.Config,
	repo *orders.Repository,
	tracker *orders.DependencyTracker,
	transitioner *controller.StateTransitioner,
	local *connectors.LocalCloudConnector,
	client federation.Client,
	logger zerolog.Logger,
	metrics *telemetry.Metrics,
) []*processors.Runner {
	interval := cfg.Processors.SleepInterval
	recs := []processors.Reconciler{
		processors.NewOpenProcessor(cfg.Member, local, client, transitioner, logger, metrics),
		processors.NewSpawningProcessor(cfg.Member, local, transitioner, logger),
		processors.NewFulfilledProcessor(cfg.Member, local, transitioner, logger),
		processors.NewUnableProcessor(cfg.Member, local, transitioner, logger),
		processors.NewPausingProcessor(cfg.Member, local, transitioner, logger),
		processors.NewClosedProcessor(cfg.Member, local, client, tracker, transitioner, logger, metrics),
	}

	runners := make([]*processors.Runner, 0, len(recs))
	for _, rec := range recs {
		runners = append(runners, processors.NewRunner(rec, repo, interval, logger, metrics))
	}
	return runners
}

// buildServer assembles the HTTP surface: federation endpoints, metrics,
// and health.
func buildServer(
	cfg *config.Config,
	ctrl *controller.OrderController,
	metrics *telemetry.Metrics,
	store *stores.SQLiteStore,
	logger zerolog.Logger,
) *http.Server {
	mux := http.NewServeMux()

	federation.NewProviderHandler(cfg.Member, ctrl, logger).Register(mux)
	// No method pattern: the handler enforces POST itself.
	mux.Handle("/federation/notifications", federation.NewNotificationHandler(ctrl, logger))

	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if store != nil {
			if err := store.HealthCheck(r.Context()); err != nil {
				http.Error(w, "store unhealthy", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})

	return &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
