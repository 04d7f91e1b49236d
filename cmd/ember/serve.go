package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/ember/pkg/api"
	"github.com/cuemby/ember/pkg/balancer"
	"github.com/cuemby/ember/pkg/client"
	"github.com/cuemby/ember/pkg/config"
	"github.com/cuemby/ember/pkg/dispatcher"
	"github.com/cuemby/ember/pkg/events"
	"github.com/cuemby/ember/pkg/log"
	"github.com/cuemby/ember/pkg/manager"
	"github.com/cuemby/ember/pkg/metrics"
	"github.com/cuemby/ember/pkg/storage"
	"github.com/cuemby/ember/pkg/supervisor"
	"github.com/cuemby/ember/pkg/types"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Ember dispatcher",
	Long: `Run the dispatcher with its HTTP API, gRPC health service and worker
supervisor.

With raft disabled the scheduler state lives in this process and is saved
to the configured storage driver after every change. With raft enabled the
state is replicated; use --join and --token to add this node to a running
cluster instead of bootstrapping a new one.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringP("config", "c", "", "Config file (.yaml or .toml)")
	serveCmd.Flags().String("log-level", "", "Override the configured log level")
	serveCmd.Flags().String("join", "", "API address of a cluster member to join")
	serveCmd.Flags().String("token", "", "Join token issued by the cluster leader")
	serveCmd.Flags().Duration("metrics-interval", 15*time.Second, "How often pool gauges are refreshed")
}

// committer is what serve needs from either backend
type committer interface {
	dispatcher.Committer
	metrics.Source
}

func runServe(cmd *cobra.Command, args []string) error {
	cfgPath, _ := cmd.Flags().GetString("config")
	logLevel, _ := cmd.Flags().GetString("log-level")
	joinAddr, _ := cmd.Flags().GetString("join")
	token, _ := cmd.Flags().GetString("token")
	interval, _ := cmd.Flags().GetDuration("metrics-interval")

	cfg := config.Default()
	if cfgPath != "" {
		loaded, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	log.Init(log.Config{
		Level:      log.ParseLevel(cfg.Log.Level),
		JSONOutput: cfg.Log.JSON,
	})

	schedCfg, err := cfg.BalancerConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Println("Starting Ember...")
	fmt.Printf("  Policy: %s\n", cfg.Scheduler.Policy)
	fmt.Printf("  HTTP Address: %s\n", cfg.API.HTTPAddr)
	fmt.Printf("  gRPC Address: %s\n", cfg.API.GRPCAddr)
	fmt.Println()

	var (
		backend committer
		mgr     *manager.Manager
		local   *dispatcher.Local
		store   storage.Store
	)

	if cfg.Raft.Enabled {
		mgr, err = startManager(ctx, cfg, schedCfg, joinAddr, token)
		if err != nil {
			return err
		}
		backend = mgr
	} else {
		store, err = storage.Open(ctx, cfg.Storage)
		if err != nil {
			return fmt.Errorf("failed to open storage: %w", err)
		}
		initial, err := dispatcher.LoadState(ctx, store, schedCfg)
		if err != nil {
			return err
		}
		local = dispatcher.NewLocal(initial, store)
		local.Start()
		backend = local
		fmt.Printf("✓ Scheduler started (storage: %s)\n", driverName(cfg.Storage.Driver))
	}

	broker := events.NewBroker()
	broker.Start()

	disp := dispatcher.New(backend,
		dispatcher.WithBroker(broker),
		dispatcher.WithMaxWeight(cfg.Scheduler.MaxTaskWeight),
	)
	if err := registerWorkers(ctx, disp, cfg, mgr); err != nil {
		return err
	}

	sup := supervisor.New(disp)
	if err := sup.WatchConfigured(cfg); err != nil {
		return err
	}
	sup.Start(ctx)
	fmt.Printf("✓ Supervisor started (%d probes)\n", len(sup.Watched()))

	healthChecker := metrics.NewHealthChecker(Version, "workers")
	var raftSource metrics.RaftSource
	if mgr != nil {
		raftSource = mgr
	}
	collector := metrics.NewCollector(backend, raftSource, healthChecker, interval)
	collector.Start()

	opts := []api.Option{
		api.WithBroker(broker),
		api.WithHealthChecker(healthChecker),
		api.WithCORS(cfg.API.CORSOrigins...),
		api.WithRateLimit(cfg.API.RateLimit.RequestsPerSecond, cfg.API.RateLimit.Burst),
		api.WithAccessList(cfg.API.AllowedIPs, cfg.API.DeniedIPs),
		api.WithTrustedProxies(cfg.API.TrustedProxies),
	}
	if mgr != nil {
		opts = append(opts, api.WithCluster(mgr))
	}
	server := api.NewServer(disp, opts...)

	errCh := make(chan error, 2)
	go func() {
		if err := server.Start(cfg.API.HTTPAddr); err != nil {
			errCh <- fmt.Errorf("HTTP API error: %w", err)
		}
	}()
	if cfg.API.GRPCAddr != "" {
		go func() {
			if err := server.StartGRPC(cfg.API.GRPCAddr); err != nil {
				errCh <- fmt.Errorf("gRPC error: %w", err)
			}
		}()
	}
	go server.WatchHealth(ctx, time.Second)

	fmt.Println()
	fmt.Println("Ember is running. Press Ctrl+C to stop.")

	var runErr error
	select {
	case <-ctx.Done():
		fmt.Println("\nShutting down...")
	case runErr = <-errCh:
		fmt.Fprintf(os.Stderr, "\nError: %v\n", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("failed to shutdown API server", err)
	}
	collector.Stop()
	sup.Stop()
	broker.Stop()
	if local != nil {
		local.Stop()
	}
	if store != nil {
		if err := store.Close(); err != nil {
			log.Errorf("failed to close storage", err)
		}
	}
	if mgr != nil {
		if err := mgr.Shutdown(); err != nil {
			return fmt.Errorf("failed to shutdown: %w", err)
		}
	}

	fmt.Println("✓ Shutdown complete")
	return runErr
}

// startManager bootstraps a new cluster or joins an existing one
func startManager(ctx context.Context, cfg config.Config, schedCfg balancer.Config, joinAddr, token string) (*manager.Manager, error) {
	mgr, err := manager.NewManager(manager.Config{
		NodeID:    cfg.Raft.NodeID,
		BindAddr:  cfg.Raft.BindAddr,
		DataDir:   cfg.Raft.DataDir,
		Scheduler: schedCfg,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create manager: %w", err)
	}

	fmt.Printf("  Node ID: %s\n", cfg.Raft.NodeID)
	fmt.Printf("  Raft Address: %s\n", cfg.Raft.BindAddr)
	fmt.Printf("  Data Directory: %s\n", cfg.Raft.DataDir)

	switch {
	case joinAddr != "":
		if token == "" {
			return nil, fmt.Errorf("--token is required with --join")
		}
		if err := mgr.Start(); err != nil {
			return nil, fmt.Errorf("failed to start raft: %w", err)
		}
		c, err := client.NewClient(joinAddr)
		if err != nil {
			return nil, err
		}
		defer c.Close()

		joinCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := c.JoinCluster(joinCtx, mgr.NodeID(), mgr.Address(), token); err != nil {
			_ = mgr.Shutdown()
			return nil, fmt.Errorf("failed to join cluster: %w", err)
		}
		fmt.Printf("✓ Joined cluster via %s\n", joinAddr)
	case cfg.Raft.Bootstrap:
		if err := mgr.Bootstrap(); err != nil {
			return nil, err
		}
		fmt.Println("✓ Cluster initialized successfully")
	default:
		// Existing member restarting with its own raft state
		if err := mgr.Start(); err != nil {
			return nil, fmt.Errorf("failed to start raft: %w", err)
		}
		fmt.Println("✓ Raft started")
	}

	waitCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := mgr.WaitForLeader(waitCtx); err != nil {
		_ = mgr.Shutdown()
		return nil, err
	}
	return mgr, nil
}

// registerWorkers adds the configured pool. In a cluster only the leader
// does this; the other nodes receive the workers through the log.
func registerWorkers(ctx context.Context, d *dispatcher.Dispatcher, cfg config.Config, mgr *manager.Manager) error {
	if mgr != nil && !mgr.IsLeader() {
		return nil
	}

	added := 0
	for _, w := range cfg.Workers {
		state, err := w.InitialState()
		if err != nil {
			return fmt.Errorf("worker %s: %w", w.ID, err)
		}
		ok, err := d.EnsureWorker(ctx, types.WorkerID(w.ID), w.Environment, state)
		if err != nil {
			return fmt.Errorf("failed to register worker %s: %w", w.ID, err)
		}
		if ok {
			added++
		}
	}
	if len(cfg.Workers) > 0 {
		fmt.Printf("✓ Workers registered (%d new, %d configured)\n", added, len(cfg.Workers))
	}
	return nil
}

func driverName(d string) string {
	if d == "" {
		return config.DriverNone
	}
	return d
}
