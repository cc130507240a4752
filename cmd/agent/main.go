package main

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/cartridge/voxel-agent/internal/actions"
	"github.com/cartridge/voxel-agent/internal/agent"
	"github.com/cartridge/voxel-agent/internal/config"
	"github.com/cartridge/voxel-agent/internal/events"
	"github.com/cartridge/voxel-agent/internal/executor"
	httpServer "github.com/cartridge/voxel-agent/internal/http"
	"github.com/cartridge/voxel-agent/internal/learning"
	"github.com/cartridge/voxel-agent/internal/metrics"
	"github.com/cartridge/voxel-agent/internal/persistence"
	"github.com/cartridge/voxel-agent/internal/policy"
	"github.com/cartridge/voxel-agent/internal/qtable"
	"github.com/cartridge/voxel-agent/internal/reward"
	"github.com/cartridge/voxel-agent/internal/state"
	"github.com/cartridge/voxel-agent/internal/world"
)

var (
	configFile string
	v          = config.NewViper()
)

var rootCmd = &cobra.Command{
	Use:   "voxel-agent",
	Short: "Tabular Q-learning agent for voxel worlds",
	Long: `voxel-agent joins a voxel game world (or an in-process sandbox), picks an
action every tick with an epsilon-greedy policy and learns from the outcome
of its previous action. The Q-table is restored on start and snapshotted on
an interval and on shutdown.`,
	SilenceUsage: true,
	RunE:         runAgent,
}

func init() {
	d := config.Default()
	flags := rootCmd.Flags()

	flags.StringVar(&configFile, "config", "", "Config file (yaml, json or toml)")

	// World settings
	flags.String("agent-id", d.AgentID, "Unique agent identifier")
	flags.String("world-addr", d.WorldAddr, `World websocket url, or "sandbox" for the in-process world`)
	flags.String("player-id", d.PlayerID, "Player name used when joining the world")
	flags.String("world-seed", d.WorldSeed, "World seed to join")
	flags.Duration("sandbox-tick", d.SandboxTick, "Tick interval of the sandbox world")

	// Behavior
	flags.String("variant", d.Variant, "Bot variant (forage, evade)")
	flags.String("reward", d.Reward, "Reward strategy (completion, coinflip, evasion)")
	flags.Duration("hold", d.Hold, "How long forage movement controls are held")
	flags.Bool("chat-flavor", d.ChatFlavor, "Send greeting, action and save messages to world chat")

	// Learning
	flags.Float64("learning-rate", d.LearningRate, "Learning rate alpha in (0,1]")
	flags.Float64("discount", d.Discount, "Discount factor gamma in [0,1]")
	flags.Float64("exploration", d.Exploration, "Exploration rate epsilon in [0,1]")

	// Persistence
	flags.String("snapshot-backend", d.SnapshotBackend, "Snapshot backend (file, postgres, redis)")
	flags.String("snapshot-path", d.SnapshotPath, "Snapshot file for the file backend")
	flags.Duration("save-interval", d.SaveInterval, "Interval between snapshots")
	flags.String("postgres-dsn", d.PostgresDSN, "PostgreSQL DSN for the postgres backend")
	flags.String("redis-addr", d.RedisAddr, "Redis address for the redis backend")
	flags.String("redis-key", d.RedisKey, "Redis key holding the snapshot")

	// Status
	flags.String("nats-url", d.NATSURL, "NATS url for status events (empty disables)")
	flags.String("nats-subject", d.NATSSubject, "NATS subject for status events")
	flags.String("status-addr", d.StatusAddr, "Status HTTP listen address (empty disables)")

	// Logging
	flags.String("log-level", d.LogLevel, "Log level (debug, info, warn, error)")

	// Bind flags to viper so flags override environment and config file values
	flags.VisitAll(func(f *pflag.Flag) {
		if f.Name == "config" {
			return
		}
		_ = v.BindPFlag(flagKey(f.Name), f)
	})
}

func runAgent(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(v, configFile)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	logger := newLogger(cfg.LogLevel)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			logger.Info().Msg("Shutdown signal received, stopping agent")
			cancel()
		case <-ctx.Done():
		}
	}()

	logger.Info().
		Str("agent_id", cfg.AgentID).
		Str("variant", cfg.Variant).
		Str("world_addr", cfg.WorldAddr).
		Str("snapshot_backend", cfg.SnapshotBackend).
		Msg("Starting agent")

	catalog, err := actions.ForVariant(cfg.Variant)
	if err != nil {
		return err
	}
	encoder, err := state.ForVariant(cfg.Variant)
	if err != nil {
		return err
	}
	bindings, err := executor.BindingsForVariant(cfg.Variant, cfg.Hold)
	if err != nil {
		return err
	}
	rewarder, err := reward.New(cfg.Reward)
	if err != nil {
		return err
	}

	store := qtable.NewMemoryStore(catalog)
	learner, err := learning.NewLearner(store, cfg.Params)
	if err != nil {
		return err
	}
	collector := metrics.NewCollector(logger)

	publisher, closePublisher, err := newPublisher(cfg, logger)
	if err != nil {
		return err
	}
	defer closePublisher()

	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	env, err := openWorld(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer env.Close()

	scheduler := persistence.NewScheduler(store, backend, cfg.SaveInterval, cfg.AgentID, collector, publisher, logger)
	a, err := agent.New(agent.Options{
		AgentID:       cfg.AgentID,
		Variant:       cfg.Variant,
		ReactToDamage: cfg.Variant == "evade",
		Chat:          cfg.ChatFlavor,
	}, agent.Dependencies{
		Env:       env,
		Store:     store,
		Encoder:   encoder,
		Policy:    policy.NewEpsilonGreedy(store, catalog, cfg.Exploration),
		Learner:   learner,
		Rewarder:  rewarder,
		Executor:  executor.New(env, bindings, cfg.ChatFlavor, logger),
		Scheduler: scheduler,
		Metrics:   collector,
		Publisher: publisher,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create agent: %w", err)
	}

	go scheduler.Run(ctx)

	var srv *http.Server
	if cfg.StatusAddr != "" {
		srv = &http.Server{
			Addr:              cfg.StatusAddr,
			Handler:           httpServer.NewServer(a, store, scheduler, logger).Routes(),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
		}
		go func() {
			logger.Info().Str("addr", cfg.StatusAddr).Msg("Status HTTP server starting")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("Status HTTP server failed")
			}
		}()
	}

	runErr := a.Run(ctx)
	cancel()

	if srv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Graceful shutdown failed")
		}
	}

	if runErr != nil {
		return fmt.Errorf("agent stopped: %w", runErr)
	}
	logger.Info().Msg("Agent stopped gracefully")
	return nil
}

// flagKey maps a flag name to its config key, e.g. save-interval to save_interval.
func flagKey(name string) string {
	return strings.ReplaceAll(name, "-", "_")
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).Level(lvl).With().Timestamp().Str("service", "voxel-agent").Logger()
}

func newPublisher(cfg *config.Config, logger zerolog.Logger) (events.Publisher, func(), error) {
	if cfg.NATSURL == "" {
		return events.NoopPublisher{}, func() {}, nil
	}
	publisher, err := events.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubject, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to nats at %s: %w", cfg.NATSURL, err)
	}
	return publisher, publisher.Close, nil
}

func openBackend(ctx context.Context, cfg *config.Config) (persistence.Backend, error) {
	switch cfg.SnapshotBackend {
	case "postgres":
		return persistence.OpenPostgresStore(ctx, cfg.PostgresDSN, cfg.AgentID)
	case "redis":
		return persistence.OpenRedisStore(ctx, cfg.RedisAddr, cfg.RedisKey)
	default:
		return persistence.NewFileStore(cfg.SnapshotPath), nil
	}
}

func openWorld(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (world.Environment, error) {
	if !cfg.UseSandbox() {
		return world.Dial(ctx, cfg.WorldAddr, cfg.PlayerID, cfg.WorldSeed, logger)
	}
	sandboxCfg := world.DefaultSandboxConfig()
	sandboxCfg.TickInterval = cfg.SandboxTick
	sandboxCfg.Seed = seedFrom(cfg.WorldSeed)
	sandbox := world.NewSandbox(sandboxCfg)
	sandbox.Start(ctx)
	return sandbox, nil
}

func seedFrom(s string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return int64(h.Sum64() >> 1)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
