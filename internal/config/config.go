package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/cartridge/voxel-agent/internal/learning"
)

// EnvPrefix is prepended to every environment variable, e.g.
// VOXEL_AGENT_WORLD_ADDR.
const EnvPrefix = "VOXEL_AGENT"

// SandboxAddr selects the in-process world instead of a websocket server.
const SandboxAddr = "sandbox"

// Config holds all agent configuration
type Config struct {
	// Identity
	AgentID string `mapstructure:"agent_id"`

	// World connection
	WorldAddr   string        `mapstructure:"world_addr"`
	PlayerID    string        `mapstructure:"player_id"`
	WorldSeed   string        `mapstructure:"world_seed"`
	SandboxTick time.Duration `mapstructure:"sandbox_tick"`

	// Behavior
	Variant    string        `mapstructure:"variant"`
	Reward     string        `mapstructure:"reward"`
	Hold       time.Duration `mapstructure:"hold"`
	ChatFlavor bool          `mapstructure:"chat_flavor"`

	learning.Params `mapstructure:",squash"`

	// Persistence
	SnapshotBackend string        `mapstructure:"snapshot_backend"`
	SnapshotPath    string        `mapstructure:"snapshot_path"`
	SaveInterval    time.Duration `mapstructure:"save_interval"`
	PostgresDSN     string        `mapstructure:"postgres_dsn"`
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisKey        string        `mapstructure:"redis_key"`

	// Status fan-out
	NATSURL     string `mapstructure:"nats_url"`
	NATSSubject string `mapstructure:"nats_subject"`
	StatusAddr  string `mapstructure:"status_addr"`

	// Logging
	LogLevel string `mapstructure:"log_level"`
}

// Default returns a config with sensible defaults
func Default() *Config {
	return &Config{
		AgentID:         "agent-1",
		WorldAddr:       SandboxAddr,
		PlayerID:        "voxel-agent",
		WorldSeed:       "default",
		SandboxTick:     50 * time.Millisecond,
		Variant:         "forage",
		Reward:          "completion",
		Hold:            time.Second,
		Params:          learning.DefaultParams(),
		SnapshotBackend: "file",
		SnapshotPath:    "q-table.json",
		SaveInterval:    60 * time.Second,
		RedisAddr:       "localhost:6379",
		RedisKey:        "voxel-agent:q-table",
		NATSSubject:     "agent-status",
		StatusAddr:      ":8090",
		LogLevel:        "info",
	}
}

// NewViper returns a viper instance that knows every key with its default
// and reads overrides from VOXEL_AGENT_* environment variables.
func NewViper() *viper.Viper {
	v := viper.New()
	d := Default()
	defaults := map[string]any{
		"agent_id":         d.AgentID,
		"world_addr":       d.WorldAddr,
		"player_id":        d.PlayerID,
		"world_seed":       d.WorldSeed,
		"sandbox_tick":     d.SandboxTick,
		"variant":          d.Variant,
		"reward":           d.Reward,
		"hold":             d.Hold,
		"chat_flavor":      d.ChatFlavor,
		"learning_rate":    d.LearningRate,
		"discount":         d.Discount,
		"exploration":      d.Exploration,
		"snapshot_backend": d.SnapshotBackend,
		"snapshot_path":    d.SnapshotPath,
		"save_interval":    d.SaveInterval,
		"postgres_dsn":     d.PostgresDSN,
		"redis_addr":       d.RedisAddr,
		"redis_key":        d.RedisKey,
		"nats_url":         d.NATSURL,
		"nats_subject":     d.NATSSubject,
		"status_addr":      d.StatusAddr,
		"log_level":        d.LogLevel,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the optional config file, decodes v and validates the result.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", file, err)
		}
	}
	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// UseSandbox reports whether the agent should run against the in-process world.
func (c *Config) UseSandbox() bool {
	return c.WorldAddr == SandboxAddr
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.AgentID == "" {
		return fmt.Errorf("agent_id is required")
	}
	if !c.UseSandbox() && !strings.HasPrefix(c.WorldAddr, "ws://") && !strings.HasPrefix(c.WorldAddr, "wss://") {
		return fmt.Errorf("world_addr must be %q or a ws:// url, got %q", SandboxAddr, c.WorldAddr)
	}
	if c.PlayerID == "" {
		return fmt.Errorf("player_id is required")
	}
	if c.UseSandbox() && c.SandboxTick <= 0 {
		return fmt.Errorf("sandbox_tick must be positive")
	}
	switch c.Variant {
	case "forage", "evade":
	default:
		return fmt.Errorf("variant must be forage or evade, got %q", c.Variant)
	}
	switch c.Reward {
	case "completion", "coinflip", "evasion":
	default:
		return fmt.Errorf("reward must be completion, coinflip or evasion, got %q", c.Reward)
	}
	if c.Hold <= 0 {
		return fmt.Errorf("hold must be positive")
	}
	if err := c.Params.Validate(); err != nil {
		return err
	}
	if c.SaveInterval <= 0 {
		return fmt.Errorf("save_interval must be positive")
	}
	switch c.SnapshotBackend {
	case "file":
		if c.SnapshotPath == "" {
			return fmt.Errorf("snapshot_path is required for the file backend")
		}
	case "postgres":
		if c.PostgresDSN == "" {
			return fmt.Errorf("postgres_dsn is required for the postgres backend")
		}
	case "redis":
		if c.RedisAddr == "" || c.RedisKey == "" {
			return fmt.Errorf("redis_addr and redis_key are required for the redis backend")
		}
	default:
		return fmt.Errorf("snapshot_backend must be file, postgres or redis, got %q", c.SnapshotBackend)
	}
	if c.NATSURL != "" && c.NATSSubject == "" {
		return fmt.Errorf("nats_subject is required when nats_url is set")
	}
	return nil
}
