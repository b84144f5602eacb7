package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// NetworkConfig holds the per-network watcher settings. Networks are
// independent: a bad entry disables that network, never the others.
type NetworkConfig struct {
	RPCURL        string        `mapstructure:"rpc"`
	Mode          string        `mapstructure:"mode"`
	Addresses     []string      `mapstructure:"addresses"`
	StartBlock    uint64        `mapstructure:"start-block"`
	PollInterval  time.Duration `mapstructure:"poll-interval"`
	Confirmations uint64        `mapstructure:"confirmations"`
	ReorgDepth    uint64        `mapstructure:"reorg-depth"`
	ReorgWindow   int           `mapstructure:"reorg-window"`
	BatchSize     uint64        `mapstructure:"batch-size"`
	MaxRetries    int           `mapstructure:"max-retries"`
	RetryBackoff  time.Duration `mapstructure:"retry-backoff"`
}

// Validate reports why a network entry cannot be watched.
func (n NetworkConfig) Validate() error {
	if n.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	if n.Mode != "" && n.Mode != "poll" && n.Mode != "subscribe" {
		return fmt.Errorf("mode must be poll or subscribe, got %q", n.Mode)
	}
	return nil
}

// ThresholdConfig holds the alert thresholds. Zero disables a rule.
type ThresholdConfig struct {
	MaxViolations       int           `mapstructure:"max-violations"`
	MinSuccessRate      float64       `mapstructure:"min-success-rate"`
	MaxConfirmationTime time.Duration `mapstructure:"max-confirmation-time"`
	MaxReorgCount       int           `mapstructure:"max-reorg-count"`
	MinGasEfficiency    float64       `mapstructure:"min-gas-efficiency"`
}

// KafkaConfig holds the optional event stream settings.
type KafkaConfig struct {
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic-prefix"`
}

// RedisConfig holds the optional query cache settings.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// Config is the full service configuration, merged from config file,
// environment (RWASCOPE_ prefix), and flags.
type Config struct {
	Networks map[string]NetworkConfig

	PGDSN string
	Redis RedisConfig
	Kafka KafkaConfig

	ListenAddr      string
	Thresholds      ThresholdConfig
	AlertInterval   time.Duration
	ConfirmInterval time.Duration
	WebhookURL      string
	WebhookBody     string

	GasThreshold uint64
	RetainEvents int
	LogLevel     string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("RWASCOPE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	v.SetDefault("listen", ":8080")
	v.SetDefault("alert-interval", time.Minute)
	v.SetDefault("confirm-interval", 30*time.Second)
	v.SetDefault("gas-threshold", uint64(500_000))
	v.SetDefault("retain-events", 1000)
	v.SetDefault("log-level", "info")
	v.SetDefault("redis.ttl", 30*time.Second)
	v.SetDefault("thresholds.max-violations", 5)
	v.SetDefault("thresholds.min-success-rate", 95.0)
	v.SetDefault("thresholds.max-confirmation-time", 5*time.Minute)
	v.SetDefault("thresholds.max-reorg-count", 3)
	v.SetDefault("thresholds.min-gas-efficiency", 50.0)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		PGDSN:           v.GetString("pg-dsn"),
		ListenAddr:      v.GetString("listen"),
		AlertInterval:   v.GetDuration("alert-interval"),
		ConfirmInterval: v.GetDuration("confirm-interval"),
		WebhookURL:      v.GetString("webhook-url"),
		WebhookBody:     v.GetString("webhook-body"),
		GasThreshold:    v.GetUint64("gas-threshold"),
		RetainEvents:    v.GetInt("retain-events"),
		LogLevel:        v.GetString("log-level"),
	}

	if err := v.UnmarshalKey("networks", &cfg.Networks); err != nil {
		return Config{}, fmt.Errorf("parse networks: %w", err)
	}
	if err := v.UnmarshalKey("thresholds", &cfg.Thresholds); err != nil {
		return Config{}, fmt.Errorf("parse thresholds: %w", err)
	}
	if err := v.UnmarshalKey("kafka", &cfg.Kafka); err != nil {
		return Config{}, fmt.Errorf("parse kafka: %w", err)
	}
	if err := v.UnmarshalKey("redis", &cfg.Redis); err != nil {
		return Config{}, fmt.Errorf("parse redis: %w", err)
	}

	applyNetworkDefaults(cfg.Networks)
	return cfg, nil
}

func applyNetworkDefaults(networks map[string]NetworkConfig) {
	for name, n := range networks {
		if n.Mode == "" {
			n.Mode = "poll"
		}
		if n.PollInterval <= 0 {
			n.PollInterval = 12 * time.Second
		}
		if n.BatchSize == 0 {
			n.BatchSize = 100
		}
		if n.ReorgDepth == 0 {
			n.ReorgDepth = 1
		}
		if n.ReorgWindow <= 0 {
			n.ReorgWindow = 1
		}
		if n.MaxRetries == 0 {
			n.MaxRetries = 5
		}
		if n.RetryBackoff <= 0 {
			n.RetryBackoff = 500 * time.Millisecond
		}
		networks[name] = n
	}
}

// NetworkNames returns the configured network names, for components that
// need a stable list.
func (c Config) NetworkNames() []string {
	out := make([]string, 0, len(c.Networks))
	for name := range c.Networks {
		out = append(out, name)
	}
	return out
}
