package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Harvester HarvesterConfig `mapstructure:"harvester"`
	Sources   []SourceConfig  `mapstructure:"sources"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// HarvesterConfig holds the pipeline-wide knobs.
type HarvesterConfig struct {
	DataDir         string `mapstructure:"data_dir"`
	ImagesDir       string `mapstructure:"images_dir"`
	SnapshotFile    string `mapstructure:"snapshot_file"`
	APIEndpoint     string `mapstructure:"api_endpoint"`
	ChunkSize       int    `mapstructure:"chunk_size"`
	IntervalHours   int    `mapstructure:"interval_hours"`
	ScrollStability int    `mapstructure:"scroll_stability"`
	Timeout         int    `mapstructure:"timeout"`
	ImageTimeout    int    `mapstructure:"image_timeout"`
	MaxImageRetries int    `mapstructure:"max_image_retries"`
}

// SourceConfig describes one retail site. Kind selects the adapter:
// "dom" (rendered listing, incremental reveal), "api" (paginated JSON),
// "session" (paginated JSON behind a cookie-priming step).
type SourceConfig struct {
	Name                 string            `mapstructure:"name"`
	Kind                 string            `mapstructure:"kind"`
	BaseURL              string            `mapstructure:"base_url"`
	URLs                 []string          `mapstructure:"urls"`
	APIURL               string            `mapstructure:"api_url"`
	PrimeURL             string            `mapstructure:"prime_url"`
	PageSize             int               `mapstructure:"page_size"`
	PageParam            string            `mapstructure:"page_param"`
	QueryParams          map[string]string `mapstructure:"query_params"`
	Headers              map[string]string `mapstructure:"headers"`
	CookieHeaders        map[string]string `mapstructure:"cookie_headers"`
	Selectors            SelectorConfig    `mapstructure:"selectors"`
	MaxRequestsPerSecond int               `mapstructure:"max_requests_per_second"`
}

// SelectorConfig holds the CSS selectors a DOM source is parsed with. These
// are the replaceable, per-site part of the system.
type SelectorConfig struct {
	Card          string `mapstructure:"card"`
	Title         string `mapstructure:"title"`
	Link          string `mapstructure:"link"`
	Image         string `mapstructure:"image"`
	Price         string `mapstructure:"price"`
	OriginalPrice string `mapstructure:"original_price"`
}

// DatabaseConfig holds the optional Postgres mirror. The mirror is enabled
// only when Host is non-empty.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

// Enabled reports whether the Postgres mirror should be wired.
func (d DatabaseConfig) Enabled() bool {
	return d.Host != ""
}

// RedisConfig holds the optional publish retry queue. The queue is enabled
// only when Host is non-empty.
type RedisConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	Password      string `mapstructure:"password"`
	Database      int    `mapstructure:"database"`
	ConsumerGroup string `mapstructure:"consumer_group"`
}

// Enabled reports whether the retry queue should be wired.
func (r RedisConfig) Enabled() bool {
	return r.Host != ""
}

// MetricsConfig holds the optional Prometheus exposition address.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// Load loads configuration from YAML file with environment variable overrides
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil, fmt.Errorf("config.yaml file not found in current directory")
		}
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks the parts of the config the pipeline cannot run without.
func (c *Config) Validate() error {
	if c.Harvester.APIEndpoint == "" {
		return fmt.Errorf("harvester.api_endpoint must be set")
	}
	if c.Harvester.ChunkSize <= 0 {
		return fmt.Errorf("harvester.chunk_size must be positive")
	}
	if c.Harvester.ScrollStability <= 0 {
		return fmt.Errorf("harvester.scroll_stability must be positive")
	}
	if len(c.Sources) == 0 {
		return fmt.Errorf("at least one source must be configured")
	}
	seen := make(map[string]struct{}, len(c.Sources))
	for i, src := range c.Sources {
		if src.Name == "" {
			return fmt.Errorf("sources[%d]: name must be set", i)
		}
		if _, dup := seen[src.Name]; dup {
			return fmt.Errorf("sources[%d]: duplicate source name %q", i, src.Name)
		}
		seen[src.Name] = struct{}{}
		switch src.Kind {
		case "dom":
			if len(src.URLs) == 0 {
				return fmt.Errorf("source %s: dom sources need at least one url", src.Name)
			}
		case "api", "session":
			if src.APIURL == "" {
				return fmt.Errorf("source %s: %s sources need api_url", src.Name, src.Kind)
			}
		default:
			return fmt.Errorf("source %s: unknown kind %q", src.Name, src.Kind)
		}
		if src.BaseURL == "" {
			return fmt.Errorf("source %s: base_url must be set", src.Name)
		}
	}
	return nil
}

func setDefaults() {
	viper.SetDefault("harvester.data_dir", "./data")
	viper.SetDefault("harvester.images_dir", "./data/images")
	viper.SetDefault("harvester.snapshot_file", "./data/discounts.json")
	viper.SetDefault("harvester.api_endpoint", "http://localhost:8000/api")
	viper.SetDefault("harvester.chunk_size", 100)
	viper.SetDefault("harvester.interval_hours", 6)
	viper.SetDefault("harvester.scroll_stability", 5)
	viper.SetDefault("harvester.timeout", 60)
	viper.SetDefault("harvester.image_timeout", 15)
	viper.SetDefault("harvester.max_image_retries", 3)

	viper.SetDefault("database.host", "")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.name", "discounts")
	viper.SetDefault("database.user", "discounts_user")
	viper.SetDefault("database.password", "")

	viper.SetDefault("redis.host", "")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.database", 0)
	viper.SetDefault("redis.consumer_group", "harvester_consumer")

	viper.SetDefault("metrics.addr", "")
}
