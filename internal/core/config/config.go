package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the top-level application config.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Database    DatabaseConfig    `koanf:"database"`
	Aggregation AggregationConfig `koanf:"aggregation"`
	Query       QueryConfig       `koanf:"query"`
	Categories  CategoriesConfig  `koanf:"categories"`
}

type ServerConfig struct {
	Port int    `koanf:"port"`
	Host string `koanf:"host"`
	Mode string `koanf:"mode"` // debug | release
}

type DatabaseConfig struct {
	DSN          string `koanf:"dsn"`
	MaxOpenConns int    `koanf:"max_open_conns"`
	MaxIdleConns int    `koanf:"max_idle_conns"`
	AutoMigrate  bool   `koanf:"auto_migrate"`
}

type AggregationConfig struct {
	Enabled         bool   `koanf:"enabled"`
	RefreshInterval string `koanf:"refresh_interval"` // parsed and validated on startup
	PartitionPrefix string `koanf:"partition_prefix"`
	SamplePerYear   int    `koanf:"sample_per_year"`
	SampleSeed      int64  `koanf:"sample_seed"` // 0 means the built-in default seed
	WorkerCount     int    `koanf:"worker_count"`
}

type QueryConfig struct {
	RenderCap     int   `koanf:"render_cap"`
	RenderSeed    int64 `koanf:"render_seed"` // 0 means the built-in default seed
	TopTypesLimit int   `koanf:"top_types_limit"`
}

type CategoriesConfig struct {
	AliasFile string `koanf:"alias_file"`
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d (must be 1-65535)", c.Server.Port)
	}
	if strings.TrimSpace(c.Server.Host) == "" {
		return fmt.Errorf("server.host is required")
	}
	if c.Server.Mode != "debug" && c.Server.Mode != "release" {
		return fmt.Errorf("invalid server.mode %q (must be debug or release)", c.Server.Mode)
	}

	if strings.TrimSpace(c.Database.DSN) == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be > 0")
	}
	if c.Database.MaxIdleConns <= 0 {
		return fmt.Errorf("database.max_idle_conns must be > 0")
	}

	if strings.TrimSpace(c.Aggregation.PartitionPrefix) == "" {
		return fmt.Errorf("aggregation.partition_prefix is required")
	}
	if c.Aggregation.SamplePerYear <= 0 {
		return fmt.Errorf("aggregation.sample_per_year must be > 0")
	}
	if c.Aggregation.WorkerCount <= 0 {
		return fmt.Errorf("aggregation.worker_count must be > 0")
	}
	if c.Aggregation.Enabled {
		interval, err := time.ParseDuration(c.Aggregation.RefreshInterval)
		if err != nil {
			return fmt.Errorf("invalid aggregation.refresh_interval %q: %w", c.Aggregation.RefreshInterval, err)
		}
		if interval <= 0 {
			return fmt.Errorf("aggregation.refresh_interval must be > 0")
		}
	}

	if c.Query.RenderCap <= 0 {
		return fmt.Errorf("query.render_cap must be > 0")
	}
	if c.Query.TopTypesLimit <= 0 {
		return fmt.Errorf("query.top_types_limit must be > 0")
	}

	return nil
}

// Interval returns the parsed periodic refresh interval.
// Only meaningful when aggregation is enabled; Validate has already checked
// the value parses.
func (c AggregationConfig) Interval() time.Duration {
	d, err := time.ParseDuration(c.RefreshInterval)
	if err != nil {
		return 24 * time.Hour
	}
	return d
}

// Load parses config from defaults + file + env, then validates it.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"server.port":                  8080,
		"server.host":                  "0.0.0.0",
		"server.mode":                  "release",
		"database.dsn":                 "postgres://localhost:5432/crimelens?sslmode=disable",
		"database.max_open_conns":      25,
		"database.max_idle_conns":      25,
		"database.auto_migrate":        true,
		"aggregation.enabled":          false,
		"aggregation.refresh_interval": "24h",
		"aggregation.partition_prefix": "incidents_",
		"aggregation.sample_per_year":  30000,
		"aggregation.sample_seed":      42,
		"aggregation.worker_count":     4,
		"query.render_cap":             200000,
		"query.render_seed":            42,
		"query.top_types_limit":        10,
		"categories.alias_file":        "",
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider("CRIMELENS_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "CRIMELENS_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
