package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

type Config struct {
	Env       string `mapstructure:"PL_ENV"`
	HTTPAddr  string `mapstructure:"PL_HTTP_ADDR"`
	PublicURL string `mapstructure:"PL_PUBLIC_ORIGIN"`

	Database  DBConfig        `mapstructure:",squash"`
	Cache     CacheConfig     `mapstructure:",squash"`
	Platform  PlatformConfig  `mapstructure:",squash"`
	Staleness StalenessConfig `mapstructure:",squash"`
	Security  SecurityConfig  `mapstructure:",squash"`
}

type DBConfig struct {
	PostgresDSN string `mapstructure:"PL_POSTGRES_DSN"`
}

type CacheConfig struct {
	RedisAddr   string        `mapstructure:"PL_REDIS_ADDR"`
	SnapshotTTL time.Duration `mapstructure:"PL_SNAPSHOT_TTL"`
}

type PlatformConfig struct {
	BaseURL      string        `mapstructure:"PL_PLATFORM_URL"`
	Token        string        `mapstructure:"PL_PLATFORM_TOKEN"`
	TaskInterval time.Duration `mapstructure:"PL_PLATFORM_TASK_INTERVAL"` // Poll cadence for submitted tasks
	UseMock      bool          `mapstructure:"PL_PLATFORM_MOCK"`          // Scripted client for dev runs
}

type StalenessConfig struct {
	PollInterval      time.Duration `mapstructure:"PL_STALENESS_POLL_INTERVAL"`
	SuppressionWindow time.Duration `mapstructure:"PL_SELF_REFRESH_SUPPRESSION"`
	PruneAge          time.Duration `mapstructure:"PL_SUPPRESSION_PRUNE_AGE"`
}

type SecurityConfig struct {
	RateLimitRPM       int      `mapstructure:"PL_RATE_LIMIT_RPM"`
	CORSAllowedOrigins []string `mapstructure:"PL_CORS_ALLOWED_ORIGINS"`
}

func loadDotEnvFiles() {
	candidates := []string{
		".env",
		filepath.Join("backend", ".env"),
		filepath.Join("..", ".env"),
	}

	seen := make(map[string]struct{})
	for _, path := range candidates {
		abs := path
		if !filepath.IsAbs(path) {
			if resolved, err := filepath.Abs(path); err == nil {
				abs = resolved
			}
		}
		if _, ok := seen[abs]; ok {
			continue
		}
		seen[abs] = struct{}{}

		if _, err := os.Stat(path); err == nil {
			_ = gotenv.Load(path) // env vars already set take precedence
		}
	}
}

func Load() (*Config, error) {
	loadDotEnvFiles()

	viper.SetConfigType("env")
	viper.AutomaticEnv()

	viper.SetDefault("PL_ENV", "dev")
	viper.SetDefault("PL_HTTP_ADDR", ":8080")
	viper.SetDefault("PL_PUBLIC_ORIGIN", "http://localhost:3000")
	viper.SetDefault("PL_POSTGRES_DSN", "")
	viper.SetDefault("PL_REDIS_ADDR", "127.0.0.1:6379")
	viper.SetDefault("PL_SNAPSHOT_TTL", "10m")
	viper.SetDefault("PL_PLATFORM_URL", "")
	viper.SetDefault("PL_PLATFORM_TOKEN", "")
	viper.SetDefault("PL_PLATFORM_TASK_INTERVAL", "2s")
	viper.SetDefault("PL_PLATFORM_MOCK", false)
	viper.SetDefault("PL_STALENESS_POLL_INTERVAL", "30s")
	viper.SetDefault("PL_SELF_REFRESH_SUPPRESSION", "10s")
	viper.SetDefault("PL_SUPPRESSION_PRUNE_AGE", "60s")
	viper.SetDefault("PL_RATE_LIMIT_RPM", 120)
	viper.SetDefault("PL_CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")

	if origins := viper.GetString("PL_CORS_ALLOWED_ORIGINS"); origins != "" {
		viper.Set("PL_CORS_ALLOWED_ORIGINS", strings.Split(origins, ","))
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Env {
	case "dev", "prod":
	default:
		return fmt.Errorf("invalid PL_ENV %q (must be dev or prod)", c.Env)
	}
	if c.Staleness.PollInterval <= 0 {
		return fmt.Errorf("PL_STALENESS_POLL_INTERVAL must be positive")
	}
	if c.Staleness.SuppressionWindow <= 0 {
		return fmt.Errorf("PL_SELF_REFRESH_SUPPRESSION must be positive")
	}
	if c.Platform.TaskInterval <= 0 {
		return fmt.Errorf("PL_PLATFORM_TASK_INTERVAL must be positive")
	}
	// The platform client is required unless the scripted one is selected;
	// an empty DSN is allowed and selects the in-memory store.
	if !c.Platform.UseMock && c.Platform.BaseURL == "" {
		return fmt.Errorf("PL_PLATFORM_URL is required when PL_PLATFORM_MOCK is false")
	}
	return nil
}

func (c *Config) IsDev() bool {
	return c.Env == "dev"
}

func (c *Config) IsProd() bool {
	return c.Env == "prod"
}
