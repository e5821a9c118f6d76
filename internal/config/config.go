package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/regionstat/internal/aggregate"
	"github.com/sells-group/regionstat/internal/classify"
)

// Config holds the full application configuration.
type Config struct {
	Log         LogConfig        `yaml:"log" mapstructure:"log"`
	Server      ServerConfig     `yaml:"server" mapstructure:"server"`
	Store       StoreConfig      `yaml:"store" mapstructure:"store"`
	Meteo       MeteoConfig      `yaml:"meteo" mapstructure:"meteo"`
	Fetch       FetchConfig      `yaml:"fetch" mapstructure:"fetch"`
	Sampling    SamplingConfig   `yaml:"sampling" mapstructure:"sampling"`
	Aggregate   AggregateConfig  `yaml:"aggregate" mapstructure:"aggregate"`
	Classify    ClassifyConfig   `yaml:"classify" mapstructure:"classify"`
	DataSources []string         `yaml:"datasources" mapstructure:"datasources"`
	Window      WindowConfig     `yaml:"window" mapstructure:"window"`
	Monitoring  MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// StoreConfig configures the refresh cycle journal.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// MeteoConfig holds Open-Meteo client settings.
type MeteoConfig struct {
	BaseURL          string  `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs      int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateLimitRPS     float64 `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps"`
	RetryAttempts    int     `yaml:"retry_attempts" mapstructure:"retry_attempts"`
	RetryBackoffMs   int     `yaml:"retry_backoff_ms" mapstructure:"retry_backoff_ms"`
	CircuitFailures  int     `yaml:"circuit_failures" mapstructure:"circuit_failures"`
	CircuitResetSecs int     `yaml:"circuit_reset_secs" mapstructure:"circuit_reset_secs"`
}

// FetchConfig controls point query batching.
type FetchConfig struct {
	BatchSize        int `yaml:"batch_size" mapstructure:"batch_size"`
	BatchPauseMs     int `yaml:"batch_pause_ms" mapstructure:"batch_pause_ms"`
	PointTimeoutSecs int `yaml:"point_timeout_secs" mapstructure:"point_timeout_secs"`
}

// SamplingConfig configures the sample planner. A zero seed draws a random one.
type SamplingConfig struct {
	Seed uint64 `yaml:"seed" mapstructure:"seed"`
}

// AggregateConfig selects the aggregation mode.
type AggregateConfig struct {
	Mode string `yaml:"mode" mapstructure:"mode"`
}

// ClassifyConfig holds the initial threshold rules.
type ClassifyConfig struct {
	DefaultColor string          `yaml:"default_color" mapstructure:"default_color"`
	Rules        []classify.Rule `yaml:"rules" mapstructure:"rules"`
}

// WindowConfig is the initial time window in hour offsets from now.
type WindowConfig struct {
	Start float64 `yaml:"start" mapstructure:"start"`
	End   float64 `yaml:"end" mapstructure:"end"`
}

// MonitoringConfig configures journal health checks and webhook alerts.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	MinRegions           int     `yaml:"min_regions" mapstructure:"min_regions"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("REGIONSTAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "regionstat.db")
	v.SetDefault("meteo.base_url", "https://api.open-meteo.com")
	v.SetDefault("meteo.timeout_secs", 30)
	v.SetDefault("meteo.rate_limit_rps", 10)
	v.SetDefault("meteo.retry_attempts", 2)
	v.SetDefault("meteo.retry_backoff_ms", 250)
	v.SetDefault("meteo.circuit_failures", 10)
	v.SetDefault("meteo.circuit_reset_secs", 30)
	v.SetDefault("fetch.batch_size", 3)
	v.SetDefault("fetch.batch_pause_ms", 100)
	v.SetDefault("fetch.point_timeout_secs", 15)
	v.SetDefault("sampling.seed", 0)
	v.SetDefault("aggregate.mode", string(aggregate.Average))
	v.SetDefault("classify.default_color", classify.DefaultColor)
	v.SetDefault("datasources", []string{"temperature_2m", "relativehumidity_2m"})
	v.SetDefault("window.start", 0)
	v.SetDefault("window.end", 168)
	v.SetDefault("monitoring.failure_rate_threshold", 0.5)
	v.SetDefault("monitoring.min_regions", 5)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.check_interval_secs", 300)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	// Rules are only seeded when the file does not mention them at all, so an
	// explicit empty list stays empty.
	if !v.IsSet("classify.rules") {
		cfg.Classify.Rules = classify.DefaultRules()
	}
	cfg.Classify.Rules = classify.Normalize(cfg.Classify.Rules)

	return &cfg, nil
}

// Validate checks the settings required by the given command.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
	case "sample", "plan":
	case "cycles":
		if c.Store.Driver == "none" {
			errs = append(errs, "store.driver must not be none")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "sqlite", "none", "":
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for postgres")
		}
	default:
		errs = append(errs, "store.driver must be sqlite, postgres or none")
	}

	if c.Fetch.BatchSize < 1 || c.Fetch.BatchSize > 64 {
		errs = append(errs, "fetch.batch_size must be between 1 and 64")
	}
	if c.Fetch.BatchPauseMs < 0 {
		errs = append(errs, "fetch.batch_pause_ms must be >= 0")
	}
	if c.Fetch.PointTimeoutSecs <= 0 {
		errs = append(errs, "fetch.point_timeout_secs must be > 0")
	}
	if c.Meteo.RateLimitRPS <= 0 {
		errs = append(errs, "meteo.rate_limit_rps must be > 0")
	}
	if _, err := aggregate.ParseMode(c.Aggregate.Mode); err != nil {
		errs = append(errs, "aggregate.mode must be one of average, min, max, median, weighted_average")
	}
	if err := classify.Validate(c.Classify.Rules); err != nil {
		errs = append(errs, "classify.rules: "+err.Error())
	}
	if len(c.DataSources) == 0 {
		errs = append(errs, "datasources must not be empty")
	}
	if c.Monitoring.FailureRateThreshold < 0 || c.Monitoring.FailureRateThreshold > 1 {
		errs = append(errs, "monitoring.failure_rate_threshold must be between 0 and 1")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
