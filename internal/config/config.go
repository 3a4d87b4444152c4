package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig     `yaml:"store" mapstructure:"store"`
	Scoring    ScoringConfig   `yaml:"scoring" mapstructure:"scoring"`
	PeerGroups PeerGroupConfig `yaml:"peer_groups" mapstructure:"peer_groups"`
	Benchmarks BenchmarkConfig `yaml:"benchmarks" mapstructure:"benchmarks"`
	Log        LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	PageSize    int    `yaml:"page_size" mapstructure:"page_size"`
	BatchSize   int    `yaml:"batch_size" mapstructure:"batch_size"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ScoringConfig selects the metric version and score presentation.
type ScoringConfig struct {
	Version       string `yaml:"version" mapstructure:"version"`
	TenPointScale bool   `yaml:"ten_point_scale" mapstructure:"ten_point_scale"`
	Method        string `yaml:"method" mapstructure:"method"`
}

// PeerGroupConfig holds the minimum cohort sizes for peer group building.
type PeerGroupConfig struct {
	MinStateSize    int `yaml:"min_state_size" mapstructure:"min_state_size"`
	MinDivisionSize int `yaml:"min_division_size" mapstructure:"min_division_size"`
	MinSegmentSize  int `yaml:"min_segment_size" mapstructure:"min_segment_size"`
}

// BenchmarkConfig configures the benchmark job.
type BenchmarkConfig struct {
	CalculationDate string `yaml:"calculation_date" mapstructure:"calculation_date"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level      string `yaml:"level" mapstructure:"level"`
	Format     string `yaml:"format" mapstructure:"format"`
	File       string `yaml:"file" mapstructure:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"`
}

// legacyEnv maps config keys to the environment variables the batch
// scripts were historically driven by. The prefixed name wins when both
// are set.
var legacyEnv = map[string]string{
	"store.database_url":            "DATABASE_URL",
	"scoring.version":               "METRIC_SCORE_VERSION",
	"scoring.ten_point_scale":       "USE_TEN_POINT_SCALE",
	"peer_groups.min_state_size":    "PEER_GROUP_MIN_STATE",
	"peer_groups.min_division_size": "PEER_GROUP_MIN_DIVISION",
	"peer_groups.min_segment_size":  "PEER_GROUP_MIN_SEGMENT",
	"benchmarks.calculation_date":   "BENCHMARK_CALCULATION_DATE",
}

const envPrefix = "SUNSETWELL"

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	replacer := strings.NewReplacer(".", "_")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(replacer)
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		prefixed := envPrefix + "_" + strings.ToUpper(replacer.Replace(key))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return nil, eris.Wrapf(err, "config: bind env %s", key)
		}
	}

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.page_size", 1000)
	v.SetDefault("store.batch_size", 500)
	v.SetDefault("scoring.version", "v2")
	v.SetDefault("scoring.ten_point_scale", false)
	v.SetDefault("scoring.method", "percentile")
	v.SetDefault("peer_groups.min_state_size", 30)
	v.SetDefault("peer_groups.min_division_size", 60)
	v.SetDefault("peer_groups.min_segment_size", 20)
	v.SetDefault("benchmarks.calculation_date", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 3)

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

	return &cfg, nil
}

// Validate checks the settings every job depends on and reports all
// problems at once.
func (c *Config) Validate() error {
	var errs []string
	switch c.Store.Driver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Sprintf("store.driver must be postgres or sqlite, got %q", c.Store.Driver))
	}
	if strings.TrimSpace(c.Store.DatabaseURL) == "" {
		errs = append(errs, "store.database_url is required (or set DATABASE_URL)")
	}
	if c.Store.PageSize <= 0 || c.Store.BatchSize <= 0 {
		errs = append(errs, "store.page_size and store.batch_size must be positive")
	}
	if strings.TrimSpace(c.Scoring.Version) == "" {
		errs = append(errs, "scoring.version is required")
	}
	switch strings.ToLower(strings.TrimSpace(c.Scoring.Method)) {
	case "", "percentile", "legacy":
	default:
		errs = append(errs, fmt.Sprintf("scoring.method must be percentile or legacy, got %q", c.Scoring.Method))
	}
	pg := c.PeerGroups
	if pg.MinStateSize <= 0 || pg.MinDivisionSize <= 0 || pg.MinSegmentSize <= 0 {
		errs = append(errs, "peer_groups thresholds must be positive")
	}
	if d := c.Benchmarks.CalculationDate; d != "" {
		if _, err := time.Parse(time.DateOnly, d); err != nil {
			errs = append(errs, fmt.Sprintf("benchmarks.calculation_date %q is not YYYY-MM-DD", d))
		}
	}
	if len(errs) > 0 {
		return eris.New("config: " + strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger. When cfg.File is set,
// output is also written as JSON to a size-rotated file.
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

	if cfg.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			Compress:   true,
		}
		fileCore := zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.AddSync(rotator),
			zapCfg.Level,
		)
		logger = logger.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
			return zapcore.NewTee(c, fileCore)
		}))
	}
	zap.ReplaceGlobals(logger)

	return nil
}
