// Package config loads runtime settings from an optional YAML file and
// SANDWICH_* environment variables.
package config

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"sandwich-scan/internal/retry"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "SANDWICH"

type Config struct {
	ChainID    int64            `mapstructure:"chain_id"`
	Log        LogConfig        `mapstructure:"log"`
	Postgres   PostgresConfig   `mapstructure:"postgres"`
	ClickHouse ClickHouseConfig `mapstructure:"clickhouse"`
	Redis      RedisConfig      `mapstructure:"redis"`
	RPC        RPCConfig        `mapstructure:"rpc"`
	Ingestion  IngestionConfig  `mapstructure:"ingestion"`
	Activity   ActivityConfig   `mapstructure:"activity"`
	Detection  DetectionConfig  `mapstructure:"detection"`
	Valuation  ValuationConfig  `mapstructure:"valuation"`
	Retry      RetryConfig      `mapstructure:"retry"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Schedule   ScheduleConfig   `mapstructure:"schedule"`
	Report     ReportConfig     `mapstructure:"report"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Format      string `mapstructure:"format"` // console | json
	Sampling    bool   `mapstructure:"sampling"`
	Development bool   `mapstructure:"development"`
}

type PostgresConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

type ClickHouseConfig struct {
	DSN string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"` // empty disables the shared price cache
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	PriceTTL time.Duration `mapstructure:"price_ttl"`
}

type RPCConfig struct {
	URLs    map[string]string `mapstructure:"urls"` // chain id -> node URL
	Timeout time.Duration     `mapstructure:"timeout"`
}

// URL returns the node URL configured for a chain, or "".
func (c RPCConfig) URL(chainID int64) string {
	return c.URLs[strconv.FormatInt(chainID, 10)]
}

type IngestionConfig struct {
	Source      string `mapstructure:"source"` // clickhouse | rpc
	ChunkBlocks int64  `mapstructure:"chunk_blocks"`
	BatchSize   int    `mapstructure:"batch_size"`
}

type ActivityConfig struct {
	MinScore int64 `mapstructure:"min_score"`
}

type DetectionConfig struct {
	Engine           string `mapstructure:"engine"` // sql | matcher
	WindowSize       int64  `mapstructure:"window_size"`
	WindowOverlap    int64  `mapstructure:"window_overlap"`
	MaxBlockGap      int64  `mapstructure:"max_block_gap"`
	MinVictimBaseRaw string `mapstructure:"min_victim_base_raw"`
	Workers          int    `mapstructure:"workers"`
	Confirmations    int64  `mapstructure:"confirmations"`
	InsertChunkSize  int    `mapstructure:"insert_chunk_size"`
	DetectedBy       string `mapstructure:"detected_by"`
}

// MinVictim parses MinVictimBaseRaw. Empty means zero.
func (c DetectionConfig) MinVictim() (*big.Int, error) {
	if c.MinVictimBaseRaw == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(c.MinVictimBaseRaw, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("detection.min_victim_base_raw %q: not a non-negative integer", c.MinVictimBaseRaw)
	}
	return v, nil
}

type ValuationConfig struct {
	BatchSize int `mapstructure:"batch_size"`
	Workers   int `mapstructure:"workers"`
}

type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	Multiplier  float64       `mapstructure:"multiplier"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// Policy converts the section into a retry policy.
func (c RetryConfig) Policy() retry.Policy {
	return retry.Policy{
		MaxAttempts: c.MaxAttempts,
		BaseDelay:   c.BaseDelay,
		Multiplier:  c.Multiplier,
		MaxDelay:    c.MaxDelay,
	}
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

type ScheduleConfig struct {
	Pipeline string `mapstructure:"pipeline"` // cron expression with seconds
}

type ReportConfig struct {
	OutputDir string `mapstructure:"output_dir"`
	Format    string `mapstructure:"format"` // csv | markdown | both
}

// Load reads path (skipped when empty) and the environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("chain_id", 1)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.development", false)

	v.SetDefault("postgres.dsn", "postgres://localhost:5432/sandwich?sslmode=disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.max_conn_lifetime", "30m")
	v.SetDefault("clickhouse.dsn", "clickhouse://localhost:9000/default")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.price_ttl", "24h")

	v.SetDefault("rpc.urls", map[string]string{})
	v.SetDefault("rpc.timeout", "20s")

	v.SetDefault("ingestion.source", "clickhouse")
	v.SetDefault("ingestion.chunk_blocks", 10_000)
	v.SetDefault("ingestion.batch_size", 1000)

	v.SetDefault("activity.min_score", 0)

	v.SetDefault("detection.engine", "sql")
	v.SetDefault("detection.window_size", 100_000)
	v.SetDefault("detection.window_overlap", 2)
	v.SetDefault("detection.max_block_gap", 2)
	v.SetDefault("detection.min_victim_base_raw", "0")
	v.SetDefault("detection.workers", 4)
	v.SetDefault("detection.confirmations", 12)
	v.SetDefault("detection.insert_chunk_size", 1000)
	v.SetDefault("detection.detected_by", "sandwich-scan")

	v.SetDefault("valuation.batch_size", 500)
	v.SetDefault("valuation.workers", 4)

	v.SetDefault("retry.max_attempts", retry.DefaultMaxAttempts)
	v.SetDefault("retry.base_delay", retry.DefaultBaseDelay.String())
	v.SetDefault("retry.multiplier", retry.DefaultMultiplier)
	v.SetDefault("retry.max_delay", retry.DefaultMaxDelay.String())

	v.SetDefault("metrics.addr", ":8080")
	v.SetDefault("schedule.pipeline", "0 */15 * * * *")
	v.SetDefault("report.output_dir", "reports")
	v.SetDefault("report.format", "both")
}

// Validate checks cross-field constraints. An overlap smaller than the block
// gap would miss boundary triplets, so it is raised with a warning.
func (c *Config) Validate(log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}

	d := &c.Detection
	var errs []error
	if d.WindowSize <= 0 {
		errs = append(errs, errors.New("detection.window_size must be positive"))
	}
	if d.MaxBlockGap < 0 {
		errs = append(errs, errors.New("detection.max_block_gap must not be negative"))
	}
	if d.Workers < 1 {
		errs = append(errs, errors.New("detection.workers must be at least 1"))
	}
	if d.Confirmations < 0 {
		errs = append(errs, errors.New("detection.confirmations must not be negative"))
	}
	if d.Engine != "sql" && d.Engine != "matcher" {
		errs = append(errs, fmt.Errorf("detection.engine %q: want sql or matcher", d.Engine))
	}
	if _, err := d.MinVictim(); err != nil {
		errs = append(errs, err)
	}
	if c.Valuation.Workers < 1 {
		errs = append(errs, errors.New("valuation.workers must be at least 1"))
	}
	if c.Valuation.BatchSize < 1 {
		errs = append(errs, errors.New("valuation.batch_size must be at least 1"))
	}
	if c.Ingestion.Source != "clickhouse" && c.Ingestion.Source != "rpc" {
		errs = append(errs, fmt.Errorf("ingestion.source %q: want clickhouse or rpc", c.Ingestion.Source))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	if d.WindowOverlap < d.MaxBlockGap {
		log.Warn("window overlap below max block gap, raising it",
			zap.Int64("window_overlap", d.WindowOverlap),
			zap.Int64("max_block_gap", d.MaxBlockGap),
		)
		d.WindowOverlap = d.MaxBlockGap
	}
	return nil
}
