// Package config handles configuration loading and validation for the validator.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the validator.
type Config struct {
	Chain     ChainConfig     `mapstructure:"chain"`
	Subnet    SubnetConfig    `mapstructure:"subnet"`
	Challenge ChallengeConfig `mapstructure:"challenge"`
	Score     ScoreConfig     `mapstructure:"score"`
	Smoother  SmootherConfig  `mapstructure:"smoother"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Suspicion SuspicionConfig `mapstructure:"suspicion"`
	Geo       GeoConfig       `mapstructure:"geo"`
	API       APIConfig       `mapstructure:"api"`
	NewRelic  NewRelicConfig  `mapstructure:"newrelic"`
	Profiling ProfilingConfig `mapstructure:"profiling"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Log       LogConfig       `mapstructure:"log"`
}

// ChainConfig defines Subtensor node connection settings.
type ChainConfig struct {
	Endpoints []string      `mapstructure:"endpoints"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// SubnetConfig defines the netuid this validator operates on.
type SubnetConfig struct {
	NetUID uint16 `mapstructure:"netuid"`
}

// ChallengeConfig defines round/challenge timing and sampling settings.
type ChallengeConfig struct {
	RoundInterval time.Duration `mapstructure:"round_interval"`
	SampleSize    int           `mapstructure:"sample_size"`
	BlockLookback uint64        `mapstructure:"block_lookback"`
	ProbeTimeout  time.Duration `mapstructure:"probe_timeout"`
	ReplayTimeout time.Duration `mapstructure:"replay_timeout"`
	ReplayPort    int           `mapstructure:"replay_port"`
	ScopeTimeout  time.Duration `mapstructure:"scope_timeout"`
}

// ScoreConfig defines the weight constants used by the scoring engine.
type ScoreConfig struct {
	AvailabilityWeight       float64 `mapstructure:"availability_weight"`
	AvailabilityDesyncWeight float64 `mapstructure:"availability_desync_weight"`
	LatencyWeight            float64 `mapstructure:"latency_weight"`
	PerformanceWeight        float64 `mapstructure:"performance_weight"`
	ReliabilityWeight        float64 `mapstructure:"reliability_weight"`
	DistributionWeight       float64 `mapstructure:"distribution_weight"`
	IndividualWeight         float64 `mapstructure:"individual_weight"`
	TeamWeight               float64 `mapstructure:"team_weight"`
}

// SmootherConfig defines the EMA parameters for reward smoothing.
type SmootherConfig struct {
	Alpha float64 `mapstructure:"alpha"`
}

// RedisConfig defines Redis connection settings for the stats store.
type RedisConfig struct {
	URL      string `mapstructure:"url"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// SuspicionConfig defines the suspicion tracker's thresholds.
type SuspicionConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	MaxScore          int32         `mapstructure:"max_score"`
	ScoreResetTime    time.Duration `mapstructure:"score_reset_time"`
	CostIPConflict    int32         `mapstructure:"cost_ip_conflict"`
	CostChallengeFail int32         `mapstructure:"cost_challenge_fail"`
	MinPenaltyFactor  float64       `mapstructure:"min_penalty_factor"`
}

// GeoConfig defines the fallback location used by the geolocator.
type GeoConfig struct {
	FallbackCountry   string `mapstructure:"fallback_country"`
	FallbackSubregion string `mapstructure:"fallback_subregion"`
	DatabasePath      string `mapstructure:"database_path"`
}

// APIConfig defines the status/metrics HTTP surface.
type APIConfig struct {
	Enabled     bool     `mapstructure:"enabled"`
	Bind        string   `mapstructure:"bind"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// NewRelicConfig defines APM settings.
type NewRelicConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	AppName    string `mapstructure:"app_name"`
	LicenseKey string `mapstructure:"license_key"`
}

// ProfilingConfig defines the pprof debug server.
type ProfilingConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Bind    string `mapstructure:"bind"`
}

// NotifyConfig defines round-event webhook delivery.
type NotifyConfig struct {
	DiscordWebhook   string `mapstructure:"discord_webhook"`
	TelegramBotToken string `mapstructure:"telegram_bot_token"`
	TelegramChatID   string `mapstructure:"telegram_chat_id"`
}

// LogConfig defines logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// Load reads configuration from file and environment.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/subtensor-validator")
	}

	v.SetEnvPrefix("VALIDATOR")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("chain.endpoints", []string{"http://127.0.0.1:9944"})
	v.SetDefault("chain.timeout", "10s")

	v.SetDefault("subnet.netuid", 1)

	v.SetDefault("challenge.round_interval", "5m")
	v.SetDefault("challenge.sample_size", 32)
	v.SetDefault("challenge.block_lookback", 256)
	v.SetDefault("challenge.probe_timeout", "5s")
	v.SetDefault("challenge.replay_timeout", "10s")
	v.SetDefault("challenge.replay_port", 9944)
	v.SetDefault("challenge.scope_timeout", "5s")

	// Weight defaults mirror the in-sync case: availability=8, latency=7,
	// performance=7, reliability=3, distribution=2.
	v.SetDefault("score.availability_weight", 8.0)
	v.SetDefault("score.availability_desync_weight", 3.0)
	v.SetDefault("score.latency_weight", 7.0)
	v.SetDefault("score.performance_weight", 7.0)
	v.SetDefault("score.reliability_weight", 3.0)
	v.SetDefault("score.distribution_weight", 2.0)
	v.SetDefault("score.individual_weight", 0.6)
	v.SetDefault("score.team_weight", 0.4)

	v.SetDefault("smoother.alpha", 0.1)

	v.SetDefault("redis.url", "127.0.0.1:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("suspicion.enabled", true)
	v.SetDefault("suspicion.max_score", 100)
	v.SetDefault("suspicion.score_reset_time", "1h")
	v.SetDefault("suspicion.cost_ip_conflict", 20)
	v.SetDefault("suspicion.cost_challenge_fail", 5)
	v.SetDefault("suspicion.min_penalty_factor", 0.0)

	v.SetDefault("geo.fallback_country", "GB")
	v.SetDefault("geo.fallback_subregion", "Northern Europe")

	v.SetDefault("api.enabled", true)
	v.SetDefault("api.bind", "0.0.0.0:8080")
	v.SetDefault("api.cors_origins", []string{"*"})

	v.SetDefault("profiling.enabled", false)
	v.SetDefault("profiling.bind", "127.0.0.1:6060")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Validate checks configuration for errors.
func (c *Config) Validate() error {
	if len(c.Chain.Endpoints) == 0 {
		return fmt.Errorf("chain.endpoints is required")
	}

	if c.Challenge.SampleSize <= 0 {
		return fmt.Errorf("challenge.sample_size must be positive")
	}

	if c.Smoother.Alpha <= 0 || c.Smoother.Alpha > 1 {
		return fmt.Errorf("smoother.alpha must be in (0, 1]")
	}

	if c.Score.IndividualWeight+c.Score.TeamWeight != 1.0 {
		return fmt.Errorf("score.individual_weight + score.team_weight must equal 1.0")
	}

	return nil
}
