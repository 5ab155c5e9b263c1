// Package config handles configuration loading for modsentry.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config holds the complete application configuration.
type Config struct {
	Logging    LoggingConfig    `yaml:"logging"`
	Queue      QueueConfig      `yaml:"queue"`
	Dispatcher DispatcherConfig `yaml:"dispatcher"`
	Heat       HeatConfig       `yaml:"heat"`
	Escalation EscalationConfig `yaml:"escalation"`
	Raid       RaidConfig       `yaml:"raid"`
	Intel      IntelConfig      `yaml:"intel"`
	Storage    StorageConfig    `yaml:"storage"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format" validate:"omitempty,oneof=json text"`
}

// QueueConfig holds event buffer settings.
type QueueConfig struct {
	Size int `yaml:"size" validate:"min=1"`
}

// DispatcherConfig holds dispatcher worker settings.
type DispatcherConfig struct {
	Workers      int           `yaml:"workers" validate:"min=1"`
	PollInterval time.Duration `yaml:"poll_interval"`
	ShutdownWait time.Duration `yaml:"shutdown_wait"`
}

// HeatConfig holds message-heat scoring weights and punishment thresholds.
// The weights are deployment tuning parameters, not derived constants.
type HeatConfig struct {
	Threshold float64 `yaml:"threshold" validate:"min=0"`
	Cap       float64 `yaml:"cap" validate:"min=0"`

	FirstTimeout time.Duration `yaml:"first_timeout"`
	CapTimeout   time.Duration `yaml:"cap_timeout"`
	PanicTimeout time.Duration `yaml:"panic_timeout"`
	MaxTimeout   time.Duration `yaml:"max_timeout"`

	BaseWeight            float64       `yaml:"base_weight" validate:"min=0"`
	RepetitionHighWeight  float64       `yaml:"repetition_high_weight" validate:"min=0"`
	RepetitionLowWeight   float64       `yaml:"repetition_low_weight" validate:"min=0"`
	RepetitionHighSim     float64       `yaml:"repetition_high_sim" validate:"min=0,max=1"`
	RepetitionLowSim      float64       `yaml:"repetition_low_sim" validate:"min=0,max=1"`
	EmojiWeight           float64       `yaml:"emoji_weight" validate:"min=0"`
	LengthLimit           int           `yaml:"length_limit" validate:"min=0"`
	LengthStepWeight      float64       `yaml:"length_step_weight" validate:"min=0"`
	NewlineLimit          int           `yaml:"newline_limit" validate:"min=0"`
	NewlineWeight         float64       `yaml:"newline_weight" validate:"min=0"`
	EveryoneWeight        float64       `yaml:"everyone_weight" validate:"min=0"`
	MentionWeight         float64       `yaml:"mention_weight" validate:"min=0"`
	AttachmentWeight      float64       `yaml:"attachment_weight" validate:"min=0"`
	LinkWeight            float64       `yaml:"link_weight" validate:"min=0"`
	NSFWLinkWeight        float64       `yaml:"nsfw_link_weight" validate:"min=0"`
	MaliciousLinkWeight   float64       `yaml:"malicious_link_weight" validate:"min=0"`
	InviteLinkWeight      float64       `yaml:"invite_link_weight" validate:"min=0"`
	BlacklistWordWeight   float64       `yaml:"blacklist_word_weight" validate:"min=0"`
	BlacklistLinkWeight   float64       `yaml:"blacklist_link_weight" validate:"min=0"`
	NewAccountWeight      float64       `yaml:"new_account_weight" validate:"min=0"`
	NewAccountAge         time.Duration `yaml:"new_account_age"`
	InactiveChannelAge    time.Duration `yaml:"inactive_channel_age"`
	InactiveChannelFactor float64       `yaml:"inactive_channel_factor" validate:"gt=0,max=1"`

	HistoryDepth int `yaml:"history_depth" validate:"min=0"`

	NSFWDomains      []string `yaml:"nsfw_domains"`
	MaliciousDomains []string `yaml:"malicious_domains"`
	InviteDomains    []string `yaml:"invite_domains"`
	BlacklistedWords []string `yaml:"blacklisted_words"`
	BlacklistedLinks []string `yaml:"blacklisted_links"`
}

// EscalationConfig holds escalation and panic-mode settings.
type EscalationConfig struct {
	MultiplierCap   int           `yaml:"multiplier_cap" validate:"min=1"`
	PanicRaiders    int           `yaml:"panic_raiders" validate:"min=1"`
	PanicDuration   time.Duration `yaml:"panic_duration"`
	RaiderRetention time.Duration `yaml:"raider_retention"`
}

// RaidConfig holds raid-prediction thresholds and pattern weights.
type RaidConfig struct {
	Window           time.Duration `yaml:"window"`
	MassJoinCount    int           `yaml:"mass_join_count" validate:"min=1"`
	NewAccountAge    time.Duration `yaml:"new_account_age"`
	NewAccountRatio  float64       `yaml:"new_account_ratio" validate:"min=0,max=1"`
	NoAvatarRatio    float64       `yaml:"no_avatar_ratio" validate:"min=0,max=1"`
	NameSimilarity   float64       `yaml:"name_similarity" validate:"min=0,max=1"`
	SimilarPairRatio float64       `yaml:"similar_pair_ratio" validate:"min=0,max=1"`

	MassJoinWeight   float64 `yaml:"mass_join_weight" validate:"min=0,max=1"`
	NewAccountWeight float64 `yaml:"new_account_weight" validate:"min=0,max=1"`
	NoAvatarWeight   float64 `yaml:"no_avatar_weight" validate:"min=0,max=1"`
	SimilarWeight    float64 `yaml:"similar_weight" validate:"min=0,max=1"`

	MaxCohort int `yaml:"max_cohort" validate:"min=1"`
}

// IntelConfig holds default threat-intelligence sensitivity settings.
// Per-community overrides come from the Store at runtime.
type IntelConfig struct {
	RiskThreshold    int `yaml:"risk_threshold" validate:"min=0,max=100"`
	CriticalWeight   int `yaml:"critical_weight" validate:"min=0"`
	HighWeight       int `yaml:"high_weight" validate:"min=0"`
	MediumWeight     int `yaml:"medium_weight" validate:"min=0"`
	LowWeight        int `yaml:"low_weight" validate:"min=0"`
	RecentMultiplier int `yaml:"recent_multiplier" validate:"min=0"`
	RecentDays       int `yaml:"recent_days" validate:"min=0"`
}

// StorageConfig holds storage backend settings.
type StorageConfig struct {
	Redis       RedisConfig       `yaml:"redis"`
	ClickHouse  ClickHouseConfig  `yaml:"clickhouse"`
	BatchWriter BatchWriterConfig `yaml:"batch_writer"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db" validate:"min=0"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	PoolSize     int           `yaml:"pool_size" validate:"min=0"`
	TLSEnabled   bool          `yaml:"tls_enabled"`
}

// ClickHouseConfig holds ClickHouse connection settings for the action log.
type ClickHouseConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Hosts           []string      `yaml:"hosts"`
	Database        string        `yaml:"database"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	MaxOpenConns    int           `yaml:"max_open_conns" validate:"min=0"`
	MaxIdleConns    int           `yaml:"max_idle_conns" validate:"min=0"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	TLSEnabled      bool          `yaml:"tls_enabled"`
	DialTimeout     time.Duration `yaml:"dial_timeout"`
}

// BatchWriterConfig holds action-log batch writer settings.
type BatchWriterConfig struct {
	BatchSize     int           `yaml:"batch_size" validate:"min=1"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	MaxRetries    int           `yaml:"max_retries" validate:"min=0"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
}

// KafkaConfig holds Kafka bridge settings.
type KafkaConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Brokers       []string `yaml:"brokers"`
	EventsTopic   string   `yaml:"events_topic"`
	ActionsTopic  string   `yaml:"actions_topic"`
	ConsumerGroup string   `yaml:"consumer_group"`
	MinBytes      int      `yaml:"min_bytes" validate:"min=0"`
	MaxBytes      int      `yaml:"max_bytes" validate:"min=0"`
}

// MetricsConfig holds the Prometheus endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Default returns the full default configuration.
func Default() Config {
	return Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Queue: QueueConfig{
			Size: 10000,
		},
		Dispatcher: DispatcherConfig{
			Workers:      4,
			PollInterval: 10 * time.Millisecond,
			ShutdownWait: 30 * time.Second,
		},
		Heat:       DefaultHeatConfig(),
		Escalation: DefaultEscalationConfig(),
		Raid:       DefaultRaidConfig(),
		Intel:      DefaultIntelConfig(),
		Storage: StorageConfig{
			Redis: RedisConfig{
				Addr:         "localhost:6379",
				DialTimeout:  5 * time.Second,
				ReadTimeout:  3 * time.Second,
				WriteTimeout: 3 * time.Second,
				PoolSize:     10,
			},
			ClickHouse: ClickHouseConfig{
				Hosts:           []string{"localhost:9000"},
				Database:        "modsentry",
				Username:        "default",
				MaxOpenConns:    10,
				MaxIdleConns:    5,
				ConnMaxLifetime: time.Hour,
				DialTimeout:     10 * time.Second,
			},
			BatchWriter: BatchWriterConfig{
				BatchSize:     500,
				FlushInterval: 5 * time.Second,
				MaxRetries:    3,
				RetryDelay:    time.Second,
			},
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			EventsTopic:   "platform.events",
			ActionsTopic:  "moderation.actions",
			ConsumerGroup: "modsentry",
			MinBytes:      1,
			MaxBytes:      10 << 20,
		},
		Metrics: MetricsConfig{
			Addr: ":9100",
		},
	}
}

// DefaultHeatConfig returns the default heat weights and thresholds.
func DefaultHeatConfig() HeatConfig {
	return HeatConfig{
		Threshold: 100,
		Cap:       150,

		FirstTimeout: 24 * time.Hour,
		CapTimeout:   14 * 24 * time.Hour,
		PanicTimeout: 10 * time.Minute,
		MaxTimeout:   28 * 24 * time.Hour,

		BaseWeight:            1,
		RepetitionHighWeight:  20,
		RepetitionLowWeight:   10,
		RepetitionHighSim:     0.8,
		RepetitionLowSim:      0.5,
		EmojiWeight:           2,
		LengthLimit:           1000,
		LengthStepWeight:      2,
		NewlineLimit:          10,
		NewlineWeight:         1.5,
		EveryoneWeight:        50,
		MentionWeight:         5,
		AttachmentWeight:      3,
		LinkWeight:            2,
		NSFWLinkWeight:        30,
		MaliciousLinkWeight:   40,
		InviteLinkWeight:      25,
		BlacklistWordWeight:   10,
		BlacklistLinkWeight:   50,
		NewAccountWeight:      5,
		NewAccountAge:         7 * 24 * time.Hour,
		InactiveChannelAge:    time.Hour,
		InactiveChannelFactor: 0.9,

		HistoryDepth: 5,

		InviteDomains: []string{"discord.gg", "discord.com/invite"},
	}
}

// DefaultEscalationConfig returns the default escalation settings.
func DefaultEscalationConfig() EscalationConfig {
	return EscalationConfig{
		MultiplierCap:   28,
		PanicRaiders:    3,
		PanicDuration:   10 * time.Minute,
		RaiderRetention: 24 * time.Hour,
	}
}

// DefaultRaidConfig returns the default raid-prediction settings.
func DefaultRaidConfig() RaidConfig {
	return RaidConfig{
		Window:           60 * time.Second,
		MassJoinCount:    10,
		NewAccountAge:    30 * 24 * time.Hour,
		NewAccountRatio:  0.7,
		NoAvatarRatio:    0.5,
		NameSimilarity:   0.7,
		SimilarPairRatio: 0.6,

		MassJoinWeight:   0.35,
		NewAccountWeight: 0.25,
		NoAvatarWeight:   0.15,
		SimilarWeight:    0.15,

		MaxCohort: 200,
	}
}

// DefaultIntelConfig returns the default sensitivity settings.
func DefaultIntelConfig() IntelConfig {
	return IntelConfig{
		RiskThreshold:    30,
		CriticalWeight:   40,
		HighWeight:       30,
		MediumWeight:     20,
		LowWeight:        10,
		RecentMultiplier: 5,
		RecentDays:       7,
	}
}

// Load reads configuration from the path in MODSENTRY_CONFIG, or returns
// defaults if the variable is unset. Values absent from the file keep their
// defaults.
func Load() (*Config, error) {
	cfg := Default()

	path := os.Getenv("MODSENTRY_CONFIG")
	if path == "" {
		return &cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	return &cfg, nil
}

// Validate checks the configuration for out-of-range values. Invalid
// settings are rejected here, never silently clamped at read time.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if c.Heat.Cap < c.Heat.Threshold {
		return fmt.Errorf("invalid config: heat cap %v below threshold %v", c.Heat.Cap, c.Heat.Threshold)
	}
	if c.Heat.MaxTimeout <= 0 {
		return fmt.Errorf("invalid config: max_timeout must be positive")
	}
	if sum := c.Raid.MassJoinWeight + c.Raid.NewAccountWeight + c.Raid.NoAvatarWeight + c.Raid.SimilarWeight; sum > 1.0+1e-9 {
		return fmt.Errorf("invalid config: raid pattern weights sum to %.2f, must not exceed 1", sum)
	}
	if c.Escalation.PanicDuration <= 0 {
		return fmt.Errorf("invalid config: panic_duration must be positive")
	}
	if c.Raid.Window <= 0 {
		return fmt.Errorf("invalid config: raid window must be positive")
	}

	return nil
}
