package config

import (
	"fmt"
	"os"
	"time"

	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Redis      RedisConfig      `yaml:"redis"`
	OrderTrack OrderTrackConfig `yaml:"ordertrack"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

func (c DatabaseConfig) ConnString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Username, c.Password, c.Host, c.Port, c.DBName, sslMode)
}

type KafkaConfig struct {
	Host                   string `yaml:"host"`
	Port                   int    `yaml:"port"`
	OrderTrackingTopicName string `yaml:"order_tracking_topic_name"`
}

func (c KafkaConfig) Brokers() []string {
	return []string{fmt.Sprintf("%s:%d", c.Host, c.Port)}
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type OrderTrackConfig struct {
	TrackerHTTPAddr    string `yaml:"tracker_http_addr"`
	JournalHTTPAddr    string `yaml:"journal_http_addr"`
	KafkaConsumerGroup string `yaml:"kafka_consumer_group"`

	// Order backend. An empty base url runs the in-memory fake backend.
	BackendBaseURL   string `yaml:"backend_base_url"`
	BackendToken     string `yaml:"backend_token"`
	BackendMode      string `yaml:"backend_mode"` // "http" | "fake"
	BackendTimeoutMs int    `yaml:"backend_timeout_ms"`

	// Poll cadence per phase. Zero falls back to the defaults
	// (confirmed 5s, courier assigned 100s, moving 2s, anything else 5s).
	PollConfirmedMs int `yaml:"poll_confirmed_ms"`
	PollAssignedMs  int `yaml:"poll_assigned_ms"`
	PollMovingMs    int `yaml:"poll_moving_ms"`
	PollDefaultMs   int `yaml:"poll_default_ms"`

	// Shared fetch budget for the order backend across all sessions, per minute.
	BackendRateLimitPerMinute int `yaml:"backend_rate_limit_per_minute"`

	ReviewPromptDelayMs    int `yaml:"review_prompt_delay_ms"`
	ReviewSettleAttempts   int `yaml:"review_settle_attempts"`
	ReviewSettleIntervalMs int `yaml:"review_settle_interval_ms"`
	ReviewCacheTTLSeconds  int `yaml:"review_cache_ttl_seconds"`
	MutationTimeoutMs      int `yaml:"mutation_timeout_ms"`
	SessionIdleTTLSeconds  int `yaml:"session_idle_ttl_seconds"`
	SessionMaxToasts       int `yaml:"session_max_toasts"`
	CurrentStateTTLSeconds int `yaml:"current_state_ttl_seconds"`
	EventSinkBuffer        int `yaml:"event_sink_buffer"`
}

func Millis(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	return &config, nil
}
