package config

import (
	"net"
	"net/url"
	"strconv"
	"time"
)

const (
	RuleSourcePostgres = "postgres"
	RuleSourceFile     = "file"

	StoreErrorDefaults = "defaults"
	StoreErrorReject   = "reject"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Moderation ModerationConfig `yaml:"moderation"`
	Store      StoreConfig      `yaml:"store"`
	Policy     PolicyConfig     `yaml:"policy"`
	NATS       NATSConfig       `yaml:"nats"`
	GRPC       GRPCConfig       `yaml:"grpc"`
}

type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
}

type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Name            string        `yaml:"name"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:     "/" + d.Name,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

type RedisConfig struct {
	Addresses []string `yaml:"addresses"`
	Password  string   `yaml:"password"`
	DB        int      `yaml:"db"`
	PoolSize  int      `yaml:"pool_size"`
}

type TelemetryConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	MetricsPath string `yaml:"metrics_path"`
}

// ModerationConfig controls where settings and rules come from and what
// happens when they cannot be read.
type ModerationConfig struct {
	SettingsKey  string `yaml:"settings_key"`
	RuleSource   string `yaml:"rule_source"`
	RulesFile    string `yaml:"rules_file"`
	OnStoreError string `yaml:"on_store_error"`
	CompileCache bool   `yaml:"compile_cache"`
}

type StoreConfig struct {
	CacheTTL       time.Duration        `yaml:"cache_ttl"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

type CircuitBreakerConfig struct {
	FailureThreshold      int           `yaml:"failure_threshold"`
	RecoveryProbeInterval time.Duration `yaml:"recovery_probe_interval"`
}

type PolicyConfig struct {
	Enabled           bool          `yaml:"enabled"`
	BundlePath        string        `yaml:"bundle_path"`
	EvaluationTimeout time.Duration `yaml:"evaluation_timeout"`
}

type NATSConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	CheckSubject  string `yaml:"check_subject"`
	ResultSubject string `yaml:"result_subject"`
	QueueGroup    string `yaml:"queue_group"`
}

type GRPCConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8080,
			ReadTimeout:      10 * time.Second,
			WriteTimeout:     10 * time.Second,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 15 * time.Second,
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			Name:            "chatfilter",
			User:            "chatfilter",
			MaxOpenConns:    10,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Addresses: []string{"localhost:6379"},
			DB:        0,
			PoolSize:  20,
		},
		Telemetry: TelemetryConfig{
			LogLevel:    "info",
			LogFormat:   "json",
			MetricsPath: "/metrics",
		},
		Moderation: ModerationConfig{
			SettingsKey:  "chat_filter",
			RuleSource:   RuleSourcePostgres,
			RulesFile:    "rules.yaml",
			OnStoreError: StoreErrorDefaults,
			CompileCache: true,
		},
		Store: StoreConfig{
			CacheTTL: 30 * time.Second,
			CircuitBreaker: CircuitBreakerConfig{
				FailureThreshold:      5,
				RecoveryProbeInterval: 15 * time.Second,
			},
		},
		Policy: PolicyConfig{
			Enabled:           true,
			EvaluationTimeout: 50 * time.Millisecond,
		},
		NATS: NATSConfig{
			Enabled:       false,
			URL:           "nats://localhost:4222",
			CheckSubject:  "moderation.check",
			ResultSubject: "moderation.result",
			QueueGroup:    "chatfilter",
		},
		GRPC: GRPCConfig{
			Enabled: false,
			Port:    9090,
		},
	}
}
