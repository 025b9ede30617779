package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Alerting   AlertingConfig   `mapstructure:"alerting"`
	Delivery   DeliveryConfig   `mapstructure:"delivery"`
	Sources    SourcesConfig    `mapstructure:"sources"`
	Onboarding OnboardingConfig `mapstructure:"onboarding"`
	WebSocket  WebSocketConfig  `mapstructure:"websocket"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Path           string `mapstructure:"path"`
	MigrationsPath string `mapstructure:"migrations_path"`
	MaxConnections int    `mapstructure:"max_connections"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SchedulerConfig drives the periodic evaluation engine
type SchedulerConfig struct {
	Interval        string        `mapstructure:"interval"`
	Workers         int           `mapstructure:"workers"`
	FetchTimeout    string        `mapstructure:"fetch_timeout"`
	CycleDeadline   string        `mapstructure:"cycle_deadline"`
	RetentionWindow string        `mapstructure:"retention_window"`
	SourceBreaker   BreakerConfig `mapstructure:"source_breaker"`
}

// BreakerConfig configures a circuit breaker threshold and cooldown
type BreakerConfig struct {
	MaxFailures int    `mapstructure:"max_failures"`
	Cooldown    string `mapstructure:"cooldown"`
}

// AlertingConfig holds rule loading and flap-suppression defaults. The dedup
// parameters are deliberately configuration-driven; the defaults below are
// documented in configs/config.yaml.
type AlertingConfig struct {
	RulesPath                  string              `mapstructure:"rules_path"`
	DefaultRenotifyInterval    string              `mapstructure:"default_renotify_interval"`
	DefaultEvaluationWindow    string              `mapstructure:"default_evaluation_window"`
	DefaultConsecutiveBreaches int                 `mapstructure:"default_consecutive_breaches"`
	Suppressions               []SuppressionWindow `mapstructure:"suppressions"`
}

// SuppressionWindow is an operator-defined window during which matching
// alerts are raised and audited but not notified
type SuppressionWindow struct {
	RuleIDs     []string `mapstructure:"rule_ids"`
	ResourceIDs []string `mapstructure:"resource_ids"`
	Start       string   `mapstructure:"start"`
	End         string   `mapstructure:"end"`
	Reason      string   `mapstructure:"reason"`
}

type DeliveryConfig struct {
	RetryBaseDelay   string               `mapstructure:"retry_base_delay"`
	RetryMaxAttempts int                  `mapstructure:"retry_max_attempts"`
	Breaker          BreakerConfig        `mapstructure:"breaker"`
	Email            EmailChannelConfig   `mapstructure:"email"`
	Slack            WebhookChannelConfig `mapstructure:"slack"`
	Teams            WebhookChannelConfig `mapstructure:"teams"`
	Webhook          WebhookChannelConfig `mapstructure:"webhook"`
	Fallback         WebhookChannelConfig `mapstructure:"fallback"`
}

type EmailChannelConfig struct {
	Enabled    bool     `mapstructure:"enabled"`
	From       string   `mapstructure:"from"`
	Recipients []string `mapstructure:"recipients"`
	SMTPHost   string   `mapstructure:"smtp_host"`
	SMTPPort   int      `mapstructure:"smtp_port"`
	Username   string   `mapstructure:"username"`
	Password   string   `mapstructure:"password"`
}

type WebhookChannelConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

type SourcesConfig struct {
	AWS        AWSSourceConfig        `mapstructure:"aws"`
	Prometheus PrometheusSourceConfig `mapstructure:"prometheus"`
	Local      LocalSourceConfig      `mapstructure:"local"`
}

type AWSSourceConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Region    string `mapstructure:"region"`
	Namespace string `mapstructure:"namespace"`
	Period    int    `mapstructure:"period"`
}

type PrometheusSourceConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Step    string `mapstructure:"step"`
}

type LocalSourceConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type OnboardingConfig struct {
	Enabled             bool   `mapstructure:"enabled"`
	Schedule            string `mapstructure:"schedule"`
	AWSDiscovery        bool   `mapstructure:"aws_discovery"`
	PrometheusDiscovery bool   `mapstructure:"prometheus_discovery"`
	LocalDiscovery      bool   `mapstructure:"local_discovery"`
}

type WebSocketConfig struct {
	PingInterval int `mapstructure:"ping_interval"`
	PongTimeout  int `mapstructure:"pong_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

// Load reads configuration from configs/config.yaml with env overrides
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	viper.AutomaticEnv()

	// Override specific values from env
	viper.BindEnv("server.port", "PORT")
	viper.BindEnv("database.path", "DATABASE_PATH")
	viper.BindEnv("logging.level", "LOG_LEVEL")
	viper.BindEnv("sources.aws.region", "AWS_REGION")
	viper.BindEnv("sources.prometheus.url", "PROMETHEUS_URL")
	viper.BindEnv("delivery.email.username", "SMTP_USERNAME")
	viper.BindEnv("delivery.email.password", "SMTP_PASSWORD")
	viper.BindEnv("delivery.slack.url", "SLACK_WEBHOOK_URL")
	viper.BindEnv("delivery.teams.url", "TEAMS_WEBHOOK_URL")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// No config file found, rely on defaults and env
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.mode", "development")

	viper.SetDefault("database.path", "./data/sentinel.db")
	viper.SetDefault("database.migrations_path", "./migrations")
	viper.SetDefault("database.max_connections", 25)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")

	viper.SetDefault("scheduler.interval", "30s")
	viper.SetDefault("scheduler.workers", 8)
	viper.SetDefault("scheduler.fetch_timeout", "10s")
	viper.SetDefault("scheduler.cycle_deadline", "25s")
	viper.SetDefault("scheduler.retention_window", "72h")
	viper.SetDefault("scheduler.source_breaker.max_failures", 5)
	viper.SetDefault("scheduler.source_breaker.cooldown", "5m")

	viper.SetDefault("alerting.rules_path", "./configs/rules.yaml")
	viper.SetDefault("alerting.default_renotify_interval", "15m")
	viper.SetDefault("alerting.default_evaluation_window", "5m")
	viper.SetDefault("alerting.default_consecutive_breaches", 3)

	viper.SetDefault("delivery.retry_base_delay", "2s")
	viper.SetDefault("delivery.retry_max_attempts", 5)
	viper.SetDefault("delivery.breaker.max_failures", 3)
	viper.SetDefault("delivery.breaker.cooldown", "10m")
	viper.SetDefault("delivery.email.smtp_port", 587)

	viper.SetDefault("sources.aws.region", "us-east-1")
	viper.SetDefault("sources.aws.namespace", "AWS/EC2")
	viper.SetDefault("sources.aws.period", 300)
	viper.SetDefault("sources.prometheus.step", "1m")
	viper.SetDefault("sources.local.enabled", true)

	viper.SetDefault("onboarding.enabled", true)
	viper.SetDefault("onboarding.schedule", "@every 10m")
	viper.SetDefault("onboarding.local_discovery", true)

	viper.SetDefault("websocket.ping_interval", 30)
	viper.SetDefault("websocket.pong_timeout", 60)
	viper.SetDefault("websocket.write_timeout", 10)
}

// Duration parses a duration config string with a fallback default
func Duration(value string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	return fallback
}
