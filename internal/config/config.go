package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
	_ "time/tzdata" // timezone names must resolve on hosts without zoneinfo

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/rewired-gh/aurorawatch/internal/models"
	"github.com/rewired-gh/aurorawatch/internal/scheduler"
)

// EnvPrefix prefixes every environment override, e.g. AURORA_WATCH_EMAIL_PASSWORD.
const EnvPrefix = "AURORA_WATCH"

// Config represents the complete application configuration
type Config struct {
	Observer  ObserverConfig  `mapstructure:"observer"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
	Source    SourceConfig    `mapstructure:"source"`
	Notifier  NotifierConfig  `mapstructure:"notifier"`
	Email     EmailConfig     `mapstructure:"email"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Map       MapConfig       `mapstructure:"map"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ObserverConfig is the fixed location aurora visibility is evaluated for
type ObserverConfig struct {
	Name      string  `mapstructure:"name"`
	Latitude  float64 `mapstructure:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `mapstructure:"longitude" validate:"gte=-180,lte=180"`
}

// MonitorConfig holds the alerting rules and schedule
type MonitorConfig struct {
	KpThreshold          float64 `mapstructure:"kp_threshold" validate:"gte=0,lte=9"`
	CooldownSeconds      int     `mapstructure:"cooldown_seconds" validate:"gte=0"`
	CheckIntervalMinutes int     `mapstructure:"check_interval_minutes" validate:"gte=1"`
	DailyReportTime      string  `mapstructure:"daily_report_time" validate:"required"`
	Timezone             string  `mapstructure:"timezone" validate:"required"`
}

// SourceConfig holds the SWPC data source configuration
type SourceConfig struct {
	URL             string        `mapstructure:"url" validate:"required,url"`
	Timeout         time.Duration `mapstructure:"timeout"`
	BreakerFailures uint32        `mapstructure:"breaker_failures"`
}

// NotifierConfig switches delivery on or off as a whole
type NotifierConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// EmailConfig holds SMTP settings
type EmailConfig struct {
	Enabled  bool     `mapstructure:"enabled"`
	SMTPHost string   `mapstructure:"smtp_host"`
	SMTPPort int      `mapstructure:"smtp_port" validate:"gte=0,lte=65535"`
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
	From     string   `mapstructure:"from" validate:"omitempty,email"`
	To       []string `mapstructure:"to" validate:"omitempty,dive,email"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	MaxRetries     int           `mapstructure:"max_retries" validate:"gte=0"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
	RatePerSec     float64       `mapstructure:"rate_per_sec" validate:"gte=0"`
}

// MapConfig controls where forecast maps are written
type MapConfig struct {
	OutputDir string `mapstructure:"output_dir" validate:"required"`
}

// SchedulerConfig bounds each scheduled run
type SchedulerConfig struct {
	JobTimeout time.Duration `mapstructure:"job_timeout"`
}

// HTTPConfig holds the status server configuration
type HTTPConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json text"`
}

// Load reads configuration from file and environment variables. A .env file
// in the working directory is loaded first; it never overrides variables
// already set. An empty path uses defaults and the environment only.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Enable environment variable override
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Unmarshal into Config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Observer defaults
	v.SetDefault("observer.name", "East Peoria, Illinois")
	v.SetDefault("observer.latitude", 40.6664)
	v.SetDefault("observer.longitude", -89.5890)

	// Monitor defaults
	v.SetDefault("monitor.kp_threshold", 4.0)
	v.SetDefault("monitor.cooldown_seconds", 3600)
	v.SetDefault("monitor.check_interval_minutes", 30)
	v.SetDefault("monitor.daily_report_time", "12:00")
	v.SetDefault("monitor.timezone", "America/Chicago")

	// Source defaults
	v.SetDefault("source.url", "https://services.swpc.noaa.gov/products/noaa-planetary-k-index.json")
	v.SetDefault("source.timeout", "10s")
	v.SetDefault("source.breaker_failures", 5)

	// Notifier defaults
	v.SetDefault("notifier.enabled", true)
	v.SetDefault("notifier.timeout", "30s")

	// Email defaults
	v.SetDefault("email.enabled", false)
	v.SetDefault("email.smtp_host", "smtp.gmail.com")
	v.SetDefault("email.smtp_port", 587)
	v.SetDefault("email.username", "")
	v.SetDefault("email.password", "")
	v.SetDefault("email.from", "")
	v.SetDefault("email.to", []string{})

	// Telegram defaults
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")
	v.SetDefault("telegram.rate_per_sec", 1.0)

	// Map defaults
	v.SetDefault("map.output_dir", "./maps")

	// Scheduler defaults
	v.SetDefault("scheduler.job_timeout", "2m")

	// HTTP defaults
	v.SetDefault("http.enabled", true)
	v.SetDefault("http.addr", ":9090")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

var validate = validator.New()

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: %s fails %q (got %v)", models.ErrInvalidInput, fe.Namespace(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
	}

	// Validate Monitor config
	if _, _, err := scheduler.ParseTimeOfDay(c.Monitor.DailyReportTime); err != nil {
		return fmt.Errorf("monitor.daily_report_time: %w", err)
	}
	if _, err := time.LoadLocation(c.Monitor.Timezone); err != nil {
		return fmt.Errorf("%w: monitor.timezone %q: %v", models.ErrInvalidInput, c.Monitor.Timezone, err)
	}

	// Validate Source config
	if c.Source.Timeout <= 0 {
		return fmt.Errorf("%w: source.timeout must be positive", models.ErrInvalidInput)
	}

	// Validate Email config
	if c.Email.Enabled {
		if c.Email.SMTPHost == "" {
			return fmt.Errorf("%w: email.smtp_host is required when email is enabled", models.ErrInvalidInput)
		}
		if c.Email.SMTPPort == 0 {
			return fmt.Errorf("%w: email.smtp_port is required when email is enabled", models.ErrInvalidInput)
		}
		if c.Email.From == "" {
			return fmt.Errorf("%w: email.from is required when email is enabled", models.ErrInvalidInput)
		}
		if len(c.Email.To) == 0 {
			return fmt.Errorf("%w: email.to must list at least one recipient when email is enabled", models.ErrInvalidInput)
		}
	}

	// Validate Telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("%w: telegram.bot_token is required when telegram is enabled", models.ErrInvalidInput)
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("%w: telegram.chat_id is required when telegram is enabled", models.ErrInvalidInput)
		}
	}

	// Validate HTTP config
	if c.HTTP.Enabled {
		if _, _, err := net.SplitHostPort(c.HTTP.Addr); err != nil {
			return fmt.Errorf("%w: http.addr %q: %v", models.ErrInvalidInput, c.HTTP.Addr, err)
		}
	}

	return nil
}

// ObserverLocation returns the validated observer.
func (c *Config) ObserverLocation() (models.ObserverLocation, error) {
	return models.NewObserverLocation(c.Observer.Name, c.Observer.Latitude, c.Observer.Longitude)
}

// Location returns the monitor timezone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Monitor.Timezone)
}

// Cooldown returns the minimum time between alerts.
func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.Monitor.CooldownSeconds) * time.Second
}

// CheckInterval returns the time between periodic checks.
func (c *Config) CheckInterval() time.Duration {
	return time.Duration(c.Monitor.CheckIntervalMinutes) * time.Minute
}
