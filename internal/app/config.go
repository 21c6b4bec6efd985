package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/bsudfrance/bsf-server/internal/database"
)

// Config represents the runtime configuration for the BSF backend.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Email       EmailConfig       `mapstructure:"email"`
	Events      EventsConfig      `mapstructure:"events"`
	Invitations InvitationsConfig `mapstructure:"invitations"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
	Monitoring  MonitoringConfig  `mapstructure:"monitoring"`
	Bootstrap   BootstrapConfig   `mapstructure:"bootstrap"`
}

// BootstrapConfig seeds the first SUPER_ADMIN account on an empty database.
// When AdminPassword is blank a random one is generated and logged once.
type BootstrapConfig struct {
	AdminEmail    string `mapstructure:"admin_email"`
	AdminPassword string `mapstructure:"admin_password"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port        int             `mapstructure:"port"`
	LogLevel    string          `mapstructure:"log_level"`
	BaseURL     string          `mapstructure:"base_url"`
	CORSOrigins []string        `mapstructure:"cors_origins"`
	RateLimit   RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig throttles the credential endpoints per client IP.
type RateLimitConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	MaxRequests int           `mapstructure:"max_requests"`
	Window      time.Duration `mapstructure:"window"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver   string       `mapstructure:"driver"`
	Path     string       `mapstructure:"path"`
	DSN      string       `mapstructure:"dsn"`
	Postgres DBAuthConfig `mapstructure:"postgres"`
	MySQL    DBAuthConfig `mapstructure:"mysql"`
}

// DBAuthConfig represents host based database parameters.
type DBAuthConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// AuthConfig captures session and lockout settings.
type AuthConfig struct {
	Session SessionSettings `mapstructure:"session"`
	Lockout LockoutSettings `mapstructure:"lockout"`
}

// SessionSettings configures the opaque cookie-session lifecycle.
type SessionSettings struct {
	TTL         time.Duration `mapstructure:"ttl"`
	RotateAfter time.Duration `mapstructure:"rotate_after"`
	IdleRotate  time.Duration `mapstructure:"idle_rotate"`
	TokenLength int           `mapstructure:"token_length"`
}

// LockoutSettings defines the failed-login lockout policy.
type LockoutSettings struct {
	Threshold int           `mapstructure:"threshold"`
	Duration  time.Duration `mapstructure:"duration"`
}

// EmailConfig captures outbound email settings.
type EmailConfig struct {
	SMTP SMTPConfig `mapstructure:"smtp"`
}

// SMTPConfig defines SMTP dialer settings for sending email.
type SMTPConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	From     string        `mapstructure:"from"`
	UseTLS   bool          `mapstructure:"use_tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// EventsConfig tunes event behaviour.
type EventsConfig struct {
	SelfInviteOnCreate bool `mapstructure:"self_invite_on_create"`
}

// InvitationsConfig tunes the invitation lifecycle.
type InvitationsConfig struct {
	TTL           time.Duration `mapstructure:"ttl"`
	RetentionDays int           `mapstructure:"retention_days"`
}

// MaintenanceConfig controls the background cleanup scheduler.
type MaintenanceConfig struct {
	Enabled              bool   `mapstructure:"enabled"`
	SessionSchedule      string `mapstructure:"session_schedule"`
	InvitationSchedule   string `mapstructure:"invitation_schedule"`
	SessionRetentionDays int    `mapstructure:"session_retention_days"`
}

// MonitoringConfig enables metrics endpoints.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
}

// PrometheusConfig toggles the metrics endpoint.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.NewWithOptions(viper.ExperimentalBindStruct())
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("BSF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &config, nil
}

// DatabaseSettings converts the loaded configuration into the connection
// settings the database package expects.
func (c *Config) DatabaseSettings() database.Config {
	cfg := database.Config{
		Driver: c.Database.Driver,
		Path:   c.Database.Path,
		DSN:    c.Database.DSN,
	}

	switch strings.ToLower(strings.TrimSpace(c.Database.Driver)) {
	case "postgres", "postgresql":
		cfg.Host = c.Database.Postgres.Host
		cfg.Port = c.Database.Postgres.Port
		cfg.Name = c.Database.Postgres.Database
		cfg.User = c.Database.Postgres.Username
		cfg.Password = c.Database.Postgres.Password
	case "mysql", "mariadb":
		cfg.Host = c.Database.MySQL.Host
		cfg.Port = c.Database.MySQL.Port
		cfg.Name = c.Database.MySQL.Database
		cfg.User = c.Database.MySQL.Username
		cfg.Password = c.Database.MySQL.Password
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.base_url", "http://localhost:8000")
	v.SetDefault("server.cors_origins", []string{})
	v.SetDefault("server.rate_limit.enabled", true)
	v.SetDefault("server.rate_limit.max_requests", 20)
	v.SetDefault("server.rate_limit.window", "1m")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/bsf.sqlite")

	v.SetDefault("auth.session.ttl", "168h")         // 7 days
	v.SetDefault("auth.session.rotate_after", "72h") // 3 days
	v.SetDefault("auth.session.idle_rotate", "24h")
	v.SetDefault("auth.session.token_length", 24)
	v.SetDefault("auth.lockout.threshold", 5)
	v.SetDefault("auth.lockout.duration", "15m")

	v.SetDefault("email.smtp.enabled", false)
	v.SetDefault("email.smtp.host", "")
	v.SetDefault("email.smtp.port", 587)
	v.SetDefault("email.smtp.use_tls", true)
	v.SetDefault("email.smtp.timeout", "10s")
	v.SetDefault("email.smtp.from", "no-reply@business-suddefrance.fr")

	v.SetDefault("events.self_invite_on_create", true)

	v.SetDefault("invitations.ttl", "168h") // 7 days
	v.SetDefault("invitations.retention_days", 90)

	v.SetDefault("maintenance.enabled", true)
	v.SetDefault("maintenance.session_schedule", "@hourly")
	v.SetDefault("maintenance.invitation_schedule", "@daily")
	v.SetDefault("maintenance.session_retention_days", 90)

	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.endpoint", "/metrics")

	v.SetDefault("bootstrap.admin_email", "")
	v.SetDefault("bootstrap.admin_password", "")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
