// Package app loads runtime configuration and initialises the ambient pieces
// the daemon shares across packages.
package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	iauth "github.com/propdesk/agent-console/internal/auth"
	"github.com/propdesk/agent-console/internal/console"
	"github.com/propdesk/agent-console/internal/database"
	"github.com/propdesk/agent-console/internal/upstream"
)

// Config represents the runtime configuration for the agent console daemon.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Upstream   UpstreamConfig   `mapstructure:"upstream"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Alert      AlertConfig      `mapstructure:"alert"`
	Reconcile  ReconcileConfig  `mapstructure:"reconcile"`
	Background BackgroundConfig `mapstructure:"background"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Auth       AuthConfig       `mapstructure:"auth"`
}

// ServerConfig configures the local HTTP server UI tabs talk to.
type ServerConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
}

// UpstreamConfig points the daemon at the CRM backend.
type UpstreamConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	SocketURL         string        `mapstructure:"socket_url"`
	Timeout           time.Duration `mapstructure:"timeout"`
	ReconnectAttempts int           `mapstructure:"reconnect_attempts"`
	ReconnectBackoff  time.Duration `mapstructure:"reconnect_backoff"`
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

// AlertConfig tunes the looping alert signal.
type AlertConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// ReconcileConfig preserves documented behaviors of the upstream dashboard.
type ReconcileConfig struct {
	PendingCountsAreSnapshots bool `mapstructure:"pending_counts_are_snapshots"`
	RollbackOnResolveFailure  bool `mapstructure:"rollback_on_resolve_failure"`
}

// BackgroundConfig schedules the periodic new-request check.
type BackgroundConfig struct {
	CheckSpec string `mapstructure:"check_spec"`
}

// MonitoringConfig enables health checks and metrics.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Health     HealthConfig     `mapstructure:"health_check"`
}

// PrometheusConfig toggles metrics endpoints.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// HealthConfig toggles health endpoints.
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// AuthConfig captures local UI session settings.
type AuthConfig struct {
	JWT JWTSettings `mapstructure:"jwt"`
}

// JWTSettings configures UI session tokens.
type JWTSettings struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"session_ttl"`
}

// JWTServiceConfig adapts the settings for the auth package.
func (a AuthConfig) JWTServiceConfig() iauth.JWTConfig {
	ttl := a.JWT.TTL
	if ttl <= 0 {
		ttl = iauth.DefaultSessionTTL
	}
	return iauth.JWTConfig{
		Secret:     a.JWT.Secret,
		Issuer:     a.JWT.Issuer,
		SessionTTL: ttl,
	}
}

// DatabaseConfigFor adapts the settings for the database package.
func (d DatabaseConfig) DatabaseConfigFor() database.Config {
	cfg := database.Config{
		Driver: d.Driver,
		Path:   d.Path,
		DSN:    d.DSN,
	}
	switch strings.ToLower(d.Driver) {
	case "postgres":
		cfg.Host = d.Postgres.Host
		cfg.Port = d.Postgres.Port
		cfg.Name = d.Postgres.Database
		cfg.User = d.Postgres.Username
		cfg.Password = d.Postgres.Password
	case "mysql":
		cfg.Host = d.MySQL.Host
		cfg.Port = d.MySQL.Port
		cfg.Name = d.MySQL.Database
		cfg.User = d.MySQL.Username
		cfg.Password = d.MySQL.Password
	}
	return cfg
}

// SocketConfigFor adapts the settings for the upstream socket.
func (u UpstreamConfig) SocketConfigFor(token string) upstream.SocketConfig {
	return upstream.SocketConfig{
		URL:              u.SocketURL,
		Token:            token,
		MaxReconnects:    u.ReconnectAttempts,
		ReconnectBackoff: u.ReconnectBackoff,
	}
}

// ConsoleConfigFor adapts the settings for the console core.
func (c *Config) ConsoleConfigFor() console.Config {
	return console.Config{
		PendingCountsAreSnapshots: c.Reconcile.PendingCountsAreSnapshots,
		RollbackOnResolveFailure:  c.Reconcile.RollbackOnResolveFailure,
		AlertInterval:             c.Alert.Interval,
		BackgroundCheckSpec:       c.Background.CheckSpec,
	}
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

	v.SetEnvPrefix("CONSOLE")
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

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8420)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("upstream.timeout", "15s")
	v.SetDefault("upstream.reconnect_attempts", 5)
	v.SetDefault("upstream.reconnect_backoff", "2s")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/agent-console.sqlite")

	v.SetDefault("alert.interval", "3s")

	v.SetDefault("reconcile.pending_counts_are_snapshots", true)
	v.SetDefault("reconcile.rollback_on_resolve_failure", false)

	v.SetDefault("background.check_spec", "@every 1m")

	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.endpoint", "/metrics")
	v.SetDefault("monitoring.health_check.enabled", true)

	v.SetDefault("auth.jwt.issuer", "agent-console")
	v.SetDefault("auth.jwt.session_ttl", "12h")
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
