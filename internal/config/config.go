package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all hvctl configuration.
type Config struct {
	// Host is the management host to connect to. Empty selects the active
	// entry of the host registry.
	Host string `mapstructure:"host"`

	// Namespace is the management namespace of the virtualization provider.
	Namespace string `mapstructure:"namespace"`

	SSH SSHConfig `mapstructure:"ssh"`

	// Shell is the PowerShell executable started on the host.
	Shell string `mapstructure:"shell"`

	// PollInterval is the sleep between job polls.
	PollInterval time.Duration `mapstructure:"poll_interval"`

	// JobTimeout bounds a single job wait (0 = unbounded).
	JobTimeout time.Duration `mapstructure:"job_timeout"`

	// StateTimeout bounds the wait for a machine to leave a transitional
	// state.
	StateTimeout time.Duration `mapstructure:"state_timeout"`

	Log       LogConfig       `mapstructure:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Simulator SimulatorConfig `mapstructure:"simulator"`

	// Templates is a directory of additional path template files.
	Templates string `mapstructure:"templates"`
}

// SSHConfig configures the transport to the management host.
type SSHConfig struct {
	User string `mapstructure:"user"`
	Port int    `mapstructure:"port"`

	// KeyPath is the private key used for authentication. Empty falls back
	// to password authentication.
	KeyPath string `mapstructure:"key_path"`

	// KnownHosts is the known_hosts file used to verify the host key.
	// Empty disables verification.
	KnownHosts string `mapstructure:"known_hosts"`

	// PasswordEnv names an environment variable holding the password.
	PasswordEnv string `mapstructure:"password_env"`

	Timeout time.Duration `mapstructure:"timeout"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Addr is the listen address of the /metrics endpoint (empty = off).
	Addr string `mapstructure:"addr"`
}

// SimulatorConfig configures the offline simulated host.
type SimulatorConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// Fixture is an optional YAML file that replaces the built-in host.
	Fixture string `mapstructure:"fixture"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Namespace: `root\virtualization\v2`,
		SSH: SSHConfig{
			User:        "Administrator",
			Port:        22,
			PasswordEnv: "HVCTL_PASSWORD",
			Timeout:     15 * time.Second,
		},
		Shell:        "powershell.exe",
		PollInterval: 100 * time.Millisecond,
		JobTimeout:   10 * time.Minute,
		StateTimeout: time.Minute,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Global holds the loaded configuration.
var Global *Config

// Load reads configuration from file, environment, and defaults into
// Global using the process-wide viper instance, so that flags bound with
// viper.BindPFlag take part.
func Load() error {
	paths, err := GetPaths()
	if err != nil {
		return fmt.Errorf("failed to determine paths: %w", err)
	}
	cfg, err := LoadFrom(viper.GetViper(), paths)
	if err != nil {
		return err
	}
	Global = cfg
	return nil
}

// LoadFrom reads configuration with v.
func LoadFrom(v *viper.Viper, paths *Paths) (*Config, error) {
	SetDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(paths.DataDir)
	v.AddConfigPath(paths.ConfigDir)

	// Environment variable support: HVCTL_HOST, HVCTL_SSH_USER, etc.
	v.SetEnvPrefix("HVCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// SetDefaults registers every key with its default value.
func SetDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("host", d.Host)
	v.SetDefault("namespace", d.Namespace)
	v.SetDefault("ssh.user", d.SSH.User)
	v.SetDefault("ssh.port", d.SSH.Port)
	v.SetDefault("ssh.key_path", d.SSH.KeyPath)
	v.SetDefault("ssh.known_hosts", d.SSH.KnownHosts)
	v.SetDefault("ssh.password_env", d.SSH.PasswordEnv)
	v.SetDefault("ssh.timeout", d.SSH.Timeout)
	v.SetDefault("shell", d.Shell)
	v.SetDefault("poll_interval", d.PollInterval)
	v.SetDefault("job_timeout", d.JobTimeout)
	v.SetDefault("state_timeout", d.StateTimeout)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("metrics.addr", d.Metrics.Addr)
	v.SetDefault("simulator.enabled", d.Simulator.Enabled)
	v.SetDefault("simulator.fixture", d.Simulator.Fixture)
	v.SetDefault("templates", d.Templates)
}

// Settings returns every effective setting, for display.
func Settings() map[string]any {
	return viper.AllSettings()
}

// ConfigFileUsed returns the path of the config file being used, if any.
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
