package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level feedbackwatch configuration.
type Config struct {
	LogDir            string    `mapstructure:"log_dir"`
	LogLevel          string    `mapstructure:"log_level"`
	HighRiskThreshold int       `mapstructure:"high_risk_threshold"`
	Output            Output    `mapstructure:"output"`
	Watch             Watch     `mapstructure:"watch"`
	Telemetry         Telemetry `mapstructure:"telemetry"`
	MCP               MCP       `mapstructure:"mcp"`
}

// Output defines output preferences.
type Output struct {
	Color bool `mapstructure:"color"`
	Width int  `mapstructure:"width"`
}

// Watch configures the log watcher.
type Watch struct {
	Debounce time.Duration `mapstructure:"debounce"`
}

// Telemetry configures OTLP metric export.
type Telemetry struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

// MCP configures the stdio tool server.
type MCP struct {
	// DefaultProject is tracked from startup when set.
	DefaultProject string `mapstructure:"default_project"`
}

// expandPath replaces a leading ~ with the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// Load reads configuration from the given path (or the default location)
// and returns a Config with all defaults applied. Environment variables
// prefixed FEEDBACKWATCH_ override file values.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	// Set defaults.
	v.SetDefault("log_dir", DefaultLogDir)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("high_risk_threshold", DefaultHighRiskThreshold)
	v.SetDefault("output.color", DefaultOutput.Color)
	v.SetDefault("output.width", DefaultOutput.Width)
	v.SetDefault("watch.debounce", DefaultWatch.Debounce)
	v.SetDefault("telemetry.enabled", DefaultTelemetry.Enabled)
	v.SetDefault("telemetry.endpoint", DefaultTelemetry.Endpoint)
	v.SetDefault("telemetry.insecure", DefaultTelemetry.Insecure)
	v.SetDefault("mcp.default_project", "")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(expandPath(cfgFile))
	} else {
		configDir := expandPath(DefaultConfigDir)
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	// Read config file if it exists; missing file is not an error.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if !os.IsNotExist(err) {
				return nil, err
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.LogDir = expandPath(cfg.LogDir)
	if cfg.Watch.Debounce <= 0 {
		cfg.Watch.Debounce = DefaultWatch.Debounce
	}

	return &cfg, nil
}

// DBPath returns the full path to the SQLite report history database.
func DBPath() string {
	return filepath.Join(expandPath(DefaultConfigDir), DefaultDBName)
}

// ConfigDir returns the expanded configuration directory.
func ConfigDir() string {
	return expandPath(DefaultConfigDir)
}
