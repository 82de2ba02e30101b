// Package config provides configuration loading and defaults for feedbackwatch.
package config

import "time"

// DefaultLogDir is where session logs are written, relative to the working
// directory unless configured otherwise.
const DefaultLogDir = "logs"

// DefaultLogLevel is the slog level used without --verbose.
const DefaultLogLevel = "warn"

// DefaultConfigDir is the default location for feedbackwatch configuration.
const DefaultConfigDir = "~/.config/feedbackwatch"

// DefaultDBName is the filename for the SQLite database.
const DefaultDBName = "feedbackwatch.db"

// DefaultConfigFile is the filename for the YAML config.
const DefaultConfigFile = "config.yaml"

// EnvPrefix prefixes environment overrides, e.g. FEEDBACKWATCH_LOG_DIR.
const EnvPrefix = "FEEDBACKWATCH"

// DefaultHighRiskThreshold is the indicator count above which reports
// highlight a session.
const DefaultHighRiskThreshold = 3

// DefaultOutput holds the default output preferences.
var DefaultOutput = Output{
	Color: true,
	Width: 80,
}

// DefaultWatch holds the default watcher settings.
var DefaultWatch = Watch{
	Debounce: 500 * time.Millisecond,
}

// DefaultTelemetry leaves export off.
var DefaultTelemetry = Telemetry{
	Enabled:  false,
	Endpoint: "localhost:4317",
	Insecure: true,
}
