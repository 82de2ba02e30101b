// Package app contains the Cobra command tree for feedbackwatch.
package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/feedbackwatch/internal/analyzer"
	"github.com/blackwell-systems/feedbackwatch/internal/config"
	"github.com/blackwell-systems/feedbackwatch/internal/output"
	"github.com/blackwell-systems/feedbackwatch/internal/storage"
)

var appVersion = "dev"

// SetVersion sets the application version (called from main with ldflags value).
func SetVersion(v string) {
	appVersion = v
	rootCmd.Version = v
}

var (
	flagNoColor bool
	flagJSON    bool
	flagVerbose bool
	flagConfig  string
	flagLogDir  string
)

// cfg is loaded once per invocation by the root pre-run hook.
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "feedbackwatch",
	Short: "Session monitoring for interactive-feedback AI workflows",
	Long: `feedbackwatch records AI-assistant work sessions (messages, tool calls,
feedback requests and risk language), persists them as append-only logs, and
reports on them per project: termination rates, risk trends and recurring
interruption patterns.

Run 'feedbackwatch' with no arguments to see a quick overview.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	RunE:              runSummary,
}

// Execute is the entry point called from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file path (default: ~/.config/feedbackwatch/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagLogDir, "log-dir", "", "Session log directory (default: ./logs)")
	rootCmd.PersistentFlags().BoolVar(&flagNoColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "Output as JSON")
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "Enable verbose output")
}

// setup loads configuration and applies the global flags.
func setup(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load(flagConfig)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if flagLogDir != "" {
		loaded.LogDir = flagLogDir
	}
	cfg = loaded

	output.SetNoColor(flagNoColor || !cfg.Output.Color || !output.ColorSupported(os.Stdout))
	output.SetWidth(cfg.Output.Width)

	level := cfg.LogLevel
	if flagVerbose {
		level = "debug"
	}
	slog.SetDefault(newLogger(os.Stderr, level))
	return nil
}

// newLogger returns a text logger writing to w at the named level.
func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		lvl = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// newStore opens the session log tree.
func newStore() *storage.Store {
	return storage.New(cfg.LogDir, storage.WithLogger(slog.Default()))
}

// newAnalyzer returns an analyzer over the session log tree.
func newAnalyzer() *analyzer.Analyzer {
	return analyzer.New(newStore(),
		analyzer.WithLogger(slog.Default()),
		analyzer.WithHighRiskThreshold(cfg.HighRiskThreshold))
}

// writeJSON prints v as indented JSON on stdout.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// notFound prints a plain message for "nothing to analyze" errors and
// reports whether err was one.
func notFound(w io.Writer, project string, err error) bool {
	switch {
	case errors.Is(err, analyzer.ErrProjectNotFound):
		fmt.Fprintf(w, " No logs found for project %q in %s.\n", project, cfg.LogDir)
		return true
	case errors.Is(err, analyzer.ErrNoSessions):
		fmt.Fprintf(w, " Project %q has no finished sessions yet.\n", project)
		return true
	case errors.Is(err, analyzer.ErrNotFound):
		fmt.Fprintf(w, " Nothing to analyze for %q.\n", project)
		return true
	}
	return false
}
