package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/feedbackwatch/internal/config"
	"github.com/blackwell-systems/feedbackwatch/internal/output"
	"github.com/blackwell-systems/feedbackwatch/internal/watcher"
)

var (
	watchDaemon   bool
	watchDebounce time.Duration
	watchStop     bool
	watchQuiet    bool
	watchNotify   bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow session logs and alert on notable changes",
	Long: `Watch the log directory and re-analyze a project whenever its summary
log is written. Alerts are raised for newly auto-terminated sessions, a
project's high-risk rate reaching 50%, and new projects.

Examples:
  feedbackwatch watch                    # run in foreground (ctrl-c to stop)
  feedbackwatch watch --notify           # also send desktop notifications
  feedbackwatch watch --daemon           # run in background, write PID file
  feedbackwatch watch --stop             # stop the background daemon`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&watchDaemon, "daemon", false, "Run in background mode (write PID file, log to file)")
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 0, "Quiet period before re-analyzing (default: config watch.debounce)")
	watchCmd.Flags().BoolVar(&watchStop, "stop", false, "Stop a running background daemon")
	watchCmd.Flags().BoolVar(&watchQuiet, "quiet", false, "Suppress terminal output, only send notifications")
	watchCmd.Flags().BoolVar(&watchNotify, "notify", false, "Send desktop notifications")
	rootCmd.AddCommand(watchCmd)
}

// pidFilePath returns the path to the daemon PID file.
func pidFilePath() string {
	return filepath.Join(config.ConfigDir(), "watch.pid")
}

// logFilePath returns the path to the daemon log file.
func logFilePath() string {
	return filepath.Join(config.ConfigDir(), "watch.log")
}

func runWatch(cmd *cobra.Command, args []string) error {
	if watchStop {
		return stopDaemon(cmd.OutOrStdout())
	}

	debounce := cfg.Watch.Debounce
	if watchDebounce > 0 {
		debounce = watchDebounce
	}

	if watchDaemon {
		return runDaemon(cmd.Context(), debounce)
	}
	return runForeground(cmd.Context(), debounce)
}

// runForeground runs the watcher in the foreground with live terminal output.
func runForeground(parent context.Context, debounce time.Duration) error {
	ctx, stop := signal.NotifyContext(parent, shutdownSignals...)
	defer stop()

	alertFn := func(a watcher.Alert) {
		if watchNotify || watchQuiet {
			_ = watcher.Notify(a)
		}
		if !watchQuiet {
			printAlert(a)
		}
	}

	w := watcher.New(cfg.LogDir, newAnalyzer(), debounce, alertFn, watcher.WithLogger(slog.Default()))

	if !watchQuiet {
		initial, err := w.Snapshot()
		if err != nil {
			return fmt.Errorf("initial snapshot failed: %w", err)
		}
		total := 0
		for _, r := range initial.Reports {
			total += r.TotalSessions
		}
		fmt.Printf("feedbackwatch watching %s...\n", cfg.LogDir)
		fmt.Printf("[%s] %s Baseline (%d projects, %d sessions)\n",
			time.Now().Format("15:04:05"), checkMark(), len(initial.Reports), total)
	}

	err := w.Run(ctx)
	if errors.Is(err, context.Canceled) {
		if !watchQuiet {
			fmt.Println("\nStopped.")
		}
		return nil
	}
	return err
}

// runDaemon sets up PID and log files, then runs the watcher. The actual
// backgrounding should be done by the caller (nohup, &, etc.) since Go
// cannot reliably fork.
func runDaemon(parent context.Context, debounce time.Duration) error {
	// Ensure config directory exists.
	configDir := config.ConfigDir()
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	// Check for existing daemon.
	if pid, err := readPID(); err == nil {
		if processExists(pid) {
			return fmt.Errorf("daemon already running (PID %d). Use --stop to stop it", pid)
		}
		// Stale PID file, remove it.
		_ = os.Remove(pidFilePath())
	}

	pid := os.Getpid()
	if err := os.WriteFile(pidFilePath(), []byte(strconv.Itoa(pid)), 0o644); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer func() { _ = os.Remove(pidFilePath()) }()

	logFile, err := os.OpenFile(logFilePath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	defer func() { _ = logFile.Close() }()

	ctx, stop := signal.NotifyContext(parent, shutdownSignals...)
	defer stop()

	logger := newLogger(logFile, cfg.LogLevel)
	writeLog(logFile, "feedbackwatch daemon started (PID %d, log dir %s)", pid, cfg.LogDir)

	alertFn := func(a watcher.Alert) {
		_ = watcher.Notify(a)
		writeLog(logFile, "[%s] %s: %s", a.Level, a.Title, a.Message)
	}

	w := watcher.New(cfg.LogDir, newAnalyzer(), debounce, alertFn, watcher.WithLogger(logger))
	err = w.Run(ctx)
	if errors.Is(err, context.Canceled) {
		writeLog(logFile, "daemon stopped")
		return nil
	}
	return err
}

// readPID reads the daemon PID from the PID file.
func readPID() (int, error) {
	data, err := os.ReadFile(pidFilePath())
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

// stopDaemon signals the running daemon and removes its PID file. A stale
// PID file is cleaned up and reported as an error.
func stopDaemon(w io.Writer) error {
	pid, err := readPID()
	if err != nil {
		return fmt.Errorf("no daemon running (could not read PID file: %v)", err)
	}
	if !processExists(pid) {
		_ = os.Remove(pidFilePath())
		return fmt.Errorf("no daemon running (PID %d is not active, cleaned up stale PID file)", pid)
	}
	if err := terminate(pid); err != nil {
		return fmt.Errorf("failed to stop daemon (PID %d): %w", pid, err)
	}
	_ = os.Remove(pidFilePath())
	fmt.Fprintf(w, "Stopped daemon (PID %d)\n", pid)
	return nil
}

// writeLog writes a timestamped line to the log file.
func writeLog(f *os.File, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	_, _ = fmt.Fprintf(f, "[%s] %s\n", timestamp, msg)
}

// printAlert formats and prints an alert to the terminal.
func printAlert(a watcher.Alert) {
	timestamp := a.Time.Format("15:04:05")
	icon := alertIcon(a.Level)
	title := a.Title
	switch a.Level {
	case "critical":
		title = output.StyleError.Render(title)
	case "warning":
		title = output.StyleWarning.Render(title)
	}
	fmt.Printf("[%s] %s %s\n", timestamp, icon, title)
	if a.Message != "" {
		fmt.Printf("         %s\n", a.Message)
	}
}

// alertIcon returns the terminal indicator for an alert level.
func alertIcon(level string) string {
	switch level {
	case "critical":
		return "\xf0\x9f\x94\xb4" // red circle
	case "warning":
		return "\xe2\x9a\xa0\xef\xb8\x8f" // warning sign
	case "info":
		return "\xe2\x9c\x93" // check mark
	default:
		return " "
	}
}

// checkMark returns a terminal check mark indicator.
func checkMark() string {
	return "\xe2\x9c\x93"
}
