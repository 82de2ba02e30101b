package watcher

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
)

// runCommand runs an external notifier; replaced in tests.
var runCommand = func(name string, args ...string) error {
	if _, err := exec.LookPath(name); err != nil {
		return err
	}
	return exec.Command(name, args...).Run()
}

// Notify sends a desktop notification for the given alert: osascript on
// macOS, notify-send on Linux. When neither works the alert is printed to
// stderr instead.
func Notify(alert Alert) error {
	return notify(runtime.GOOS, alert, os.Stderr)
}

func notify(goos string, alert Alert, fallback io.Writer) error {
	name, args := notifierCommand(goos, alert)
	if name == "" {
		return Print(fallback, alert)
	}
	if err := runCommand(name, args...); err != nil {
		return Print(fallback, alert)
	}
	return nil
}

// notifierCommand builds the notifier invocation for goos, or "" when the
// platform has none.
func notifierCommand(goos string, alert Alert) (string, []string) {
	switch goos {
	case "darwin":
		script := fmt.Sprintf(`display notification %q with title "feedbackwatch" subtitle %q`,
			alert.Message, alert.Title)
		return "osascript", []string{"-e", script}
	case "linux":
		return "notify-send", []string{"-u", urgency(alert.Level),
			"feedbackwatch: " + alert.Title, alert.Message}
	}
	return "", nil
}

// urgency maps an alert level to a notify-send urgency.
func urgency(level string) string {
	switch level {
	case "critical":
		return "critical"
	case "info":
		return "low"
	}
	return "normal"
}

// Print writes an alert as a single line.
func Print(w io.Writer, alert Alert) error {
	_, err := fmt.Fprintf(w, "[%s] %s: %s\n", alert.Level, alert.Title, alert.Message)
	return err
}
