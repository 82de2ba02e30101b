package app

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/feedbackwatch/internal/config"
	"github.com/blackwell-systems/feedbackwatch/internal/output"
	"github.com/blackwell-systems/feedbackwatch/internal/storage"
	"github.com/blackwell-systems/feedbackwatch/internal/store"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check whether the feedbackwatch setup is healthy",
	Long: `Run a series of health checks against your feedbackwatch configuration
and session log directory. Prints a pass/fail line for each check and a
summary of how many checks passed.`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

// doctorCheck holds the result of a single health check.
type doctorCheck struct {
	Name    string `json:"name"`
	Passed  bool   `json:"passed"`
	Message string `json:"message"`
}

// doctorOutput is the JSON-serializable result of the doctor command.
type doctorOutput struct {
	Checks      []doctorCheck `json:"checks"`
	PassedCount int           `json:"passed"`
	TotalCount  int           `json:"total"`
}

func runDoctor(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()
	st := newStore()

	checks := []doctorCheck{
		checkLogDir(cfg.LogDir),
		checkSessionData(st),
		checkLogIntegrity(st),
		checkDatabase(config.DBPath()),
		checkWatchDaemon(),
		checkGit(),
		checkTelemetry(cfg.Telemetry),
	}

	passed := 0
	for _, c := range checks {
		if c.Passed {
			passed++
		}
	}

	if flagJSON {
		return writeJSON(w, doctorOutput{Checks: checks, PassedCount: passed, TotalCount: len(checks)})
	}

	fmt.Fprintln(w, output.Section("Doctor"))
	fmt.Fprintln(w)
	for _, c := range checks {
		renderDoctorCheck(w, c)
	}

	fmt.Fprintln(w)
	summary := fmt.Sprintf("%d/%d checks passed", passed, len(checks))
	if passed == len(checks) {
		fmt.Fprintf(w, " %s\n\n", output.StyleSuccess.Render(summary))
	} else {
		fmt.Fprintf(w, " %s\n\n", output.StyleWarning.Render(summary))
	}
	return nil
}

// renderDoctorCheck prints a single check result line.
func renderDoctorCheck(w io.Writer, c doctorCheck) {
	indicator := output.StyleSuccess.Render("✓")
	if !c.Passed {
		indicator = output.StyleWarning.Render("✗")
	}
	label := output.StyleBold.Render(c.Name)
	detail := output.StyleMuted.Render(c.Message)
	fmt.Fprintf(w, "  %s  %-30s %s\n", indicator, label, detail)
}

// checkLogDir verifies the log directory exists and accepts new files.
func checkLogDir(dir string) doctorCheck {
	const name = "Log directory"
	info, err := os.Stat(dir)
	if err != nil {
		return doctorCheck{Name: name, Message: fmt.Sprintf("not found: %s (created on first session)", dir)}
	}
	if !info.IsDir() {
		return doctorCheck{Name: name, Message: fmt.Sprintf("not a directory: %s", dir)}
	}
	f, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return doctorCheck{Name: name, Message: fmt.Sprintf("not writable: %v", err)}
	}
	_ = f.Close()
	_ = os.Remove(f.Name())
	return doctorCheck{Name: name, Passed: true, Message: fmt.Sprintf("%s (%s)", dir, output.Bytes(dirSize(dir)))}
}

// dirSize sums the sizes of regular files under dir.
func dirSize(dir string) int64 {
	var total int64
	_ = filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			total += info.Size()
		}
		return nil
	})
	return total
}

// checkSessionData verifies at least one project has finished sessions.
func checkSessionData(st *storage.Store) doctorCheck {
	const name = "Session data"
	projects, err := st.ListProjects()
	if err != nil {
		return doctorCheck{Name: name, Message: fmt.Sprintf("cannot list projects: %v", err)}
	}
	withSessions, sessions := 0, 0
	for _, p := range projects {
		sums, _, err := st.LoadSummaries(p)
		if err != nil || len(sums) == 0 {
			continue
		}
		withSessions++
		sessions += len(sums)
	}
	if sessions == 0 {
		return doctorCheck{Name: name, Message: fmt.Sprintf("no finished sessions in %d project(s)", len(projects))}
	}
	return doctorCheck{Name: name, Passed: true,
		Message: fmt.Sprintf("%s sessions across %d project(s)", output.Count(sessions), withSessions)}
}

// checkLogIntegrity counts malformed lines in every summary and event log.
func checkLogIntegrity(st *storage.Store) doctorCheck {
	const name = "Log integrity"
	projects, err := st.ListProjects()
	if err != nil {
		return doctorCheck{Name: name, Message: fmt.Sprintf("cannot list projects: %v", err)}
	}
	lines, skipped := 0, 0
	for _, p := range projects {
		if _, stats, err := st.LoadSummaries(p); err == nil {
			lines += stats.Read
			skipped += stats.Skipped
		}
		if _, stats, err := st.LoadEvents(p); err == nil {
			lines += stats.Read
			skipped += stats.Skipped
		}
	}
	if skipped > 0 {
		return doctorCheck{Name: name,
			Message: fmt.Sprintf("%d malformed of %d lines (skipped when reading)", skipped, lines+skipped)}
	}
	return doctorCheck{Name: name, Passed: true, Message: fmt.Sprintf("%s lines, none malformed", output.Count(lines))}
}

// checkDatabase verifies the report history database exists and opens.
func checkDatabase(dbPath string) doctorCheck {
	const name = "History database"
	if _, err := os.Stat(dbPath); err != nil {
		return doctorCheck{Name: name,
			Message: fmt.Sprintf("not found at %s (run 'feedbackwatch track' to create)", dbPath)}
	}
	db, err := store.Open(dbPath)
	if err != nil {
		return doctorCheck{Name: name, Message: fmt.Sprintf("cannot open: %v", err)}
	}
	defer func() { _ = db.Close() }()

	latest, err := db.GetLatestSnapshot()
	if err != nil {
		return doctorCheck{Name: name, Message: fmt.Sprintf("cannot read snapshots: %v", err)}
	}
	msg := dbPath + ", no snapshots yet"
	if latest != nil {
		msg = fmt.Sprintf("%s, last snapshot %s", dbPath, output.Ago(latest.TakenAt))
	}
	return doctorCheck{Name: name, Passed: true, Message: msg}
}

// checkWatchDaemon checks whether the watch daemon PID file exists and the process is running.
func checkWatchDaemon() doctorCheck {
	const name = "Watch daemon"
	pid, err := readPID()
	if err != nil {
		if os.IsNotExist(err) {
			return doctorCheck{Name: name, Message: "not running (no PID file)"}
		}
		return doctorCheck{Name: name, Message: fmt.Sprintf("invalid PID file %s: %v", filepath.Base(pidFilePath()), err)}
	}
	if !processExists(pid) {
		return doctorCheck{Name: name, Message: fmt.Sprintf("PID %d is not running (stale PID file)", pid)}
	}
	return doctorCheck{Name: name, Passed: true, Message: fmt.Sprintf("running (PID %d)", pid)}
}

// checkGit verifies git is on PATH; project detection uses it for branch
// and change information.
func checkGit() doctorCheck {
	const name = "git"
	path, err := exec.LookPath("git")
	if err != nil {
		return doctorCheck{Name: name, Message: "not found on PATH (branch defaults to main)"}
	}
	return doctorCheck{Name: name, Passed: true, Message: path}
}

// checkTelemetry reports the OTLP export setting.
func checkTelemetry(t config.Telemetry) doctorCheck {
	const name = "Telemetry"
	switch {
	case !t.Enabled:
		return doctorCheck{Name: name, Passed: true, Message: "disabled"}
	case t.Endpoint == "":
		return doctorCheck{Name: name, Message: "enabled but telemetry.endpoint is empty"}
	}
	return doctorCheck{Name: name, Passed: true, Message: "exporting to " + t.Endpoint}
}
