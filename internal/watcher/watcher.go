// Package watcher follows the session log tree and raises alerts when project
// reports change in notable ways.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/blackwell-systems/feedbackwatch/internal/analyzer"
	"github.com/blackwell-systems/feedbackwatch/internal/storage"
)

// Reporter produces the reports the watcher compares.
type Reporter interface {
	ListProjects() ([]string, error)
	Analyze(project string) (analyzer.ProjectReport, error)
}

// State is the set of project reports at one point in time. Projects without
// sessions map to a zero report.
type State struct {
	Timestamp time.Time
	Reports   map[string]analyzer.ProjectReport
}

// Alert represents a notable change detected by the watcher.
type Alert struct {
	Level   string // "info", "warning", "critical"
	Project string
	Title   string
	Message string
	Time    time.Time
}

// Watcher re-analyzes projects whenever their summary log is written and
// emits alerts for the differences.
type Watcher struct {
	logDir   string
	reporter Reporter
	debounce time.Duration
	alertFn  func(Alert)
	logger   *slog.Logger
	now      func() time.Time

	previous      *State
	lastAlertKeys map[string]bool // dedup: suppress repeated identical alerts
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// WithClock replaces time.Now for alert and state timestamps.
func WithClock(now func() time.Time) Option {
	return func(w *Watcher) { w.now = now }
}

// New creates a Watcher over the log tree rooted at logDir.
func New(logDir string, reporter Reporter, debounce time.Duration, alertFn func(Alert), opts ...Option) *Watcher {
	w := &Watcher{
		logDir:        logDir,
		reporter:      reporter,
		debounce:      debounce,
		alertFn:       alertFn,
		logger:        slog.Default(),
		now:           time.Now,
		lastAlertKeys: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With("component", "watcher")
	return w
}

// Run watches the log directory and every project directory until ctx is
// cancelled. Bursts of writes to one project's summary log collapse into a
// single re-analysis after the debounce interval.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.logDir, 0o755); err != nil {
		return fmt.Errorf("creating log dir: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(w.logDir); err != nil {
		return fmt.Errorf("watching %s: %w", w.logDir, err)
	}

	initial, err := w.Snapshot()
	if err != nil {
		return fmt.Errorf("initial snapshot: %w", err)
	}
	w.previous = initial
	for project := range initial.Reports {
		w.addProjectDir(fsw, filepath.Join(w.logDir, storage.ProjectDirName(project)))
	}

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()
	pending := make(map[string]bool)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			project, ok := w.classify(fsw, ev)
			if !ok {
				continue
			}
			pending[project] = true
			timer.Reset(w.debounce)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("fsnotify error", "err", err)

		case <-timer.C:
			for project := range pending {
				w.emit(w.Refresh(project))
			}
			clear(pending)
		}
	}
}

// classify decides whether an fsnotify event concerns a project's summary log,
// starting to watch newly created project directories on the way.
func (w *Watcher) classify(fsw *fsnotify.Watcher, ev fsnotify.Event) (string, bool) {
	if filepath.Dir(ev.Name) == filepath.Clean(w.logDir) {
		project, ok := storage.ProjectFromDir(ev.Name)
		if ok && ev.Has(fsnotify.Create) {
			w.addProjectDir(fsw, ev.Name)
			return project, true
		}
		return "", false
	}
	if filepath.Base(ev.Name) != storage.SummaryFileName {
		return "", false
	}
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
		return "", false
	}
	return storage.ProjectFromDir(filepath.Dir(ev.Name))
}

func (w *Watcher) addProjectDir(fsw *fsnotify.Watcher, dir string) {
	if err := fsw.Add(dir); err != nil {
		w.logger.Warn("cannot watch project dir", "dir", dir, "err", err)
	}
}

func (w *Watcher) emit(alerts []Alert) {
	if w.alertFn == nil {
		return
	}
	for _, a := range alerts {
		w.alertFn(a)
	}
}

// Check performs a full cycle: snapshots every project, compares against the
// previous state, and returns any new alerts.
func (w *Watcher) Check() []Alert {
	curr, err := w.Snapshot()
	if err != nil {
		return []Alert{w.failure(err)}
	}
	return w.advance(curr)
}

// Refresh re-analyzes one project and returns any new alerts.
func (w *Watcher) Refresh(project string) []Alert {
	report, err := w.analyze(project)
	if err != nil {
		return []Alert{w.failure(err)}
	}
	curr := &State{Timestamp: w.now(), Reports: make(map[string]analyzer.ProjectReport)}
	if w.previous != nil {
		for name, r := range w.previous.Reports {
			curr.Reports[name] = r
		}
	}
	curr.Reports[project] = report
	return w.advance(curr)
}

// advance compares curr with the previous state, drops alerts identical to
// the last cycle's, and makes curr the new baseline.
func (w *Watcher) advance(curr *State) []Alert {
	var raw []Alert
	if w.previous != nil {
		raw = Compare(w.previous, curr, w.now())
	}

	currentKeys := make(map[string]bool, len(raw))
	var alerts []Alert
	for _, a := range raw {
		key := a.Level + ":" + a.Title + ":" + a.Message
		currentKeys[key] = true
		if !w.lastAlertKeys[key] {
			alerts = append(alerts, a)
		}
	}
	w.lastAlertKeys = currentKeys

	w.previous = curr
	return alerts
}

// Snapshot analyzes every project in the log tree.
func (w *Watcher) Snapshot() (*State, error) {
	projects, err := w.reporter.ListProjects()
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	state := &State{Timestamp: w.now(), Reports: make(map[string]analyzer.ProjectReport, len(projects))}
	for _, p := range projects {
		report, err := w.analyze(p)
		if err != nil {
			return nil, err
		}
		state.Reports[p] = report
	}
	return state, nil
}

func (w *Watcher) analyze(project string) (analyzer.ProjectReport, error) {
	report, err := w.reporter.Analyze(project)
	if errors.Is(err, analyzer.ErrNotFound) {
		return analyzer.ProjectReport{ProjectName: project}, nil
	}
	if err != nil {
		return analyzer.ProjectReport{}, fmt.Errorf("analyzing %s: %w", project, err)
	}
	return report, nil
}

func (w *Watcher) failure(err error) Alert {
	return Alert{
		Level:   "warning",
		Title:   "Analysis failed",
		Message: fmt.Sprintf("Could not read session logs: %v", err),
		Time:    w.now(),
	}
}
