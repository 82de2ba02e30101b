// Package storage persists session events, snapshots and summaries under a
// per-project directory tree. Logs are append-only JSONL files synced after
// every write; snapshots are replaced atomically.
package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/blackwell-systems/feedbackwatch/internal/session"
)

const (
	projectPrefix = "project_"
	eventsFile    = "session_events.jsonl"
	summaryFile   = "sessions_summary.jsonl"
	snapshotGlob  = "session_*.json"
)

// SummaryFileName is the per-project summary log file name.
const SummaryFileName = summaryFile

// ProjectDirName returns the directory name used for a project.
func ProjectDirName(project string) string {
	return projectPrefix + project
}

// ProjectFromDir returns the project name encoded in a project directory's
// base name, and false when dir is not a project directory.
func ProjectFromDir(dir string) (string, bool) {
	base := filepath.Base(dir)
	name, ok := strings.CutPrefix(base, projectPrefix)
	if !ok || name == "" {
		return "", false
	}
	return name, true
}

// ErrProjectNotExist is returned when a project directory is missing.
var ErrProjectNotExist = errors.New("storage: project does not exist")

// ErrInvalidProject is returned for project names that cannot be used as a
// directory component.
var ErrInvalidProject = errors.New("storage: invalid project name")

// Store reads and writes the on-disk log tree rooted at a base directory.
// Writers are serialized per project within the process.
type Store struct {
	baseDir string
	logger  *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for skipped-line warnings.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// New returns a Store rooted at baseDir. The directory is created lazily on
// first write.
func New(baseDir string, opts ...Option) *Store {
	s := &Store{
		baseDir: baseDir,
		logger:  slog.Default(),
		locks:   make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BaseDir returns the root of the log tree.
func (s *Store) BaseDir() string {
	return s.baseDir
}

// ProjectDir returns the directory holding a project's files.
func (s *Store) ProjectDir(project string) string {
	return filepath.Join(s.baseDir, ProjectDirName(project))
}

// SummaryPath returns the path of a project's summary log.
func (s *Store) SummaryPath(project string) string {
	return filepath.Join(s.ProjectDir(project), summaryFile)
}

// ProjectExists reports whether the project directory exists.
func (s *Store) ProjectExists(project string) bool {
	if ValidateProject(project) != nil {
		return false
	}
	info, err := os.Stat(s.ProjectDir(project))
	return err == nil && info.IsDir()
}

// ListProjects returns the sorted names of all project directories. A missing
// base directory yields an empty list.
func (s *Store) ListProjects() ([]string, error) {
	entries, err := os.ReadDir(s.baseDir)
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: read dir %q: %w", s.baseDir, err)
	}

	names := []string{}
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), projectPrefix) {
			continue
		}
		name := strings.TrimPrefix(e.Name(), projectPrefix)
		if name == "" {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// AppendEvent appends one event line to the project's event log.
func (s *Store) AppendEvent(project string, e session.Event) error {
	if err := s.appendLine(project, eventsFile, e); err != nil {
		return fmt.Errorf("storage: append event: %w", err)
	}
	return nil
}

// AppendSummary appends one summary line to the project's summary log.
func (s *Store) AppendSummary(project string, sum session.Summary) error {
	if sum.Categories == nil {
		sum.Categories = []string{}
	}
	if err := s.appendLine(project, summaryFile, sum); err != nil {
		return fmt.Errorf("storage: append summary: %w", err)
	}
	return nil
}

// SaveSession writes the full record as an indented JSON snapshot, replacing
// any previous snapshot of the same session atomically.
func (s *Store) SaveSession(r session.Record) error {
	if err := ValidateProject(r.ProjectName); err != nil {
		return fmt.Errorf("storage: save session: %w", err)
	}
	if r.SessionID == "" {
		return fmt.Errorf("storage: save session: empty session id")
	}

	data, err := encode(r, true)
	if err != nil {
		return fmt.Errorf("storage: save session: %w", err)
	}

	lock := s.lock(r.ProjectName)
	lock.Lock()
	defer lock.Unlock()

	dir := s.ProjectDir(r.ProjectName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: save session: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(dir, snapshotName(r.SessionID)), data); err != nil {
		return fmt.Errorf("storage: save session: %w", err)
	}
	return nil
}

func (s *Store) appendLine(project, file string, v any) error {
	if err := ValidateProject(project); err != nil {
		return err
	}
	data, err := encode(v, false)
	if err != nil {
		return err
	}

	lock := s.lock(project)
	lock.Lock()
	defer lock.Unlock()

	dir := s.ProjectDir(project)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %q: %w", dir, err)
	}
	path := filepath.Join(dir, file)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open %q: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %q: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync %q: %w", path, err)
	}
	return f.Close()
}

func (s *Store) lock(project string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[project]
	if !ok {
		l = &sync.Mutex{}
		s.locks[project] = l
	}
	return l
}

// encode marshals v without HTML escaping. Line form ends with a newline.
func encode(v any, indent bool) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if indent {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	return buf.Bytes(), nil
}

// writeFileAtomic writes data to a temp file in the target directory and
// renames it into place.
func writeFileAtomic(path string, data []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".session-*.json.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err = tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func snapshotName(id string) string {
	return "session_" + id + ".json"
}

// ValidateProject rejects names that cannot be a single directory component.
func ValidateProject(project string) error {
	if project == "" || project == "." || project == ".." ||
		strings.ContainsAny(project, `/\`) || strings.ContainsRune(project, 0) {
		return fmt.Errorf("%w: %q", ErrInvalidProject, project)
	}
	return nil
}
