package storage

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/blackwell-systems/feedbackwatch/internal/session"
)

// maxLineSize bounds a single JSONL line.
const maxLineSize = 4 * 1024 * 1024

// ReadStats reports how many records a reader decoded and how many it skipped.
type ReadStats struct {
	Read    int
	Skipped int
}

// LoadSummaries reads the project's summary log in storage order. A project
// with no summary file yields an empty slice; a missing project yields
// ErrProjectNotExist.
func (s *Store) LoadSummaries(project string) ([]session.Summary, ReadStats, error) {
	if err := s.requireProject(project); err != nil {
		return nil, ReadStats{}, err
	}
	return readJSONL[session.Summary](s.logger, filepath.Join(s.ProjectDir(project), summaryFile))
}

// LoadEvents reads the project's event log in storage order.
func (s *Store) LoadEvents(project string) ([]session.Event, ReadStats, error) {
	if err := s.requireProject(project); err != nil {
		return nil, ReadStats{}, err
	}
	return readJSONL[session.Event](s.logger, filepath.Join(s.ProjectDir(project), eventsFile))
}

// LoadSession reads one snapshot.
func (s *Store) LoadSession(project, id string) (session.Record, error) {
	if err := s.requireProject(project); err != nil {
		return session.Record{}, err
	}
	path := filepath.Join(s.ProjectDir(project), snapshotName(id))
	data, err := os.ReadFile(path)
	if err != nil {
		return session.Record{}, fmt.Errorf("storage: load session %s: %w", id, err)
	}
	var r session.Record
	if err := json.Unmarshal(data, &r); err != nil {
		return session.Record{}, fmt.Errorf("storage: parse session %s: %w", id, err)
	}
	return r, nil
}

// LoadSessions reads every snapshot of a project, ordered by start time.
// Unreadable snapshots are skipped with a warning.
func (s *Store) LoadSessions(project string) ([]session.Record, ReadStats, error) {
	if err := s.requireProject(project); err != nil {
		return nil, ReadStats{}, err
	}
	paths, err := filepath.Glob(filepath.Join(s.ProjectDir(project), snapshotGlob))
	if err != nil {
		return nil, ReadStats{}, fmt.Errorf("storage: glob sessions: %w", err)
	}

	var stats ReadStats
	records := []session.Record{}
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			stats.Skipped++
			s.logger.Warn("skipping unreadable session snapshot", "path", path, "err", err)
			continue
		}
		var r session.Record
		if err := json.Unmarshal(data, &r); err != nil {
			stats.Skipped++
			s.logger.Warn("skipping malformed session snapshot", "path", path, "err", err)
			continue
		}
		stats.Read++
		records = append(records, r)
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].StartTime.Before(records[j].StartTime.Time)
	})
	return records, stats, nil
}

// Prune deletes a project's session snapshots last modified before cutoff.
// The append-only logs are never touched. It returns the number removed.
func (s *Store) Prune(project string, cutoff time.Time) (int, error) {
	if err := s.requireProject(project); err != nil {
		return 0, err
	}
	paths, err := filepath.Glob(filepath.Join(s.ProjectDir(project), snapshotGlob))
	if err != nil {
		return 0, fmt.Errorf("storage: glob sessions: %w", err)
	}

	lock := s.lock(project)
	lock.Lock()
	defer lock.Unlock()

	removed := 0
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return removed, fmt.Errorf("storage: remove %q: %w", path, err)
		}
		removed++
	}
	return removed, nil
}

func (s *Store) requireProject(project string) error {
	if err := ValidateProject(project); err != nil {
		return err
	}
	if !s.ProjectExists(project) {
		return fmt.Errorf("%w: %s", ErrProjectNotExist, project)
	}
	return nil
}

// readJSONL decodes one T per non-blank line. Malformed lines, including a
// truncated final line, and lines longer than maxLineSize are skipped and
// logged.
func readJSONL[T any](logger *slog.Logger, path string) ([]T, ReadStats, error) {
	out := []T{}
	var stats ReadStats

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return out, stats, nil
	}
	if err != nil {
		return nil, stats, fmt.Errorf("storage: open %q: %w", path, err)
	}
	defer f.Close()

	r := bufio.NewReaderSize(f, 64*1024)
	lineNo := 0
	for {
		raw, oversized, err := readLine(r)
		if err != nil && !errors.Is(err, io.EOF) {
			return out, stats, fmt.Errorf("storage: read %q: %w", path, err)
		}
		if err == nil || len(raw) > 0 || oversized {
			lineNo++
		}
		switch line := bytes.TrimSpace(raw); {
		case oversized:
			stats.Skipped++
			logger.Warn("skipping oversized line", "path", path, "line", lineNo, "limit", maxLineSize)
		case len(line) > 0:
			var v T
			if uerr := json.Unmarshal(line, &v); uerr != nil {
				stats.Skipped++
				logger.Warn("skipping malformed line", "path", path, "line", lineNo, "err", uerr)
				break
			}
			stats.Read++
			out = append(out, v)
		}
		if errors.Is(err, io.EOF) {
			return out, stats, nil
		}
	}
}

// readLine returns the next line without its newline. A line longer than
// maxLineSize is consumed up to its newline and reported as oversized with a
// nil slice. err is io.EOF once the final line has been returned.
func readLine(r *bufio.Reader) ([]byte, bool, error) {
	var line []byte
	oversized := false
	for {
		chunk, err := r.ReadSlice('\n')
		if !oversized {
			if len(line)+len(chunk) > maxLineSize+1 {
				oversized = true
				line = nil
			} else {
				line = append(line, chunk...)
			}
		}
		switch {
		case err == nil:
			if oversized {
				return nil, true, nil
			}
			return bytes.TrimSuffix(line, []byte("\n")), false, nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		default:
			if oversized {
				return nil, true, err
			}
			return line, false, err
		}
	}
}
