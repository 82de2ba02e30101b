// Package project locates the project a caller is working in and reads its
// git state.
package project

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// gitTimeout bounds each git subprocess.
const gitTimeout = 3 * time.Second

// DefaultBranch is reported when the branch cannot be determined.
const DefaultBranch = "main"

// Indicators are files or directories whose presence marks a project root.
var Indicators = []string{
	".git", "go.mod", "package.json", "requirements.txt", "pyproject.toml",
	"Cargo.toml", "pom.xml", "build.gradle", ".gitignore",
	"README.md", "README.rst", ".cursorrules",
}

// GitRunner executes a git command in workDir and returns its output.
// Tests substitute a fake.
type GitRunner func(workDir string, args ...string) (string, error)

func defaultGitRunner(workDir string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), gitTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = workDir
	out, err := cmd.Output()
	return string(out), err
}

// Info describes a detected project.
type Info struct {
	Path     string `json:"path"`
	Name     string `json:"name"`
	Branch   string `json:"branch"`
	Detected bool   `json:"detected"`

	GitRepo       bool   `json:"git_repo"`
	ModifiedFiles int    `json:"modified_files"`
	LastCommit    string `json:"last_commit,omitempty"`
}

// Detector finds projects. The zero value uses the real git binary and
// process environment.
type Detector struct {
	Runner GitRunner
	Getenv func(string) string
}

// Detect runs a zero-value Detector.
func Detect(dir string) Info {
	var d Detector
	return d.Detect(dir)
}

// Detect resolves the project containing dir. An empty dir falls back to
// $PWD and then the working directory. When no project root is found the
// starting directory itself is reported with Detected false.
func (d *Detector) Detect(dir string) Info {
	if dir == "" {
		dir = d.getenv("PWD")
	}
	if dir == "" {
		dir, _ = os.Getwd()
	}
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}

	info := Info{Path: dir, Name: filepath.Base(dir)}
	if root, ok := FindRoot(dir); ok {
		info.Path = root
		info.Name = filepath.Base(root)
		info.Detected = true
	}
	d.fillGit(&info)
	return info
}

// Branch returns the current git branch of dir, or DefaultBranch.
func (d *Detector) Branch(dir string) string {
	out, err := d.run(dir, "branch", "--show-current")
	if err != nil {
		return DefaultBranch
	}
	if b := strings.TrimSpace(out); b != "" {
		return b
	}
	return DefaultBranch
}

func (d *Detector) fillGit(info *Info) {
	out, err := d.run(info.Path, "rev-parse", "--is-inside-work-tree")
	info.GitRepo = err == nil && strings.TrimSpace(out) == "true"
	info.Branch = d.Branch(info.Path)
	if !info.GitRepo {
		return
	}
	if status, err := d.run(info.Path, "status", "--porcelain"); err == nil {
		for _, line := range strings.Split(strings.TrimSpace(status), "\n") {
			if strings.TrimSpace(line) != "" {
				info.ModifiedFiles++
			}
		}
	}
	if msg, err := d.run(info.Path, "log", "-1", "--pretty=format:%s"); err == nil {
		info.LastCommit = strings.TrimSpace(msg)
	}
}

func (d *Detector) run(dir string, args ...string) (string, error) {
	runner := d.Runner
	if runner == nil {
		runner = defaultGitRunner
	}
	return runner(dir, args...)
}

func (d *Detector) getenv(key string) string {
	if d.Getenv != nil {
		return d.Getenv(key)
	}
	return os.Getenv(key)
}

// IsProjectDir reports whether dir contains any project indicator.
func IsProjectDir(dir string) bool {
	for _, name := range Indicators {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return true
		}
	}
	return false
}

// FindRoot walks upward from dir to the nearest project directory.
func FindRoot(dir string) (string, bool) {
	for {
		if IsProjectDir(dir) {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}
