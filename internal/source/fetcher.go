package source

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/schererja/drovah/pkg/logger"
)

var (
	ErrInvalidURL    = errors.New("cannot derive a project name from repository URL")
	ErrProjectExists = errors.New("project directory already exists")
	ErrNoProject     = errors.New("project directory does not exist")
)

// Fetcher manages the git working copies under the projects directory
type Fetcher struct {
	projectsDir string
	logger      *logger.Logger
}

// FetchResult describes a clone
type FetchResult struct {
	Project  string
	Path     string
	Duration time.Duration
}

// NewFetcher creates a new Fetcher instance
func NewFetcher(projectsDir string, logger *logger.Logger) *Fetcher {
	return &Fetcher{
		projectsDir: projectsDir,
		logger:      logger,
	}
}

// ProjectsDir returns the root holding every working copy
func (f *Fetcher) ProjectsDir() string {
	return f.projectsDir
}

// NameFromURL derives the project name from a repository URL: the last path
// segment with a trailing .git removed. Both URLs and scp-like
// git@host:owner/repo.git forms are accepted.
func NameFromURL(repoURL string) (string, error) {
	path := strings.TrimRight(repoURL, "/")
	if u, err := url.Parse(path); err == nil && u.Scheme != "" {
		path = strings.TrimRight(u.Path, "/")
	} else if i := strings.LastIndex(path, ":"); i >= 0 {
		path = path[i+1:]
	}

	name := path
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	name = strings.TrimSuffix(name, ".git")

	if name == "" || name == "." || name == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidURL, repoURL)
	}
	return name, nil
}

// Path returns the working copy directory of project
func (f *Fetcher) Path(project string) string {
	return filepath.Join(f.projectsDir, project)
}

// Exists reports whether project has a working copy directory. Names that
// would resolve outside the projects directory never exist.
func (f *Fetcher) Exists(project string) bool {
	if !isPlainName(project) {
		return false
	}
	info, err := os.Stat(f.Path(project))
	return err == nil && info.IsDir()
}

// Clone clones repoURL into the projects directory
func (f *Fetcher) Clone(repoURL string) (*FetchResult, error) {
	name, err := NameFromURL(repoURL)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(f.projectsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create projects directory: %w", err)
	}

	path := f.Path(name)
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrProjectExists, path)
	}

	start := time.Now()
	f.logger.Info("cloning project", slog.String("project", name), slog.String("url", repoURL))
	if err := f.git("", "clone", repoURL, path); err != nil {
		os.RemoveAll(path)
		return nil, fmt.Errorf("failed to clone %s: %w", repoURL, err)
	}

	return &FetchResult{Project: name, Path: path, Duration: time.Since(start)}, nil
}

// Pull runs git pull in the working copy of project
func (f *Fetcher) Pull(project string) error {
	if !isPlainName(project) {
		return fmt.Errorf("%w: %s", ErrNoProject, project)
	}
	path := f.Path(project)
	if !f.isGitRepository(path) {
		return fmt.Errorf("%s is not a git repository", path)
	}
	f.logger.Debug("pulling project", slog.String("project", project))
	if err := f.git(path, "pull"); err != nil {
		return fmt.Errorf("failed to pull %s: %w", project, err)
	}
	return nil
}

// Remove deletes the working copy of project
func (f *Fetcher) Remove(project string) error {
	if !f.Exists(project) {
		return fmt.Errorf("%w: %s", ErrNoProject, project)
	}
	if err := os.RemoveAll(f.Path(project)); err != nil {
		return fmt.Errorf("failed to remove %s: %w", project, err)
	}
	f.logger.Info("removed project", slog.String("project", project))
	return nil
}

// List returns the names of every working copy directory
func (f *Fetcher) List() ([]string, error) {
	entries, err := os.ReadDir(f.projectsDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

func isPlainName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.ContainsAny(name, `/\`)
}

func (f *Fetcher) isGitRepository(path string) bool {
	_, err := os.Stat(filepath.Join(path, ".git"))
	return err == nil
}

func (f *Fetcher) git(dir string, args ...string) error {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%w: %s", err, msg)
		}
		return err
	}
	return nil
}
