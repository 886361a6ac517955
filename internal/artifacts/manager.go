package artifacts

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/schererja/drovah/internal/runner"
	"github.com/schererja/drovah/pkg/logger"
)

var (
	ErrNotFound        = errors.New("artifact not found")
	ErrNothingArchived = errors.New("no configured file was archived")
)

// FileInfo describes one archived file
type FileInfo struct {
	Name string
	Size int64
}

// BuildDir is the archive directory of one build: {archive}/{project}/{number}
type BuildDir struct {
	Project string
	Number  int
	Path    string
	ModTime time.Time
	Files   []FileInfo
	Size    int64
}

// Manager owns the archive tree
type Manager struct {
	baseDir string
	logger  *logger.Logger
}

// NewManager creates a Manager rooted at baseDir, creating it if necessary
func NewManager(baseDir string, logger *logger.Logger) (*Manager, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory %s: %w", baseDir, err)
	}
	return &Manager{baseDir: baseDir, logger: logger}, nil
}

// BaseDir returns the archive root
func (m *Manager) BaseDir() string {
	return m.baseDir
}

func (m *Manager) ProjectPath(project string) string {
	return filepath.Join(m.baseDir, project)
}

func (m *Manager) BuildPath(project string, buildNumber int) string {
	return filepath.Join(m.ProjectPath(project), strconv.Itoa(buildNumber))
}

// File returns the path of an archived file. Names that would leave the
// build directory are rejected as not found.
func (m *Manager) File(project string, buildNumber int, name string) (string, error) {
	if !isPlainName(project) || !isPlainName(name) {
		return "", fmt.Errorf("%s/%d/%s: %w", project, buildNumber, name, ErrNotFound)
	}
	path := filepath.Join(m.BuildPath(project, buildNumber), name)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", fmt.Errorf("%s/%d/%s: %w", project, buildNumber, name, ErrNotFound)
	}
	return path, nil
}

// LatestFile returns the first archived file of a build other than the build
// log, in lexical order. The log is returned when it is the only file.
func (m *Manager) LatestFile(project string, buildNumber int) (string, error) {
	if !isPlainName(project) {
		return "", fmt.Errorf("%s: %w", project, ErrNotFound)
	}
	dir := m.BuildPath(project, buildNumber)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("%s/%d: %w", project, buildNumber, ErrNotFound)
	}

	fallback := ""
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if e.Name() == runner.LogFileName {
			fallback = filepath.Join(dir, e.Name())
			continue
		}
		return filepath.Join(dir, e.Name()), nil
	}
	if fallback != "" {
		return fallback, nil
	}
	return "", fmt.Errorf("%s/%d: %w", project, buildNumber, ErrNotFound)
}

// ListBuilds returns the archived builds of a project, newest first.
// Directories whose name is not a build number are ignored.
func (m *Manager) ListBuilds(project string) ([]BuildDir, error) {
	if !isPlainName(project) {
		return nil, fmt.Errorf("%s: %w", project, ErrNotFound)
	}
	entries, err := os.ReadDir(m.ProjectPath(project))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read archive of %s: %w", project, err)
	}

	var builds []BuildDir
	for _, e := range entries {
		n, err := strconv.Atoi(e.Name())
		if err != nil || !e.IsDir() {
			continue
		}
		b, err := m.loadBuild(project, n)
		if err != nil {
			m.logger.Warn("skipping unreadable build directory",
				slog.String("path", m.BuildPath(project, n)),
				slog.String("error", err.Error()))
			continue
		}
		builds = append(builds, b)
	}

	sort.Slice(builds, func(i, j int) bool { return builds[i].Number > builds[j].Number })
	return builds, nil
}

// Projects lists the project directories present in the archive
func (m *Manager) Projects() ([]string, error) {
	entries, err := os.ReadDir(m.baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read archive directory: %w", err)
	}
	var projects []string
	for _, e := range entries {
		if e.IsDir() {
			projects = append(projects, e.Name())
		}
	}
	return projects, nil
}

func (m *Manager) loadBuild(project string, n int) (BuildDir, error) {
	path := m.BuildPath(project, n)
	info, err := os.Stat(path)
	if err != nil {
		return BuildDir{}, err
	}
	b := BuildDir{Project: project, Number: n, Path: path, ModTime: info.ModTime()}

	err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(path, p)
		b.Files = append(b.Files, FileInfo{Name: rel, Size: fi.Size()})
		b.Size += fi.Size()
		return nil
	})
	return b, err
}

// DeleteBuild removes one archived build directory
func (m *Manager) DeleteBuild(project string, buildNumber int) error {
	if !isPlainName(project) || buildNumber < 1 {
		return fmt.Errorf("build %s/%d: %w", project, buildNumber, ErrNotFound)
	}
	path := m.BuildPath(project, buildNumber)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("build %s/%d: %w", project, buildNumber, ErrNotFound)
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("failed to remove build directory: %w", err)
	}
	return nil
}

// copyFile copies src to dst, creating dst's parent directories
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func isPlainName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.ContainsAny(name, `/\`)
}
