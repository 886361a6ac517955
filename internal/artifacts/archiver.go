package artifacts

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/schererja/drovah/internal/db"
	"github.com/schererja/drovah/internal/runner"
	"github.com/schererja/drovah/pkg/logger"
)

// Result describes a successful archival
type Result struct {
	BuildNumber int
	Files       []string
}

// Archiver copies build outputs from a project working copy into the archive
// and records the passing build.
type Archiver struct {
	manager     *Manager
	store       db.Store
	projectsDir string
	logger      *logger.Logger
}

func NewArchiver(manager *Manager, store db.Store, projectsDir string, logger *logger.Logger) *Archiver {
	return &Archiver{
		manager:     manager,
		store:       store,
		projectsDir: projectsDir,
		logger:      logger,
	}
}

// Archive collects every pattern that matches a file in the project working
// copy into {archive}/{project}/{n}, where n is one past the latest recorded
// build. The captured build log is moved alongside. Patterns that match
// nothing are skipped; if none match, ErrNothingArchived is returned and no
// build is recorded.
func (a *Archiver) Archive(projectID int64, patterns []string, appendBuildNumber bool) (*Result, error) {
	project, err := a.store.ProjectName(projectID)
	if err != nil {
		return nil, err
	}
	latest, err := a.store.LatestBuildNumber(projectID)
	if err != nil {
		return nil, err
	}
	buildNumber := latest + 1

	log := a.logger.With(slog.String("project", project), slog.Int("build_number", buildNumber))

	if err := os.MkdirAll(a.manager.ProjectPath(project), 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory for %s: %w", project, err)
	}

	buildDir := a.manager.BuildPath(project, buildNumber)
	workDir := filepath.Join(a.projectsDir, project)

	a.moveLog(log, workDir, buildDir)

	var files []string
	for _, pattern := range patterns {
		src, ok := Match(filepath.Join(workDir, pattern))
		if !ok {
			log.Warn("no file matches pattern", slog.String("pattern", pattern))
			continue
		}
		name := DestinationName(filepath.Base(src), buildNumber, appendBuildNumber)
		if err := copyFile(src, filepath.Join(buildDir, name)); err != nil {
			log.Error("failed to archive file", err, slog.String("file", src))
			continue
		}
		log.Debug("archived file", slog.String("file", name))
		files = append(files, name)
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("%s build %d: %w", project, buildNumber, ErrNothingArchived)
	}

	if err := a.store.AppendBuild(projectID, buildNumber, db.StatusPassing, db.JoinFiles(files)); err != nil {
		return nil, fmt.Errorf("failed to record build: %w", err)
	}

	log.Info("archived build", slog.Int("files", len(files)))
	return &Result{BuildNumber: buildNumber, Files: files}, nil
}

// moveLog relocates build.log from the working copy into the build directory.
// Failures are logged only.
func (a *Archiver) moveLog(log *logger.Logger, workDir, buildDir string) {
	src := filepath.Join(workDir, runner.LogFileName)
	if _, err := os.Stat(src); err != nil {
		return
	}
	if err := copyFile(src, filepath.Join(buildDir, runner.LogFileName)); err != nil {
		log.Error("failed to archive build log", err)
		return
	}
	if err := os.Remove(src); err != nil {
		log.Error("failed to remove build log", err)
	}
}
