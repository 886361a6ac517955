package cli

import (
	"errors"
	"fmt"

	"github.com/schererja/drovah/internal/artifacts"
	"github.com/schererja/drovah/internal/build"
	"github.com/schererja/drovah/internal/config"
	"github.com/schererja/drovah/internal/db"
	"github.com/schererja/drovah/internal/source"
	"github.com/schererja/drovah/pkg/logger"
)

// stack holds every component a server or local build needs
type stack struct {
	cfg     *config.Config
	log     *logger.Logger
	store   *db.DB
	archive *artifacts.Manager
	fetcher *source.Fetcher
	orch    *build.Orchestrator
}

func openStack(cfg *config.Config, log *logger.Logger) (*stack, error) {
	if err := cfg.EnsureDirs(); err != nil {
		return nil, err
	}
	store, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	archive, err := artifacts.NewManager(cfg.ArchiveDir, log)
	if err != nil {
		store.Close()
		return nil, err
	}
	fetcher := source.NewFetcher(cfg.ProjectsDir, log)
	archiver := artifacts.NewArchiver(archive, store, cfg.ProjectsDir, log)
	orch := build.NewOrchestrator(build.Options{
		ProjectsDir:           cfg.ProjectsDir,
		RecordArchiveFailures: cfg.Build.RecordArchiveFailures,
	}, store, archiver, fetcher, log)

	return &stack{
		cfg:     cfg,
		log:     log,
		store:   store,
		archive: archive,
		fetcher: fetcher,
		orch:    orch,
	}, nil
}

func (s *stack) Close() error {
	return s.store.Close()
}

// latestStatus returns the latest status of project, unknown when the
// project has never been recorded
func latestStatus(store db.Store, project string) (db.Status, error) {
	id, err := store.ProjectID(project)
	if errors.Is(err, db.ErrNotFound) {
		return db.StatusUnknown, nil
	}
	if err != nil {
		return "", err
	}
	return store.LatestStatus(id)
}
