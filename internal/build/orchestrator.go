package build

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/schererja/drovah/internal/artifacts"
	"github.com/schererja/drovah/internal/db"
	"github.com/schererja/drovah/internal/manifest"
	"github.com/schererja/drovah/internal/runner"
	"github.com/schererja/drovah/pkg/logger"
)

var ErrProjectNotFound = errors.New("project directory not found")

// State is a step of a build
type State string

const (
	StateIdle           State = "idle"
	StateBuilding       State = "building"
	StateArchiveSkipped State = "archive_skipped"
	StateArchiving      State = "archiving"
	StatePostArchive    State = "post_archive"
	StateDone           State = "done"
)

// Puller updates a project working copy before it is built
type Puller interface {
	Pull(project string) error
}

// BuildOptions captures caller-provided options
type BuildOptions struct {
	// BuildID identifies the run in logs and the active list. Generated when empty.
	BuildID string
	Project string
	// Pull runs the Puller before the manifest is read
	Pull bool
}

// BuildResult summarizes one orchestration run
type BuildResult struct {
	BuildID     string
	Project     string
	Status      db.Status
	BuildNumber int // 0 when nothing was recorded
	Recorded    bool
	Files       []string
	Duration    time.Duration
	// PostArchive is nil when no post-archive step ran
	PostArchive *bool
}

// ActiveBuild is a run in progress
type ActiveBuild struct {
	BuildID   string    `json:"buildId"`
	Project   string    `json:"project"`
	State     State     `json:"state"`
	StartedAt time.Time `json:"startedAt"`
}

// Options configures an Orchestrator
type Options struct {
	ProjectsDir string
	// RecordArchiveFailures persists a failing build when archival copies
	// nothing; by default such runs leave no record.
	RecordArchiveFailures bool
}

// Orchestrator drives manifest builds: run the build commands, archive, run
// post-archive commands and record the outcome. Runs of one project are
// serialized; different projects build in parallel.
type Orchestrator struct {
	opts     Options
	store    db.Store
	runner   *runner.Runner
	archiver *artifacts.Archiver
	puller   Puller
	logger   *logger.Logger

	locks *keyedMutex
	wg    sync.WaitGroup

	mu     sync.RWMutex
	active map[string]*ActiveBuild
}

// NewOrchestrator creates an Orchestrator. puller may be nil.
func NewOrchestrator(opts Options, store db.Store, archiver *artifacts.Archiver, puller Puller, logger *logger.Logger) *Orchestrator {
	return &Orchestrator{
		opts:     opts,
		store:    store,
		runner:   runner.NewRunner(logger),
		archiver: archiver,
		puller:   puller,
		logger:   logger,
		locks:    newKeyedMutex(),
		active:   make(map[string]*ActiveBuild),
	}
}

// ProjectDir returns the working copy directory of project
func (o *Orchestrator) ProjectDir(project string) string {
	return filepath.Join(o.opts.ProjectsDir, project)
}

// ProjectExists reports whether project names a directory under the projects
// root. Names containing path separators or dot segments never exist.
func (o *Orchestrator) ProjectExists(project string) bool {
	if project == "" || project == "." || project == ".." || strings.ContainsAny(project, `/\`) {
		return false
	}
	info, err := os.Stat(o.ProjectDir(project))
	return err == nil && info.IsDir()
}

// Projects lists the directories under the projects root
func (o *Orchestrator) Projects() ([]string, error) {
	entries, err := os.ReadDir(o.opts.ProjectsDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read projects directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// Trigger starts a run in the background and returns its build id. The run
// outlives ctx cancellation; errors are logged only.
func (o *Orchestrator) Trigger(ctx context.Context, opts BuildOptions) string {
	if opts.BuildID == "" {
		opts.BuildID = uuid.NewString()
	}
	ctx = context.WithoutCancel(ctx)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if _, err := o.Run(ctx, opts); err != nil {
			o.logger.ErrorContext(ctx, "build failed", err,
				slog.String("project", opts.Project),
				slog.String("build_id", opts.BuildID))
		}
	}()
	return opts.BuildID
}

// Wait blocks until every triggered run has finished
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Active lists runs in progress, oldest first
func (o *Orchestrator) Active() []ActiveBuild {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]ActiveBuild, 0, len(o.active))
	for _, b := range o.active {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// Run builds opts.Project synchronously. A missing project directory,
// a missing or malformed manifest, or a command that cannot be started
// returns an error and records nothing.
func (o *Orchestrator) Run(ctx context.Context, opts BuildOptions) (*BuildResult, error) {
	start := time.Now()
	if opts.BuildID == "" {
		opts.BuildID = uuid.NewString()
	}
	project := opts.Project
	if !o.ProjectExists(project) {
		return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, project)
	}

	log := o.logger.With(slog.String("project", project), slog.String("build_id", opts.BuildID))

	o.track(opts.BuildID, project)
	defer o.untrack(opts.BuildID)

	unlock := o.locks.Lock(project)
	defer unlock()

	dir := o.ProjectDir(project)
	if opts.Pull && o.puller != nil {
		if err := o.puller.Pull(project); err != nil {
			log.WarnContext(ctx, "pull failed, building current working copy", slog.String("error", err.Error()))
		}
	}

	m, err := manifest.Load(dir)
	if err != nil {
		return nil, err
	}

	projectID, err := o.store.EnsureProject(project)
	if err != nil {
		return nil, fmt.Errorf("failed to register project: %w", err)
	}

	result := &BuildResult{BuildID: opts.BuildID, Project: project, Files: []string{}}
	defer func() { result.Duration = time.Since(start) }()

	o.setState(opts.BuildID, StateBuilding)
	log.InfoContext(ctx, "build started", slog.Int("commands", len(m.Build.Commands)))

	ok, err := o.runner.Run(m.Build.Commands, dir, m.HasArchive())
	if err != nil {
		return nil, fmt.Errorf("build commands: %w", err)
	}

	if !ok {
		result.Status = db.StatusFailing
		if err := o.record(projectID, result); err != nil {
			return result, err
		}
		o.setState(opts.BuildID, StateDone)
		log.InfoContext(ctx, "build failing", slog.Int("build_number", result.BuildNumber))
		return result, nil
	}

	if !m.HasArchive() {
		o.setState(opts.BuildID, StateArchiveSkipped)
		result.Status = db.StatusPassing
		if err := o.record(projectID, result); err != nil {
			return result, err
		}
		o.setState(opts.BuildID, StateDone)
		log.InfoContext(ctx, "build passing", slog.Int("build_number", result.BuildNumber))
		return result, nil
	}

	o.setState(opts.BuildID, StateArchiving)
	archived, err := o.archiver.Archive(projectID, m.Archive.Files, m.Archive.AppendsBuildNumber())
	if err != nil {
		log.ErrorContext(ctx, "archive failed", err)
		result.Status = db.StatusFailing
		if o.opts.RecordArchiveFailures {
			if recErr := o.record(projectID, result); recErr != nil {
				return result, recErr
			}
		}
		o.setState(opts.BuildID, StateDone)
		return result, fmt.Errorf("archive: %w", err)
	}

	result.Status = db.StatusPassing
	result.BuildNumber = archived.BuildNumber
	result.Files = archived.Files
	result.Recorded = true
	log.InfoContext(ctx, "build passing",
		slog.Int("build_number", result.BuildNumber),
		slog.String("files", db.JoinFiles(result.Files)))

	if m.PostArchive != nil {
		o.setState(opts.BuildID, StatePostArchive)
		postOK, err := o.runner.Run(m.PostArchive.Commands, dir, false)
		if err != nil {
			log.ErrorContext(ctx, "post-archive commands could not run", err)
		}
		postOK = postOK && err == nil
		result.PostArchive = &postOK
		log.InfoContext(ctx, "post-archive finished", slog.Bool("succeeded", postOK))
	}

	o.setState(opts.BuildID, StateDone)
	return result, nil
}

// record appends result with the next build number, which is only safe under
// the project lock
func (o *Orchestrator) record(projectID int64, result *BuildResult) error {
	latest, err := o.store.LatestBuildNumber(projectID)
	if err != nil {
		return fmt.Errorf("failed to read latest build number: %w", err)
	}
	n := latest + 1
	if err := o.store.AppendBuild(projectID, n, result.Status, db.JoinFiles(result.Files)); err != nil {
		return fmt.Errorf("failed to record build: %w", err)
	}
	result.BuildNumber = n
	result.Recorded = true
	return nil
}

func (o *Orchestrator) track(buildID, project string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.active[buildID] = &ActiveBuild{BuildID: buildID, Project: project, State: StateIdle, StartedAt: time.Now()}
}

func (o *Orchestrator) untrack(buildID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.active, buildID)
}

func (o *Orchestrator) setState(buildID string, s State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if b, ok := o.active[buildID]; ok {
		b.State = s
	}
}
