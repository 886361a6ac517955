package db

import (
	"errors"
	"strings"
	"time"
)

// Status is the recorded outcome of a build
type Status string

const (
	StatusPassing Status = "passing"
	StatusFailing Status = "failing"
	// StatusUnknown is reported for projects or build numbers with no record
	StatusUnknown Status = "unknown"
)

// DefaultBranch labels every build; branch selection is not configurable.
const DefaultBranch = "master"

// FilesSeparator joins archived file names in a stored build row
const FilesSeparator = ", "

var (
	ErrNotFound       = errors.New("not found")
	ErrDuplicateBuild = errors.New("build number already recorded")
)

// Project is a directory under the projects root that has been seen by the store
type Project struct {
	ID   int64
	Name string
}

// Build is an immutable record of one orchestration run
type Build struct {
	ProjectID int64
	Number    int
	Status    Status
	Files     []string
	Branch    string
	CreatedAt time.Time
}

// Store is the durable record of projects and their builds. Implementations
// must be safe for concurrent use.
type Store interface {
	// ProjectID returns ErrNotFound for unknown names
	ProjectID(name string) (int64, error)
	ProjectName(id int64) (string, error)
	// EnsureProject returns the id for name, creating the project if needed
	EnsureProject(name string) (int64, error)
	Projects() ([]Project, error)

	// LatestBuildNumber is 0 when the project has no builds
	LatestBuildNumber(projectID int64) (int, error)
	LatestStatus(projectID int64) (Status, error)
	Status(projectID int64, buildNumber int) (Status, error)
	// AppendBuild records a build. files is the archived file list joined by
	// FilesSeparator. A number that already exists yields ErrDuplicateBuild.
	AppendBuild(projectID int64, buildNumber int, status Status, files string) error
	// RecentBuilds returns up to limit builds, newest first
	RecentBuilds(projectID int64, limit int) ([]Build, error)

	Close() error
}

// JoinFiles encodes a file list for AppendBuild
func JoinFiles(files []string) string {
	return strings.Join(files, FilesSeparator)
}

// SplitFiles decodes a stored file list. An empty string is an empty list.
func SplitFiles(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.Split(s, FilesSeparator)
}
