package db

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore is a process-local Store. Nothing survives the process.
type MemoryStore struct {
	mu       sync.RWMutex
	nextID   int64
	projects map[string]int64
	names    map[int64]string
	builds   map[int64][]storedBuild
}

type storedBuild struct {
	Build
	files string
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		projects: make(map[string]int64),
		names:    make(map[int64]string),
		builds:   make(map[int64][]storedBuild),
	}
}

func (m *MemoryStore) ProjectID(name string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.projects[name]
	if !ok {
		return 0, fmt.Errorf("project %q: %w", name, ErrNotFound)
	}
	return id, nil
}

func (m *MemoryStore) ProjectName(id int64) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	name, ok := m.names[id]
	if !ok {
		return "", fmt.Errorf("project id %d: %w", id, ErrNotFound)
	}
	return name, nil
}

func (m *MemoryStore) EnsureProject(name string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.projects[name]; ok {
		return id, nil
	}
	m.nextID++
	m.projects[name] = m.nextID
	m.names[m.nextID] = name
	return m.nextID, nil
}

func (m *MemoryStore) Projects() ([]Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	projects := make([]Project, 0, len(m.projects))
	for name, id := range m.projects {
		projects = append(projects, Project{ID: id, Name: name})
	}
	sort.Slice(projects, func(i, j int) bool { return projects[i].Name < projects[j].Name })
	return projects, nil
}

func (m *MemoryStore) LatestBuildNumber(projectID int64) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	latest := 0
	for _, b := range m.builds[projectID] {
		latest = max(latest, b.Number)
	}
	return latest, nil
}

func (m *MemoryStore) LatestStatus(projectID int64) (Status, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	status, latest := StatusUnknown, 0
	for _, b := range m.builds[projectID] {
		if b.Branch == DefaultBranch && b.Number > latest {
			status, latest = b.Status, b.Number
		}
	}
	return status, nil
}

func (m *MemoryStore) Status(projectID int64, buildNumber int) (Status, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, b := range m.builds[projectID] {
		if b.Number == buildNumber {
			return b.Status, nil
		}
	}
	return StatusUnknown, nil
}

func (m *MemoryStore) AppendBuild(projectID int64, buildNumber int, status Status, files string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.names[projectID]; !ok {
		return fmt.Errorf("project id %d: %w", projectID, ErrNotFound)
	}
	for _, b := range m.builds[projectID] {
		if b.Number == buildNumber {
			return fmt.Errorf("build %d: %w", buildNumber, ErrDuplicateBuild)
		}
	}
	m.builds[projectID] = append(m.builds[projectID], storedBuild{
		Build: Build{
			ProjectID: projectID,
			Number:    buildNumber,
			Status:    status,
			Branch:    DefaultBranch,
			CreatedAt: time.Now().UTC(),
		},
		files: files,
	})
	return nil
}

func (m *MemoryStore) RecentBuilds(projectID int64, limit int) ([]Build, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stored := append([]storedBuild(nil), m.builds[projectID]...)
	sort.Slice(stored, func(i, j int) bool { return stored[i].Number > stored[j].Number })
	if limit >= 0 && len(stored) > limit {
		stored = stored[:limit]
	}
	builds := make([]Build, 0, len(stored))
	for _, s := range stored {
		b := s.Build
		b.Files = SplitFiles(s.files)
		builds = append(builds, b)
	}
	return builds, nil
}

func (m *MemoryStore) Close() error { return nil }
