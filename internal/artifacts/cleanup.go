package artifacts

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/docker/go-units"
)

// RetentionPolicy defines rules for cleaning up archived builds. Store
// records are never touched.
type RetentionPolicy struct {
	KeepLast int           // Keep the newest N builds (0 = no limit)
	MaxAge   time.Duration // Delete builds older than this (0 = no limit)
	MaxSize  int64         // Delete oldest builds once the project total exceeds this many bytes (0 = no limit)
}

// IsZero reports whether the policy would never delete anything
func (p RetentionPolicy) IsZero() bool {
	return p.KeepLast <= 0 && p.MaxAge <= 0 && p.MaxSize <= 0
}

// ParseSize parses a human size such as "10GB". An empty string is 0.
func ParseSize(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	n, err := units.FromHumanSize(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	return n, nil
}

// FormatSize formats a size in bytes to human-readable format
func FormatSize(bytes int64) string {
	return units.HumanSize(float64(bytes))
}

type expiredBuild struct {
	BuildDir
	reason string
}

// expired selects the builds policy removes. builds is newest first, so once
// the size limit is hit every older build goes too.
func expired(builds []BuildDir, policy RetentionPolicy, now time.Time) []expiredBuild {
	var kept int64
	overSize := false
	var out []expiredBuild

	for i, b := range builds {
		reason := ""
		switch {
		case policy.KeepLast > 0 && i >= policy.KeepLast:
			reason = "count"
		case policy.MaxAge > 0 && now.Sub(b.ModTime) > policy.MaxAge:
			reason = "age"
		case policy.MaxSize > 0 && (overSize || kept+b.Size > policy.MaxSize):
			overSize = true
			reason = "size"
		}
		if reason == "" {
			kept += b.Size
			continue
		}
		out = append(out, expiredBuild{BuildDir: b, reason: reason})
	}
	return out
}

// Plan returns the builds of project that Cleanup would remove
func (m *Manager) Plan(project string, policy RetentionPolicy) ([]BuildDir, error) {
	builds, err := m.ListBuilds(project)
	if err != nil {
		return nil, fmt.Errorf("failed to list builds for cleanup: %w", err)
	}
	var out []BuildDir
	for _, e := range expired(builds, policy, time.Now()) {
		out = append(out, e.BuildDir)
	}
	return out, nil
}

// Cleanup applies policy to the archived builds of project and returns the
// builds that were removed.
func (m *Manager) Cleanup(project string, policy RetentionPolicy) ([]BuildDir, error) {
	builds, err := m.ListBuilds(project)
	if err != nil {
		return nil, fmt.Errorf("failed to list builds for cleanup: %w", err)
	}

	var removed []BuildDir
	for _, b := range expired(builds, policy, time.Now()) {
		if err := m.DeleteBuild(project, b.Number); err != nil {
			m.logger.Error("failed to delete archived build", err,
				slog.String("project", project), slog.Int("build_number", b.Number))
			continue
		}
		m.logger.Info("deleted archived build",
			slog.String("project", project),
			slog.Int("build_number", b.Number),
			slog.String("reason", b.reason),
			slog.String("size", FormatSize(b.Size)))
		removed = append(removed, b.BuildDir)
	}

	return removed, nil
}

// CleanupAll applies policy to every project in the archive
func (m *Manager) CleanupAll(policy RetentionPolicy) ([]BuildDir, error) {
	projects, err := m.Projects()
	if err != nil {
		return nil, err
	}
	var removed []BuildDir
	for _, p := range projects {
		r, err := m.Cleanup(p, policy)
		if err != nil {
			return removed, err
		}
		removed = append(removed, r...)
	}
	return removed, nil
}
