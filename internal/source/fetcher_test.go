package source

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/schererja/drovah/pkg/logger"
)

func TestNameFromURL(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"https://github.com/Gyarados4157/drovah.git": "drovah",
		"https://github.com/owner/myapp":             "myapp",
		"https://github.com/owner/myapp/":            "myapp",
		"git@github.com:owner/myapp.git":             "myapp",
		"/srv/git/local-repo.git":                    "local-repo",
		"file:///srv/git/other.git":                  "other",
	}
	for in, want := range cases {
		got, err := NameFromURL(in)
		if err != nil {
			t.Errorf("NameFromURL(%q) returned error: %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("NameFromURL(%q) = %q, want %q", in, got, want)
		}
	}

	for _, bad := range []string{"", "https://github.com/", ".git"} {
		if _, err := NameFromURL(bad); !errors.Is(err, ErrInvalidURL) {
			t.Errorf("NameFromURL(%q): expected ErrInvalidURL, got %v", bad, err)
		}
	}
}

func TestIsGitRepository(t *testing.T) {
	tmpDir := t.TempDir()
	fetcher := NewFetcher(tmpDir, logger.NewTestLogger())

	t.Run("directory with .git", func(t *testing.T) {
		gitDir := filepath.Join(tmpDir, "repo-with-git")
		os.MkdirAll(filepath.Join(gitDir, ".git"), 0755)

		if !fetcher.isGitRepository(gitDir) {
			t.Error("Should detect .git directory")
		}
	})

	t.Run("directory without .git", func(t *testing.T) {
		noGitDir := filepath.Join(tmpDir, "repo-without-git")
		os.MkdirAll(noGitDir, 0755)

		if fetcher.isGitRepository(noGitDir) {
			t.Error("Should not detect git in directory without .git")
		}
	})

	t.Run("non-existent directory", func(t *testing.T) {
		if fetcher.isGitRepository("/nonexistent/path") {
			t.Error("Should return false for non-existent directory")
		}
	})
}

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
}

func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	args = append([]string{"-c", "user.name=drovah", "-c", "user.email=drovah@example.com"}, args...)
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %v failed: %v\n%s", args, err, out)
	}
}

// newOrigin creates a repository with one commit
func newOrigin(t *testing.T) string {
	t.Helper()
	origin := filepath.Join(t.TempDir(), "myapp.git")
	if err := os.MkdirAll(origin, 0755); err != nil {
		t.Fatalf("failed to create origin: %v", err)
	}
	runGit(t, origin, "init", "-q")
	if err := os.WriteFile(filepath.Join(origin, ".drovah"), []byte("[build]\ncommands = [\"true\"]\n"), 0644); err != nil {
		t.Fatalf("failed to write manifest: %v", err)
	}
	runGit(t, origin, "add", ".drovah")
	runGit(t, origin, "commit", "-q", "-m", "initial")
	return origin
}

func TestCloneAndPull(t *testing.T) {
	requireGit(t)
	origin := newOrigin(t)
	fetcher := NewFetcher(filepath.Join(t.TempDir(), "projects"), logger.NewTestLogger())

	res, err := fetcher.Clone(origin)
	if err != nil {
		t.Fatalf("Clone failed: %v", err)
	}
	if res.Project != "myapp" {
		t.Errorf("expected project myapp, got %s", res.Project)
	}
	if !fetcher.Exists("myapp") {
		t.Fatalf("working copy missing after clone")
	}
	if _, err := os.Stat(filepath.Join(res.Path, ".drovah")); err != nil {
		t.Errorf("manifest not cloned: %v", err)
	}

	if _, err := fetcher.Clone(origin); !errors.Is(err, ErrProjectExists) {
		t.Errorf("expected ErrProjectExists on second clone, got %v", err)
	}

	if err := os.WriteFile(filepath.Join(origin, "new.txt"), []byte("new"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	runGit(t, origin, "add", "new.txt")
	runGit(t, origin, "commit", "-q", "-m", "second")

	if err := fetcher.Pull("myapp"); err != nil {
		t.Fatalf("Pull failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(res.Path, "new.txt")); err != nil {
		t.Errorf("pull did not bring new.txt: %v", err)
	}
}

func TestClone_Failure(t *testing.T) {
	requireGit(t)
	fetcher := NewFetcher(t.TempDir(), logger.NewTestLogger())

	if _, err := fetcher.Clone(filepath.Join(t.TempDir(), "missing.git")); err == nil {
		t.Fatalf("expected clone of a missing repository to fail")
	}
	if fetcher.Exists("missing") {
		t.Errorf("failed clone must not leave a directory behind")
	}
}

func TestPull_NotARepository(t *testing.T) {
	dir := t.TempDir()
	fetcher := NewFetcher(dir, logger.NewTestLogger())
	os.MkdirAll(filepath.Join(dir, "plain"), 0755)

	if err := fetcher.Pull("plain"); err == nil {
		t.Errorf("expected error pulling a non-git directory")
	}
}

func TestRemoveAndList(t *testing.T) {
	dir := t.TempDir()
	fetcher := NewFetcher(dir, logger.NewTestLogger())
	os.MkdirAll(filepath.Join(dir, "a"), 0755)
	os.MkdirAll(filepath.Join(dir, "b"), 0755)
	os.WriteFile(filepath.Join(dir, "stray.txt"), []byte("x"), 0644)

	names, err := fetcher.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Errorf("unexpected projects %v", names)
	}

	if err := fetcher.Remove("a"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if fetcher.Exists("a") {
		t.Errorf("project a still exists")
	}
	if err := fetcher.Remove("a"); !errors.Is(err, ErrNoProject) {
		t.Errorf("expected ErrNoProject, got %v", err)
	}
}

func TestRemove_RejectsNamesOutsideProjectsDir(t *testing.T) {
	data := t.TempDir()
	projectsDir := filepath.Join(data, "projects")
	for _, p := range []string{
		filepath.Join(projectsDir, "app"),
		filepath.Join(data, "archive", "app", "1"),
	} {
		if err := os.MkdirAll(p, 0755); err != nil {
			t.Fatalf("failed to create %s: %v", p, err)
		}
	}
	dbPath := filepath.Join(data, "drovah.db")
	if err := os.WriteFile(dbPath, []byte("db"), 0644); err != nil {
		t.Fatalf("failed to write db: %v", err)
	}

	fetcher := NewFetcher(projectsDir, logger.NewTestLogger())
	for _, name := range []string{"..", ".", "", "../archive", "app/../..", `..\archive`} {
		if fetcher.Exists(name) {
			t.Errorf("Exists(%q) should be false", name)
		}
		if err := fetcher.Remove(name); !errors.Is(err, ErrNoProject) {
			t.Errorf("Remove(%q): expected ErrNoProject, got %v", name, err)
		}
		if err := fetcher.Pull(name); !errors.Is(err, ErrNoProject) {
			t.Errorf("Pull(%q): expected ErrNoProject, got %v", name, err)
		}
	}

	for _, p := range []string{dbPath, filepath.Join(data, "archive", "app", "1"), filepath.Join(projectsDir, "app")} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("%s was removed: %v", p, err)
		}
	}
}
