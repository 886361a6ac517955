package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// FileName is the per-project build manifest, read from the project root
const FileName = ".drovah"

// Manifest is the parsed build configuration of a project
type Manifest struct {
	Build       BuildSection        `toml:"build"`
	Archive     *ArchiveSection     `toml:"archive"`
	PostArchive *PostArchiveSection `toml:"postarchive"`
}

type BuildSection struct {
	Commands []string `toml:"commands"`
}

type ArchiveSection struct {
	Files             []string `toml:"files"`
	AppendBuildNumber *bool    `toml:"append_buildnumber"`
}

type PostArchiveSection struct {
	Commands []string `toml:"commands"`
}

var ErrNoBuildCommands = errors.New("manifest has no build commands")

// Load reads and parses the manifest in projectDir. The file is read fresh
// on every call.
func Load(projectDir string) (*Manifest, error) {
	path := filepath.Join(projectDir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	return m, nil
}

// Parse decodes manifest bytes
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	if len(m.Build.Commands) == 0 {
		return nil, ErrNoBuildCommands
	}
	return &m, nil
}

// HasArchive reports whether an archive section is present
func (m *Manifest) HasArchive() bool {
	return m.Archive != nil
}

// AppendsBuildNumber reports whether archived files are renamed to embed the
// build number. Defaults to false when unset.
func (a *ArchiveSection) AppendsBuildNumber() bool {
	return a != nil && a.AppendBuildNumber != nil && *a.AppendBuildNumber
}
