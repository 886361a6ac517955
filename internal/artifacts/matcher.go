package artifacts

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Match resolves a manifest file pattern to a real file. A pattern naming an
// existing regular file is returned unchanged. Otherwise its last path segment
// is a name prefix and the first regular file in the parent directory, in
// lexical order, that starts with it is returned, keeping the pattern's own
// directory spelling: Match("./.dro") yields "./.drovah".
func Match(pattern string) (string, bool) {
	if info, err := os.Stat(pattern); err == nil && info.Mode().IsRegular() {
		return pattern, true
	}

	dir, prefix := filepath.Split(pattern)
	if prefix == "" {
		return "", false
	}
	listDir := dir
	if listDir == "" {
		listDir = "."
	}

	// os.ReadDir sorts by name, which keeps the choice stable across filesystems.
	entries, err := os.ReadDir(listDir)
	if err != nil {
		return "", false
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		return dir + entry.Name(), true
	}
	return "", false
}

// DestinationName is the archived name of file for a build. With appendNumber
// the build number is inserted before the extension: project-v2.1.zip at build
// 5 becomes project-v2.1-b5.zip. A name without an extension gets the suffix
// appended, and a dotfile such as .env is treated as having no extension.
func DestinationName(name string, buildNumber int, appendNumber bool) string {
	if !appendNumber {
		return name
	}
	ext := filepath.Ext(name)
	if ext == name {
		ext = ""
	}
	stem := strings.TrimSuffix(name, ext)
	return stem + "-b" + strconv.Itoa(buildNumber) + ext
}
