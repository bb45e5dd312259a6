package importer

import (
	"os"
	"path/filepath"
)

// EnvPath lists extra search directories, separated like PATH.
const EnvPath = "RECORDKIT_PATH"

// ProcessPath returns the default search path: the entries of
// RECORDKIT_PATH followed by the working directory.
func ProcessPath() []string {
	var paths []string
	for _, p := range filepath.SplitList(os.Getenv(EnvPath)) {
		if p != "" {
			paths = append(paths, p)
		}
	}
	if wd, err := os.Getwd(); err == nil {
		paths = append(paths, wd)
	}
	return paths
}
