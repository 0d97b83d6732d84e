package search

import (
	"os"
	"path/filepath"
)

// projectMarkers are files whose presence makes a directory a project root.
var projectMarkers = []string{
	"go.mod",
	"package.json",
	"Cargo.toml",
	"pyproject.toml",
	"requirements.txt",
	"pom.xml",
	"build.gradle",
	"composer.json",
	"Gemfile",
	"CMakeLists.txt",
	"Makefile",
}

// IsGitRepo reports whether dir directly contains a .git directory.
func IsGitRepo(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, ".git"))
	return err == nil && info.IsDir()
}

// IsProject reports whether dir directly contains a known build manifest.
func IsProject(dir string) bool {
	for _, marker := range projectMarkers {
		if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
			return true
		}
	}
	return false
}
