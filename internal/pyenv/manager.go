// Package pyenv builds isolated Python dependency environments for functions.
package pyenv

import (
	"context"
	"os"
	"path/filepath"
)

// Manifest filenames that mark a function directory as having third-party
// dependencies.
var manifestNames = []string{"Pipfile", "requirements.txt"}

// Manager provisions and tears down isolated dependency environments. The
// project directory is always passed explicitly; implementations must not
// change the process working directory.
type Manager interface {
	// Create provisions a fresh, empty environment for the project using the
	// given interpreter version (e.g. "3.11").
	Create(ctx context.Context, projectDir, pythonVersion string) error

	// Locate returns the root directory of the project's environment.
	Locate(ctx context.Context, projectDir string) (string, error)

	// Install resolves and installs the project's manifest into its
	// environment.
	Install(ctx context.Context, projectDir string) error

	// Destroy removes the project's environment. Best effort; callers may
	// ignore the error.
	Destroy(ctx context.Context, projectDir string) error
}

// HasManifest reports whether dir contains a recognized dependency manifest,
// and which one.
func HasManifest(dir string) (string, bool) {
	for _, name := range manifestNames {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return name, true
		}
	}
	return "", false
}
