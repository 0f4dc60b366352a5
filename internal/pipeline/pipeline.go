// Package pipeline sequences the package-and-publish run: discover functions
// from a template, build each one's isolated dependency closure, archive it,
// upload the archives, and rewrite the template to point at the uploaded
// locations.
package pipeline

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var (
	ErrUnsupportedRuntime  = errors.New("unsupported runtime")
	ErrMissingCodeURI      = errors.New("function resource has no code location")
	ErrInvalidFunctionName = errors.New("invalid function name")
)

// supportedRuntimes is the Python family this tool can package.
var supportedRuntimes = map[string]bool{
	"python2.7":  true,
	"python3.6":  true,
	"python3.7":  true,
	"python3.8":  true,
	"python3.9":  true,
	"python3.10": true,
	"python3.11": true,
	"python3.12": true,
}

// Function is a read-only view over one eligible template resource.
type Function struct {
	Name    string
	Runtime string

	// SourceDir is the function's code directory, resolved against the
	// template's directory.
	SourceDir string
}

// PythonVersion returns the interpreter version fragment of a runtime string,
// e.g. "3.11" for "python3.11".
func (f Function) PythonVersion() string {
	return strings.TrimPrefix(f.Runtime, "python")
}

func resolveSource(templateDir, codeURI string) string {
	if filepath.IsAbs(codeURI) {
		return codeURI
	}
	return filepath.Join(templateDir, codeURI)
}

func unsupported(name, runtime string) error {
	return fmt.Errorf("%w: function %s declares %q", ErrUnsupportedRuntime, name, runtime)
}

// safeName rejects resource names that cannot serve as a single path
// component under the workspace.
func safeName(name string) bool {
	return name != "" && name != "." && name != ".." &&
		!strings.ContainsAny(name, `/\`)
}
