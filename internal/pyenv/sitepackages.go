package pyenv

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

var ErrNoSitePackages = errors.New("no site-packages directory in environment")

// Entry is one installed package directory or file inside an environment's
// site-packages.
type Entry struct {
	Name string
	Path string
}

// SitePackages returns the package install path of an environment root. The
// path is derived from the environment itself rather than a fixed interpreter
// version, so any Python minor version works.
func SitePackages(envRoot string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(envRoot, "lib", "python*", "site-packages"))
	if err != nil {
		return "", fmt.Errorf("scanning environment %s: %w", envRoot, err)
	}
	if len(matches) > 0 {
		sort.Strings(matches)
		return matches[0], nil
	}

	// Windows virtualenv layout.
	win := filepath.Join(envRoot, "Lib", "site-packages")
	if info, err := os.Stat(win); err == nil && info.IsDir() {
		return win, nil
	}

	return "", fmt.Errorf("%w: %s", ErrNoSitePackages, envRoot)
}

// Baseline returns the names of everything present in a freshly created
// environment, before any install. Recomputed per build because the set
// depends on the interpreter version.
func Baseline(envRoot string) (map[string]struct{}, error) {
	dir, err := SitePackages(envRoot)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading site-packages: %w", err)
	}

	baseline := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		baseline[e.Name()] = struct{}{}
	}
	return baseline, nil
}

// Closure returns the site-packages entries of envRoot that are not in
// baseline, sorted by name. An installed package whose name collides with a
// baseline entry is treated as already satisfied and excluded.
func Closure(envRoot string, baseline map[string]struct{}) ([]Entry, error) {
	dir, err := SitePackages(envRoot)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading site-packages: %w", err)
	}

	var closure []Entry
	for _, e := range entries {
		if _, ok := baseline[e.Name()]; ok {
			continue
		}
		closure = append(closure, Entry{
			Name: e.Name(),
			Path: filepath.Join(dir, e.Name()),
		})
	}

	sort.Slice(closure, func(i, j int) bool {
		return closure[i].Name < closure[j].Name
	})
	return closure, nil
}
