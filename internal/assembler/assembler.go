// Package assembler stages function code with its dependency closure and
// compresses the result into deployment archives.
package assembler

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gobwas/glob"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zip"

	"github.com/colten/sfpack/internal/pyenv"
)

// DefaultExcludes are staging exclude patterns applied when the user
// configures none.
var DefaultExcludes = []string{
	".git",
	".venv",
	"__pycache__",
	"**/__pycache__",
	"*.pyc",
	"**/*.pyc",
}

// Assembler copies staged trees and produces zip archives.
type Assembler struct {
	excludes []glob.Glob
}

// New compiles the exclude patterns into an Assembler. The in-project
// virtualenv is excluded no matter what the caller configures; staging it
// would ship the whole environment inside the archive.
func New(excludePatterns []string) (*Assembler, error) {
	patterns := append([]string{".venv"}, excludePatterns...)
	excludes := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("compiling exclude pattern %q: %w", p, err)
		}
		excludes = append(excludes, g)
	}
	return &Assembler{excludes: excludes}, nil
}

// Stage copies the function source tree and each closure entry into destDir.
// Closure entries that are directories keep their structure; plain files are
// copied as-is.
func (a *Assembler) Stage(srcDir string, closure []pyenv.Entry, destDir string) error {
	if err := a.copyTree(srcDir, destDir); err != nil {
		return fmt.Errorf("staging source %s: %w", srcDir, err)
	}

	for _, entry := range closure {
		info, err := os.Stat(entry.Path)
		if err != nil {
			return fmt.Errorf("staging dependency %s: %w", entry.Name, err)
		}
		target := filepath.Join(destDir, entry.Name)
		if info.IsDir() {
			err = a.copyTree(entry.Path, target)
		} else {
			err = copyFile(entry.Path, target, info.Mode())
		}
		if err != nil {
			return fmt.Errorf("staging dependency %s: %w", entry.Name, err)
		}
	}
	return nil
}

// Archive compresses the staged tree into a zip named with a fresh random
// identifier and relocates it into artifactsDir. Paths inside the archive are
// relative to stagedDir with no leading component.
func (a *Assembler) Archive(stagedDir, artifactsDir string) (string, error) {
	name := uuid.NewString() + ".zip"
	tmpPath := filepath.Join(filepath.Dir(stagedDir), name+".partial")

	if err := writeZip(stagedDir, tmpPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("archiving %s: %w", stagedDir, err)
	}

	finalPath := filepath.Join(artifactsDir, name)
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("relocating archive: %w", err)
	}
	return name, nil
}

func writeZip(root, dest string) error {
	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer f.Close()

	zw := zip.NewWriter(f)

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			_, err := zw.Create(rel + "/")
			return err
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		hdr, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		hdr.Name = rel
		hdr.Method = zip.Deflate

		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return err
		}
		src, err := os.Open(path)
		if err != nil {
			return err
		}
		defer src.Close()
		_, err = io.Copy(w, src)
		return err
	})
	if err != nil {
		zw.Close()
		return err
	}

	return zw.Close()
}

func (a *Assembler) copyTree(src, dest string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return os.MkdirAll(dest, 0o755)
		}
		if a.excluded(filepath.ToSlash(rel)) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		target := filepath.Join(dest, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		return copyFile(path, target, info.Mode())
	})
}

func (a *Assembler) excluded(rel string) bool {
	for _, g := range a.excludes {
		if g.Match(rel) {
			return true
		}
	}
	return false
}

func copyFile(src, dest string, mode fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode.Perm())
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
