package pyenv

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/rs/zerolog/log"
)

// PipenvManager shells out to the pipenv tool to manage per-function
// environments. Environments are kept inside the project directory
// (PIPENV_VENV_IN_PROJECT) so that one function's install can never leak into
// another's.
type PipenvManager struct {
	bin string
}

// NewPipenvManager locates the pipenv binary on the host. A missing binary is
// fatal for the whole run, so it is checked here, before any work starts.
func NewPipenvManager() (*PipenvManager, error) {
	bin, err := exec.LookPath("pipenv")
	if err != nil {
		return nil, fmt.Errorf("pipenv not found on PATH (install pipenv to package functions with dependencies): %w", err)
	}
	return &PipenvManager{bin: bin}, nil
}

func (m *PipenvManager) Create(ctx context.Context, projectDir, pythonVersion string) error {
	if _, err := m.run(ctx, projectDir, "--python", pythonVersion); err != nil {
		return fmt.Errorf("creating environment: %w", err)
	}
	return nil
}

func (m *PipenvManager) Locate(ctx context.Context, projectDir string) (string, error) {
	out, err := m.run(ctx, projectDir, "--venv")
	if err != nil {
		return "", fmt.Errorf("locating environment: %w", err)
	}
	root := strings.TrimSpace(out)
	if root == "" {
		return "", fmt.Errorf("locating environment: pipenv reported no environment for %s", projectDir)
	}
	return root, nil
}

func (m *PipenvManager) Install(ctx context.Context, projectDir string) error {
	if _, err := m.run(ctx, projectDir, "install"); err != nil {
		return fmt.Errorf("installing dependencies: %w", err)
	}
	return nil
}

func (m *PipenvManager) Destroy(ctx context.Context, projectDir string) error {
	if _, err := m.run(ctx, projectDir, "--rm"); err != nil {
		return fmt.Errorf("destroying environment: %w", err)
	}
	return nil
}

func (m *PipenvManager) run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, m.bin, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"PIPENV_VENV_IN_PROJECT=1",
		"PIPENV_IGNORE_VIRTUALENVS=1",
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.Debug().Str("dir", dir).Strs("args", args).Msg("Running pipenv")

	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return "", fmt.Errorf("pipenv %s exited with code %d: %s",
				strings.Join(args, " "), exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
		}
		return "", fmt.Errorf("running pipenv %s: %w", strings.Join(args, " "), err)
	}

	return stdout.String(), nil
}
