package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/colten/sfpack/internal/assembler"
	"github.com/colten/sfpack/internal/publisher"
	"github.com/colten/sfpack/internal/pyenv"
	"github.com/colten/sfpack/internal/template"
)

// Options configure one packaging run.
type Options struct {
	// TemplatePath is the deployment template to package.
	TemplatePath string

	// OutputPath receives the rewritten template; empty writes it to Out.
	OutputPath string

	// Bucket is the remote artifact bucket.
	Bucket string

	// Prefix is the remote key prefix; empty derives one from the current
	// time so every run uploads under a fresh namespace.
	Prefix string

	// Excludes are staging exclude globs; nil uses assembler.DefaultExcludes.
	Excludes []string

	// DryRun stops after discovery and reports what would be packaged.
	DryRun bool

	// Out receives the rewritten template when OutputPath is empty.
	// Defaults to os.Stdout.
	Out io.Writer
}

// Runner executes the pipeline. Functions are processed strictly one at a
// time, in template declaration order; any failure aborts the whole run and
// leaves the workspace on disk for inspection.
type Runner struct {
	opts    Options
	manager pyenv.Manager
	sink    publisher.Sink
	asm     *assembler.Assembler

	workspace string
}

// New builds a Runner. The manager may be nil for dry runs; the sink may be
// nil for dry runs or templates with no eligible functions.
func New(opts Options, manager pyenv.Manager, sink publisher.Sink) (*Runner, error) {
	excludes := opts.Excludes
	if excludes == nil {
		excludes = assembler.DefaultExcludes
	}
	asm, err := assembler.New(excludes)
	if err != nil {
		return nil, err
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Prefix == "" {
		opts.Prefix = fmt.Sprintf("sfpack-%d", time.Now().Unix())
	}
	return &Runner{opts: opts, manager: manager, sink: sink, asm: asm}, nil
}

// Workspace returns the run's workspace directory. Empty until Run has
// created it; on abort the directory is left behind for postmortem use.
func (r *Runner) Workspace() string {
	return r.workspace
}

// Run executes one full pass. On success the workspace is removed and the
// rewritten template is written out; on error the workspace is retained.
func (r *Runner) Run(ctx context.Context) error {
	doc, err := template.LoadFile(r.opts.TemplatePath)
	if err != nil {
		return err
	}

	if err := r.createWorkspace(); err != nil {
		return err
	}

	functions, err := discover(doc, filepath.Dir(r.opts.TemplatePath))
	if err != nil {
		return err
	}
	log.Info().Int("count", len(functions)).Msg("Functions discovered")

	if r.opts.DryRun {
		for _, fn := range functions {
			log.Info().
				Str("function", fn.Name).
				Str("runtime", fn.Runtime).
				Str("source", fn.SourceDir).
				Msg("Would package")
		}
		r.removeWorkspace()
		return nil
	}

	artifactsDir := filepath.Join(r.workspace, "artifacts")

	for _, fn := range functions {
		if err := r.packageFunction(ctx, doc, fn, artifactsDir); err != nil {
			log.Error().Err(err).
				Str("function", fn.Name).
				Str("workspace", r.workspace).
				Msg("Packaging failed, workspace retained")
			return err
		}
	}

	if len(functions) > 0 {
		pub := publisher.New(r.sink, r.opts.Bucket)
		if _, err := pub.PublishAll(ctx, artifactsDir, r.opts.Prefix); err != nil {
			log.Error().Err(err).Str("workspace", r.workspace).Msg("Upload failed, workspace retained")
			return err
		}
	}

	if err := r.writeTemplate(doc); err != nil {
		return err
	}

	r.removeWorkspace()
	return nil
}

// discover walks the template's resources in declaration order and derives a
// Function for each eligible one. Any function resource declaring a runtime
// outside the supported family aborts discovery.
func discover(doc *template.Document, templateDir string) ([]Function, error) {
	var functions []Function
	for _, res := range doc.Resources() {
		if !res.IsFunction() {
			continue
		}

		if !safeName(res.Name) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidFunctionName, res.Name)
		}

		runtime, _ := res.Runtime()
		if !supportedRuntimes[runtime] {
			return nil, unsupported(res.Name, runtime)
		}

		codeURI, ok := res.CodeLocation()
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingCodeURI, res.Name)
		}

		functions = append(functions, Function{
			Name:      res.Name,
			Runtime:   runtime,
			SourceDir: resolveSource(templateDir, codeURI),
		})
	}
	return functions, nil
}

func (r *Runner) packageFunction(ctx context.Context, doc *template.Document, fn Function, artifactsDir string) error {
	log.Info().Str("function", fn.Name).Str("runtime", fn.Runtime).Msg("Packaging function")

	// Staging lives in its own subtree so a function name can never collide
	// with the shared artifacts directory.
	stagingDir := filepath.Join(r.workspace, "build", fn.Name)
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return fmt.Errorf("creating staging directory: %w", err)
	}

	closure, err := r.buildClosure(ctx, fn)
	if err != nil {
		return err
	}

	if err := r.asm.Stage(fn.SourceDir, closure, stagingDir); err != nil {
		return err
	}

	name, err := r.asm.Archive(stagingDir, artifactsDir)
	if err != nil {
		return err
	}

	location := fmt.Sprintf("s3://%s/%s/%s", r.opts.Bucket, r.opts.Prefix, name)
	if err := doc.SetCodeLocation(fn.Name, location); err != nil {
		return err
	}

	log.Debug().Str("function", fn.Name).Str("archive", name).Msg("Function archived")
	return nil
}

// buildClosure provisions an isolated environment for the function, installs
// its manifest, and diffs the result against the environment's own baseline.
// Functions without a manifest skip all of this. The environment is torn down
// before the next function builds, best effort.
func (r *Runner) buildClosure(ctx context.Context, fn Function) ([]pyenv.Entry, error) {
	manifest, ok := pyenv.HasManifest(fn.SourceDir)
	if !ok {
		return nil, nil
	}
	log.Debug().Str("function", fn.Name).Str("manifest", manifest).Msg("Resolving dependencies")

	if err := r.manager.Create(ctx, fn.SourceDir, fn.PythonVersion()); err != nil {
		return nil, err
	}
	defer func() {
		if err := r.manager.Destroy(ctx, fn.SourceDir); err != nil {
			log.Warn().Err(err).Str("function", fn.Name).Msg("Failed to destroy environment")
		}
	}()

	envRoot, err := r.manager.Locate(ctx, fn.SourceDir)
	if err != nil {
		return nil, err
	}

	baseline, err := pyenv.Baseline(envRoot)
	if err != nil {
		return nil, err
	}

	if err := r.manager.Install(ctx, fn.SourceDir); err != nil {
		return nil, err
	}

	return pyenv.Closure(envRoot, baseline)
}

func (r *Runner) createWorkspace() error {
	ws, err := os.MkdirTemp("", "sfpack-"+uuid.NewString()[:8]+"-")
	if err != nil {
		return fmt.Errorf("creating workspace: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(ws, "artifacts"), 0o755); err != nil {
		os.RemoveAll(ws)
		return fmt.Errorf("creating artifacts directory: %w", err)
	}
	r.workspace = ws
	log.Debug().Str("workspace", ws).Msg("Workspace created")
	return nil
}

func (r *Runner) removeWorkspace() {
	if r.workspace == "" {
		return
	}
	if err := os.RemoveAll(r.workspace); err != nil {
		log.Warn().Err(err).Str("workspace", r.workspace).Msg("Failed to remove workspace")
	}
}

func (r *Runner) writeTemplate(doc *template.Document) error {
	out, err := doc.Marshal()
	if err != nil {
		return err
	}

	if r.opts.OutputPath != "" {
		if err := os.WriteFile(r.opts.OutputPath, out, 0o644); err != nil {
			return fmt.Errorf("writing template: %w", err)
		}
		log.Info().Str("path", r.opts.OutputPath).Msg("Template written")
		return nil
	}

	if _, err := r.opts.Out.Write(out); err != nil {
		return fmt.Errorf("writing template: %w", err)
	}
	return nil
}
