package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/colten/sfpack/internal/config"
	"github.com/colten/sfpack/internal/pipeline"
	"github.com/colten/sfpack/internal/publisher"
	"github.com/colten/sfpack/internal/pyenv"
)

var (
	packageTemplate string
	packageOutput   string
	packageBucket   string
	packagePrefix   string
	packageExcludes []string
	packageDryRun   bool
)

var packageCmd = &cobra.Command{
	Use:   "package",
	Short: "Build, archive, and upload the functions in a template",
	Long: `Package every eligible function resource in a deployment template.

For each function, sfpack builds an isolated dependency environment (when the
function directory has a Pipfile or requirements.txt), stages code plus
dependencies, and compresses them into a uniquely named archive. After all
functions are archived, the archives are uploaded to S3 and the template is
rewritten so each function points at its uploaded archive.

Examples:
  sfpack package --s3-bucket my-artifacts
  sfpack package -t infra/template.yaml -o packaged.yaml --s3-bucket my-artifacts
  sfpack package --dry-run

Environment Variables:
  SFPACK_S3_BUCKET  Default artifact bucket
  SFPACK_S3_REGION  Default bucket region`,
	RunE: runPackage,
}

func init() {
	packageCmd.Flags().StringVarP(&packageTemplate, "template", "t", "", "deployment template path (default template.yaml)")
	packageCmd.Flags().StringVarP(&packageOutput, "output-template", "o", "", "write the rewritten template here instead of stdout")
	packageCmd.Flags().StringVar(&packageBucket, "s3-bucket", "", "artifact bucket (or SFPACK_S3_BUCKET)")
	packageCmd.Flags().StringVar(&packagePrefix, "s3-prefix", "", "artifact key prefix (default derived from current time)")
	packageCmd.Flags().StringSliceVar(&packageExcludes, "exclude", nil, "staging exclude glob (repeatable)")
	packageCmd.Flags().BoolVar(&packageDryRun, "dry-run", false, "discover and validate only, no build or upload")

	rootCmd.AddCommand(packageCmd)
}

func runPackage(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load(config.LoadOptions{ConfigFile: cfgFile})
	if err != nil {
		return err
	}
	applyPackageFlags(cfg)

	opts := pipeline.Options{
		TemplatePath: cfg.Packaging.Template,
		OutputPath:   cfg.Packaging.Output,
		Bucket:       cfg.S3.Bucket,
		Prefix:       cfg.S3.Prefix,
		Excludes:     cfg.Packaging.Excludes,
		DryRun:       packageDryRun,
	}

	var (
		manager pyenv.Manager
		sink    publisher.Sink
	)
	if !packageDryRun {
		if cfg.S3.Bucket == "" {
			return fmt.Errorf("--s3-bucket is required (or set SFPACK_S3_BUCKET)")
		}

		manager, err = pyenv.NewPipenvManager()
		if err != nil {
			return err
		}

		sink, err = publisher.NewS3Sink(ctx, cfg.S3)
		if err != nil {
			return err
		}
	}

	runner, err := pipeline.New(opts, manager, sink)
	if err != nil {
		return err
	}
	return runner.Run(ctx)
}

func applyPackageFlags(cfg *config.Config) {
	if packageTemplate != "" {
		cfg.Packaging.Template = packageTemplate
	}
	if packageOutput != "" {
		cfg.Packaging.Output = packageOutput
	}
	if packageBucket != "" {
		cfg.S3.Bucket = packageBucket
	}
	if packagePrefix != "" {
		cfg.S3.Prefix = packagePrefix
	}
	if len(packageExcludes) > 0 {
		cfg.Packaging.Excludes = packageExcludes
	}
}
