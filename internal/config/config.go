// Package config provides configuration management for sfpack.
package config

// Default configuration values.
const (
	DefaultTemplate  = "template.yaml"
	DefaultLogLevel  = "info"
	DefaultRegion    = "us-east-1"
	DefaultPrefixFmt = "sfpack-%d"
)

// Config is the root configuration structure for sfpack.
type Config struct {
	S3        S3Config        `mapstructure:"s3"`
	Packaging PackagingConfig `mapstructure:"packaging"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// S3Config holds remote artifact store settings.
type S3Config struct {
	// Bucket to upload deployment archives to
	Bucket string `mapstructure:"bucket"`

	// Prefix overrides the per-run time-derived key prefix
	Prefix string `mapstructure:"prefix"`

	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	ForcePathStyle  bool   `mapstructure:"force_path_style"`
}

// PackagingConfig holds build and staging settings.
type PackagingConfig struct {
	// Template is the deployment template to package
	Template string `mapstructure:"template"`

	// Output receives the rewritten template; empty prints to stdout
	Output string `mapstructure:"output"`

	// Excludes are glob patterns skipped while staging function source
	Excludes []string `mapstructure:"excludes"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// Default returns a Config populated with defaults.
func Default() *Config {
	return &Config{
		S3: S3Config{
			Region: DefaultRegion,
		},
		Packaging: PackagingConfig{
			Template: DefaultTemplate,
		},
		Logging: LoggingConfig{
			Level: DefaultLogLevel,
		},
	}
}
