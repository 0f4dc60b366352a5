package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

var (
	ErrConfigNotFound = errors.New("config file not found")
	ErrInvalidConfig  = errors.New("invalid configuration")
)

type LoadOptions struct {
	ConfigFile string
	EnvPrefix  string
}

// Load reads configuration from file and environment. A missing config file
// is not an error; defaults and environment variables still apply.
func Load(opts LoadOptions) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if opts.EnvPrefix == "" {
		opts.EnvPrefix = "SFPACK"
	}
	v.SetEnvPrefix(opts.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName("sfpack")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/sfpack")
		v.AddConfigPath("/etc/sfpack")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.ConfigFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from an explicit path.
func LoadFromFile(path string) (*Config, error) {
	return Load(LoadOptions{ConfigFile: path})
}

func setDefaults(v *viper.Viper) {
	defaults := Default()

	// Every key gets a default so environment overrides bind during Unmarshal.
	v.SetDefault("s3.bucket", defaults.S3.Bucket)
	v.SetDefault("s3.prefix", defaults.S3.Prefix)
	v.SetDefault("s3.region", defaults.S3.Region)
	v.SetDefault("s3.endpoint", defaults.S3.Endpoint)
	v.SetDefault("s3.access_key_id", defaults.S3.AccessKeyID)
	v.SetDefault("s3.secret_access_key", defaults.S3.SecretAccessKey)
	v.SetDefault("s3.force_path_style", defaults.S3.ForcePathStyle)

	v.SetDefault("packaging.template", defaults.Packaging.Template)
	v.SetDefault("packaging.output", defaults.Packaging.Output)
	v.SetDefault("packaging.excludes", defaults.Packaging.Excludes)

	v.SetDefault("logging.level", defaults.Logging.Level)
}
