package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.yaml.in/yaml/v3"

	"github.com/schererja/drovah/internal/artifacts"
)

const (
	// FileName is the config file searched for in the working directory
	FileName  = "drovah.yaml"
	EnvPrefix = "DROVAH"
)

// Config is the server configuration
type Config struct {
	BindAddress   string          `mapstructure:"bind_address" yaml:"bind_address"`
	DataDir       string          `mapstructure:"data_dir" yaml:"data_dir"`
	ProjectsDir   string          `mapstructure:"projects_dir" yaml:"projects_dir"`
	ArchiveDir    string          `mapstructure:"archive_dir" yaml:"archive_dir"`
	AllowedOrigin string          `mapstructure:"allowed_origin" yaml:"allowed_origin"`
	Database      DatabaseConfig  `mapstructure:"database" yaml:"database"`
	Webhook       WebhookConfig   `mapstructure:"webhook" yaml:"webhook"`
	Build         BuildConfig     `mapstructure:"build" yaml:"build"`
	Retention     RetentionConfig `mapstructure:"retention" yaml:"retention"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

type WebhookConfig struct {
	Secret string `mapstructure:"secret" yaml:"secret"`
}

type BuildConfig struct {
	PullBeforeBuild       bool `mapstructure:"pull_before_build" yaml:"pull_before_build"`
	RecordArchiveFailures bool `mapstructure:"record_archive_failures" yaml:"record_archive_failures"`
}

type RetentionConfig struct {
	KeepLast int           `mapstructure:"keep_last" yaml:"keep_last"`
	MaxAge   time.Duration `mapstructure:"max_age" yaml:"max_age"`
	MaxSize  string        `mapstructure:"max_size" yaml:"max_size"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		BindAddress:   "127.0.0.1:8000",
		DataDir:       "data",
		ProjectsDir:   filepath.Join("data", "projects"),
		ArchiveDir:    filepath.Join("data", "archive"),
		AllowedOrigin: "*",
		Database:      DatabaseConfig{Path: filepath.Join("data", "drovah.db")},
		Build:         BuildConfig{PullBeforeBuild: true},
	}
}

// envAliases maps config keys to the plain environment names also accepted
var envAliases = map[string]string{
	"bind_address":   "BIND_ADDRESS",
	"allowed_origin": "ALLOWED_ORIGIN",
	"database.path":  "DATABASE_URL",
	"webhook.secret": "GITHUB_SECRET",
}

// SetDefaults registers every key with v so that environment overrides are
// seen by Unmarshal
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("bind_address", d.BindAddress)
	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("projects_dir", d.ProjectsDir)
	v.SetDefault("archive_dir", d.ArchiveDir)
	v.SetDefault("allowed_origin", d.AllowedOrigin)
	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("webhook.secret", d.Webhook.Secret)
	v.SetDefault("build.pull_before_build", d.Build.PullBeforeBuild)
	v.SetDefault("build.record_archive_failures", d.Build.RecordArchiveFailures)
	v.SetDefault("retention.keep_last", d.Retention.KeepLast)
	v.SetDefault("retention.max_age", d.Retention.MaxAge)
	v.SetDefault("retention.max_size", d.Retention.MaxSize)
}

// NewViper prepares a viper instance reading cfgFile, or drovah.yaml in the
// working directory when cfgFile is empty, plus DROVAH_* environment
// variables. A missing default config file is not an error.
func NewViper(cfgFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, alias := range envAliases {
		envName := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envName, alias); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", alias, err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName(strings.TrimSuffix(FileName, filepath.Ext(FileName)))
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	return v, nil
}

// Load decodes the configuration held by v
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is ignored.
func LoadEnvFile(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func (c *Config) Validate() error {
	if c.BindAddress == "" {
		return errors.New("bind_address must not be empty")
	}
	if c.ProjectsDir == "" || c.ArchiveDir == "" {
		return errors.New("projects_dir and archive_dir must not be empty")
	}
	if c.Database.Path == "" {
		return errors.New("database.path must not be empty")
	}
	if strings.Contains(c.Database.Path, "://") {
		return fmt.Errorf("database.path %q is a URL, drovah needs a SQLite file path", c.Database.Path)
	}
	if c.Retention.KeepLast < 0 || c.Retention.MaxAge < 0 {
		return errors.New("retention values must not be negative")
	}
	if _, err := artifacts.ParseSize(c.Retention.MaxSize); err != nil {
		return fmt.Errorf("retention.max_size: %w", err)
	}
	return nil
}

// RetentionPolicy converts the retention section for the archive manager
func (c *Config) RetentionPolicy() (artifacts.RetentionPolicy, error) {
	size, err := artifacts.ParseSize(c.Retention.MaxSize)
	if err != nil {
		return artifacts.RetentionPolicy{}, err
	}
	return artifacts.RetentionPolicy{
		KeepLast: c.Retention.KeepLast,
		MaxAge:   c.Retention.MaxAge,
		MaxSize:  size,
	}, nil
}

// EnsureDirs creates the data, projects, archive and database directories
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.DataDir, c.ProjectsDir, c.ArchiveDir, filepath.Dir(c.Database.Path)} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// WriteDefault writes the default configuration to path. An existing file
// is left alone and reported as an error.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
