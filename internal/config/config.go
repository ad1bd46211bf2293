package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

const (
	RedirectHeader = "X-Accel-Redirect"

	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"

	envPrefix = "MODSERVER_"

	defaultListen             = ":3009"
	defaultURLPrefix          = "/minecraft"
	defaultBranchesDir        = "branches"
	defaultStaticDir          = "static"
	defaultArchiveName        = "client_mods.zip"
	defaultDescFileName       = "description.md"
	defaultDumpFileName       = "counters.yml"
	defaultWorkers            = 4
	defaultDebounce           = 200 * time.Millisecond
	defaultDownloadExpiration = 24 * time.Hour
	defaultEnvFileName        = ".env"
	defaultCompressionLevel   = 1
	maxCompressionLevel       = 9
	minCompressionLevel       = -1
)

type SyncConfig struct {
	BranchesDir      string        `yaml:"branches_dir"`
	ArchiveName      string        `yaml:"archive_name"`
	Workers          int           `yaml:"workers"`
	Debounce         time.Duration `yaml:"debounce"`
	DescFileName     string        `yaml:"description_filename"`
	CompressionLevel int           `yaml:"compression_level"`
}

type Config struct {
	Listen             string        `yaml:"listen"`
	URLPrefix          string        `yaml:"url_prefix"`
	RedirectHeader     string        `yaml:"header"`
	RedirectPrefix     string        `yaml:"redirect_prefix"`
	LogLevel           string        `yaml:"log_level"`
	LogsDir            string        `yaml:"logs_dir"`
	LogFileName        string        `yaml:"log_file"`
	StaticDir          string        `yaml:"static_dir"`
	PageTemplate       string        `yaml:"page_template"`
	RedisURL           string        `yaml:"redis_url"`
	DumpFileName       string        `yaml:"dump_filename"`
	DownloadExpiration time.Duration `yaml:"download_expiration"`
	SyncConfig         SyncConfig    `yaml:"sync"`
}

func (c *Config) SetDefaults() {
	c.Listen = defaultListen
	c.URLPrefix = defaultURLPrefix
	c.LogLevel = LogLevelInfo
	c.StaticDir = defaultStaticDir
	c.DumpFileName = defaultDumpFileName
	c.DownloadExpiration = defaultDownloadExpiration
	c.SyncConfig = SyncConfig{
		BranchesDir:      defaultBranchesDir,
		ArchiveName:      defaultArchiveName,
		Workers:          defaultWorkers,
		Debounce:         defaultDebounce,
		DescFileName:     defaultDescFileName,
		CompressionLevel: defaultCompressionLevel,
	}
}

// CountersEnabled reports whether download counters have a backing store.
func (c *Config) CountersEnabled() bool {
	return c.RedisURL != ""
}

func (c *Config) Validate() error {
	switch c.LogLevel {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
	default:
		return fmt.Errorf("unknown log level: %s", c.LogLevel)
	}

	if c.SyncConfig.BranchesDir == "" {
		return fmt.Errorf("branches dir must be set")
	}

	if c.SyncConfig.ArchiveName == "" || strings.ContainsAny(c.SyncConfig.ArchiveName, `/\`) {
		return fmt.Errorf("invalid archive name: %q", c.SyncConfig.ArchiveName)
	}

	if c.SyncConfig.Workers < 1 {
		return fmt.Errorf("workers must be positive, got %d", c.SyncConfig.Workers)
	}

	if c.SyncConfig.Debounce <= 0 {
		return fmt.Errorf("debounce must be positive, got %s", c.SyncConfig.Debounce)
	}

	if l := c.SyncConfig.CompressionLevel; l < minCompressionLevel || l > maxCompressionLevel {
		return fmt.Errorf("compression level must be in [%d, %d], got %d", minCompressionLevel, maxCompressionLevel, l)
	}

	if c.URLPrefix != "" && !strings.HasPrefix(c.URLPrefix, "/") {
		return fmt.Errorf("url prefix must start with '/': %s", c.URLPrefix)
	}

	c.URLPrefix = strings.TrimSuffix(c.URLPrefix, "/")

	return nil
}

// Load reads the yaml file at path on top of the defaults. A missing file leaves
// the defaults in place. Variables from .env and the environment win over both.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	cfg.SetDefaults()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("cannot parse config %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("cannot read config %s: %w", path, err)
	}

	if err := godotenv.Load(defaultEnvFileName); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("cannot load %s: %w", defaultEnvFileName, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyEnv() error {
	strVars := map[string]*string{
		"LISTEN":       &c.Listen,
		"URL_PREFIX":   &c.URLPrefix,
		"LOG_LEVEL":    &c.LogLevel,
		"LOGS_DIR":     &c.LogsDir,
		"STATIC_DIR":   &c.StaticDir,
		"REDIS_URL":    &c.RedisURL,
		"BRANCHES_DIR": &c.SyncConfig.BranchesDir,
		"ARCHIVE_NAME": &c.SyncConfig.ArchiveName,
	}

	for name, dst := range strVars {
		if v, ok := os.LookupEnv(envPrefix + name); ok {
			*dst = v
		}
	}

	if v, ok := os.LookupEnv(envPrefix + "DEBOUNCE"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("cannot parse %sDEBOUNCE: %w", envPrefix, err)
		}
		c.SyncConfig.Debounce = d
	}

	return nil
}
