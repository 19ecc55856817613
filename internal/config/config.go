package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// Default configuration values
const (
	DefaultRiotDir             = "RIOT"
	DefaultStrippedDir         = "RIOT_stripped"
	DefaultGeneratedDir        = "generated_by_riotam"
	DefaultTmpDir              = "tmp"
	DefaultModuleCacheDir      = ".cache/modules"
	DefaultApplicationCacheDir = ".cache/applications"
	DefaultMakePath            = "make"
	DefaultCatalogDriver       = "bolt"
	DefaultCatalogDSN          = "riotam.db"
	DefaultLogLevel            = "info"
	DefaultCacheLock           = true
)

var (
	DefaultModuleDirectories      = []string{"sys", "pkg", "drivers"}
	DefaultApplicationDirectories = []string{"examples"}

	// Stripped repositories only need what flashing requires
	DefaultStripIgnore = []string{
		".git",
		"*.pyc",
		"/doc/",
		"/tests/",
		"/examples/",
		"/dist/tools/*/",
		"!/dist/tools/openocd/",
		"!/dist/tools/bossa/",
		"!/dist/tools/edbg/",
	}
)

// Config holds the configuration options for the riotam backend
type Config struct {
	// Root directory every relative path is resolved against
	ProjectRoot string

	// RIOT checkout used for builds
	RiotDir string
	// Bare stripped RIOT tree used to assemble download archives
	StrippedDir string
	// Name of the directory inside RiotDir where request applications are generated
	GeneratedDir string
	// Parent of per-request temporary directories
	TmpDir string

	// make executable
	MakePath string
	// Upper bound for a single make run, zero means no limit
	BuildTimeout time.Duration
	// Worker count for prepare-all
	Workers int

	ModuleCacheDir      string
	ApplicationCacheDir string
	// Optional cache layout version, part of every cache path
	CacheVersion string
	// Guard cache population with per-key lock files
	CacheLock bool

	// Catalog backend ("bolt" or "postgres") and its data source
	CatalogDriver string
	CatalogDSN    string

	// Catalog scan roots, relative to RiotDir
	ModuleDirectories      []string
	ApplicationDirectories []string

	// gitignore style patterns skipped when stripping the RIOT tree
	StripIgnore []string

	// Human readable board names keyed by internal board name
	BoardDisplayNames map[string]string

	LogLevel string
	LogFile  string
	LogJSON  bool

	// Enable verbose output
	Verbose bool
}

func Load() (*Config, error) {
	cfg := &Config{
		ProjectRoot:            viper.GetString("project_root"),
		RiotDir:                viper.GetString("riot_dir"),
		StrippedDir:            viper.GetString("stripped_dir"),
		GeneratedDir:           viper.GetString("generated_dir"),
		TmpDir:                 viper.GetString("tmp_dir"),
		MakePath:               viper.GetString("make_path"),
		BuildTimeout:           viper.GetDuration("build.timeout"),
		Workers:                viper.GetInt("workers"),
		ModuleCacheDir:         viper.GetString("cache.module_dir"),
		ApplicationCacheDir:    viper.GetString("cache.application_dir"),
		CacheVersion:           viper.GetString("cache.version"),
		CacheLock:              viper.GetBool("cache.lock"),
		CatalogDriver:          viper.GetString("catalog.driver"),
		CatalogDSN:             viper.GetString("catalog.dsn"),
		ModuleDirectories:      viper.GetStringSlice("module_directories"),
		ApplicationDirectories: viper.GetStringSlice("application_directories"),
		StripIgnore:            viper.GetStringSlice("strip.ignore"),
		BoardDisplayNames:      viper.GetStringMapString("boards.display_names"),
		LogLevel:               viper.GetString("log.level"),
		LogFile:                viper.GetString("log.file"),
		LogJSON:                viper.GetBool("log.json"),
		Verbose:                viper.GetBool("verbose"),
	}

	// Apply defaults if not set
	if cfg.RiotDir == "" {
		cfg.RiotDir = DefaultRiotDir
	}

	if cfg.StrippedDir == "" {
		cfg.StrippedDir = DefaultStrippedDir
	}

	if cfg.GeneratedDir == "" {
		cfg.GeneratedDir = DefaultGeneratedDir
	}

	if cfg.TmpDir == "" {
		cfg.TmpDir = DefaultTmpDir
	}

	if cfg.MakePath == "" {
		cfg.MakePath = DefaultMakePath
	}

	if cfg.ModuleCacheDir == "" {
		cfg.ModuleCacheDir = DefaultModuleCacheDir
	}

	if cfg.ApplicationCacheDir == "" {
		cfg.ApplicationCacheDir = DefaultApplicationCacheDir
	}

	if cfg.CatalogDriver == "" {
		cfg.CatalogDriver = DefaultCatalogDriver
	}

	if cfg.CatalogDSN == "" && cfg.CatalogDriver == DefaultCatalogDriver {
		cfg.CatalogDSN = DefaultCatalogDSN
	}

	if len(cfg.ModuleDirectories) == 0 {
		cfg.ModuleDirectories = DefaultModuleDirectories
	}

	if len(cfg.ApplicationDirectories) == 0 {
		cfg.ApplicationDirectories = DefaultApplicationDirectories
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.ProjectRoot == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get working directory: %w", err)
		}

		c.ProjectRoot = wd
	}

	abs, err := filepath.Abs(c.ProjectRoot)
	if err != nil {
		return fmt.Errorf("invalid project root: %v", err)
	}

	c.ProjectRoot = abs

	for _, p := range []*string{&c.RiotDir, &c.StrippedDir, &c.TmpDir, &c.ModuleCacheDir, &c.ApplicationCacheDir} {
		*p = c.resolve(*p)
	}

	if c.LogFile != "" {
		c.LogFile = c.resolve(c.LogFile)
	}

	switch c.CatalogDriver {
	case "bolt":
		if c.CatalogDSN == "" {
			return fmt.Errorf("catalog dsn not specified")
		}

		c.CatalogDSN = c.resolve(c.CatalogDSN)
	case "postgres":
		if c.CatalogDSN == "" {
			return fmt.Errorf("catalog dsn not specified")
		}
	default:
		return fmt.Errorf("invalid catalog driver: %s", c.CatalogDriver)
	}

	if c.Workers < 0 {
		return fmt.Errorf("invalid worker count: %d", c.Workers)
	}

	if c.Workers == 0 {
		c.Workers = runtime.NumCPU()
	}

	if c.BuildTimeout < 0 {
		return fmt.Errorf("invalid build timeout: %s", c.BuildTimeout)
	}

	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level: %s", c.LogLevel)
	}

	return nil
}

// GeneratedPath returns the directory request applications are created in.
// It has to live two levels below the RIOT root for RIOTBASE to resolve.
func (c *Config) GeneratedPath() string {
	return filepath.Join(c.RiotDir, c.GeneratedDir)
}

func (c *Config) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}

	return filepath.Join(c.ProjectRoot, p)
}
