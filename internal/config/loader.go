package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Loader handles configuration loading from various sources
type Loader struct {
	// directory of the merged local config file, if any
	localDir string
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{}
}

// LoadForCommand loads configuration for any riotam command.
// An explicit config file (--config) replaces the global and local lookup.
func (l *Loader) LoadForCommand(cmd *cobra.Command) (*Config, error) {
	l.setupViperDefaults()
	l.setupEnv()

	explicit := ""
	if f := cmd.Flags().Lookup("config"); f != nil {
		explicit = f.Value.String()
	}

	if explicit != "" {
		viper.SetConfigFile(explicit)
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", explicit, err)
		}
	} else {
		l.loadGlobalConfig()

		if wd, err := os.Getwd(); err == nil {
			l.loadLocalConfig(wd)
		}
	}

	l.bindCommandFlags(cmd)
	l.anchorProjectRoot(cmd)

	return Load()
}

// setupViperDefaults sets up default values for viper
func (l *Loader) setupViperDefaults() {
	viper.SetDefault("riot_dir", DefaultRiotDir)
	viper.SetDefault("stripped_dir", DefaultStrippedDir)
	viper.SetDefault("generated_dir", DefaultGeneratedDir)
	viper.SetDefault("tmp_dir", DefaultTmpDir)
	viper.SetDefault("make_path", DefaultMakePath)
	viper.SetDefault("cache.module_dir", DefaultModuleCacheDir)
	viper.SetDefault("cache.application_dir", DefaultApplicationCacheDir)
	viper.SetDefault("cache.lock", DefaultCacheLock)
	viper.SetDefault("catalog.driver", DefaultCatalogDriver)
	viper.SetDefault("module_directories", DefaultModuleDirectories)
	viper.SetDefault("application_directories", DefaultApplicationDirectories)
	viper.SetDefault("strip.ignore", DefaultStripIgnore)
	viper.SetDefault("log.level", DefaultLogLevel)
	viper.SetDefault("verbose", false)
}

// setupEnv maps RIOTAM_* variables onto config keys
func (l *Loader) setupEnv() {
	viper.SetEnvPrefix("riotam")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// kept for deployments that still export the old variable
	_ = viper.BindEnv("log.file", "RIOTAM_LOG_FILE", "BACKEND_LOGFILE")
}

// loadGlobalConfig loads the per-user configuration file
func (l *Loader) loadGlobalConfig() {
	globalDir := GlobalConfigDir()
	if globalDir == "" {
		return
	}

	for _, ext := range configExtensions {
		globalPath := filepath.Join(globalDir, "config."+ext)

		if _, err := os.Stat(globalPath); err == nil {
			viper.SetConfigFile(globalPath)

			if err := viper.ReadInConfig(); err == nil {
				break
			}
		}
	}
}

// loadLocalConfig merges the nearest .riotam.* file on top of the global config
func (l *Loader) loadLocalConfig(dir string) {
	localPath := FindLocalConfig(dir)
	if localPath != "" {
		viper.SetConfigFile(localPath)
		if err := viper.MergeInConfig(); err == nil {
			l.localDir = filepath.Dir(localPath)
		}
	}
}

// anchorProjectRoot resolves a relative project_root from a local config file
// against that file's directory. Roots given by --root or the environment are
// left for Validate to resolve against the working directory.
func (l *Loader) anchorProjectRoot(cmd *cobra.Command) {
	if l.localDir == "" {
		return
	}

	if f := cmd.Flags().Lookup("root"); f != nil && f.Changed {
		return
	}

	if _, ok := os.LookupEnv("RIOTAM_PROJECT_ROOT"); ok {
		return
	}

	if root := viper.GetString("project_root"); root != "" && !filepath.IsAbs(root) {
		viper.Set("project_root", filepath.Join(l.localDir, root))
	}
}

// bindCommandFlags binds command flags to viper
func (l *Loader) bindCommandFlags(cmd *cobra.Command) {
	_ = viper.BindPFlag("project_root", cmd.Flags().Lookup("root"))
	_ = viper.BindPFlag("verbose", cmd.Flags().Lookup("verbose"))
	_ = viper.BindPFlag("log.level", cmd.Flags().Lookup("log-level"))
	_ = viper.BindPFlag("workers", cmd.Flags().Lookup("workers"))
	_ = viper.BindPFlag("build.timeout", cmd.Flags().Lookup("timeout"))
}
