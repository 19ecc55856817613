package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCommand() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Flags().String("config", "", "Config file")
	cmd.Flags().String("root", "", "Project root")
	cmd.Flags().BoolP("verbose", "v", false, "Verbose output")
	cmd.Flags().String("log-level", "", "Log level")
	cmd.Flags().Int("workers", 0, "Workers")
	cmd.Flags().Duration("timeout", 0, "Build timeout")

	return cmd
}

func TestNewLoader(t *testing.T) {
	loader := NewLoader()
	assert.NotNil(t, loader)
}

func TestLoader_SetupViperDefaults(t *testing.T) {
	viper.Reset()
	loader := NewLoader()
	loader.setupViperDefaults()

	assert.Equal(t, "RIOT", viper.GetString("riot_dir"))
	assert.Equal(t, "RIOT_stripped", viper.GetString("stripped_dir"))
	assert.Equal(t, "generated_by_riotam", viper.GetString("generated_dir"))
	assert.Equal(t, "make", viper.GetString("make_path"))
	assert.Equal(t, "bolt", viper.GetString("catalog.driver"))
	assert.Equal(t, true, viper.GetBool("cache.lock"))
	assert.Equal(t, []string{"sys", "pkg", "drivers"}, viper.GetStringSlice("module_directories"))
	assert.Equal(t, false, viper.GetBool("verbose"))
}

func TestLoader_LoadGlobalConfig(t *testing.T) {
	xdg := t.TempDir()
	riotamDir := filepath.Join(xdg, "riotam")
	require.NoError(t, os.Mkdir(riotamDir, 0o755))

	t.Run("loads yaml config", func(t *testing.T) {
		viper.Reset()
		t.Setenv("XDG_CONFIG_HOME", xdg)

		configPath := filepath.Join(riotamDir, "config.yml")
		configContent := `riot_dir: "/opt/RIOT"
workers: 4
verbose: true`
		require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0o644))
		defer os.Remove(configPath)

		loader := NewLoader()
		loader.loadGlobalConfig()

		assert.Equal(t, "/opt/RIOT", viper.GetString("riot_dir"))
		assert.Equal(t, 4, viper.GetInt("workers"))
		assert.Equal(t, true, viper.GetBool("verbose"))
	})

	t.Run("loads json config", func(t *testing.T) {
		viper.Reset()
		t.Setenv("XDG_CONFIG_HOME", xdg)

		configPath := filepath.Join(riotamDir, "config.json")
		configContent := `{
  "make_path": "/usr/bin/gmake",
  "catalog": {"driver": "postgres"}
}`
		require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0o644))
		defer os.Remove(configPath)

		loader := NewLoader()
		loader.loadGlobalConfig()

		assert.Equal(t, "/usr/bin/gmake", viper.GetString("make_path"))
		assert.Equal(t, "postgres", viper.GetString("catalog.driver"))
	})

	t.Run("handles missing global config gracefully", func(t *testing.T) {
		viper.Reset()
		t.Setenv("XDG_CONFIG_HOME", t.TempDir())

		loader := NewLoader()
		assert.NotPanics(t, func() {
			loader.loadGlobalConfig()
		})
		assert.Equal(t, "", viper.GetString("riot_dir"))
	})
}

func TestLoader_LoadLocalConfig(t *testing.T) {
	t.Run("walks up directory tree to find config", func(t *testing.T) {
		viper.Reset()

		tempDir := t.TempDir()
		subDir := filepath.Join(tempDir, "subdir", "nested")
		require.NoError(t, os.MkdirAll(subDir, 0o755))

		configPath := filepath.Join(tempDir, ".riotam.yml")
		require.NoError(t, os.WriteFile(configPath, []byte(`tmp_dir: "scratch"`), 0o644))

		loader := NewLoader()
		loader.loadLocalConfig(subDir)

		assert.Equal(t, "scratch", viper.GetString("tmp_dir"))
	})

	t.Run("records the directory of the merged file", func(t *testing.T) {
		viper.Reset()

		tempDir := t.TempDir()
		configPath := filepath.Join(tempDir, ".riotam.yml")
		require.NoError(t, os.WriteFile(configPath, []byte(`project_root: "backend"`), 0o644))

		loader := NewLoader()
		loader.loadLocalConfig(tempDir)

		assert.Equal(t, tempDir, loader.localDir)
		assert.Equal(t, "backend", viper.GetString("project_root"))
	})

	t.Run("local config merges over global values", func(t *testing.T) {
		viper.Reset()
		viper.Set("riot_dir", "/global/RIOT")

		tempDir := t.TempDir()
		configPath := filepath.Join(tempDir, ".riotam.yml")
		require.NoError(t, os.WriteFile(configPath, []byte(`workers: 2`), 0o644))

		loader := NewLoader()
		loader.loadLocalConfig(tempDir)

		assert.Equal(t, 2, viper.GetInt("workers"))
		assert.Equal(t, "/global/RIOT", viper.GetString("riot_dir"))
	})
}

func TestLoader_BindCommandFlags(t *testing.T) {
	viper.Reset()

	cmd := newTestCommand()
	require.NoError(t, cmd.Flags().Set("root", "/srv/riotam"))
	require.NoError(t, cmd.Flags().Set("verbose", "true"))
	require.NoError(t, cmd.Flags().Set("log-level", "debug"))
	require.NoError(t, cmd.Flags().Set("workers", "8"))
	require.NoError(t, cmd.Flags().Set("timeout", "90s"))

	loader := NewLoader()
	loader.bindCommandFlags(cmd)

	assert.Equal(t, "/srv/riotam", viper.GetString("project_root"))
	assert.Equal(t, true, viper.GetBool("verbose"))
	assert.Equal(t, "debug", viper.GetString("log.level"))
	assert.Equal(t, 8, viper.GetInt("workers"))
	assert.Equal(t, "1m30s", viper.GetDuration("build.timeout").String())
}

func TestLoader_LoadForCommand_ExplicitConfig(t *testing.T) {
	viper.Reset()

	root := t.TempDir()
	configPath := filepath.Join(root, "riotam.yml")
	configContent := "project_root: " + root + "\nworkers: 2\nlog:\n  level: warn\n"
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0o644))

	cmd := newTestCommand()
	require.NoError(t, cmd.Flags().Set("config", configPath))
	require.NoError(t, cmd.Flags().Set("workers", "6"))

	cfg, err := NewLoader().LoadForCommand(cmd)
	require.NoError(t, err)

	// Flag value should win over the file
	assert.Equal(t, 6, cfg.Workers)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, filepath.Join(root, "RIOT"), cfg.RiotDir)
}

func TestLoader_LoadForCommand_MissingExplicitConfig(t *testing.T) {
	viper.Reset()

	cmd := newTestCommand()
	require.NoError(t, cmd.Flags().Set("config", filepath.Join(t.TempDir(), "missing.yml")))

	_, err := NewLoader().LoadForCommand(cmd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config")
}

func TestLoader_LoadForCommand_LocalProjectRoot(t *testing.T) {
	tests := []struct {
		name     string
		rootFlag func(dir string) string
		envRoot  func(dir string) string
		expected func(dir string) string
	}{
		{
			name:     "relative root is anchored at the config file",
			expected: func(dir string) string { return filepath.Join(dir, "backend") },
		},
		{
			name:     "root flag wins over the local file",
			rootFlag: func(dir string) string { return filepath.Join(dir, "from-flag") },
			expected: func(dir string) string { return filepath.Join(dir, "from-flag") },
		},
		{
			name:     "root from environment wins over the local file",
			envRoot:  func(dir string) string { return filepath.Join(dir, "from-env") },
			expected: func(dir string) string { return filepath.Join(dir, "from-env") },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			viper.Reset()

			dir := t.TempDir()
			t.Setenv("XDG_CONFIG_HOME", t.TempDir())
			require.NoError(t, os.WriteFile(filepath.Join(dir, ".riotam.yml"), []byte(`project_root: "backend"`), 0o644))
			t.Chdir(dir)

			if tt.envRoot != nil {
				t.Setenv("RIOTAM_PROJECT_ROOT", tt.envRoot(dir))
			}

			cmd := newTestCommand()
			if tt.rootFlag != nil {
				require.NoError(t, cmd.Flags().Set("root", tt.rootFlag(dir)))
			}

			cfg, err := NewLoader().LoadForCommand(cmd)
			require.NoError(t, err)
			assert.Equal(t, tt.expected(dir), cfg.ProjectRoot)
		})
	}
}
