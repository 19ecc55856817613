package builder

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Norgate-AV/riotam/internal/catalog"
	"github.com/Norgate-AV/riotam/internal/config"
)

type testEnv struct {
	cfg      *config.Config
	store    *catalog.BoltStore
	pipeline *Pipeline
	makes    atomic.Int32
	// Makefile content seen by the last make run
	makefile string
	failMake bool
}

func writeTestFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()

	cfg := &config.Config{
		ProjectRoot:         root,
		RiotDir:             filepath.Join(root, "RIOT"),
		StrippedDir:         filepath.Join(root, "RIOT_stripped"),
		GeneratedDir:        "generated_by_riotam",
		TmpDir:              filepath.Join(root, "tmp"),
		MakePath:            "make",
		ModuleCacheDir:      filepath.Join(root, ".cache", "modules"),
		ApplicationCacheDir: filepath.Join(root, ".cache", "applications"),
		CacheLock:           true,
	}

	writeTestFile(t, filepath.Join(cfg.RiotDir, "examples", "hello-world", "Makefile"),
		"APPLICATION = hello-world\nBOARD ?= native\nRIOTBASE ?= $(CURDIR)/../..\nUSEMODULE += xtimer\nUSEMODULE += gnrc_netdev_default\ninclude $(RIOTBASE)/Makefile.include\n")
	writeTestFile(t, filepath.Join(cfg.RiotDir, "examples", "hello-world", "main.c"), "int main(void) { return 0; }\n")
	writeTestFile(t, filepath.Join(cfg.StrippedDir, "Makefile.include"), "flash:\n")
	writeTestFile(t, filepath.Join(cfg.StrippedDir, "boards", "native", "Makefile"), "")
	writeTestFile(t, filepath.Join(cfg.StrippedDir, "boards", "samr21-xpro", "Makefile"), "")

	store, err := catalog.OpenBolt(filepath.Join(root, "riotam.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	require.NoError(t, store.ReplaceModules(ctx, []catalog.Module{
		{Name: "xtimer", Path: "sys/xtimer", Group: "sys"},
		{Name: "shell", Path: "sys/shell", Group: "sys"},
	}))
	require.NoError(t, store.ReplaceApplications(ctx, []catalog.Application{
		{Name: "hello-world", Path: "examples/hello-world", Group: "examples"},
	}))

	env := &testEnv{cfg: cfg, store: store}
	env.pipeline = NewPipeline(cfg, store, zerolog.Nop())
	env.pipeline.builder.execCommand = env.fakeMake(t)

	return env
}

// fakeMake emulates a RIOT build: it writes the ELF and HEX images named by
// ELFFILE plus one object directory per module
func (e *testEnv) fakeMake(t *testing.T) func(ctx context.Context, name string, args ...string) Commander {
	return func(ctx context.Context, name string, args ...string) Commander {
		return &mockCommander{
			runFunc: func() ([]byte, error) {
				e.makes.Add(1)

				var dir, elf string
				for _, a := range args {
					switch {
					case strings.HasPrefix(a, "--directory="):
						dir = strings.TrimPrefix(a, "--directory=")
					case strings.HasPrefix(a, "ELFFILE="):
						elf = strings.TrimPrefix(a, "ELFFILE=")
					}
				}

				if data, err := os.ReadFile(filepath.Join(dir, "Makefile")); err == nil {
					e.makefile = string(data)
				}

				if e.failMake {
					return []byte("main.c:1:1: error: expected ';'\n"), errors.New("exit status 2")
				}

				binDir := filepath.Dir(elf)
				writeTestFile(t, elf, "ELF")
				writeTestFile(t, strings.TrimSuffix(elf, ".elf")+".hex", "HEX")
				writeTestFile(t, filepath.Join(binDir, "xtimer", "xtimer.o"), "object")
				writeTestFile(t, filepath.Join(binDir, "gnrc_netdev_default", "netdev.o"), "object")

				return []byte("Building application\n"), nil
			},
		}
	}
}

func assertCleanedUp(t *testing.T, cfg *config.Config) {
	t.Helper()

	entries, err := os.ReadDir(cfg.GeneratedPath())
	if err == nil {
		assert.Empty(t, entries, "generated applications left behind")
	}

	entries, err = os.ReadDir(cfg.TmpDir)
	if err == nil {
		assert.Empty(t, entries, "temporary directories left behind")
	}
}

func TestPipeline_BuildCustom(t *testing.T) {
	env := newTestEnv(t)

	res := env.pipeline.BuildCustom(context.Background(), "native", []int{1, 2}, "int main(void) { return 1; }\n")

	assert.True(t, res.Success, res.CmdOutput)
	assert.Equal(t, "native", res.Board)
	assert.True(t, strings.HasPrefix(res.ApplicationName, "application"))
	assert.NotEmpty(t, res.OutputFile)
	assert.Equal(t, "elf", res.OutputFileExtension)
	assert.NotEmpty(t, res.OutputArchive)
	assert.Equal(t, "tar", res.OutputArchiveExtension)
	assert.Contains(t, res.CmdOutput, "Building application")

	assert.Contains(t, env.makefile, "APPLICATION = "+res.ApplicationName+"\n")
	assert.Contains(t, env.makefile, "USEMODULE += xtimer\nUSEMODULE += shell\n")

	assertCleanedUp(t, env.cfg)
}

func TestPipeline_BuildCustom_UnknownModule(t *testing.T) {
	env := newTestEnv(t)

	res := env.pipeline.BuildCustom(context.Background(), "native", []int{1, 99}, "")

	assert.False(t, res.Success)
	assert.Contains(t, res.CmdOutput, "error while reading modules from database")
	assert.Equal(t, int32(0), env.makes.Load())
}

func TestPipeline_BuildCustom_MakeFails(t *testing.T) {
	env := newTestEnv(t)
	env.failMake = true

	res := env.pipeline.BuildCustom(context.Background(), "native", []int{1}, "")

	assert.False(t, res.Success)
	assert.Contains(t, res.CmdOutput, "expected ';'")
	assert.Contains(t, res.CmdOutput, "something went wrong on server side")
	assert.Empty(t, res.OutputFile)
	assertCleanedUp(t, env.cfg)
}

func TestPipeline_InvalidBoard(t *testing.T) {
	env := newTestEnv(t)

	res := env.pipeline.BuildExample(context.Background(), ExampleRequest{Board: "../etc", ApplicationID: 1})
	assert.False(t, res.Success)
	assert.Contains(t, res.CmdOutput, "invalid board")

	res = env.pipeline.BuildCustom(context.Background(), "", []int{1}, "")
	assert.False(t, res.Success)
	assert.Equal(t, int32(0), env.makes.Load())
}

func TestPipeline_BuildExample_UnknownApplication(t *testing.T) {
	env := newTestEnv(t)

	res := env.pipeline.BuildExample(context.Background(), ExampleRequest{Board: "native", ApplicationID: 7})
	assert.False(t, res.Success)
	assert.Contains(t, res.CmdOutput, "not found")
}

func TestPipeline_BuildExample_WithoutCaching(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res := env.pipeline.BuildExample(ctx, ExampleRequest{Board: "native", ApplicationID: 1})
	require.True(t, res.Success, res.CmdOutput)
	assert.NotEmpty(t, res.OutputArchive)
	assert.Equal(t, "APPLICATION = "+res.ApplicationName+"\n", strings.SplitAfter(env.makefile, "\n")[0])

	_, ok := env.pipeline.modules.Entry("native", "xtimer")
	assert.False(t, ok, "modules are only cached when caching is enabled")

	assertCleanedUp(t, env.cfg)
}

func TestPipeline_BuildExample_ModuleCache(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	req := ExampleRequest{Board: "native", ApplicationID: 1, Caching: true}

	res := env.pipeline.BuildExample(ctx, req)
	require.True(t, res.Success, res.CmdOutput)
	assert.Equal(t, 0, res.Extra["cached_modules"])

	entry, ok := env.pipeline.modules.Entry("native", "xtimer")
	require.True(t, ok)
	assert.FileExists(t, filepath.Join(entry, "xtimer.o"))

	// not a catalog module, so never cached
	_, ok = env.pipeline.modules.Entry("native", "gnrc_netdev_default")
	assert.False(t, ok)

	// no prefetch happened, so the binaries are built again with cached modules
	res = env.pipeline.BuildExample(ctx, req)
	require.True(t, res.Success, res.CmdOutput)
	assert.Equal(t, 1, res.Extra["cached_modules"])
	assert.Equal(t, false, res.Extra["cached_binaries"])
	assert.Equal(t, int32(2), env.makes.Load())

	assertCleanedUp(t, env.cfg)
}

func TestPipeline_BuildExample_PrefetchThenCachedBinaries(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res := env.pipeline.BuildExample(ctx, ExampleRequest{Board: "native", ApplicationID: 1, Caching: true, Prefetching: true})
	require.True(t, res.Success, res.CmdOutput)
	assert.Empty(t, res.OutputArchive, "prefetching skips the archive")

	elf, ok := env.pipeline.apps.Entry("native", "hello-world", "hello-world.elf")
	require.True(t, ok)
	data, err := os.ReadFile(elf)
	require.NoError(t, err)
	assert.Equal(t, "ELF", string(data))

	_, ok = env.pipeline.apps.Entry("native", "hello-world", "hello-world.hex")
	assert.True(t, ok)

	res = env.pipeline.BuildExample(ctx, ExampleRequest{Board: "native", ApplicationID: 1, Caching: true})
	require.True(t, res.Success, res.CmdOutput)
	assert.Equal(t, true, res.Extra["cached_binaries"])
	assert.NotEmpty(t, res.OutputArchive)
	assert.Equal(t, int32(1), env.makes.Load(), "cached binaries skip make")

	// another board is a separate cache entry
	res = env.pipeline.BuildExample(ctx, ExampleRequest{Board: "samr21-xpro", ApplicationID: 1, Caching: true})
	require.True(t, res.Success, res.CmdOutput)
	assert.Equal(t, int32(2), env.makes.Load())

	assertCleanedUp(t, env.cfg)
}

func TestPipeline_BuildExample_PrefetchFailureNotCached(t *testing.T) {
	env := newTestEnv(t)
	env.failMake = true

	res := env.pipeline.BuildExample(context.Background(), ExampleRequest{Board: "native", ApplicationID: 1, Caching: true, Prefetching: true})
	assert.False(t, res.Success)

	_, ok := env.pipeline.apps.Entry("native", "hello-world", "hello-world.elf")
	assert.False(t, ok)
	_, ok = env.pipeline.modules.Entry("native", "xtimer")
	assert.False(t, ok)
}

func TestResult_Write(t *testing.T) {
	res := newResult("native")
	res.appendOutput("first")
	res.appendOutput("second")

	var b strings.Builder
	require.NoError(t, res.Write(&b))

	assert.JSONEq(t, `{"cmd_output":"first\nsecond","board":"native","application_name":"application","success":false}`, b.String())
}
