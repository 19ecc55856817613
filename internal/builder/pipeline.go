package builder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"github.com/Norgate-AV/riotam/internal/cache"
	"github.com/Norgate-AV/riotam/internal/catalog"
	"github.com/Norgate-AV/riotam/internal/config"
	"github.com/Norgate-AV/riotam/internal/strip"
	"github.com/Norgate-AV/riotam/internal/utils"
)

const (
	elfExtension     = "elf"
	archiveExtension = "tar"
	archiveName      = "RIOT_stripped.tar"
	serverSideError  = "something went wrong on server side"
)

// ExampleRequest selects an example application build
type ExampleRequest struct {
	Board         string
	ApplicationID int
	// Use the module and application caches
	Caching bool
	// Only produce binaries and store them in the application cache
	Prefetching bool
}

// Pipeline turns build requests into firmware images and stripped archives.
// It is safe for concurrent use; every request works in its own directories.
type Pipeline struct {
	cfg     *config.Config
	catalog catalog.Store
	builder *CommandBuilder
	modules *cache.ModuleCache
	apps    *cache.ApplicationCache
	logger  zerolog.Logger
}

// NewPipeline creates a pipeline using the caches and directories of cfg
func NewPipeline(cfg *config.Config, store catalog.Store, logger zerolog.Logger) *Pipeline {
	opts := []cache.Option{
		cache.WithVersion(cfg.CacheVersion),
		cache.WithLocking(cfg.CacheLock),
		cache.WithLogger(logger),
	}

	return &Pipeline{
		cfg:     cfg,
		catalog: store,
		builder: NewCommandBuilder(cfg.MakePath, cfg.BuildTimeout),
		modules: cache.NewModuleCache(cfg.ModuleCacheDir, opts...),
		apps:    cache.NewApplicationCache(cfg.ApplicationCacheDir, opts...),
		logger:  logger,
	}
}

// Builder returns the command builder used for make runs
func (p *Pipeline) Builder() *CommandBuilder {
	return p.builder
}

// ticket holds the per-request directories
type ticket struct {
	id      string
	appName string
	appDir  string
	tempDir string
}

func (p *Pipeline) newTicket() (*ticket, error) {
	id := utils.TicketID()
	t := &ticket{
		id:      id,
		appName: "application" + id,
		tempDir: filepath.Join(p.cfg.TmpDir, id),
	}
	t.appDir = filepath.Join(p.cfg.GeneratedPath(), t.appName)

	if err := os.MkdirAll(t.tempDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create temporary directory: %w", err)
	}

	return t, nil
}

func (p *Pipeline) cleanup(t *ticket) {
	err := multierr.Combine(os.RemoveAll(t.appDir), os.RemoveAll(t.tempDir))
	if err != nil {
		p.logger.Error().Err(err).Str("ticket", t.id).Msg("Failed to remove build directories")
	}
}

// BuildCustom builds an application from catalog module IDs and the
// content of its main.c
func (p *Pipeline) BuildCustom(ctx context.Context, board string, moduleIDs []int, mainContent string) *Result {
	res := newResult(board)
	start := time.Now()

	if err := utils.ValidateSegment(board); err != nil {
		res.appendOutput(fmt.Sprintf("invalid board %q", board))
		return res
	}

	modules := make([]string, 0, len(moduleIDs))
	for _, id := range moduleIDs {
		m, err := p.catalog.ModuleByID(ctx, id)
		if err != nil {
			p.logger.Error().Err(err).Int("module_id", id).Msg("Failed to read module")
			res.appendOutput("error while reading modules from database")
			return res
		}
		modules = append(modules, m.Name)
	}

	t, err := p.newTicket()
	if err != nil {
		p.logger.Error().Err(err).Msg("Failed to prepare build")
		res.appendOutput(serverSideError)
		return res
	}
	defer p.cleanup(t)

	res.ApplicationName = t.appName
	log := p.logger.With().Str("ticket", t.id).Str("board", board).Logger()

	if err := os.MkdirAll(t.appDir, 0o755); err != nil {
		log.Error().Err(err).Msg("Failed to create application directory")
		res.appendOutput(serverSideError)
		return res
	}

	if err := WriteMakefile(filepath.Join(t.appDir, "Makefile"), t.appName, board, modules); err != nil {
		log.Error().Err(err).Msg("Failed to write Makefile")
		res.appendOutput(serverSideError)
		return res
	}

	if err := os.WriteFile(filepath.Join(t.appDir, "main.c"), []byte(mainContent), 0o644); err != nil {
		log.Error().Err(err).Msg("Failed to write main.c")
		res.appendOutput(serverSideError)
		return res
	}

	res.appendOutput(p.make(ctx, log, t, board))

	binDir := BinDir(t.appDir, board)

	image, err := strip.FileAsBase64(ElfFile(binDir, t.appName))
	if err != nil {
		log.Warn().Err(err).Msg("No image produced")
		res.appendOutput(serverSideError)
		return res
	}
	res.OutputFile = image
	res.OutputFileExtension = elfExtension

	if err := p.archive(log, t, board, res); err != nil {
		log.Error().Err(err).Msg("Failed to create archive")
		res.appendOutput(serverSideError)
		return res
	}

	res.Success = true
	res.Extra["duration_ms"] = time.Since(start).Milliseconds()
	log.Info().Dur("duration", time.Since(start)).Msg("Custom build finished")

	return res
}

// BuildExample builds an example application from the catalog, reusing
// cached binaries and module objects when req.Caching is set
func (p *Pipeline) BuildExample(ctx context.Context, req ExampleRequest) *Result {
	res := newResult(req.Board)
	start := time.Now()

	if err := utils.ValidateSegment(req.Board); err != nil {
		res.appendOutput(fmt.Sprintf("invalid board %q", req.Board))
		return res
	}

	app, err := p.catalog.ApplicationByID(ctx, req.ApplicationID)
	if err != nil {
		p.logger.Error().Err(err).Int("application_id", req.ApplicationID).Msg("Failed to read application")
		res.appendOutput(err.Error())
		return res
	}

	// binaries are cached under the source directory name and the
	// application's own name, not the per-request ticket name
	sourceDir := filepath.Base(app.Path)
	elfName := app.Name + "." + elfExtension
	hexName := app.Name + ".hex"

	t, err := p.newTicket()
	if err != nil {
		p.logger.Error().Err(err).Msg("Failed to prepare build")
		res.appendOutput(serverSideError)
		return res
	}
	defer p.cleanup(t)

	res.ApplicationName = t.appName
	log := p.logger.With().
		Str("ticket", t.id).
		Str("board", req.Board).
		Str("application", app.Name).
		Logger()

	if err := utils.CopyTree(filepath.Join(p.cfg.RiotDir, app.Path), t.appDir, nil); err != nil {
		log.Error().Err(err).Msg("Failed to copy application")
		res.appendOutput(serverSideError)
		return res
	}

	binDir := BinDir(t.appDir, req.Board)
	elfFile := ElfFile(binDir, t.appName)
	hexFile := HexFile(binDir, t.appName)

	var used []catalog.Module
	cachedBinaries := false

	if req.Caching {
		cachedBinaries = p.restoreBinaries(log, req.Board, sourceDir, elfName, elfFile, hexName, hexFile)

		if !cachedBinaries {
			used = p.usedModules(ctx, log, t.appDir)
			res.Extra["cached_modules"] = p.restoreModules(log, req.Board, used, binDir)
		}
	}
	res.Extra["cached_binaries"] = cachedBinaries

	if !cachedBinaries {
		if err := ReplaceApplicationName(filepath.Join(t.appDir, "Makefile"), t.appName); err != nil {
			log.Error().Err(err).Msg("Failed to rename application")
			res.appendOutput(serverSideError)
			return res
		}

		res.appendOutput(p.make(ctx, log, t, req.Board))
	}

	built := utils.IsFile(elfFile) && utils.IsFile(hexFile)

	if !req.Prefetching {
		if err := p.archive(log, t, req.Board, res); err != nil {
			log.Error().Err(err).Msg("Failed to create archive")
			res.appendOutput(serverSideError)
			return res
		}
		res.Success = utils.IsFile(elfFile)
	} else {
		res.Success = built
	}

	if req.Caching && !cachedBinaries && built {
		p.storeModules(log, req.Board, used, binDir)
	}

	if req.Prefetching && built {
		p.storeBinaries(log, req.Board, sourceDir, elfName, elfFile, hexName, hexFile)
	}

	res.Extra["duration_ms"] = time.Since(start).Milliseconds()
	log.Info().
		Bool("success", res.Success).
		Bool("cached_binaries", cachedBinaries).
		Dur("duration", time.Since(start)).
		Msg("Example build finished")

	return res
}

// make runs the build for t and returns make's output
func (p *Pipeline) make(ctx context.Context, log zerolog.Logger, t *ticket, board string) string {
	binDir := BinDir(t.appDir, board)

	args, err := p.builder.BuildCommandArgs(t.appDir, board, BinDirBase(t.appDir), ElfFile(binDir, t.appName))
	if err != nil {
		log.Error().Err(err).Msg("Failed to build make command")
		return err.Error()
	}

	log.Debug().Str("command", p.builder.CommandLine(args)).Msg("Running make")

	out, err := p.builder.Execute(ctx, args)
	if err != nil {
		log.Warn().Err(err).Msg("Build failed")
	}

	return out
}

// archive stores the base64 stripped tree archive of t in res
func (p *Pipeline) archive(log zerolog.Logger, t *ticket, board string, res *Result) error {
	stripped, err := strip.GenerateStrippedRepo(strip.Request{
		AppBuildDir:  t.appDir,
		StrippedDir:  p.cfg.StrippedDir,
		TempDir:      t.tempDir,
		GeneratedDir: p.cfg.GeneratedDir,
		Board:        board,
		AppName:      t.appName,
	}, log)
	if err != nil {
		return err
	}

	archivePath := filepath.Join(t.tempDir, archiveName)
	if err := strip.ArchiveDir(stripped, archivePath); err != nil {
		return err
	}

	encoded, err := strip.FileAsBase64(archivePath)
	if err != nil {
		return err
	}

	res.OutputArchive = encoded
	res.OutputArchiveExtension = archiveExtension

	return nil
}

// restoreBinaries copies cached images into the bin directory under the
// ticket's name. Either image being cached counts as a hit.
func (p *Pipeline) restoreBinaries(log zerolog.Logger, board, app, elfName, elfFile, hexName, hexFile string) bool {
	hit := false

	for _, f := range []struct{ name, dest string }{{elfName, elfFile}, {hexName, hexFile}} {
		ok, err := p.apps.Restore(board, app, f.name, f.dest)
		if err != nil {
			log.Warn().Err(err).Str("file", f.name).Msg("Failed to restore cached binary")
			continue
		}
		hit = hit || ok
	}

	if hit {
		log.Debug().Msg("Using cached binaries")
	}

	return hit
}

func (p *Pipeline) storeBinaries(log zerolog.Logger, board, app, elfName, elfFile, hexName, hexFile string) {
	err := multierr.Combine(
		p.apps.Store(elfFile, board, app, elfName),
		p.apps.Store(hexFile, board, app, hexName),
	)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to cache binaries")
	}
}

// usedModules resolves the USEMODULE entries of the application's Makefile
// against the catalog. Entries without a catalog module are not cacheable.
func (p *Pipeline) usedModules(ctx context.Context, log zerolog.Logger, appDir string) []catalog.Module {
	names, err := ModulesFromMakefile(appDir)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read used modules")
		return nil
	}

	var modules []catalog.Module
	for _, name := range names {
		m, err := p.catalog.ModuleByName(ctx, name)
		if err != nil {
			if !errors.Is(err, catalog.ErrNotFound) {
				log.Warn().Err(err).Str("module", name).Msg("Module not cacheable")
			}
			continue
		}
		modules = append(modules, *m)
	}

	return modules
}

func (p *Pipeline) restoreModules(log zerolog.Logger, board string, modules []catalog.Module, binDir string) int {
	restored := 0

	for _, m := range modules {
		key := filepath.Base(m.Path)

		ok, err := p.modules.Restore(board, key, filepath.Join(binDir, key))
		if err != nil {
			log.Warn().Err(err).Str("module", key).Msg("Failed to restore cached module")
			continue
		}
		if ok {
			restored++
		}
	}

	return restored
}

func (p *Pipeline) storeModules(log zerolog.Logger, board string, modules []catalog.Module, binDir string) {
	var errs error

	for _, m := range modules {
		key := filepath.Base(m.Path)
		src := filepath.Join(binDir, key)

		if !utils.IsDir(src) {
			continue
		}

		errs = multierr.Append(errs, p.modules.Store(src, board, key))
	}

	if errs != nil {
		log.Warn().Err(errs).Msg("Failed to cache modules")
	}
}
