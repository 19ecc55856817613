// Package strip produces the reduced RIOT trees shipped to users next to
// their firmware so that flashing still works without a full checkout.
package strip

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	gitignore "github.com/sabhiram/go-gitignore"
	"go.uber.org/multierr"

	"github.com/Norgate-AV/riotam/internal/utils"
)

// CopyOp is a single file copied into a prepared tree
type CopyOp struct {
	Src string
	Dst string
}

// StripRepository copies the RIOT tree src to dst, leaving out every path
// matched by the gitignore style patterns. An existing dst is replaced.
// Flashing must not trigger a rebuild in the stripped tree, so the
// "flash: all" dependency in Makefile.include is dropped.
func StripRepository(src, dst string, patterns []string, logger zerolog.Logger) error {
	ignore := gitignore.CompileIgnoreLines(patterns...)

	if err := os.RemoveAll(dst); err != nil {
		return fmt.Errorf("failed to remove old stripped tree: %w", err)
	}

	skipped := 0
	err := utils.CopyTree(src, dst, func(rel string, d fs.DirEntry) bool {
		path := filepath.ToSlash(rel)
		if d.IsDir() {
			path += "/"
		}

		if ignore.MatchesPath(path) {
			skipped++
			logger.Debug().Str("path", path).Msg("Skipping")
			return true
		}

		return false
	})
	if err != nil {
		return fmt.Errorf("failed to copy RIOT tree: %w", err)
	}

	if err := dropFlashDependency(filepath.Join(dst, "Makefile.include")); err != nil {
		return err
	}

	logger.Info().Str("dst", dst).Int("skipped", skipped).Msg("Stripped RIOT tree")

	return nil
}

func dropFlashDependency(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	lines := strings.SplitAfter(string(data), "\n")
	for i, line := range lines {
		if strings.Contains(line, "flash: all") {
			lines[i] = strings.Replace(line, " all", "", 1)
		}
	}

	if err := os.WriteFile(path, []byte(strings.Join(lines, "")), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	return nil
}

// PrepareStrippedRepo copies the bare stripped tree src to dst, removes
// every board except board and the shared ones, then performs ops.
// Failed single file copies are logged and do not fail the preparation.
func PrepareStrippedRepo(src, dst, board string, ops []CopyOp, logger zerolog.Logger) error {
	if err := utils.CopyTree(src, dst, nil); err != nil {
		return fmt.Errorf("failed to copy stripped tree: %w", err)
	}

	if err := removeOtherBoards(filepath.Join(dst, "boards"), board); err != nil {
		logger.Error().Err(err).Msg("Failed to remove unused boards")
	}

	var copyErrs error
	for _, op := range ops {
		if err := utils.CopyFile(op.Src, op.Dst); err != nil {
			copyErrs = multierr.Append(copyErrs, err)
		}
	}

	if copyErrs != nil {
		logger.Debug().Err(copyErrs).Int("failed", len(multierr.Errors(copyErrs))).Msg("Some files were not copied")
	}

	return nil
}

func removeOtherBoards(boardsDir, board string) error {
	entries, err := os.ReadDir(boardsDir)
	if err != nil {
		return err
	}

	var errs error
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() || name == "include" || name == board || strings.Contains(name, "common") {
			continue
		}

		errs = multierr.Append(errs, os.RemoveAll(filepath.Join(boardsDir, name)))
	}

	return errs
}

// Request describes the stripped tree generated for one build
type Request struct {
	// Directory the application was built in
	AppBuildDir string
	// Bare stripped RIOT tree
	StrippedDir string
	// Per-build scratch directory, the tree is created inside it
	TempDir string
	// Name of the generated applications directory inside the tree
	GeneratedDir string
	Board        string
	AppName      string
}

// GenerateStrippedRepo assembles a stripped tree holding the build's
// Makefile and binaries and returns its path
func GenerateStrippedRepo(req Request, logger zerolog.Logger) (string, error) {
	binDir := filepath.Join(req.AppBuildDir, "bin", req.Board)

	dst := filepath.Join(req.TempDir, filepath.Base(req.StrippedDir))
	appCopyDir := filepath.Join(dst, req.GeneratedDir, req.AppName)
	binCopyDir := filepath.Join(appCopyDir, "bin", req.Board)

	ops := []CopyOp{
		{Src: filepath.Join(binDir, req.AppName+".elf"), Dst: filepath.Join(binCopyDir, req.AppName+".elf")},
		{Src: filepath.Join(binDir, req.AppName+".hex"), Dst: filepath.Join(binCopyDir, req.AppName+".hex")},
		{Src: filepath.Join(req.AppBuildDir, "Makefile"), Dst: filepath.Join(appCopyDir, "Makefile")},
	}

	if err := PrepareStrippedRepo(req.StrippedDir, dst, req.Board, ops, logger); err != nil {
		return "", err
	}

	return dst, nil
}
