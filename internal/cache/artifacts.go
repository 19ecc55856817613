package cache

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/Norgate-AV/riotam/internal/utils"
)

// RestoreTree replaces destDir with a copy of the cached directory, leaving out the marker
func RestoreTree(cacheDir, destDir string) error {
	if err := os.RemoveAll(destDir); err != nil {
		return fmt.Errorf("failed to remove %s: %w", destDir, err)
	}

	err := utils.CopyTree(cacheDir, destDir, func(rel string, d fs.DirEntry) bool {
		return rel == MarkerFile
	})
	if err != nil {
		return fmt.Errorf("failed to restore %s: %w", cacheDir, err)
	}

	return nil
}

// RestoreFile copies one cached file to dest
func RestoreFile(cachedFile, dest string) error {
	if err := utils.CopyFile(cachedFile, dest); err != nil {
		return fmt.Errorf("failed to restore %s: %w", filepath.Base(cachedFile), err)
	}

	return nil
}

// dirSize sums regular file sizes below dir, skipping unreadable parts
func dirSize(dir string) int64 {
	var total int64

	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // Skip errors
		}

		if d.Type().IsRegular() {
			if info, err := d.Info(); err == nil {
				total += info.Size()
			}
		}

		return nil
	})

	return total
}
