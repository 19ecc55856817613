package cache

import (
	"fmt"
	"path/filepath"

	"github.com/Norgate-AV/riotam/internal/utils"
)

// ApplicationCache stores the output files of an application per board.
// Each file (for example app.elf and app.hex) is cached independently.
type ApplicationCache struct {
	*Cache
}

// NewApplicationCache creates an application cache rooted at root
func NewApplicationCache(root string, opts ...Option) *ApplicationCache {
	return &ApplicationCache{Cache: New(root, opts...)}
}

// Entry returns the cached file for app on board. Both the file and the
// entry marker must exist.
func (a *ApplicationCache) Entry(board, app, file string) (string, bool) {
	dir, err := a.entryPath(board, app)
	if err != nil || utils.ValidateSegment(file) != nil || file == MarkerFile {
		return "", false
	}

	path := filepath.Join(dir, file)
	if !utils.IsFile(path) || !a.ready(dir) {
		return "", false
	}

	return path, true
}

// Store caches src as file of app. It is a no-op when that file is
// already cached.
func (a *ApplicationCache) Store(src, board, app, file string) error {
	stored, err := a.storeFile(src, board, app, file)
	if err != nil {
		return err
	}

	if stored {
		a.logger.Debug().Str("board", board).Str("application", app).Str("file", file).Msg("cached application file")
	}

	return nil
}

// Restore copies the cached file to dest, reporting false on a miss
func (a *ApplicationCache) Restore(board, app, file, dest string) (bool, error) {
	path, ok := a.Entry(board, app, file)
	if !ok {
		return false, nil
	}

	if err := RestoreFile(path, dest); err != nil {
		return false, fmt.Errorf("application %s: %w", app, err)
	}

	return true, nil
}
