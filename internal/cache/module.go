package cache

import "fmt"

// ModuleCache stores the compiled object directory of a module per board
type ModuleCache struct {
	*Cache
}

// NewModuleCache creates a module cache rooted at root
func NewModuleCache(root string, opts ...Option) *ModuleCache {
	return &ModuleCache{Cache: New(root, opts...)}
}

// Entry returns the cached directory for module on board, if it is ready
func (m *ModuleCache) Entry(board, module string) (string, bool) {
	dir, err := m.entryPath(board, module)
	if err != nil {
		return "", false
	}

	if !m.ready(dir) {
		return "", false
	}

	return dir, true
}

// Store copies moduleDir into the cache. It is a no-op when the entry is
// already ready.
func (m *ModuleCache) Store(moduleDir, board, module string) error {
	stored, err := m.storeDir(moduleDir, board, module)
	if err != nil {
		return err
	}

	if stored {
		m.logger.Debug().Str("board", board).Str("module", module).Msg("cached module")
	} else {
		m.logger.Debug().Str("board", board).Str("module", module).Msg("module already cached")
	}

	return nil
}

// Restore replaces destDir with the cached module, reporting false on a miss
func (m *ModuleCache) Restore(board, module, destDir string) (bool, error) {
	dir, ok := m.Entry(board, module)
	if !ok {
		return false, nil
	}

	if err := RestoreTree(dir, destDir); err != nil {
		return false, fmt.Errorf("module %s: %w", module, err)
	}

	m.logger.Debug().Str("board", board).Str("module", module).Str("from", dir).Msg("using cached module")

	return true, nil
}
