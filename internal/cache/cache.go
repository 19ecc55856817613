// Package cache provides the per-board build artifact cache for riotam.
//
// Entries live at <root>/<board>/<key>. An entry is ready once its
// .ready_to_use marker exists; a directory without the marker is a
// leftover from an interrupted write and is treated as a miss.
//
// Directory entries are assembled in a hidden temporary sibling, marked
// ready there and renamed into place, so a reader either sees no entry or
// a complete one. Writers for the same key are serialized with a lock
// file next to the entry. A second writer finds the entry ready and
// returns without copying.
//
// Entries are never evicted or invalidated. Operators clear the cache by
// removing the root directory.
package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Norgate-AV/riotam/internal/utils"
)

const (
	// MarkerFile signals a complete cache entry
	MarkerFile = ".ready_to_use"

	tmpInfix   = ".tmp-"
	lockSuffix = ".lock"
)

// ErrInvalidKey is returned for board, key or file names that are not a single path segment
var ErrInvalidKey = errors.New("invalid cache key")

// Cache is the filesystem store shared by the module and application caches
type Cache struct {
	root    string
	locking bool
	logger  zerolog.Logger

	// called with the entry path once a directory copy is assembled, before
	// it replaces the entry; tests use it to interleave a second writer
	beforeCommit func(dest string)
}

// Option configures a Cache
type Option func(*Cache)

// WithVersion puts every entry below a v<version> directory so that
// incompatible artifact layouts never share entries
func WithVersion(version string) Option {
	return func(c *Cache) {
		if version != "" {
			c.root = filepath.Join(c.root, "v"+version)
		}
	}
}

// WithLocking enables or disables the per-key lock files
func WithLocking(enabled bool) Option {
	return func(c *Cache) {
		c.locking = enabled
	}
}

// WithLogger sets the logger used for cache activity
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// New creates a cache rooted at root. Nothing is created on disk until
// the first store.
func New(root string, opts ...Option) *Cache {
	c := &Cache{
		root:    root,
		locking: true,
		logger:  zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Root returns the directory holding all entries
func (c *Cache) Root() string {
	return c.root
}

// entryPath returns <root>/<board>/<key>
func (c *Cache) entryPath(board, key string) (string, error) {
	for _, s := range []string{board, key} {
		if err := utils.ValidateSegment(s); err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
	}

	return filepath.Join(c.root, board, key), nil
}

// ready reports whether the entry directory carries the marker
func (c *Cache) ready(dir string) bool {
	return utils.IsFile(filepath.Join(dir, MarkerFile))
}

// ensureRoot creates the cache root. An existing root is fine.
func (c *Cache) ensureRoot() error {
	if err := os.MkdirAll(c.root, 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	return nil
}

// lock takes the advisory lock for one key and returns its release function
func (c *Cache) lock(board, key string) (func(), error) {
	if !c.locking {
		return func() {}, nil
	}

	boardDir := filepath.Join(c.root, board)
	if err := os.MkdirAll(boardDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create board directory: %w", err)
	}

	fl := flock.New(filepath.Join(boardDir, "."+key+lockSuffix))
	if err := fl.Lock(); err != nil {
		return nil, fmt.Errorf("failed to lock cache entry %s/%s: %w", board, key, err)
	}

	return func() {
		if err := fl.Unlock(); err != nil {
			c.logger.Warn().Err(err).Str("board", board).Str("key", key).Msg("failed to release cache lock")
		}
	}, nil
}

// storeDir copies the directory src into the entry for (board, key).
// It reports false when the entry was already ready.
func (c *Cache) storeDir(src, board, key string) (bool, error) {
	dest, err := c.entryPath(board, key)
	if err != nil {
		return false, err
	}

	if err := c.ensureRoot(); err != nil {
		return false, err
	}

	unlock, err := c.lock(board, key)
	if err != nil {
		return false, err
	}
	defer unlock()

	// first writer wins
	if c.ready(dest) {
		return false, nil
	}

	boardDir := filepath.Dir(dest)
	if err := os.MkdirAll(boardDir, 0o755); err != nil {
		return false, fmt.Errorf("failed to create board directory: %w", err)
	}

	tmp := filepath.Join(boardDir, "."+key+tmpInfix+uuid.NewString())
	defer os.RemoveAll(tmp)

	if err := utils.CopyTree(src, tmp, nil); err != nil {
		return false, fmt.Errorf("failed to copy %s into cache: %w", src, err)
	}

	if err := utils.Touch(filepath.Join(tmp, MarkerFile)); err != nil {
		return false, fmt.Errorf("failed to mark cache entry ready: %w", err)
	}

	if c.beforeCommit != nil {
		c.beforeCommit(dest)
	}

	// Without the lock another writer may have committed meanwhile. Its
	// entry is kept. A writer committing between this check and the rename
	// below can still be replaced by an identical copy.
	if c.ready(dest) {
		return false, nil
	}

	// a directory without marker is a partial entry from an interrupted write
	if err := os.RemoveAll(dest); err != nil {
		return false, fmt.Errorf("failed to remove stale cache entry: %w", err)
	}

	if err := os.Rename(tmp, dest); err != nil {
		if c.ready(dest) {
			// lost a race against a writer that does not take the lock
			return false, nil
		}

		return false, fmt.Errorf("failed to commit cache entry: %w", err)
	}

	return true, nil
}

// storeFile copies the file src to <entry>/<file> and marks the entry ready.
// It reports false when that file was already cached.
func (c *Cache) storeFile(src, board, key, file string) (bool, error) {
	dir, err := c.entryPath(board, key)
	if err != nil {
		return false, err
	}

	if err := utils.ValidateSegment(file); err != nil || file == MarkerFile {
		return false, fmt.Errorf("%w: file name %q", ErrInvalidKey, file)
	}

	if err := c.ensureRoot(); err != nil {
		return false, err
	}

	unlock, err := c.lock(board, key)
	if err != nil {
		return false, err
	}
	defer unlock()

	target := filepath.Join(dir, file)
	if c.ready(dir) {
		if utils.IsFile(target) {
			return false, nil
		}
	} else if err := os.RemoveAll(dir); err != nil {
		// files left without marker would turn ready along with this one
		return false, fmt.Errorf("failed to remove stale cache entry: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, fmt.Errorf("failed to create cache entry directory: %w", err)
	}

	tmp := filepath.Join(dir, "."+file+tmpInfix+uuid.NewString())
	defer os.Remove(tmp)

	if err := utils.CopyFile(src, tmp); err != nil {
		return false, fmt.Errorf("failed to copy %s into cache: %w", src, err)
	}

	if err := os.Rename(tmp, target); err != nil {
		return false, fmt.Errorf("failed to commit cache file: %w", err)
	}

	if err := utils.Touch(filepath.Join(dir, MarkerFile)); err != nil {
		return false, fmt.Errorf("failed to mark cache entry ready: %w", err)
	}

	return true, nil
}

// Stats summarizes the cache contents
type Stats struct {
	// Ready entries per board
	Boards map[string]int
	// Ready entries in total
	Entries int
	// Entry directories without marker
	Partial int
	// Bytes used by ready and partial entries
	Size int64
}

// Stats walks the cache root. A missing root yields empty stats.
func (c *Cache) Stats() (Stats, error) {
	stats := Stats{Boards: map[string]int{}}

	boards, err := os.ReadDir(c.root)
	if err != nil {
		if os.IsNotExist(err) {
			return stats, nil
		}

		return stats, fmt.Errorf("failed to read cache directory: %w", err)
	}

	for _, board := range boards {
		if !board.IsDir() || isInternal(board.Name()) {
			continue
		}

		entries, err := os.ReadDir(filepath.Join(c.root, board.Name()))
		if err != nil {
			return stats, fmt.Errorf("failed to read cache directory: %w", err)
		}

		for _, entry := range entries {
			if !entry.IsDir() || isInternal(entry.Name()) {
				continue
			}

			dir := filepath.Join(c.root, board.Name(), entry.Name())
			if c.ready(dir) {
				stats.Entries++
				stats.Boards[board.Name()]++
			} else {
				stats.Partial++
			}

			stats.Size += dirSize(dir)
		}
	}

	return stats, nil
}

// isInternal matches lock files and in-flight temporary copies
func isInternal(name string) bool {
	return strings.HasPrefix(name, ".") && (strings.Contains(name, tmpInfix) || strings.HasSuffix(name, lockSuffix))
}
