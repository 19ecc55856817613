package catalog

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.etcd.io/bbolt"
)

var (
	modulesBucket      = []byte("modules")
	boardsBucket       = []byte("boards")
	applicationsBucket = []byte("applications")
)

// BoltStore keeps the catalog in a single BoltDB file
type BoltStore struct {
	db *bbolt.DB
}

// OpenBolt opens or creates the catalog database at path
func OpenBolt(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create catalog directory: %w", err)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{modulesBucket, boardsBucket, applicationsBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create catalog buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Close closes the catalog database
func (s *BoltStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}

	return nil
}

func (s *BoltStore) ModuleByID(_ context.Context, id int) (*Module, error) {
	var m Module
	if err := s.get(modulesBucket, id, &m); err != nil {
		return nil, fmt.Errorf("module %d: %w", id, err)
	}

	return &m, nil
}

func (s *BoltStore) ModuleByName(_ context.Context, name string) (*Module, error) {
	var matches []Module

	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(modulesBucket).ForEach(func(_, v []byte) error {
			var m Module
			if err := json.Unmarshal(v, &m); err != nil {
				return err
			}
			if m.Name == name {
				matches = append(matches, m)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("module %q: %w", name, ErrNotFound)
	case 1:
		return &matches[0], nil
	default:
		return nil, fmt.Errorf("module %q: %w", name, ErrAmbiguous)
	}
}

func (s *BoltStore) ApplicationByID(_ context.Context, id int) (*Application, error) {
	var a Application
	if err := s.get(applicationsBucket, id, &a); err != nil {
		return nil, fmt.Errorf("application %d: %w", id, err)
	}

	return &a, nil
}

func (s *BoltStore) Applications(_ context.Context) ([]Application, error) {
	var apps []Application
	if err := s.list(applicationsBucket, func(v []byte) error {
		var a Application
		if err := json.Unmarshal(v, &a); err != nil {
			return err
		}
		apps = append(apps, a)
		return nil
	}); err != nil {
		return nil, err
	}

	sort.SliceStable(apps, func(i, j int) bool { return apps[i].Name < apps[j].Name })

	return apps, nil
}

func (s *BoltStore) Boards(_ context.Context) ([]Board, error) {
	var boards []Board
	if err := s.list(boardsBucket, func(v []byte) error {
		var b Board
		if err := json.Unmarshal(v, &b); err != nil {
			return err
		}
		boards = append(boards, b)
		return nil
	}); err != nil {
		return nil, err
	}

	sort.SliceStable(boards, func(i, j int) bool { return boards[i].DisplayName < boards[j].DisplayName })

	return boards, nil
}

func (s *BoltStore) ReplaceModules(_ context.Context, modules []Module) error {
	return s.replace(modulesBucket, len(modules), func(i, id int) any {
		modules[i].ID = id
		return modules[i]
	})
}

func (s *BoltStore) ReplaceBoards(_ context.Context, boards []Board) error {
	return s.replace(boardsBucket, len(boards), func(i, id int) any {
		boards[i].ID = id
		return boards[i]
	})
}

func (s *BoltStore) ReplaceApplications(_ context.Context, apps []Application) error {
	return s.replace(applicationsBucket, len(apps), func(i, id int) any {
		apps[i].ID = id
		return apps[i]
	})
}

// replace recreates bucket and stores n records produced by record
func (s *BoltStore) replace(bucket []byte, n int, record func(i, id int) any) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucket); err != nil && err != bbolt.ErrBucketNotFound {
			return err
		}

		b, err := tx.CreateBucket(bucket)
		if err != nil {
			return err
		}

		for i := 0; i < n; i++ {
			seq, err := b.NextSequence()
			if err != nil {
				return err
			}

			data, err := json.Marshal(record(i, int(seq)))
			if err != nil {
				return err
			}

			if err := b.Put(itob(int(seq)), data); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to replace %s: %w", bucket, err)
	}

	return nil
}

func (s *BoltStore) get(bucket []byte, id int, v any) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucket).Get(itob(id))
		if data == nil {
			return ErrNotFound
		}

		return json.Unmarshal(data, v)
	})
}

func (s *BoltStore) list(bucket []byte, fn func(v []byte) error) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucket).ForEach(func(_, v []byte) error {
			return fn(v)
		})
	})
}

// itob encodes an id as a sortable big-endian key
func itob(id int) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(id))
	return b
}

var _ Store = (*BoltStore)(nil)
