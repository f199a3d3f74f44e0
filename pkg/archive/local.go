package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// LocalStore writes archive objects under a root directory on the local
// filesystem, mirroring the key layout exactly as the object path.
type LocalStore struct {
	root     string
	maxBytes int64

	mu sync.Mutex
}

// NewLocalStore constructs a LocalStore rooted at dir. maxBytes of zero
// disables rotation.
func NewLocalStore(dir string, maxBytes int64) *LocalStore {
	return &LocalStore{root: dir, maxBytes: maxBytes}
}

// Put writes data to root/key, creating any intermediate directories.
func (s *LocalStore) Put(ctx context.Context, key string, data []byte) error {
	path := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("archive: mkdir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("archive: write %s: %w", key, err)
	}
	if s.maxBytes > 0 {
		s.rotate()
	}
	return nil
}

// Get reads back the object at key.
func (s *LocalStore) Get(ctx context.Context, key string) ([]byte, error) {
	path := filepath.Join(s.root, filepath.FromSlash(key))
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("archive: read %s: %w", key, err)
	}
	return data, nil
}

// rotate deletes the oldest archive files until total size is under the
// configured limit, keyed on the fact that the fix/{yyyy}/{MM}/{dd}/{HH}
// layout sorts lexicographically in chronological order.
func (s *LocalStore) rotate() {
	s.mu.Lock()
	defer s.mu.Unlock()

	type entry struct {
		path string
		size int64
	}
	var files []entry
	var total int64

	filepath.Walk(s.root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		files = append(files, entry{path: path, size: info.Size()})
		total += info.Size()
		return nil
	})

	if total <= s.maxBytes {
		return
	}

	sort.Slice(files, func(i, j int) bool { return files[i].path < files[j].path })

	for _, f := range files {
		if total <= s.maxBytes {
			break
		}
		if err := os.Remove(f.path); err != nil {
			continue
		}
		total -= f.size
	}
}
