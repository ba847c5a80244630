// Package localfs implements the profile-scoped key/value store on plain
// files: one file per key, durable atomic writes, flat layout under a root
// directory. It is the default local adapter, mirroring how a browser
// profile keeps extension storage on disk.
package localfs

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/lingopad/lexsync/pkg/core"
)

// Store implements core.LocalStore on the filesystem.
type Store struct {
	root   string
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// Config holds the configuration for the filesystem store.
type Config struct {
	// Root is the directory holding one file per key.
	Root string
	// Logger is optional; failures are logged at Warn before surfacing.
	Logger *slog.Logger
}

// New opens (and creates if needed) the store rooted at cfg.Root.
func New(cfg Config) (*Store, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("localfs: root directory is required")
	}
	if err := os.MkdirAll(cfg.Root, 0o755); err != nil {
		return nil, fmt.Errorf("localfs: %w: %v", core.ErrStorageUnavailable, err)
	}
	return &Store{root: cfg.Root, logger: cfg.Logger}, nil
}

// Get returns the value stored under key, or core.ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.pathFor(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, core.ErrNotFound
		}
		return nil, s.unavailable("get", key, err)
	}
	return data, nil
}

// Set durably persists value under key. The write is atomic: a crash leaves
// either the old value or the new one, never a torn file.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if err := writeFileAtomic(s.pathFor(key), value, 0o644); err != nil {
		return s.unavailable("set", key, err)
	}
	return nil
}

// Remove deletes the entry for key. Removing an absent key is a no-op.
func (s *Store) Remove(ctx context.Context, key string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if err := os.Remove(s.pathFor(key)); err != nil && !os.IsNotExist(err) {
		return s.unavailable("remove", key, err)
	}
	return nil
}

// GetAll returns every entry whose key starts with prefix.
func (s *Store) GetAll(ctx context.Context, prefix string) (map[string][]byte, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, s.unavailable("scan", prefix, err)
	}

	out := make(map[string][]byte)
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), tempFilePrefix) {
			continue
		}
		key, ok := keyFromName(entry.Name())
		if !ok || !strings.HasPrefix(key, prefix) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.root, entry.Name()))
		if err != nil {
			if os.IsNotExist(err) {
				continue // Removed between scan and read.
			}
			return nil, s.unavailable("scan", key, err)
		}
		out[key] = data
	}
	return out, nil
}

// Close marks the store closed. Subsequent calls fail with
// ErrStorageUnavailable.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return core.ErrStorageUnavailable
	}
	return nil
}

func (s *Store) unavailable(op, key string, err error) error {
	if s.logger != nil {
		s.logger.Warn("local store failure", "op", op, "key", key, "error", err)
	}
	return fmt.Errorf("localfs %s %q: %w: %v", op, key, core.ErrStorageUnavailable, err)
}

// Keys may contain ':' and '/' (kind:parentRef), so filenames carry the
// escaped form.
func (s *Store) pathFor(key string) string {
	return filepath.Join(s.root, url.PathEscape(key)+".json")
}

func keyFromName(name string) (string, bool) {
	name = strings.TrimSuffix(name, ".json")
	key, err := url.PathUnescape(name)
	if err != nil {
		return "", false
	}
	return key, true
}
