// Package cache stores compiled program images. A bounded in-memory LRU
// sits in front of an optional sqlite database that persists images across
// runs.
package cache

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"os"
	"path/filepath"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/funvibe/inkvm/internal/codec"
	"github.com/funvibe/inkvm/internal/config"
)

const schema = `CREATE TABLE IF NOT EXISTS images (
	key        TEXT PRIMARY KEY,
	image      BLOB NOT NULL,
	created_at INTEGER NOT NULL
)`

// Key derives the cache key of source compiled under the options with the
// given fingerprint. The inkvm version and the image format version are
// part of the key, so upgrading either never returns a stale image.
func Key(source, fingerprint string) string {
	h := sha256.New()
	h.Write([]byte(config.Version))
	h.Write([]byte{0, codec.FormatVersion, 0})
	h.Write([]byte(fingerprint))
	h.Write([]byte{0})
	h.Write([]byte(source))
	return hex.EncodeToString(h.Sum(nil))
}

// Stats counts lookups since the store was opened.
type Stats struct {
	MemoryHits int
	DiskHits   int
	Misses     int
}

type Store struct {
	mem    *lru.Cache[string, []byte]
	db     *sql.DB
	logger *zap.Logger

	mu    sync.Mutex
	stats Stats
}

// Open creates a store. With an empty opts.Path only the in-memory layer
// is used.
func Open(opts config.CacheOptions, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	size := opts.MemoryEntries
	if size <= 0 {
		size = config.DefaultCacheEntries
	}
	mem, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, errors.Wrap(err, "creating memory cache")
	}
	s := &Store{mem: mem, logger: logger.With(zap.String("component", "cache"))}

	if opts.Path == "" {
		return s, nil
	}
	if dir := filepath.Dir(opts.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "creating cache directory %s", dir)
		}
	}
	db, err := sql.Open("sqlite", opts.Path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening cache %s", opts.Path)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "setting busy timeout")
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "creating cache table")
	}
	s.db = db
	return s, nil
}

// Persistent reports whether the store has a database behind it.
func (s *Store) Persistent() bool {
	return s.db != nil
}

// Get returns the image stored under key. A miss is not an error.
func (s *Store) Get(key string) ([]byte, bool, error) {
	if image, ok := s.mem.Get(key); ok {
		s.count(func(st *Stats) { st.MemoryHits++ })
		s.logger.Debug("cache hit", zap.String("layer", "memory"), zap.String("key", key))
		return image, true, nil
	}
	if s.db == nil {
		s.miss(key)
		return nil, false, nil
	}

	var image []byte
	err := s.db.QueryRow("SELECT image FROM images WHERE key = ?", key).Scan(&image)
	if errors.Is(err, sql.ErrNoRows) {
		s.miss(key)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "querying cache")
	}
	s.mem.Add(key, image)
	s.count(func(st *Stats) { st.DiskHits++ })
	s.logger.Debug("cache hit", zap.String("layer", "disk"), zap.String("key", key))
	return image, true, nil
}

func (s *Store) miss(key string) {
	s.count(func(st *Stats) { st.Misses++ })
	s.logger.Debug("cache miss", zap.String("key", key))
}

// Put stores image under key in both layers.
func (s *Store) Put(key string, image []byte) error {
	s.mem.Add(key, image)
	if s.db == nil {
		return nil
	}
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO images (key, image, created_at) VALUES (?, ?, ?)",
		key, image, time.Now().Unix(),
	)
	if err != nil {
		return errors.Wrap(err, "saving image")
	}
	return nil
}

// Purge empties both layers.
func (s *Store) Purge() error {
	s.mem.Purge()
	if s.db == nil {
		return nil
	}
	if _, err := s.db.Exec("DELETE FROM images"); err != nil {
		return errors.Wrap(err, "purging cache")
	}
	return nil
}

func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Store) count(fn func(*Stats)) {
	s.mu.Lock()
	fn(&s.stats)
	s.mu.Unlock()
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
