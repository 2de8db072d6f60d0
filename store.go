package distill

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/afero"
)

// sizeCounterFile is the single sidecar file under the cache root holding the
// persisted running size counter.
const sizeCounterFile = "cachesize"

// evictedEntry identifies a cache entry removed to free space.
type evictedEntry struct {
	Checksum    string
	Engine      string
	OptionsHash string
	SizeBytes   int64
}

// store owns the cache directory and the persisted size counter. No other
// component creates, renames, or deletes files under the cache root.
//
// ensureSpace, addBytes, and removeBytes share one mutex so concurrent
// evictions and insertions cannot race past the budget. Engine execution
// never happens under this lock.
type store struct {
	fs       afero.Fs
	dir      string
	maxBytes int64
	meta     MetadataStore
	log      *slog.Logger
	now      NowFunc

	mu   sync.Mutex
	size int64
}

// openStore creates the cache directory if needed and loads the persisted
// size counter. A missing or malformed counter file starts the counter at
// zero; prune reconciles it against the real on-disk total.
func openStore(fs afero.Fs, dir string, maxBytes int64, meta MetadataStore, log *slog.Logger, now NowFunc) (*store, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory %s: %w", dir, err)
	}
	s := &store{
		fs:       fs,
		dir:      dir,
		maxBytes: maxBytes,
		meta:     meta,
		log:      log,
		now:      now,
	}
	s.size = s.loadSize()
	return s, nil
}

// loadSize reads the persisted counter.
func (s *store) loadSize() int64 {
	data, err := afero.ReadFile(s.fs, s.counterPath())
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn("failed to read size counter, starting at zero", "path", s.counterPath(), "error", err)
		}
		return 0
	}
	n, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil || n < 0 {
		s.log.Warn("malformed size counter, starting at zero", "path", s.counterPath())
		return 0
	}
	return n
}

// persistSizeLocked writes the counter. Callers hold s.mu.
func (s *store) persistSizeLocked() error {
	data := []byte(strconv.FormatInt(s.size, 10))
	if err := afero.WriteFile(s.fs, s.counterPath(), data, 0o644); err != nil {
		return fmt.Errorf("failed to persist size counter: %w", err)
	}
	return nil
}

func (s *store) counterPath() string {
	return filepath.Join(s.dir, sizeCounterFile)
}

// currentSize returns the counter value.
func (s *store) currentSize() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// addBytes records n new bytes under the cache root.
func (s *store) addBytes(n int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.size += n
	return s.persistSizeLocked()
}

// removeBytes records n bytes freed under the cache root. The counter never
// goes negative; drift below zero means it was already stale and prune will
// settle it.
func (s *store) removeBytes(n int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.size -= n
	if s.size < 0 {
		s.log.Warn("size counter went negative, clamping to zero")
		s.size = 0
	}
	return s.persistSizeLocked()
}

// setSize overwrites the counter with a reconciled value. Prune is the only
// caller.
func (s *store) setSize(n int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.size = n
	return s.persistSizeLocked()
}

// ensureSpace makes room for additional bytes by evicting the least recently
// accessed entries through the metadata store. It returns the evicted
// identities. When no candidates remain and the budget still cannot be
// satisfied, it logs and returns without error: the caller proceeds
// best-effort, matching the cache's single-writer policy.
//
// Orphaned files the metadata store doesn't know about cannot be freed here;
// only prune can reclaim those.
func (s *store) ensureSpace(ctx context.Context, additional int64) ([]evictedEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.size+additional <= s.maxBytes {
		return nil, nil
	}

	candidates, err := s.meta.Find(ctx, RecordFilter{}, FindOptions{SortByLastAccessed: true})
	if err != nil {
		return nil, fmt.Errorf("failed to list eviction candidates: %w", err)
	}

	var evicted []evictedEntry
	for _, rec := range candidates {
		if s.size+additional <= s.maxBytes {
			break
		}

		if rec.CacheLocation != "" {
			if err := s.fs.Remove(rec.CacheLocation); err != nil && !os.IsNotExist(err) {
				// The record still goes; prune reclaims the file later.
				s.log.Warn("failed to remove evicted cache file", "path", rec.CacheLocation, "error", err)
			}
		}
		if _, err := s.meta.DeleteMany(ctx, FilterByIdentity(rec.Checksum, rec.Engine, rec.OptionsHash)); err != nil {
			s.log.Warn("failed to delete evicted record", "checksum", rec.Checksum, "engine", rec.Engine, "error", err)
			continue
		}

		s.size -= rec.SizeBytes
		if s.size < 0 {
			s.size = 0
		}
		evicted = append(evicted, evictedEntry{
			Checksum:    rec.Checksum,
			Engine:      rec.Engine,
			OptionsHash: rec.OptionsHash,
			SizeBytes:   rec.SizeBytes,
		})
	}

	if err := s.persistSizeLocked(); err != nil {
		return evicted, err
	}
	if s.size+additional > s.maxBytes {
		s.log.Warn("eviction could not satisfy space request",
			"requested", additional, "current", s.size, "budget", s.maxBytes)
	}
	return evicted, nil
}
