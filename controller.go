package distill

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/sync/singleflight"
)

// cacheKeyPattern matches a checksum- or cache-key-shaped target: a
// lowercase 64-character hex string.
var cacheKeyPattern = regexp.MustCompile(`^[a-f0-9]{64}$`)

// Controller orchestrates transforms: checksum computation, options hashing,
// cache lookup, eviction requests, engine invocation, metadata writes,
// content retrieval, and URI rename/removal.
//
// A Controller exclusively owns one cache store and one metadata store
// handle for its process lifetime.
type Controller struct {
	fs       afero.Fs
	cacheDir string
	maxBytes int64
	log      *slog.Logger
	now      NowFunc

	meta    MetadataStore
	engines *EngineRegistry
	store   *store
	flight  singleflight.Group
}

// New creates a Controller over the given metadata store and engine
// registry. The cache directory is created if it doesn't exist and the
// persisted size counter is loaded.
func New(meta MetadataStore, engines *EngineRegistry, options ...Option) (*Controller, error) {
	if meta == nil {
		return nil, fmt.Errorf("metadata store is required")
	}
	if engines == nil {
		return nil, fmt.Errorf("engine registry is required")
	}

	c := &Controller{
		fs:       afero.NewOsFs(),
		cacheDir: ".distill",
		maxBytes: 1 << 30, // 1 GiB
		log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:      time.Now,
		meta:     meta,
		engines:  engines,
	}

	// Apply options
	for _, option := range options {
		option(c)
	}

	st, err := openStore(c.fs, c.cacheDir, c.maxBytes, meta, c.log, c.now)
	if err != nil {
		return nil, err
	}
	c.store = st

	return c, nil
}

// Transform converts the file at path through the named engine and returns
// the cache key of the derived artifact. An empty engineName lets the
// selector pick one. If outputPath is non-empty the artifact is also copied
// there.
//
// Repeating an identical transformation is free: on a hit the engine is not
// invoked, the record's LastAccessed is refreshed, and the same key is
// returned. Concurrent calls for the same key share a single engine
// execution.
func (c *Controller) Transform(ctx context.Context, path, engineName string, opts Options, outputPath string) (string, error) {
	info, err := c.fs.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s", ErrNotFound, path)
	}

	if engineName == "" {
		engineName = SelectEngine(c.fs, path)
	}
	eng, err := c.engines.Lookup(engineName)
	if err != nil {
		return "", err
	}

	checksum, srcSize, err := checksumFile(c.fs, path)
	if err != nil {
		return "", fmt.Errorf("failed to checksum %s: %w", path, err)
	}
	optsHash, err := eng.OptionsHash(opts)
	if err != nil {
		return "", err
	}
	key := CacheKey(checksum, engineName, optsHash)

	// At most one in-flight engine execution per cache key. Later arrivals
	// block here and reuse the first caller's result. DoChan (rather than
	// Do) lets a waiting caller honor its own context.
	ch := c.flight.DoChan(key, func() (any, error) {
		return c.materialize(ctx, path, eng, engineName, opts, optsHash, checksum, srcSize, key)
	})

	var loc string
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		loc = res.Val.(string)
	}

	if outputPath != "" {
		if err := c.copyOut(loc, outputPath); err != nil {
			return "", err
		}
	}
	return key, nil
}

// materialize resolves one cache key to an on-disk artifact, running the
// engine on a miss. It returns the artifact location.
func (c *Controller) materialize(ctx context.Context, path string, eng Engine, engineName string, opts Options, optsHash, checksum string, srcSize int64, key string) (string, error) {
	now := c.now().UTC()
	identity := FilterByIdentity(checksum, engineName, optsHash)
	loc := c.cachePath(key, eng.Extension(opts))

	rec, found, err := c.meta.FindOne(ctx, identity)
	if err != nil {
		return "", fmt.Errorf("metadata lookup failed: %w", err)
	}
	if found {
		hitLoc := rec.CacheLocation
		if hitLoc == "" {
			hitLoc = loc
		}
		// Never trust a record without verifying the backing bytes.
		if exists, _ := afero.Exists(c.fs, hitLoc); exists {
			ts := now
			if err := c.meta.UpdateOne(ctx, identity, RecordUpdate{LastAccessed: &ts}); err != nil {
				c.log.Warn("failed to refresh last_accessed", "key", key, "error", err)
			}
			return hitLoc, nil
		}
		// Stale record: the file vanished out-of-band. Repair and treat as
		// a miss.
		c.log.Debug("stale metadata record, re-running engine", "key", key)
		if _, err := c.meta.DeleteMany(ctx, identity); err != nil {
			c.log.Warn("failed to delete stale record", "key", key, "error", err)
		} else if err := c.store.removeBytes(rec.SizeBytes); err != nil {
			c.log.Warn("failed to adjust size counter", "error", err)
		}
	}

	// The artifact size is unknown until the engine runs; the source size
	// is a conservative stand-in for the space request. The stored record
	// uses the true artifact size measured afterwards, without re-checking
	// the budget.
	evicted, err := c.store.ensureSpace(ctx, srcSize)
	if err != nil {
		return "", err
	}
	for _, ev := range evicted {
		c.log.Info("evicted cache entry",
			"checksum", ev.Checksum, "engine", ev.Engine, "size_bytes", ev.SizeBytes)
	}

	if err := eng.Transform(ctx, path, loc, opts); err != nil {
		// Engines clean up after themselves; this is the backstop.
		_ = c.fs.Remove(loc)
		return "", err
	}

	fi, err := c.fs.Stat(loc)
	if err != nil {
		return "", fmt.Errorf("%w: engine %q reported success but %s is missing", ErrCacheInconsistent, engineName, loc)
	}
	artSize := fi.Size()

	if err := c.store.addBytes(artSize); err != nil {
		c.log.Warn("failed to persist size counter", "error", err)
	}
	newRec := Record{
		FileURI:       fileURI(path),
		Checksum:      checksum,
		Engine:        engineName,
		OptionsHash:   optsHash,
		SizeBytes:     artSize,
		CreatedAt:     now,
		LastAccessed:  now,
		CacheLocation: loc,
	}
	if err := c.meta.InsertOne(ctx, newRec); err != nil {
		return "", fmt.Errorf("failed to record cache entry: %w", err)
	}

	c.log.Debug("cached transform artifact",
		"key", key, "engine", engineName, "size_bytes", artSize)
	return loc, nil
}

// GetContent returns the text of a cached artifact. A checksum- or
// key-shaped target resolves directly through the cache; anything else is
// treated as a source path, transformed with the auto-selected engine, and
// resolved through the resulting key. If outputPath is non-empty the
// artifact is also copied there.
func (c *Controller) GetContent(ctx context.Context, target, outputPath string) (string, error) {
	if !cacheKeyPattern.MatchString(target) {
		key, err := c.Transform(ctx, target, "", nil, "")
		if err != nil {
			return "", err
		}
		return c.GetContent(ctx, key, outputPath)
	}

	// The artifact extension is unknown here, so glob for the key stem.
	matches, err := afero.Glob(c.fs, filepath.Join(c.cacheDir, target+".*"))
	if err == nil && len(matches) > 0 {
		return c.readArtifact(matches[0], outputPath)
	}

	// Fall back to the metadata store: entries at legacy locations, or a
	// source checksum rather than a derived key.
	recs, err := c.meta.Find(ctx, RecordFilter{}, FindOptions{})
	if err != nil {
		return "", fmt.Errorf("metadata lookup failed: %w", err)
	}
	for _, rec := range recs {
		if rec.Key() != target && rec.Checksum != target {
			continue
		}
		if exists, _ := afero.Exists(c.fs, rec.CacheLocation); exists {
			return c.readArtifact(rec.CacheLocation, outputPath)
		}
		// Stale record: drop it so the next transform rebuilds the entry.
		if _, err := c.meta.DeleteMany(ctx, FilterByIdentity(rec.Checksum, rec.Engine, rec.OptionsHash)); err != nil {
			c.log.Warn("failed to delete stale record", "checksum", rec.Checksum, "error", err)
		} else if err := c.store.removeBytes(rec.SizeBytes); err != nil {
			c.log.Warn("failed to adjust size counter", "error", err)
		}
	}
	return "", fmt.Errorf("%w: no cache entry for %s", ErrNotFound, target)
}

// RemoveByURI deletes every record and backing file whose FileURI matches.
// It is best-effort and returns how many entries were removed.
func (c *Controller) RemoveByURI(ctx context.Context, uri string) (int, error) {
	recs, err := c.meta.Find(ctx, FilterByURI(uri), FindOptions{})
	if err != nil {
		return 0, fmt.Errorf("metadata lookup failed: %w", err)
	}

	count := 0
	for _, rec := range recs {
		if rec.CacheLocation != "" {
			if err := c.fs.Remove(rec.CacheLocation); err != nil && !os.IsNotExist(err) {
				c.log.Warn("failed to remove cache file", "path", rec.CacheLocation, "error", err)
			}
		}
		if _, err := c.meta.DeleteMany(ctx, FilterByIdentity(rec.Checksum, rec.Engine, rec.OptionsHash)); err != nil {
			c.log.Warn("failed to delete record", "checksum", rec.Checksum, "error", err)
			continue
		}
		if err := c.store.removeBytes(rec.SizeBytes); err != nil {
			c.log.Warn("failed to adjust size counter", "error", err)
		}
		count++
	}
	return count, nil
}

// UpdateURI rewrites FileURI on every record matching oldURI and returns how
// many were changed. Identity and cached bytes are untouched: the artifact
// content did not change, only the source's external name.
func (c *Controller) UpdateURI(ctx context.Context, oldURI, newURI string) (int, error) {
	n, err := c.meta.UpdateMany(ctx, FilterByURI(oldURI), RecordUpdate{FileURI: &newURI})
	if err != nil {
		return 0, fmt.Errorf("failed to update uri: %w", err)
	}
	return int(n), nil
}

// cachePath returns the flat on-disk location for a cache key and extension.
func (c *Controller) cachePath(key, ext string) string {
	return filepath.Join(c.cacheDir, key+"."+ext)
}

// readArtifact reads a cached artifact as text, optionally copying it to
// outputPath.
func (c *Controller) readArtifact(loc, outputPath string) (string, error) {
	data, err := afero.ReadFile(c.fs, loc)
	if err != nil {
		return "", fmt.Errorf("failed to read artifact %s: %w", loc, err)
	}
	if outputPath != "" {
		if err := c.copyOut(loc, outputPath); err != nil {
			return "", err
		}
	}
	return string(data), nil
}

// copyOut copies a cached artifact to a caller-supplied destination,
// creating parent directories as needed.
func (c *Controller) copyOut(src, dst string) error {
	if dir := filepath.Dir(dst); dir != "." && dir != "" {
		if err := c.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return copyFile(c.fs, src, dst)
}

// fileURI derives the conventional file:// identity for a source path.
func fileURI(path string) string {
	abs := path
	if !filepath.IsAbs(abs) {
		if a, err := filepath.Abs(abs); err == nil {
			abs = a
		}
	}
	return "file://" + filepath.ToSlash(abs)
}
