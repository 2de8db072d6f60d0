package distill

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/spf13/afero"
	"github.com/zeebo/blake3"
)

// Default size for the buffer used when hashing and copying files
const defaultBufferSize = 32 * 1024 // 32KB

// bufferPool is a pool of byte slices used for file I/O during hashing and copying
var bufferPool = sync.Pool{
	New: func() interface{} {
		buffer := make([]byte, defaultBufferSize)
		return &buffer
	},
}

// checksumFile computes the SHA-256 hex digest of a file's bytes, streamed in
// fixed-size chunks. It also returns the file's size so callers don't have to
// stat it a second time.
func checksumFile(fs afero.Fs, path string) (string, int64, error) {
	f, err := fs.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	bufPtr := bufferPool.Get().(*[]byte)
	buffer := *bufPtr
	defer bufferPool.Put(bufPtr)

	h := sha256.New()
	n, err := io.CopyBuffer(h, f, buffer)
	if err != nil {
		return "", 0, fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// DefaultOptionsHash computes the canonical 16-hex-character digest of an
// engine option set. The hash input is the JSON serialization of the options;
// encoding/json sorts map keys at every nesting level, so semantically
// identical option sets hash identically regardless of construction order.
// Nil and empty options hash the same.
func DefaultOptionsHash(opts Options) (string, error) {
	if opts == nil {
		opts = Options{}
	}
	data, err := json.Marshal(opts)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize options: %w", err)
	}
	return fmt.Sprintf("%016x", xxhash.Sum64(data)), nil
}

// CacheKey derives the cache key for a (checksum, engine, options hash)
// triple. The key is never stored; records and on-disk filenames agree
// because both recompute it from the same identity.
func CacheKey(checksum, engine, optionsHash string) string {
	var buf []byte
	buf = append(buf, checksum...)
	buf = append(buf, 0)
	buf = append(buf, engine...)
	buf = append(buf, 0)
	buf = append(buf, optionsHash...)
	sum := blake3.Sum256(buf)
	return hex.EncodeToString(sum[:])
}
