package distill

import (
	"context"
	"time"
)

// Record is one row per cached artifact in the metadata store.
//
// The (Checksum, Engine, OptionsHash) triple uniquely identifies a cache
// entry and is the only valid basis for the derived cache key; the key
// itself is never stored.
type Record struct {
	// FileURI is the opaque, caller-supplied identity of the source file
	// (conventionally file://<path>). Not unique: one source can have many
	// records across engines and options over time.
	FileURI string `bson:"file_uri" json:"file_uri"`

	// Checksum is the SHA-256 hex digest of the source file's bytes.
	Checksum string `bson:"checksum" json:"checksum"`

	// Engine is the registered engine name.
	Engine string `bson:"engine" json:"engine"`

	// OptionsHash is the 16-hex digest of the canonicalized engine options.
	OptionsHash string `bson:"options_hash" json:"options_hash"`

	// SizeBytes is the size of the cached artifact, not the source.
	SizeBytes int64 `bson:"size_bytes" json:"size_bytes"`

	// CreatedAt is when the entry was first cached (UTC).
	CreatedAt time.Time `bson:"created_at" json:"created_at"`

	// LastAccessed is refreshed on every hit and is the LRU ordering key.
	LastAccessed time.Time `bson:"last_accessed" json:"last_accessed"`

	// CacheLocation is the path of the artifact file under the cache root.
	CacheLocation string `bson:"cache_location" json:"cache_location"`
}

// Key recomputes the cache key for this record's identity.
func (r Record) Key() string {
	return CacheKey(r.Checksum, r.Engine, r.OptionsHash)
}

// RecordFilter matches records by equality on its set fields; a nil field
// matches anything. The zero filter matches every record.
type RecordFilter struct {
	Checksum    *string
	Engine      *string
	OptionsHash *string
	FileURI     *string
}

// FilterByIdentity matches the single record for a cache-entry identity.
func FilterByIdentity(checksum, engine, optionsHash string) RecordFilter {
	return RecordFilter{
		Checksum:    &checksum,
		Engine:      &engine,
		OptionsHash: &optionsHash,
	}
}

// FilterByURI matches every record for a source URI.
func FilterByURI(uri string) RecordFilter {
	return RecordFilter{FileURI: &uri}
}

// Matches reports whether a record satisfies the filter.
func (f RecordFilter) Matches(r Record) bool {
	if f.Checksum != nil && r.Checksum != *f.Checksum {
		return false
	}
	if f.Engine != nil && r.Engine != *f.Engine {
		return false
	}
	if f.OptionsHash != nil && r.OptionsHash != *f.OptionsHash {
		return false
	}
	if f.FileURI != nil && r.FileURI != *f.FileURI {
		return false
	}
	return true
}

// RecordUpdate sets the non-nil fields on matched records. Identity fields
// are deliberately absent: checksum, engine, and options hash never change
// once a record exists.
type RecordUpdate struct {
	LastAccessed  *time.Time
	FileURI       *string
	CacheLocation *string
	SizeBytes     *int64
}

// FindOptions controls Find ordering.
type FindOptions struct {
	// SortByLastAccessed returns records oldest-first, the order eviction
	// consumes them in.
	SortByLastAccessed bool
}

// MetadataStore is the abstract document collection the cache keeps its
// records in. The persistence technology is external to this core; the
// store is assumed to provide per-document atomicity for each operation.
type MetadataStore interface {
	// Find returns all records matching the filter.
	Find(ctx context.Context, filter RecordFilter, opts FindOptions) ([]Record, error)

	// FindOne returns the first record matching the filter, and whether one
	// was found.
	FindOne(ctx context.Context, filter RecordFilter) (Record, bool, error)

	// InsertOne adds a record.
	InsertOne(ctx context.Context, rec Record) error

	// UpdateOne applies the update to the first matching record.
	UpdateOne(ctx context.Context, filter RecordFilter, update RecordUpdate) error

	// UpdateMany applies the update to all matching records and returns how
	// many were modified.
	UpdateMany(ctx context.Context, filter RecordFilter, update RecordUpdate) (int64, error)

	// DeleteMany removes all matching records and returns how many were
	// deleted.
	DeleteMany(ctx context.Context, filter RecordFilter) (int64, error)
}
