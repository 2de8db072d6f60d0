package distill

import (
	"context"
	"sort"
	"sync"
)

// MemStore is an in-memory MetadataStore. It backs tests and single-process
// embedded deployments that don't want an external database.
type MemStore struct {
	mu      sync.RWMutex
	records []Record
}

// NewMemStore creates an empty in-memory metadata store.
func NewMemStore() *MemStore {
	return &MemStore{}
}

// Find implements the MetadataStore interface.
func (s *MemStore) Find(ctx context.Context, filter RecordFilter, opts FindOptions) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Record
	for _, rec := range s.records {
		if filter.Matches(rec) {
			out = append(out, rec)
		}
	}
	if opts.SortByLastAccessed {
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].LastAccessed.Before(out[j].LastAccessed)
		})
	}
	return out, nil
}

// FindOne implements the MetadataStore interface.
func (s *MemStore) FindOne(ctx context.Context, filter RecordFilter) (Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.records {
		if filter.Matches(rec) {
			return rec, true, nil
		}
	}
	return Record{}, false, nil
}

// InsertOne implements the MetadataStore interface.
func (s *MemStore) InsertOne(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, rec)
	return nil
}

// UpdateOne implements the MetadataStore interface.
func (s *MemStore) UpdateOne(ctx context.Context, filter RecordFilter, update RecordUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.records {
		if filter.Matches(s.records[i]) {
			applyUpdate(&s.records[i], update)
			return nil
		}
	}
	return nil
}

// UpdateMany implements the MetadataStore interface.
func (s *MemStore) UpdateMany(ctx context.Context, filter RecordFilter, update RecordUpdate) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for i := range s.records {
		if filter.Matches(s.records[i]) {
			applyUpdate(&s.records[i], update)
			n++
		}
	}
	return n, nil
}

// DeleteMany implements the MetadataStore interface.
func (s *MemStore) DeleteMany(ctx context.Context, filter RecordFilter) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	kept := s.records[:0]
	for _, rec := range s.records {
		if filter.Matches(rec) {
			n++
			continue
		}
		kept = append(kept, rec)
	}
	s.records = kept
	return n, nil
}

// applyUpdate sets the non-nil update fields on a record.
func applyUpdate(rec *Record, update RecordUpdate) {
	if update.LastAccessed != nil {
		rec.LastAccessed = *update.LastAccessed
	}
	if update.FileURI != nil {
		rec.FileURI = *update.FileURI
	}
	if update.CacheLocation != nil {
		rec.CacheLocation = *update.CacheLocation
	}
	if update.SizeBytes != nil {
		rec.SizeBytes = *update.SizeBytes
	}
}
