package storage

import (
	"encoding/json"
	"sync"

	"github.com/recordbase/recordbase/internal/record"
)

// MemoryStore keeps the document in process memory. Data lives only for the
// process lifetime; a restart loses everything. Reads hand out deep copies
// so callers can never reach the internal document.
type MemoryStore struct {
	mu          sync.RWMutex
	doc         record.Document
	initialized bool
}

// NewMemoryStore creates a memory backend. Call Init before first use.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Type() string { return TypeMemory }

// Init seeds the document on first call. Later calls are no-ops so repeated
// initialization cannot wipe live data.
func (s *MemoryStore) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		return nil
	}
	s.doc = record.Seed()
	s.initialized = true
	return nil
}

func (s *MemoryStore) GetCollection(name string) ([]record.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	recs, ok := s.doc[name]
	if !ok {
		return []record.Record{}, nil
	}
	return record.CloneCollection(recs), nil
}

func (s *MemoryStore) GetRecord(name, id string) (record.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.doc[name] {
		if r.ID() == id {
			return r.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) CreateRecord(name string, data record.Record) (record.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := record.New(data)
	s.doc[name] = append(s.doc[name], stored)
	return stored.Clone(), nil
}

func (s *MemoryStore) UpdateRecord(name, id string, patch record.Record) (record.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs, ok := s.doc[name]
	if !ok {
		return nil, ErrNotFound
	}
	for i, r := range recs {
		if r.ID() == id {
			updated := r.ApplyPatch(patch)
			recs[i] = updated
			return updated.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) DeleteRecord(name, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs, ok := s.doc[name]
	if !ok {
		return false, nil
	}
	for i, r := range recs {
		if r.ID() == id {
			s.doc[name] = append(recs[:i], recs[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

// Stats reports an approximate serialized size instead of a file size and
// flags the data as non-persistent.
func (s *MemoryStore) Stats() (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Stats{
		StorageType:      TypeMemory,
		TotalCollections: len(s.doc),
		TotalRecords:     s.doc.TotalRecords(),
		Collections:      s.doc.Counts(),
		Persistent:       false,
	}
	if data, err := json.Marshal(s.doc); err == nil {
		st.ApproxSizeBytes = int64(len(data))
	}
	return st, nil
}

func (s *MemoryStore) Backup() (Backup, error) {
	s.mu.RLock()
	data := s.doc.Clone()
	s.mu.RUnlock()
	stats := Stats{
		StorageType:      TypeMemory,
		TotalCollections: len(data),
		TotalRecords:     data.TotalRecords(),
		Collections:      data.Counts(),
		Persistent:       false,
	}
	if raw, err := json.Marshal(data); err == nil {
		stats.ApproxSizeBytes = int64(len(raw))
	}
	return Backup{
		Data: data,
		Metadata: BackupMetadata{
			CreatedAt:   record.Timestamp(),
			StorageType: TypeMemory,
			Stats:       stats,
		},
	}, nil
}

// Clear resets the document to the default seed structure.
func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc = record.Seed()
	return nil
}

func (s *MemoryStore) HealthCheck() bool {
	return healthRoundTrip(s, s.dropCollection)
}

func (s *MemoryStore) dropCollection(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.doc, name)
}
