package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"sync"

	"github.com/gofrs/flock"

	"github.com/recordbase/recordbase/internal/record"
)

const fileFormatVersion = "1"

// FileStore persists the whole document as one JSON file. Every mutation
// reads the full document, changes one record and rewrites the file, so the
// on-disk state is always a complete valid document. Writes go through a
// temp file + rename, which keeps the previous document intact if the
// process dies mid-write.
//
// Mutations are serialized: an in-process mutex plus a cross-process flock
// on <path>.lock close the read-modify-write race between back-to-back
// writers. That is a deliberate strengthening over a plain sequential
// rewrite.
type FileStore struct {
	path     string
	fileLock *flock.Flock

	mu   sync.Mutex
	meta diskMetadata
}

// diskMetadata is the optional "metadata" top-level key stored alongside
// the collections.
type diskMetadata struct {
	CreatedAt string `json:"createdAt"`
	Version   string `json:"version"`
}

// NewFileStore creates a file backend for the given path. Call Init before
// first use.
func NewFileStore(path string) *FileStore {
	return &FileStore{
		path:     path,
		fileLock: flock.New(path + ".lock"),
	}
}

func (s *FileStore) Type() string { return TypeFile }

// Init ensures the parent directory exists and seeds the file when it is
// absent or does not parse as a valid document. Existing valid files are
// left untouched, so Init is safe to call twice.
func (s *FileStore) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return &InitError{Backend: TypeFile, Err: err}
	}
	unlock, err := s.acquireFileLock()
	if err != nil {
		return &InitError{Backend: TypeFile, Err: err}
	}
	defer unlock()

	if _, meta, err := s.readDocument(); err == nil {
		if meta.Version == "" {
			meta = diskMetadata{CreatedAt: record.Timestamp(), Version: fileFormatVersion}
		}
		s.meta = meta
		return nil
	}
	// absent or corrupt: start from the seed
	s.meta = diskMetadata{CreatedAt: record.Timestamp(), Version: fileFormatVersion}
	if err := s.writeDocument(record.Seed()); err != nil {
		return &InitError{Backend: TypeFile, Err: err}
	}
	return nil
}

func (s *FileStore) GetCollection(name string) ([]record.Record, error) {
	doc, err := s.load("getCollection")
	if err != nil {
		return nil, err
	}
	recs, ok := doc[name]
	if !ok {
		return []record.Record{}, nil
	}
	return recs, nil
}

func (s *FileStore) GetRecord(name, id string) (record.Record, error) {
	doc, err := s.load("getRecord")
	if err != nil {
		return nil, err
	}
	for _, r := range doc[name] {
		if r.ID() == id {
			return r, nil
		}
	}
	return nil, ErrNotFound
}

func (s *FileStore) CreateRecord(name string, data record.Record) (record.Record, error) {
	var stored record.Record
	err := s.mutate("createRecord", func(doc record.Document) error {
		stored = record.New(data)
		doc[name] = append(doc[name], stored)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stored.Clone(), nil
}

func (s *FileStore) UpdateRecord(name, id string, patch record.Record) (record.Record, error) {
	var updated record.Record
	err := s.mutate("updateRecord", func(doc record.Document) error {
		recs, ok := doc[name]
		if !ok {
			return ErrNotFound
		}
		for i, r := range recs {
			if r.ID() == id {
				updated = r.ApplyPatch(patch)
				recs[i] = updated
				return nil
			}
		}
		return ErrNotFound
	})
	if err != nil {
		return nil, err
	}
	return updated.Clone(), nil
}

func (s *FileStore) DeleteRecord(name, id string) (bool, error) {
	removed := false
	err := s.mutate("deleteRecord", func(doc record.Document) error {
		recs, ok := doc[name]
		if !ok {
			return nil
		}
		for i, r := range recs {
			if r.ID() == id {
				doc[name] = append(recs[:i], recs[i+1:]...)
				removed = true
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return removed, nil
}

func (s *FileStore) Stats() (Stats, error) {
	doc, err := s.load("stats")
	if err != nil {
		return Stats{}, err
	}
	st := Stats{
		StorageType:      TypeFile,
		TotalCollections: len(doc),
		TotalRecords:     doc.TotalRecords(),
		Collections:      doc.Counts(),
		Persistent:       true,
		FilePath:         s.path,
	}
	if fi, err := os.Stat(s.path); err == nil {
		st.FileSizeBytes = fi.Size()
	}
	return st, nil
}

func (s *FileStore) Backup() (Backup, error) {
	doc, err := s.load("backup")
	if err != nil {
		return Backup{}, err
	}
	stats := Stats{
		StorageType:      TypeFile,
		TotalCollections: len(doc),
		TotalRecords:     doc.TotalRecords(),
		Collections:      doc.Counts(),
		Persistent:       true,
		FilePath:         s.path,
	}
	if fi, err := os.Stat(s.path); err == nil {
		stats.FileSizeBytes = fi.Size()
	}
	return Backup{
		Data: doc,
		Metadata: BackupMetadata{
			CreatedAt:   record.Timestamp(),
			StorageType: TypeFile,
			Stats:       stats,
		},
	}, nil
}

// Clear rewrites the file with the default seed structure.
func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	unlock, err := s.acquireFileLock()
	if err != nil {
		return &PersistenceError{Backend: TypeFile, Op: "clear", Err: err}
	}
	defer unlock()
	s.meta = diskMetadata{CreatedAt: record.Timestamp(), Version: fileFormatVersion}
	if err := s.writeDocument(record.Seed()); err != nil {
		return &PersistenceError{Backend: TypeFile, Op: "clear", Err: err}
	}
	return nil
}

func (s *FileStore) HealthCheck() bool {
	return healthRoundTrip(s, s.dropCollection)
}

// dropCollection removes a collection key entirely. Used only by the health
// probe to clean up after itself; errors are ignored.
func (s *FileStore) dropCollection(name string) {
	_ = s.mutate("dropCollection", func(doc record.Document) error {
		delete(doc, name)
		return nil
	})
}

// load reads the document under both locks and returns it. The returned
// document is freshly decoded, so callers own it outright.
func (s *FileStore) load(op string) (record.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	unlock, err := s.acquireFileLock()
	if err != nil {
		return nil, &PersistenceError{Backend: TypeFile, Op: op, Err: err}
	}
	defer unlock()
	doc, _, err := s.readDocument()
	if err != nil {
		return nil, &PersistenceError{Backend: TypeFile, Op: op, Err: err}
	}
	return doc, nil
}

// mutate runs fn against the current document and rewrites the file when fn
// succeeds. ErrNotFound from fn is passed through untouched.
func (s *FileStore) mutate(op string, fn func(doc record.Document) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	unlock, err := s.acquireFileLock()
	if err != nil {
		return &PersistenceError{Backend: TypeFile, Op: op, Err: err}
	}
	defer unlock()

	doc, meta, err := s.readDocument()
	if err != nil {
		return &PersistenceError{Backend: TypeFile, Op: op, Err: err}
	}
	if err := fn(doc); err != nil {
		return err
	}
	if meta.Version != "" {
		s.meta = meta
	}
	if err := s.writeDocument(doc); err != nil {
		return &PersistenceError{Backend: TypeFile, Op: op, Err: err}
	}
	return nil
}

func (s *FileStore) acquireFileLock() (func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	locked, err := s.fileLock.TryLockContext(ctx, 100*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("acquire file lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("file lock held by another process")
	}
	return func() { _ = s.fileLock.Unlock() }, nil
}

// readDocument decodes the on-disk file. The top level is collection name ->
// record list, with an optional "metadata" key kept separate.
func (s *FileStore) readDocument() (record.Document, diskMetadata, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, diskMetadata{}, err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, diskMetadata{}, fmt.Errorf("parse document: %w", err)
	}
	doc := make(record.Document, len(raw))
	var meta diskMetadata
	for name, payload := range raw {
		if name == "metadata" {
			if err := json.Unmarshal(payload, &meta); err != nil {
				return nil, diskMetadata{}, fmt.Errorf("parse metadata: %w", err)
			}
			continue
		}
		var recs []record.Record
		if err := json.Unmarshal(payload, &recs); err != nil {
			return nil, diskMetadata{}, fmt.Errorf("parse collection %q: %w", name, err)
		}
		if recs == nil {
			recs = []record.Record{}
		}
		doc[name] = recs
	}
	return doc, meta, nil
}

// writeDocument serializes the full document to a temp file and renames it
// into place.
func (s *FileStore) writeDocument(doc record.Document) error {
	out := make(map[string]any, len(doc)+1)
	for name, recs := range doc {
		out[name] = recs
	}
	out["metadata"] = s.meta

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
