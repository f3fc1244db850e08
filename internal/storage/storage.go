// Package storage provides the backend contract for collection record
// storage and its file, memory and mongo implementations.
package storage

import (
	"errors"
	"fmt"

	"github.com/recordbase/recordbase/internal/record"
)

// Backend type names understood by the factory.
const (
	TypeFile   = "file"
	TypeMemory = "memory"
	TypeMongo  = "mongo"
)

var (
	// ErrNotFound reports that a collection or record id does not exist.
	// Callers map it to a 404, never a 500.
	ErrNotFound = errors.New("record not found")

	// ErrNotInitialized reports that the provider was asked for a store
	// before Initialize succeeded.
	ErrNotInitialized = errors.New("storage not initialized")

	// ErrStorageUnavailable reports that every failover candidate failed.
	ErrStorageUnavailable = errors.New("no usable storage backend")
)

// InitError wraps a failure to bring a backend into a usable state.
type InitError struct {
	Backend string
	Err     error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("init %s storage: %v", e.Backend, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

// PersistenceError wraps a read/write/parse failure during a live operation.
type PersistenceError struct {
	Backend string
	Op      string
	Err     error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s storage %s: %v", e.Backend, e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Stats is a point-in-time snapshot derived from the current document. It is
// recomputed on every call, never cached.
type Stats struct {
	StorageType      string         `json:"storageType"`
	TotalCollections int            `json:"totalCollections"`
	TotalRecords     int            `json:"totalRecords"`
	Collections      map[string]int `json:"collections"`
	Persistent       bool           `json:"persistent"`

	// file backend only
	FilePath      string `json:"filePath,omitempty"`
	FileSizeBytes int64  `json:"fileSizeBytes,omitempty"`

	// memory backend only
	ApproxSizeBytes int64 `json:"approxSizeBytes,omitempty"`

	// mongo backend only
	Database string `json:"database,omitempty"`
}

// BackupMetadata describes a backup snapshot.
type BackupMetadata struct {
	CreatedAt   string `json:"createdAt"`
	StorageType string `json:"storageType"`
	Stats       Stats  `json:"stats"`
}

// Backup is a full point-in-time copy of the document plus metadata.
type Backup struct {
	Data     record.Document `json:"data"`
	Metadata BackupMetadata  `json:"metadata"`
}

// Store is the contract every backend satisfies. Handlers depend only on
// this interface, never on a concrete backend.
//
// Collection names and ids are non-empty strings; validating that is the
// caller's job. Returned records and collections are always copies, so a
// caller can never mutate backend state through them. All methods are safe
// for concurrent use; each backend serializes its own mutations.
type Store interface {
	// Type returns the backend type name (file, memory, mongo).
	Type() string

	// Init prepares underlying resources. Idempotent: a second call must
	// not corrupt state or duplicate seed data.
	Init() error

	// GetCollection returns a copy of all records in the named collection,
	// or an empty slice when the collection does not exist.
	GetCollection(name string) ([]record.Record, error)

	// GetRecord returns the record with the given id, or ErrNotFound.
	GetRecord(name, id string) (record.Record, error)

	// CreateRecord stores data as a new record with a fresh id and both
	// timestamps set, auto-creating the collection, and returns the stored
	// copy. Caller-supplied id/createdAt/updatedAt are ignored.
	CreateRecord(name string, data record.Record) (record.Record, error)

	// UpdateRecord shallow-merges patch onto the existing record,
	// preserving id and createdAt and refreshing updatedAt. Returns
	// ErrNotFound when the collection or id is missing.
	UpdateRecord(name, id string, patch record.Record) (record.Record, error)

	// DeleteRecord removes a record. Returns false (and no error) when the
	// collection or id is missing.
	DeleteRecord(name, id string) (bool, error)

	// Stats computes a snapshot from the current document.
	Stats() (Stats, error)

	// Backup returns a deep copy of the document plus metadata.
	Backup() (Backup, error)

	// Clear resets the backend to the default seed structure.
	Clear() error

	// HealthCheck runs a real create/read/update/delete round-trip against
	// a throwaway collection and reports success. It never returns an
	// error or panics; any failure yields false. No residue is left.
	HealthCheck() bool
}

const healthCheckCollection = "_healthcheck"

// healthRoundTrip exercises the full record lifecycle against a throwaway
// collection. drop removes the probe collection afterwards so the check
// leaves no residue; it is backend-specific because the public contract has
// no collection-drop operation.
func healthRoundTrip(s Store, drop func(name string)) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
		drop(healthCheckCollection)
	}()

	created, err := s.CreateRecord(healthCheckCollection, record.Record{"probe": true})
	if err != nil {
		return false
	}
	id := created.ID()
	if id == "" {
		return false
	}
	if _, err := s.GetRecord(healthCheckCollection, id); err != nil {
		return false
	}
	if _, err := s.UpdateRecord(healthCheckCollection, id, record.Record{"probe": false}); err != nil {
		return false
	}
	deleted, err := s.DeleteRecord(healthCheckCollection, id)
	if err != nil || !deleted {
		return false
	}
	return true
}
