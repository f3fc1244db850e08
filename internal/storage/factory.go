package storage

import (
	"fmt"
	"sync"
	"time"

	"github.com/recordbase/recordbase/pkg/logger"
)

// Options carries everything the factory needs to pick and build a backend.
// All of it comes from configuration read once at startup.
type Options struct {
	// Override is an explicit caller-supplied backend type. Highest
	// priority; this is also the only way to select the mongo backend.
	Override string

	// EnvType is the storage-type setting (STORAGE_TYPE).
	EnvType string

	// Environment is the environment name (test, development, production).
	Environment string

	// DevOverride replaces the development default when set.
	DevOverride string

	FilePath string

	MongoURI      string
	MongoDatabase string
	MongoTimeout  time.Duration
}

// ResolvedConfig reports how the backend type was chosen, for diagnostics.
type ResolvedConfig struct {
	SelectedType string   `json:"selectedType"`
	Environment  string   `json:"environment"`
	Source       string   `json:"source"`
	Available    []string `json:"available"`
}

// failoverOrder is the fixed fallback chain tried after the primary.
var failoverOrder = []string{TypeFile, TypeMemory}

// Resolve picks the backend type in priority order: explicit override, then
// the storage-type setting, then an environment-name default (test uses
// memory, everything else uses the file backend, with an optional
// development override).
func Resolve(opts Options) ResolvedConfig {
	rc := ResolvedConfig{
		Environment: opts.Environment,
		Available:   []string{TypeFile, TypeMemory},
	}
	if opts.MongoURI != "" {
		rc.Available = append(rc.Available, TypeMongo)
	}

	switch {
	case opts.Override != "":
		rc.SelectedType = opts.Override
		rc.Source = "override"
	case opts.EnvType != "":
		rc.SelectedType = opts.EnvType
		rc.Source = "storage-type setting"
	default:
		rc.Source = "environment default"
		switch opts.Environment {
		case "test":
			rc.SelectedType = TypeMemory
		case "development":
			if opts.DevOverride != "" {
				rc.SelectedType = opts.DevOverride
			} else {
				rc.SelectedType = TypeFile
			}
		default:
			// production and anything unrecognized persist to disk
			rc.SelectedType = TypeFile
		}
	}
	return rc
}

// build constructs an uninitialized backend of the given type.
func build(storageType string, opts Options) (Store, error) {
	switch storageType {
	case TypeFile:
		return NewFileStore(opts.FilePath), nil
	case TypeMemory:
		return NewMemoryStore(), nil
	case TypeMongo:
		if opts.MongoURI == "" {
			return nil, fmt.Errorf("mongo storage selected but no URI configured")
		}
		return NewMongoStore(opts.MongoURI, opts.MongoDatabase, opts.MongoTimeout), nil
	default:
		return nil, fmt.Errorf("unknown storage type %q (supported: %s, %s, %s)",
			storageType, TypeFile, TypeMemory, TypeMongo)
	}
}

// NewWithFailover builds and verifies the resolved primary backend, falling
// back through the fixed chain (file, then memory) when the primary cannot
// be built, fails Init, or fails its health check. The first candidate that
// passes all three is adopted. ErrStorageUnavailable is returned when every
// candidate fails; that is fatal to startup.
func NewWithFailover(opts Options) (Store, ResolvedConfig, error) {
	rc := Resolve(opts)

	candidates := []string{rc.SelectedType}
	for _, t := range failoverOrder {
		if t != rc.SelectedType {
			candidates = append(candidates, t)
		}
	}

	for _, t := range candidates {
		s, err := build(t, opts)
		if err != nil {
			logger.Warnf("storage: cannot build %s backend: %v", t, err)
			continue
		}
		if err := s.Init(); err != nil {
			logger.Warnf("storage: %s backend failed to initialize: %v", t, err)
			continue
		}
		if !s.HealthCheck() {
			logger.Warnf("storage: %s backend failed health check", t)
			continue
		}
		if t != rc.SelectedType {
			logger.Infof("storage: fell back from %s to %s", rc.SelectedType, t)
			rc.SelectedType = t
			rc.Source = "failover"
		}
		return s, rc, nil
	}
	return nil, rc, fmt.Errorf("%w: tried %v", ErrStorageUnavailable, candidates)
}

// Provider is the process-wide storage handle. It is constructed explicitly
// and passed to whoever needs the store; there is no package-level
// singleton. Initialize adopts a backend exactly once.
type Provider struct {
	mu       sync.Mutex
	store    Store
	resolved ResolvedConfig
}

func NewProvider() *Provider {
	return &Provider{}
}

// Initialize builds the backend with failover on first call. Repeated calls
// are no-ops returning the already-adopted store.
func (p *Provider) Initialize(opts Options) (Store, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.store != nil {
		return p.store, nil
	}
	s, rc, err := NewWithFailover(opts)
	if err != nil {
		return nil, err
	}
	p.store = s
	p.resolved = rc
	logger.Infof("storage: using %s backend (selected via %s, environment=%s)",
		rc.SelectedType, rc.Source, rc.Environment)
	return s, nil
}

// Get returns the adopted store, or ErrNotInitialized before Initialize has
// succeeded.
func (p *Provider) Get() (Store, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.store == nil {
		return nil, ErrNotInitialized
	}
	return p.store, nil
}

// Resolved reports how the active backend was chosen. Zero value before
// Initialize.
func (p *Provider) Resolved() ResolvedConfig {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resolved
}
