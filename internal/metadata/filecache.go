package metadata

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/alanyoungcy/sportfun/internal/domain"
)

// FileCache implements domain.MetadataCache in memory with one JSON file per
// contract (metadata-<contract>.json). Writes only touch memory; Flush
// persists the contracts that changed.
type FileCache struct {
	dir string

	mu     sync.Mutex
	loaded map[string]map[string]domain.MetadataCacheEntry
	dirty  map[string]bool
}

// NewFileCache creates a FileCache rooted at dir.
func NewFileCache(dir string) *FileCache {
	return &FileCache{
		dir:    dir,
		loaded: make(map[string]map[string]domain.MetadataCacheEntry),
		dirty:  make(map[string]bool),
	}
}

// Get returns the entry or domain.ErrNotFound.
func (fc *FileCache) Get(_ context.Context, contract, tokenID string) (domain.MetadataCacheEntry, error) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	e, ok := fc.contract(contract)[tokenID]
	if !ok {
		return domain.MetadataCacheEntry{}, domain.ErrNotFound
	}
	return e, nil
}

// Set stores the entry in memory.
func (fc *FileCache) Set(_ context.Context, contract, tokenID string, entry domain.MetadataCacheEntry) error {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.contract(contract)[tokenID] = entry
	fc.dirty[strings.ToLower(contract)] = true
	return nil
}

// Flush writes every changed contract file.
func (fc *FileCache) Flush(_ context.Context) error {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if len(fc.dirty) == 0 {
		return nil
	}
	if err := os.MkdirAll(fc.dir, 0o755); err != nil {
		return err
	}
	for c := range fc.dirty {
		raw, err := json.Marshal(fc.loaded[c])
		if err != nil {
			return err
		}
		if err := os.WriteFile(fc.path(c), raw, 0o644); err != nil {
			return err
		}
		delete(fc.dirty, c)
	}
	return nil
}

// contract returns the in-memory table of contract, loading it from disk on
// first use. A missing or corrupt file starts an empty table. Caller holds mu.
func (fc *FileCache) contract(contract string) map[string]domain.MetadataCacheEntry {
	c := strings.ToLower(contract)
	if m, ok := fc.loaded[c]; ok {
		return m
	}
	m := make(map[string]domain.MetadataCacheEntry)
	if raw, err := os.ReadFile(fc.path(c)); err == nil {
		if err := json.Unmarshal(raw, &m); err != nil {
			m = make(map[string]domain.MetadataCacheEntry)
		}
	}
	fc.loaded[c] = m
	return m
}

func (fc *FileCache) path(contract string) string {
	return filepath.Join(fc.dir, "metadata-"+contract+".json")
}

var _ domain.MetadataCache = (*FileCache)(nil)
