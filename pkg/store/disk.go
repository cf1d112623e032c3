package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/natefinch/atomic"
	digest "github.com/opencontainers/go-digest"
	"github.com/pizzachris/Meridian-Mastery-Netifly-sub001/pkg/cache"
)

const (
	layerDisk      = "disk"
	indexFileName  = "index.json"
	entryExt       = ".entry"
	defaultDirPerm = 0o700
)

// DiskStore keeps one directory per namespace under a root directory.
//
// Each namespace holds an index.json listing keys in insertion order and one
// compressed entry file per key, named by the sha256 digest of the key.
// Every file is replaced atomically.
type DiskStore struct {
	root string

	// mu serializes index read-modify-write cycles across namespaces.
	mu sync.Mutex
}

type diskIndex struct {
	Seq     uint64           `json:"seq"`
	Entries []diskIndexEntry `json:"entries"`
}

type diskIndexEntry struct {
	Key  string `json:"key"`
	File string `json:"file"`
	Seq  uint64 `json:"seq"`
}

// NewDiskStore creates a disk store rooted at root, creating the directory.
func NewDiskStore(root string) (*DiskStore, error) {
	if root == "" {
		return nil, fmt.Errorf("disk store root is required")
	}
	if err := os.MkdirAll(root, defaultDirPerm); err != nil {
		return nil, fmt.Errorf("create store root: %w", err)
	}
	return &DiskStore{root: root}, nil
}

// Layer implements Store.
func (s *DiskStore) Layer() string { return layerDisk }

func (s *DiskStore) dir(name string) string {
	return filepath.Join(s.root, name)
}

// Open implements Store.
func (s *DiskStore) Open(_ context.Context, name string) (Namespace, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensure(name); err != nil {
		cache.CacheErrors.WithLabelValues(layerDisk, "open").Inc()
		return nil, err
	}
	return &diskNamespace{store: s, name: name}, nil
}

// ensure creates the namespace directory and an empty index if missing.
func (s *DiskStore) ensure(name string) error {
	dir := s.dir(name)
	if err := os.MkdirAll(dir, defaultDirPerm); err != nil {
		return fmt.Errorf("create namespace dir: %w", err)
	}
	if _, err := os.Stat(filepath.Join(dir, indexFileName)); errors.Is(err, fs.ErrNotExist) {
		return s.writeIndex(name, &diskIndex{})
	} else if err != nil {
		return fmt.Errorf("stat index: %w", err)
	}
	return nil
}

// Names implements Store.
func (s *DiskStore) Names(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dirEntries, err := os.ReadDir(s.root)
	if err != nil {
		cache.CacheErrors.WithLabelValues(layerDisk, "names").Inc()
		return nil, fmt.Errorf("read store root: %w", err)
	}

	var names []string
	for _, de := range dirEntries {
		if !de.IsDir() || ValidateName(de.Name()) != nil {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.root, de.Name(), indexFileName)); err != nil {
			continue
		}
		names = append(names, de.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Drop implements Store.
func (s *DiskStore) Drop(_ context.Context, name string) (bool, error) {
	if ValidateName(name) != nil {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.dir(name)
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err := os.RemoveAll(dir); err != nil {
		cache.CacheErrors.WithLabelValues(layerDisk, "drop").Inc()
		return false, fmt.Errorf("remove namespace dir: %w", err)
	}
	return true, nil
}

func (s *DiskStore) readIndex(name string) (*diskIndex, error) {
	data, err := os.ReadFile(filepath.Join(s.dir(name), indexFileName))
	if errors.Is(err, fs.ErrNotExist) {
		return &diskIndex{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}

	var idx diskIndex
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("%w: index for %s: %v", cache.ErrInvalidEntry, name, err)
	}
	return &idx, nil
}

func (s *DiskStore) writeIndex(name string, idx *diskIndex) error {
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal index: %w", err)
	}
	if err := atomic.WriteFile(filepath.Join(s.dir(name), indexFileName), bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	return nil
}

func entryFileName(key cache.Key) string {
	return digest.FromString(key.String()).Encoded() + entryExt
}

type diskNamespace struct {
	store *DiskStore
	name  string
}

func (n *diskNamespace) Name() string { return n.name }

func (n *diskNamespace) Put(_ context.Context, key cache.Key, entry *cache.Entry) error {
	data, err := cache.Encode(entry)
	if err != nil {
		cache.CacheErrors.WithLabelValues(layerDisk, "put").Inc()
		return err
	}

	s := n.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensure(n.name); err != nil {
		cache.CacheErrors.WithLabelValues(layerDisk, "put").Inc()
		return err
	}

	file := entryFileName(key)
	if err := atomic.WriteFile(filepath.Join(s.dir(n.name), file), bytes.NewReader(data)); err != nil {
		cache.CacheErrors.WithLabelValues(layerDisk, "put").Inc()
		return fmt.Errorf("write entry: %w", err)
	}

	idx, err := s.readIndex(n.name)
	if err != nil {
		cache.CacheErrors.WithLabelValues(layerDisk, "put").Inc()
		return err
	}

	k := key.String()
	kept := idx.Entries[:0]
	for _, e := range idx.Entries {
		if e.Key != k {
			kept = append(kept, e)
		}
	}
	idx.Seq++
	idx.Entries = append(kept, diskIndexEntry{Key: k, File: file, Seq: idx.Seq})

	if err := s.writeIndex(n.name, idx); err != nil {
		cache.CacheErrors.WithLabelValues(layerDisk, "put").Inc()
		return err
	}

	cache.CacheWrites.WithLabelValues(layerDisk).Inc()
	cache.CacheBytesWritten.WithLabelValues(layerDisk).Add(float64(len(data)))
	return nil
}

func (n *diskNamespace) Match(_ context.Context, key cache.Key) (*cache.Entry, error) {
	n.store.mu.Lock()
	data, err := os.ReadFile(filepath.Join(n.store.dir(n.name), entryFileName(key)))
	n.store.mu.Unlock()

	if errors.Is(err, fs.ErrNotExist) {
		cache.CacheMisses.WithLabelValues(layerDisk).Inc()
		return nil, cache.ErrCacheMiss
	}
	if err != nil {
		cache.CacheErrors.WithLabelValues(layerDisk, "match").Inc()
		return nil, fmt.Errorf("read entry: %w", err)
	}

	entry, err := cache.Decode(data)
	if err != nil {
		cache.CacheErrors.WithLabelValues(layerDisk, "match").Inc()
		return nil, err
	}

	cache.CacheHits.WithLabelValues(layerDisk).Inc()
	return entry, nil
}

func (n *diskNamespace) Delete(_ context.Context, key cache.Key) (bool, error) {
	s := n.store
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.readIndex(n.name)
	if err != nil {
		cache.CacheErrors.WithLabelValues(layerDisk, "delete").Inc()
		return false, err
	}

	k := key.String()
	found := false
	kept := idx.Entries[:0]
	for _, e := range idx.Entries {
		if e.Key == k {
			found = true
			continue
		}
		kept = append(kept, e)
	}
	if !found {
		return false, nil
	}
	idx.Entries = kept

	if err := s.writeIndex(n.name, idx); err != nil {
		cache.CacheErrors.WithLabelValues(layerDisk, "delete").Inc()
		return false, err
	}
	if err := os.Remove(filepath.Join(s.dir(n.name), entryFileName(key))); err != nil && !errors.Is(err, fs.ErrNotExist) {
		cache.CacheErrors.WithLabelValues(layerDisk, "delete").Inc()
		return true, fmt.Errorf("remove entry: %w", err)
	}

	cache.CacheDeletes.WithLabelValues(layerDisk).Inc()
	return true, nil
}

func (n *diskNamespace) Keys(_ context.Context) ([]cache.Key, error) {
	n.store.mu.Lock()
	idx, err := n.store.readIndex(n.name)
	n.store.mu.Unlock()
	if err != nil {
		cache.CacheErrors.WithLabelValues(layerDisk, "keys").Inc()
		return nil, err
	}

	// Entries are appended in sequence order; sort anyway in case an
	// index was edited by hand.
	sort.SliceStable(idx.Entries, func(i, j int) bool { return idx.Entries[i].Seq < idx.Entries[j].Seq })

	keys := make([]cache.Key, 0, len(idx.Entries))
	for _, e := range idx.Entries {
		key, err := cache.ParseKey(e.Key)
		if err != nil {
			cache.CacheErrors.WithLabelValues(layerDisk, "keys").Inc()
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}
