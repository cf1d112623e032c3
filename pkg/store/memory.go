package store

import (
	"context"
	"sort"
	"sync"

	"github.com/pizzachris/Meridian-Mastery-Netifly-sub001/pkg/cache"
)

const layerMemory = "memory"

// MemoryStore keeps namespaces in process memory.
type MemoryStore struct {
	mu         sync.Mutex
	namespaces map[string]*memoryNamespace
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{namespaces: make(map[string]*memoryNamespace)}
}

// Layer implements Store.
func (s *MemoryStore) Layer() string { return layerMemory }

// Open implements Store.
func (s *MemoryStore) Open(_ context.Context, name string) (Namespace, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ns, ok := s.namespaces[name]
	if !ok {
		ns = &memoryNamespace{store: s, name: name, entries: make(map[string]*memoryItem)}
		s.namespaces[name] = ns
	}
	return ns, nil
}

// Names implements Store.
func (s *MemoryStore) Names(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.namespaces))
	for name := range s.namespaces {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Drop implements Store.
func (s *MemoryStore) Drop(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ns, ok := s.namespaces[name]
	if !ok {
		return false, nil
	}
	delete(s.namespaces, name)

	// Handles still held by callers see an empty namespace.
	ns.mu.Lock()
	ns.entries = make(map[string]*memoryItem)
	ns.mu.Unlock()
	return true, nil
}

type memoryItem struct {
	data []byte
	seq  uint64
}

type memoryNamespace struct {
	store   *MemoryStore
	name    string
	mu      sync.Mutex
	seq     uint64
	entries map[string]*memoryItem
}

func (n *memoryNamespace) Name() string { return n.name }

func (n *memoryNamespace) Put(_ context.Context, key cache.Key, entry *cache.Entry) error {
	// Stored encoded so callers can't mutate cached entries.
	data, err := cache.Encode(entry)
	if err != nil {
		cache.CacheErrors.WithLabelValues(layerMemory, "put").Inc()
		return err
	}

	// A write through a handle to a dropped namespace recreates it.
	n.store.mu.Lock()
	if n.store.namespaces[n.name] != n {
		if _, taken := n.store.namespaces[n.name]; !taken {
			n.store.namespaces[n.name] = n
		}
	}
	n.store.mu.Unlock()

	n.mu.Lock()
	n.seq++
	n.entries[key.String()] = &memoryItem{data: data, seq: n.seq}
	n.mu.Unlock()

	cache.CacheWrites.WithLabelValues(layerMemory).Inc()
	cache.CacheBytesWritten.WithLabelValues(layerMemory).Add(float64(len(data)))
	return nil
}

func (n *memoryNamespace) Match(_ context.Context, key cache.Key) (*cache.Entry, error) {
	n.mu.Lock()
	item, ok := n.entries[key.String()]
	n.mu.Unlock()

	if !ok {
		cache.CacheMisses.WithLabelValues(layerMemory).Inc()
		return nil, cache.ErrCacheMiss
	}

	entry, err := cache.Decode(item.data)
	if err != nil {
		cache.CacheErrors.WithLabelValues(layerMemory, "match").Inc()
		return nil, err
	}
	cache.CacheHits.WithLabelValues(layerMemory).Inc()
	return entry, nil
}

func (n *memoryNamespace) Delete(_ context.Context, key cache.Key) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	k := key.String()
	if _, ok := n.entries[k]; !ok {
		return false, nil
	}
	delete(n.entries, k)
	cache.CacheDeletes.WithLabelValues(layerMemory).Inc()
	return true, nil
}

func (n *memoryNamespace) Keys(_ context.Context) ([]cache.Key, error) {
	n.mu.Lock()
	type ordered struct {
		key string
		seq uint64
	}
	items := make([]ordered, 0, len(n.entries))
	for k, item := range n.entries {
		items = append(items, ordered{key: k, seq: item.seq})
	}
	n.mu.Unlock()

	sort.Slice(items, func(i, j int) bool { return items[i].seq < items[j].seq })

	keys := make([]cache.Key, 0, len(items))
	for _, item := range items {
		key, err := cache.ParseKey(item.key)
		if err != nil {
			cache.CacheErrors.WithLabelValues(layerMemory, "keys").Inc()
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}
