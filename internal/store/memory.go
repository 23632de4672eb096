package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/mmcdole/portal/internal/domain"
)

// memoryCollection is the state of one kind
type memoryCollection struct {
	items   map[int]domain.Record
	keys    map[int]domain.RemoteKey
	details map[int]json.RawMessage
}

func newMemoryCollection() *memoryCollection {
	return &memoryCollection{
		items:   make(map[int]domain.Record),
		keys:    make(map[int]domain.RemoteKey),
		details: make(map[int]json.RawMessage),
	}
}

// MemoryBackend implements domain.Store in process memory (no persistence).
// Writes hold the lock for their whole duration, so readers never observe a
// partially applied page.
type MemoryBackend struct {
	mu          sync.RWMutex
	partitions  map[domain.Kind]domain.Partition
	collections map[domain.Kind]*memoryCollection
}

func NewMemoryBackend() *MemoryBackend {
	s := &MemoryBackend{}
	s.reset()
	return s
}

func (s *MemoryBackend) reset() {
	s.partitions = make(map[domain.Kind]domain.Partition)
	s.collections = make(map[domain.Kind]*memoryCollection)
	for _, kind := range domain.Kinds() {
		s.collections[kind] = newMemoryCollection()
	}
}

func (s *MemoryBackend) collection(kind domain.Kind) *memoryCollection {
	c, ok := s.collections[kind]
	if !ok {
		c = newMemoryCollection()
		s.collections[kind] = c
	}
	return c
}

func (s *MemoryBackend) Partition(ctx context.Context, kind domain.Kind) (domain.Partition, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.partitions[kind]
	return p, ok, nil
}

func (s *MemoryBackend) Records(ctx context.Context, kind domain.Kind) ([]domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[kind]
	if !ok {
		return []domain.Record{}, nil
	}
	records := make([]domain.Record, 0, len(c.items))
	for _, r := range c.items {
		records = append(records, r)
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].Page != records[j].Page {
			return records[i].Page < records[j].Page
		}
		return records[i].Position < records[j].Position
	})
	return records, nil
}

func (s *MemoryBackend) RemoteKey(ctx context.Context, kind domain.Kind, itemID int) (domain.RemoteKey, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[kind]
	if !ok {
		return domain.RemoteKey{}, false, nil
	}
	k, ok := c.keys[itemID]
	return k, ok, nil
}

func (s *MemoryBackend) ApplyPage(ctx context.Context, kind domain.Kind, w domain.PageWrite) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.collection(kind)
	if w.Reset {
		c.items = make(map[int]domain.Record)
		c.keys = make(map[int]domain.RemoteKey)
	}
	for _, r := range w.Records {
		c.items[r.ID] = r
	}
	for _, k := range w.Keys {
		c.keys[k.ItemID] = k
	}
	s.partitions[kind] = domain.Partition{Kind: kind, FilterKey: w.FilterKey, UpdatedAt: w.UpdatedAt}
	return nil
}

func (s *MemoryBackend) Reset(ctx context.Context, kind domain.Kind, filterKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.collection(kind)
	c.items = make(map[int]domain.Record)
	c.keys = make(map[int]domain.RemoteKey)
	s.partitions[kind] = domain.Partition{Kind: kind, FilterKey: filterKey}
	return nil
}

func (s *MemoryBackend) Detail(ctx context.Context, kind domain.Kind, id int) (json.RawMessage, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[kind]
	if !ok {
		return nil, false, nil
	}
	data, ok := c.details[id]
	return data, ok, nil
}

func (s *MemoryBackend) PutDetails(ctx context.Context, kind domain.Kind, records []domain.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.collection(kind)
	for _, r := range records {
		c.details[r.ID] = r.Data
	}
	return nil
}

func (s *MemoryBackend) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
	return nil
}

func (s *MemoryBackend) Close() error {
	return nil
}

var _ domain.Store = (*MemoryBackend)(nil)
