package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/mmcdole/portal/internal/domain"
)

var bucketPartitions = []byte("partitions")

func itemsBucket(kind domain.Kind) []byte   { return []byte("items:" + string(kind)) }
func keysBucket(kind domain.Kind) []byte    { return []byte("keys:" + string(kind)) }
func detailsBucket(kind domain.Kind) []byte { return []byte("details:" + string(kind)) }

// itemKey orders items by (page, position) under bbolt's byte ordering
func itemKey(page, position int) []byte {
	return []byte(fmt.Sprintf("%06d:%04d", page, position))
}

func idKey(id int) []byte {
	return []byte(strconv.Itoa(id))
}

// storedItem is the value of an items:<kind> entry
type storedItem struct {
	ID       int             `json:"id"`
	Page     int             `json:"page"`
	Position int             `json:"position"`
	Data     json.RawMessage `json:"data"`
}

// storedKey is the value of a keys:<kind> entry. Position lets a refetched
// item evict its previous slot.
type storedKey struct {
	domain.RemoteKey
	Position int `json:"position"`
}

// BoltBackend implements domain.Store using BoltDB.
type BoltBackend struct {
	db   *bolt.DB
	path string
	mu   sync.RWMutex // Protects memory cache

	// In-memory cache for detail reads (promoted on access)
	cache map[string][]byte
}

// NewBoltBackend opens (or creates) the bbolt file at path
func NewBoltBackend(path string) (*BoltBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{bucketPartitions}
		for _, kind := range domain.Kinds() {
			buckets = append(buckets, itemsBucket(kind), keysBucket(kind), detailsBucket(kind))
		}
		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltBackend{db: db, path: path, cache: make(map[string][]byte)}, nil
}

// Path returns the database file location
func (s *BoltBackend) Path() string {
	return s.path
}

func (s *BoltBackend) Close() error {
	return s.db.Close()
}

// === Partitions ===

func (s *BoltBackend) Partition(ctx context.Context, kind domain.Kind) (domain.Partition, bool, error) {
	var p domain.Partition
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketPartitions).Get([]byte(kind))
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &p)
	})
	if err != nil {
		return domain.Partition{}, false, fmt.Errorf("read partition %s: %w", kind, err)
	}
	return p, found, nil
}

func putPartition(tx *bolt.Tx, p domain.Partition) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return tx.Bucket(bucketPartitions).Put([]byte(p.Kind), data)
}

// === Items and cursors ===

func (s *BoltBackend) Records(ctx context.Context, kind domain.Kind) ([]domain.Record, error) {
	var records []domain.Record
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(itemsBucket(kind))
		records = make([]domain.Record, 0, b.Stats().KeyN)
		return b.ForEach(func(k, v []byte) error {
			var item storedItem
			if err := json.Unmarshal(v, &item); err != nil {
				return fmt.Errorf("item %s: %w", k, err)
			}
			records = append(records, domain.Record{
				ID:       item.ID,
				Page:     item.Page,
				Position: item.Position,
				Data:     item.Data,
			})
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("read items %s: %w", kind, err)
	}
	return records, nil
}

func (s *BoltBackend) RemoteKey(ctx context.Context, kind domain.Kind, itemID int) (domain.RemoteKey, bool, error) {
	var key storedKey
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(keysBucket(kind)).Get(idKey(itemID))
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &key)
	})
	if err != nil {
		return domain.RemoteKey{}, false, fmt.Errorf("read remote key %s/%d: %w", kind, itemID, err)
	}
	return key.RemoteKey, found, nil
}

// ApplyPage writes the page in one bbolt transaction
func (s *BoltBackend) ApplyPage(ctx context.Context, kind domain.Kind, w domain.PageWrite) error {
	keys := make(map[int]domain.RemoteKey, len(w.Keys))
	for _, k := range w.Keys {
		keys[k.ItemID] = k
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		if w.Reset {
			if err := recreate(tx, itemsBucket(kind), keysBucket(kind)); err != nil {
				return err
			}
		}

		items := tx.Bucket(itemsBucket(kind))
		cursors := tx.Bucket(keysBucket(kind))

		// Drop the previous slots of refetched items before writing new ones
		for _, r := range w.Records {
			prev := cursors.Get(idKey(r.ID))
			if prev == nil {
				continue
			}
			var old storedKey
			if err := json.Unmarshal(prev, &old); err != nil {
				continue
			}
			slot := itemKey(old.Page, old.Position)
			if slotHolder(items, slot) != r.ID {
				continue
			}
			if err := items.Delete(slot); err != nil {
				return err
			}
		}

		for _, r := range w.Records {
			data, err := json.Marshal(storedItem{ID: r.ID, Page: r.Page, Position: r.Position, Data: r.Data})
			if err != nil {
				return err
			}
			slot := itemKey(r.Page, r.Position)
			// An item displaced from its slot is no longer loaded
			if id := slotHolder(items, slot); id != 0 && id != r.ID {
				if err := cursors.Delete(idKey(id)); err != nil {
					return err
				}
			}
			if err := items.Put(slot, data); err != nil {
				return err
			}

			key, ok := keys[r.ID]
			if !ok {
				key = domain.RemoteKey{ItemID: r.ID, Page: r.Page}
			}
			kdata, err := json.Marshal(storedKey{RemoteKey: key, Position: r.Position})
			if err != nil {
				return err
			}
			if err := cursors.Put(idKey(r.ID), kdata); err != nil {
				return err
			}
		}

		return putPartition(tx, domain.Partition{Kind: kind, FilterKey: w.FilterKey, UpdatedAt: w.UpdatedAt})
	})
	if err != nil {
		return fmt.Errorf("apply page %s: %w", kind, err)
	}
	return nil
}

// slotHolder returns the id of the item stored at slot, 0 when empty
func slotHolder(items *bolt.Bucket, slot []byte) int {
	v := items.Get(slot)
	if v == nil {
		return 0
	}
	var item storedItem
	if err := json.Unmarshal(v, &item); err != nil {
		return 0
	}
	return item.ID
}

func (s *BoltBackend) Reset(ctx context.Context, kind domain.Kind, filterKey string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		if err := recreate(tx, itemsBucket(kind), keysBucket(kind)); err != nil {
			return err
		}
		return putPartition(tx, domain.Partition{Kind: kind, FilterKey: filterKey})
	})
	if err != nil {
		return fmt.Errorf("reset %s: %w", kind, err)
	}
	return nil
}

// recreate empties buckets by dropping and re-creating them
func recreate(tx *bolt.Tx, buckets ...[]byte) error {
	for _, name := range buckets {
		if err := tx.DeleteBucket(name); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
			return err
		}
		if _, err := tx.CreateBucket(name); err != nil {
			return err
		}
	}
	return nil
}

// === Detail cache ===

func (s *BoltBackend) Detail(ctx context.Context, kind domain.Kind, id int) (json.RawMessage, bool, error) {
	cacheKey := string(detailsBucket(kind)) + ":" + strconv.Itoa(id)

	// Check memory cache first
	s.mu.RLock()
	if data, ok := s.cache[cacheKey]; ok {
		s.mu.RUnlock()
		return data, true, nil
	}
	s.mu.RUnlock()

	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(detailsBucket(kind)).Get(idKey(id)); v != nil {
			data = make([]byte, len(v))
			copy(data, v)
		}
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("read detail %s/%d: %w", kind, id, err)
	}
	if data == nil {
		return nil, false, nil
	}

	// Promote to memory cache
	s.mu.Lock()
	s.cache[cacheKey] = data
	s.mu.Unlock()

	return data, true, nil
}

func (s *BoltBackend) PutDetails(ctx context.Context, kind domain.Kind, records []domain.Record) error {
	if len(records) == 0 {
		return nil
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(detailsBucket(kind))
		for _, r := range records {
			if err := b.Put(idKey(r.ID), r.Data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("put details %s: %w", kind, err)
	}

	s.mu.Lock()
	for _, r := range records {
		s.cache[string(detailsBucket(kind))+":"+strconv.Itoa(r.ID)] = r.Data
	}
	s.mu.Unlock()
	return nil
}

// === Invalidation ===

func (s *BoltBackend) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.cache = make(map[string][]byte)
	s.mu.Unlock()

	return s.db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{bucketPartitions}
		for _, kind := range domain.Kinds() {
			buckets = append(buckets, itemsBucket(kind), keysBucket(kind), detailsBucket(kind))
		}
		return recreate(tx, buckets...)
	})
}

var _ domain.Store = (*BoltBackend)(nil)
