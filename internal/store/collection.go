package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mmcdole/portal/internal/domain"
)

// Collection is a typed view over one kind of a domain.Store.
// T is a pointer entity such as *domain.Character.
type Collection[T domain.Item] struct {
	store domain.Store
	kind  domain.Kind
}

func NewCollection[T domain.Item](s domain.Store, kind domain.Kind) *Collection[T] {
	return &Collection[T]{store: s, kind: kind}
}

// Kind returns the collection the view is bound to
func (c *Collection[T]) Kind() domain.Kind {
	return c.kind
}

func (c *Collection[T]) Partition(ctx context.Context) (domain.Partition, bool, error) {
	return c.store.Partition(ctx, c.kind)
}

// Items returns the cached items in (page, position) order
func (c *Collection[T]) Items(ctx context.Context) ([]T, error) {
	records, err := c.store.Records(ctx, c.kind)
	if err != nil {
		return nil, err
	}
	items := make([]T, 0, len(records))
	for _, r := range records {
		var item T
		if err := json.Unmarshal(r.Data, &item); err != nil {
			return nil, fmt.Errorf("decode %s %d: %w", c.kind, r.ID, err)
		}
		items = append(items, item)
	}
	return items, nil
}

func (c *Collection[T]) RemoteKey(ctx context.Context, itemID int) (domain.RemoteKey, bool, error) {
	return c.store.RemoteKey(ctx, c.kind, itemID)
}

// ApplyPage serializes the update and writes it in one store transaction
func (c *Collection[T]) ApplyPage(ctx context.Context, u domain.PageUpdate[T]) error {
	records, err := c.encode(u.Items, u.Page)
	if err != nil {
		return err
	}
	updatedAt := u.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	return c.store.ApplyPage(ctx, c.kind, domain.PageWrite{
		FilterKey: u.FilterKey,
		Reset:     u.Reset,
		Records:   records,
		Keys:      u.Keys,
		UpdatedAt: updatedAt,
	})
}

func (c *Collection[T]) Reset(ctx context.Context, filterKey string) error {
	return c.store.Reset(ctx, c.kind, filterKey)
}

// Detail returns a record from the detail cache
func (c *Collection[T]) Detail(ctx context.Context, id int) (T, bool, error) {
	var item T
	data, ok, err := c.store.Detail(ctx, c.kind, id)
	if err != nil || !ok {
		return item, false, err
	}
	if err := json.Unmarshal(data, &item); err != nil {
		return item, false, fmt.Errorf("decode %s detail %d: %w", c.kind, id, err)
	}
	return item, true, nil
}

func (c *Collection[T]) PutDetails(ctx context.Context, items []T) error {
	records, err := c.encode(items, 0)
	if err != nil {
		return err
	}
	return c.store.PutDetails(ctx, c.kind, records)
}

func (c *Collection[T]) encode(items []T, page int) ([]domain.Record, error) {
	records := make([]domain.Record, 0, len(items))
	for i, item := range items {
		data, err := json.Marshal(item)
		if err != nil {
			return nil, fmt.Errorf("encode %s %d: %w", c.kind, item.GetID(), err)
		}
		records = append(records, domain.Record{ID: item.GetID(), Page: page, Position: i, Data: data})
	}
	return records, nil
}
