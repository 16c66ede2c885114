// Package reconcile keeps client-side caches in step with the event stream.
//
// A Cache is not safe for concurrent use. Each cache has exactly one writer,
// normally the session event loop, which applies events in delivery order.
package reconcile

import (
	"encoding/json"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/kishorathod/PrenatalPlus-sub002/internal/events"
)

// Cache maps entity ids to their latest known snapshot.
type Cache[T any] struct {
	kind   string
	idOf   func(T) string
	less   func(a, b T) bool
	items  map[string]T
	logger *zap.Logger
}

// Option configures a Cache.
type Option[T any] func(*Cache[T])

// WithOrder sets the order List returns entries in. Without it entries are
// listed by id.
func WithOrder[T any](less func(a, b T) bool) Option[T] {
	return func(c *Cache[T]) { c.less = less }
}

// NewCache creates an empty cache for one entity kind. idOf extracts the id
// from a snapshot.
func NewCache[T any](kind string, idOf func(T) string, logger *zap.Logger, opts ...Option[T]) *Cache[T] {
	c := &Cache[T]{
		kind:   kind,
		idOf:   idOf,
		items:  make(map[string]T),
		logger: logger.With(zap.String("cache", kind)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Kind returns the entity kind the cache holds.
func (c *Cache[T]) Kind() string { return c.kind }

// Len returns the number of cached entries.
func (c *Cache[T]) Len() int { return len(c.items) }

// Get returns the snapshot for id.
func (c *Cache[T]) Get(id string) (T, bool) {
	v, ok := c.items[id]
	return v, ok
}

// List returns every snapshot in display order.
func (c *Cache[T]) List() []T {
	out := make([]T, 0, len(c.items))
	for _, v := range c.items {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		if c.less != nil {
			if c.less(out[i], out[j]) {
				return true
			}
			if c.less(out[j], out[i]) {
				return false
			}
		}
		return c.idOf(out[i]) < c.idOf(out[j])
	})
	return out
}

// Replace discards the current contents and installs snapshot. Entries
// without an id are skipped.
func (c *Cache[T]) Replace(snapshot []T) {
	c.items = make(map[string]T, len(snapshot))
	for _, v := range snapshot {
		id := c.idOf(v)
		if id == "" {
			c.logger.Warn("snapshot entry without id skipped")
			continue
		}
		c.items[id] = v
	}
}

// Clear empties the cache.
func (c *Cache[T]) Clear() {
	c.items = make(map[string]T)
}

// Apply folds one event payload into the cache and reports whether the cache
// changed. Malformed payloads and updates for unknown ids are logged and
// discarded.
func (c *Cache[T]) Apply(action events.Action, data json.RawMessage) bool {
	switch action {
	case events.ActionCreated:
		return c.create(data)
	case events.ActionUpdated:
		return c.update(data)
	case events.ActionDeleted:
		return c.delete(data)
	}
	c.logger.Warn("unsupported action discarded", zap.String("action", string(action)))
	return false
}

func (c *Cache[T]) create(data json.RawMessage) bool {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		c.logger.Warn("malformed created payload discarded", zap.Error(err))
		return false
	}
	id := c.idOf(v)
	if id == "" {
		c.logger.Warn("created payload without id discarded")
		return false
	}
	if _, ok := c.items[id]; ok {
		c.logger.Debug("duplicate create ignored", zap.String("id", id))
		return false
	}
	c.items[id] = v
	return true
}

func (c *Cache[T]) update(data json.RawMessage) bool {
	var probe T
	if err := json.Unmarshal(data, &probe); err != nil {
		c.logger.Warn("malformed updated payload discarded", zap.Error(err))
		return false
	}
	id := c.idOf(probe)
	if id == "" {
		c.logger.Warn("updated payload without id discarded")
		return false
	}
	cur, ok := c.items[id]
	if !ok {
		c.logger.Info("update for unknown id ignored", zap.String("id", id))
		return false
	}

	merged, err := mergeJSON(cur, data)
	if err != nil {
		c.logger.Warn("update could not be merged", zap.String("id", id), zap.Error(err))
		return false
	}
	c.items[id] = merged
	return true
}

func (c *Cache[T]) delete(data json.RawMessage) bool {
	var d events.Deleted
	if err := json.Unmarshal(data, &d); err != nil || d.ID == "" {
		c.logger.Warn("malformed deleted payload discarded", zap.Error(err))
		return false
	}
	if _, ok := c.items[d.ID]; !ok {
		c.logger.Debug("delete for unknown id ignored", zap.String("id", d.ID))
		return false
	}
	delete(c.items, d.ID)
	return true
}

// mergeJSON overlays the top-level fields present in patch onto cur. Fields
// absent from patch keep their current value.
func mergeJSON[T any](cur T, patch json.RawMessage) (T, error) {
	var out T
	base, err := json.Marshal(cur)
	if err != nil {
		return out, fmt.Errorf("marshal snapshot: %w", err)
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(base, &fields); err != nil {
		return out, fmt.Errorf("snapshot is not an object: %w", err)
	}
	var delta map[string]json.RawMessage
	if err := json.Unmarshal(patch, &delta); err != nil {
		return out, fmt.Errorf("patch is not an object: %w", err)
	}
	for k, v := range delta {
		fields[k] = v
	}

	merged, err := json.Marshal(fields)
	if err != nil {
		return out, fmt.Errorf("marshal merged: %w", err)
	}
	if err := json.Unmarshal(merged, &out); err != nil {
		return out, fmt.Errorf("decode merged: %w", err)
	}
	return out, nil
}
