// Package dedupe guards deal closes so each one feeds calibration at most
// once per process.
package dedupe

import (
	"container/list"
	"context"
	"sync"
)

// Deduper tracks which deal closes were already applied.
type Deduper interface {
	// SeenAndRecord reports whether key was already recorded and records it
	// if not. The check and the record happen under one lock.
	SeenAndRecord(ctx context.Context, key string) bool

	// Forget drops key so a close whose calibration failed can be retried.
	Forget(ctx context.Context, key string)

	Len() int
}

// Key scopes a close id to its user; close ids are only unique per user.
func Key(userID, closeID string) string {
	return userID + "/" + closeID
}

// closeLog keeps recorded keys in arrival order. When bounded, the oldest
// key is evicted first.
type closeLog struct {
	mu      sync.Mutex
	index   map[string]*list.Element
	order   *list.List
	maxSize int // <= 0 means unbounded
}

// New returns an in-memory Deduper.
func New(opts ...Option) Deduper {
	d := &closeLog{maxSize: 50000}
	for _, opt := range opts {
		opt(d)
	}
	d.index = make(map[string]*list.Element)
	d.order = list.New()
	return d
}

func (d *closeLog) SeenAndRecord(_ context.Context, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.index[key]; ok {
		return true
	}
	if d.maxSize > 0 && d.order.Len() >= d.maxSize {
		oldest := d.order.Front()
		d.order.Remove(oldest)
		delete(d.index, oldest.Value.(string))
	}
	d.index[key] = d.order.PushBack(key)
	return false
}

func (d *closeLog) Forget(_ context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.index[key]; ok {
		d.order.Remove(el)
		delete(d.index, key)
	}
}

func (d *closeLog) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.order.Len()
}
