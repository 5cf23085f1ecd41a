package credential

import (
	"context"
	"maps"
	"sync"
	"time"
)

const memorySubscriberBuffer = 16

// MemoryHub is a process-local Backend shared by several stores, each standing in for a
// separate execution context. Notifications are best effort: a subscriber whose buffer
// is full misses the change and relies on polling.
type MemoryHub struct {
	mu     sync.RWMutex
	values map[string]string

	subMu  sync.Mutex
	subs   map[uint64]chan Change
	nextID uint64
}

// NewMemoryHub returns an empty hub.
func NewMemoryHub() *MemoryHub {
	return &MemoryHub{
		values: make(map[string]string),
		subs:   make(map[uint64]chan Change),
	}
}

// GetMany returns the present values for keys.
func (h *MemoryHub) GetMany(_ context.Context, keys ...string) (map[string]string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make(map[string]string, len(keys))
	for _, k := range keys {
		if v, ok := h.values[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

// SetMany writes values under one lock and notifies subscribers.
func (h *MemoryHub) SetMany(_ context.Context, origin string, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	h.mu.Lock()
	maps.Copy(h.values, values)
	h.mu.Unlock()

	now := time.Now()
	for k := range values {
		h.publish(Change{Key: k, Origin: origin, At: now})
	}
	return nil
}

// DeleteMany removes keys under one lock and notifies subscribers.
func (h *MemoryHub) DeleteMany(_ context.Context, origin string, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	h.mu.Lock()
	for _, k := range keys {
		delete(h.values, k)
	}
	h.mu.Unlock()

	now := time.Now()
	for _, k := range keys {
		h.publish(Change{Key: k, Origin: origin, At: now})
	}
	return nil
}

// Subscribe registers a subscriber until ctx is done.
func (h *MemoryHub) Subscribe(ctx context.Context) (<-chan Change, error) {
	if err := ctx.Err(); err != nil {
		return nil, ErrSubscriptionClosed
	}

	ch := make(chan Change, memorySubscriberBuffer)

	h.subMu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	h.subMu.Unlock()

	go func() {
		<-ctx.Done()
		h.subMu.Lock()
		delete(h.subs, id)
		close(ch)
		h.subMu.Unlock()
	}()

	return ch, nil
}

// Put writes a raw value without publishing a change. It models a writer in the same
// context that bypasses the notification channel.
func (h *MemoryHub) Put(key, value string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.values[key] = value
}

// Remove deletes a raw value without publishing a change.
func (h *MemoryHub) Remove(key string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.values, key)
}

// Subscribers returns the number of live subscriptions.
func (h *MemoryHub) Subscribers() int {
	h.subMu.Lock()
	defer h.subMu.Unlock()
	return len(h.subs)
}

func (h *MemoryHub) publish(c Change) {
	h.subMu.Lock()
	defer h.subMu.Unlock()

	for _, ch := range h.subs {
		select {
		case ch <- c:
		default:
		}
	}
}
