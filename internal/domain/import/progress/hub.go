package progress

import (
	"context"
	"log/slog"
	"sync"
)

var _ Notifier = (*Hub)(nil)

// Hub is an in-process pub/sub for progress events keyed by connection id.
// Each subscription owns a buffered channel; events for a full buffer are
// dropped rather than blocking the import.
type Hub struct {
	mu         sync.RWMutex
	subs       map[string]map[*subscription]struct{}
	bufferSize int
	closed     bool
	logger     *slog.Logger
}

type subscription struct {
	ch chan Event
}

// NewHub creates a hub whose subscriptions buffer up to bufferSize events.
func NewHub(bufferSize int, logger *slog.Logger) *Hub {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &Hub{
		subs:       make(map[string]map[*subscription]struct{}),
		bufferSize: bufferSize,
		logger:     logger,
	}
}

// Subscribe registers a listener for connectionID. The returned cancel
// function unregisters it and closes the channel; it is safe to call twice.
func (h *Hub) Subscribe(connectionID string) (<-chan Event, func()) {
	sub := &subscription{ch: make(chan Event, h.bufferSize)}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(sub.ch)
		return sub.ch, func() {}
	}
	if h.subs[connectionID] == nil {
		h.subs[connectionID] = make(map[*subscription]struct{})
	}
	h.subs[connectionID][sub] = struct{}{}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subs[connectionID][sub]; !ok {
				return
			}
			delete(h.subs[connectionID], sub)
			if len(h.subs[connectionID]) == 0 {
				delete(h.subs, connectionID)
			}
			close(sub.ch)
		})
	}
	return sub.ch, cancel
}

// Notify implements Notifier.
func (h *Hub) Notify(ctx context.Context, connectionID string, event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs[connectionID] {
		select {
		case sub.ch <- event:
		default:
			if h.logger != nil {
				h.logger.WarnContext(ctx, "dropping progress event for slow subscriber",
					slog.String("connectionID", connectionID),
					slog.String("fileName", event.FileName),
					slog.Int("percentage", event.Percentage))
			}
		}
	}
}

// Close closes every subscription. Later subscriptions are closed immediately.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, subs := range h.subs {
		for sub := range subs {
			close(sub.ch)
		}
		delete(h.subs, id)
	}
}
