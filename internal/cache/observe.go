package cache

import (
	"context"
	"sync"
)

// ObserveAll subscribes to the article snapshot. The returned channel first
// yields the current contents, then every snapshot committed by ReplaceAll, in
// commit order. Each subscriber has its own queue, so a slow reader never
// holds back or drops snapshots for another. The channel is closed when ctx is
// done or the cache is closed; subscribe again to restart.
func (c *Cache) ObserveAll(ctx context.Context) (<-chan []Article, error) {
	// Holding writeMu pins the initial read between two commits.
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	current, err := c.GetAll()
	if err != nil {
		return nil, err
	}

	sub := c.hub.subscribe(ctx)
	sub.push(current)
	return sub.out, nil
}

// Observers returns the number of live subscriptions.
func (c *Cache) Observers() int {
	return c.hub.count()
}

type hub struct {
	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	closed bool
}

func newHub() *hub {
	return &hub{subs: make(map[*subscriber]struct{})}
}

func (h *hub) subscribe(ctx context.Context) *subscriber {
	ctx, cancel := context.WithCancel(ctx)
	s := &subscriber{
		out:    make(chan []Article),
		wake:   make(chan struct{}, 1),
		cancel: cancel,
	}

	h.mu.Lock()
	if h.closed {
		cancel()
	} else {
		h.subs[s] = struct{}{}
	}
	h.mu.Unlock()

	go s.pump(ctx, h)
	return s
}

func (h *hub) publish(snapshot []Article) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		s.push(snapshot)
	}
}

func (h *hub) remove(s *subscriber) {
	h.mu.Lock()
	delete(h.subs, s)
	h.mu.Unlock()
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *hub) close() {
	h.mu.Lock()
	h.closed = true
	subs := h.subs
	h.subs = make(map[*subscriber]struct{})
	h.mu.Unlock()

	for s := range subs {
		s.cancel()
	}
}

type subscriber struct {
	out    chan []Article
	wake   chan struct{}
	cancel context.CancelFunc

	mu      sync.Mutex
	pending [][]Article
}

func (s *subscriber) push(snapshot []Article) {
	// Each subscriber gets its own copy so readers may mutate what they receive.
	cp := make([]Article, len(snapshot))
	copy(cp, snapshot)

	s.mu.Lock()
	s.pending = append(s.pending, cp)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber) pump(ctx context.Context, h *hub) {
	defer close(s.out)
	defer h.remove(s)
	defer s.cancel()

	for {
		s.mu.Lock()
		batch := s.pending
		s.pending = nil
		s.mu.Unlock()

		for _, snapshot := range batch {
			select {
			case s.out <- snapshot:
			case <-ctx.Done():
				return
			}
		}

		select {
		case <-s.wake:
		case <-ctx.Done():
			return
		}
	}
}
