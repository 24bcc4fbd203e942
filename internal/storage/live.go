package storage

import (
	"context"
	"sort"
	"sync"
)

// Hub fans out "these tables changed" notifications to subscribers.
// Notifications are coalesced: a subscriber that is busy when several
// commits land sees a single wake-up carrying the union of their tables.
type Hub struct {
	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[*Subscription]struct{})}
}

// Subscription receives a signal on C whenever one of its tables changes.
type Subscription struct {
	hub    *Hub
	tables map[string]struct{} // empty means every table
	c      chan struct{}

	mu      sync.Mutex
	pending map[string]struct{}
	once    sync.Once
}

// Subscribe registers interest in tables, or in every table when none are
// given.
func (h *Hub) Subscribe(tables ...string) *Subscription {
	s := &Subscription{
		hub:     h,
		tables:  make(map[string]struct{}, len(tables)),
		c:       make(chan struct{}, 1),
		pending: make(map[string]struct{}),
	}
	for _, t := range tables {
		s.tables[t] = struct{}{}
	}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	return s
}

// Publish notifies every subscriber interested in any of tables.
func (h *Hub) Publish(tables ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		s.notify(tables)
	}
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (s *Subscription) notify(tables []string) {
	s.mu.Lock()
	hit := false
	for _, t := range tables {
		if len(s.tables) == 0 {
			s.pending[t] = struct{}{}
			hit = true
			continue
		}
		if _, ok := s.tables[t]; ok {
			s.pending[t] = struct{}{}
			hit = true
		}
	}
	s.mu.Unlock()
	if !hit {
		return
	}
	select {
	case s.c <- struct{}{}:
	default:
	}
}

// C is signalled after commits that touched a watched table.
func (s *Subscription) C() <-chan struct{} { return s.c }

// Drain returns and clears the tables changed since the last Drain.
func (s *Subscription) Drain() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.pending))
	for t := range s.pending {
		out = append(out, t)
	}
	clear(s.pending)
	sort.Strings(out)
	return out
}

// Close unregisters the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		delete(s.hub.subs, s)
		s.hub.mu.Unlock()
	})
}

// Result is one evaluation of a live query.
type Result[T any] struct {
	Value T
	Err   error
}

// Watch evaluates query immediately and again after every commit touching
// one of tables, delivering results in order on the returned channel.
// Bursts of commits may collapse into one re-evaluation, but the last
// delivered value always reflects every commit that preceded it.
// The channel is closed once ctx is done.
func Watch[T any](ctx context.Context, h *Hub, tables []string, query func(context.Context) (T, error)) <-chan Result[T] {
	out := make(chan Result[T])
	sub := h.Subscribe(tables...)

	go func() {
		defer close(out)
		defer sub.Close()

		for {
			v, err := query(ctx)
			if ctx.Err() != nil {
				return
			}
			select {
			case out <- Result[T]{Value: v, Err: err}:
			case <-ctx.Done():
				return
			}

			select {
			case <-sub.C():
				sub.Drain()
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}
