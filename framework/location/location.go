// Package location models the addressable navigation location (the URL
// fragment in a browser) that the router engine reads and writes.
package location

import (
	"sort"
	"strings"
	"sync"
)

// Location is the process-wide navigation value. Assigning a different value
// notifies every subscriber; assigning the current value does nothing.
type Location interface {
	Current() string
	Assign(key string)
	Subscribe(fn func(key string)) (unsubscribe func())
}

// FromFragment turns "#/learn" into "/learn".
func FromFragment(fragment string) string {
	return strings.TrimPrefix(strings.TrimSpace(fragment), "#")
}

// ToFragment turns "/learn" into "#/learn".
func ToFragment(key string) string {
	if key == "" {
		return ""
	}
	return "#" + key
}

type Option func(*Memory)

// WithQueuedDelivery makes Memory deliver notifications from its own
// goroutine, in order, after Assign has returned.
func WithQueuedDelivery() Option {
	return func(m *Memory) {
		m.queued = true
	}
}

// WithOnAssign registers a hook called for programmatic assignments only,
// not for changes recorded through Observe.
func WithOnAssign(fn func(key string)) Option {
	return func(m *Memory) {
		m.onAssign = fn
	}
}

// Memory is an in-process Location. Changes are delivered in the order they
// were written: synchronously under a delivery lock, or through a FIFO queue
// filled in the same critical section as the write. With synchronous delivery
// a subscriber must not call Assign or Observe itself.
type Memory struct {
	// deliverMu orders synchronous write+delivery steps.
	deliverMu sync.Mutex

	mu          sync.Mutex
	idle        *sync.Cond
	current     string
	nextID      int
	subscribers map[int]func(string)
	onAssign    func(string)

	queued     bool
	queue      []change
	delivering bool
	closed     bool
}

type change struct {
	key      string
	assigned bool
}

func NewMemory(initial string, opts ...Option) *Memory {
	m := &Memory{
		current:     initial,
		subscribers: make(map[int]func(string)),
	}
	m.idle = sync.NewCond(&m.mu)
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) Current() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func (m *Memory) Assign(key string) {
	m.write(change{key: key, assigned: true})
}

// Observe records a change made outside the application, such as the user
// pressing back or editing the fragment.
func (m *Memory) Observe(key string) {
	m.write(change{key: key})
}

func (m *Memory) Subscribe(fn func(key string)) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subscribers[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subscribers, id)
		m.mu.Unlock()
	}
}

// Flush blocks until every queued notification has been delivered.
func (m *Memory) Flush() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for len(m.queue) > 0 || m.delivering {
		m.idle.Wait()
	}
}

// Close drops pending notifications and stops delivery.
func (m *Memory) Close() {
	m.mu.Lock()
	m.closed = true
	m.queue = nil
	m.subscribers = make(map[int]func(string))
	m.idle.Broadcast()
	m.mu.Unlock()
}

func (m *Memory) write(c change) {
	if m.queued {
		m.enqueue(c)
		return
	}

	m.deliverMu.Lock()
	defer m.deliverMu.Unlock()

	if !m.set(c.key) {
		return
	}
	m.deliver(c)
}

func (m *Memory) set(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || key == m.current {
		return false
	}
	m.current = key
	return true
}

// enqueue stores the new value and queues its notification in one step, so
// queue order always matches write order.
func (m *Memory) enqueue(c change) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || c.key == m.current {
		return
	}
	m.current = c.key
	m.queue = append(m.queue, c)
	if !m.delivering {
		m.delivering = true
		go m.drain()
	}
}

func (m *Memory) deliver(c change) {
	if c.assigned && m.onAssign != nil {
		m.onAssign(c.key)
	}
	for _, fn := range m.snapshot() {
		fn(c.key)
	}
}

func (m *Memory) drain() {
	for {
		m.mu.Lock()
		if len(m.queue) == 0 || m.closed {
			m.delivering = false
			m.idle.Broadcast()
			m.mu.Unlock()
			return
		}
		c := m.queue[0]
		m.queue = m.queue[1:]
		m.mu.Unlock()

		m.deliver(c)
	}
}

func (m *Memory) snapshot() []func(string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]int, 0, len(m.subscribers))
	for id := range m.subscribers {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	fns := make([]func(string), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, m.subscribers[id])
	}
	return fns
}
