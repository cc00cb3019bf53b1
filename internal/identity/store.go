// Package identity owns the identity state of one portal.
//
// Store is the only writer of the IdentitySnapshot. Transitions are serialized and
// delivered to listeners in the order they were applied; consumers read immutable
// snapshots and never mutate them.
package identity

import (
	"context"
	"maps"
	"slices"
	"sync"

	domainauth "github.com/target/towertrack-portal/internal/domain/auth"
)

// Listener receives every published snapshot, in order.
// Listeners run on the publishing goroutine and must not call Store mutators synchronously.
type Listener func(domainauth.IdentitySnapshot)

// Store holds the current identity snapshot for a portal.
type Store struct {
	// deliverMu serializes mutate+deliver so listeners observe transitions in order.
	deliverMu sync.Mutex

	mu        sync.RWMutex
	snap      domainauth.IdentitySnapshot
	listeners map[uint64]Listener
	nextID    uint64
	closed    bool
	done      chan struct{}
}

// NewStore returns a store in the initializing state.
func NewStore() *Store {
	return &Store{
		snap:      domainauth.IdentitySnapshot{Status: domainauth.StatusInitializing},
		listeners: make(map[uint64]Listener),
		done:      make(chan struct{}),
	}
}

// Snapshot returns the current identity snapshot.
func (s *Store) Snapshot() domainauth.IdentitySnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// SetIdentity publishes an authenticated principal.
// The generation only advances when the status or identity key changes, so re-publishing
// the same principal (refreshed token, new display name) does not re-run transition side effects.
func (s *Store) SetIdentity(id domainauth.Identity) domainauth.IdentitySnapshot {
	cp := id
	return s.publish(domainauth.IdentitySnapshot{Status: domainauth.StatusAuthenticated, Identity: &cp})
}

// Clear publishes the anonymous state. It is also the "first listener event" for a
// portal that has no persisted session.
func (s *Store) Clear() domainauth.IdentitySnapshot {
	return s.publish(domainauth.IdentitySnapshot{Status: domainauth.StatusAnonymous})
}

func (s *Store) publish(next domainauth.IdentitySnapshot) domainauth.IdentitySnapshot {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	if s.closed {
		cur := s.snap
		s.mu.Unlock()
		return cur
	}
	prev := s.snap
	next.Generation = prev.Generation
	transition := prev.Status != next.Status || prev.Key() != next.Key()
	if transition {
		next.Generation++
	}
	if !transition && sameIdentity(prev.Identity, next.Identity) {
		s.mu.Unlock()
		return prev
	}
	s.snap = next
	targets := make([]Listener, 0, len(s.listeners))
	for _, id := range slices.Sorted(maps.Keys(s.listeners)) {
		targets = append(targets, s.listeners[id])
	}
	s.mu.Unlock()

	for _, fn := range targets {
		fn(next)
	}
	return next
}

// Subscribe registers fn for subsequent transitions. Registration order is delivery order.
func (s *Store) Subscribe(fn Listener) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscribeLocked(fn)
}

// caller holds s.mu.
func (s *Store) subscribeLocked(fn Listener) func() {
	if s.closed {
		return func() {}
	}
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

// Watch streams the current snapshot followed by every later transition until ctx is
// cancelled or the store is closed, at which point the channel is closed. Slow readers
// never block publishers; snapshots are queued and delivered in order.
func (s *Store) Watch(ctx context.Context) <-chan domainauth.IdentitySnapshot {
	out := make(chan domainauth.IdentitySnapshot)
	q := &queue{signal: make(chan struct{}, 1)}

	s.deliverMu.Lock()
	q.push(s.Snapshot())
	s.mu.Lock()
	unsubscribe := s.subscribeLocked(q.push)
	s.mu.Unlock()
	s.deliverMu.Unlock()

	go func() {
		defer close(out)
		defer unsubscribe()
		for {
			next, ok := q.pop()
			if !ok {
				select {
				case <-ctx.Done():
					return
				case <-s.done:
					return
				case <-q.signal:
					continue
				}
			}
			select {
			case out <- next:
			case <-ctx.Done():
				return
			case <-s.done:
				return
			}
		}
	}()
	return out
}

// Close drops all listeners and ends every Watch stream. Later mutations are ignored.
func (s *Store) Close() {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.listeners = map[uint64]Listener{}
	close(s.done)
}

type queue struct {
	mu     sync.Mutex
	items  []domainauth.IdentitySnapshot
	signal chan struct{}
}

func (q *queue) push(snap domainauth.IdentitySnapshot) {
	q.mu.Lock()
	q.items = append(q.items, snap)
	q.mu.Unlock()
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *queue) pop() (domainauth.IdentitySnapshot, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return domainauth.IdentitySnapshot{}, false
	}
	next := q.items[0]
	q.items = q.items[1:]
	return next, true
}

func sameIdentity(a, b *domainauth.Identity) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
