package wsconn

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// listener guards its callback with mu: dispatch holds it from the active
// check until fn returns, so an unsubscribe on another goroutine waits for an
// invocation in progress. owner is the goroutine executing fn, which lets a
// listener unsubscribe itself from inside fn without deadlocking.
type listener[T any] struct {
	fn     func(T)
	mu     sync.Mutex
	active atomic.Bool
	owner  atomic.Uint64
}

// listenerSet is a copy-on-write list of callbacks. Dispatch iterates over a
// snapshot, so listeners may register or unregister from inside a callback.
// Once unsubscribe returns the listener is never invoked again.
type listenerSet[T any] struct {
	event string
	mu    sync.Mutex
	items []*listener[T]
}

func newListenerSet[T any](event string) *listenerSet[T] {
	return &listenerSet[T]{event: event}
}

// add registers fn and returns its idempotent unsubscribe function.
func (s *listenerSet[T]) add(fn func(T)) func() {
	l := &listener[T]{fn: fn}
	l.active.Store(true)

	s.mu.Lock()
	s.items = append(s.items, l)
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.active.Store(false)
			s.remove(l)
			if l.owner.Load() != goroutineID() {
				l.mu.Lock()
				l.mu.Unlock()
			}
		})
	}
}

func (s *listenerSet[T]) remove(l *listener[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// never mutate the backing array a dispatch snapshot may be reading
	s.items = slices.DeleteFunc(slices.Clone(s.items), func(x *listener[T]) bool { return x == l })
}

func (s *listenerSet[T]) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *listenerSet[T]) dispatch(v T) {
	s.mu.Lock()
	snapshot := s.items
	s.mu.Unlock()

	if len(snapshot) == 0 {
		return
	}
	gid := goroutineID()
	for _, l := range snapshot {
		s.call(l, v, gid)
	}
}

func (s *listenerSet[T]) call(l *listener[T], v T, gid uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.active.Load() {
		return
	}
	l.owner.Store(gid)
	defer l.owner.Store(0)
	s.invoke(l.fn, v)
}

func (s *listenerSet[T]) invoke(fn func(T), v T) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("event", s.event).Interface("panic", r).Msg("listener panicked")
		}
	}()
	fn(v)
}
