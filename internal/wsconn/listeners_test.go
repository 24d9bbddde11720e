package wsconn

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestListenerSet_DispatchOrder(t *testing.T) {
	s := newListenerSet[int]("test")
	var got []string

	s.add(func(v int) { got = append(got, "a") })
	s.add(func(v int) { got = append(got, "b") })
	s.add(func(v int) { got = append(got, "c") })

	s.dispatch(1)
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestListenerSet_UnsubscribeIsIdempotent(t *testing.T) {
	s := newListenerSet[int]("test")
	calls := 0
	off := s.add(func(int) { calls++ })
	s.add(func(int) {})

	off()
	off()
	assert.Equal(t, 1, s.len())

	s.dispatch(1)
	assert.Zero(t, calls)
}

func TestListenerSet_SelfRemovalDuringDispatch(t *testing.T) {
	s := newListenerSet[int]("test")
	var got []int

	var off func()
	off = s.add(func(v int) {
		got = append(got, v)
		off()
	})
	s.add(func(v int) { got = append(got, v*10) })

	s.dispatch(1)
	s.dispatch(2)
	assert.Equal(t, []int{1, 10, 20}, got)
}

func TestListenerSet_RemoveLaterListenerDuringDispatch(t *testing.T) {
	s := newListenerSet[int]("test")
	var got []string

	var offB func()
	s.add(func(int) {
		got = append(got, "a")
		offB()
	})
	offB = s.add(func(int) { got = append(got, "b") })
	s.add(func(int) { got = append(got, "c") })

	s.dispatch(1)
	assert.Equal(t, []string{"a", "c"}, got)
}

func TestListenerSet_PanicDoesNotStopDelivery(t *testing.T) {
	s := newListenerSet[string]("test")
	var got []string

	s.add(func(v string) { got = append(got, "first:"+v) })
	s.add(func(string) { panic("boom") })
	s.add(func(v string) { got = append(got, "third:"+v) })

	assert.NotPanics(t, func() { s.dispatch("x") })
	assert.Equal(t, []string{"first:x", "third:x"}, got)
}

func TestListenerSet_AddDuringDispatchDeferredToNextPass(t *testing.T) {
	s := newListenerSet[int]("test")
	var got []int
	added := false

	s.add(func(v int) {
		if !added {
			added = true
			s.add(func(v int) { got = append(got, -v) })
		}
		got = append(got, v)
	})

	s.dispatch(1)
	s.dispatch(2)
	assert.Equal(t, []int{1, 2, -2}, got)
}

func TestListenerSet_UnsubscribeFromOtherGoroutine(t *testing.T) {
	for range 2000 {
		s := newListenerSet[int]("test")
		var returned, late atomic.Bool
		off := s.add(func(int) {
			if returned.Load() {
				late.Store(true)
			}
		})

		done := make(chan struct{})
		go func() {
			defer close(done)
			for i := range 50 {
				s.dispatch(i)
			}
		}()

		off()
		returned.Store(true)
		<-done

		if late.Load() {
			t.Fatal("listener invoked after unsubscribe returned")
		}
	}
}

func TestListenerSet_UnsubscribeWaitsForRunningCallback(t *testing.T) {
	s := newListenerSet[int]("test")
	entered := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool
	off := s.add(func(int) {
		close(entered)
		<-release
		finished.Store(true)
	})

	go s.dispatch(1)
	<-entered

	returned := make(chan struct{})
	go func() {
		off()
		close(returned)
	}()

	select {
	case <-returned:
		t.Fatal("unsubscribe returned while the callback was still running")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	<-returned
	assert.True(t, finished.Load())
}

func TestGoroutineID(t *testing.T) {
	id := goroutineID()
	assert.NotZero(t, id)
	assert.Equal(t, id, goroutineID())

	other := make(chan uint64)
	go func() { other <- goroutineID() }()
	assert.NotEqual(t, id, <-other)
}
