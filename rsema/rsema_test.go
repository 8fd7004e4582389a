package rsema

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestAcquireRespectsSize(t *testing.T) {
	s := New(2)
	s.Acquire()
	s.Acquire()

	acquired := make(chan struct{})
	go func() {
		s.Acquire()
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatalf("third Acquire should have blocked at size 2")
	case <-time.After(20 * time.Millisecond):
	}

	s.Release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatalf("third Acquire should have unblocked after a Release")
	}
}

func TestSetSizeGrowsAndWakesWaiters(t *testing.T) {
	s := New(1)
	s.Acquire()

	acquired := make(chan struct{})
	go func() {
		s.Acquire()
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatalf("Acquire should have blocked at size 1")
	case <-time.After(20 * time.Millisecond):
	}

	s.SetSize(2)
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatalf("growing size should have released the waiter without an explicit Release")
	}
}

func TestReleaseWithoutAcquirePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected a panic on unmatched Release")
		}
	}()
	s := New(1)
	s.Release()
}

func TestConcurrentAcquireReleaseNeverExceedsSize(t *testing.T) {
	const size = 4
	s := New(size)
	var cur, maxSeen int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Acquire()
			n := atomic.AddInt32(&cur, 1)
			for {
				old := atomic.LoadInt32(&maxSeen)
				if n <= old || atomic.CompareAndSwapInt32(&maxSeen, old, n) {
					break
				}
			}
			atomic.AddInt32(&cur, -1)
			s.Release()
		}()
	}
	wg.Wait()
	if maxSeen > size {
		t.Fatalf("observed %d concurrent holders, size was %d", maxSeen, size)
	}
}
