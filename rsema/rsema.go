// Package rsema implements a counting semaphore whose size can change while
// in use. The window scheduler resizes it once per window as the
// concurrency adapter recommends a new target_concurrency, without tearing
// down and recreating a worker pool.
//
// Adapted from aistore's cmn.DynSemaphore (cmn/sync.go).
package rsema

import "sync"

type Semaphore struct {
	size int
	cur  int
	c    *sync.Cond
	mu   sync.Mutex
}

func New(n int) *Semaphore {
	if n < 1 {
		n = 1
	}
	s := &Semaphore{size: n}
	s.c = sync.NewCond(&s.mu)
	return s
}

func (s *Semaphore) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// SetSize changes the semaphore's capacity. Callers already holding a
// permit are unaffected; future Acquire calls observe the new size.
func (s *Semaphore) SetSize(n int) {
	if n < 1 {
		n = 1
	}
	s.mu.Lock()
	s.size = n
	s.mu.Unlock()
	s.c.Broadcast()
}

func (s *Semaphore) Acquire() {
	s.mu.Lock()
	for s.cur+1 > s.size {
		s.c.Wait()
	}
	s.cur++
	s.mu.Unlock()
}

func (s *Semaphore) Release() {
	s.mu.Lock()
	if s.cur == 0 {
		s.mu.Unlock()
		panic("rsema: release without matching acquire")
	}
	s.cur--
	s.c.Signal()
	s.mu.Unlock()
}
