// Package progress implements the thread-safe progress aggregator (C9,
// spec.md §4.9): two monotonic counters (bytes, parts) against a constant
// total, publishing {bytes_delta, parts_delta} events to a subscribed Sink.
// Grounded on this codebase's xaction/registry.go stats counters, adapted
// from atomic.Int64 fields guarded only by atomic ops (no mutex) to
// go.uber.org/atomic, and on cmd/cli's use of vbauerster/mpb/v4 to drive a
// terminal bar from exactly this kind of delta event.
package progress

import (
	"sync"

	"go.uber.org/atomic"
)

// Event is published once per completed part.
type Event struct {
	BytesDelta int64
	PartsDelta int64
}

// Sink receives progress events. Implementations must not block the
// copy -- a terminal bar implementation should buffer or drop rather than
// stall the caller.
type Sink interface {
	OnProgress(Event)
}

// State is the aggregator itself: add_completed(bytes) per spec.md §4.9.
// Safe for concurrent use by multiple goroutines.
type State struct {
	totalParts  int64
	totalBytes  int64
	copiedBytes atomic.Int64
	doneParts   atomic.Int64

	mu    sync.Mutex
	sinks []Sink
}

// NewState creates an aggregator for a copy with the given fixed totals.
func NewState(totalParts int, totalBytes int64) *State {
	return &State{totalParts: int64(totalParts), totalBytes: totalBytes}
}

// Subscribe registers a sink to receive every subsequent event. Not safe to
// call concurrently with AddCompleted.
func (s *State) Subscribe(sink Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinks = append(s.sinks, sink)
}

// AddCompleted atomically records one completed part of the given size and
// publishes the resulting delta to every subscribed sink.
func (s *State) AddCompleted(bytesCopied int64) {
	s.copiedBytes.Add(bytesCopied)
	s.doneParts.Add(1)

	s.mu.Lock()
	sinks := s.sinks
	s.mu.Unlock()
	evt := Event{BytesDelta: bytesCopied, PartsDelta: 1}
	for _, sink := range sinks {
		sink.OnProgress(evt)
	}
}

// TotalParts is the constant part count fixed at construction.
func (s *State) TotalParts() int64 { return s.totalParts }

// TotalBytes is the constant byte count fixed at construction.
func (s *State) TotalBytes() int64 { return s.totalBytes }

// CopiedBytes returns the current running total; readers observe an
// eventually consistent sum with respect to concurrent AddCompleted calls.
func (s *State) CopiedBytes() int64 { return s.copiedBytes.Load() }

// CompletedParts returns the current running count.
func (s *State) CompletedParts() int64 { return s.doneParts.Load() }
