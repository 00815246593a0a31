package engine

import "sync/atomic"

// Sequencer hands out the monotonic event_sequence values stamped onto
// emitted records. Sequence numbers encode processing order and exist only
// to break exact-timestamp ties deterministically.
//
// Thread-safety: atomic, though the replay loop is single-threaded.
type Sequencer struct {
	seq atomic.Int64
}

// NewSequencer creates a sequencer starting at 0.
func NewSequencer() *Sequencer {
	return &Sequencer{}
}

// Next returns the next sequence number, starting from 0.
func (s *Sequencer) Next() int64 {
	return s.seq.Add(1) - 1
}

// Current returns how many sequence numbers have been issued.
func (s *Sequencer) Current() int64 {
	return s.seq.Load()
}
