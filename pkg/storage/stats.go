package storage

import "sync/atomic"

// Stats tracks the compaction-relevant counters a box's storage layer
// accumulates over its lifetime: how many times it has been compacted,
// how many bytes that reclaimed, and how many frames were dropped as
// dead in the process. Box.Stats reports them; compaction strategies do
// not read them (they are given the keystore's live and deleted counts).
type Stats struct {
	compactions     atomic.Int64
	bytesReclaimed  atomic.Int64
	framesDiscarded atomic.Int64
}

// RecordCompaction updates the counters after a compaction finishes.
func (s *Stats) RecordCompaction(bytesBefore, bytesAfter int64, framesBefore, framesAfter int) {
	s.compactions.Add(1)
	if reclaimed := bytesBefore - bytesAfter; reclaimed > 0 {
		s.bytesReclaimed.Add(reclaimed)
	}
	if discarded := framesBefore - framesAfter; discarded > 0 {
		s.framesDiscarded.Add(int64(discarded))
	}
}

func (s *Stats) Compactions() int64     { return s.compactions.Load() }
func (s *Stats) BytesReclaimed() int64  { return s.bytesReclaimed.Load() }
func (s *Stats) FramesDiscarded() int64 { return s.framesDiscarded.Load() }
