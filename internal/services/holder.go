package services

import "sync/atomic"

// SnapshotHolder publishes the latest snapshot to readers. Single writer
// (startup load or refresh), many concurrent readers.
type SnapshotHolder struct {
	v atomic.Pointer[Snapshot]
}

// Replace swaps in a new snapshot.
func (h *SnapshotHolder) Replace(s *Snapshot) {
	h.v.Store(s)
}

// Current returns the latest snapshot, or nil before the first ingest.
func (h *SnapshotHolder) Current() *Snapshot {
	return h.v.Load()
}
