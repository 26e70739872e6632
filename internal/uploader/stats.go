package uploader

import (
	"sync/atomic"
)

// Stats aggregates upload activity across workers. The stat manager reads
// and resets the tick-scoped counters on each push.
type Stats struct {
	filesSeen     atomic.Int64
	bytesUploaded atomic.Int64
	errors        atomic.Int64
}

// NewStats returns zeroed counters.
func NewStats() *Stats { return &Stats{} }

// FileSeen counts one scanned candidate file.
func (s *Stats) FileSeen() { s.filesSeen.Add(1) }

// BytesUploaded counts acknowledged part bytes.
func (s *Stats) BytesUploaded(n int64) { s.bytesUploaded.Add(n) }

// Error counts one failed file workflow.
func (s *Stats) Error() { s.errors.Add(1) }

// Snapshot returns the counters accumulated since the last call and resets
// them.
func (s *Stats) Snapshot() (filesSeen, bytesUploaded, errors int64) {
	return s.filesSeen.Swap(0), s.bytesUploaded.Swap(0), s.errors.Swap(0)
}
