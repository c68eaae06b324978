package matcher

import "sync/atomic"

// Stats accumulates aggregate counters across a scan. It is safe for
// concurrent use by multiple worker goroutines sharing one Matcher.
type Stats struct {
	blobsSeen      int64
	blobsScanned   int64
	blobsTruncated int64
	bytesSeen      int64
	bytesScanned   int64
	matchesFound   int64
}

// RecordSeen records a blob that was handed to the matcher but may have
// been skipped (e.g. dedup hit) before scanning.
func (s *Stats) RecordSeen(numBytes int64) {
	atomic.AddInt64(&s.blobsSeen, 1)
	atomic.AddInt64(&s.bytesSeen, numBytes)
}

// RecordScanned records a blob that was actually run through the matcher.
func (s *Stats) RecordScanned(numBytes int64, numMatches int) {
	atomic.AddInt64(&s.blobsScanned, 1)
	atomic.AddInt64(&s.bytesScanned, numBytes)
	atomic.AddInt64(&s.matchesFound, int64(numMatches))
}

// RecordTruncated records a blob whose scan stopped before covering its
// full content, either because it exceeded MaxScanBytes or because its
// per-blob match cap was hit.
func (s *Stats) RecordTruncated() {
	atomic.AddInt64(&s.blobsTruncated, 1)
}

// Snapshot is a point-in-time copy of Stats's counters.
type Snapshot struct {
	BlobsSeen      int64
	BlobsScanned   int64
	BlobsTruncated int64
	BytesSeen      int64
	BytesScanned   int64
	MatchesFound   int64
}

// Snapshot reads the current counter values.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		BlobsSeen:      atomic.LoadInt64(&s.blobsSeen),
		BlobsScanned:   atomic.LoadInt64(&s.blobsScanned),
		BlobsTruncated: atomic.LoadInt64(&s.blobsTruncated),
		BytesSeen:      atomic.LoadInt64(&s.bytesSeen),
		BytesScanned:   atomic.LoadInt64(&s.bytesScanned),
		MatchesFound:   atomic.LoadInt64(&s.matchesFound),
	}
}
