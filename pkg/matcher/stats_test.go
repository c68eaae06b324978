package matcher

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStats_SnapshotAccumulates(t *testing.T) {
	var s Stats
	s.RecordSeen(100)
	s.RecordScanned(100, 2)
	s.RecordSeen(50)

	snap := s.Snapshot()
	assert.Equal(t, int64(2), snap.BlobsSeen)
	assert.Equal(t, int64(1), snap.BlobsScanned)
	assert.Equal(t, int64(150), snap.BytesSeen)
	assert.Equal(t, int64(100), snap.BytesScanned)
	assert.Equal(t, int64(2), snap.MatchesFound)
}

func TestStats_ConcurrentRecording(t *testing.T) {
	var s Stats
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.RecordSeen(1)
			s.RecordScanned(1, 1)
		}()
	}
	wg.Wait()

	snap := s.Snapshot()
	assert.Equal(t, int64(100), snap.BlobsSeen)
	assert.Equal(t, int64(100), snap.BlobsScanned)
	assert.Equal(t, int64(100), snap.MatchesFound)
}
