// Package dedup provides sharded, concurrency-safe sets and maps keyed by
// types.BlobID. Scanning workers discover the same blob repeatedly (once per
// path/commit it appears under); these structures let every worker check and
// record "have we already scanned this content" without serializing on a
// single lock.
package dedup

import (
	"sync"

	"github.com/noseyparker-go/noseyparker/pkg/types"
)

const numShards = 256

// shardIndex picks a shard from the first byte of the blob id, giving an
// even split across the 256 possible values with no hashing overhead.
func shardIndex(id types.BlobID) byte {
	return id[0]
}

// BlobIDSet is a concurrency-safe set of blob IDs, sharded by the first byte
// of the ID to reduce lock contention under parallel insertion.
type BlobIDSet struct {
	shards [numShards]blobIDSetShard
}

type blobIDSetShard struct {
	mu   sync.Mutex
	seen map[types.BlobID]struct{}
}

// NewBlobIDSet creates an empty set.
func NewBlobIDSet() *BlobIDSet {
	s := &BlobIDSet{}
	for i := range s.shards {
		s.shards[i].seen = make(map[types.BlobID]struct{})
	}
	return s
}

// Insert adds id to the set and reports whether it was newly inserted (false
// if it was already present).
func (s *BlobIDSet) Insert(id types.BlobID) bool {
	shard := &s.shards[shardIndex(id)]
	shard.mu.Lock()
	defer shard.mu.Unlock()
	if _, ok := shard.seen[id]; ok {
		return false
	}
	shard.seen[id] = struct{}{}
	return true
}

// Contains reports whether id is present.
func (s *BlobIDSet) Contains(id types.BlobID) bool {
	shard := &s.shards[shardIndex(id)]
	shard.mu.Lock()
	defer shard.mu.Unlock()
	_, ok := shard.seen[id]
	return ok
}

// Len returns the number of distinct blob IDs recorded. It takes every
// shard's lock in turn; callers should not treat the result as more than an
// approximation if insertions race with it.
func (s *BlobIDSet) Len() int {
	total := 0
	for i := range s.shards {
		s.shards[i].mu.Lock()
		total += len(s.shards[i].seen)
		s.shards[i].mu.Unlock()
	}
	return total
}
