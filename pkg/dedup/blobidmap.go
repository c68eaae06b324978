package dedup

import (
	"sync"

	"github.com/noseyparker-go/noseyparker/pkg/types"
)

// BlobIDMap is a concurrency-safe map keyed by types.BlobID, sharded the
// same way as BlobIDSet. It is used to accumulate per-blob values (e.g.
// match counts, provenance sets) discovered concurrently by enumerator and
// matcher workers.
type BlobIDMap[V any] struct {
	shards [numShards]blobIDMapShard[V]
}

type blobIDMapShard[V any] struct {
	mu   sync.Mutex
	data map[types.BlobID]V
}

// NewBlobIDMap creates an empty map.
func NewBlobIDMap[V any]() *BlobIDMap[V] {
	m := &BlobIDMap[V]{}
	for i := range m.shards {
		m.shards[i].data = make(map[types.BlobID]V)
	}
	return m
}

// Get returns the value stored for id, if any.
func (m *BlobIDMap[V]) Get(id types.BlobID) (V, bool) {
	shard := &m.shards[shardIndex(id)]
	shard.mu.Lock()
	defer shard.mu.Unlock()
	v, ok := shard.data[id]
	return v, ok
}

// Set stores v for id, overwriting any previous value.
func (m *BlobIDMap[V]) Set(id types.BlobID, v V) {
	shard := &m.shards[shardIndex(id)]
	shard.mu.Lock()
	defer shard.mu.Unlock()
	shard.data[id] = v
}

// Update atomically applies fn to the current value for id (the zero value
// if absent) and stores the result. It is the building block for
// read-modify-write accumulation, such as appending to a bounded provenance
// list, without races between concurrent workers touching the same blob.
func (m *BlobIDMap[V]) Update(id types.BlobID, fn func(current V, existed bool) V) {
	shard := &m.shards[shardIndex(id)]
	shard.mu.Lock()
	defer shard.mu.Unlock()
	current, existed := shard.data[id]
	shard.data[id] = fn(current, existed)
}

// Len returns the number of distinct keys recorded.
func (m *BlobIDMap[V]) Len() int {
	total := 0
	for i := range m.shards {
		m.shards[i].mu.Lock()
		total += len(m.shards[i].data)
		m.shards[i].mu.Unlock()
	}
	return total
}

// Range calls fn for every entry. fn must not call back into the map.
func (m *BlobIDMap[V]) Range(fn func(id types.BlobID, v V)) {
	for i := range m.shards {
		m.shards[i].mu.Lock()
		for id, v := range m.shards[i].data {
			fn(id, v)
		}
		m.shards[i].mu.Unlock()
	}
}
