package matcher

import "github.com/noseyparker-go/noseyparker/pkg/types"

// deduplicator suppresses duplicate matches within a single blob's scan,
// keyed by structural ID (rule + blob + exact offsets). The same byte range
// can be reported twice when two prelude hits recover to the same anchored
// match, which happens with overlapping rule patterns.
type deduplicator struct {
	seen map[string]bool
}

func newDeduplicator() *deduplicator {
	return &deduplicator{seen: make(map[string]bool)}
}

func (d *deduplicator) isDuplicate(m *types.Match) bool {
	return d.seen[m.StructuralID]
}

func (d *deduplicator) add(m *types.Match) {
	d.seen[m.StructuralID] = true
}
