package matcher

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noseyparker-go/noseyparker/pkg/types"
)

func TestDeduplicator(t *testing.T) {
	d := newDeduplicator()
	m := &types.Match{StructuralID: "abc"}

	assert.False(t, d.isDuplicate(m))
	d.add(m)
	assert.True(t, d.isDuplicate(m))

	other := &types.Match{StructuralID: "def"}
	assert.False(t, d.isDuplicate(other))
}
