package internaldefs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCounterDefsGroupedByName(t *testing.T) {
	seen := map[string]bool{}
	prev := ""
	for _, def := range CounterDefs {
		if def.Name != prev {
			assert.False(t, seen[def.Name], "series %s split across the list", def.Name)
			seen[def.Name] = true
			prev = def.Name
		}
	}
}

func TestCounterDefsUnique(t *testing.T) {
	ids := map[any]bool{}
	for _, def := range CounterDefs {
		assert.False(t, ids[def.ID], "duplicate id %d", def.ID)
		ids[def.ID] = true
	}
	assert.Len(t, HistogramBounds, len(HistogramBoundSuffix))
}

func TestBuckets(t *testing.T) {
	assert.Equal(t, [8]uint64{1, 2, 0, 0, 0, 0, 0, 0}, NormalizeBuckets([]uint64{1, 2}))
	assert.Equal(t, [8]uint64{1, 2, 3, 4, 5, 6, 7, 8}, NormalizeBuckets([]uint64{1, 2, 3, 4, 5, 6, 7, 8, 9}))
	assert.Equal(t, [8]uint64{1, 3, 6, 6, 6, 6, 6, 7}, CumulativeBuckets([8]uint64{1, 2, 3, 0, 0, 0, 0, 1}))
}
