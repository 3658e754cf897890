package db

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChunk(t *testing.T) {
	ids := make([]string, 250)
	for i := range ids {
		ids[i] = fmt.Sprintf("store-%d", i)
	}

	chunks := Chunk(ids, 0)
	assert.Len(t, chunks, 3)
	assert.Len(t, chunks[0], MaxIDsPerQuery)
	assert.Len(t, chunks[1], MaxIDsPerQuery)
	assert.Len(t, chunks[2], 250-2*MaxIDsPerQuery)
	assert.Equal(t, "store-98", chunks[1][0])

	var total int
	for _, c := range chunks {
		total += len(c)
	}
	assert.Equal(t, len(ids), total)
}

func TestChunk_Edges(t *testing.T) {
	assert.Nil(t, Chunk([]int(nil), 10))
	assert.Equal(t, [][]int{{1, 2, 3}}, Chunk([]int{1, 2, 3}, 3))
	assert.Equal(t, [][]int{{1, 2}, {3}}, Chunk([]int{1, 2, 3}, 2))
	assert.Len(t, Chunk(make([]int, 98), 0), 1)
	assert.Len(t, Chunk(make([]int, 99), 0), 2)
}
