package afcore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestByteAllocatorReusesFreedBuffer(t *testing.T) {
	a := newByteAllocator(64)

	buf, err := a.Alloc(32)
	require.NoError(t, err)
	assert.Len(t, buf, 32)
	a.Free(buf)

	assert.Len(t, a.freeList, 1, "expected 1 entry on the free list")

	buf2, err := a.Alloc(16)
	require.NoError(t, err)
	assert.Len(t, buf2, 16)
	assert.Empty(t, a.freeList, "expected the free list drained")
}

func TestByteAllocatorRejectsOversizedRequest(t *testing.T) {
	a := newByteAllocator(16)
	_, err := a.Alloc(32)
	assert.True(t, IsCode(err, ErrMemory), "expected ErrMemory for an oversized request")
}
