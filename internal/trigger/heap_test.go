package trigger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeapPushPopOrdering(t *testing.T) {
	h := &deadlineHeap{}
	now := time.Now()

	heapPush(h, entry{handle: "c", at: now.Add(3 * time.Hour)})
	heapPush(h, entry{handle: "a", at: now.Add(1 * time.Hour)})
	heapPush(h, entry{handle: "b", at: now.Add(2 * time.Hour)})

	assert.Equal(t, Handle("a"), heapPop(h).handle)
	assert.Equal(t, Handle("b"), heapPop(h).handle)
	assert.Equal(t, Handle("c"), heapPop(h).handle)
	assert.Equal(t, 0, h.Len())
}

func TestHeapRemove(t *testing.T) {
	h := &deadlineHeap{}
	now := time.Now()
	heapPush(h, entry{handle: "a", at: now.Add(time.Hour)})
	heapPush(h, entry{handle: "b", at: now.Add(2 * time.Hour)})

	require.True(t, heapRemove(h, "a"))
	assert.False(t, heapRemove(h, "a"))
	assert.False(t, heapRemove(h, "missing"))
	assert.Equal(t, Handle("b"), heapPop(h).handle)
}
