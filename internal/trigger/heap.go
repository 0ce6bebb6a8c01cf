package trigger

import "container/heap"

// deadlineHeap 待触发条目的小顶堆，按触发时刻升序
type deadlineHeap []entry

func (h deadlineHeap) Len() int           { return len(h) }
func (h deadlineHeap) Less(i, j int) bool { return h[i].at.Before(h[j].at) }
func (h deadlineHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *deadlineHeap) Push(x any) {
	*h = append(*h, x.(entry))
}

func (h *deadlineHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

func heapPush(h *deadlineHeap, e entry) {
	heap.Push(h, e)
}

// heapPop 堆为空时 panic
func heapPop(h *deadlineHeap) entry {
	return heap.Pop(h).(entry)
}

// heapRemove 移除指定 handle 的条目，不存在时返回 false
func heapRemove(h *deadlineHeap, handle Handle) bool {
	for i, e := range *h {
		if e.handle == handle {
			heap.Remove(h, i)
			return true
		}
	}
	return false
}
