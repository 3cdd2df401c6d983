package wintrace

import "container/heap"

// mergeItem is one pending record from one per-CPU buffer sequence,
// ordered by timestamp for the k-way merge of spec §4.3's "Record walk"
// step: each CPU's buffers are individually in time order, and the merge
// produces one globally time-ordered stream without re-reading the file.
type mergeItem struct {
	timestamp uint64
	cpu       int
	offset    int // opaque position handed back to the caller's advance func
}

// mergeHeap is a container/heap.Interface over pending merge items,
// ordered by timestamp.
type mergeHeap []mergeItem

func (h mergeHeap) Len() int            { return len(h) }
func (h mergeHeap) Less(i, j int) bool  { return h[i].timestamp < h[j].timestamp }
func (h mergeHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *mergeHeap) Push(x interface{}) { *h = append(*h, x.(mergeItem)) }
func (h *mergeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// merger drives a timestamp-ordered merge across per-CPU buffer
// sequences. It is intentionally generic over how records are located
// within a buffer: advance(cpu) returns the timestamp and opaque offset of
// the next unconsumed record for that CPU, or ok=false when that CPU's
// buffers are exhausted.
type merger struct {
	h       mergeHeap
	advance func(cpu int) (timestamp uint64, offset int, ok bool)
}

// newMerger seeds the merge heap with the first pending record from each
// CPU in cpus.
func newMerger(cpus []int, advance func(cpu int) (uint64, int, bool)) *merger {
	m := &merger{advance: advance}
	heap.Init(&m.h)
	for _, cpu := range cpus {
		if ts, off, ok := advance(cpu); ok {
			heap.Push(&m.h, mergeItem{timestamp: ts, cpu: cpu, offset: off})
		}
	}
	return m
}

// next pops the globally-earliest pending record, refills from that CPU's
// sequence, and returns the popped item's cpu and offset. ok is false once
// every sequence is exhausted.
func (m *merger) next() (cpu int, offset int, ok bool) {
	if m.h.Len() == 0 {
		return 0, 0, false
	}
	item := heap.Pop(&m.h).(mergeItem)
	if ts, off, ok := m.advance(item.cpu); ok {
		heap.Push(&m.h, mergeItem{timestamp: ts, cpu: item.cpu, offset: off})
	}
	return item.cpu, item.offset, true
}
