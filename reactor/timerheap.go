// File: reactor/timerheap.go
//
// Min-heap of timer entries keyed by trigger time. Entries whose
// watcher has been removed are skipped lazily on pop.

package reactor

import (
	"container/heap"
	"time"

	"github.com/momentics/coopio/api"
)

type timerEntry struct {
	id     api.WatchID
	at     time.Time
	period time.Duration
}

type timerHeap []*timerEntry

func (h timerHeap) Len() int           { return len(h) }
func (h timerHeap) Less(i, j int) bool { return h[i].at.Before(h[j].at) }
func (h timerHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *timerHeap) Push(x any)        { *h = append(*h, x.(*timerEntry)) }
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

func (h *timerHeap) push(e *timerEntry) { heap.Push(h, e) }

func (h *timerHeap) peek() *timerEntry {
	if len(*h) == 0 {
		return nil
	}
	return (*h)[0]
}

func (h *timerHeap) pop() *timerEntry {
	return heap.Pop(h).(*timerEntry)
}
