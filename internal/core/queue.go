package core

import (
	"container/heap"

	"plazacore/pkg/domain"
)

// RequestQueue orders pending requests by ascending priority key, lowest key
// first. Requests displaced mid-run re-enter through Enqueue and compete on
// their original key.
type RequestQueue struct {
	items requestHeap
}

// NewRequestQueue constructs an empty queue.
func NewRequestQueue() *RequestQueue {
	return &RequestQueue{}
}

// Load replaces the queue contents with the given pending set.
func (q *RequestQueue) Load(requests []domain.Request) {
	q.items = make(requestHeap, len(requests))
	copy(q.items, requests)
	heap.Init(&q.items)
}

// Enqueue inserts a request into the running queue.
func (q *RequestQueue) Enqueue(req domain.Request) {
	heap.Push(&q.items, req)
}

// Next pops the lowest-key request. The second return is false when the
// queue is drained.
func (q *RequestQueue) Next() (domain.Request, bool) {
	if q.items.Len() == 0 {
		return domain.Request{}, false
	}
	return heap.Pop(&q.items).(domain.Request), true
}

// Len reports the number of queued requests.
func (q *RequestQueue) Len() int {
	return q.items.Len()
}

type requestHeap []domain.Request

func (h requestHeap) Len() int { return len(h) }

func (h requestHeap) Less(i, j int) bool {
	if h[i].PriorityKey != h[j].PriorityKey {
		return h[i].PriorityKey < h[j].PriorityKey
	}
	if !h[i].SubmittedAt.Equal(h[j].SubmittedAt) {
		return h[i].SubmittedAt.Before(h[j].SubmittedAt)
	}
	return h[i].ID < h[j].ID
}

func (h requestHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *requestHeap) Push(x any) { *h = append(*h, x.(domain.Request)) }

func (h *requestHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
