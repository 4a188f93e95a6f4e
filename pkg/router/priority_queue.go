package router

import (
	"errors"
)

type PriorityQueueNode[T comparable] struct {
	Rank float64 // f = g + h
	Tie  float64 // h, breaks equal ranks so expansion order is deterministic
	Item T
}

// MinHeap binary heap priorityqueue
type MinHeap[T comparable] struct {
	heap []PriorityQueueNode[T]
	pos  map[T]int
}

func NewMinHeap[T comparable]() *MinHeap[T] {
	return &MinHeap[T]{
		heap: make([]PriorityQueueNode[T], 0),
		pos:  make(map[T]int),
	}
}

func (h *MinHeap[T]) less(i, j int) bool {
	if h.heap[i].Rank != h.heap[j].Rank {
		return h.heap[i].Rank < h.heap[j].Rank
	}
	return h.heap[i].Tie < h.heap[j].Tie
}

func (h *MinHeap[T]) parent(index int) int {
	return (index - 1) / 2
}

func (h *MinHeap[T]) leftChild(index int) int {
	return 2*index + 1
}

func (h *MinHeap[T]) rightChild(index int) int {
	return 2*index + 2
}

func (h *MinHeap[T]) swap(i, j int) {
	h.heap[i], h.heap[j] = h.heap[j], h.heap[i]
	h.pos[h.heap[i].Item] = i
	h.pos[h.heap[j].Item] = j
}

func (h *MinHeap[T]) heapifyUp(index int) {
	for index != 0 && h.less(index, h.parent(index)) {
		h.swap(index, h.parent(index))
		index = h.parent(index)
	}
}

func (h *MinHeap[T]) heapifyDown(index int) {
	smallest := index
	left := h.leftChild(index)
	right := h.rightChild(index)

	if left < len(h.heap) && h.less(left, smallest) {
		smallest = left
	}
	if right < len(h.heap) && h.less(right, smallest) {
		smallest = right
	}
	if smallest != index {
		h.swap(index, smallest)
		h.heapifyDown(smallest)
	}
}

func (h *MinHeap[T]) isEmpty() bool {
	return len(h.heap) == 0
}

func (h *MinHeap[T]) Size() int {
	return len(h.heap)
}

func (h *MinHeap[T]) Insert(key PriorityQueueNode[T]) {
	h.heap = append(h.heap, key)
	index := h.Size() - 1
	h.pos[key.Item] = index
	h.heapifyUp(index)
}

func (h *MinHeap[T]) ExtractMin() (PriorityQueueNode[T], error) {
	if h.isEmpty() {
		return PriorityQueueNode[T]{}, errors.New("heap is empty")
	}
	root := h.heap[0]
	h.heap[0] = h.heap[h.Size()-1]
	h.pos[h.heap[0].Item] = 0
	h.heap = h.heap[:h.Size()-1]
	delete(h.pos, root.Item)
	if !h.isEmpty() {
		h.heapifyDown(0)
	}
	return root, nil
}

// DecreaseKey updates the rank of an item already in the heap. O(logN).
func (h *MinHeap[T]) DecreaseKey(item PriorityQueueNode[T]) error {
	index, ok := h.pos[item.Item]
	if !ok || index >= h.Size() || item.Rank > h.heap[index].Rank {
		return errors.New("invalid index or new value")
	}
	h.heap[index] = item
	h.heapifyUp(index)
	return nil
}
