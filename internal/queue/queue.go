// Package queue provides the worklist used by the fixpoint computations.
package queue

import "errors"

// Queue is a worklist of unique elements. An element that is pushed while it
// is still enqueued is not added a second time. Elements are taken in FIFO
// order unless LIFO is set.
type Queue[E comparable] struct {
	LIFO bool

	elements []E
	head     int
	queued   map[E]struct{}
}

// Push enqueues e and reports whether it was not already enqueued.
func (q *Queue[E]) Push(e E) bool {
	if q.queued == nil {
		q.queued = make(map[E]struct{})
	}
	if _, found := q.queued[e]; found {
		return false
	}

	q.queued[e] = struct{}{}
	q.elements = append(q.elements, e)
	return true
}

func (q *Queue[E]) Empty() bool {
	return q.Len() == 0
}

func (q *Queue[E]) Len() int {
	return len(q.elements) - q.head
}

var ErrEmpty = errors.New("Queue is empty")

func (q *Queue[E]) Pop() E {
	if q.Empty() {
		panic(ErrEmpty)
	}

	var e E
	if q.LIFO {
		e = q.elements[len(q.elements)-1]
		q.elements = q.elements[:len(q.elements)-1]
	} else {
		e = q.elements[q.head]
		q.head++
		// Reclaim the consumed prefix once it dominates the backing array.
		if q.head > 64 && q.head*2 > len(q.elements) {
			q.elements = append(q.elements[:0], q.elements[q.head:]...)
			q.head = 0
		}
	}

	delete(q.queued, e)
	return e
}
