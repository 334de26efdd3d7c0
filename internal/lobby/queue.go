package lobby

import (
	"slices"

	"github.com/victornm/quizduel/internal/domain"
)

// Queue holds waiting participants in arrival order. It is not safe for
// concurrent use; the orchestrator serializes access.
type Queue struct {
	waiting []domain.Participant
	index   map[string]struct{}
}

func NewQueue() *Queue {
	return &Queue{
		index: make(map[string]struct{}),
	}
}

// Enqueue appends p to the tail. It reports false if p is already queued.
func (q *Queue) Enqueue(p domain.Participant) bool {
	if q.Contains(p.ID) {
		return false
	}

	q.waiting = append(q.waiting, p)
	q.index[p.ID] = struct{}{}
	return true
}

// Remove drops the participant with the given id, keeping the order of the others.
func (q *Queue) Remove(id string) bool {
	if !q.Contains(id) {
		return false
	}

	q.waiting = slices.DeleteFunc(q.waiting, func(p domain.Participant) bool {
		return p.ID == id
	})
	delete(q.index, id)
	return true
}

func (q *Queue) Contains(id string) bool {
	_, ok := q.index[id]
	return ok
}

func (q *Queue) Len() int {
	return len(q.waiting)
}

// PairAll removes the two oldest participants while at least two are waiting.
// An odd participant stays queued for the next pass.
func (q *Queue) PairAll() [][2]domain.Participant {
	pairs := make([][2]domain.Participant, 0, len(q.waiting)/2)
	for len(q.waiting) >= 2 {
		a, b := q.waiting[0], q.waiting[1]
		q.waiting = q.waiting[2:]
		delete(q.index, a.ID)
		delete(q.index, b.ID)
		pairs = append(pairs, [2]domain.Participant{a, b})
	}

	if len(q.waiting) == 0 {
		q.waiting = nil
	}

	return pairs
}
