// Package timers is a keyed one-shot scheduler driven by the engine tick.
// Timers carry a Key instead of a closure; the fire handler re-reads state and
// acts only if the handle it stored is still the one that fired.
package timers

import (
	"container/heap"
	"time"

	"noescape.gg/internal/sim/engine/kernel/model"
)

type Kind uint8

const (
	KindExpire Kind = iota + 1
	KindUnblock
	KindZone
	KindMarker
)

func (k Kind) String() string {
	switch k {
	case KindExpire:
		return "expire"
	case KindUnblock:
		return "unblock"
	case KindZone:
		return "zone"
	case KindMarker:
		return "marker"
	default:
		return "unknown"
	}
}

type Key struct {
	Kind  Kind
	Actor string
	Block model.Kind
	// ID is the zone or marker id for zone/marker timers.
	ID string
}

// Handle identifies one scheduled timer. The zero handle is never issued.
type Handle = uint64

type Fired struct {
	Handle Handle
	Key    Key
	At     time.Time
}

type entry struct {
	handle Handle
	key    Key
	at     time.Time
	index  int
}

type Scheduler struct {
	next    Handle
	q       queue
	pending map[Handle]*entry
}

func New() *Scheduler {
	return &Scheduler{pending: map[Handle]*entry{}}
}

func (s *Scheduler) At(at time.Time, key Key) Handle {
	s.next++
	e := &entry{handle: s.next, key: key, at: at}
	heap.Push(&s.q, e)
	s.pending[e.handle] = e
	return e.handle
}

// Cancel drops a pending timer. Canceling an unknown or fired handle is a no-op.
func (s *Scheduler) Cancel(h Handle) bool {
	e, ok := s.pending[h]
	if !ok {
		return false
	}
	delete(s.pending, h)
	heap.Remove(&s.q, e.index)
	return true
}

func (s *Scheduler) Pending(h Handle) bool {
	_, ok := s.pending[h]
	return ok
}

// Due pops every timer whose deadline is at or before now, oldest first.
func (s *Scheduler) Due(now time.Time) []Fired {
	var out []Fired
	for s.q.Len() > 0 {
		e := s.q[0]
		if e.at.After(now) {
			break
		}
		heap.Pop(&s.q)
		delete(s.pending, e.handle)
		out = append(out, Fired{Handle: e.handle, Key: e.key, At: e.at})
	}
	return out
}

// NextAt returns the earliest pending deadline.
func (s *Scheduler) NextAt() (time.Time, bool) {
	if s.q.Len() == 0 {
		return time.Time{}, false
	}
	return s.q[0].at, true
}

func (s *Scheduler) Len() int { return len(s.pending) }

type queue []*entry

func (q queue) Len() int { return len(q) }

func (q queue) Less(i, j int) bool {
	if q[i].at.Equal(q[j].at) {
		return q[i].handle < q[j].handle
	}
	return q[i].at.Before(q[j].at)
}

func (q queue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *queue) Push(x any) {
	e := x.(*entry)
	e.index = len(*q)
	*q = append(*q, e)
}

func (q *queue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*q = old[:n-1]
	return e
}
