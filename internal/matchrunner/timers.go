package matchrunner

import (
	"container/heap"
	"time"
)

// timerEntry is one outstanding "timer <id> <ms>ms" request. Game servers
// may arm the same id more than once before it fires; each arm is an
// independent entry, so both eventually fire rather than the later call
// replacing the earlier one.
type timerEntry struct {
	deadline time.Time
	id       uint32
}

type timerQueue []timerEntry

func (q timerQueue) Len() int            { return len(q) }
func (q timerQueue) Less(i, j int) bool  { return q[i].deadline.Before(q[j].deadline) }
func (q timerQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *timerQueue) Push(x interface{}) { *q = append(*q, x.(timerEntry)) }
func (q *timerQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// timerSet is a min-heap of pending timers ordered by deadline.
type timerSet struct {
	q timerQueue
}

func newTimerSet() *timerSet {
	ts := &timerSet{q: timerQueue{}}
	heap.Init(&ts.q)
	return ts
}

// Arm schedules a new timer to fire delay from now for id.
func (ts *timerSet) Arm(id uint32, delay time.Duration) {
	heap.Push(&ts.q, timerEntry{deadline: time.Now().Add(delay), id: id})
}

// Empty reports whether there are no pending timers.
func (ts *timerSet) Empty() bool { return ts.q.Len() == 0 }

// NextDeadline returns the earliest pending deadline. Only valid when
// !Empty().
func (ts *timerSet) NextDeadline() time.Time { return ts.q[0].deadline }

// PopDue removes and returns the ids of every timer whose deadline has
// passed as of now.
func (ts *timerSet) PopDue(now time.Time) []uint32 {
	var due []uint32
	for ts.q.Len() > 0 && !ts.q[0].deadline.After(now) {
		due = append(due, heap.Pop(&ts.q).(timerEntry).id)
	}
	return due
}
