package node

import (
	"github.com/sarchlab/netemu/hooking"
)

// HookPosQueuePush marks a job appended to a queue.
var HookPosQueuePush = &hooking.HookPos{Name: "Queue Push"}

// HookPosQueuePop marks a job taken from a queue.
var HookPosQueuePop = &hooking.HookPos{Name: "Queue Pop"}

// Queue is an unbounded FIFO of jobs. It is owned by one node and is not safe
// for concurrent use.
type Queue struct {
	hooking.HookableBase

	jobs []*Job
	head int
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Push appends a job.
func (q *Queue) Push(j *Job) {
	q.jobs = append(q.jobs, j)

	if q.NumHooks() > 0 {
		q.InvokeHook(hooking.HookCtx{
			Domain: q,
			Pos:    HookPosQueuePush,
			Item:   j,
		})
	}
}

// Pop removes and returns the oldest job, or nil if the queue is empty.
func (q *Queue) Pop() *Job {
	if q.head == len(q.jobs) {
		return nil
	}

	j := q.jobs[q.head]
	q.jobs[q.head] = nil
	q.head++

	if q.head == len(q.jobs) {
		q.jobs = q.jobs[:0]
		q.head = 0
	} else if q.head > 64 && q.head*2 > len(q.jobs) {
		n := copy(q.jobs, q.jobs[q.head:])
		q.jobs = q.jobs[:n]
		q.head = 0
	}

	if q.NumHooks() > 0 {
		q.InvokeHook(hooking.HookCtx{
			Domain: q,
			Pos:    HookPosQueuePop,
			Item:   j,
		})
	}

	return j
}

// Peek returns the oldest job without removing it.
func (q *Queue) Peek() *Job {
	if q.head == len(q.jobs) {
		return nil
	}

	return q.jobs[q.head]
}

// Len returns the number of queued jobs.
func (q *Queue) Len() int {
	return len(q.jobs) - q.head
}

// Remove drops every queued job for which match returns true and returns
// how many were dropped.
func (q *Queue) Remove(match func(*Job) bool) int {
	kept := q.jobs[:q.head]
	removed := 0

	for _, j := range q.jobs[q.head:] {
		if match(j) {
			removed++
			continue
		}

		kept = append(kept, j)
	}

	clear(q.jobs[len(kept):])
	q.jobs = kept

	return removed
}

// Clear drops every job.
func (q *Queue) Clear() {
	clear(q.jobs)
	q.jobs = q.jobs[:0]
	q.head = 0
}
