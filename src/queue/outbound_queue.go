// Package queue holds the pending outbound messages of every live connection.
package queue

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

var (
	ErrUnknownConnection = errors.New("connection has no outbound queue")
	ErrQueueOverflow     = errors.New("outbound queue overflow")
)

// OverflowPolicy decides what Enqueue does with a full queue.
type OverflowPolicy string

const (
	DropOldest OverflowPolicy = "drop_oldest"
	DropNewest OverflowPolicy = "drop_newest"
	Disconnect OverflowPolicy = "disconnect"
)

// ParsePolicy validates a configured policy name.
func ParsePolicy(s string) (OverflowPolicy, error) {
	switch p := OverflowPolicy(s); p {
	case DropOldest, DropNewest, Disconnect:
		return p, nil
	}
	return "", fmt.Errorf("unknown queue overflow policy: %q", s)
}

// -----------------------------------------------------------------------------

// OutboundQueueTable maps connection ids to pending messages.
// A maxDepth of 0 leaves queues unbounded.
type OutboundQueueTable struct {
	mu       sync.RWMutex
	queues   map[uint64][]string
	maxDepth int
	policy   OverflowPolicy
	dropped  atomic.Int64
}

func NewOutboundQueueTable(maxDepth int, policy OverflowPolicy) *OutboundQueueTable {
	if policy == "" {
		policy = DropOldest
	}
	return &OutboundQueueTable{
		queues:   make(map[uint64][]string),
		maxDepth: maxDepth,
		policy:   policy,
	}
}

// -----------------------------------------------------------------------------

// Create registers an empty queue for id.
func (q *OutboundQueueTable) Create(id uint64) {
	q.mu.Lock()
	q.queues[id] = nil
	q.mu.Unlock()
}

// Remove drops the queue of id and anything still pending in it.
func (q *OutboundQueueTable) Remove(id uint64) {
	q.mu.Lock()
	delete(q.queues, id)
	q.mu.Unlock()
}

// Exists reports whether id still has a queue.
func (q *OutboundQueueTable) Exists(id uint64) bool {
	q.mu.RLock()
	_, ok := q.queues[id]
	q.mu.RUnlock()
	return ok
}

// -----------------------------------------------------------------------------

// Enqueue appends msg to the queue of id. ErrUnknownConnection means the
// connection is already gone and can be ignored. ErrQueueOverflow means the
// Disconnect policy removed the queue.
func (q *OutboundQueueTable) Enqueue(id uint64, msg string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	pending, ok := q.queues[id]
	if !ok {
		return ErrUnknownConnection
	}

	if q.maxDepth > 0 && len(pending) >= q.maxDepth {
		q.dropped.Add(1)
		switch q.policy {
		case DropNewest:
			return nil
		case Disconnect:
			delete(q.queues, id)
			return ErrQueueOverflow
		default:
			// shift left instead of reslicing so the backing array does not grow forever
			copy(pending, pending[1:])
			pending = pending[:len(pending)-1]
		}
	}

	q.queues[id] = append(pending, msg)
	return nil
}

// -----------------------------------------------------------------------------

// Replace overwrites the whole pending queue of id with msgs. When queues are
// bounded only the newest maxDepth messages are kept.
func (q *OutboundQueueTable) Replace(id uint64, msgs []string) error {
	if q.maxDepth > 0 && len(msgs) > q.maxDepth {
		q.dropped.Add(int64(len(msgs) - q.maxDepth))
		msgs = msgs[len(msgs)-q.maxDepth:]
	}
	fresh := make([]string, len(msgs))
	copy(fresh, msgs)

	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.queues[id]; !ok {
		return ErrUnknownConnection
	}
	q.queues[id] = fresh
	return nil
}

// -----------------------------------------------------------------------------

// DrainAndClear takes every pending message of id. ok is false once the
// queue has been removed.
func (q *OutboundQueueTable) DrainAndClear(id uint64) (msgs []string, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	pending, ok := q.queues[id]
	if !ok {
		return nil, false
	}
	if len(pending) > 0 {
		q.queues[id] = nil
	}
	return pending, true
}

// -----------------------------------------------------------------------------

// Len returns the pending count of id.
func (q *OutboundQueueTable) Len(id uint64) int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.queues[id])
}

// Stats returns the number of live queues and the total pending messages.
func (q *OutboundQueueTable) Stats() (connections int, pending int) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	for _, p := range q.queues {
		pending += len(p)
	}
	return len(q.queues), pending
}

// Dropped is the number of messages discarded by the overflow policy.
func (q *OutboundQueueTable) Dropped() int64 {
	return q.dropped.Load()
}
