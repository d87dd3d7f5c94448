package messenger

import (
	"time"

	"github.com/kongor-net/agql/internal/core"
)

// queue holds records waiting for dispatch. Submission volume for a game
// query client is small (tens to low hundreds of outstanding requests, not
// a high-throughput broker), so a linear scan for the next record to
// dispatch is simpler and just as correct as a heap, and it makes the aging
// rule trivial to apply at pop time rather than having to re-balance a heap
// whenever a record's effective priority changes with the clock.
type queue struct {
	records []*core.Record
}

// push appends a record to the queue, FIFO within whatever priority it
// will later be popped at.
func (q *queue) push(r *core.Record) {
	q.records = append(q.records, r)
}

// popHighest removes and returns the record with the highest effective
// priority (after aging), breaking ties by submission order (lowest
// sequence index first), satisfying the priority + FIFO + aging ordering
// guarantees of spec §4.4 and §5.
func (q *queue) popHighest(agingAfter time.Duration) *core.Record {
	if len(q.records) == 0 {
		return nil
	}

	bestIdx := 0
	bestPrio := q.records[0].EffectivePriority(agingAfter)
	for i := 1; i < len(q.records); i++ {
		p := q.records[i].EffectivePriority(agingAfter)
		if p > bestPrio || (p == bestPrio && q.records[i].Seq < q.records[bestIdx].Seq) {
			bestIdx = i
			bestPrio = p
		}
	}

	r := q.records[bestIdx]
	q.records = append(q.records[:bestIdx], q.records[bestIdx+1:]...)
	return r
}

func (q *queue) len() int {
	return len(q.records)
}
