// Package wellformed validates the lock discipline of a trace.
//
// Each lock is tracked by a two-state machine, Free or Held(thread, seq),
// driven by the trace's events in sequence order. The checker never stops
// early: every violation in the trace is reported, so one broken region
// cannot hide another.
package wellformed

import (
	"fmt"

	"github.com/roach88/tracelint/internal/trace"
)

// Config selects optional checker behavior. The zero value treats every
// lock as non-reentrant and skips memory checks.
type Config struct {
	// ReentrantAll makes every lock reentrant.
	ReentrantAll bool

	// Reentrant lists individual reentrant locks.
	Reentrant map[trace.ResourceID]bool

	// CheckUnwrittenReads reports reads of never-written memory.
	CheckUnwrittenReads bool
}

// IsReentrant reports whether r may be re-acquired by its owner.
func (c Config) IsReentrant(r trace.ResourceID) bool {
	return c.ReentrantAll || c.Reentrant[r]
}

// lockState is Free when held is false. depth counts nested holds of a
// reentrant lock.
type lockState struct {
	held       bool
	owner      trace.ThreadID
	acquiredAt int64
	depth      int

	everAcquired bool
	lastRelease  int64
}

type checker struct {
	cfg        Config
	locks      map[trace.ResourceID]*lockState
	written    map[int64]bool
	violations []Violation
}

// Check runs the state machine over tr and returns every violation, in
// the order they were detected. Dangling acquires come last, ordered by
// lock id. Check never fails; a nil result means the trace is well formed.
func Check(tr *trace.Trace, cfg Config) []Violation {
	c := &checker{
		cfg:     cfg,
		locks:   make(map[trace.ResourceID]*lockState),
		written: make(map[int64]bool),
	}

	for i := 0; i < tr.Len(); i++ {
		e := tr.At(i)
		switch e.Kind {
		case trace.KindAcquire, trace.KindRelease:
			// Lock events naming a non-lock operand have no lock to track.
			r, ok := e.Resource()
			if !ok {
				continue
			}
			if e.Kind == trace.KindAcquire {
				c.acquire(e, r)
			} else {
				c.release(e, r)
			}
		case trace.KindWrite:
			c.written[e.Operand.ID] = true
		case trace.KindRead:
			if cfg.CheckUnwrittenReads && !c.written[e.Operand.ID] {
				c.report(Violation{
					Kind:    KindUnwrittenRead,
					Seqs:    []int64{e.Seq},
					Thread:  e.Thread,
					Operand: e.Operand,
					Message: fmt.Sprintf("thread T%d read memory location %s which was not written to", e.Thread, e.Operand),
				})
			}
		}
	}

	for _, r := range tr.Resources() {
		st := c.locks[r]
		if st == nil || !st.held {
			continue
		}
		c.report(Violation{
			Kind:    KindDanglingAcquire,
			Seqs:    []int64{st.acquiredAt},
			Thread:  st.owner,
			Operand: lockOperand(r),
			Owner:   st.owner,
			Message: fmt.Sprintf("thread T%d still holds lock L%d (acquired at #%d) at the end of the trace", st.owner, r, st.acquiredAt),
		})
	}

	return c.violations
}

func (c *checker) state(r trace.ResourceID) *lockState {
	st, ok := c.locks[r]
	if !ok {
		st = &lockState{}
		c.locks[r] = st
	}
	return st
}

func (c *checker) acquire(e trace.Event, r trace.ResourceID) {
	st := c.state(r)

	switch {
	case !st.held:
		*st = lockState{
			held:         true,
			owner:        e.Thread,
			acquiredAt:   e.Seq,
			depth:        1,
			everAcquired: true,
			lastRelease:  st.lastRelease,
		}

	case st.owner != e.Thread:
		// The conflicting acquire did not take effect; the owner keeps the lock.
		c.report(Violation{
			Kind:    KindMutualExclusion,
			Seqs:    []int64{e.Seq, st.acquiredAt},
			Thread:  e.Thread,
			Operand: e.Operand,
			Owner:   st.owner,
			Message: fmt.Sprintf("thread T%d tried to acquire lock L%d which is held by thread T%d (acquired at #%d)",
				e.Thread, r, st.owner, st.acquiredAt),
		})

	case c.cfg.IsReentrant(r):
		st.depth++

	default:
		c.report(Violation{
			Kind:    KindReentrancy,
			Seqs:    []int64{e.Seq, st.acquiredAt},
			Thread:  e.Thread,
			Operand: e.Operand,
			Owner:   st.owner,
			Message: fmt.Sprintf("thread T%d re-acquired non-reentrant lock L%d it already holds (acquired at #%d)",
				e.Thread, r, st.acquiredAt),
		})
	}
}

func (c *checker) release(e trace.Event, r trace.ResourceID) {
	st := c.state(r)

	switch {
	case st.held && st.owner == e.Thread:
		st.depth--
		if st.depth == 0 {
			st.held = false
			st.lastRelease = e.Seq
		}

	case st.held:
		c.report(Violation{
			Kind:    KindUnmatchedRelease,
			Reason:  ReasonNotOwner,
			Seqs:    []int64{e.Seq, st.acquiredAt},
			Thread:  e.Thread,
			Operand: e.Operand,
			Owner:   st.owner,
			Message: fmt.Sprintf("thread T%d tried to release lock L%d which is owned by thread T%d", e.Thread, r, st.owner),
		})

	case st.everAcquired:
		c.report(Violation{
			Kind:    KindUnmatchedRelease,
			Reason:  ReasonAlreadyReleased,
			Seqs:    []int64{e.Seq, st.lastRelease},
			Thread:  e.Thread,
			Operand: e.Operand,
			Message: fmt.Sprintf("thread T%d tried to release lock L%d which was already released (at #%d)", e.Thread, r, st.lastRelease),
		})

	default:
		c.report(Violation{
			Kind:    KindUnmatchedRelease,
			Reason:  ReasonNotAcquired,
			Seqs:    []int64{e.Seq},
			Thread:  e.Thread,
			Operand: e.Operand,
			Message: fmt.Sprintf("thread T%d tried to release lock L%d which was not previously acquired", e.Thread, r),
		})
	}
}

func (c *checker) report(v Violation) {
	c.violations = append(c.violations, v)
}

func lockOperand(r trace.ResourceID) trace.Operand {
	return trace.Operand{Space: trace.SpaceLock, ID: int64(r)}
}
