package wellformed

import (
	"github.com/roach88/tracelint/internal/trace"
)

// Kind classifies a violation. The set is closed.
type Kind string

const (
	// KindMutualExclusion: a thread acquired a lock held by another thread.
	KindMutualExclusion Kind = "mutual_exclusion"

	// KindReentrancy: a thread re-acquired a non-reentrant lock it holds.
	KindReentrancy Kind = "reentrancy"

	// KindUnmatchedRelease: a release of a lock the thread does not hold.
	KindUnmatchedRelease Kind = "unmatched_release"

	// KindDanglingAcquire: a lock still held when the trace ends.
	KindDanglingAcquire Kind = "dangling_acquire"

	// KindUnwrittenRead: a read of a memory location nobody wrote before.
	// Only reported when Config.CheckUnwrittenReads is set.
	KindUnwrittenRead Kind = "unwritten_read"
)

// Kinds lists every violation kind in report order.
var Kinds = []Kind{
	KindMutualExclusion,
	KindReentrancy,
	KindUnmatchedRelease,
	KindDanglingAcquire,
	KindUnwrittenRead,
}

// Reason refines KindUnmatchedRelease.
type Reason string

const (
	// ReasonNotAcquired: the lock was never acquired before the release.
	ReasonNotAcquired Reason = "not_acquired"

	// ReasonAlreadyReleased: the lock was free again after an earlier release.
	ReasonAlreadyReleased Reason = "already_released"

	// ReasonNotOwner: the lock is held, but by another thread.
	ReasonNotOwner Reason = "not_owner"
)

// Violation is one finding of the checker. Violations are plain data.
type Violation struct {
	Kind   Kind
	Reason Reason

	// Seqs lists the sequence numbers involved. Seqs[0] is the offending
	// event; the optional second entry is the related event (the owner's
	// acquire, or the earlier release).
	Seqs []int64

	Thread  trace.ThreadID
	Operand trace.Operand

	// Owner is the thread holding the lock, for mutual exclusion,
	// reentrancy, dangling acquire and not_owner releases.
	Owner trace.ThreadID

	Message string
}

// Seq returns the offending event's sequence number.
func (v Violation) Seq() int64 {
	return v.Seqs[0]
}

// CountByKind tallies violations per kind.
func CountByKind(vs []Violation) map[Kind]int {
	counts := make(map[Kind]int, len(Kinds))
	for _, v := range vs {
		counts[v.Kind]++
	}
	return counts
}
