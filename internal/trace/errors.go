package trace

import (
	"errors"
	"fmt"
)

// MalformedReason categorizes a broken sequence invariant.
type MalformedReason string

const (
	// ReasonDuplicate means two events share a sequence number.
	ReasonDuplicate MalformedReason = "duplicate"

	// ReasonDecreasing means a sequence number is lower than its predecessor.
	ReasonDecreasing MalformedReason = "decreasing"
)

// MalformedTraceError reports decoded events whose sequence numbers are not
// unique and strictly increasing. Re-running with normalization enabled
// repairs the order.
type MalformedTraceError struct {
	// Index is the position of the offending event in input order.
	Index int

	Seq     int64
	PrevSeq int64
	Reason  MalformedReason
}

func (e *MalformedTraceError) Error() string {
	return fmt.Sprintf("malformed trace: event %d has %s sequence %d after %d (enable normalization to reorder)",
		e.Index, e.Reason, e.Seq, e.PrevSeq)
}

// IsMalformed reports whether err is or wraps a MalformedTraceError.
func IsMalformed(err error) bool {
	var me *MalformedTraceError
	return errors.As(err, &me)
}
