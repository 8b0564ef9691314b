package trace

import "fmt"

// ThreadID identifies the thread that executed an event.
type ThreadID int64

// ResourceID identifies a lock.
type ResourceID int64

// Kind is the operation an event records.
type Kind uint8

const (
	KindOther Kind = iota
	KindAcquire
	KindRelease
	KindRead
	KindWrite
	KindFork
	KindJoin
	KindRequest
	KindBegin
	KindEnd
	KindBranch
)

var kindNames = [...]string{
	KindOther:   "other",
	KindAcquire: "acq",
	KindRelease: "rel",
	KindRead:    "r",
	KindWrite:   "w",
	KindFork:    "fork",
	KindJoin:    "join",
	KindRequest: "req",
	KindBegin:   "begin",
	KindEnd:     "end",
	KindBranch:  "branch",
}

// String returns the STD mnemonic of the kind.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseKind maps an STD mnemonic back to a Kind.
func ParseKind(s string) (Kind, bool) {
	for k, name := range kindNames {
		if name == s {
			return Kind(k), true
		}
	}
	return KindOther, false
}

// Space is the namespace an operand identifier lives in.
type Space uint8

const (
	SpaceNone Space = iota
	SpaceLock
	SpaceMemory
	SpaceThread
)

// Prefix returns the STD identifier prefix for the space ("L", "V", "T").
func (s Space) Prefix() string {
	switch s {
	case SpaceLock:
		return "L"
	case SpaceMemory:
		return "V"
	case SpaceThread:
		return "T"
	default:
		return ""
	}
}

// SpaceOf returns the operand namespace an operation of kind k refers to.
func SpaceOf(k Kind) Space {
	switch k {
	case KindAcquire, KindRelease, KindRequest:
		return SpaceLock
	case KindRead, KindWrite:
		return SpaceMemory
	case KindFork, KindJoin:
		return SpaceThread
	default:
		return SpaceNone
	}
}

// Operand is the target of an operation: a lock, a memory location or a
// thread. The zero value is "no operand".
type Operand struct {
	Space Space
	ID    int64
}

// String renders the operand the way STD writes it, e.g. "L3".
func (o Operand) String() string {
	if o.Space == SpaceNone {
		return "none"
	}
	return fmt.Sprintf("%s%d", o.Space.Prefix(), o.ID)
}

// Event is one trace record. Events are values and never mutated once a
// Trace has been built from them.
type Event struct {
	// Seq is the observation position. Within a Trace it is unique and
	// strictly increasing.
	Seq int64

	Thread  ThreadID
	Kind    Kind
	Operand Operand

	// Loc is the source location recorded by the tracer. It is carried
	// through untouched and never used for ordering.
	Loc int64

	// Payload is free-form data the core does not interpret.
	Payload string
}

// Resource returns the lock the event operates on. ok is false for events
// that are not lock operations.
func (e Event) Resource() (ResourceID, bool) {
	if e.Operand.Space != SpaceLock {
		return 0, false
	}
	return ResourceID(e.Operand.ID), true
}

// String formats the event in a compact STD-like form.
func (e Event) String() string {
	return fmt.Sprintf("#%d T%d|%s(%s)|%d", e.Seq, e.Thread, e.Kind, e.Operand, e.Loc)
}
