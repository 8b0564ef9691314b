// Package trace defines the event model shared by every analysis.
//
// A Trace is built once, either directly from decoded events (New) or by
// the normalizer, and is read-only afterwards. The sequence number of an
// event is the only global order the analyses trust: New rejects input
// whose sequence numbers are not unique and strictly increasing rather
// than guessing an order.
//
// Operands live in three namespaces. Lock operations (acq, rel, req) name
// a lock, which is the event's resource; reads and writes name a memory
// location; fork and join name the child thread.
package trace
