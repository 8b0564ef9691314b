// Package store keeps a SQLite history of analysis runs.
//
// Each run stores its identity (a UUIDv7 run id), the input it analyzed
// (path, format, trace digest), summary counts, the canonical JSON report
// and one row per finding. The history is append-only.
//
// # Ordering
//
// Runs are ordered by their insertion sequence (seq INTEGER), never by
// wall-clock time, so listings are stable across machines and clock
// changes. Findings keep the order the analyses reported them in.
package store
