// Package codec decodes raw trace encodings into events.
//
// Three encodings are supported:
//
//   - STD text, one `T<thread>|<op>(<operand>)|<loc>` line per event
//   - RapidBin, a packed big-endian binary format (18-byte header, then
//     8 bytes per event)
//   - YAML, a hand-writable list of events with explicit sequence numbers
//
// Decoding either yields every event of the input or fails with a
// *FormatError; partially decoded traces never reach the analyses.
// Decoders assign sequence numbers (STD and RapidBin use the 1-based
// record position) but do not validate them.
package codec
