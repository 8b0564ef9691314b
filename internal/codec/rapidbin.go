package codec

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/tracelint/internal/trace"
)

// RapidBin layout: an 18-byte big-endian header
//
//	int16 threads | int32 locks | int32 variables | int64 events
//
// followed by one big-endian int64 per event packing
//
//	bits  0-9   thread
//	bits 10-13  operation
//	bits 14-47  operand
//	bits 48-62  source location
const (
	rapidHeaderSize = 18
	rapidRecordSize = 8

	numThreadsMask = 0x7FFF
	numLocksMask   = 0x7FFFFFFF
	numVarsMask    = 0x7FFFFFFF
	numEventsMask  = 0x7FFFFFFFFFFFFFFF

	threadBits      = 10
	threadOffset    = 0
	operationBits   = 4
	operationOffset = threadOffset + threadBits
	operandBits     = 34
	operandOffset   = operationOffset + operationBits
	locationBits    = 15
	locationOffset  = operandOffset + operandBits

	threadMask    = (1<<threadBits - 1) << threadOffset
	operationMask = (1<<operationBits - 1) << operationOffset
	operandMask   = (1<<operandBits - 1) << operandOffset
	locationMask  = (1<<locationBits - 1) << locationOffset
)

// rapidOps maps RapidBin operation codes to kinds; the index is the code.
var rapidOps = []trace.Kind{
	trace.KindAcquire,
	trace.KindRelease,
	trace.KindRead,
	trace.KindWrite,
	trace.KindFork,
	trace.KindJoin,
	trace.KindBegin,
	trace.KindEnd,
	trace.KindRequest,
	trace.KindBranch,
}

// RapidHeader is the metadata block at the start of a RapidBin file.
type RapidHeader struct {
	Threads   int16
	Locks     int32
	Variables int32
	Events    int64
}

// DecodeRapidBin decodes a RapidBin trace. Events get 1-based sequence
// numbers in record order.
func DecodeRapidBin(data []byte) ([]trace.Event, error) {
	if len(data) < rapidHeaderSize {
		return nil, offsetError(FormatRapidBin, ErrCodeTruncated, int64(len(data)),
			"header needs %d bytes, have %d", rapidHeaderSize, len(data))
	}
	hdr := RapidHeader{
		Threads:   int16(binary.BigEndian.Uint16(data[0:2])) & numThreadsMask,
		Locks:     int32(binary.BigEndian.Uint32(data[2:6])) & numLocksMask,
		Variables: int32(binary.BigEndian.Uint32(data[6:10])) & numVarsMask,
		Events:    int64(binary.BigEndian.Uint64(data[10:18])) & numEventsMask,
	}
	slog.Info("rapidbin header",
		"threads", hdr.Threads,
		"locks", hdr.Locks,
		"variables", hdr.Variables,
		"events", hdr.Events)

	body := data[rapidHeaderSize:]
	if rem := len(body) % rapidRecordSize; rem != 0 {
		return nil, offsetError(FormatRapidBin, ErrCodeTruncated, int64(len(data)-rem),
			"trailing %d bytes do not form a complete record", rem)
	}

	n := len(body) / rapidRecordSize
	if int64(n) != hdr.Events {
		slog.Warn("rapidbin event count differs from header", "header", hdr.Events, "records", n)
	}

	events := make([]trace.Event, 0, n)
	for i := 0; i < n; i++ {
		raw := int64(binary.BigEndian.Uint64(body[i*rapidRecordSize:]))
		code := (raw & operationMask) >> operationOffset
		if code >= int64(len(rapidOps)) {
			return nil, offsetError(FormatRapidBin, ErrCodeBadOpcode, int64(rapidHeaderSize+i*rapidRecordSize),
				"unknown operation code %d", code)
		}
		kind := rapidOps[code]
		ev := trace.Event{
			Seq:     int64(i + 1),
			Thread:  trace.ThreadID((raw & threadMask) >> threadOffset),
			Kind:    kind,
			Operand: trace.Operand{Space: trace.SpaceOf(kind), ID: (raw & operandMask) >> operandOffset},
			Loc:     (raw & locationMask) >> locationOffset,
		}
		slog.Debug("rapidbin event", "event", ev.String())
		events = append(events, ev)
	}
	return events, nil
}

// WriteRapidBin encodes events as RapidBin. Fields wider than their bit
// allotment are rejected rather than truncated.
func WriteRapidBin(w io.Writer, events []trace.Event) error {
	codes := make(map[trace.Kind]int64, len(rapidOps))
	for code, k := range rapidOps {
		codes[k] = int64(code)
	}

	threads := make(map[trace.ThreadID]bool)
	locks := make(map[int64]bool)
	vars := make(map[int64]bool)
	records := make([]uint64, 0, len(events))
	for _, e := range events {
		code, ok := codes[e.Kind]
		if !ok {
			return fmt.Errorf("event %d: operation %s has no rapidbin code", e.Seq, e.Kind)
		}
		switch {
		case e.Thread < 0 || int64(e.Thread) >= 1<<threadBits:
			return fmt.Errorf("event %d: thread %d does not fit in %d bits", e.Seq, e.Thread, threadBits)
		case e.Operand.ID < 0 || e.Operand.ID >= 1<<operandBits:
			return fmt.Errorf("event %d: operand %d does not fit in %d bits", e.Seq, e.Operand.ID, operandBits)
		case e.Loc < 0 || e.Loc >= 1<<locationBits:
			return fmt.Errorf("event %d: location %d does not fit in %d bits", e.Seq, e.Loc, locationBits)
		}

		threads[e.Thread] = true
		switch e.Operand.Space {
		case trace.SpaceLock:
			locks[e.Operand.ID] = true
		case trace.SpaceMemory:
			vars[e.Operand.ID] = true
		}

		raw := int64(e.Thread)<<threadOffset |
			code<<operationOffset |
			e.Operand.ID<<operandOffset |
			e.Loc<<locationOffset
		records = append(records, uint64(raw))
	}

	bw := bufio.NewWriter(w)
	hdr := make([]byte, rapidHeaderSize)
	binary.BigEndian.PutUint16(hdr[0:2], uint16(len(threads)))
	binary.BigEndian.PutUint32(hdr[2:6], uint32(len(locks)))
	binary.BigEndian.PutUint32(hdr[6:10], uint32(len(vars)))
	binary.BigEndian.PutUint64(hdr[10:18], uint64(len(records)))
	if _, err := bw.Write(hdr); err != nil {
		return err
	}

	var rec [rapidRecordSize]byte
	for _, r := range records {
		binary.BigEndian.PutUint64(rec[:], r)
		if _, err := bw.Write(rec[:]); err != nil {
			return err
		}
	}
	return bw.Flush()
}
