package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/tracelint/internal/trace"
)

// yamlTrace is the hand-writable trace format:
//
//	events:
//	  - seq: 2
//	    thread: T1
//	    op: acq
//	    operand: L3
//	    loc: 17
//
// seq is optional and defaults to the list position; explicit values may be
// out of order or repeated, which only the normalizer accepts.
type yamlTrace struct {
	Events []yamlEvent `yaml:"events"`
}

type yamlEvent struct {
	Seq     *int64 `yaml:"seq,omitempty"`
	Thread  string `yaml:"thread"`
	Op      string `yaml:"op"`
	Operand string `yaml:"operand,omitempty"`
	Loc     int64  `yaml:"loc,omitempty"`
	Payload string `yaml:"payload,omitempty"`
}

// DecodeYAML decodes a YAML trace document.
func DecodeYAML(data []byte) ([]trace.Event, error) {
	var doc yamlTrace
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, &FormatError{Code: ErrCodeParse, Format: FormatYAML, Offset: -1, Message: "invalid trace document", Err: err}
	}

	events := make([]trace.Event, 0, len(doc.Events))
	for i, y := range doc.Events {
		ev, err := y.toEvent(i)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

func (y yamlEvent) toEvent(i int) (trace.Event, error) {
	ev := trace.Event{Seq: int64(i + 1), Loc: y.Loc, Payload: y.Payload}
	if y.Seq != nil {
		ev.Seq = *y.Seq
	}

	th, err := parseID(y.Thread, "T")
	if err != nil {
		return ev, eventError(i, "thread %q: %v", y.Thread, err)
	}
	ev.Thread = trace.ThreadID(th)

	kind, ok := trace.ParseKind(y.Op)
	if !ok {
		return ev, eventError(i, "unknown operation %q", y.Op)
	}
	ev.Kind = kind

	space := trace.SpaceOf(kind)
	if y.Operand == "" {
		if space != trace.SpaceNone {
			return ev, eventError(i, "operation %s requires an operand", kind)
		}
		return ev, nil
	}
	prefix := space.Prefix()
	if prefix == "" && !isDigit(y.Operand[0]) {
		return ev, operandError(i, nil, "operation %s takes no named operand", kind)
	}
	id, err := parseID(y.Operand, prefix)
	if err != nil {
		return ev, operandError(i, err, "operand %q does not fit operation %s", y.Operand, kind)
	}
	ev.Operand = trace.Operand{Space: space, ID: id}
	return ev, nil
}

// parseID accepts "<prefix><n>" or a bare "<n>".
func parseID(s, prefix string) (int64, error) {
	if prefix != "" {
		s = strings.TrimPrefix(s, prefix)
	}
	return strconv.ParseInt(s, 10, 64)
}

func eventError(i int, format string, args ...any) *FormatError {
	return &FormatError{Code: ErrCodeParse, Format: FormatYAML, Offset: -1,
		Message: fmt.Sprintf("event %d: ", i) + fmt.Sprintf(format, args...)}
}

func operandError(i int, err error, format string, args ...any) *FormatError {
	return &FormatError{Code: ErrCodeBadOperand, Format: FormatYAML, Offset: -1,
		Message: fmt.Sprintf("event %d: ", i) + fmt.Sprintf(format, args...), Err: err}
}
