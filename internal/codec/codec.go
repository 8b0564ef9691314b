package codec

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/roach88/tracelint/internal/trace"
)

// Format identifies a trace encoding.
type Format string

const (
	FormatSTD      Format = "std"
	FormatRapidBin Format = "rapidbin"
	FormatYAML     Format = "yaml"
)

// ValidFormats lists the encodings accepted by ParseFormat.
var ValidFormats = []Format{FormatSTD, FormatRapidBin, FormatYAML}

// ParseFormat maps a user-supplied name to a Format.
func ParseFormat(name string) (Format, error) {
	for _, f := range ValidFormats {
		if string(f) == strings.ToLower(name) {
			return f, nil
		}
	}
	return "", fmt.Errorf("invalid trace format %q: must be one of %v", name, ValidFormats)
}

var extensions = map[string]Format{
	".std":   FormatSTD,
	".data":  FormatRapidBin,
	".bin":   FormatRapidBin,
	".rapid": FormatRapidBin,
	".yaml":  FormatYAML,
	".yml":   FormatYAML,
}

// Detect picks the encoding of data. The file name's extension wins;
// otherwise the content is sniffed.
func Detect(name string, data []byte) (Format, error) {
	if f, ok := extensions[strings.ToLower(filepath.Ext(name))]; ok {
		return f, nil
	}

	head := bytes.TrimLeft(data, " \t\r\n")
	switch {
	case len(head) == 0:
		return FormatSTD, nil
	case len(head) > 1 && head[0] == 'T' && isDigit(head[1]):
		return FormatSTD, nil
	case bytes.HasPrefix(head, []byte("events:")),
		bytes.HasPrefix(head, []byte("---")),
		bytes.HasPrefix(head, []byte("#")):
		return FormatYAML, nil
	case len(data) >= rapidHeaderSize && (len(data)-rapidHeaderSize)%rapidRecordSize == 0:
		return FormatRapidBin, nil
	}

	return "", &FormatError{
		Code:    ErrCodeUnknownEncoding,
		Format:  "unknown",
		Offset:  -1,
		Message: fmt.Sprintf("cannot determine encoding of %q", name),
	}
}

// Decode decodes data in the given format into events in input order.
// No sequence validation happens here; that is the Trace's job.
func Decode(data []byte, f Format) ([]trace.Event, error) {
	switch f {
	case FormatSTD:
		return DecodeSTD(bytes.NewReader(data))
	case FormatRapidBin:
		return DecodeRapidBin(data)
	case FormatYAML:
		return DecodeYAML(data)
	default:
		return nil, &FormatError{
			Code:    ErrCodeUnknownEncoding,
			Format:  f,
			Offset:  -1,
			Message: "unsupported encoding",
		}
	}
}

// ReadFile reads and decodes a trace file, detecting its encoding.
func ReadFile(path string) ([]trace.Event, Format, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", &FormatError{Code: ErrCodeIO, Format: "unknown", Offset: -1, Message: "cannot read trace", Err: err}
	}
	f, err := Detect(path, data)
	if err != nil {
		return nil, "", err
	}
	events, err := Decode(data, f)
	if err != nil {
		return nil, f, err
	}
	return events, f, nil
}

// Write encodes events in the given format. YAML output is not supported.
func Write(w io.Writer, events []trace.Event, f Format) error {
	switch f {
	case FormatSTD:
		return WriteSTD(w, events)
	case FormatRapidBin:
		return WriteRapidBin(w, events)
	default:
		return fmt.Errorf("encoding %s is not writable", f)
	}
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
