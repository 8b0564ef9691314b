package codec

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"

	"github.com/roach88/tracelint/internal/trace"
)

// STD lines look like
//
//	T6|acq(L9)|59
//	T6|w(V4.0[2])|60
//	T6|fork(7)|61
//
// i.e. thread, operation, operand and source location. A bare numeric
// operand takes its namespace from the operation.

type tokenKind uint8

const (
	tokPipe tokenKind = iota
	tokLParen
	tokRParen
	tokKeyword
	tokIdent
	tokNumber
)

func (k tokenKind) String() string {
	switch k {
	case tokPipe:
		return "'|'"
	case tokLParen:
		return "'('"
	case tokRParen:
		return "')'"
	case tokKeyword:
		return "operation"
	case tokIdent:
		return "identifier"
	default:
		return "number"
	}
}

type token struct {
	kind  tokenKind
	col   int
	text  string
	space trace.Space // tokIdent only
	num   int64       // tokIdent and tokNumber
	extra string      // field suffix of a memory identifier
}

func (t token) describe() string {
	if t.text != "" {
		return fmt.Sprintf("%q", t.text)
	}
	return t.kind.String()
}

// DecodeSTD decodes an STD text trace. Events get 1-based sequence numbers
// in line order; blank lines are skipped.
func DecodeSTD(r io.Reader) ([]trace.Event, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var events []trace.Event
	line := 0
	for scanner.Scan() {
		line++
		tokens, err := lexLine(scanner.Text(), line)
		if err != nil {
			return nil, err
		}
		if len(tokens) == 0 {
			continue
		}
		ev, err := parseLine(tokens, line)
		if err != nil {
			return nil, err
		}
		ev.Seq = int64(len(events) + 1)
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, &FormatError{Code: ErrCodeIO, Format: FormatSTD, Line: line + 1, Offset: -1, Message: "read failed", Err: err}
	}
	return events, nil
}

func lexLine(s string, line int) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(s) {
		c := s[i]
		col := i + 1
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\f':
			i++
		case c == '|':
			tokens = append(tokens, token{kind: tokPipe, col: col})
			i++
		case c == '(':
			tokens = append(tokens, token{kind: tokLParen, col: col})
			i++
		case c == ')':
			tokens = append(tokens, token{kind: tokRParen, col: col})
			i++
		case isDigit(c):
			j := scanDigits(s, i)
			n, err := strconv.ParseInt(s[i:j], 10, 64)
			if err != nil {
				return nil, lineError(FormatSTD, ErrCodeParse, line, col, "number %s out of range", s[i:j])
			}
			tokens = append(tokens, token{kind: tokNumber, col: col, text: s[i:j], num: n})
			i = j
		case (c == 'T' || c == 'L' || c == 'V') && i+1 < len(s) && isDigit(s[i+1]):
			tok, next, err := lexIdent(s, i, line)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, tok)
			i = next
		case c >= 'a' && c <= 'z':
			j := i
			for j < len(s) && s[j] >= 'a' && s[j] <= 'z' {
				j++
			}
			word := s[i:j]
			if _, ok := trace.ParseKind(word); !ok {
				return nil, lineError(FormatSTD, ErrCodeLex, line, col, "unknown operation %q", word)
			}
			tokens = append(tokens, token{kind: tokKeyword, col: col, text: word})
			i = j
		default:
			return nil, lineError(FormatSTD, ErrCodeLex, line, col, "unexpected character %q", rune(c))
		}
	}
	return tokens, nil
}

// lexIdent scans T<n>, L<n> or V<n>[.<f>[<i>]] starting at s[i].
func lexIdent(s string, i, line int) (token, int, error) {
	col := i + 1
	var space trace.Space
	switch s[i] {
	case 'T':
		space = trace.SpaceThread
	case 'L':
		space = trace.SpaceLock
	default:
		space = trace.SpaceMemory
	}

	j := scanDigits(s, i+1)
	n, err := strconv.ParseInt(s[i+1:j], 10, 64)
	if err != nil {
		return token{}, 0, lineError(FormatSTD, ErrCodeParse, line, col, "identifier %s out of range", s[i:j])
	}
	tok := token{kind: tokIdent, col: col, space: space, num: n}

	// Field access suffix on memory locations: V3.1[4]
	if space == trace.SpaceMemory && j < len(s) && s[j] == '.' {
		k := scanDigits(s, j+1)
		if k == j+1 || k >= len(s) || s[k] != '[' {
			return token{}, 0, lineError(FormatSTD, ErrCodeLex, line, j+1, "malformed field suffix")
		}
		m := scanDigits(s, k+1)
		if m == k+1 || m >= len(s) || s[m] != ']' {
			return token{}, 0, lineError(FormatSTD, ErrCodeLex, line, k+1, "malformed field index")
		}
		tok.extra = s[j : m+1]
		j = m + 1
	}
	tok.text = s[i:j]
	return tok, j, nil
}

func scanDigits(s string, i int) int {
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	return i
}

// parseLine applies the grammar
//
//	event := THREAD '|' OP '(' operand ')' '|' NUMBER
func parseLine(tokens []token, line int) (trace.Event, error) {
	p := &lineParser{tokens: tokens, line: line}

	var ev trace.Event

	th, err := p.expect(tokIdent)
	if err != nil {
		return ev, err
	}
	if th.space != trace.SpaceThread {
		return ev, lineError(FormatSTD, ErrCodeParse, line, th.col, "expected thread identifier, found %s", th.describe())
	}
	ev.Thread = trace.ThreadID(th.num)

	if _, err := p.expect(tokPipe); err != nil {
		return ev, err
	}

	op, err := p.expect(tokKeyword)
	if err != nil {
		return ev, err
	}
	ev.Kind, _ = trace.ParseKind(op.text)

	if _, err := p.expect(tokLParen); err != nil {
		return ev, err
	}

	operand, err := p.next()
	if err != nil {
		return ev, err
	}
	want := trace.SpaceOf(ev.Kind)
	switch operand.kind {
	case tokNumber:
		ev.Operand = trace.Operand{Space: want, ID: operand.num}
	case tokIdent:
		if operand.space != want {
			return ev, lineError(FormatSTD, ErrCodeBadOperand, line, operand.col,
				"operation %s cannot take operand %s", ev.Kind, operand.text)
		}
		ev.Operand = trace.Operand{Space: operand.space, ID: operand.num}
		ev.Payload = operand.extra
	default:
		return ev, lineError(FormatSTD, ErrCodeParse, line, operand.col, "expected operand, found %s", operand.describe())
	}

	if _, err := p.expect(tokRParen); err != nil {
		return ev, err
	}
	if _, err := p.expect(tokPipe); err != nil {
		return ev, err
	}
	loc, err := p.expect(tokNumber)
	if err != nil {
		return ev, err
	}
	ev.Loc = loc.num

	if p.pos < len(p.tokens) {
		extra := p.tokens[p.pos]
		return ev, lineError(FormatSTD, ErrCodeParse, line, extra.col, "unexpected %s after event", extra.describe())
	}
	return ev, nil
}

type lineParser struct {
	tokens []token
	pos    int
	line   int
}

func (p *lineParser) next() (token, error) {
	if p.pos >= len(p.tokens) {
		return token{}, lineError(FormatSTD, ErrCodeParse, p.line, 0, "unexpected end of line")
	}
	t := p.tokens[p.pos]
	p.pos++
	return t, nil
}

func (p *lineParser) expect(kind tokenKind) (token, error) {
	if p.pos >= len(p.tokens) {
		return token{}, lineError(FormatSTD, ErrCodeParse, p.line, 0, "unexpected end of line, expected %s", kind)
	}
	t := p.tokens[p.pos]
	if t.kind != kind {
		return token{}, lineError(FormatSTD, ErrCodeParse, p.line, t.col, "expected %s, found %s", kind, t.describe())
	}
	p.pos++
	return t, nil
}

var fieldSuffix = regexp.MustCompile(`^\.[0-9]+\[[0-9]+\]$`)

// WriteSTD renders events as STD text, one line per event. Sequence
// numbers are implied by line order and not written.
func WriteSTD(w io.Writer, events []trace.Event) error {
	bw := bufio.NewWriter(w)
	for _, e := range events {
		operand := strconv.FormatInt(e.Operand.ID, 10)
		if e.Operand.Space != trace.SpaceNone {
			operand = e.Operand.String()
			if e.Operand.Space == trace.SpaceMemory && fieldSuffix.MatchString(e.Payload) {
				operand += e.Payload
			}
		}
		if _, err := fmt.Fprintf(bw, "T%d|%s(%s)|%d\n", e.Thread, e.Kind, operand, e.Loc); err != nil {
			return err
		}
	}
	return bw.Flush()
}
