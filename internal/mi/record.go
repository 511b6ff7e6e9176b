package mi

import (
	"fmt"
	"strconv"
	"strings"
)

// RecordType is the kind of an MI output record
type RecordType int

const (
	// ResultRecord is a command reply: ^done, ^running, ^error, ...
	ResultRecord RecordType = iota
	// ExecAsync is a '*' record: *running, *stopped
	ExecAsync
	// StatusAsync is a '+' record, e.g. +download progress
	StatusAsync
	// NotifyAsync is a '=' record: =thread-created, =breakpoint-modified, ...
	NotifyAsync
	// ConsoleStream is '~' text meant for the user
	ConsoleStream
	// TargetStream is '@' output of the target program
	TargetStream
	// LogStream is '&' gdb's own diagnostics
	LogStream
)

func (t RecordType) String() string {
	switch t {
	case ResultRecord:
		return "result"
	case ExecAsync:
		return "exec"
	case StatusAsync:
		return "status"
	case NotifyAsync:
		return "notify"
	case ConsoleStream:
		return "console"
	case TargetStream:
		return "target"
	case LogStream:
		return "log"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// Tuple is an MI {name=value,...} value
type Tuple map[string]any

// List is an MI [value,...] or [name=value,...] value. Names of list
// results are dropped.
type List []any

// Record is one parsed line of MI output
type Record struct {
	Type RecordType
	// Token is the command token echoed by gdb, or -1
	Token int64
	// Class is the result or async class (done, error, stopped, ...)
	Class string
	// Results holds the record's name=value pairs
	Results Tuple
	// Text is the unescaped payload of a stream record
	Text string
}

// IsStream reports whether the record is console, target or log output
func (r *Record) IsStream() bool {
	return r.Type == ConsoleStream || r.Type == TargetStream || r.Type == LogStream
}

// ErrorMessage returns the msg field of an ^error record
func (r *Record) ErrorMessage() string {
	return r.Results.String("msg")
}

// String returns the string value of key, or ""
func (t Tuple) String(key string) string {
	s, _ := t[key].(string)
	return s
}

// Int returns the integer value of key, or 0
func (t Tuple) Int(key string) int {
	n, err := strconv.Atoi(t.String(key))
	if err != nil {
		return 0
	}
	return n
}

// Tuple returns the tuple value of key, or nil
func (t Tuple) Tuple(key string) Tuple {
	v, _ := t[key].(Tuple)
	return v
}

// List returns the list value of key, or nil
func (t Tuple) List(key string) List {
	v, _ := t[key].(List)
	return v
}

// Tuples returns the tuple elements of a list, skipping anything else
func (l List) Tuples() []Tuple {
	out := make([]Tuple, 0, len(l))
	for _, v := range l {
		if t, ok := v.(Tuple); ok {
			out = append(out, t)
		}
	}
	return out
}

// Strings returns the string elements of a list, skipping anything else
func (l List) Strings() []string {
	out := make([]string, 0, len(l))
	for _, v := range l {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// IsPrompt reports whether line is the "(gdb)" prompt that ends a response
func IsPrompt(line string) bool {
	return strings.TrimSpace(line) == "(gdb)"
}

// ParseRecord parses one line of MI output
func ParseRecord(line string) (*Record, error) {
	line = strings.TrimRight(line, "\r\n")
	p := &parser{s: line}

	rec := &Record{Token: -1}
	if start := p.pos; p.skipDigits() {
		tok, err := strconv.ParseInt(line[start:p.pos], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad token in %q: %w", line, err)
		}
		rec.Token = tok
	}

	if p.eof() {
		return nil, fmt.Errorf("empty MI record: %q", line)
	}

	prefix := p.next()
	switch prefix {
	case '~', '@', '&':
		rec.Type = map[byte]RecordType{'~': ConsoleStream, '@': TargetStream, '&': LogStream}[prefix]
		text, err := p.cstring()
		if err != nil {
			return nil, fmt.Errorf("bad stream record %q: %w", line, err)
		}
		rec.Text = text
		return rec, nil

	case '^':
		rec.Type = ResultRecord
	case '*':
		rec.Type = ExecAsync
	case '+':
		rec.Type = StatusAsync
	case '=':
		rec.Type = NotifyAsync
	default:
		return nil, fmt.Errorf("unknown MI record prefix %q in %q", prefix, line)
	}

	rec.Class = p.word()
	if rec.Class == "" {
		return nil, fmt.Errorf("missing class in %q", line)
	}

	rec.Results = Tuple{}
	for !p.eof() {
		if !p.accept(',') {
			return nil, fmt.Errorf("expected ',' at %d in %q", p.pos, line)
		}
		name, value, err := p.result()
		if err != nil {
			return nil, fmt.Errorf("bad result in %q: %w", line, err)
		}
		rec.Results[name] = value
	}

	return rec, nil
}

type parser struct {
	s   string
	pos int
}

func (p *parser) eof() bool { return p.pos >= len(p.s) }

func (p *parser) peek() byte {
	if p.eof() {
		return 0
	}
	return p.s[p.pos]
}

func (p *parser) next() byte {
	c := p.s[p.pos]
	p.pos++
	return c
}

func (p *parser) accept(c byte) bool {
	if p.peek() == c && !p.eof() {
		p.pos++
		return true
	}
	return false
}

func (p *parser) skipDigits() bool {
	start := p.pos
	for !p.eof() && p.s[p.pos] >= '0' && p.s[p.pos] <= '9' {
		p.pos++
	}
	return p.pos > start
}

// word reads a class or variable name: everything up to '=', ',' or a bracket
func (p *parser) word() string {
	start := p.pos
	for !p.eof() {
		switch p.s[p.pos] {
		case '=', ',', '{', '}', '[', ']', '"':
			return p.s[start:p.pos]
		}
		p.pos++
	}
	return p.s[start:p.pos]
}

func (p *parser) result() (string, any, error) {
	name := p.word()
	if name == "" {
		return "", nil, fmt.Errorf("missing name at %d", p.pos)
	}
	if !p.accept('=') {
		return "", nil, fmt.Errorf("expected '=' after %q", name)
	}
	value, err := p.value()
	return name, value, err
}

func (p *parser) value() (any, error) {
	switch p.peek() {
	case '"':
		return p.cstring()
	case '{':
		return p.tuple()
	case '[':
		return p.list()
	default:
		return nil, fmt.Errorf("unexpected %q at %d", p.peek(), p.pos)
	}
}

func (p *parser) tuple() (Tuple, error) {
	p.next()
	t := Tuple{}
	if p.accept('}') {
		return t, nil
	}
	for {
		name, value, err := p.result()
		if err != nil {
			return nil, err
		}
		t[name] = value
		if p.accept('}') {
			return t, nil
		}
		if !p.accept(',') {
			return nil, fmt.Errorf("expected ',' or '}' at %d", p.pos)
		}
	}
}

func (p *parser) list() (List, error) {
	p.next()
	l := List{}
	if p.accept(']') {
		return l, nil
	}
	for {
		var value any
		var err error
		switch p.peek() {
		case '"', '{', '[':
			value, err = p.value()
		default:
			_, value, err = p.result()
		}
		if err != nil {
			return nil, err
		}
		l = append(l, value)
		if p.accept(']') {
			return l, nil
		}
		if !p.accept(',') {
			return nil, fmt.Errorf("expected ',' or ']' at %d", p.pos)
		}
	}
}

// cstring reads a double-quoted C string and unescapes it
func (p *parser) cstring() (string, error) {
	if !p.accept('"') {
		return "", fmt.Errorf("expected '\"' at %d", p.pos)
	}

	var sb strings.Builder
	for !p.eof() {
		c := p.next()
		switch c {
		case '"':
			return sb.String(), nil
		case '\\':
			if p.eof() {
				return "", fmt.Errorf("unterminated escape")
			}
			e := p.next()
			switch e {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			case 'a':
				sb.WriteByte('\a')
			case 'b':
				sb.WriteByte('\b')
			case 'f':
				sb.WriteByte('\f')
			case 'v':
				sb.WriteByte('\v')
			case 'e':
				sb.WriteByte(0x1b)
			case '0', '1', '2', '3', '4', '5', '6', '7':
				// up to three octal digits
				n := int(e - '0')
				for i := 0; i < 2 && !p.eof() && p.peek() >= '0' && p.peek() <= '7'; i++ {
					n = n*8 + int(p.next()-'0')
				}
				sb.WriteByte(byte(n))
			default:
				sb.WriteByte(e)
			}
		default:
			sb.WriteByte(c)
		}
	}
	return "", fmt.Errorf("unterminated string")
}

// Quote renders s as an MI C string literal
func Quote(s string) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '"', '\\':
			sb.WriteByte('\\')
			sb.WriteByte(c)
		case '\n':
			sb.WriteString(`\n`)
		case '\t':
			sb.WriteString(`\t`)
		case '\r':
			sb.WriteString(`\r`)
		default:
			sb.WriteByte(c)
		}
	}
	sb.WriteByte('"')
	return sb.String()
}
