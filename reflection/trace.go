// Package reflection replaces reflective calls with ordinary statements,
// driven by a Tamiflex trace of the reflective targets observed at runtime.
package reflection

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/BarrensZeppelin/jvmpointer/ir"
	"github.com/sirupsen/logrus"
)

type Kind int

const (
	ClassForName Kind = iota
	ClassNewInstance
	ConstructorNewInstance
	MethodInvoke
	FieldSet
	FieldGet
	ArrayNewInstance
)

var kindNames = [...]string{
	ClassForName:           "Class.forName",
	ClassNewInstance:       "Class.newInstance",
	ConstructorNewInstance: "Constructor.newInstance",
	MethodInvoke:           "Method.invoke",
	FieldSet:               "Field.set*",
	FieldGet:               "Field.get*",
	ArrayNewInstance:       "Array.newInstance",
}

func (k Kind) String() string { return kindNames[k] }

// ParseKind maps a trace token to a kind.
func ParseKind(s string) (Kind, bool) {
	for k, name := range kindNames {
		if name == s {
			return Kind(k), true
		}
	}
	return 0, false
}

// Entry is one line of a reflection trace.
type Entry struct {
	Kind Kind
	// Class, method or field signature, or type name, depending on Kind.
	Target string
	// Class and name of the method containing the reflective call.
	Class  ir.Type
	Method string
	// Line of the reflective call, or -1 if any line matches.
	Line int
}

func (e Entry) String() string {
	ln := ""
	if e.Line >= 0 {
		ln = strconv.Itoa(e.Line)
	}
	return fmt.Sprintf("%v;%s;%s.%s;%s", e.Kind, e.Target, e.Class, e.Method, ln)
}

// Skipped lines are quoted in warnings up to this length.
const maxErrorText = 200

// TraceError describes a trace entry that was skipped.
type TraceError struct {
	// 1-based line of the trace file, or 0 if the entry was not read from a file.
	Line   int
	Text   string
	Reason string
}

func (e *TraceError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("reflection trace line %d: %s: %q", e.Line, e.Reason, e.Text)
	}
	return fmt.Sprintf("reflection trace: %s: %q", e.Reason, e.Text)
}

// Trace is the parsed content of a trace file.
type Trace struct {
	Entries []Entry
	// Lines that were skipped.
	Warnings []error
}

// ParseTrace reads trace entries of the form
//
//	kind;target;class.method;line
//
// Malformed lines are skipped with a warning. Only errors from r are
// returned.
func ParseTrace(r io.Reader, log logrus.FieldLogger) (*Trace, error) {
	trace := &Trace{}
	skip := func(lineNo int, text, reason string) {
		if len(text) > maxErrorText {
			text = text[:maxErrorText] + "..."
		}
		err := &TraceError{Line: lineNo, Text: text, Reason: reason}
		log.Warn(err)
		trace.Warnings = append(trace.Warnings, err)
	}

	br := bufio.NewReader(r)
	for lineNo := 1; ; lineNo++ {
		text, err := br.ReadString('\n')
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("reading reflection trace: %w", err)
		}
		if err == io.EOF && text == "" {
			break
		}
		text = strings.TrimRight(text, "\r\n")
		if strings.TrimSpace(text) == "" {
			continue
		}

		portions := strings.Split(text, ";")
		if len(portions) < 4 {
			skip(lineNo, text, "too few fields")
			continue
		}

		kind, ok := ParseKind(portions[0])
		if !ok {
			skip(lineNo, text, "unknown reflection kind "+portions[0])
			continue
		}

		dot := strings.LastIndexByte(portions[2], '.')
		if dot <= 0 || dot == len(portions[2])-1 {
			skip(lineNo, text, "malformed enclosing method")
			continue
		}

		line := -1
		if portions[3] != "" {
			n, err := strconv.Atoi(portions[3])
			if err != nil || n < 0 {
				skip(lineNo, text, "malformed line number")
				continue
			}
			line = n
		}

		trace.Entries = append(trace.Entries, Entry{
			Kind:   kind,
			Target: portions[1],
			Class:  ir.Type(portions[2][:dot]),
			Method: portions[2][dot+1:],
			Line:   line,
		})
	}

	return trace, nil
}
