package reflection

import (
	"fmt"
	"os"

	"github.com/BarrensZeppelin/jvmpointer/ir"
	"github.com/sirupsen/logrus"
)

// Signatures of the reflective API methods that are modelled.
var (
	sigForName                = mustSig("<java.lang.Class: java.lang.Class forName(java.lang.String)>")
	sigForName2               = mustSig("<java.lang.Class: java.lang.Class forName(java.lang.String,boolean,java.lang.ClassLoader)>")
	sigClassNewInstance       = mustSig("<java.lang.Class: java.lang.Object newInstance()>")
	sigConstructorNewInstance = mustSig("<java.lang.reflect.Constructor: java.lang.Object newInstance(java.lang.Object[])>")
	sigMethodInvoke           = mustSig("<java.lang.reflect.Method: java.lang.Object invoke(java.lang.Object,java.lang.Object[])>")
	sigFieldSet               = mustSig("<java.lang.reflect.Field: void set(java.lang.Object,java.lang.Object)>")
	sigFieldGet               = mustSig("<java.lang.reflect.Field: java.lang.Object get(java.lang.Object)>")
	sigArrayNewInstance       = mustSig("<java.lang.reflect.Array: java.lang.Object newInstance(java.lang.Class,int)>")
	sigArrayGet               = mustSig("<java.lang.reflect.Array: java.lang.Object get(java.lang.Object,int)>")
	sigArraySet               = mustSig("<java.lang.reflect.Array: void set(java.lang.Object,int,java.lang.Object)>")
)

func mustSig(s string) ir.MethodSig {
	sig, err := ir.ParseMethodSig(s)
	if err != nil {
		panic(err)
	}
	return sig
}

var ctorSub = ir.MakeSubSignature(ir.VoidType, ir.InitName)

// KindOf reports which traced reflective operation a call invokes.
func KindOf(ie *ir.InvokeExpr) (Kind, bool) {
	switch ie.Method {
	case sigForName, sigForName2:
		return ClassForName, true
	case sigClassNewInstance:
		return ClassNewInstance, true
	case sigConstructorNewInstance:
		return ConstructorNewInstance, true
	case sigMethodInvoke:
		return MethodInvoke, true
	case sigFieldSet:
		return FieldSet, true
	case sigFieldGet:
		return FieldGet, true
	case sigArrayNewInstance:
		return ArrayNewInstance, true
	}
	return 0, false
}

// IsReflective reports whether a call targets part of the modelled
// reflective API, including the array accessors that need no trace.
func IsReflective(ie *ir.InvokeExpr) bool {
	if _, ok := KindOf(ie); ok {
		return true
	}
	return ie.Method == sigArrayGet || ie.Method == sigArraySet
}

// Model synthesizes ordinary statements standing in for a reflective call.
type Model interface {
	Resolve(m *ir.Method, site ir.Stmt) []ir.Stmt
}

// TraceModel is the Model backed by a Tamiflex trace.
type TraceModel struct {
	prog *ir.Program
	log  logrus.FieldLogger

	// Observed targets per reflective call site, in trace order.
	targets map[ir.Stmt][]string
	// Memoized synthesized statements.
	resolved map[ir.Stmt][]ir.Stmt
	warnings []error
}

// NewTraceModel maps trace entries to the call sites they describe. Entries
// referring to unknown classes, methods or fields are skipped with a warning.
func NewTraceModel(prog *ir.Program, entries []Entry, log logrus.FieldLogger) *TraceModel {
	tm := &TraceModel{
		prog:     prog,
		log:      log,
		targets:  make(map[ir.Stmt][]string),
		resolved: make(map[ir.Stmt][]ir.Stmt),
	}

	for _, e := range entries {
		if reason := tm.validate(e); reason != "" {
			tm.warn(e, reason)
			continue
		}
		for _, stmt := range tm.inferSourceStmts(e) {
			tm.addTarget(stmt, e.Target)
		}
	}
	return tm
}

// LoadTraceFile reads a trace file and builds a model from it.
func LoadTraceFile(path string, prog *ir.Program, log logrus.FieldLogger) (*TraceModel, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening reflection trace: %w", err)
	}
	defer f.Close()

	trace, err := ParseTrace(f, log)
	if err != nil {
		return nil, err
	}

	tm := NewTraceModel(prog, trace.Entries, log)
	tm.warnings = append(trace.Warnings, tm.warnings...)
	return tm, nil
}

// Warnings returns the trace entries that were skipped.
func (tm *TraceModel) Warnings() []error { return tm.warnings }

func (tm *TraceModel) warn(e Entry, reason string) {
	err := &TraceError{Text: e.String(), Reason: reason}
	tm.log.Warn(err)
	tm.warnings = append(tm.warnings, err)
}

func (tm *TraceModel) addTarget(stmt ir.Stmt, target string) {
	for _, t := range tm.targets[stmt] {
		if t == target {
			return
		}
	}
	tm.targets[stmt] = append(tm.targets[stmt], target)
}

func (tm *TraceModel) validate(e Entry) string {
	switch e.Kind {
	case ClassNewInstance:
		if !tm.prog.ContainsClass(ir.Type(e.Target)) {
			return "unknown class " + e.Target
		}
	case ConstructorNewInstance, MethodInvoke:
		sig, err := ir.ParseMethodSig(e.Target)
		if err != nil {
			return err.Error()
		}
		if !tm.prog.ContainsMethod(sig) {
			return "unknown method " + e.Target
		}
	case FieldSet, FieldGet:
		sig, err := ir.ParseFieldSig(e.Target)
		if err != nil {
			return err.Error()
		}
		if !tm.prog.ContainsField(sig) {
			return "unknown field " + e.Target
		}
	case ArrayNewInstance:
		if !ir.Type(e.Target).IsArray() {
			return "not an array type " + e.Target
		}
	}

	if !tm.prog.ContainsClass(e.Class) {
		return "unknown class " + string(e.Class)
	}
	return ""
}

// inferSourceStmts finds the reflective calls of the entry's kind in the
// enclosing method. If no call is on the traced line, every candidate is
// returned.
func (tm *TraceModel) inferSourceStmts(e Entry) []ir.Stmt {
	c := tm.prog.Class(e.Class)

	var potential, matched []ir.Stmt
	for _, sub := range sortedSubs(c) {
		m := c.Methods[sub]
		if !m.Concrete() || m.Name() != e.Method {
			continue
		}
		for _, stmt := range m.Body() {
			ie, ok := ir.InvokeExprOf(stmt)
			if !ok {
				continue
			}
			if k, ok := KindOf(ie); ok && k == e.Kind {
				potential = append(potential, stmt)
				if e.Line < 0 || stmt.Line() == e.Line {
					matched = append(matched, stmt)
				}
			}
		}
	}

	if len(matched) == 0 && len(potential) > 0 {
		tm.warn(e, "no reflective call on the traced line")
		return potential
	}
	return matched
}

// Resolve returns the statements standing in for a reflective call site in
// m. Call sites without trace entries resolve to nothing, except for the
// array accessors which are modelled directly.
func (tm *TraceModel) Resolve(m *ir.Method, site ir.Stmt) []ir.Stmt {
	if stmts, found := tm.resolved[site]; found {
		return stmts
	}

	ie, ok := ir.InvokeExprOf(site)
	if !ok {
		return nil
	}

	var stmts []ir.Stmt
	s := synth{m: m, site: site, ie: ie, lhs: ir.ResultOf(site), prog: tm.prog}
	switch ie.Method {
	case sigArrayGet:
		stmts = s.arrayGet()
	case sigArraySet:
		stmts = s.arraySet()
	default:
		kind, ok := KindOf(ie)
		if !ok {
			return nil
		}
		for _, target := range tm.targets[site] {
			stmts = append(stmts, s.transform(kind, target)...)
		}
	}

	tm.resolved[site] = stmts
	return stmts
}
