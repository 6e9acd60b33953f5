package ir

import (
	"fmt"
	"strconv"
	"strings"
)

// Value is an operand or right-hand side of a statement.
type Value interface {
	fmt.Stringer
	// Type of the value.
	Type() Type
}

// Local is a method-local variable. Locals are compared by identity.
type Local struct {
	Name   string
	typ    Type
	Method *Method
}

func NewLocal(name string, typ Type) *Local {
	return &Local{Name: name, typ: typ}
}

func (l *Local) Type() Type     { return l.typ }
func (l *Local) String() string { return l.Name }

type NullConstant struct{}

func (NullConstant) Type() Type     { return ObjectType }
func (NullConstant) String() string { return "null" }

type StringConstant string

func (StringConstant) Type() Type       { return StringType }
func (s StringConstant) String() string { return strconv.Quote(string(s)) }

// ClassConstant is a class literal, e.g. the result of Foo.class.
type ClassConstant struct{ Of Type }

func (ClassConstant) Type() Type       { return ClassType }
func (c ClassConstant) String() string { return fmt.Sprintf("class %q", string(c.Of)) }

// IntConstant only shows up as an array index or argument.
type IntConstant int

func (IntConstant) Type() Type       { return "int" }
func (i IntConstant) String() string { return strconv.Itoa(int(i)) }

type NewExpr struct{ Class Type }

func (e *NewExpr) Type() Type     { return e.Class }
func (e *NewExpr) String() string { return "new " + string(e.Class) }

type NewArrayExpr struct{ Elem Type }

func (e *NewArrayExpr) Type() Type     { return ArrayOf(e.Elem) }
func (e *NewArrayExpr) String() string { return "newarray " + string(e.Elem) }

type CastExpr struct {
	To Type
	X  Value
}

func (e *CastExpr) Type() Type     { return e.To }
func (e *CastExpr) String() string { return fmt.Sprintf("(%s) %v", e.To, e.X) }

type InstanceFieldRef struct {
	Base  *Local
	Field FieldSig
}

func (r *InstanceFieldRef) Type() Type     { return r.Field.Type }
func (r *InstanceFieldRef) String() string { return fmt.Sprintf("%s.%v", r.Base, r.Field) }

type StaticFieldRef struct{ Field FieldSig }

func (r *StaticFieldRef) Type() Type     { return r.Field.Type }
func (r *StaticFieldRef) String() string { return r.Field.String() }

// ArrayRef denotes an element of an array. Indices are not tracked.
type ArrayRef struct {
	Base  *Local
	Index Value
}

func (r *ArrayRef) Type() Type {
	if t := r.Base.Type(); t.IsArray() {
		return t.Elem()
	}
	return ObjectType
}

func (r *ArrayRef) String() string {
	idx := ""
	if r.Index != nil {
		idx = r.Index.String()
	}
	return fmt.Sprintf("%s[%s]", r.Base, idx)
}

// CaughtExceptionRef is the exception bound on entry to a handler.
type CaughtExceptionRef struct{}

func (CaughtExceptionRef) Type() Type     { return ThrowableType }
func (CaughtExceptionRef) String() string { return "@caughtexception" }

type InvokeKind int

const (
	StaticInvoke InvokeKind = iota
	SpecialInvoke
	VirtualInvoke
	InterfaceInvoke
)

var invokeKindNames = [...]string{"staticinvoke", "specialinvoke", "virtualinvoke", "interfaceinvoke"}

func (k InvokeKind) String() string { return invokeKindNames[k] }

// Dynamic reports whether the target of the invocation depends on the
// runtime type of the receiver.
func (k InvokeKind) Dynamic() bool { return k == VirtualInvoke || k == InterfaceInvoke }

type InvokeExpr struct {
	Kind   InvokeKind
	Base   *Local // nil for static invocations
	Method MethodSig
	Args   []Value
}

func (e *InvokeExpr) Type() Type { return e.Method.Sub.Return() }

func (e *InvokeExpr) String() string {
	args := make([]string, len(e.Args))
	for i, a := range e.Args {
		args[i] = a.String()
	}
	recv := ""
	if e.Base != nil {
		recv = e.Base.Name + "."
	}
	return fmt.Sprintf("%s %s%v(%s)", e.Kind, recv, e.Method, strings.Join(args, ", "))
}

// Stmt is a statement of a method body. Statements are compared by identity;
// a call site is the statement containing the invocation.
type Stmt interface {
	fmt.Stringer
	Line() int
}

type Pos struct{ Ln int }

// Line returns the source line of the statement, or -1 if unknown.
func (p Pos) Line() int {
	if p.Ln <= 0 {
		return -1
	}
	return p.Ln
}

type AssignStmt struct {
	Pos
	LHS Value
	RHS Value
}

func (s *AssignStmt) String() string { return fmt.Sprintf("%v = %v", s.LHS, s.RHS) }

type InvokeStmt struct {
	Pos
	Invoke *InvokeExpr
}

func (s *InvokeStmt) String() string { return s.Invoke.String() }

type ReturnStmt struct {
	Pos
	Value Value // nil for void returns
}

func (s *ReturnStmt) String() string {
	if s.Value == nil {
		return "return"
	}
	return "return " + s.Value.String()
}

type ThrowStmt struct {
	Pos
	Value Value
}

func (s *ThrowStmt) String() string { return "throw " + s.Value.String() }

// InvokeExprOf returns the invocation contained in a statement, if any.
func InvokeExprOf(s Stmt) (*InvokeExpr, bool) {
	switch s := s.(type) {
	case *InvokeStmt:
		return s.Invoke, true
	case *AssignStmt:
		ie, ok := s.RHS.(*InvokeExpr)
		return ie, ok
	}
	return nil, false
}

// ResultOf returns the local receiving the result of a call site.
func ResultOf(s Stmt) *Local {
	if as, ok := s.(*AssignStmt); ok {
		if l, ok := as.LHS.(*Local); ok {
			return l
		}
	}
	return nil
}
