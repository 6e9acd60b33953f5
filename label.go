package pointer

import (
	"fmt"

	"github.com/BarrensZeppelin/jvmpointer/ir"
)

// This file contains definitions of types whose instances represent abstract
// objects that are targets of pointers in the analysed program.

type AllocKind int

const (
	// Object created by a new expression.
	AllocNew AllocKind = iota
	// Array created by a newarray expression.
	AllocNewArray
	// The single object standing for every string constant.
	AllocString
	// The java.lang.Class object of a class constant. There is one per
	// class.
	AllocClass
)

var allocKindNames = [...]string{"new", "newarray", "string", "class"}

func (k AllocKind) String() string { return allocKindNames[k] }

// Label denotes an abstract object.
// A label is either an [*AllocNode], representing the objects allocated at a
// given statement, or a [FieldPointer] / [ElementPointer], representing a
// field or the merged array elements of another object.
type Label interface {
	// Allocation site of the object denoted by the label. Nil for merged
	// constant objects.
	Site() ir.Stmt
	// Access path from the allocated object to the label.
	Path() string
	// Declared type of values stored in the object denoted by the label.
	Type() ir.Type
}

// AllocNode is an abstract object: every object created at one allocation
// site.
type AllocNode struct {
	id   int
	Kind AllocKind
	typ  ir.Type
	site ir.Stmt
	// Method containing the allocation site.
	Method *ir.Method
	// Class named by an AllocClass object.
	Of ir.Type
}

func (a *AllocNode) ID() int       { return a.id }
func (a *AllocNode) Site() ir.Stmt { return a.site }
func (a *AllocNode) Path() string  { return "" }
func (a *AllocNode) Type() ir.Type { return a.typ }

func (a *AllocNode) String() string {
	switch a.Kind {
	case AllocString:
		return "<string constant>"
	case AllocClass:
		return fmt.Sprintf("<class %s>", a.Of)
	}
	return fmt.Sprintf("%v: %v", a.Method, a.site)
}

type FieldPointer struct {
	Base  *AllocNode
	Field ir.FieldSig
}

func (fp FieldPointer) Site() ir.Stmt { return fp.Base.Site() }
func (fp FieldPointer) Path() string  { return fp.Base.Path() + "." + fp.Field.Name }
func (fp FieldPointer) Type() ir.Type { return fp.Field.Type }

type ElementPointer struct{ Base *AllocNode }

func (ep ElementPointer) Site() ir.Stmt { return ep.Base.Site() }
func (ep ElementPointer) Path() string  { return ep.Base.Path() + "[*]" }
func (ep ElementPointer) Type() ir.Type {
	if t := ep.Base.Type(); t.IsArray() {
		return t.Elem()
	}
	return ir.ObjectType
}
