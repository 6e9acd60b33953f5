package ir

import "strings"

// Type designates a class, interface, array or primitive type. Two types are
// the same iff their fully-qualified names are equal.
type Type string

const (
	ObjectType       Type = "java.lang.Object"
	StringType       Type = "java.lang.String"
	ClassType        Type = "java.lang.Class"
	CloneableType    Type = "java.lang.Cloneable"
	SerializableType Type = "java.io.Serializable"
	ThrowableType    Type = "java.lang.Throwable"
	VoidType         Type = "void"
)

var primitives = map[Type]bool{
	"boolean": true,
	"byte":    true,
	"char":    true,
	"short":   true,
	"int":     true,
	"long":    true,
	"float":   true,
	"double":  true,
	VoidType:  true,
}

func (t Type) String() string { return string(t) }

func (t Type) IsArray() bool { return strings.HasSuffix(string(t), "[]") }

func (t Type) IsPrimitive() bool { return primitives[t] }

// IsReference reports whether values of the type are pointers: classes,
// interfaces and arrays.
func (t Type) IsReference() bool {
	return t != "" && !t.IsPrimitive()
}

// Elem returns the element type of an array type.
func (t Type) Elem() Type {
	if !t.IsArray() {
		panic("Elem of non-array type " + string(t))
	}
	return t[:len(t)-2]
}

// ArrayOf returns the array type with element type t.
func ArrayOf(t Type) Type { return t + "[]" }

// Base strips every array dimension from t.
func (t Type) Base() Type {
	for t.IsArray() {
		t = t.Elem()
	}
	return t
}

// WellFormed reports whether t is a syntactically valid type descriptor.
func (t Type) WellFormed() bool {
	base := t.Base()
	if base == "" || (base == VoidType && t.IsArray()) {
		return false
	}
	return !strings.ContainsAny(string(base), " ;()<>[]")
}
