package ir

import (
	"fmt"
	"strings"
)

// SubSignature identifies a method within its declaring class, in the form
// "ret name(p1,p2)".
type SubSignature string

const (
	InitName = "<init>"
)

func MakeSubSignature(ret Type, name string, params ...Type) SubSignature {
	ps := make([]string, len(params))
	for i, p := range params {
		ps[i] = string(p)
	}
	return SubSignature(fmt.Sprintf("%s %s(%s)", ret, name, strings.Join(ps, ",")))
}

func (s SubSignature) split() (ret Type, name string, params []Type) {
	str := string(s)
	sp := strings.IndexByte(str, ' ')
	lp := strings.IndexByte(str, '(')
	if sp < 0 || lp < sp || !strings.HasSuffix(str, ")") {
		return "", str, nil
	}

	ret, name = Type(str[:sp]), str[sp+1:lp]
	if inner := str[lp+1 : len(str)-1]; inner != "" {
		for _, p := range strings.Split(inner, ",") {
			params = append(params, Type(strings.TrimSpace(p)))
		}
	}
	return
}

func (s SubSignature) Name() string {
	_, name, _ := s.split()
	return name
}

func (s SubSignature) Return() Type {
	ret, _, _ := s.split()
	return ret
}

func (s SubSignature) Params() []Type {
	_, _, params := s.split()
	return params
}

// MethodSig uniquely identifies a method by its declaring type, name,
// parameter types and return type.
type MethodSig struct {
	Class Type
	Sub   SubSignature
}

func NewMethodSig(class Type, ret Type, name string, params ...Type) MethodSig {
	return MethodSig{Class: class, Sub: MakeSubSignature(ret, name, params...)}
}

func (m MethodSig) Name() string { return m.Sub.Name() }

func (m MethodSig) String() string {
	return fmt.Sprintf("<%s: %s>", m.Class, m.Sub)
}

// FieldSig identifies a field by declaring class and name. The field type is
// part of the signature as in the bytecode field descriptor.
type FieldSig struct {
	Class Type
	Name  string
	Type  Type
}

func (f FieldSig) String() string {
	return fmt.Sprintf("<%s: %s %s>", f.Class, f.Type, f.Name)
}

// ParseMethodSig parses the textual form "<C: ret name(p1,p2)>".
func ParseMethodSig(s string) (MethodSig, error) {
	class, rest, err := splitSig(s)
	if err != nil {
		return MethodSig{}, err
	}

	sub := SubSignature(rest)
	ret, name, params := sub.split()
	if ret == "" || name == "" {
		return MethodSig{}, fmt.Errorf("malformed method signature %q", s)
	}
	return NewMethodSig(class, ret, name, params...), nil
}

// ParseFieldSig parses the textual form "<C: type name>".
func ParseFieldSig(s string) (FieldSig, error) {
	class, rest, err := splitSig(s)
	if err != nil {
		return FieldSig{}, err
	}

	typ, name, ok := strings.Cut(rest, " ")
	if !ok || name == "" || strings.ContainsAny(name, " ()") {
		return FieldSig{}, fmt.Errorf("malformed field signature %q", s)
	}
	return FieldSig{Class: class, Name: name, Type: Type(typ)}, nil
}

func splitSig(s string) (Type, string, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "<") || !strings.HasSuffix(s, ">") {
		return "", "", fmt.Errorf("signature %q must be enclosed in <>", s)
	}

	class, rest, ok := strings.Cut(s[1:len(s)-1], ": ")
	if !ok || class == "" {
		return "", "", fmt.Errorf("signature %q is missing a declaring class", s)
	}
	return Type(class), strings.TrimSpace(rest), nil
}
