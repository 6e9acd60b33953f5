package ir

import (
	"fmt"
	"sync"

	"golang.org/x/exp/slices"
)

type Field struct {
	Sig    FieldSig
	Static bool
}

type Method struct {
	Sig   MethodSig
	Class *Class

	Static   bool
	Abstract bool
	Native   bool

	// This is nil for static methods.
	This   *Local
	Params []*Local

	// BodySource, if set, is called once to materialize the body on first
	// access.
	BodySource func(*Method) []Stmt

	body     []Stmt
	bodyOnce sync.Once
}

// NewMethod creates a method with freshly allocated receiver and parameter
// locals matching the signature.
func NewMethod(sig MethodSig, static bool) *Method {
	m := &Method{Sig: sig, Static: static}
	if !static {
		m.This = m.NewLocal("this", sig.Class)
	}
	for i, pt := range sig.Sub.Params() {
		m.Params = append(m.Params, m.NewLocal(fmt.Sprintf("p%d", i), pt))
	}
	return m
}

// NewLocal creates a local owned by m.
func (m *Method) NewLocal(name string, typ Type) *Local {
	return &Local{Name: name, typ: typ, Method: m}
}

func (m *Method) Concrete() bool { return !m.Abstract && !m.Native }

func (m *Method) Name() string { return m.Sig.Name() }

// Body returns the statements of the method, materializing them if needed.
func (m *Method) Body() []Stmt {
	m.bodyOnce.Do(func() {
		if m.body == nil && m.BodySource != nil {
			m.body = m.BodySource(m)
		}
	})
	return m.body
}

func (m *Method) SetBody(body []Stmt) { m.body = body }

func (m *Method) String() string { return m.Sig.String() }

type Class struct {
	Name       Type
	Super      Type // empty for the root of the hierarchy
	Interfaces []Type
	Interface  bool
	Abstract   bool
	// Phantom classes are referenced but were not loaded.
	Phantom bool

	Methods map[SubSignature]*Method
	Fields  map[string]*Field
}

func NewClass(name, super Type, interfaces ...Type) *Class {
	return &Class{
		Name:       name,
		Super:      super,
		Interfaces: interfaces,
		Methods:    make(map[SubSignature]*Method),
		Fields:     make(map[string]*Field),
	}
}

// AddMethod declares m in the class. The signature's class is overwritten.
func (c *Class) AddMethod(m *Method) *Method {
	m.Sig.Class = c.Name
	m.Class = c
	if m.This != nil {
		m.This.typ = c.Name
	}
	c.Methods[m.Sig.Sub] = m
	return m
}

func (c *Class) AddField(name string, typ Type, static bool) *Field {
	f := &Field{Sig: FieldSig{Class: c.Name, Name: name, Type: typ}, Static: static}
	c.Fields[name] = f
	return f
}

// Method returns the method declared in c with the given sub-signature.
func (c *Class) Method(sub SubSignature) *Method { return c.Methods[sub] }

// Concrete reports whether instances of the class can exist.
func (c *Class) Concrete() bool { return !c.Interface && !c.Abstract }

func (c *Class) String() string { return string(c.Name) }

// Program is the universe of loaded classes.
type Program struct {
	classes map[Type]*Class
}

func NewProgram() *Program {
	return &Program{classes: make(map[Type]*Class)}
}

// AddClass adds a class to the program, replacing a phantom class of the
// same name.
func (p *Program) AddClass(c *Class) *Class {
	if old, ok := p.classes[c.Name]; ok && !old.Phantom {
		panic(fmt.Errorf("class %s is already loaded", c.Name))
	}
	p.classes[c.Name] = c
	return c
}

func (p *Program) Class(t Type) *Class { return p.classes[t] }

func (p *Program) ContainsClass(t Type) bool {
	c, ok := p.classes[t]
	return ok && !c.Phantom
}

func (p *Program) Method(sig MethodSig) *Method {
	if c := p.classes[sig.Class]; c != nil {
		return c.Methods[sig.Sub]
	}
	return nil
}

func (p *Program) ContainsMethod(sig MethodSig) bool { return p.Method(sig) != nil }

func (p *Program) Field(sig FieldSig) *Field {
	if c := p.classes[sig.Class]; c != nil {
		if f := c.Fields[sig.Name]; f != nil && (sig.Type == "" || f.Sig.Type == sig.Type) {
			return f
		}
	}
	return nil
}

func (p *Program) ContainsField(sig FieldSig) bool { return p.Field(sig) != nil }

// Classes returns every class of the program sorted by name.
func (p *Program) Classes() []*Class {
	res := make([]*Class, 0, len(p.classes))
	for _, c := range p.classes {
		res = append(res, c)
	}
	slices.SortFunc(res, func(a, b *Class) bool { return a.Name < b.Name })
	return res
}

// Methods calls f for every method of every class, in deterministic order.
func (p *Program) Methods(f func(*Method)) {
	for _, c := range p.Classes() {
		subs := make([]SubSignature, 0, len(c.Methods))
		for sub := range c.Methods {
			subs = append(subs, sub)
		}
		slices.Sort(subs)
		for _, sub := range subs {
			f(c.Methods[sub])
		}
	}
}
