// Package typehierarchy answers subtype and virtual dispatch queries over the
// class and interface lattice of a program.
//
// Ancestor and descendant sets are computed when a type is added, so subtype
// queries never walk the hierarchy. Types are only ever added; adding a type
// can introduce new subtype facts but never retracts an answer that was given
// before.
package typehierarchy

import (
	"fmt"

	"github.com/BarrensZeppelin/jvmpointer/ir"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"
)

// MethodResolutionError is returned when no concrete implementation of a
// method exists for a receiver type. It indicates an incomplete class set and
// should be treated as a warning.
type MethodResolutionError struct {
	Type ir.Type
	Sub  ir.SubSignature
}

func (e *MethodResolutionError) Error() string {
	return fmt.Sprintf("no concrete implementation of %s for type %s", e.Sub, e.Type)
}

type entry struct {
	class *ir.Class
	// Direct supertypes (superclass first) and direct subtypes.
	supers []ir.Type
	subs   []ir.Type
	// Superclass chain starting with the type itself.
	chain []ir.Type
	// Reflexive ancestor and descendant sets.
	ancestors   map[ir.Type]struct{}
	descendants map[ir.Type]struct{}

	adding bool
}

type dispatchKey struct {
	typ ir.Type
	sub ir.SubSignature
}

type Hierarchy struct {
	prog *ir.Program
	log  logrus.FieldLogger

	entries  map[ir.Type]*entry
	dispatch map[dispatchKey]*ir.Method
}

// New builds the hierarchy of every class currently in the program.
func New(prog *ir.Program, log logrus.FieldLogger) *Hierarchy {
	h := &Hierarchy{
		prog:     prog,
		log:      log,
		entries:  make(map[ir.Type]*entry),
		dispatch: make(map[dispatchKey]*ir.Method),
	}

	for _, c := range prog.Classes() {
		h.AddType(c)
	}
	return h
}

func (h *Hierarchy) Program() *ir.Program { return h.prog }

// AddType inserts a class and its declared super-relations. Supertypes that
// are loaded in the program are inserted first. Adding a present type is a
// no-op, except that a loaded class replaces a phantom entry of the same name:
// its supertypes then become ancestors of every type below it.
func (h *Hierarchy) AddType(c *ir.Class) {
	e := h.entries[c.Name]
	switch {
	case e == nil:
		e = &entry{
			class:       c,
			ancestors:   map[ir.Type]struct{}{c.Name: {}},
			descendants: map[ir.Type]struct{}{c.Name: {}},
			chain:       []ir.Type{c.Name},
		}
		h.entries[c.Name] = e
	case e.class.Phantom && !c.Phantom:
		h.log.WithField("type", c.Name).Debug("loaded class replaces phantom")
		e.class = c
	default:
		return
	}
	e.adding = true

	supers := c.Interfaces
	if c.Super != "" {
		supers = append([]ir.Type{c.Super}, supers...)
	}

	added := map[ir.Type]struct{}{c.Name: {}}
	for i, s := range supers {
		se := h.entries[s]
		if se == nil {
			if sc := h.prog.Class(s); sc != nil {
				h.AddType(sc)
			} else {
				h.log.WithField("type", c.Name).Warnf("supertype %s is not loaded, treating it as phantom", s)
				pc := ir.NewClass(s, "")
				pc.Phantom = true
				pc.Interface = i > 0 || c.Super == ""
				h.AddType(pc)
			}
			se = h.entries[s]
		}

		if se.adding {
			h.log.WithField("type", c.Name).Errorf("cyclic inheritance through %s, ignoring edge", s)
			continue
		}

		e.supers = append(e.supers, s)
		se.subs = append(se.subs, c.Name)
		if i == 0 && s == c.Super {
			e.chain = append(e.chain, se.chain...)
		}
		for a := range se.ancestors {
			if _, found := e.ancestors[a]; !found {
				added[a] = struct{}{}
			}
		}
	}

	// Every type below c (c included) gains the new ancestors. Superclass
	// chains that ended in c now continue through its superclass.
	for d := range e.descendants {
		de := h.entries[d]
		for a := range added {
			de.ancestors[a] = struct{}{}
			h.entries[a].descendants[d] = struct{}{}
		}
		if d == c.Name || len(e.chain) == 1 {
			continue
		}
		if i := slices.Index(de.chain, c.Name); i >= 0 && i == len(de.chain)-1 {
			de.chain = append(append([]ir.Type(nil), de.chain[:i]...), e.chain...)
		}
	}
	e.adding = false

	// Failed lookups may succeed now.
	for k, m := range h.dispatch {
		if m == nil {
			delete(h.dispatch, k)
		}
	}
}

// Contains reports whether the type has been added to the hierarchy.
func (h *Hierarchy) Contains(t ir.Type) bool {
	_, found := h.entries[t]
	return found
}

// Class returns the class for a type in the hierarchy (possibly phantom).
func (h *Hierarchy) Class(t ir.Type) *ir.Class {
	if e := h.entries[t]; e != nil {
		return e.class
	}
	return nil
}

// IsSubtype reports whether sub is a (reflexive) subtype of sup.
func (h *Hierarchy) IsSubtype(sub, sup ir.Type) bool {
	switch {
	case sub == sup:
		return true
	case sub.IsPrimitive() || sup.IsPrimitive():
		return false
	case sup == ir.ObjectType:
		return true
	case sub.IsArray():
		if sup.IsArray() {
			se, pe := sub.Elem(), sup.Elem()
			if se.IsPrimitive() || pe.IsPrimitive() {
				return false
			}
			return h.IsSubtype(se, pe)
		}
		return sup == ir.CloneableType || sup == ir.SerializableType
	case sup.IsArray():
		return false
	}

	if e := h.entries[sub]; e != nil {
		_, found := e.ancestors[sup]
		return found
	}
	return false
}

// Subtypes returns every known reflexive subtype of t, sorted by name.
func (h *Hierarchy) Subtypes(t ir.Type) []ir.Type {
	var res []ir.Type
	if t == ir.ObjectType {
		res = make([]ir.Type, 0, len(h.entries))
		for typ := range h.entries {
			res = append(res, typ)
		}
	} else if e := h.entries[t]; e != nil {
		res = make([]ir.Type, 0, len(e.descendants))
		for typ := range e.descendants {
			res = append(res, typ)
		}
	}
	slices.Sort(res)
	return res
}

// DirectSupertypes returns the declared superclass and interfaces of t.
func (h *Hierarchy) DirectSupertypes(t ir.Type) []ir.Type {
	if e := h.entries[t]; e != nil {
		return e.supers
	}
	return nil
}

// DirectSubtypes returns the types that directly extend or implement t.
func (h *Hierarchy) DirectSubtypes(t ir.Type) []ir.Type {
	if e := h.entries[t]; e != nil {
		return e.subs
	}
	return nil
}

// Superclasses returns the superclass chain of t, starting with t itself.
func (h *Hierarchy) Superclasses(t ir.Type) []ir.Type {
	if e := h.entries[t]; e != nil {
		return e.chain
	}
	return nil
}

// ResolveConcreteMethod returns the method that is executed when a method
// with the given sub-signature is invoked virtually on an object of the given
// runtime type. Only superclasses are searched.
func (h *Hierarchy) ResolveConcreteMethod(runtimeType ir.Type, sub ir.SubSignature) (*ir.Method, error) {
	if runtimeType.IsArray() {
		runtimeType = ir.ObjectType
	}

	key := dispatchKey{runtimeType, sub}
	if m, found := h.dispatch[key]; found {
		if m == nil {
			return nil, &MethodResolutionError{runtimeType, sub}
		}
		return m, nil
	}

	var res *ir.Method
	for _, t := range h.Superclasses(runtimeType) {
		if m := h.entries[t].class.Method(sub); m != nil && !m.Static && m.Concrete() {
			res = m
			break
		}
	}

	h.dispatch[key] = res
	if res == nil {
		return nil, &MethodResolutionError{runtimeType, sub}
	}
	return res, nil
}

// ResolveMethod resolves a statically bound reference to a method declared in
// or inherited by the given type, as for static and special invocations.
// Superclasses are searched before superinterfaces.
func (h *Hierarchy) ResolveMethod(declared ir.Type, sub ir.SubSignature) (*ir.Method, error) {
	if declared.IsArray() {
		declared = ir.ObjectType
	}

	for _, t := range h.Superclasses(declared) {
		if m := h.entries[t].class.Method(sub); m != nil {
			return m, nil
		}
	}

	// Breadth-first search through superinterfaces.
	seen := map[ir.Type]bool{declared: true}
	queue := []ir.Type{declared}
	for len(queue) > 0 {
		t := queue[0]
		queue = queue[1:]
		for _, s := range h.DirectSupertypes(t) {
			if seen[s] {
				continue
			}
			seen[s] = true
			if m := h.entries[s].class.Method(sub); m != nil {
				return m, nil
			}
			queue = append(queue, s)
		}
	}

	return nil, &MethodResolutionError{declared, sub}
}
