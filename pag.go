package pointer

// This file defines the pointer assignment graph: the nodes holding
// points-to sets and the copy, load, store and call edges between them.

import (
	"fmt"
	"log"

	"github.com/BarrensZeppelin/jvmpointer/ir"
	"golang.org/x/tools/container/intsets"
)

// nodeid indexes analysis.nodes. Node 0 is never used.
type nodeid uint32

type nodeKind int

const (
	nodeVar nodeKind = iota
	nodeStatic
	nodeField
	nodeReturn
	nodeException
	// Holds the object of an allocation site or constant.
	nodeSource
)

// arrayElems is the pseudo field holding the elements of an array object.
var arrayElems = ir.FieldSig{Class: ir.ObjectType, Name: "[]", Type: ir.ObjectType}

type fieldEdge struct {
	field ir.FieldSig
	// Target of a load or source of a store.
	other nodeid
}

type castEdge struct {
	dst nodeid
	to  ir.Type
}

// callSite is a dynamically dispatched call registered on its receiver.
type callSite struct {
	caller *ir.Method
	stmt   ir.Stmt
	invoke *ir.InvokeExpr
}

type node struct {
	kind nodeKind
	// Type of the values held by the node.
	typ ir.Type

	local  *ir.Local
	method *ir.Method
	field  ir.FieldSig
	obj    *AllocNode

	pts     intsets.Sparse // points-to set: ids of abstract objects
	prevPts intsets.Sparse // part of pts already propagated

	copyTo intsets.Sparse // ids of nodes receiving every object
	casts  []castEdge     // edges receiving the objects of a type
	loads  []fieldEdge    // loads with this node as base
	stores []fieldEdge    // stores with this node as base
	calls  []*callSite    // calls with this node as receiver
}

func (n *node) String() string {
	switch n.kind {
	case nodeVar:
		return fmt.Sprintf("%v/%s", n.local.Method, n.local.Name)
	case nodeStatic:
		return n.field.String()
	case nodeField:
		if n.field == arrayElems {
			return ElementPointer{n.obj}.Path()
		}
		return fmt.Sprintf("(%v).%s", n.obj, n.field.Name)
	case nodeReturn:
		return fmt.Sprintf("return of %v", n.method)
	case nodeException:
		return "<exceptions>"
	case nodeSource:
		return fmt.Sprintf("{%v}", n.obj)
	}
	return "?"
}

type fieldKey struct {
	obj   *AllocNode
	field ir.FieldSig
}

type allocKey struct {
	site ir.Stmt
	kind AllocKind
}

// pag owns every node and abstract object. Nodes and objects are never
// removed.
type pag struct {
	nodes  []*node
	allocs []*AllocNode

	locals     map[*ir.Local]nodeid
	statics    map[ir.FieldSig]nodeid
	fields     map[fieldKey]nodeid
	returns    map[*ir.Method]nodeid
	exceptions nodeid

	allocAt   map[allocKey]*AllocNode
	sources   map[*AllocNode]nodeid
	strings   *AllocNode
	classObjs map[ir.Type]*AllocNode
}

func newPAG() pag {
	return pag{
		nodes:     []*node{nil},
		locals:    make(map[*ir.Local]nodeid),
		statics:   make(map[ir.FieldSig]nodeid),
		fields:    make(map[fieldKey]nodeid),
		returns:   make(map[*ir.Method]nodeid),
		allocAt:   make(map[allocKey]*AllocNode),
		sources:   make(map[*AllocNode]nodeid),
		classObjs: make(map[ir.Type]*AllocNode),
	}
}

func (g *pag) addNode(n *node) nodeid {
	id := nodeid(len(g.nodes))
	g.nodes = append(g.nodes, n)
	return id
}

func (g *pag) varNode(l *ir.Local) nodeid {
	if id, found := g.locals[l]; found {
		return id
	}
	if l.Method == nil {
		log.Panicf("local %s has no method", l)
	}
	id := g.addNode(&node{kind: nodeVar, typ: l.Type(), local: l})
	g.locals[l] = id
	return id
}

func (g *pag) staticNode(f ir.FieldSig) nodeid {
	if id, found := g.statics[f]; found {
		return id
	}
	id := g.addNode(&node{kind: nodeStatic, typ: f.Type, field: f})
	g.statics[f] = id
	return id
}

func (g *pag) fieldNode(obj *AllocNode, f ir.FieldSig) nodeid {
	key := fieldKey{obj, f}
	if id, found := g.fields[key]; found {
		return id
	}
	id := g.addNode(&node{kind: nodeField, typ: f.Type, obj: obj, field: f})
	g.fields[key] = id
	return id
}

func (g *pag) returnNode(m *ir.Method) nodeid {
	if id, found := g.returns[m]; found {
		return id
	}
	id := g.addNode(&node{kind: nodeReturn, typ: m.Sig.Sub.Return(), method: m})
	g.returns[m] = id
	return id
}

func (g *pag) exceptionNode() nodeid {
	if g.exceptions == 0 {
		g.exceptions = g.addNode(&node{kind: nodeException, typ: ir.ThrowableType})
	}
	return g.exceptions
}

func (g *pag) newAlloc(kind AllocKind, typ ir.Type, site ir.Stmt, m *ir.Method) *AllocNode {
	a := &AllocNode{id: len(g.allocs), Kind: kind, typ: typ, site: site, Method: m}
	g.allocs = append(g.allocs, a)
	return a
}

// allocation returns the abstract object of an allocation site.
func (g *pag) allocation(kind AllocKind, typ ir.Type, site ir.Stmt, m *ir.Method) *AllocNode {
	key := allocKey{site, kind}
	if a, found := g.allocAt[key]; found {
		return a
	}
	a := g.newAlloc(kind, typ, site, m)
	g.allocAt[key] = a
	return a
}

func (g *pag) stringObject() *AllocNode {
	if g.strings == nil {
		g.strings = g.newAlloc(AllocString, ir.StringType, nil, nil)
	}
	return g.strings
}

func (g *pag) classObject(of ir.Type) *AllocNode {
	if a, found := g.classObjs[of]; found {
		return a
	}
	a := g.newAlloc(AllocClass, ir.ClassType, nil, nil)
	a.Of = of
	g.classObjs[of] = a
	return a
}

// lookup returns the node of a local, or 0 if the local has no node.
func (g *pag) lookup(l *ir.Local) nodeid { return g.locals[l] }
