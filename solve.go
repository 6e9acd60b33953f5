package pointer

// This file defines the worklist solver. It uses difference propagation:
// every node remembers the part of its points-to set that has already been
// propagated, and only the remainder is pushed along its edges when the node
// is processed.

import (
	"context"
	"errors"
	"fmt"

	"github.com/BarrensZeppelin/jvmpointer/callgraph"
	"github.com/BarrensZeppelin/jvmpointer/internal/queue"
	"github.com/BarrensZeppelin/jvmpointer/ir"
	"github.com/BarrensZeppelin/jvmpointer/reflection"
	"github.com/BarrensZeppelin/jvmpointer/typehierarchy"
	"github.com/sirupsen/logrus"
	"golang.org/x/tools/container/intsets"
)

var ErrBudgetExhausted = errors.New("solver step budget exhausted")

// item is a unit of work: either a node whose points-to set has grown, or a
// method that has become reachable.
type item struct {
	n nodeid
	m *ir.Method
}

type callKey struct {
	site   ir.Stmt
	callee *ir.Method
}

type analysis struct {
	pag

	config     AnalysisConfig
	prog       *ir.Program
	hierarchy  *typehierarchy.Hierarchy
	log        logrus.FieldLogger
	reflection reflection.Model

	work      queue.Queue[item]
	reachable map[*ir.Method]bool
	built     map[*ir.Method]bool
	bound     map[callKey]bool

	cg   *callgraph.Graph
	seed *callgraph.Graph

	// Set while translating statements synthesized by the reflection model.
	synthetic bool
	// Statements synthesized by the reflection model.
	synthesized map[ir.Stmt]bool

	warnings []error
	warned   map[warnKey]bool
	steps    int

	// Called after every step.
	onStep func()
}

type warnKey struct {
	site ir.Stmt
	msg  string
}

// warn records a resolution failure at a call site. Each failure is reported
// once per site.
func (a *analysis) warn(caller *ir.Method, site ir.Stmt, err error, fields logrus.Fields) {
	key := warnKey{site, err.Error()}
	if a.warned[key] {
		return
	}
	a.warned[key] = true
	a.log.WithFields(fields).Warn(err)
	a.warnings = append(a.warnings, fmt.Errorf("%v, line %d: %w", caller, site.Line(), err))
}

// addObjects adds the objects in s to the points-to set of n.
func (a *analysis) addObjects(n nodeid, s *intsets.Sparse) {
	if a.nodes[n].pts.UnionWith(s) {
		a.work.Push(item{n: n})
	}
}

func (a *analysis) addObject(n nodeid, obj *AllocNode) {
	if a.nodes[n].pts.Insert(obj.id) {
		a.work.Push(item{n: n})
	}
}

// addFiltered adds the objects in s whose type is a subtype of t.
func (a *analysis) addFiltered(n nodeid, s *intsets.Sparse, t ir.Type) {
	var space [32]int
	changed := false
	for _, x := range s.AppendTo(space[:0]) {
		if a.hierarchy.IsSubtype(a.allocs[x].typ, t) {
			changed = a.nodes[n].pts.Insert(x) || changed
		}
	}
	if changed {
		a.work.Push(item{n: n})
	}
}

// sourceNode returns the node that always holds obj.
func (a *analysis) sourceNode(obj *AllocNode) nodeid {
	if id, found := a.sources[obj]; found {
		return id
	}
	id := a.addNode(&node{kind: nodeSource, typ: obj.typ, obj: obj})
	a.sources[obj] = id
	a.addObject(id, obj)
	return id
}

// addCopy adds an assign edge. The objects already in src are copied
// immediately; later additions flow through the edge when src is processed.
func (a *analysis) addCopy(src, dst nodeid) {
	if src == dst || !a.nodes[src].copyTo.Insert(int(dst)) {
		return
	}
	a.addObjects(dst, &a.nodes[src].pts)
}

// addCast adds an assign edge that only lets objects of type t through.
func (a *analysis) addCast(src, dst nodeid, t ir.Type) {
	if t == ir.ObjectType || !t.IsReference() {
		a.addCopy(src, dst)
		return
	}
	sn := a.nodes[src]
	e := castEdge{dst, t}
	for _, c := range sn.casts {
		if c == e {
			return
		}
	}
	sn.casts = append(sn.casts, e)
	a.addFiltered(dst, &sn.pts, t)
}

// addLoad registers dst = base.f and materializes the load for the objects
// base has already propagated.
func (a *analysis) addLoad(base nodeid, f ir.FieldSig, dst nodeid) {
	bn := a.nodes[base]
	bn.loads = append(bn.loads, fieldEdge{f, dst})
	a.forPropagated(bn, func(obj *AllocNode) {
		if fn := a.objectField(obj, f); fn != 0 {
			a.addCopy(fn, dst)
		}
	})
}

// addStore registers base.f = src.
func (a *analysis) addStore(base nodeid, f ir.FieldSig, src nodeid) {
	bn := a.nodes[base]
	bn.stores = append(bn.stores, fieldEdge{f, src})
	a.forPropagated(bn, func(obj *AllocNode) {
		if fn := a.objectField(obj, f); fn != 0 {
			a.addCopy(src, fn)
		}
	})
}

// addDynamicCall registers a virtual or interface call on its receiver.
func (a *analysis) addDynamicCall(recv nodeid, site *callSite) {
	rn := a.nodes[recv]
	rn.calls = append(rn.calls, site)
	a.forPropagated(rn, func(obj *AllocNode) { a.dispatch(site, obj) })
}

// forPropagated calls f for the objects of n that have been propagated. The
// remaining objects are handled when n is next processed.
func (a *analysis) forPropagated(n *node, f func(*AllocNode)) {
	var space [32]int
	for _, x := range n.prevPts.AppendTo(space[:0]) {
		f(a.allocs[x])
	}
}

// objectField returns the node of a field of obj, or 0 if obj cannot have
// the field.
func (a *analysis) objectField(obj *AllocNode, f ir.FieldSig) nodeid {
	if f == arrayElems {
		if !obj.typ.IsArray() {
			return 0
		}
	} else if a.hierarchy.Contains(f.Class) && !a.hierarchy.IsSubtype(obj.typ, f.Class) {
		return 0
	}
	return a.fieldNode(obj, f)
}

// reach marks m as reachable.
func (a *analysis) reach(m *ir.Method) {
	if !a.reachable[m] {
		a.reachable[m] = true
		a.work.Push(item{m: m})
	}
}

// solve runs the worklist until it is empty, the step budget is exhausted or
// ctx is done.
func (a *analysis) solve(ctx context.Context) error {
	var delta intsets.Sparse
	for !a.work.Empty() {
		if a.config.MaxSteps > 0 && a.steps >= a.config.MaxSteps {
			return ErrBudgetExhausted
		}
		if a.steps%256 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		a.steps++

		it := a.work.Pop()
		if it.m != nil {
			a.processMethod(it.m)
		} else {
			a.processNode(it.n, &delta)
		}

		if a.onStep != nil {
			a.onStep()
		}
	}
	return nil
}

func (a *analysis) processMethod(m *ir.Method) {
	if a.built[m] {
		return
	}
	a.built[m] = true

	for _, site := range a.addMethod(m) {
		a.bindStatic(m, site)
	}
}

func (a *analysis) processNode(id nodeid, delta *intsets.Sparse) {
	n := a.nodes[id]

	// Difference propagation.
	delta.Difference(&n.pts, &n.prevPts)
	if delta.IsEmpty() {
		return
	}
	n.prevPts.Copy(&n.pts)

	var space [32]int
	for _, x := range n.copyTo.AppendTo(space[:0]) {
		a.addObjects(nodeid(x), delta)
	}
	for _, c := range n.casts {
		a.addFiltered(c.dst, delta, c.to)
	}

	objs := delta.AppendTo(nil)
	for _, e := range n.loads {
		for _, x := range objs {
			if fn := a.objectField(a.allocs[x], e.field); fn != 0 {
				a.addCopy(fn, e.other)
			}
		}
	}
	for _, e := range n.stores {
		for _, x := range objs {
			if fn := a.objectField(a.allocs[x], e.field); fn != 0 {
				a.addCopy(e.other, fn)
			}
		}
	}
	for _, site := range n.calls {
		for _, x := range objs {
			a.dispatch(site, a.allocs[x])
		}
	}
}
