package pointer

// This file resolves call sites and binds arguments, receivers and return
// values of resolved calls. Every call graph edge of the result is added
// here.

import (
	"github.com/BarrensZeppelin/jvmpointer/callgraph"
	"github.com/BarrensZeppelin/jvmpointer/ir"
	sets "github.com/BarrensZeppelin/jvmpointer/slices"
	"github.com/sirupsen/logrus"
)

// dispatch resolves a dynamic call for one receiver object.
func (a *analysis) dispatch(site *callSite, obj *AllocNode) {
	declared := site.invoke.Method.Class
	if !a.hierarchy.IsSubtype(obj.typ, declared) {
		return
	}
	if !obj.typ.IsArray() && !a.hierarchy.Contains(obj.typ) {
		a.log.WithField("method", site.caller).Debugf("skipping dispatch of %v on %v outside the program", site.invoke.Method, obj.typ)
		return
	}

	callee, err := a.hierarchy.ResolveConcreteMethod(obj.typ, site.invoke.Method.Sub)
	if err != nil {
		a.warn(site.caller, site.stmt, err, logrus.Fields{
			"method": site.caller,
			"site":   site.stmt,
			"type":   obj.typ,
		})
		return
	}

	a.addObject(a.varNode(callee.This), obj)
	a.bindCall(site.caller, site.stmt, callee)
}

// bindStatic resolves and binds a static or special invocation.
func (a *analysis) bindStatic(caller *ir.Method, stmt ir.Stmt) {
	ie, _ := ir.InvokeExprOf(stmt)
	if !a.prog.ContainsClass(ie.Method.Class) {
		a.log.WithField("method", caller).Debugf("skipping call to %v outside the program", ie.Method)
		return
	}

	callee, err := callgraph.StaticTarget(a.hierarchy, ie)
	if err != nil {
		a.warn(caller, stmt, err, logrus.Fields{"method": caller, "site": stmt})
		return
	}

	if ie.Kind == ir.SpecialInvoke && ie.Base != nil && callee.This != nil {
		a.addCopy(a.varNode(ie.Base), a.varNode(callee.This))
	}
	a.bindCall(caller, stmt, callee)
}

// bindCall records a call edge and binds the arguments and return value of
// the call. Binding is done once per call site and callee.
func (a *analysis) bindCall(caller *ir.Method, stmt ir.Stmt, callee *ir.Method) {
	key := callKey{stmt, callee}
	if a.bound[key] {
		return
	}
	a.bound[key] = true

	a.cg.AddEdge(caller, stmt, callee)
	a.reach(callee)

	ie, _ := ir.InvokeExprOf(stmt)
	for i, arg := range ie.Args {
		if i >= len(callee.Params) {
			break
		}
		param := callee.Params[i]
		if !PointerLike(param.Type()) {
			continue
		}
		if src := a.valueNode(caller, stmt, arg); src != 0 {
			a.addCopy(src, a.varNode(param))
		}
	}

	if res := ir.ResultOf(stmt); res != nil && PointerLike(res.Type()) && PointerLike(callee.Sig.Sub.Return()) {
		a.addCopy(a.returnNode(callee), a.varNode(res))
	}
}

// bindSeed binds the edges of the seed call graph. Receivers flow into the
// callee only if they are instances of the callee's class.
func (a *analysis) bindSeed() {
	for _, e := range a.seed.Edges() {
		if e.Site == nil {
			continue
		}
		caller, callee := e.Caller.Method, e.Callee.Method
		ie, _ := ir.InvokeExprOf(e.Site)
		if ie.Base != nil && callee.This != nil {
			a.addCast(a.varNode(ie.Base), a.varNode(callee.This), callee.Sig.Class)
		}
		a.bindCall(caller, e.Site, callee)
	}
}

// checkSeedEdge reports whether a call graph edge is justified by the seed
// call graph, by the reflection trace or by an object reaching the receiver.
func checkSeedEdge(r *Result, e *callgraph.Edge) bool {
	if e.Site == nil || r.a.synthesized[e.Site] {
		return true
	}
	if sets.Contains(r.Seed.Targets(e.Site), e.Callee.Method) {
		return true
	}

	ie, _ := ir.InvokeExprOf(e.Site)
	if ie.Base == nil || !ie.Kind.Dynamic() {
		return false
	}
	for _, obj := range r.Pointer(ie.Base).PointsTo() {
		if r.hierarchy.IsSubtype(obj.Type(), ie.Method.Class) {
			if m, err := r.hierarchy.ResolveConcreteMethod(obj.Type(), ie.Method.Sub); err == nil && m == e.Callee.Method {
				return true
			}
		}
	}
	return false
}
