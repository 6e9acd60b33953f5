package pointer

// This file translates method bodies into PAG nodes and edges. Calls are only
// registered here; the solver decides their targets.

import (
	"github.com/BarrensZeppelin/jvmpointer/ir"
	"github.com/BarrensZeppelin/jvmpointer/reflection"
	"github.com/sirupsen/logrus"
)

// addMethod translates the body of a reachable method. It returns the
// statically bound call sites of the body, which the solver binds directly.
func (a *analysis) addMethod(m *ir.Method) []ir.Stmt {
	if !m.Concrete() {
		return nil
	}

	var static []ir.Stmt
	for _, stmt := range m.Body() {
		static = a.addStmt(m, stmt, static)

		if ie, ok := ir.InvokeExprOf(stmt); ok && a.reflection != nil && reflection.IsReflective(ie) {
			for _, syn := range a.reflection.Resolve(m, stmt) {
				a.log.WithFields(logrus.Fields{
					"method": m,
					"site":   stmt,
				}).Debugf("reflective call replaced by %v", syn)
				a.synthetic = true
				a.synthesized[syn] = true
				static = a.addStmt(m, syn, static)
				a.synthetic = false
			}
		}
	}
	return static
}

func (a *analysis) addStmt(m *ir.Method, stmt ir.Stmt, static []ir.Stmt) []ir.Stmt {
	switch stmt := stmt.(type) {
	case *ir.AssignStmt:
		if ie, ok := stmt.RHS.(*ir.InvokeExpr); ok {
			return a.addInvoke(m, stmt, ie, static)
		}
		a.addAssign(m, stmt)

	case *ir.InvokeStmt:
		return a.addInvoke(m, stmt, stmt.Invoke, static)

	case *ir.ReturnStmt:
		if stmt.Value != nil && PointerLike(m.Sig.Sub.Return()) {
			if src := a.valueNode(m, stmt, stmt.Value); src != 0 {
				a.addCopy(src, a.returnNode(m))
			}
		}

	case *ir.ThrowStmt:
		if src := a.valueNode(m, stmt, stmt.Value); src != 0 {
			a.addCopy(src, a.exceptionNode())
		}
	}
	return static
}

// valueNode returns the node holding the objects of an immediate value, or 0
// if the value holds no objects.
func (a *analysis) valueNode(m *ir.Method, stmt ir.Stmt, v ir.Value) nodeid {
	switch v := v.(type) {
	case *ir.Local:
		if !PointerLike(v.Type()) {
			return 0
		}
		return a.varNode(v)
	case ir.StringConstant:
		return a.sourceNode(a.stringObject())
	case ir.ClassConstant:
		return a.sourceNode(a.classObject(v.Of))
	case *ir.NewExpr:
		return a.sourceNode(a.allocation(AllocNew, v.Class, stmt, m))
	case *ir.NewArrayExpr:
		return a.sourceNode(a.allocation(AllocNewArray, v.Type(), stmt, m))
	}
	return 0
}

// resolveField returns the signature of the field declaration a reference
// denotes, searching the superclasses of the referenced class.
func (a *analysis) resolveField(f ir.FieldSig) ir.FieldSig {
	for _, t := range a.hierarchy.Superclasses(f.Class) {
		if c := a.prog.Class(t); c != nil {
			if decl := c.Fields[f.Name]; decl != nil {
				return decl.Sig
			}
		}
	}
	return f
}

func (a *analysis) addAssign(m *ir.Method, stmt *ir.AssignStmt) {
	switch lhs := stmt.LHS.(type) {
	case *ir.Local:
		if !PointerLike(lhs.Type()) {
			return
		}
		dst := a.varNode(lhs)

		switch rhs := stmt.RHS.(type) {
		case *ir.CastExpr:
			if src := a.valueNode(m, stmt, rhs.X); src != 0 {
				a.addCast(src, dst, rhs.To)
			}
		case *ir.InstanceFieldRef:
			if base := a.valueNode(m, stmt, rhs.Base); base != 0 {
				a.addLoad(base, a.resolveField(rhs.Field), dst)
			}
		case *ir.ArrayRef:
			if base := a.valueNode(m, stmt, rhs.Base); base != 0 {
				a.addLoad(base, arrayElems, dst)
			}
		case *ir.StaticFieldRef:
			a.addCopy(a.staticNode(a.resolveField(rhs.Field)), dst)
		case ir.CaughtExceptionRef:
			a.addCopy(a.exceptionNode(), dst)
		default:
			if src := a.valueNode(m, stmt, rhs); src != 0 {
				a.addCopy(src, dst)
			}
		}

	case *ir.InstanceFieldRef:
		src := a.valueNode(m, stmt, stmt.RHS)
		base := a.valueNode(m, stmt, lhs.Base)
		if src != 0 && base != 0 {
			a.addStore(base, a.resolveField(lhs.Field), src)
		}

	case *ir.ArrayRef:
		src := a.valueNode(m, stmt, stmt.RHS)
		base := a.valueNode(m, stmt, lhs.Base)
		if src != 0 && base != 0 {
			a.addStore(base, arrayElems, src)
		}

	case *ir.StaticFieldRef:
		if src := a.valueNode(m, stmt, stmt.RHS); src != 0 {
			a.addCopy(src, a.staticNode(a.resolveField(lhs.Field)))
		}
	}
}

func (a *analysis) addInvoke(m *ir.Method, stmt ir.Stmt, ie *ir.InvokeExpr, static []ir.Stmt) []ir.Stmt {
	if a.config.Seeded && !a.synthetic {
		// Seed edges are bound up front.
		return static
	}

	if !ie.Kind.Dynamic() {
		return append(static, stmt)
	}
	if ie.Base == nil {
		return static
	}
	a.addDynamicCall(a.varNode(ie.Base), &callSite{caller: m, stmt: stmt, invoke: ie})
	return static
}
