package callgraph

import (
	"github.com/BarrensZeppelin/jvmpointer/ir"
	"github.com/BarrensZeppelin/jvmpointer/typehierarchy"
	"github.com/sirupsen/logrus"
)

type pendingCall struct {
	caller *ir.Method
	site   ir.Stmt
	invoke *ir.InvokeExpr
}

// RTA is rapid type analysis: a dynamic call may only target the
// implementations of classes that are instantiated somewhere in the reachable
// part of the program. Instantiations discovered in newly reachable methods
// are applied to every dynamic call site seen so far, and vice versa, until
// both sets are closed.
type RTA struct {
	walker

	instantiated map[ir.Type]bool
	// Instantiated types in discovery order.
	types []ir.Type
	// Dynamic call sites grouped by declared receiver class.
	pending      map[ir.Type][]pendingCall
	pendingOrder []ir.Type
}

func NewRTA(prog *ir.Program, h *typehierarchy.Hierarchy, log logrus.FieldLogger) *RTA {
	return &RTA{walker: walker{prog: prog, hierarchy: h, log: log}}
}

// Instantiated returns the types instantiated in the reachable program, in
// discovery order. Only meaningful after Initialize.
func (a *RTA) Instantiated() []ir.Type { return a.types }

func (a *RTA) Initialize(entryPoints []ir.MethodSig) (*Graph, error) {
	a.instantiated = make(map[ir.Type]bool)
	a.types = nil
	a.pending = make(map[ir.Type][]pendingCall)
	a.pendingOrder = nil

	if err := a.init(entryPoints); err != nil {
		return nil, err
	}

	for !a.work.Empty() {
		m := a.work.Pop()
		body := m.Body()

		for _, stmt := range body {
			if as, ok := stmt.(*ir.AssignStmt); ok {
				switch rhs := as.RHS.(type) {
				case *ir.NewExpr:
					a.instantiate(rhs.Class)
				case ir.StringConstant:
					a.instantiate(ir.StringType)
				case ir.ClassConstant:
					a.instantiate(ir.ClassType)
				}
			}
		}

		for _, stmt := range body {
			ie, ok := ir.InvokeExprOf(stmt)
			if !ok {
				continue
			}

			if !ie.Kind.Dynamic() {
				if callee := a.staticTarget(m, ie); callee != nil {
					a.addEdge(m, stmt, callee)
				}
				continue
			}

			call := pendingCall{m, stmt, ie}
			declared := ie.Method.Class
			if _, found := a.pending[declared]; !found {
				a.pendingOrder = append(a.pendingOrder, declared)
			}
			a.pending[declared] = append(a.pending[declared], call)

			for _, t := range a.types {
				if a.hierarchy.IsSubtype(t, declared) {
					a.resolve(call, t)
				}
			}
		}
	}

	a.log.Debugf("RTA: %d methods, %d edges, %d instantiated types",
		len(a.graph.Nodes), a.graph.NumEdges(), len(a.types))
	return a.graph, nil
}

func (a *RTA) instantiate(t ir.Type) {
	if a.instantiated[t] {
		return
	}
	a.instantiated[t] = true
	a.types = append(a.types, t)

	for _, declared := range a.pendingOrder {
		if !a.hierarchy.IsSubtype(t, declared) {
			continue
		}
		for _, call := range a.pending[declared] {
			a.resolve(call, t)
		}
	}
}

func (a *RTA) resolve(call pendingCall, t ir.Type) {
	if callee := a.dispatch(call.caller, call.invoke, t); callee != nil {
		a.addEdge(call.caller, call.site, callee)
	}
}
