package callgraph

import (
	"github.com/BarrensZeppelin/jvmpointer/ir"
	"github.com/BarrensZeppelin/jvmpointer/typehierarchy"
	"github.com/sirupsen/logrus"
)

// CHA is class hierarchy analysis: a dynamic call may target the
// implementation of every concrete subtype of the declared receiver class.
type CHA struct {
	walker
}

func NewCHA(prog *ir.Program, h *typehierarchy.Hierarchy, log logrus.FieldLogger) *CHA {
	return &CHA{walker{prog: prog, hierarchy: h, log: log}}
}

func (a *CHA) Initialize(entryPoints []ir.MethodSig) (*Graph, error) {
	if err := a.init(entryPoints); err != nil {
		return nil, err
	}

	for !a.work.Empty() {
		m := a.work.Pop()
		for _, stmt := range m.Body() {
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

			for _, t := range a.hierarchy.Subtypes(ie.Method.Class) {
				if callee := a.dispatch(m, ie, t); callee != nil {
					a.addEdge(m, stmt, callee)
				}
			}
		}
	}

	a.log.Debugf("CHA: %d methods, %d edges", len(a.graph.Nodes), a.graph.NumEdges())
	return a.graph, nil
}
