package callgraph

import (
	"errors"
	"fmt"

	"github.com/BarrensZeppelin/jvmpointer/internal/queue"
	"github.com/BarrensZeppelin/jvmpointer/ir"
	"github.com/BarrensZeppelin/jvmpointer/typehierarchy"
	"github.com/sirupsen/logrus"
)

// Algorithm computes a call graph from a set of entry points.
type Algorithm interface {
	Initialize(entryPoints []ir.MethodSig) (*Graph, error)
}

var ErrUnknownEntryPoint = errors.New("unknown entry point")

// walker holds what CHA and RTA share: the reachable-method worklist and the
// resolution of statically bound calls.
type walker struct {
	prog      *ir.Program
	hierarchy *typehierarchy.Hierarchy
	log       logrus.FieldLogger

	graph *Graph
	work  queue.Queue[*ir.Method]
}

func (w *walker) init(entryPoints []ir.MethodSig) error {
	w.graph = New()
	w.work = queue.Queue[*ir.Method]{}

	for _, sig := range entryPoints {
		m := w.prog.Method(sig)
		if m == nil {
			return fmt.Errorf("%w: %v", ErrUnknownEntryPoint, sig)
		}
		if w.graph.AddRoot(m) {
			w.work.Push(m)
		}
	}
	return nil
}

func (w *walker) addEdge(caller *ir.Method, site ir.Stmt, callee *ir.Method) {
	known := w.graph.ContainsMethod(callee)
	w.graph.AddEdge(caller, site, callee)
	if !known {
		w.work.Push(callee)
	}
}

// StaticTarget resolves the target of a static or special invocation. The
// target must be concrete.
func StaticTarget(h *typehierarchy.Hierarchy, ie *ir.InvokeExpr) (*ir.Method, error) {
	m, err := h.ResolveMethod(ie.Method.Class, ie.Method.Sub)
	if err != nil {
		return nil, err
	}
	if !m.Concrete() {
		return nil, &typehierarchy.MethodResolutionError{Type: ie.Method.Class, Sub: ie.Method.Sub}
	}
	return m, nil
}

func (w *walker) staticTarget(caller *ir.Method, ie *ir.InvokeExpr) *ir.Method {
	m, err := StaticTarget(w.hierarchy, ie)
	if err != nil {
		w.log.WithField("method", caller).Debugf("unresolved call to %v: %v", ie.Method, err)
	}
	return m
}

// dispatch resolves a dynamic call against one possible receiver type.
// Types that cannot be instantiated are ignored.
func (w *walker) dispatch(caller *ir.Method, ie *ir.InvokeExpr, t ir.Type) *ir.Method {
	c := w.hierarchy.Class(t)
	if c == nil || c.Phantom || !c.Concrete() {
		return nil
	}

	m, err := w.hierarchy.ResolveConcreteMethod(t, ie.Method.Sub)
	if err != nil {
		w.log.WithFields(logrus.Fields{
			"method": caller,
			"type":   t,
		}).Warnf("dispatch of %v failed: %v", ie.Method, err)
		return nil
	}
	return m
}
