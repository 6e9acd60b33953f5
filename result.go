package pointer

import (
	"fmt"

	"github.com/BarrensZeppelin/jvmpointer/callgraph"
	"github.com/BarrensZeppelin/jvmpointer/internal/maps"
	"github.com/BarrensZeppelin/jvmpointer/internal/slices"
	"github.com/BarrensZeppelin/jvmpointer/ir"
	sets "github.com/BarrensZeppelin/jvmpointer/slices"
	"github.com/BarrensZeppelin/jvmpointer/typehierarchy"
	exslices "golang.org/x/exp/slices"
	"golang.org/x/tools/container/intsets"
)

type Result struct {
	Reachable map[*ir.Method]bool
	CallGraph *callgraph.Graph
	// Call graph computed by the seed algorithm.
	Seed *callgraph.Graph

	// Resolution failures and ignored trace entries, in the order they were
	// first encountered.
	Warnings []error

	// Converged is false if the solver was stopped before reaching a
	// fixpoint. The points-to sets are then under-approximations.
	Converged bool
	Steps     int

	// Set if the analysis was configured with alias propagation.
	Aliases *AliasPropagator

	a         *analysis
	hierarchy *typehierarchy.Hierarchy
}

func (a *analysis) result(converged bool) *Result {
	return &Result{
		Reachable: a.reachable,
		CallGraph: a.cg,
		Seed:      a.seed,
		Warnings:  a.warnings,
		Converged: converged,
		Steps:     a.steps,
		a:         a,
		hierarchy: a.hierarchy,
	}
}

// Hierarchy returns the type hierarchy used by the analysis.
func (r *Result) Hierarchy() *typehierarchy.Hierarchy { return r.hierarchy }

// Pointer is the points-to set of a node in the analysis.
type Pointer struct {
	res *Result
	n   nodeid
}

func (r *Result) pointer(n nodeid) *Pointer { return &Pointer{r, n} }

// Pointer returns the pointer of a local variable. The pointer is empty if
// the method of the local is unreachable.
func (r *Result) Pointer(l *ir.Local) *Pointer {
	if !PointerLike(l.Type()) {
		panic(fmt.Errorf("The type of %v is not pointer-like", l))
	}
	return r.pointer(r.a.lookup(l))
}

// StaticField returns the pointer of a static field.
func (r *Result) StaticField(f ir.FieldSig) *Pointer {
	return r.pointer(r.a.statics[f])
}

// Field returns the pointer of field f of obj.
func (r *Result) Field(obj *AllocNode, f ir.FieldSig) *Pointer {
	return r.pointer(r.a.fields[fieldKey{obj, f}])
}

// ArrayElement returns the pointer of the merged elements of an array object.
func (r *Result) ArrayElement(obj *AllocNode) *Pointer {
	return r.Field(obj, arrayElems)
}

// Exceptions returns the pointer of the thrown exception objects.
func (r *Result) Exceptions() *Pointer {
	return r.pointer(r.a.exceptions)
}

// Return returns the pointer of the values returned by m.
func (r *Result) Return(m *ir.Method) *Pointer {
	return r.pointer(r.a.returns[m])
}

// Locals returns the locals of m that have a node in the analysis, in the
// order their nodes were created.
func (r *Result) Locals(m *ir.Method) []*ir.Local {
	return slices.Filter(maps.KeysByValue(r.a.locals), func(l *ir.Local) bool {
		return l.Method == m
	})
}

// Allocations returns every abstract object created during the analysis,
// ordered by creation.
func (r *Result) Allocations() []*AllocNode {
	return append([]*AllocNode(nil), r.a.allocs...)
}

// Subobjects returns the labels of the fields and array elements of obj that
// hold at least one object.
func (r *Result) Subobjects(obj *AllocNode) []Label {
	var labels []Label
	for key, id := range r.a.fields {
		if key.obj != obj || r.a.nodes[id].pts.IsEmpty() {
			continue
		}
		if key.field == arrayElems {
			labels = append(labels, ElementPointer{obj})
		} else {
			labels = append(labels, FieldPointer{obj, key.field})
		}
	}
	exslices.SortFunc(labels, func(x, y Label) bool { return x.Path() < y.Path() })
	return labels
}

// Unjustified returns the call graph edges that are neither seed edges,
// edges of reflective calls recorded in the trace, nor explained by an object
// reaching the receiver of the call.
func (r *Result) Unjustified() []*callgraph.Edge {
	return slices.Filter(r.CallGraph.Edges(), func(e *callgraph.Edge) bool {
		return !checkSeedEdge(r, e)
	})
}

func (p *Pointer) set() *intsets.Sparse {
	if p.n == 0 {
		return &intsets.Sparse{}
	}
	return &p.res.a.nodes[p.n].pts
}

// PointsTo returns the abstract objects the pointer may point to, ordered by
// creation.
func (p *Pointer) PointsTo() []*AllocNode {
	return slices.Map(p.set().AppendTo(nil), func(x int) *AllocNode {
		return p.res.a.allocs[x]
	})
}

// Len returns the size of the points-to set.
func (p *Pointer) Len() int { return p.set().Len() }

// MayAlias reports whether the two pointers may point to the same object.
func (p *Pointer) MayAlias(o *Pointer) bool {
	return p.set().Intersects(o.set())
}

// Types returns the distinct types of the objects the pointer may point to.
func (p *Pointer) Types() []ir.Type {
	types := sets.Distinct(slices.Map(p.PointsTo(), (*AllocNode).Type))
	exslices.Sort(types)
	return types
}

func (p *Pointer) String() string {
	if p.n == 0 {
		return "{}"
	}
	return fmt.Sprintf("%v: %v", p.res.a.nodes[p.n], p.PointsTo())
}
