package pointer

import (
	"errors"

	"github.com/BarrensZeppelin/jvmpointer/internal/maps"
	"github.com/BarrensZeppelin/jvmpointer/ir"
	"golang.org/x/exp/slices"
)

// ErrNotConverged is returned when alias queries are requested for a result
// whose points-to sets have not reached a fixpoint. Answers computed from
// such a result would miss aliases.
var ErrNotConverged = errors.New("points-to analysis did not converge")

// AliasPropagator answers may-alias queries between local variables of a
// converged result. It never modifies the result.
type AliasPropagator struct {
	res *Result

	// Locals pointing to each abstract object, by object id.
	pointedBy map[int][]*ir.Local
	done      bool
}

func NewAliasPropagator(res *Result) (*AliasPropagator, error) {
	if !res.Converged {
		return nil, ErrNotConverged
	}
	return &AliasPropagator{res: res}, nil
}

// Propagate builds the index from abstract objects to the locals that may
// point to them. Repeated calls have no effect.
func (ap *AliasPropagator) Propagate() {
	if ap.done {
		return
	}
	ap.done = true
	ap.pointedBy = make(map[int][]*ir.Local)

	a := ap.res.a
	var space [32]int
	for _, l := range maps.KeysByValue(a.locals) {
		for _, x := range a.nodes[a.locals[l]].pts.AppendTo(space[:0]) {
			ap.pointedBy[x] = append(ap.pointedBy[x], l)
		}
	}
}

// MayAlias reports whether two locals may point to the same object.
func (ap *AliasPropagator) MayAlias(x, y *ir.Local) bool {
	if !PointerLike(x.Type()) || !PointerLike(y.Type()) {
		return false
	}
	return ap.res.Pointer(x).MayAlias(ap.res.Pointer(y))
}

// Aliases returns the other locals that may point to an object l points to,
// in the order their nodes were created.
func (ap *AliasPropagator) Aliases(l *ir.Local) []*ir.Local {
	ap.Propagate()
	if !PointerLike(l.Type()) {
		return nil
	}

	a := ap.res.a
	seen := map[*ir.Local]bool{l: true}
	var res []*ir.Local
	for _, obj := range ap.res.Pointer(l).PointsTo() {
		for _, o := range ap.pointedBy[obj.id] {
			if !seen[o] {
				seen[o] = true
				res = append(res, o)
			}
		}
	}
	slices.SortFunc(res, func(x, y *ir.Local) bool { return a.locals[x] < a.locals[y] })
	return res
}

// PointedBy returns the locals that may point to obj.
func (ap *AliasPropagator) PointedBy(obj *AllocNode) []*ir.Local {
	ap.Propagate()
	return ap.pointedBy[obj.id]
}
