package reflection

import (
	"github.com/BarrensZeppelin/jvmpointer/ir"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

func sortedSubs(c *ir.Class) []ir.SubSignature {
	subs := maps.Keys(c.Methods)
	slices.Sort(subs)
	return subs
}

// synth builds the replacement statements for one reflective call site.
type synth struct {
	m    *ir.Method
	site ir.Stmt
	ie   *ir.InvokeExpr
	// Receives the result of the reflective call, if any.
	lhs  *ir.Local
	prog *ir.Program

	intermediate *ir.Local
}

func (s *synth) pos() ir.Pos { return ir.Pos{Ln: s.site.Line()} }

func (s *synth) assign(lhs, rhs ir.Value) ir.Stmt {
	return &ir.AssignStmt{Pos: s.pos(), LHS: lhs, RHS: rhs}
}

func (s *synth) invoke(ie *ir.InvokeExpr) ir.Stmt {
	if s.lhs != nil {
		return s.assign(s.lhs, ie)
	}
	return &ir.InvokeStmt{Pos: s.pos(), Invoke: ie}
}

func (s *synth) arg(i int) ir.Value {
	if i < len(s.ie.Args) {
		return s.ie.Args[i]
	}
	return nil
}

func (s *synth) localArg(i int) *ir.Local {
	l, _ := s.arg(i).(*ir.Local)
	return l
}

// element returns a local holding an element of the array argument i,
// emitting the read into stmts. The local is shared by every target of the
// call site.
func (s *synth) element(i int, stmts *[]ir.Stmt) *ir.Local {
	if s.intermediate != nil {
		return s.intermediate
	}
	arr := s.localArg(i)
	if arr == nil || !arr.Type().IsArray() {
		return nil
	}
	ref := &ir.ArrayRef{Base: arr, Index: ir.IntConstant(0)}
	s.intermediate = s.m.NewLocal("intermediate/"+ref.String(), ir.ObjectType)
	*stmts = append(*stmts, s.assign(s.intermediate, ref))
	return s.intermediate
}

func repeatArg(v *ir.Local, n int) []ir.Value {
	args := make([]ir.Value, n)
	for i := range args {
		if v != nil {
			args[i] = v
		} else {
			args[i] = ir.NullConstant{}
		}
	}
	return args
}

func (s *synth) transform(kind Kind, target string) []ir.Stmt {
	switch kind {
	case ClassForName:
		if s.lhs == nil {
			return nil
		}
		return []ir.Stmt{s.assign(s.lhs, ir.ClassConstant{Of: ir.Type(target)})}

	case ClassNewInstance:
		c := s.prog.Class(ir.Type(target))
		if s.lhs == nil || c == nil || c.Method(ctorSub) == nil {
			return nil
		}
		ctor := c.Method(ctorSub)
		return []ir.Stmt{
			s.assign(s.lhs, &ir.NewExpr{Class: c.Name}),
			&ir.InvokeStmt{Pos: s.pos(), Invoke: &ir.InvokeExpr{
				Kind: ir.SpecialInvoke, Base: s.lhs, Method: ctor.Sig,
			}},
		}

	case ConstructorNewInstance:
		if s.lhs == nil {
			return nil
		}
		ctor := s.method(target)
		if ctor == nil {
			return nil
		}
		var stmts []ir.Stmt
		elem := s.element(0, &stmts)
		return append(stmts,
			s.assign(s.lhs, &ir.NewExpr{Class: ctor.Sig.Class}),
			&ir.InvokeStmt{Pos: s.pos(), Invoke: &ir.InvokeExpr{
				Kind:   ir.SpecialInvoke,
				Base:   s.lhs,
				Method: ctor.Sig,
				Args:   repeatArg(elem, len(ctor.Params)),
			}})

	case MethodInvoke:
		callee := s.method(target)
		if callee == nil {
			return nil
		}
		var stmts []ir.Stmt
		elem := s.element(1, &stmts)
		ie := &ir.InvokeExpr{Method: callee.Sig, Args: repeatArg(elem, len(callee.Params))}
		if callee.Static {
			ie.Kind = ir.StaticInvoke
		} else {
			base := s.localArg(0)
			if base == nil {
				return nil
			}
			ie.Kind, ie.Base = ir.VirtualInvoke, base
		}
		return append(stmts, s.invoke(ie))

	case FieldSet:
		ref := s.fieldRef(target)
		if ref == nil || s.arg(1) == nil {
			return nil
		}
		return []ir.Stmt{s.assign(ref, s.arg(1))}

	case FieldGet:
		ref := s.fieldRef(target)
		if ref == nil || s.lhs == nil || !ref.Type().IsReference() {
			return nil
		}
		return []ir.Stmt{s.assign(s.lhs, ref)}

	case ArrayNewInstance:
		t := ir.Type(target)
		if s.lhs == nil || !t.IsArray() {
			return nil
		}
		return []ir.Stmt{s.assign(s.lhs, &ir.NewArrayExpr{Elem: t.Elem()})}
	}
	return nil
}

func (s *synth) method(target string) *ir.Method {
	sig, err := ir.ParseMethodSig(target)
	if err != nil {
		return nil
	}
	return s.prog.Method(sig)
}

// fieldRef builds a reference to the traced field through the first
// argument of the call, which is null for static fields.
func (s *synth) fieldRef(target string) ir.Value {
	sig, err := ir.ParseFieldSig(target)
	if err != nil {
		return nil
	}
	f := s.prog.Field(sig)
	if f == nil {
		return nil
	}
	if f.Static {
		return &ir.StaticFieldRef{Field: f.Sig}
	}
	base := s.localArg(0)
	if base == nil {
		return nil
	}
	return &ir.InstanceFieldRef{Base: base, Field: f.Sig}
}

func (s *synth) arrayGet() []ir.Stmt {
	base := s.localArg(0)
	if s.lhs == nil || base == nil {
		return nil
	}
	switch t := base.Type(); {
	case t.IsArray():
		return []ir.Stmt{s.assign(s.lhs, &ir.ArrayRef{Base: base, Index: ir.IntConstant(0)})}
	case t == ir.ObjectType:
		arr := s.m.NewLocal("intermediate/"+base.Name, ir.ArrayOf(ir.ObjectType))
		return []ir.Stmt{
			s.assign(arr, base),
			s.assign(s.lhs, &ir.ArrayRef{Base: arr, Index: ir.IntConstant(0)}),
		}
	}
	return nil
}

func (s *synth) arraySet() []ir.Stmt {
	base := s.localArg(0)
	if base == nil || !base.Type().IsArray() || s.arg(2) == nil {
		return nil
	}
	return []ir.Stmt{s.assign(&ir.ArrayRef{Base: base, Index: ir.IntConstant(0)}, s.arg(2))}
}
