package pointer

import "github.com/BarrensZeppelin/jvmpointer/ir"

// PointerLike reports whether values of type t can hold objects.
func PointerLike(t ir.Type) bool {
	return t.IsReference()
}
