package symtab

import (
	"github.com/ianlancetaylor/demangle"
)

// Symbol pairs the absolute runtime address of a function with its
// demangled name. Immutable after construction.
type Symbol struct {
	Addr uintptr
	Name string
}

// NewSymbol builds a symbol from a decorated name. Demangling that fails
// retains the decorated name, which is what demangle.Filter does on error.
func NewSymbol(addr uintptr, name string) Symbol {
	return Symbol{
		Addr: addr,
		Name: demangle.Filter(name),
	}
}

func (s Symbol) IsResolved() bool {
	return s.Name != ""
}
