package symtab

import (
	"github.com/pkg/errors"
)

var (
	ErrPathEmpty         = errors.New("module path is empty")
	ErrNotObjectCode     = errors.New("file does not contain object code")
	ErrStripped          = errors.New("module has no symbol table")
	ErrNoFunctionSymbols = errors.New("no function symbols found in the module")
	ErrSymNotFound       = errors.New("symbol not found")
)
