package tracer

import (
	"regexp"

	"github.com/pkg/errors"
)

// FilterMode selects what a filter expression is matched against.
type FilterMode uint8

const (
	// ModuleFilter matches against module paths.
	ModuleFilter FilterMode = iota

	// SymbolFilter matches against symbol names.
	SymbolFilter
)

// Filter applies a POSIX extended regular expression to module paths or
// symbol names.
type Filter struct {
	mode FilterMode
	expr *regexp.Regexp
}

// NewFilter compiles a filter. Case-insensitive expressions fold case via
// the extended engine, since the POSIX dialect has no folding flag.
func NewFilter(expr string, icase bool, mode FilterMode) (*Filter, error) {
	f := &Filter{mode: mode}
	if err := f.SetExpr(expr, icase); err != nil {
		return nil, err
	}

	return f, nil
}

func (f *Filter) Mode() FilterMode {
	return f.mode
}

func (f *Filter) SetMode(mode FilterMode) {
	f.mode = mode
}

// SetExpr recompiles the filter expression.
func (f *Filter) SetExpr(expr string, icase bool) error {
	if expr == "" {
		return ErrExprEmpty
	}

	var (
		re  *regexp.Regexp
		err error
	)
	if icase {
		re, err = regexp.Compile("(?i)" + expr)
	} else {
		re, err = regexp.CompilePOSIX(expr)
	}
	if err != nil {
		return errors.Wrapf(err, "failed to compile filter %s", expr)
	}

	f.expr = re
	return nil
}

// Apply reports whether the target matches the filter expression.
func (f *Filter) Apply(target string) bool {
	if target == "" {
		return false
	}

	return f.expr.MatchString(target)
}
