// Package plugin lets external code observe the enter/exit event stream.
// A plugin is either a pair of in-process callbacks or a dynamically loaded
// module exporting the two well-known entry points.
package plugin

import (
	goplugin "plugin"

	"github.com/pkg/errors"
)

// Hook is the signature of both plugin entry points: the callee address and
// the call site address of the instrumented call.
type Hook func(fn, site uintptr)

const (
	enterSymbol = "mod_enter"
	exitSymbol  = "mod_exit"
)

// Plugin fans instrumentation events out to external code. DSO plugins own
// their loaded module handle.
type Plugin struct {
	path   string
	scope  string
	handle *goplugin.Plugin
	begin  Hook
	end    Hook
}

// New registers a pair of in-process callbacks as a plugin. Either hook may
// be nil for a one-sided observer.
func New(begin, end Hook) *Plugin {
	return &Plugin{
		begin: begin,
		end:   end,
	}
}

// Open loads a plugin module and resolves its entry points. An empty scope
// selects the C linkage names; a non-empty scope ("ns::cls") selects the
// Itanium-mangled nested names.
func Open(path, scope string) (*Plugin, error) {
	if path == "" {
		return nil, ErrPathEmpty
	}

	handle, err := goplugin.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load plugin %s", path)
	}

	p := &Plugin{
		path:   path,
		scope:  scope,
		handle: handle,
	}
	if p.begin, err = p.resolve(enterSymbol); err != nil {
		return nil, err
	}
	if p.end, err = p.resolve(exitSymbol); err != nil {
		return nil, err
	}

	return p, nil
}

// Path returns the plugin module path, empty for in-process plugins.
func (p *Plugin) Path() string {
	return p.path
}

// Inline reports whether the plugin runs in-process callbacks rather than a
// loaded module.
func (p *Plugin) Inline() bool {
	return p.handle == nil
}

// Begin invokes the enter callback.
func (p *Plugin) Begin(fn, site uintptr) {
	if p.begin != nil {
		p.begin(fn, site)
	}
}

// End invokes the exit callback.
func (p *Plugin) End(fn, site uintptr) {
	if p.end != nil {
		p.end(fn, site)
	}
}

func (p *Plugin) resolve(name string) (Hook, error) {
	symbol := name
	if p.scope != "" {
		symbol = Mangle(p.scope, name)
	}

	sym, err := p.handle.Lookup(symbol)
	if err != nil {
		return nil, errors.Wrapf(ErrSymbolMissing, "%s in %s", symbol, p.path)
	}

	switch fn := sym.(type) {
	case func(uintptr, uintptr):
		return fn, nil
	case *Hook:
		return *fn, nil
	default:
		return nil, errors.Wrapf(ErrBadSignature, "%s in %s", symbol, p.path)
	}
}
