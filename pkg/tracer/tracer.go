// Package tracer implements the instrumentation runtime: the enter/exit
// hooks every instrumented function calls, the process-wide singleton that
// ties the module registry, plugins and filters together, and the stack
// trace renderer.
package tracer

import (
	"os"
	"sync/atomic"

	"github.com/pkg/errors"
	log "github.com/rs/zerolog"

	"github.com/camelspotter/libinstrument/internal/relock"
	"github.com/camelspotter/libinstrument/pkg/plugin"
	"github.com/camelspotter/libinstrument/pkg/proc"
	"github.com/camelspotter/libinstrument/pkg/srcline"
)

// The interface singleton and the global reentrant lock. The lock must be
// recursive: the exit hook can fire from inside code that already runs under
// it, such as trace rendering.
var (
	iface  atomic.Pointer[Tracer]
	lock   relock.Mutex
	osExit = os.Exit
)

// Tracer is the singleton façade of the instrumentation runtime. It owns the
// process registry, the plugin list and the filter list.
type Tracer struct {
	plugins []*plugin.Plugin
	filters []*Filter
	*TracerOptions
}

// NewTracer builds a tracer. Most callers want Bootstrap instead, which also
// discovers modules and installs the singleton.
func NewTracer(opts ...TracerOption) *Tracer {
	t := &Tracer{
		TracerOptions: &TracerOptions{},
	}
	for _, opt := range opts {
		opt(t)
	}

	if t.logger == nil {
		logger := log.New(log.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
		t.logger = &logger
	}
	if t.unwindProbe == nil {
		t.unwindProbe = func() bool { return false }
	}
	if t.resolver == nil {
		t.resolver = srcline.NewDwarfResolver()
	}
	if t.proc == nil {
		t.proc = proc.New(
			proc.WithUnwindProbe(t.unwindProbe),
			proc.WithLogger(t.logger),
		)
	}

	return t
}

// Proc returns the process registry.
func (t *Tracer) Proc() *proc.Process {
	return t.proc
}

// Install publishes the tracer as the global interface used by the hooks.
func Install(t *Tracer) {
	iface.Store(t)
}

// Uninstall withdraws the global interface; subsequent hook invocations are
// no-ops.
func Uninstall() {
	iface.Store(nil)
}

// Interface returns the installed tracer, or nil while the runtime is not
// ready: before Install, or before any module symbols are loaded. The hooks
// treat a nil interface as a no-op since instrumented functions may run
// during library startup.
func Interface() *Tracer {
	t := iface.Load()
	if t == nil || t.proc == nil {
		return nil
	}
	if t.proc.ModuleCount() == 0 || t.proc.SymbolCount() == 0 {
		return nil
	}

	return t
}

// Lock acquires the global reentrant lock.
func Lock() {
	lock.Lock()
}

// Unlock releases the global reentrant lock.
func Unlock() {
	lock.Unlock()
}

// Enter is the instrumentation entry hook, invoked at the start of every
// instrumented function with the callee address and the call site address.
// A failure here would silently corrupt the simulated stacks, so internal
// errors abort the process.
func Enter(fn, site uintptr) {
	t := Interface()
	if t == nil {
		return
	}

	t.beginPlugins(fn, site)

	if err := t.enter(fn, site); err != nil {
		t.logger.Error().Err(err).Msg("enter hook failed")
		osExit(1)
	}
}

// Exit is the instrumentation exit hook, invoked at the end of every
// instrumented function. Internal errors abort the process.
func Exit(fn, site uintptr) {
	t := Interface()
	if t == nil {
		return
	}

	t.endPlugins(fn, site)

	if err := t.exit(); err != nil {
		t.logger.Error().Err(err).Msg("exit hook failed")
		osExit(1)
	}
}

func (t *Tracer) enter(fn, site uintptr) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic in enter hook: %v", r)
		}
	}()

	Lock()
	defer Unlock()

	t.proc.CurrentThread().Called(fn, site)
	return nil
}

func (t *Tracer) exit() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic in exit hook: %v", r)
		}
	}()

	Lock()
	defer Unlock()

	t.proc.CurrentThread().Returned()
	return nil
}

// RegisterPlugin appends a plugin to the dispatch list. DSO plugin paths
// must be unique.
func (t *Tracer) RegisterPlugin(p *plugin.Plugin) error {
	if p == nil {
		return ErrPluginNil
	}

	Lock()
	defer Unlock()

	if !p.Inline() {
		for _, cur := range t.plugins {
			if cur.Path() == p.Path() {
				return errors.Wrapf(ErrAlreadyRegistered, "%s", p.Path())
			}
		}
	}

	t.plugins = append(t.plugins, p)
	return nil
}

// OpenPlugin loads a plugin module, resolves its entry points and registers
// it.
func (t *Tracer) OpenPlugin(path, scope string) (*plugin.Plugin, error) {
	p, err := plugin.Open(path, scope)
	if err != nil {
		return nil, err
	}
	if err := t.RegisterPlugin(p); err != nil {
		return nil, err
	}

	return p, nil
}

func (t *Tracer) PluginCount() int {
	Lock()
	defer Unlock()

	return len(t.plugins)
}

func (t *Tracer) PluginAt(i int) (*plugin.Plugin, error) {
	Lock()
	defer Unlock()

	if i < 0 || i >= len(t.plugins) {
		return nil, ErrOutOfBounds
	}

	return t.plugins[i], nil
}

// PluginByPath returns the registered DSO plugin with the given module path.
func (t *Tracer) PluginByPath(path string) (*plugin.Plugin, error) {
	Lock()
	defer Unlock()

	for _, p := range t.plugins {
		if !p.Inline() && p.Path() == path {
			return p, nil
		}
	}

	return nil, errors.Wrapf(ErrPluginNotFound, "%s", path)
}

func (t *Tracer) RemovePlugin(i int) error {
	Lock()
	defer Unlock()

	if i < 0 || i >= len(t.plugins) {
		return ErrOutOfBounds
	}

	t.plugins = append(t.plugins[:i], t.plugins[i+1:]...)
	return nil
}

// beginPlugins fans the enter event out in registration order. The fan-out
// runs outside the global lock so plugin code cannot deadlock on it; a
// panicking plugin is reported and skipped.
func (t *Tracer) beginPlugins(fn, site uintptr) {
	for i, p := range t.snapshotPlugins() {
		t.dispatch(i, p.Begin, fn, site)
	}
}

// endPlugins fans the exit event out in reverse registration order.
func (t *Tracer) endPlugins(fn, site uintptr) {
	plugins := t.snapshotPlugins()
	for i := len(plugins) - 1; i >= 0; i-- {
		t.dispatch(i, plugins[i].End, fn, site)
	}
}

func (t *Tracer) snapshotPlugins() []*plugin.Plugin {
	Lock()
	defer Unlock()

	return append([]*plugin.Plugin(nil), t.plugins...)
}

func (t *Tracer) dispatch(i int, hook func(fn, site uintptr), fn, site uintptr) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error().Int("plugin", i).Interface("panic", r).Msg("plugin callback failed")
		}
	}()

	hook(fn, site)
}

// AddFilter compiles and registers a filter.
func (t *Tracer) AddFilter(expr string, icase bool, mode FilterMode) (*Filter, error) {
	f, err := NewFilter(expr, icase, mode)
	if err != nil {
		return nil, err
	}

	Lock()
	defer Unlock()

	t.filters = append(t.filters, f)
	return f, nil
}

func (t *Tracer) FilterCount() int {
	Lock()
	defer Unlock()

	return len(t.filters)
}

func (t *Tracer) FilterAt(i int) (*Filter, error) {
	Lock()
	defer Unlock()

	if i < 0 || i >= len(t.filters) {
		return nil, ErrOutOfBounds
	}

	return t.filters[i], nil
}

func (t *Tracer) RemoveFilter(i int) error {
	Lock()
	defer Unlock()

	if i < 0 || i >= len(t.filters) {
		return ErrOutOfBounds
	}

	t.filters = append(t.filters[:i], t.filters[i+1:]...)
	return nil
}

// ApplyModuleFilters applies the module filters in registration order and
// reports whether any matched.
func (t *Tracer) ApplyModuleFilters(path string) bool {
	Lock()
	defer Unlock()

	for _, f := range t.filters {
		if f.Mode() != ModuleFilter {
			continue
		}
		if f.Apply(path) {
			return true
		}
	}

	return false
}

// ApplySymbolFilters applies the symbol filters in registration order and
// reports whether any matched.
func (t *Tracer) ApplySymbolFilters(name string) bool {
	Lock()
	defer Unlock()

	for _, f := range t.filters {
		if f.Mode() != SymbolFilter {
			continue
		}
		if f.Apply(name) {
			return true
		}
	}

	return false
}
