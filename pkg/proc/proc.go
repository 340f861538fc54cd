package proc

import (
	"os"

	"github.com/petermattis/goid"
	"github.com/pkg/errors"

	"github.com/camelspotter/libinstrument/internal/relock"
	"github.com/camelspotter/libinstrument/pkg/symtab"
	"github.com/camelspotter/libinstrument/pkg/thread"
)

// Process aggregates the symbol tables of all loaded modules and the
// simulated call stacks of all known threads. All operations serialize on a
// reentrant mutex, so registry methods may be re-entered from code that
// already holds it.
type Process struct {
	pid     int
	symtabs []*symtab.SymTab
	threads []*thread.Thread
	mu      relock.Mutex
	*ProcessOptions
}

func New(opts ...ProcessOption) *Process {
	p := &Process{
		pid:            os.Getpid(),
		ProcessOptions: &ProcessOptions{},
	}
	for _, opt := range opts {
		opt(p)
	}

	return p
}

func (p *Process) Pid() int {
	return p.pid
}

// AddModule loads the symbol table of the object file at path, mapped at the
// given load base, and appends it to the registry.
func (p *Process) AddModule(path string, base uintptr) error {
	opts := []symtab.SymTabOption{}
	if p.logger != nil {
		opts = append(opts, symtab.WithLogger(p.logger))
	}

	tab, err := symtab.NewSymTab(path, base, opts...)
	if err != nil {
		return errors.Wrapf(err, "failed to load module %s", path)
	}

	p.AddTable(tab)
	return nil
}

// AddTable appends a pre-built symbol table. Serves backends other than the
// ELF loader.
func (p *Process) AddTable(tab *symtab.SymTab) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.symtabs = append(p.symtabs, tab)
}

// Lookup resolves an address to a function name, searching modules in
// insertion order.
func (p *Process) Lookup(addr uintptr) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, tab := range p.symtabs {
		if name, err := tab.AddrToName(addr); err == nil {
			return name, nil
		}
	}

	return "", ErrSymNotFound
}

// InverseLookup finds the module that contains the address, returning its
// path and load base.
func (p *Process) InverseLookup(addr uintptr) (string, uintptr, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, tab := range p.symtabs {
		if tab.Exists(addr) {
			return tab.Path(), tab.Base(), nil
		}
	}

	return "", 0, ErrModuleNotFound
}

func (p *Process) ModuleCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.symtabs)
}

// ModuleAt returns the i-th registered module table.
func (p *Process) ModuleAt(i int) (*symtab.SymTab, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if i < 0 || i >= len(p.symtabs) {
		return nil, ErrOutOfBounds
	}

	return p.symtabs[i], nil
}

// SymbolCount returns the total number of function symbols across modules.
func (p *Process) SymbolCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	cnt := 0
	for _, tab := range p.symtabs {
		cnt += tab.Size()
	}

	return cnt
}

// CurrentThread returns the state of the calling thread, creating and
// registering it on first use. This is the hot path of the enter hook.
func (p *Process) CurrentThread() *thread.Thread {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := goid.Get()
	for _, thr := range p.threads {
		if thr.Is(id) {
			return thr
		}
	}

	thr := thread.New(
		thread.WithHandle(id),
		thread.WithUnwindProbe(p.unwindProbe),
	)
	p.threads = append(p.threads, thr)

	return thr
}

// Thread returns the state registered for the given handle.
func (p *Process) Thread(handle int64) (*thread.Thread, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, thr := range p.threads {
		if thr.Is(handle) {
			return thr, nil
		}
	}

	return nil, ErrThreadNotFound
}

// ThreadByName returns the first thread registered with the given name.
// Thread names are not required to be unique.
func (p *Process) ThreadByName(name string) (*thread.Thread, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, thr := range p.threads {
		if thr.IsNamed(name) {
			return thr, nil
		}
	}

	return nil, ErrThreadNotFound
}

// ThreadAt returns the i-th registered thread.
func (p *Process) ThreadAt(i int) (*thread.Thread, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if i < 0 || i >= len(p.threads) {
		return nil, ErrOutOfBounds
	}

	return p.threads[i], nil
}

func (p *Process) ThreadCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.threads)
}

// RegisterThread adds an externally constructed thread state. Handles must
// be unique within the registry.
func (p *Process) RegisterThread(thr *thread.Thread) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, cur := range p.threads {
		if cur.Is(thr.Handle()) {
			return errors.Wrapf(ErrAlreadyRegistered, "handle 0x%x", thr.Handle())
		}
	}

	p.threads = append(p.threads, thr)
	return nil
}

// ForkThread spawns a goroutine whose thread state is registered under the
// given name before the entry function runs. It returns the handle of the
// new thread once registration is complete.
func (p *Process) ForkThread(name string, entry func()) (int64, error) {
	if name == "" {
		return 0, ErrNameEmpty
	}
	if entry == nil {
		return 0, ErrEntryNil
	}

	type forked struct {
		handle int64
		err    error
	}
	ready := make(chan forked, 1)

	go func() {
		thr := thread.New(
			thread.WithName(name),
			thread.WithUnwindProbe(p.unwindProbe),
		)
		thr.SetStatus(thread.StatusPreEntry)

		if err := p.RegisterThread(thr); err != nil {
			ready <- forked{err: err}
			return
		}
		ready <- forked{handle: thr.Handle()}

		entry()
	}()

	f := <-ready
	if f.err != nil {
		return 0, errors.Wrapf(f.err, "failed to fork thread %s", name)
	}

	return f.handle, nil
}

// CleanupThread removes the state registered for the given handle.
func (p *Process) CleanupThread(handle int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, thr := range p.threads {
		if thr.Is(handle) {
			p.threads = append(p.threads[:i], p.threads[i+1:]...)
			return
		}
	}
}

// CleanupZombies removes threads whose simulated stack drained back to zero
// depth and that have run at least once.
func (p *Process) CleanupZombies() {
	p.mu.Lock()
	defer p.mu.Unlock()

	kept := p.threads[:0]
	for _, thr := range p.threads {
		if thr.CallDepth() == 0 &&
			(thr.Status().Started() || thr.Status().Finished()) {
			continue
		}
		kept = append(kept, thr)
	}
	p.threads = kept
}
