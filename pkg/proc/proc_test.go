package proc_test

import (
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/camelspotter/libinstrument/pkg/proc"
	"github.com/camelspotter/libinstrument/pkg/symtab"
	"github.com/camelspotter/libinstrument/pkg/thread"
)

func fakeModule(path string, base uintptr) *symtab.SymTab {
	return symtab.NewFromSymbols(path, base, []symtab.Symbol{
		{Addr: base + 0x100, Name: path + "::foo"},
		{Addr: base + 0x200, Name: path + "::bar"},
		{Addr: base + 0x300, Name: path + "::baz"},
	})
}

func TestAddModule_OwnExecutable(t *testing.T) {
	exe, err := os.Executable()
	require.NoError(t, err)

	p := proc.New()
	require.Equal(t, os.Getpid(), p.Pid())

	require.NoError(t, p.AddModule(exe, 0))
	require.Equal(t, 1, p.ModuleCount())
	require.NotZero(t, p.SymbolCount())

	err = p.AddModule("nonexistent-binary-file", 0)
	require.Error(t, err)
	require.Equal(t, 1, p.ModuleCount())
}

func TestLookup_AcrossModules(t *testing.T) {
	p := proc.New()
	p.AddTable(fakeModule("libfoo.so", 0x1000))
	p.AddTable(fakeModule("libbar.so", 0x8000))

	name, err := p.Lookup(0x8200)
	require.NoError(t, err)
	require.Equal(t, "libbar.so::bar", name)

	name, err = p.Lookup(0x1100)
	require.NoError(t, err)
	require.Equal(t, "libfoo.so::foo", name)

	_, err = p.Lookup(0xDEAD)
	require.ErrorIs(t, err, proc.ErrSymNotFound)
}

func TestInverseLookup(t *testing.T) {
	p := proc.New()
	p.AddTable(fakeModule("libfoo.so", 0x1000))
	p.AddTable(fakeModule("libbar.so", 0x8000))

	path, base, err := p.InverseLookup(0x8300)
	require.NoError(t, err)
	require.Equal(t, "libbar.so", path)
	require.Equal(t, uintptr(0x8000), base)

	// A resolvable address maps back to exactly the module that named it.
	name, err := p.Lookup(0x1200)
	require.NoError(t, err)
	path, base, err = p.InverseLookup(0x1200)
	require.NoError(t, err)
	require.Equal(t, "libfoo.so", path)
	tab := fakeModule(path, base)
	sym, err := tab.LookupName(name)
	require.NoError(t, err)
	require.Equal(t, uintptr(0x1200), sym.Addr)

	_, _, err = p.InverseLookup(0xDEAD)
	require.ErrorIs(t, err, proc.ErrModuleNotFound)
}

func TestCurrentThread_CreatesExactlyOne(t *testing.T) {
	p := proc.New()

	thr := p.CurrentThread()
	require.NotNil(t, thr)
	require.True(t, thr.IsCurrent())
	require.Equal(t, 1, p.ThreadCount())

	// Repeated calls on the same thread return the same state.
	require.Same(t, thr, p.CurrentThread())
	require.Equal(t, 1, p.ThreadCount())

	handles := make(chan int64, 4)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			handles <- p.CurrentThread().Handle()
		}()
	}
	wg.Wait()
	close(handles)
	for handle := range handles {
		require.NotEqual(t, thr.Handle(), handle)
	}
	require.Equal(t, 5, p.ThreadCount())
}

func TestRegisterThread_DuplicateHandle(t *testing.T) {
	p := proc.New()

	require.NoError(t, p.RegisterThread(thread.New(thread.WithHandle(7))))
	err := p.RegisterThread(thread.New(thread.WithHandle(7)))
	require.ErrorIs(t, err, proc.ErrAlreadyRegistered)
	require.Equal(t, 1, p.ThreadCount())
}

func TestGetThread_ByHandleNameIndex(t *testing.T) {
	p := proc.New()
	require.NoError(t, p.RegisterThread(thread.New(
		thread.WithHandle(11),
		thread.WithName("reaper"),
	)))

	thr, err := p.Thread(11)
	require.NoError(t, err)
	require.Equal(t, int64(11), thr.Handle())

	thr, err = p.ThreadByName("reaper")
	require.NoError(t, err)
	require.Equal(t, int64(11), thr.Handle())

	thr, err = p.ThreadAt(0)
	require.NoError(t, err)
	require.Equal(t, int64(11), thr.Handle())

	_, err = p.Thread(99)
	require.ErrorIs(t, err, proc.ErrThreadNotFound)
	_, err = p.ThreadByName("ghost")
	require.ErrorIs(t, err, proc.ErrThreadNotFound)
	_, err = p.ThreadAt(3)
	require.ErrorIs(t, err, proc.ErrOutOfBounds)
}

func TestForkThread(t *testing.T) {
	p := proc.New()

	entered := make(chan struct{})
	handle, err := p.ForkThread("worker", func() {
		close(entered)
	})
	require.NoError(t, err)
	require.NotZero(t, handle)
	<-entered

	thr, err := p.Thread(handle)
	require.NoError(t, err)
	require.Equal(t, "worker", thr.Name())

	_, err = p.ForkThread("", func() {})
	require.ErrorIs(t, err, proc.ErrNameEmpty)
	_, err = p.ForkThread("worker", nil)
	require.ErrorIs(t, err, proc.ErrEntryNil)
}

func TestCleanupThread(t *testing.T) {
	p := proc.New()
	require.NoError(t, p.RegisterThread(thread.New(thread.WithHandle(5))))
	require.NoError(t, p.RegisterThread(thread.New(thread.WithHandle(6))))

	p.CleanupThread(5)
	require.Equal(t, 1, p.ThreadCount())
	_, err := p.Thread(5)
	require.ErrorIs(t, err, proc.ErrThreadNotFound)

	// Unknown handles are ignored.
	p.CleanupThread(99)
	require.Equal(t, 1, p.ThreadCount())
}

func TestCleanupZombies(t *testing.T) {
	p := proc.New()

	active := thread.New(thread.WithHandle(1))
	active.Called(0x1000, 0x2000)

	idle := thread.New(thread.WithHandle(2))

	done := thread.New(thread.WithHandle(3))
	done.Called(0x1000, 0x2000)
	done.Returned()

	require.NoError(t, p.RegisterThread(active))
	require.NoError(t, p.RegisterThread(idle))
	require.NoError(t, p.RegisterThread(done))

	p.CleanupZombies()
	require.Equal(t, 2, p.ThreadCount())
	_, err := p.Thread(3)
	require.ErrorIs(t, err, proc.ErrThreadNotFound)

	// With only active and init threads left, reaping is a no-op.
	p.CleanupZombies()
	require.Equal(t, 2, p.ThreadCount())
}
