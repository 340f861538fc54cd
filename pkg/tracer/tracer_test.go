package tracer_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/petermattis/goid"
	log "github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/camelspotter/libinstrument/pkg/plugin"
	"github.com/camelspotter/libinstrument/pkg/symtab"
	"github.com/camelspotter/libinstrument/pkg/thread"
	"github.com/camelspotter/libinstrument/pkg/tracer"
)

const (
	fAddr = uintptr(0x1000)
	gAddr = uintptr(0x1100)
	hAddr = uintptr(0x1200)

	fSite = uintptr(0x5000) // where f was called
	gSite = uintptr(0x1010) // inside f
	hSite = uintptr(0x1110) // inside g
)

// stubResolver serves canned source locations keyed by module-relative
// address.
type stubResolver struct {
	locs map[uintptr]string
}

func (r *stubResolver) Resolve(_ string, addr uintptr) (string, error) {
	return r.locs[addr], nil
}

var testLogger = log.Nop()

func testTable() *symtab.SymTab {
	return symtab.NewFromSymbols("a.out", 0, []symtab.Symbol{
		{Addr: fAddr, Name: "f"},
		{Addr: gAddr, Name: "g"},
		{Addr: hAddr, Name: "h"},
	})
}

func newTestTracer(t *testing.T, opts ...tracer.TracerOption) *tracer.Tracer {
	t.Helper()

	opts = append([]tracer.TracerOption{
		tracer.WithLogger(&testLogger),
		tracer.WithResolver(&stubResolver{locs: map[uintptr]string{
			gSite: "test.cpp:42",
			fSite: "test.cpp:17",
		}}),
	}, opts...)

	tr := tracer.NewTracer(opts...)
	tr.Proc().AddTable(testTable())

	tracer.Install(tr)
	t.Cleanup(tracer.Uninstall)

	return tr
}

func TestHooks_PreInitIsNoop(t *testing.T) {
	tracer.Uninstall()
	require.Nil(t, tracer.Interface())

	// Instrumented functions may run during library startup.
	tracer.Enter(fAddr, fSite)
	tracer.Exit(fAddr, fSite)
}

func TestInterface_RequiresSymbols(t *testing.T) {
	tr := tracer.NewTracer(tracer.WithLogger(&testLogger))
	tracer.Install(tr)
	t.Cleanup(tracer.Uninstall)

	require.Nil(t, tracer.Interface(), "no modules loaded yet")

	tr.Proc().AddTable(testTable())
	require.Same(t, tr, tracer.Interface())
}

func TestEnterExit_MaintainsCurrentThread(t *testing.T) {
	tr := newTestTracer(t)

	tracer.Enter(fAddr, fSite)
	tracer.Enter(gAddr, gSite)

	thr := tr.Proc().CurrentThread()
	require.Equal(t, 2, thr.CallDepth())
	require.Equal(t, thread.StatusStarted, thr.Status())

	tracer.Exit(gAddr, gSite)
	tracer.Exit(fAddr, fSite)
	require.Zero(t, thr.CallDepth())
	require.Equal(t, thread.StatusExited, thr.Status())
}

func TestTrace_LinearStack(t *testing.T) {
	tr := newTestTracer(t)

	tracer.Enter(fAddr, fSite)
	tracer.Enter(gAddr, gSite)
	tracer.Enter(hAddr, hSite)

	var buf strings.Builder
	require.NoError(t, tr.Trace(&buf))

	expected := fmt.Sprintf("at 'anonymous' thread (0x%x) {\r\n", goid.Get()) +
		"  at h\r\n" +
		"  at g (test.cpp:42)\r\n" +
		"  at f (test.cpp:17)\r\n" +
		"}\r\n"
	require.Equal(t, expected, buf.String())
}

func TestTrace_EmptyStack(t *testing.T) {
	tr := newTestTracer(t)

	var buf strings.Builder
	require.NoError(t, tr.Trace(&buf))

	expected := fmt.Sprintf("at 'anonymous' thread (0x%x) {\r\n}\r\n", goid.Get())
	require.Equal(t, expected, buf.String())
}

func TestTrace_UnresolvedFrame(t *testing.T) {
	tr := newTestTracer(t, tracer.WithEmitUnresolved(true))

	tracer.Enter(0xDEAD, fSite)

	var buf strings.Builder
	require.NoError(t, tr.Trace(&buf))
	require.Contains(t, buf.String(), "  at UNRESOLVED\r\n")
}

func TestTrace_UnresolvedFrameSuppressed(t *testing.T) {
	tr := newTestTracer(t)

	tracer.Enter(fAddr, fSite)
	tracer.Enter(0xDEAD, gSite)

	var buf strings.Builder
	require.NoError(t, tr.Trace(&buf))
	require.NotContains(t, buf.String(), "UNRESOLVED")
	require.Contains(t, buf.String(), "  at f")
}

func TestTrace_UnwindsDriftBeforeRendering(t *testing.T) {
	propagating := false
	tr := newTestTracer(t,
		tracer.WithUnwindProbe(func() bool { return propagating }),
	)

	tracer.Enter(fAddr, fSite)
	tracer.Enter(gAddr, gSite)
	tracer.Enter(hAddr, hSite)

	// h and g unwind without their pops.
	propagating = true
	tracer.Exit(hAddr, hSite)
	tracer.Exit(gAddr, gSite)
	propagating = false

	thr := tr.Proc().CurrentThread()
	require.Equal(t, int32(2), thr.Lag())

	var buf strings.Builder
	require.NoError(t, tr.Trace(&buf))
	require.Zero(t, thr.Lag())
	require.Equal(t, 1, thr.CallDepth())
	require.Contains(t, buf.String(), "  at f\r\n")
	require.NotContains(t, buf.String(), "  at h")

	// Drain the remaining frame.
	tracer.Exit(fAddr, fSite)
}

func TestTraceThread_SnapshotDoesNotUnwind(t *testing.T) {
	tr := newTestTracer(t)

	thr := thread.New(thread.WithHandle(77), thread.WithName("worker"))
	thr.Called(fAddr, fSite)
	thr.Called(gAddr, gSite)
	require.NoError(t, tr.Proc().RegisterThread(thr))

	var buf strings.Builder
	require.NoError(t, tr.TraceThread(&buf, 77))

	expected := "at 'worker' thread (0x4d) {\r\n" +
		"  at g\r\n" +
		"  at f (test.cpp:17)\r\n" +
		"}\r\n"
	require.Equal(t, expected, buf.String())
	require.Equal(t, 2, thr.CallDepth())

	require.ErrorIs(t, tr.TraceThread(&buf, 999), tracer.ErrThreadNotFound)
}

func TestDump_AllThreads(t *testing.T) {
	tr := newTestTracer(t)

	for i, handle := range []int64{101, 102, 103} {
		thr := thread.New(
			thread.WithHandle(handle),
			thread.WithName(fmt.Sprintf("t%d", i+1)),
		)
		thr.Called(fAddr, fSite)
		require.NoError(t, tr.Proc().RegisterThread(thr))
	}

	var buf strings.Builder
	require.NoError(t, tr.Dump(&buf))

	blocks := strings.Split(buf.String(), "\r\n\r\n")
	require.Len(t, blocks, 3)
	for i, block := range blocks {
		require.Contains(t, block, fmt.Sprintf("at 't%d' thread", i+1))
		require.Contains(t, block, "  at f")
	}

	// No thread was unwound or drained.
	for _, handle := range []int64{101, 102, 103} {
		thr, err := tr.Proc().Thread(handle)
		require.NoError(t, err)
		require.Equal(t, 1, thr.CallDepth())
	}
}

func TestPlugins_Ordering(t *testing.T) {
	tr := newTestTracer(t)

	var events []string
	observer := func(name string) *plugin.Plugin {
		return plugin.New(
			func(fn, site uintptr) { events = append(events, name+".enter") },
			func(fn, site uintptr) { events = append(events, name+".exit") },
		)
	}

	for _, name := range []string{"P1", "P2", "P3"} {
		require.NoError(t, tr.RegisterPlugin(observer(name)))
	}
	require.Equal(t, 3, tr.PluginCount())

	tracer.Enter(fAddr, fSite)
	tracer.Exit(fAddr, fSite)

	require.Equal(t, []string{
		"P1.enter", "P2.enter", "P3.enter",
		"P3.exit", "P2.exit", "P1.exit",
	}, events)
}

func TestPlugins_PanicIsContained(t *testing.T) {
	tr := newTestTracer(t)

	var called bool
	require.NoError(t, tr.RegisterPlugin(plugin.New(
		func(fn, site uintptr) { panic("broken plugin") },
		nil,
	)))
	require.NoError(t, tr.RegisterPlugin(plugin.New(
		func(fn, site uintptr) { called = true },
		nil,
	)))

	tracer.Enter(fAddr, fSite)
	require.True(t, called, "dispatch continues past a panicking plugin")

	tracer.Exit(fAddr, fSite)
}

func TestPlugins_Registry(t *testing.T) {
	tr := newTestTracer(t)

	require.ErrorIs(t, tr.RegisterPlugin(nil), tracer.ErrPluginNil)

	p := plugin.New(nil, nil)
	require.NoError(t, tr.RegisterPlugin(p))

	got, err := tr.PluginAt(0)
	require.NoError(t, err)
	require.Same(t, p, got)

	_, err = tr.PluginAt(5)
	require.ErrorIs(t, err, tracer.ErrOutOfBounds)

	require.NoError(t, tr.RemovePlugin(0))
	require.Zero(t, tr.PluginCount())
	require.ErrorIs(t, tr.RemovePlugin(0), tracer.ErrOutOfBounds)
}
