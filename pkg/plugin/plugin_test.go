package plugin_test

import (
	"testing"

	"github.com/ianlancetaylor/demangle"
	"github.com/stretchr/testify/require"

	"github.com/camelspotter/libinstrument/pkg/plugin"
)

func TestNew_Inline(t *testing.T) {
	var entered, exited []uintptr

	p := plugin.New(
		func(fn, site uintptr) { entered = append(entered, fn, site) },
		func(fn, site uintptr) { exited = append(exited, fn, site) },
	)
	require.True(t, p.Inline())
	require.Empty(t, p.Path())

	p.Begin(0x1000, 0x2000)
	p.End(0x1000, 0x2004)
	require.Equal(t, []uintptr{0x1000, 0x2000}, entered)
	require.Equal(t, []uintptr{0x1000, 0x2004}, exited)
}

func TestNew_NilHooksAreNoops(t *testing.T) {
	p := plugin.New(nil, nil)
	p.Begin(0x1000, 0x2000)
	p.End(0x1000, 0x2000)
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := plugin.Open("", "")
	require.ErrorIs(t, err, plugin.ErrPathEmpty)

	_, err = plugin.Open("nonexistent-plugin.so", "")
	require.Error(t, err)
}

func TestMangle(t *testing.T) {
	require.Equal(t, "_ZN2ns3cls9mod_enterEPvS1_", plugin.Mangle("ns::cls", "mod_enter"))
	require.Equal(t, "_ZN2ns3cls8mod_exitEPvS1_", plugin.Mangle("ns::cls", "mod_exit"))
	require.Equal(t, "_ZN3cls9mod_enterEPvS0_", plugin.Mangle("cls", "mod_enter"))
}

// Demangling a mangled entry point recovers the scoped name, for well-formed
// symbols of the plugin entry-point shape.
func TestMangle_DemangleRoundTrip(t *testing.T) {
	for _, tc := range []struct {
		scope string
		name  string
	}{
		{"ns::cls", "mod_enter"},
		{"ns::cls", "mod_exit"},
		{"instrument::observer", "mod_enter"},
		{"cls", "mod_exit"},
	} {
		mangled := plugin.Mangle(tc.scope, tc.name)
		require.Contains(t,
			demangle.Filter(mangled),
			tc.scope+"::"+tc.name,
			"mangled form %s", mangled,
		)
	}
}
