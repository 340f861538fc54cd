package tracer

import (
	"os"
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/camelspotter/libinstrument/internal/settings"
	"github.com/camelspotter/libinstrument/pkg/dso"
)

// LibsEnv selects the shared objects that contribute symbols: a
// colon-separated list of POSIX extended regular expressions matched against
// each DSO's absolute path. Unset includes every DSO, set-but-empty includes
// none.
const LibsEnv = "INSTRUMENT_LIBS"

// Bootstrap builds the tracer, loads the executable's symbol table, discovers
// the loaded shared objects through the DSO filter and installs the result as
// the global interface. A failure for one DSO is logged and skipped; a
// failure to load the executable itself, or a filter pattern that does not
// compile, aborts.
func Bootstrap(opts ...TracerOption) (*Tracer, error) {
	t := NewTracer(opts...)

	exe, err := os.Executable()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read the executable path")
	}
	if err := t.proc.AddModule(exe, 0); err != nil {
		return nil, errors.Wrap(err, "failed to load the executable symbol table")
	}

	patterns, defined, err := ParseLibsEnv()
	if err != nil {
		return nil, err
	}

	iterate := t.objects
	if iterate == nil {
		iterate = dso.Self
	}

	objects, err := iterate()
	if err != nil {
		t.logger.Warn().Err(err).Msg("failed to enumerate shared objects")
		objects = nil
	}

	var g errgroup.Group
	for _, obj := range objects {
		if obj.Path == "" || obj.Path == exe {
			continue
		}
		if len(obj.Segments) == 0 {
			t.logger.Warn().Str("path", obj.Path).Msg("shared object has no segments")
			continue
		}
		if !SelectDSO(patterns, defined, obj.Path) {
			t.logger.Debug().Str("path", obj.Path).Msg("filtered out shared object")
			continue
		}

		obj := obj
		g.Go(func() error {
			if err := t.proc.AddModule(obj.Path, obj.LoadBase()); err != nil {
				t.logger.Warn().Err(err).Str("path", obj.Path).Msg("failed to load shared object")
			}
			return nil
		})
	}
	g.Wait()

	Install(t)
	t.logger.Info().
		Str("version", settings.Version).
		Int("modules", t.proc.ModuleCount()).
		Int("symbols", t.proc.SymbolCount()).
		Msgf("%s initialized", settings.LibName)

	return t, nil
}

// ParseLibsEnv compiles the DSO selection patterns from the environment. The
// second result reports whether the variable was set at all.
func ParseLibsEnv() ([]*regexp.Regexp, bool, error) {
	val, defined := os.LookupEnv(LibsEnv)
	if !defined {
		return nil, false, nil
	}

	var patterns []*regexp.Regexp
	for _, expr := range strings.Split(val, ":") {
		if expr == "" {
			continue
		}

		re, err := regexp.CompilePOSIX(expr)
		if err != nil {
			return nil, true, errors.Wrapf(err, "failed to compile DSO filter %s", expr)
		}
		patterns = append(patterns, re)
	}

	return patterns, true, nil
}

// SelectDSO decides whether a shared object participates in the call stack
// simulation. An undefined filter variable includes everything; a defined one
// includes only paths matched by at least one pattern.
func SelectDSO(patterns []*regexp.Regexp, defined bool, path string) bool {
	if !defined {
		return true
	}

	for _, re := range patterns {
		if re.MatchString(path) {
			return true
		}
	}

	return false
}
