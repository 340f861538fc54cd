package tracer

import (
	log "github.com/rs/zerolog"

	"github.com/camelspotter/libinstrument/pkg/dso"
	"github.com/camelspotter/libinstrument/pkg/proc"
	"github.com/camelspotter/libinstrument/pkg/srcline"
)

type TracerOptions struct {
	logger         *log.Logger
	resolver       srcline.Resolver
	objects        dso.Iterator
	unwindProbe    func() bool
	emitUnresolved bool
	proc           *proc.Process
}

type TracerOption func(*Tracer)

func WithLogger(logger *log.Logger) TracerOption {
	return func(o *Tracer) {
		o.logger = logger
	}
}

// WithResolver sets the source-location resolver consulted during trace
// rendering. A nil resolver leaves the default DWARF resolver in place.
func WithResolver(resolver srcline.Resolver) TracerOption {
	return func(o *Tracer) {
		o.resolver = resolver
	}
}

// WithObjectIterator overrides the loaded-object enumeration used by
// Bootstrap. The default walks /proc/<pid>/maps.
func WithObjectIterator(objects dso.Iterator) TracerOption {
	return func(o *Tracer) {
		o.objects = objects
	}
}

// WithUnwindProbe sets the exception-propagation predicate handed to every
// thread state.
func WithUnwindProbe(probe func() bool) TracerOption {
	return func(o *Tracer) {
		o.unwindProbe = probe
	}
}

// WithEmitUnresolved renders frames whose address resolves to no symbol as
// UNRESOLVED instead of suppressing the line.
func WithEmitUnresolved(emit bool) TracerOption {
	return func(o *Tracer) {
		o.emitUnresolved = emit
	}
}

// WithProcess installs a pre-built registry instead of creating one.
func WithProcess(p *proc.Process) TracerOption {
	return func(o *Tracer) {
		o.proc = p
	}
}
