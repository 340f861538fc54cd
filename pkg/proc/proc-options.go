package proc

import (
	log "github.com/rs/zerolog"
)

type ProcessOptions struct {
	logger      *log.Logger
	unwindProbe func() bool
}

type ProcessOption func(*Process)

func WithLogger(logger *log.Logger) ProcessOption {
	return func(o *Process) {
		o.logger = logger
	}
}

// WithUnwindProbe sets the exception-propagation predicate handed to every
// thread state the registry creates.
func WithUnwindProbe(probe func() bool) ProcessOption {
	return func(o *Process) {
		o.unwindProbe = probe
	}
}
