package srcline

import (
	log "github.com/rs/zerolog"
)

type DwarfResolverOptions struct {
	logger *log.Logger
}

type DwarfResolverOption func(*DwarfResolver)

func WithLogger(logger *log.Logger) DwarfResolverOption {
	return func(o *DwarfResolver) {
		o.logger = logger
	}
}
