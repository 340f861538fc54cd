package symtab

import (
	log "github.com/rs/zerolog"
)

type SymTabOptions struct {
	logger *log.Logger
}

type SymTabOption func(*SymTab)

func WithLogger(logger *log.Logger) SymTabOption {
	return func(o *SymTab) {
		o.logger = logger
	}
}
