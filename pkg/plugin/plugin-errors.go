package plugin

import (
	"github.com/pkg/errors"
)

var (
	ErrPathEmpty     = errors.New("plugin module path is empty")
	ErrSymbolMissing = errors.New("plugin entry point not found in the module")
	ErrBadSignature  = errors.New("plugin entry point has the wrong signature")
)
