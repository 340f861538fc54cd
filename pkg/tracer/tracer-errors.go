package tracer

import (
	"github.com/pkg/errors"
)

var (
	ErrExprEmpty         = errors.New("filter expression is empty")
	ErrPluginNil         = errors.New("plugin is nil")
	ErrAlreadyRegistered = errors.New("a plugin with this path is already registered")
	ErrPluginNotFound    = errors.New("no plugin registered with this path")
	ErrThreadNotFound    = errors.New("thread not found")
	ErrOutOfBounds       = errors.New("index out of bounds")
)
