package srcline

import (
	"github.com/pkg/errors"
)

var (
	ErrPathEmpty = errors.New("module path is empty")
	ErrNoDebug   = errors.New("module carries no line debug information")
)
