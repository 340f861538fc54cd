package thread

import (
	"github.com/pkg/errors"
)

var (
	ErrOutOfBounds = errors.New("backtrace offset out of bounds")
)
