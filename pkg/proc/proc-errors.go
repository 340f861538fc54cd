package proc

import (
	"github.com/pkg/errors"
)

var (
	ErrSymNotFound       = errors.New("address not resolved by any module")
	ErrModuleNotFound    = errors.New("no module contains the address")
	ErrThreadNotFound    = errors.New("thread not found")
	ErrAlreadyRegistered = errors.New("a thread with this handle is already registered")
	ErrNameEmpty         = errors.New("thread name is empty")
	ErrEntryNil          = errors.New("thread entry function is nil")
	ErrOutOfBounds       = errors.New("index out of bounds")
)
