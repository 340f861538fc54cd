package thread

import (
	"github.com/petermattis/goid"
)

// Thread simulates the call stack of one thread of execution. Frames are
// appended on call and removed on return; the lag counter records the drift
// between the simulated and the real stack while an exception unwinds frames
// whose exit hooks never fire.
//
// Thread is not safe for concurrent use on its own; the owning registry
// serializes access.
type Thread struct {
	stack  []Call
	lag    int32
	status Status
	*ThreadOptions
}

// New creates the state for the calling thread. The handle defaults to the
// calling goroutine id.
func New(opts ...ThreadOption) *Thread {
	t := &Thread{
		ThreadOptions: &ThreadOptions{},
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.handle == 0 {
		t.handle = goid.Get()
	}
	if t.unwinding == nil {
		t.unwinding = func() bool { return false }
	}

	return t
}

func (t *Thread) Handle() int64 {
	return t.handle
}

func (t *Thread) Name() string {
	return t.name
}

func (t *Thread) SetName(name string) {
	t.name = name
}

func (t *Thread) Status() Status {
	return t.status
}

// SetStatus overrides the lifecycle state. Used by the registry when a
// thread is forked before its entry function runs.
func (t *Thread) SetStatus(status Status) {
	t.status = status
}

// Lag returns the number of calls that must be popped off the simulated
// stack to match the real one.
func (t *Thread) Lag() int32 {
	return t.lag
}

// CallDepth returns the size of the simulated call stack.
func (t *Thread) CallDepth() int {
	return len(t.stack)
}

// Frame peeks at the simulated call stack. Offset 0 is the outermost frame;
// CallDepth()-1 is the most recent call.
func (t *Thread) Frame(i int) (*Call, error) {
	if i < 0 || i >= len(t.stack) {
		return nil, ErrOutOfBounds
	}

	return &t.stack[i], nil
}

// Called simulates a function call.
//
// If an exception is unwinding the real stack, the call is observed as the
// exception propagates through intervening frames; the simulated stack is
// left unchanged and the drift is recorded in the lag counter.
func (t *Thread) Called(addr, site uintptr) {
	if t.unwinding() {
		t.lag--
		return
	}

	t.stack = append(t.stack, Call{Addr: addr, Site: site})
	t.status = StatusStarted
}

// Returned simulates a function return.
//
// If an exception is unwinding the real stack, the real frame vanishes
// without a matching pop; the discrepancy is absorbed into the lag counter.
func (t *Thread) Returned() {
	if t.unwinding() {
		t.lag++
		return
	}

	if n := len(t.stack); n > 0 {
		t.stack = t.stack[:n-1]
	}
	if len(t.stack) == 0 && t.status.Started() {
		t.status = StatusExited
	}
}

// Unwind pops frames until the simulated call stack meets the real one.
// A call with lag 0 is a no-op.
func (t *Thread) Unwind() {
	for t.lag > 0 {
		if n := len(t.stack); n > 0 {
			t.stack = t.stack[:n-1]
		}
		t.lag--
	}
}

// Is reports whether this state belongs to the thread with the given handle.
func (t *Thread) Is(handle int64) bool {
	return t.handle == handle
}

// IsNamed reports whether this thread carries the given name.
func (t *Thread) IsNamed(name string) bool {
	return t.name == name
}

// IsCurrent reports whether this state belongs to the calling thread.
func (t *Thread) IsCurrent() bool {
	return t.handle == goid.Get()
}
