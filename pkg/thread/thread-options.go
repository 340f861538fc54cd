package thread

type ThreadOptions struct {
	name      string
	handle    int64
	unwinding func() bool
}

type ThreadOption func(*Thread)

func WithName(name string) ThreadOption {
	return func(o *Thread) {
		o.name = name
	}
}

// WithHandle pins the thread identity instead of deriving it from the
// calling goroutine.
func WithHandle(handle int64) ThreadOption {
	return func(o *Thread) {
		o.handle = handle
	}
}

// WithUnwindProbe installs the predicate consulted by Called and Returned to
// detect an in-flight exception propagation. The default probe always
// reports false.
func WithUnwindProbe(probe func() bool) ThreadOption {
	return func(o *Thread) {
		o.unwinding = probe
	}
}
