package tracer

import (
	"fmt"
	"io"
	"strings"

	"github.com/camelspotter/libinstrument/pkg/thread"
)

// Trace renders the stack trace of the calling thread. The simulated stack
// is reconciled with the real one (unwound) before rendering, so the trace
// never shows frames the unwinder already discarded.
func (t *Tracer) Trace(w io.Writer) error {
	Lock()
	defer Unlock()

	thr := t.proc.CurrentThread()
	thr.Unwind()

	return t.render(w, thr)
}

// TraceThread renders a snapshot of the thread with the given handle. The
// thread is not unwound.
func (t *Tracer) TraceThread(w io.Writer, handle int64) error {
	Lock()
	defer Unlock()

	thr, err := t.proc.Thread(handle)
	if err != nil {
		return ErrThreadNotFound
	}

	return t.render(w, thr)
}

// Dump renders every known thread, blocks separated by a blank line. No
// thread is unwound.
func (t *Tracer) Dump(w io.Writer) error {
	Lock()
	defer Unlock()

	for i, n := 0, t.proc.ThreadCount(); i < n; i++ {
		thr, err := t.proc.ThreadAt(i)
		if err != nil {
			return err
		}
		if err := t.render(w, thr); err != nil {
			return err
		}
		if i < n-1 {
			if _, err := io.WriteString(w, "\r\n"); err != nil {
				return err
			}
		}
	}

	return nil
}

// Unwind reconciles the simulated stack of the calling thread without
// rendering. Use it to discard a stale exception trace before the next one.
func (t *Tracer) Unwind() {
	Lock()
	defer Unlock()

	t.proc.CurrentThread().Unwind()
}

// render walks the simulated stack from the most recent call outwards. Each
// frame resolves its callee symbol, caching the name on the frame, and every
// frame but the innermost is annotated with the source location of its call
// site.
func (t *Tracer) render(w io.Writer, thr *thread.Thread) error {
	name := thr.Name()
	if name == "" {
		name = "anonymous"
	}

	var buf strings.Builder
	fmt.Fprintf(&buf, "at '%s' thread (0x%x) {\r\n", name, thr.Handle())

	depth := thr.CallDepth()
	for i := depth - 1; i >= 0; i-- {
		cur, err := thr.Frame(i)
		if err != nil {
			return err
		}

		symbol := cur.Name
		if symbol == "" {
			if resolved, err := t.proc.Lookup(cur.Addr); err == nil {
				symbol = resolved
				cur.Name = resolved
			}
		}

		if symbol != "" {
			fmt.Fprintf(&buf, "  at %s", symbol)
		} else if t.emitUnresolved {
			buf.WriteString("  at UNRESOLVED")
		} else {
			continue
		}

		if i < depth-1 {
			if loc := t.callSiteLocation(thr, i); loc != "" {
				fmt.Fprintf(&buf, " (%s)", loc)
			}
		}

		buf.WriteString("\r\n")
	}

	buf.WriteString("}\r\n")

	_, err := io.WriteString(w, buf.String())
	return err
}

// callSiteLocation resolves the source location of frame i's call site. The
// call site is translated against the load base of the module holding the
// adjacent, more recent frame, which shares the caller's object file.
func (t *Tracer) callSiteLocation(thr *thread.Thread, i int) string {
	if t.resolver == nil {
		return ""
	}

	cur, err := thr.Frame(i)
	if err != nil {
		return ""
	}
	prev, err := thr.Frame(i + 1)
	if err != nil {
		return ""
	}

	path, base, err := t.proc.InverseLookup(prev.Addr)
	if err != nil {
		return ""
	}

	loc, err := t.resolver.Resolve(path, cur.Site-base)
	if err != nil {
		t.logger.Debug().Err(err).Str("module", path).Msg("source location lookup failed")
		return ""
	}
	if loc == "??:0" {
		return ""
	}

	return loc
}
