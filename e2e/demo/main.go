// Command demo drives the tracing runtime the way compiler-injected hooks
// would: every function reports itself on entry and exit, and the innermost
// one prints the simulated stack trace of its thread.
package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/camelspotter/libinstrument/pkg/tracer"
)

// enter reports the enclosing function to the tracing runtime.
func enter() {
	pc, _, _, _ := runtime.Caller(1)
	site, _, _, _ := runtime.Caller(2)
	tracer.Enter(runtime.FuncForPC(pc).Entry(), site)
}

// exit reports the enclosing function's return.
func exit() {
	pc, _, _, _ := runtime.Caller(1)
	site, _, _, _ := runtime.Caller(2)
	tracer.Exit(runtime.FuncForPC(pc).Entry(), site)
}

func main() {
	if _, err := tracer.Bootstrap(tracer.WithEmitUnresolved(true)); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	f()
}

func f() {
	enter()
	defer exit()
	g()
}

func g() {
	enter()
	defer exit()
	h()
}

func h() {
	enter()
	defer exit()

	if err := tracer.Interface().Trace(os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
}
