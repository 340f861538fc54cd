// Package autoload bootstraps the tracing runtime when the library is
// loaded, the behavior an instrumented host expects from a c-shared build.
// Import it for effect:
//
//	import _ "github.com/camelspotter/libinstrument/pkg/tracer/autoload"
//
// A bootstrap failure is fatal: running instrumented code without the
// runtime installed would silently lose every call observation.
package autoload

import (
	"fmt"
	"os"

	"github.com/camelspotter/libinstrument/pkg/tracer"
)

func init() {
	if _, err := tracer.Bootstrap(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
