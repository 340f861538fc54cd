package plugin

import (
	"fmt"
	"strings"
)

// Mangle builds the Itanium ABI decorated name of a void(void*, void*)
// function nested in the given scope ("ns::cls"), the shape every scoped
// plugin entry point has. The second void* parameter is a substitution
// reference back to the first.
func Mangle(scope, name string) string {
	parts := strings.Split(scope, "::")

	var b strings.Builder
	b.WriteString("_ZN")
	for _, part := range parts {
		fmt.Fprintf(&b, "%d%s", len(part), part)
	}
	fmt.Fprintf(&b, "%d%s", len(name), name)
	fmt.Fprintf(&b, "EPvS%d_", len(parts)-1)

	return b.String()
}
